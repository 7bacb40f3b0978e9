package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		json      bool
		debug     bool
		wantLevel zapcore.Level
	}{
		{name: "console info", wantLevel: zapcore.InfoLevel},
		{name: "json info", json: true, wantLevel: zapcore.InfoLevel},
		{name: "console debug", debug: true, wantLevel: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.json, tt.debug)
			require.NoError(t, err)
			require.NotNil(t, l)
			assert.True(t, l.Core().Enabled(tt.wantLevel))
			if tt.wantLevel == zapcore.InfoLevel {
				assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
			}
		})
	}
}

func TestMaskSender(t *testing.T) {
	assert.Equal(t, "j***@example.com", MaskSender("jane@example.com"))
	assert.Equal(t, "a@b.c", MaskSender("a@b.c"))
	assert.Equal(t, "no-at-sign", MaskSender("no-at-sign"))
}
