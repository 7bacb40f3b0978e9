package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, *models.RunLog) error { return f.err }

type countingSink struct{ calls int }

func (c *countingSink) Write(context.Context, *models.RunLog) error {
	c.calls++
	return nil
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "processing_log.csv")
	require.NoError(t, CSVSink{Path: path}.Write(context.Background(), sampleRunLog()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, models.Columns, records[0])
	assert.Equal(t, []string{
		"jane@example.com",
		filepath.Join("resumes", "jane_example.com_cv.pdf"),
		"34.57", "2", "true", "true", "77", "true",
	}, records[1])
	assert.Equal(t, "false", records[2][7])
	assert.Equal(t, "max@example.net", records[3][0])
}

func TestCSVSink_EmptyRunWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing_log.csv")
	require.NoError(t, CSVSink{Path: path}.Write(context.Background(), models.NewRunLog(0)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sender_identifier,document_path,match_score,years_experience,has_ai_experience,formatting_ok,total_score,delivered\n", string(data))
}

func TestSinks_RejectNilRunLog(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, CSVSink{Path: filepath.Join(dir, "a.csv")}.Write(context.Background(), nil))
	assert.Error(t, XLSXSink{Path: filepath.Join(dir, "a.xlsx")}.Write(context.Background(), nil))
}

func TestMultiSink(t *testing.T) {
	counter := &countingSink{}
	boom := errors.New("disk full")

	m := MultiSink{failingSink{err: boom}, counter, failingSink{err: errors.New("locked")}}
	err := m.Write(context.Background(), sampleRunLog())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "locked")
	assert.Equal(t, 1, counter.calls, "a failing sink must not stop the others")

	assert.NoError(t, MultiSink{}.Write(context.Background(), sampleRunLog()))
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "data", "runs.db"))
	require.NoError(t, err)
	defer sink.Close()

	first := sampleRunLog()
	require.NoError(t, sink.Write(ctx, first))

	entries, err := sink.Entries(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.Entries, entries)

	// rewriting a run replaces its entries
	first.Entries = first.Entries[:1]
	require.NoError(t, sink.Write(ctx, first))
	entries, err = sink.Entries(ctx, first.RunID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	second := models.NewRunLog(0)
	second.StartedAt = first.StartedAt.Add(1)
	second.Finish()
	require.NoError(t, sink.Write(ctx, second))

	ids, err := sink.RunIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{second.RunID, first.RunID}, ids)

	none, err := sink.Entries(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
