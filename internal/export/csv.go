package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

// CSVSink overwrites Path with one header row and one row per entry
type CSVSink struct {
	Path string
}

// Write implements Sink
func (s CSVSink) Write(_ context.Context, runLog *models.RunLog) error {
	if err := checkRunLog(runLog); err != nil {
		return err
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", s.Path, err)
		}
	}

	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, e := range runLog.Entries {
		if err := w.Write(Row(e)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv file: %w", err)
	}

	return f.Close()
}
