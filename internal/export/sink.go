// Package export persists run logs to CSV, XLSX and SQLite.
package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

// Sink persists a finished run log
type Sink interface {
	Write(ctx context.Context, runLog *models.RunLog) error
}

// MultiSink writes to every sink and joins their errors
type MultiSink []Sink

// Write implements Sink
func (m MultiSink) Write(ctx context.Context, runLog *models.RunLog) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, runLog); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Row flattens an entry in models.Columns order
func Row(e models.RunLogEntry) []string {
	return []string{
		e.Sender,
		e.DocumentPath,
		strconv.FormatFloat(e.MatchScore, 'f', -1, 64),
		strconv.Itoa(e.YearsExperience),
		strconv.FormatBool(e.HasAIExperience),
		strconv.FormatBool(e.FormattingOK),
		strconv.Itoa(e.TotalScore),
		strconv.FormatBool(e.Delivered),
	}
}

func checkRunLog(runLog *models.RunLog) error {
	if runLog == nil {
		return fmt.Errorf("run log is nil")
	}
	return nil
}
