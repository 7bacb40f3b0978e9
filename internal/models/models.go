package models

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is one resume submission pulled from the mailbox
type Candidate struct {
	Sender       string `json:"sender"`
	DocumentPath string `json:"document_path"`
	Filename     string `json:"filename"`
	RawText      string `json:"-"` // set after extraction
}

// ScoreRecord holds the signals computed for one resume text.
// TotalScore has no upper bound; many "N years" mentions can push it past 100.
type ScoreRecord struct {
	MatchScore      float64 `json:"match_score"` // 0-100, two decimals
	YearsExperience int     `json:"years_experience"`
	HasAIExperience bool    `json:"has_ai_experience"`
	FormattingOK    bool    `json:"formatting_ok"`
	TotalScore      int     `json:"total_score"`
}

// FeedbackMessage is the rendered email for one candidate
type FeedbackMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RunLogEntry records the outcome of one candidate
type RunLogEntry struct {
	Sender       string `json:"sender_identifier"`
	DocumentPath string `json:"document_path"`
	ScoreRecord
	Delivered          bool   `json:"delivered"`
	DeliveryError      string `json:"delivery_error,omitempty"`
	ExtractionDegraded bool   `json:"extraction_degraded"`
}

// RunLog is the ordered set of entries produced by one pipeline run
type RunLog struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Entries    []RunLogEntry `json:"entries"`
}

// NewRunLog starts an empty run log with a fresh run id
func NewRunLog(capacity int) *RunLog {
	if capacity < 0 {
		capacity = 0
	}
	return &RunLog{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Entries:   make([]RunLogEntry, 0, capacity),
	}
}

// Append adds an entry at the end of the log
func (l *RunLog) Append(entry RunLogEntry) {
	l.Entries = append(l.Entries, entry)
}

// Len returns the number of entries
func (l *RunLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Entries)
}

// DeliveredCount returns how many entries were delivered successfully
func (l *RunLog) DeliveredCount() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, e := range l.Entries {
		if e.Delivered {
			n++
		}
	}
	return n
}

// Finish stamps the completion time
func (l *RunLog) Finish() {
	l.FinishedAt = time.Now().UTC()
}

// Columns is the flat table header used by every run log sink
var Columns = []string{
	"sender_identifier",
	"document_path",
	"match_score",
	"years_experience",
	"has_ai_experience",
	"formatting_ok",
	"total_score",
	"delivered",
}
