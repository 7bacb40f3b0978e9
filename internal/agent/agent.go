package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fmuoria/resume-feedback-agent/internal/feedback"
	"github.com/fmuoria/resume-feedback-agent/internal/ingestion"
	"github.com/fmuoria/resume-feedback-agent/internal/logger"
	"github.com/fmuoria/resume-feedback-agent/internal/models"
	"github.com/fmuoria/resume-feedback-agent/internal/scoring"
)

var (
	// ErrFetchUnavailable wraps any failure to list candidates from the mailbox
	ErrFetchUnavailable = errors.New("candidate source unavailable")

	// ErrJobDescriptionMissing is returned when there is nothing to score against
	ErrJobDescriptionMissing = errors.New("job description is empty")
)

const dryRunReason = "dry run"

// Fetcher lists pending resume submissions
type Fetcher interface {
	Fetch(ctx context.Context, limit int) ([]models.Candidate, error)
}

// Sender delivers one plain-text message
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// DocumentStore returns the stored bytes of a fetched attachment
type DocumentStore interface {
	Open(path string) ([]byte, error)
}

// ProgressCallback is called to report progress during processing.
// With Workers > 1 it may be called from several goroutines.
type ProgressCallback func(current, total int, message string)

// Options tune a run
type Options struct {
	Workers int
	DryRun  bool
}

// Agent runs the fetch, score, reply pipeline
type Agent struct {
	fetcher Fetcher
	sender  Sender
	store   DocumentStore
	scorer  *scoring.Scorer
	opts    Options
	logger  *zap.Logger

	mu         sync.RWMutex
	progressCb ProgressCallback
}

// New creates an agent scoring against jobDescription
func New(fetcher Fetcher, sender Sender, store DocumentStore, jobDescription string, opts Options, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Agent{
		fetcher: fetcher,
		sender:  sender,
		store:   store,
		scorer:  scoring.NewScorer(jobDescription),
		opts:    opts,
		logger:  log,
	}
}

// SetProgressCallback sets the progress callback function
func (a *Agent) SetProgressCallback(cb ProgressCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progressCb = cb
}

func (a *Agent) reportProgress(current, total int, message string) {
	a.mu.RLock()
	cb := a.progressCb
	a.mu.RUnlock()

	if cb != nil {
		cb(current, total, message)
	}
}

// JobDescription returns the text resumes are scored against
func (a *Agent) JobDescription() string {
	return a.scorer.JobDescription()
}

// Run processes up to batchLimit candidates and returns their entries in fetch order.
// A failure for one candidate is recorded in its entry; only setup and fetch
// errors abort the run. After ctx is cancelled the remaining candidates are
// still scored and logged but not mailed, and Run returns the full log with
// ctx.Err().
func (a *Agent) Run(ctx context.Context, batchLimit int) (*models.RunLog, error) {
	if strings.TrimSpace(a.scorer.JobDescription()) == "" {
		return nil, ErrJobDescriptionMissing
	}
	if a.fetcher == nil || a.store == nil || (a.sender == nil && !a.opts.DryRun) {
		return nil, fmt.Errorf("agent is missing a collaborator")
	}

	a.reportProgress(0, 0, "Fetching candidates...")

	candidates, err := a.fetcher.Fetch(ctx, batchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchUnavailable, err)
	}

	a.logger.Info("candidates fetched", zap.Int("count", len(candidates)), zap.Int("limit", batchLimit))

	runLog := models.NewRunLog(len(candidates))

	if a.opts.Workers > 1 && len(candidates) > 1 {
		for _, e := range a.processParallel(ctx, candidates) {
			runLog.Append(e)
		}
	} else {
		for i, c := range candidates {
			runLog.Append(a.processCandidate(ctx, c))
			a.reportProgress(i+1, len(candidates), fmt.Sprintf("Processed %s", logger.MaskSender(c.Sender)))
		}
	}

	runLog.Finish()

	if err := ctx.Err(); err != nil {
		a.logger.Warn("run interrupted",
			zap.String("run_id", runLog.RunID),
			zap.Int("processed", runLog.Len()),
			zap.Int("delivered", runLog.DeliveredCount()),
			zap.Error(err),
		)
		return runLog, err
	}

	a.logger.Info("run complete",
		zap.String("run_id", runLog.RunID),
		zap.Int("processed", runLog.Len()),
		zap.Int("delivered", runLog.DeliveredCount()),
	)

	return runLog, nil
}

// processParallel evaluates candidates concurrently and keeps input order.
// Every candidate gets an entry, cancelled or not.
func (a *Agent) processParallel(ctx context.Context, candidates []models.Candidate) []models.RunLogEntry {
	entries := make([]models.RunLogEntry, len(candidates))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(a.opts.Workers)

	for i, c := range candidates {
		g.Go(func() error {
			entries[i] = a.processCandidate(ctx, c)
			n := done.Add(1)
			a.reportProgress(int(n), len(candidates), fmt.Sprintf("Processed %s", logger.MaskSender(c.Sender)))
			return nil
		})
	}

	// processCandidate never fails
	_ = g.Wait()
	return entries
}

// processCandidate never fails; problems are recorded in the returned entry
func (a *Agent) processCandidate(ctx context.Context, c models.Candidate) models.RunLogEntry {
	log := a.logger.With(zap.String("sender", logger.MaskSender(c.Sender)))

	entry := models.RunLogEntry{
		Sender:       c.Sender,
		DocumentPath: c.DocumentPath,
	}

	text, degraded := a.extract(c, log)
	entry.ExtractionDegraded = degraded
	entry.ScoreRecord = a.scorer.Score(text)

	log.Debug("candidate scored",
		zap.Float64("match_score", entry.MatchScore),
		zap.Int("total_score", entry.TotalScore),
	)

	msg := feedback.Compose(c.Sender, feedback.DisplayName(c.Sender), entry.ScoreRecord)

	if a.opts.DryRun {
		entry.DeliveryError = dryRunReason
		return entry
	}

	if err := ctx.Err(); err != nil {
		log.Warn("run cancelled, feedback not sent", zap.Error(err))
		entry.DeliveryError = err.Error()
		return entry
	}

	if err := a.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		log.Warn("failed to deliver feedback", zap.Error(err))
		entry.DeliveryError = err.Error()
		return entry
	}

	entry.Delivered = true
	return entry
}

// Evaluate extracts and scores one document without delivering anything
func (a *Agent) Evaluate(filename string, data []byte) (models.ScoreRecord, bool) {
	text, degraded := a.extractBytes(filename, data, a.logger.With(zap.String("file", filename)))
	return a.scorer.Score(text), degraded
}

// extract returns the candidate text and whether it is degraded.
// Candidates that already carry text skip the store.
func (a *Agent) extract(c models.Candidate, log *zap.Logger) (string, bool) {
	if c.RawText != "" {
		return c.RawText, false
	}

	data, err := a.store.Open(c.DocumentPath)
	if err != nil {
		log.Warn("failed to open document", zap.String("path", c.DocumentPath), zap.Error(err))
		return "", true
	}

	name := c.Filename
	if name == "" {
		name = c.DocumentPath
	}
	return a.extractBytes(name, data, log)
}

func (a *Agent) extractBytes(name string, data []byte, log *zap.Logger) (string, bool) {
	result := ingestion.ExtractText(data, ingestion.FormatFromFilename(name))
	if result.Degraded {
		log.Warn("text extraction degraded", zap.String("file", name), zap.String("reason", result.Reason))
	}
	return result.Text, result.Degraded
}
