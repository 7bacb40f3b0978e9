package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fmuoria/resume-feedback-agent/internal/agent"
	"github.com/fmuoria/resume-feedback-agent/internal/export"
	"github.com/fmuoria/resume-feedback-agent/internal/ingestion"
	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

const maxUploadBytes = 32 << 20 // 32 MB

// Runner is the part of the agent the server drives
type Runner interface {
	Run(ctx context.Context, batchLimit int) (*models.RunLog, error)
	Evaluate(filename string, data []byte) (models.ScoreRecord, bool)
	JobDescription() string
}

// RunHistory reads back persisted runs
type RunHistory interface {
	RunIDs(ctx context.Context) ([]string, error)
	Entries(ctx context.Context, runID string) ([]models.RunLogEntry, error)
}

// Options configure a Server
type Options struct {
	DefaultLimit int
	Sink         export.Sink
	History      RunHistory
	Uploads      *ingestion.FileHandler
}

// Server handles HTTP requests
type Server struct {
	runner Runner
	opts   Options
	logger *zap.Logger

	runMu sync.Mutex // one pipeline run at a time

	mu   sync.RWMutex
	last *models.RunLog
}

// ScoredUpload is one row of the POST /score response
type ScoredUpload struct {
	Filename           string `json:"filename"`
	ExtractionDegraded bool   `json:"extraction_degraded"`
	models.ScoreRecord
}

// NewServer creates a new API server
func NewServer(runner Runner, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	return &Server{
		runner: runner,
		opts:   opts,
		logger: logger,
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /run", s.handleRun)
	mux.HandleFunc("POST /score", s.handleScore)
	mux.HandleFunc("GET /report", s.handleReport)
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.loggingMiddleware(mux)
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service":         "Resume Feedback Agent",
		"version":         "1.0.0",
		"job_description": s.runner.JobDescription(),
		"endpoints": map[string]string{
			"POST /run?limit=N":     "Fetch, score and answer up to N resumes",
			"POST /score":           "Score uploaded resumes without sending mail",
			"GET /report":           "Get the run log of the last run",
			"GET /report?run_id=ID": "Get the stored entries of a past run",
			"GET /runs":             "List stored run ids, most recent first",
			"GET /health":           "Health check",
		},
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleRun executes one pipeline run
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}

	if !s.runMu.TryLock() {
		s.respondError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.runMu.Unlock()

	// a client hanging up must not stop a run half way through the mailbox
	ctx := context.WithoutCancel(r.Context())

	runLog, err := s.runner.Run(ctx, limit)
	if runLog != nil {
		s.mu.Lock()
		s.last = runLog
		s.mu.Unlock()

		if s.opts.Sink != nil {
			if err := s.opts.Sink.Write(ctx, runLog); err != nil {
				s.logger.Error("failed to persist run log", zap.String("run_id", runLog.RunID), zap.Error(err))
			}
		}
	}

	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, agent.ErrFetchUnavailable):
			status = http.StatusBadGateway
		case errors.Is(err, agent.ErrJobDescriptionMissing):
			status = http.StatusUnprocessableEntity
		}
		s.logger.Error("run failed", zap.Error(err))
		s.respondError(w, status, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, runLog)
}

// handleScore scores uploaded files against the job description
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse form: %v", err))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	results := make([]ScoredUpload, 0, len(files))
	for _, fileHeader := range files {
		if !ingestion.IsSupportedAttachment(fileHeader.Filename) {
			s.logger.Info("skipping unsupported file type", zap.String("file", fileHeader.Filename))
			continue
		}

		data, err := s.readUpload(fileHeader)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		record, degraded := s.runner.Evaluate(fileHeader.Filename, data)
		results = append(results, ScoredUpload{
			Filename:           fileHeader.Filename,
			ExtractionDegraded: degraded,
			ScoreRecord:        record,
		})
	}

	s.respondJSON(w, http.StatusOK, results)
}

// readUpload returns the upload bytes, keeping a copy when an uploads directory is set
func (s *Server) readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	if s.opts.Uploads == nil {
		return io.ReadAll(file)
	}

	path, err := s.opts.Uploads.SaveUploadedFile(fileHeader.Filename, file)
	if err != nil {
		return nil, fmt.Errorf("failed to save file %s: %w", fileHeader.Filename, err)
	}
	return s.opts.Uploads.Open(path)
}

// handleReport returns the run log of the last run, or the stored entries of
// the run named by run_id
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		s.handleStoredReport(w, r, runID)
		return
	}

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last == nil {
		s.respondError(w, http.StatusNotFound, "no results available, run the pipeline first")
		return
	}

	s.respondJSON(w, http.StatusOK, last)
}

func (s *Server) handleStoredReport(w http.ResponseWriter, r *http.Request, runID string) {
	if s.opts.History == nil {
		s.respondError(w, http.StatusNotFound, "run history is not configured")
		return
	}

	entries, err := s.opts.History.Entries(r.Context(), runID)
	if err != nil {
		s.logger.Error("failed to read run history", zap.String("run_id", runID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to read run history")
		return
	}
	if len(entries) == 0 {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("no entries stored for run %s", runID))
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"entries": entries,
	})
}

// handleRuns lists stored run ids
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.respondError(w, http.StatusNotFound, "run history is not configured")
		return
	}

	ids, err := s.opts.History.RunIDs(r.Context())
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"runs": ids})
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
