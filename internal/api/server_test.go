package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/resume-feedback-agent/internal/agent"
	"github.com/fmuoria/resume-feedback-agent/internal/ingestion"
	"github.com/fmuoria/resume-feedback-agent/internal/models"
)

type fakeRunner struct {
	mu        sync.Mutex
	runLog    *models.RunLog
	err       error
	gotLimits []int
	block     chan struct{}
	evaluated []string
	ctxErrs   []error
}

func (f *fakeRunner) Run(ctx context.Context, limit int) (*models.RunLog, error) {
	f.mu.Lock()
	f.gotLimits = append(f.gotLimits, limit)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.runLog, f.err
}

func (f *fakeRunner) Evaluate(filename string, data []byte) (models.ScoreRecord, bool) {
	f.evaluated = append(f.evaluated, filename)
	return models.ScoreRecord{YearsExperience: len(data), TotalScore: 10}, false
}

func (f *fakeRunner) JobDescription() string {
	return "Python and NLP engineer"
}

type fakeHistory struct {
	ids     []string
	entries map[string][]models.RunLogEntry
	err     error
}

func (h *fakeHistory) RunIDs(context.Context) ([]string, error) {
	return h.ids, h.err
}

func (h *fakeHistory) Entries(_ context.Context, runID string) ([]models.RunLogEntry, error) {
	return h.entries[runID], h.err
}

type recordingSink struct {
	written []*models.RunLog
	err     error
}

func (r *recordingSink) Write(_ context.Context, runLog *models.RunLog) error {
	r.written = append(r.written, runLog)
	return r.err
}

func oneEntryLog() *models.RunLog {
	runLog := models.NewRunLog(1)
	runLog.Append(models.RunLogEntry{
		Sender:      "jane@example.com",
		ScoreRecord: models.ScoreRecord{TotalScore: 64},
		Delivered:   true,
	})
	runLog.Finish()
	return runLog
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(&fakeRunner{}, Options{}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestHandleRoot(t *testing.T) {
	srv := NewServer(&fakeRunner{}, Options{}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Resume Feedback Agent")
	assert.Contains(t, rec.Body.String(), "Python and NLP engineer")

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportBeforeRun(t *testing.T) {
	srv := NewServer(&fakeRunner{}, Options{}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunThenReport(t *testing.T) {
	runLog := oneEntryLog()
	runner := &fakeRunner{runLog: runLog}
	sink := &recordingSink{}
	srv := NewServer(runner, Options{DefaultLimit: 4, Sink: sink}, nil)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.RunLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, runLog.RunID, got.RunID)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, 64, got.Entries[0].TotalScore)

	assert.Equal(t, []int{4}, runner.gotLimits)
	require.Len(t, sink.written, 1)
	assert.Same(t, runLog, sink.written[0])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), runLog.RunID)
}

func TestRunLimitParam(t *testing.T) {
	runner := &fakeRunner{runLog: oneEntryLog()}
	router := NewServer(runner, Options{}, nil).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run?limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{3}, runner.gotLimits)

	for _, bad := range []string{"0", "-1", "ten"} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
	assert.Len(t, runner.gotLimits, 1)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fetch unavailable", fmt.Errorf("%w: token expired", agent.ErrFetchUnavailable), http.StatusBadGateway},
		{"no job description", agent.ErrJobDescriptionMissing, http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			srv := NewServer(&fakeRunner{err: tt.err}, Options{Sink: sink}, nil)
			router := srv.Router()

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.Empty(t, sink.written)

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestRunSinkFailureStillResponds(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	srv := NewServer(&fakeRunner{runLog: oneEntryLog()}, Options{Sink: sink}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunIgnoresClientDisconnect(t *testing.T) {
	runner := &fakeRunner{runLog: oneEntryLog()}
	sink := &recordingSink{}
	router := NewServer(runner, Options{Sink: sink}, nil).Router()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/run", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.ctxErrs, 1)
	assert.NoError(t, runner.ctxErrs[0])
	assert.Len(t, sink.written, 1)
}

func TestRunPersistsPartialLogOnError(t *testing.T) {
	runLog := oneEntryLog()
	sink := &recordingSink{}
	srv := NewServer(&fakeRunner{runLog: runLog, err: context.Canceled}, Options{Sink: sink}, nil)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, sink.written, 1)
	assert.Same(t, runLog, sink.written[0])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), runLog.RunID)
}

func TestRunHistory(t *testing.T) {
	history := &fakeHistory{
		ids: []string{"run-2", "run-1"},
		entries: map[string][]models.RunLogEntry{
			"run-1": {{Sender: "old@example.com", Delivered: true}},
		},
	}
	router := NewServer(&fakeRunner{}, Options{History: history}, nil).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":["run-2","run-1"]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report?run_id=run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "old@example.com")
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report?run_id=missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	history.err = errors.New("database is locked")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunHistoryNotConfigured(t *testing.T) {
	router := NewServer(&fakeRunner{}, Options{}, nil).Router()

	for _, target := range []string{"/runs", "/report?run_id=x"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	runner := &fakeRunner{runLog: oneEntryLog(), block: make(chan struct{})}
	router := NewServer(runner, Options{}, nil).Router()

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
		done <- rec.Code
	}()

	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.gotLimits) == 1
	}, time.Second, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(runner.block)
	assert.Equal(t, http.StatusOK, <-done)
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestHandleScore(t *testing.T) {
	runner := &fakeRunner{}
	uploads := filepath.Join(t.TempDir(), "uploads")
	srv := NewServer(runner, Options{Uploads: ingestion.NewFileHandler(uploads)}, nil)

	body, contentType := multipartBody(t, map[string]string{
		"cv.pdf":    "12345",
		"notes.txt": "ignored",
	})
	req := httptest.NewRequest(http.MethodPost, "/score", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []ScoredUpload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "cv.pdf", results[0].Filename)
	assert.Equal(t, 5, results[0].YearsExperience)
	assert.Equal(t, []string{"cv.pdf"}, runner.evaluated)

	saved, err := os.ReadFile(filepath.Join(uploads, "cv.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "12345", string(saved))
}

func TestHandleScore_NoFiles(t *testing.T) {
	srv := NewServer(&fakeRunner{}, Options{}, nil)

	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/score", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
