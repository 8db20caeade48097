package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nickimizell/property-dashboard-sub000/internal/config"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/pipeline"
	"github.com/nickimizell/property-dashboard-sub000/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStats struct{ snap pipeline.StatsSnapshot }

func (s staticStats) Snapshot() pipeline.StatsSnapshot { return s.snap }

type stubRunner struct {
	status pipeline.RunnerStatus
	result pipeline.BatchResult
	err    error
	runs   int
}

func (r *stubRunner) Status() pipeline.RunnerStatus { return r.status }

func (r *stubRunner) RunOnce(ctx context.Context) (pipeline.BatchResult, error) {
	r.runs++
	return r.result, r.err
}

type stubRecords struct {
	recs       []domain.ProcessingRecord
	total      int
	lastFilter postgres.RecordFilter
	err        error
}

func (s *stubRecords) Get(ctx context.Context, id string) (*domain.ProcessingRecord, error) {
	for _, r := range s.recs {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (s *stubRecords) List(ctx context.Context, f postgres.RecordFilter) ([]domain.ProcessingRecord, int, error) {
	s.lastFilter = f
	return s.recs, s.total, s.err
}

func setupTestServer(t *testing.T, runner Runner, records RecordReader, probes ...Probe) *Server {
	t.Helper()
	stats := staticStats{snap: pipeline.StatsSnapshot{EmailsProcessed: 12, Duplicates: 3, ManualReviews: 2}}
	return NewServer(config.ServerConfig{Port: 8080, Host: "localhost"}, NewHandlers(stats, runner, records), NewHealthChecker(probes...))
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusReportsCountersAndRunner(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	runner := &stubRunner{status: pipeline.RunnerStatus{State: pipeline.RunnerIdle, Batches: 4, LastBatchAt: &at, LastBatchSize: 25}}
	s := setupTestServer(t, runner, nil)

	rec := do(t, s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(12), body.Stats.EmailsProcessed)
	assert.Equal(t, int64(3), body.Stats.Duplicates)
	require.NotNil(t, body.Runner)
	assert.Equal(t, pipeline.RunnerIdle, body.Runner.State)
	assert.Equal(t, 25, body.Runner.LastBatchSize)
}

func TestRunBatch(t *testing.T) {
	runner := &stubRunner{result: pipeline.BatchResult{Fetched: 2}}
	s := setupTestServer(t, runner, nil)

	rec := do(t, s, http.MethodPost, "/api/batches")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, runner.runs)

	runner.err = pipeline.ErrStopped
	rec = do(t, s, http.MethodPost, "/api/batches")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "runner_stopped")

	runner.err = errors.New("fetch: spool missing")
	rec = do(t, s, http.MethodPost, "/api/batches")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "spool missing")
}

func TestRunBatchWithoutRunner(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/batches").Code)
}

func TestListRecordsParsesFilters(t *testing.T) {
	records := &stubRecords{
		recs:  []domain.ProcessingRecord{{ID: "r1", Status: domain.StatusProcessed, RequiresManualReview: true}},
		total: 45,
	}
	s := setupTestServer(t, nil, records)

	rec := do(t, s, http.MethodGet, "/api/records?status=processed&manual_review=true&page=2&limit=20")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, domain.StatusProcessed, records.lastFilter.Status)
	require.NotNil(t, records.lastFilter.ManualReview)
	assert.True(t, *records.lastFilter.ManualReview)
	assert.Equal(t, 20, records.lastFilter.Limit)
	assert.Equal(t, 20, records.lastFilter.Offset)

	var page RecordPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasMore)
}

func TestListRecordsCapsLimit(t *testing.T) {
	records := &stubRecords{}
	s := setupTestServer(t, nil, records)

	rec := do(t, s, http.MethodGet, "/api/records?limit=5000&manual_review=maybe")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, records.lastFilter.Limit)
	assert.Nil(t, records.lastFilter.ManualReview)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestGetRecord(t *testing.T) {
	records := &stubRecords{recs: []domain.ProcessingRecord{{ID: "r1", MessageID: "m1@x"}}}
	s := setupTestServer(t, nil, records)

	rec := do(t, s, http.MethodGet, "/api/records/r1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message_id":"m1@x"`)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/records/missing").Code)
}

type stubProperty struct {
	docs  []domain.ExtractedDocument
	tasks []domain.Task
	err   error
	asked string
}

func (s *stubProperty) ListByProperty(ctx context.Context, propertyID string) ([]domain.ExtractedDocument, error) {
	s.asked = propertyID
	return s.docs, s.err
}

func (s *stubProperty) ListTasks(ctx context.Context, propertyID string) ([]domain.Task, error) {
	s.asked = propertyID
	return s.tasks, s.err
}

func TestPropertyListings(t *testing.T) {
	prop := &stubProperty{
		docs:  []domain.ExtractedDocument{{ID: "d1", DocumentType: domain.DocPurchaseAgreement}},
		tasks: []domain.Task{{ID: "t1", Title: "Update listing price to $80,000"}},
	}
	s := setupTestServer(t, nil, nil)
	s.router = SetupRoutes(NewHandlers(staticStats{}, nil, nil).WithProperties(prop, prop), NewHealthChecker(), nil)

	rec := do(t, s, http.MethodGet, "/api/properties/p-9/documents")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p-9", prop.asked)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), `"d1"`)

	rec = do(t, s, http.MethodGet, "/api/properties/p-9/tasks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Update listing price")

	prop.tasks = nil
	rec = do(t, s, http.MethodGet, "/api/properties/p-9/tasks")
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	prop.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/api/properties/p-9/documents").Code)
}

func TestPropertyListingsWithoutStores(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/properties/p-1/documents").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/properties/p-1/tasks").Code)
}
