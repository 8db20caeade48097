package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
	"github.com/nickimizell/property-dashboard-sub000/internal/pipeline"
	"github.com/nickimizell/property-dashboard-sub000/internal/pkg/httputil"
	"github.com/nickimizell/property-dashboard-sub000/internal/repository/postgres"
)

// StatsSource exposes the pipeline counters.
type StatsSource interface {
	Snapshot() pipeline.StatsSnapshot
}

// Runner is the batch runner as seen by the API.
type Runner interface {
	Status() pipeline.RunnerStatus
	RunOnce(ctx context.Context) (pipeline.BatchResult, error)
}

// RecordReader reads processing records.
type RecordReader interface {
	Get(ctx context.Context, id string) (*domain.ProcessingRecord, error)
	List(ctx context.Context, f postgres.RecordFilter) ([]domain.ProcessingRecord, int, error)
}

// DocumentLister lists the documents linked to a property.
type DocumentLister interface {
	ListByProperty(ctx context.Context, propertyID string) ([]domain.ExtractedDocument, error)
}

// TaskLister lists the tasks filed against a property.
type TaskLister interface {
	ListTasks(ctx context.Context, propertyID string) ([]domain.Task, error)
}

// Handlers serves the status and record endpoints. Runner, Records and the
// property listers may be nil; their endpoints then answer 503.
type Handlers struct {
	stats     StatsSource
	runner    Runner
	records   RecordReader
	documents DocumentLister
	tasks     TaskLister
	startTime time.Time
}

// NewHandlers creates the API handlers.
func NewHandlers(stats StatsSource, runner Runner, records RecordReader) *Handlers {
	return &Handlers{stats: stats, runner: runner, records: records, startTime: time.Now()}
}

// WithProperties enables the per-property document and task listings.
func (h *Handlers) WithProperties(documents DocumentLister, tasks TaskLister) *Handlers {
	h.documents = documents
	h.tasks = tasks
	return h
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Stats  pipeline.StatsSnapshot `json:"stats"`
	Runner *pipeline.RunnerStatus `json:"runner,omitempty"`
	Uptime string                 `json:"uptime"`
}

// HandleStatus returns the pipeline counters and runner state.
//
//	GET /api/status
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Stats:  h.stats.Snapshot(),
		Uptime: formatUptime(time.Since(h.startTime)),
	}
	if h.runner != nil {
		st := h.runner.Status()
		resp.Runner = &st
	}
	httputil.OK(w, resp)
}

// HandleRunBatch processes one batch now and returns its result.
//
//	POST /api/batches
func (h *Handlers) HandleRunBatch(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "runner not configured")
		return
	}
	res, err := h.runner.RunOnce(r.Context())
	if errors.Is(err, pipeline.ErrStopped) {
		httputil.Conflict(w, "runner_stopped", "runner is stopped")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Accepted(w, res)
}

// PaginationMeta describes a page of a list response.
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// RecordPage is the body of GET /api/records.
type RecordPage struct {
	Data       []domain.ProcessingRecord `json:"data"`
	Pagination PaginationMeta            `json:"pagination"`
}

// HandleListRecords lists processing records, newest first.
// Query: status, manual_review, property_id, page, limit (max 200).
//
//	GET /api/records
func (h *Handlers) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "record store not configured")
		return
	}
	page := httputil.QueryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := httputil.QueryInt(r, "limit", 50)
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	f := postgres.RecordFilter{
		Status:     domain.RecordStatus(r.URL.Query().Get("status")),
		PropertyID: r.URL.Query().Get("property_id"),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	if review, ok := httputil.QueryBool(r, "manual_review"); ok {
		f.ManualReview = &review
	}

	recs, total, err := h.records.List(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.ProcessingRecord{}
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	if totalPages < 1 {
		totalPages = 1
	}
	httputil.OK(w, RecordPage{
		Data: recs,
		Pagination: PaginationMeta{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    page < totalPages,
		},
	})
}

// HandleGetRecord returns one processing record.
//
//	GET /api/records/{id}
func (h *Handlers) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "record store not configured")
		return
	}
	rec, err := h.records.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "record not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// HandlePropertyDocuments lists the documents filed against a property.
//
//	GET /api/properties/{id}/documents
func (h *Handlers) HandlePropertyDocuments(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "document store not configured")
		return
	}
	docs, err := h.documents.ListByProperty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.ExtractedDocument{}
	}
	httputil.OK(w, map[string]interface{}{"data": docs, "count": len(docs)})
}

// HandlePropertyTasks lists the tasks generated for a property.
//
//	GET /api/properties/{id}/tasks
func (h *Handlers) HandlePropertyTasks(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "action store not configured")
		return
	}
	tasks, err := h.tasks.ListTasks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	httputil.OK(w, map[string]interface{}{"data": tasks, "count": len(tasks)})
}
