package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/delivery/http/request"
	"github.com/user/crawltest-service/internal/delivery/http/response"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/internal/usecase"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handler struct {
	jobs     usecase.JobManager
	checks   map[string]Pinger
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates the API handler. checks are pinged by the health endpoint, keyed by name.
func NewHandler(jobs usecase.JobManager, checks map[string]Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		jobs:     jobs,
		checks:   checks,
		validate: validator.New(),
		logger:   logger.Named("http"),
	}
}

func (h *Handler) HandleCrawl(w http.ResponseWriter, r *http.Request) {
	websiteID := chi.URLParam(r, "id")

	var req request.CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	jobID, err := h.jobs.EnqueueCrawl(r.Context(), websiteID, req.Force)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.writeJSONError(w, "Website not found", http.StatusNotFound)
		case errors.Is(err, usecase.ErrCrawlInProgress):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			h.internalError(w, "Failed to enqueue crawl", err, zap.String("website_id", websiteID))
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.JobAcceptedResponse{
		Status:  "accepted",
		Message: "Website queued for crawling",
		JobID:   jobID,
	})
}

func (h *Handler) HandleWebsiteStatus(w http.ResponseWriter, r *http.Request) {
	websiteID := chi.URLParam(r, "id")
	view, err := h.jobs.GetWebsiteStatus(r.Context(), websiteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeJSONError(w, "Website not found", http.StatusNotFound)
			return
		}
		h.internalError(w, "Failed to get website status", err, zap.String("website_id", websiteID))
		return
	}

	ws := view.Website
	h.writeJSON(w, http.StatusOK, response.WebsiteStatusResponse{
		ID:          ws.ID,
		Status:      string(ws.Status),
		LastCrawled: ws.LastCrawled,
		PagesFound:  view.PagesFound,
		LastError:   ws.LastError,
		CrawlErrors: ws.CrawlErrors,
	})
}

func (h *Handler) HandleGenerateTests(w http.ResponseWriter, r *http.Request) {
	websiteID := chi.URLParam(r, "id")
	cases, source, err := h.jobs.GenerateTests(r.Context(), websiteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeJSONError(w, "Website not found", http.StatusNotFound)
			return
		}
		h.internalError(w, "Failed to generate test cases", err, zap.String("website_id", websiteID))
		return
	}

	ids := make([]string, len(cases))
	for i, tc := range cases {
		ids[i] = tc.ID
	}
	h.writeJSON(w, http.StatusCreated, response.GenerateTestsResponse{Count: len(cases), Source: string(source), TestCaseIDs: ids})
}

func (h *Handler) HandleCreateTestRuns(w http.ResponseWriter, r *http.Request) {
	var req request.CreateTestRunsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeJSONError(w, "test_case_ids and user_id are required", http.StatusBadRequest)
		return
	}

	runIDs, err := h.jobs.EnqueueTestExecution(r.Context(), req.TestCaseIDs, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrNoTestCases):
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrNotFound):
			h.writeJSONError(w, err.Error(), http.StatusNotFound)
		default:
			h.internalError(w, "Failed to enqueue test runs", err)
		}
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.TestRunsAcceptedResponse{Status: "accepted", TestRunIDs: runIDs})
}

func (h *Handler) HandleGetTestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.jobs.GetTestRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.lookupError(w, "Test run not found", err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) HandleDispatchSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := chi.URLParam(r, "id")
	jobID, err := h.jobs.EnqueueScheduleDispatch(r.Context(), scheduleID)
	if err != nil {
		h.internalError(w, "Failed to enqueue schedule dispatch", err, zap.String("schedule_id", scheduleID))
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.JobAcceptedResponse{
		Status:  "accepted",
		Message: "Schedule queued for dispatch",
		JobID:   jobID,
	})
}

func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.lookupError(w, "Job not found", err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := response.HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	h.writeJSON(w, code, resp)
}

func (h *Handler) lookupError(w http.ResponseWriter, notFoundMsg string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		h.writeJSONError(w, notFoundMsg, http.StatusNotFound)
		return
	}
	h.internalError(w, "Lookup failed", err)
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	h.logger.Error(msg, append(fields, zap.Error(err))...)
	h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
