package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/judgeserver/internal/services"
	"github.com/jjudge-oj/judgeserver/types"
	"github.com/sirupsen/logrus"
)

// SubmissionHandler provides HTTP handlers for practice submissions.
type SubmissionHandler struct {
	submissionService *services.SubmissionService
	log               logrus.FieldLogger
}

func NewSubmissionHandler(submissionService *services.SubmissionService, log logrus.FieldLogger) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService, log: log}
}

// SubmissionRouter registers submission routes on the given router.
func SubmissionRouter(r chi.Router, submissionService *services.SubmissionService, authMiddleware func(http.Handler) http.Handler, log logrus.FieldLogger) {
	handler := NewSubmissionHandler(submissionService, log)

	r.Use(authMiddleware)
	r.Post("/", handler.Submit)
	r.Get("/", handler.List)
	r.Get("/stats", handler.Stats)
	r.Get("/{submissionID}", handler.Get)
}

// Submit judges the submission synchronously and returns the terminal record.
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req services.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submission, err := h.submissionService.Submit(r.Context(), viewer.UserID, req)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to submit")
		return
	}
	submission, err = h.submissionService.ForViewer(r.Context(), submission, viewer)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch submission")
		return
	}
	writeJSON(w, http.StatusCreated, submission)
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "submissionID"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid submission id")
		return
	}

	submission, err := h.submissionService.Get(r.Context(), id, viewer)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch submission")
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// List returns the caller's submissions, optionally filtered by problem_id
// and verdict.
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var filter types.SubmissionFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("problem_id")); raw != "" {
		filter.ProblemID, err = strconv.Atoi(raw)
		if err != nil || filter.ProblemID < 1 {
			writeError(w, http.StatusBadRequest, "invalid problem id")
			return
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("verdict")); raw != "" {
		verdict, ok := types.ParseVerdict(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid verdict")
			return
		}
		filter.Verdict = &verdict
	}

	items, total, err := h.submissionService.List(r.Context(), viewer, filter, offset, limit)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list submissions")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Submission]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *SubmissionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	stats, err := h.submissionService.Stats(r.Context(), viewer.UserID)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
