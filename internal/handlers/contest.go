package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/judgeserver/internal/services"
	"github.com/jjudge-oj/judgeserver/types"
	"github.com/sirupsen/logrus"
)

// ContestHandler provides HTTP handlers for contests.
type ContestHandler struct {
	contestService    *services.ContestService
	submissionService *services.SubmissionService
	log               logrus.FieldLogger
}

func NewContestHandler(contestService *services.ContestService, submissionService *services.SubmissionService, log logrus.FieldLogger) *ContestHandler {
	return &ContestHandler{
		contestService:    contestService,
		submissionService: submissionService,
		log:               log,
	}
}

// ContestRouter registers contest routes on the given router.
func ContestRouter(
	r chi.Router,
	contestService *services.ContestService,
	submissionService *services.SubmissionService,
	authMiddleware func(http.Handler) http.Handler,
	log logrus.FieldLogger,
) {
	handler := NewContestHandler(contestService, submissionService, log)

	r.Use(authMiddleware)
	r.Get("/", handler.ListPublic)
	r.With(RequireRole(types.RoleAdmin)).Post("/", handler.Create)
	r.Get("/history", handler.History)
	r.Route("/{contestID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Post("/register", handler.Register)
		r.Post("/unregister", handler.Unregister)
		r.Post("/problems/{problemID}/submit", handler.Submit)
		r.Get("/submissions", handler.ListSubmissions)
		r.Get("/leaderboard", handler.Leaderboard)
	})
}

// ContestCreateRequest is the payload of POST /contests.
type ContestCreateRequest struct {
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         time.Time              `json:"end_time"`
	IsPublic        bool                   `json:"is_public"`
	MaxParticipants int                    `json:"max_participants"`
	Problems        []types.ContestProblem `json:"problems"`
}

func (h *ContestHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.contestService.ListPublic(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list contests")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[services.ContestSummary]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ContestHandler) Create(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req ContestCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.contestService.Create(r.Context(), types.Contest{
		Title:           req.Title,
		Description:     req.Description,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		CreatedBy:       viewer.UserID,
		IsPublic:        req.IsPublic,
		MaxParticipants: req.MaxParticipants,
		Problems:        req.Problems,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "failed to create contest")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ContestHandler) History(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	history, err := h.contestService.History(r.Context(), viewer.UserID)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to load contest history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *ContestHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contest, err := h.contestService.Get(r.Context(), id, viewer)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch contest")
		return
	}
	writeJSON(w, http.StatusOK, contest)
}

func (h *ContestHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.registration(w, r, h.contestService.Register)
}

func (h *ContestHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	h.registration(w, r, h.contestService.Unregister)
}

func (h *ContestHandler) registration(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, userID, contestID int) error) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := apply(r.Context(), viewer.UserID, id); err != nil {
		writeServiceError(w, h.log, err, "failed to update registration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	contestID, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	problemID, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req services.ContestSubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submission, err := h.contestService.Submit(r.Context(), viewer.UserID, contestID, problemID, req)
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

func (h *ContestHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.contestService.ListSubmissions(r.Context(), id, viewer, offset, limit)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list submissions")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Submission]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ContestHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "contestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	board, err := h.contestService.Leaderboard(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to compute leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, board)
}
