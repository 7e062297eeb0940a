package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/judgeserver/internal/services"
	"github.com/jjudge-oj/judgeserver/internal/visibility"
	"github.com/jjudge-oj/judgeserver/types"
	"github.com/sirupsen/logrus"
)

const (
	maxMultipartMemory  = 128 << 20
	maxBundleBytes      = 256 << 20
	formFieldBundle     = "bundle"
	formFieldVisible    = "visible"
	formFieldTitle      = "title"
	formFieldDesc       = "description"
	formFieldDifficulty = "difficulty"
	formFieldTimeLimit  = "time_limit"
	formFieldMemLimit   = "memory_limit"
	formFieldTags       = "tags"
)

// BundleFile represents an uploaded testcase bundle.
type BundleFile struct {
	Filename string
	Data     []byte
}

// ProblemHandler provides HTTP handlers for problems.
type ProblemHandler struct {
	problemService    *services.ProblemService
	submissionService *services.SubmissionService
	log               logrus.FieldLogger
}

// NewProblemHandler constructs a handler with the provided services.
func NewProblemHandler(problemService *services.ProblemService, submissionService *services.SubmissionService, log logrus.FieldLogger) *ProblemHandler {
	return &ProblemHandler{
		problemService:    problemService,
		submissionService: submissionService,
		log:               log,
	}
}

// ProblemRouter registers problem routes on the given router. Every route
// requires authentication.
func ProblemRouter(
	r chi.Router,
	problemService *services.ProblemService,
	submissionService *services.SubmissionService,
	authMiddleware func(http.Handler) http.Handler,
	log logrus.FieldLogger,
) {
	handler := NewProblemHandler(problemService, submissionService, log)
	setters := RequireRole(types.RoleProblemsetter, types.RoleAdmin)

	r.Use(authMiddleware)
	r.With(setters).Post("/", handler.ImportProblem)
	r.Route("/{problemID}", func(r chi.Router) {
		r.Get("/", handler.GetProblem)
		r.Get("/submissions", handler.ListProblemSubmissions)
		r.With(setters).Put("/testcases", handler.ReplaceTestcases)
	})
}

func (h *ProblemHandler) GetProblem(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem, err := h.problemService.View(r.Context(), id, viewer)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch problem")
		return
	}
	writeJSON(w, http.StatusOK, problem)
}

func (h *ProblemHandler) ListProblemSubmissions(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.submissionService.List(r.Context(), viewer, types.SubmissionFilter{ProblemID: id}, offset, limit)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list submissions")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Submission]{Items: items, Page: page, Limit: limit, Total: total})
}

// ImportProblem creates a problem from a multipart form carrying its
// metadata and a testcase bundle. The caller becomes the author.
func (h *ProblemHandler) ImportProblem(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	req, err := parseProblemForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem := types.Problem{
		AuthorID:    viewer.UserID,
		Title:       req.Title,
		Description: req.Description,
		Difficulty:  req.Difficulty,
		TimeLimit:   req.TimeLimit,
		MemoryLimit: req.MemoryLimit,
		Tags:        req.Tags,
	}
	created, err := h.problemService.Import(r.Context(), problem, req.Bundle.Filename, req.Bundle.Data, req.Visible)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to import problem")
		return
	}
	writeJSON(w, http.StatusCreated, visibility.Problem(created, viewer))
}

// ReplaceTestcases swaps a problem's testcase bundle. Only the author and
// admins may do this.
func (h *ProblemHandler) ReplaceTestcases(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem, err := h.problemService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch problem")
		return
	}
	if !visibility.CanSeeHidden(viewer, problem.AuthorID) {
		writeError(w, http.StatusForbidden, "only the problem author may replace testcases")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	visible, err := parseOrders(r.FormValue(formFieldVisible))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bundle, err := parseBundleFile(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.problemService.ReplaceTestcaseBundle(r.Context(), id, bundle.Filename, bundle.Data, visible); err != nil {
		writeServiceError(w, h.log, err, "failed to update testcase bundle")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProblemImportRequest represents the parsed multipart form payload.
type ProblemImportRequest struct {
	Title       string
	Description string
	Difficulty  string
	TimeLimit   int64
	MemoryLimit int64
	Tags        []string
	Visible     []int
	Bundle      BundleFile
}

func parseProblemForm(r *http.Request) (ProblemImportRequest, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return ProblemImportRequest{}, errors.New("invalid multipart form")
	}

	title := strings.TrimSpace(r.FormValue(formFieldTitle))
	if title == "" {
		return ProblemImportRequest{}, errors.New("title is required")
	}

	timeLimit, err := parseOptionalInt64(r.FormValue(formFieldTimeLimit))
	if err != nil || timeLimit < 0 {
		return ProblemImportRequest{}, errors.New("invalid time limit")
	}

	memoryLimit, err := parseOptionalInt64(r.FormValue(formFieldMemLimit))
	if err != nil || memoryLimit < 0 {
		return ProblemImportRequest{}, errors.New("invalid memory limit")
	}

	visible, err := parseOrders(r.FormValue(formFieldVisible))
	if err != nil {
		return ProblemImportRequest{}, err
	}

	bundle, err := parseBundleFile(r.MultipartForm)
	if err != nil {
		return ProblemImportRequest{}, err
	}

	return ProblemImportRequest{
		Title:       title,
		Description: strings.TrimSpace(r.FormValue(formFieldDesc)),
		Difficulty:  strings.TrimSpace(r.FormValue(formFieldDifficulty)),
		TimeLimit:   timeLimit,
		MemoryLimit: memoryLimit,
		Tags:        parseTags(r.FormValue(formFieldTags)),
		Visible:     visible,
		Bundle:      bundle,
	}, nil
}

func parseOptionalInt64(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

// parseOrders reads a comma-separated list of testcase orders ("1,2").
func parseOrders(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	orders := make([]int, 0, len(parts))
	for _, part := range parts {
		order, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || order < 1 {
			return nil, fmt.Errorf("invalid testcase order %q", part)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func parseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func parseBundleFile(form *multipart.Form) (BundleFile, error) {
	if form == nil {
		return BundleFile{}, errors.New("missing form data")
	}

	files := form.File[formFieldBundle]
	if len(files) == 0 {
		return BundleFile{}, errors.New("bundle file is required")
	}
	if len(files) > 1 {
		return BundleFile{}, errors.New("only one bundle file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return BundleFile{}, fmt.Errorf("failed to read bundle file: %w", err)
	}

	data, err := readFileLimited(file, maxBundleBytes)
	_ = file.Close()
	if err != nil {
		return BundleFile{}, err
	}

	return BundleFile{
		Filename: fileHeader.Filename,
		Data:     data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
