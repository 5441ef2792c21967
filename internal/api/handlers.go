package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kodejudge/kodejudge/internal/config"
	"github.com/kodejudge/kodejudge/internal/queue"
	"github.com/kodejudge/kodejudge/internal/sandbox"
	"github.com/kodejudge/kodejudge/internal/state"
)

// Store is the persistence surface the API uses.
type Store interface {
	CreateSubmission(ctx context.Context, sub *state.Submission) error
	CreateSubmissions(ctx context.Context, subs []*state.Submission) error
	GetSubmission(ctx context.Context, id string) (*state.Submission, error)
	GetSubmissions(ctx context.Context, ids []string) ([]*state.Submission, error)
	ListSubmissions(ctx context.Context, page, pageSize int) ([]*state.Submission, int, error)
	DeleteSubmission(ctx context.Context, id string) error
	GetLanguage(ctx context.Context, id int) (*state.Language, error)
	ListLanguages(ctx context.Context) ([]*state.Language, error)
	CountSubmissions(ctx context.Context) (int64, error)
	CountLanguages(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// JobQueue is the submission queue surface the API uses.
type JobQueue interface {
	Enqueue(ctx context.Context, job *queue.Job) error
	Length(ctx context.Context) (int64, error)
	FailedCount(ctx context.Context) (int64, error)
	Name() string
}

// WorkerLister reads live worker entries from the registry.
type WorkerLister interface {
	List(ctx context.Context) ([]*queue.WorkerInfo, error)
}

// RedisPinger is the slice of the Redis client health checks need.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Handler contains all HTTP handlers for the judge API.
type Handler struct {
	config  *config.Config
	store   Store
	queue   JobQueue
	workers WorkerLister
	redis   RedisPinger
	started time.Time

	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(cfg *config.Config, store Store, q JobQueue, workers WorkerLister, rdb RedisPinger) *Handler {
	return &Handler{
		config:       cfg,
		store:        store,
		queue:        q,
		workers:      workers,
		redis:        rdb,
		started:      time.Now(),
		waitTimeout:  15 * time.Second,
		pollInterval: 500 * time.Millisecond,
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// Root greets API consumers and points at the documentation.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message":       "Welcome to KodeJudge API",
		"documentation": "/docs",
		"redoc":         "/redoc",
	})
}

type createSubmissionRequest struct {
	SourceCode      string                 `json:"source_code"`
	LanguageID      int                    `json:"language_id"`
	Stdin           *string                `json:"stdin"`
	AdditionalFiles []state.AdditionalFile `json:"additional_files"`
	ExpectedOutput  *string                `json:"expected_output"`

	CPUTimeLimit              *float64 `json:"cpu_time_limit"`
	CPUExtraTime              *float64 `json:"cpu_extra_time"`
	WallTimeLimit             *float64 `json:"wall_time_limit"`
	MemoryLimit               *int     `json:"memory_limit"`
	MaxProcessesAndOrThreads  *int     `json:"max_processes_and_or_threads"`
	MaxFileSize               *int     `json:"max_file_size"`
	NumberOfRuns              *int     `json:"number_of_runs"`
	EnablePerProcessTimeLimit *bool    `json:"enable_per_process_and_thread_time_limit"`
	EnablePerProcessMemLimit  *bool    `json:"enable_per_process_and_thread_memory_limit"`
	RedirectStderrToStdout    *bool    `json:"redirect_stderr_to_stdout"`
	EnableNetwork             *bool    `json:"enable_network"`
}

// validateSubmissionRequest checks request invariants and returns an
// error message, or "" when the request is valid.
func validateSubmissionRequest(req *createSubmissionRequest) string {
	if strings.TrimSpace(req.SourceCode) == "" {
		return "source_code cannot be blank"
	}

	positives := []struct {
		name string
		ok   bool
	}{
		{"cpu_time_limit", req.CPUTimeLimit == nil || *req.CPUTimeLimit > 0},
		{"cpu_extra_time", req.CPUExtraTime == nil || *req.CPUExtraTime > 0},
		{"wall_time_limit", req.WallTimeLimit == nil || *req.WallTimeLimit > 0},
		{"memory_limit", req.MemoryLimit == nil || *req.MemoryLimit > 0},
		{"max_processes_and_or_threads", req.MaxProcessesAndOrThreads == nil || *req.MaxProcessesAndOrThreads > 0},
		{"max_file_size", req.MaxFileSize == nil || *req.MaxFileSize > 0},
		{"number_of_runs", req.NumberOfRuns == nil || *req.NumberOfRuns > 0},
	}
	for _, p := range positives {
		if !p.ok {
			return p.name + " must be greater than 0"
		}
	}

	for _, f := range req.AdditionalFiles {
		if !sandbox.ValidFileName(f.Name) {
			return fmt.Sprintf("Invalid file name in additional_files: %q", f.Name)
		}
	}
	return ""
}

func newSubmission(req *createSubmissionRequest) *state.Submission {
	return &state.Submission{
		ID:              uuid.New().String(),
		SourceCode:      req.SourceCode,
		LanguageID:      req.LanguageID,
		Stdin:           req.Stdin,
		AdditionalFiles: req.AdditionalFiles,
		ExpectedOutput:  req.ExpectedOutput,

		CPUTimeLimit:              req.CPUTimeLimit,
		CPUExtraTime:              req.CPUExtraTime,
		WallTimeLimit:             req.WallTimeLimit,
		MemoryLimit:               req.MemoryLimit,
		MaxProcessesAndOrThreads:  req.MaxProcessesAndOrThreads,
		MaxFileSize:               req.MaxFileSize,
		NumberOfRuns:              req.NumberOfRuns,
		EnablePerProcessTimeLimit: req.EnablePerProcessTimeLimit,
		EnablePerProcessMemLimit:  req.EnablePerProcessMemLimit,
		RedirectStderrToStdout:    req.RedirectStderrToStdout,
		EnableNetwork:             req.EnableNetwork,

		Status:    state.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// CreateSubmission accepts a submission, persists it and queues it for
// execution. With wait=true it blocks until the result is ready.
func (h *Handler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if queryBool(r, "base64_encoded") {
		if err := decodeSubmissionRequest(&req); err != nil {
			h.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if msg := validateSubmissionRequest(&req); msg != "" {
		h.errorResponse(w, msg, http.StatusBadRequest)
		return
	}

	lang, err := h.store.GetLanguage(ctx, req.LanguageID)
	if errors.Is(err, state.ErrNotFound) {
		h.errorResponse(w, fmt.Sprintf("Language with ID %d is not supported.", req.LanguageID), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.errorResponse(w, "failed to load language", http.StatusInternalServerError)
		return
	}

	sub := newSubmission(&req)
	if err := h.store.CreateSubmission(ctx, sub); err != nil {
		h.errorResponse(w, "failed to create submission", http.StatusInternalServerError)
		return
	}

	if err := h.queue.Enqueue(ctx, &queue.Job{Submission: sub, Language: lang}); err != nil {
		h.errorResponse(w, "failed to enqueue submission", http.StatusInternalServerError)
		return
	}

	if queryBool(r, "wait") {
		h.waitForSubmission(w, r, sub.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": sub.ID})
}

// waitForSubmission polls until the submission reaches a terminal
// status and then returns it in full, or answers 408 when the wait
// budget runs out.
func (h *Handler) waitForSubmission(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	deadline := time.After(h.waitTimeout)

	for {
		sub, err := h.store.GetSubmission(ctx, id)
		if err != nil {
			h.errorResponse(w, "failed to get submission", http.StatusInternalServerError)
			return
		}
		if sub.Status == state.StatusFinished || sub.Status == state.StatusError {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sub)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline:
			h.errorResponse(w, "Request timed out while waiting for submission to complete.", http.StatusRequestTimeout)
			return
		case <-time.After(h.pollInterval):
		}
	}
}

// CreateSubmissionBatch accepts a list of submissions and creates them
// atomically. It responds with the new IDs in request order.
func (h *Handler) CreateSubmissionBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	base64Encoded := queryBool(r, "base64_encoded")

	var reqs []createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.errorResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	languages := map[int]*state.Language{}
	subs := make([]*state.Submission, 0, len(reqs))
	jobs := make([]*queue.Job, 0, len(reqs))

	for i := range reqs {
		req := &reqs[i]
		if base64Encoded {
			if err := decodeSubmissionRequest(req); err != nil {
				h.errorResponse(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if msg := validateSubmissionRequest(req); msg != "" {
			h.errorResponse(w, msg, http.StatusBadRequest)
			return
		}

		lang, ok := languages[req.LanguageID]
		if !ok {
			var err error
			lang, err = h.store.GetLanguage(ctx, req.LanguageID)
			if errors.Is(err, state.ErrNotFound) {
				h.errorResponse(w, fmt.Sprintf("Language with ID %d is not supported.", req.LanguageID), http.StatusBadRequest)
				return
			}
			if err != nil {
				h.errorResponse(w, "failed to load language", http.StatusInternalServerError)
				return
			}
			languages[req.LanguageID] = lang
		}

		sub := newSubmission(req)
		subs = append(subs, sub)
		jobs = append(jobs, &queue.Job{Submission: sub, Language: lang})
	}

	if err := h.store.CreateSubmissions(ctx, subs); err != nil {
		h.errorResponse(w, "failed to create submissions", http.StatusInternalServerError)
		return
	}

	for _, job := range jobs {
		if err := h.queue.Enqueue(ctx, job); err != nil {
			h.errorResponse(w, "failed to enqueue submission", http.StatusInternalServerError)
			return
		}
	}

	ids := make([]map[string]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, map[string]string{"id": sub.ID})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ids)
}

// GetSubmission returns a single submission with field projection and
// optional base64 encoding applied.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := uuid.Parse(id); err != nil {
		h.errorResponse(w, "Submission not found", http.StatusNotFound)
		return
	}

	sub, err := h.store.GetSubmission(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		h.errorResponse(w, "Submission not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.errorResponse(w, "failed to get submission", http.StatusInternalServerError)
		return
	}

	fields := parseFields(r.URL.Query().Get("fields"))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(renderSubmission(sub, queryBool(r, "base64_encoded"), fields))
}

// GetSubmissionBatch returns the submissions named by the ids query
// parameter. Unknown IDs are silently skipped.
func (h *Handler) GetSubmissionBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids := make([]string, 0)
	for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
		raw = strings.TrimSpace(raw)
		if _, err := uuid.Parse(raw); err != nil {
			h.errorResponse(w, "Invalid UUID format found in 'ids' parameter.", http.StatusBadRequest)
			return
		}
		ids = append(ids, raw)
	}

	subs, err := h.store.GetSubmissions(ctx, ids)
	if err != nil {
		h.errorResponse(w, "failed to get submissions", http.StatusInternalServerError)
		return
	}

	base64Encoded := queryBool(r, "base64_encoded")
	fields := parseFields(r.URL.Query().Get("fields"))

	items := make([]map[string]interface{}, 0, len(subs))
	for _, sub := range subs {
		items = append(items, renderSubmission(sub, base64Encoded, fields))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// ListSubmissions returns a page of submissions, newest first.
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, ok := queryInt(r, "page", 1)
	if !ok || page < 1 {
		h.errorResponse(w, "Invalid 'page' parameter.", http.StatusBadRequest)
		return
	}
	pageSize, ok := queryInt(r, "page_size", 10)
	if !ok || pageSize < 1 || pageSize > 100 {
		h.errorResponse(w, "Invalid 'page_size' parameter.", http.StatusBadRequest)
		return
	}

	subs, total, err := h.store.ListSubmissions(ctx, page, pageSize)
	if err != nil {
		h.errorResponse(w, "failed to list submissions", http.StatusInternalServerError)
		return
	}

	base64Encoded := queryBool(r, "base64_encoded")
	fields := parseFields(r.URL.Query().Get("fields"))

	items := make([]map[string]interface{}, 0, len(subs))
	for _, sub := range subs {
		items = append(items, renderSubmission(sub, base64Encoded, fields))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items":        items,
		"total_items":  total,
		"total_pages":  (total + pageSize - 1) / pageSize,
		"current_page": page,
		"page_size":    pageSize,
	})
}

// DeleteSubmission removes a submission.
func (h *Handler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := uuid.Parse(id); err != nil {
		h.errorResponse(w, "Submission not found", http.StatusNotFound)
		return
	}

	err := h.store.DeleteSubmission(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		h.errorResponse(w, "Submission not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.errorResponse(w, "failed to delete submission", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListLanguages returns the language catalog in summary form.
func (h *Handler) ListLanguages(w http.ResponseWriter, r *http.Request) {
	langs, err := h.store.ListLanguages(r.Context())
	if err != nil {
		h.errorResponse(w, "failed to list languages", http.StatusInternalServerError)
		return
	}

	out := make([]state.LanguageRef, 0, len(langs))
	for _, lang := range langs {
		out = append(out, state.LanguageRef{ID: lang.ID, Name: lang.Name, Version: lang.Version})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// GetLanguage returns the full descriptor of one language.
func (h *Handler) GetLanguage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.errorResponse(w, "Invalid language ID", http.StatusBadRequest)
		return
	}

	lang, err := h.store.GetLanguage(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		h.errorResponse(w, "Language not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.errorResponse(w, "failed to get language", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lang)
}

// renderSubmission applies base64 encoding and field projection.
func renderSubmission(sub *state.Submission, base64Encoded bool, fields map[string]bool) map[string]interface{} {
	if base64Encoded {
		sub = encodeSubmission(sub)
	}
	return projectSubmission(sub, fields)
}

func queryBool(r *http.Request, name string) bool {
	v := strings.ToLower(r.URL.Query().Get(name))
	return v == "true" || v == "1"
}

func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
