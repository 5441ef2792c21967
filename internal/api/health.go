package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/kodejudge/kodejudge/internal/queue"
)

// Version is reported by the health and info endpoints.
const Version = "1.0.0"

// DatabaseHealth reports database connectivity.
type DatabaseHealth struct {
	Status         string   `json:"status"`
	ResponseTimeMS *float64 `json:"response_time_ms,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// RedisHealth reports Redis connectivity.
type RedisHealth struct {
	Status         string   `json:"status"`
	ResponseTimeMS *float64 `json:"response_time_ms,omitempty"`
	Ping           string   `json:"ping,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// WorkerHealth reports queue depth and worker pool state.
type WorkerHealth struct {
	QueueName    string `json:"queue_name"`
	QueueSize    int64  `json:"queue_size"`
	WorkersTotal int    `json:"workers_total"`
	WorkersBusy  int    `json:"workers_busy"`
	WorkersIdle  int    `json:"workers_idle"`
	FailedJobs   int64  `json:"failed_jobs"`
	Status       string `json:"status"`
}

// HealthResponse is the aggregate health report.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Database  *DatabaseHealth `json:"database"`
	Redis     *RedisHealth    `json:"redis"`
	Workers   *WorkerHealth   `json:"workers"`
}

// SystemInfo is the info endpoint payload.
type SystemInfo struct {
	APIVersion              string  `json:"api_version"`
	GoVersion               string  `json:"go_version"`
	Environment             string  `json:"environment"`
	UptimeSeconds           float64 `json:"uptime_seconds"`
	SupportedLanguagesCount int     `json:"supported_languages_count"`
	TotalSubmissions        int64   `json:"total_submissions"`
}

func (h *Handler) checkDatabase(ctx context.Context) *DatabaseHealth {
	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		return &DatabaseHealth{Status: "unhealthy", Error: err.Error()}
	}
	ms := round2(time.Since(start).Seconds() * 1000)
	return &DatabaseHealth{Status: "healthy", ResponseTimeMS: &ms}
}

func (h *Handler) checkRedis(ctx context.Context) *RedisHealth {
	start := time.Now()
	val, err := h.redis.Ping(ctx).Result()
	if err != nil {
		return &RedisHealth{Status: "unhealthy", Error: err.Error()}
	}
	ms := round2(time.Since(start).Seconds() * 1000)

	ping := "failed"
	if val == "PONG" {
		ping = "pong"
	}
	return &RedisHealth{Status: "healthy", ResponseTimeMS: &ms, Ping: ping}
}

func (h *Handler) checkWorkers(ctx context.Context) *WorkerHealth {
	health := &WorkerHealth{QueueName: h.queue.Name()}

	workers, err := h.workers.List(ctx)
	if err != nil {
		health.Status = "error: " + err.Error()
		return health
	}
	queueSize, err := h.queue.Length(ctx)
	if err != nil {
		health.Status = "error: " + err.Error()
		return health
	}
	failed, err := h.queue.FailedCount(ctx)
	if err != nil {
		health.Status = "error: " + err.Error()
		return health
	}

	busy := 0
	for _, info := range workers {
		if info.State == queue.StateBusy {
			busy++
		}
	}

	health.QueueSize = queueSize
	health.WorkersTotal = len(workers)
	health.WorkersBusy = busy
	health.WorkersIdle = len(workers) - busy
	health.FailedJobs = failed

	switch {
	case len(workers) == 0:
		health.Status = "no_workers"
	case queueSize > 100:
		health.Status = "high_load"
	case failed > 10:
		health.Status = "degraded"
	default:
		health.Status = "healthy"
	}
	return health
}

// Health reports the aggregate status of all system components.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	db := h.checkDatabase(ctx)
	rd := h.checkRedis(ctx)
	workers := h.checkWorkers(ctx)

	status := "healthy"
	switch {
	case db.Status != "healthy" || rd.Status != "healthy" ||
		workers.Status == "no_workers" || strings.HasPrefix(workers.Status, "error"):
		status = "unhealthy"
	case workers.Status == "high_load" || workers.Status == "degraded":
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Database:  db,
		Redis:     rd,
		Workers:   workers,
	})
}

// HealthDatabase checks database connectivity.
func (h *Handler) HealthDatabase(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.checkDatabase(r.Context()))
}

// HealthRedis checks Redis connectivity.
func (h *Handler) HealthRedis(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.checkRedis(r.Context()))
}

// HealthWorkers reports worker pool and queue status.
func (h *Handler) HealthWorkers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.checkWorkers(r.Context()))
}

// HealthInfo returns version, runtime and usage statistics.
func (h *Handler) HealthInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	langCount, err := h.store.CountLanguages(ctx)
	if err != nil {
		h.errorResponse(w, "failed to count languages", http.StatusInternalServerError)
		return
	}
	subCount, err := h.store.CountSubmissions(ctx)
	if err != nil {
		h.errorResponse(w, "failed to count submissions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SystemInfo{
		APIVersion:              Version,
		GoVersion:               runtime.Version(),
		Environment:             "production",
		UptimeSeconds:           round2(time.Since(h.started).Seconds()),
		SupportedLanguagesCount: langCount,
		TotalSubmissions:        subCount,
	})
}

// HealthPing answers a static pong for liveness probes.
func (h *Handler) HealthPing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"message": "pong",
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
