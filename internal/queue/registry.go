package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Worker states reported through the registry.
const (
	StateIdle = "idle"
	StateBusy = "busy"
)

// ErrWorkerNotFound is returned when a worker is not registered.
var ErrWorkerNotFound = errors.New("worker not found")

// WorkerInfo describes a registered worker process.
type WorkerInfo struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Registry tracks live workers in Redis. Each worker holds a key with
// a TTL refreshed by its heartbeat, plus membership in a shared set.
// A worker whose key expired but still sits in the set is stale.
type Registry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRegistry creates a registry rooted at the given key prefix. The
// TTL bounds how long a worker stays visible after its last heartbeat.
func NewRegistry(client *redis.Client, prefix string, ttl time.Duration) *Registry {
	return &Registry{client: client, prefix: prefix, ttl: ttl}
}

func (r *Registry) workerKey(name string) string {
	return r.prefix + ":worker:" + name
}

func (r *Registry) setKey() string {
	return r.prefix + ":workers"
}

// Register announces a worker and refreshes its TTL. Workers call this
// on startup and again on every heartbeat and state change.
func (r *Registry) Register(ctx context.Context, info *WorkerInfo) error {
	info.LastSeen = time.Now().UTC()
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal worker info: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.workerKey(info.Name), payload, r.ttl)
	pipe.SAdd(ctx, r.setKey(), info.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	return nil
}

// Deregister removes a worker from the registry.
func (r *Registry) Deregister(ctx context.Context, name string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.workerKey(name))
	pipe.SRem(ctx, r.setKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to deregister worker: %w", err)
	}
	return nil
}

// Get returns the info for a single registered worker.
func (r *Registry) Get(ctx context.Context, name string) (*WorkerInfo, error) {
	data, err := r.client.Get(ctx, r.workerKey(name)).Bytes()
	if err == redis.Nil {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load worker info: %w", err)
	}

	var info WorkerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal worker info: %w", err)
	}
	return &info, nil
}

// List returns all workers with a live heartbeat. Stale set members
// are skipped.
func (r *Registry) List(ctx context.Context) ([]*WorkerInfo, error) {
	names, err := r.client.SMembers(ctx, r.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}

	var workers []*WorkerInfo
	for _, name := range names {
		info, err := r.Get(ctx, name)
		if err == ErrWorkerNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		workers = append(workers, info)
	}
	return workers, nil
}

// CleanupStale removes set members whose heartbeat key has expired and
// returns how many were removed.
func (r *Registry) CleanupStale(ctx context.Context) (int, error) {
	names, err := r.client.SMembers(ctx, r.setKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list workers: %w", err)
	}

	removed := 0
	for _, name := range names {
		exists, err := r.client.Exists(ctx, r.workerKey(name)).Result()
		if err != nil {
			return removed, err
		}
		if exists == 0 {
			if err := r.client.SRem(ctx, r.setKey(), name).Err(); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Cleanup removes every registered worker, live or stale, and returns
// how many were removed.
func (r *Registry) Cleanup(ctx context.Context) (int, error) {
	names, err := r.client.SMembers(ctx, r.setKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list workers: %w", err)
	}

	for _, name := range names {
		if err := r.Deregister(ctx, name); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}
