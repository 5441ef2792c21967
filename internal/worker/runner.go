package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/kodejudge/kodejudge/internal/config"
	"github.com/kodejudge/kodejudge/internal/queue"
)

// Runner is the worker dequeue loop. One runner handles one submission
// at a time; parallelism comes from running more worker processes,
// each with its own sandbox slot.
type Runner struct {
	cfg       *config.Config
	queue     *queue.Queue
	registry  *queue.Registry
	processor *Processor

	mu   sync.Mutex
	info *queue.WorkerInfo
}

// NewRunner creates a runner for the configured worker identity.
func NewRunner(cfg *config.Config, q *queue.Queue, reg *queue.Registry, proc *Processor) *Runner {
	hostname, _ := os.Hostname()
	return &Runner{
		cfg:       cfg,
		queue:     q,
		registry:  reg,
		processor: proc,
		info: &queue.WorkerInfo{
			Name:      cfg.Worker.Name,
			PID:       os.Getpid(),
			Hostname:  hostname,
			State:     queue.StateIdle,
			StartedAt: time.Now().UTC(),
		},
	}
}

// Run registers the worker and processes jobs until the context is
// canceled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.registry.Register(ctx, r.info); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.registry.Deregister(dctx, r.info.Name); err != nil {
			log.Printf("Failed to deregister worker: %v", err)
		}
	}()

	// Heartbeat keeps the registry entry alive while we block on the
	// queue.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go r.heartbeat(hbCtx)

	log.Printf("Worker %s started (box %d)", r.info.Name, r.processor.slot)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := r.queue.Dequeue(ctx, r.cfg.Worker.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Failed to dequeue job: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		r.setState(ctx, queue.StateBusy)
		r.handle(ctx, job)
		r.setState(ctx, queue.StateIdle)
	}
}

// handle processes one job and records worker-side faults on the
// failed list.
func (r *Runner) handle(ctx context.Context, job *queue.Job) {
	id := "unknown"
	if job.Submission != nil {
		id = job.Submission.ID
	}
	log.Printf("Processing submission %s", id)

	outcome, err := r.processor.Process(ctx, job)
	switch {
	case outcome == OutcomeError:
		log.Printf("Submission %s failed: %v", id, err)
		if rerr := r.queue.RecordFailure(ctx, id, err.Error()); rerr != nil {
			log.Printf("Failed to record failure: %v", rerr)
		}
	case err != nil:
		log.Printf("Submission %s rejected: %v", id, err)
	default:
		log.Printf("Submission %s done: %s", id, outcome)
	}
}

// heartbeat refreshes the worker registration until stopped.
func (r *Runner) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Worker.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.register(ctx)
		}
	}
}

func (r *Runner) setState(ctx context.Context, state string) {
	r.mu.Lock()
	r.info.State = state
	r.mu.Unlock()
	r.register(ctx)
}

func (r *Runner) register(ctx context.Context) {
	r.mu.Lock()
	info := *r.info
	r.mu.Unlock()

	if err := r.registry.Register(ctx, &info); err != nil {
		log.Printf("Failed to refresh worker registration: %v", err)
	}
}
