// Package worker processes queued submissions inside isolate boxes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kodejudge/kodejudge/internal/config"
	"github.com/kodejudge/kodejudge/internal/queue"
	"github.com/kodejudge/kodejudge/internal/sandbox"
	"github.com/kodejudge/kodejudge/internal/state"
)

// Outcome classifies how a job ended.
type Outcome string

const (
	OutcomeFinished     Outcome = "finished"
	OutcomeCompileError Outcome = "compile_error"
	OutcomeError        Outcome = "error"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeInvalid      Outcome = "invalid"
)

// Node prints this with --jitless; it is noise, not program output.
const nodeWasmWarning = "Warning: disabling flag --expose_wasm due to conflicting flags\n"

// Store is the part of the state store workers write to.
type Store interface {
	ClaimSubmission(ctx context.Context, id string) (bool, error)
	FinishSubmission(ctx context.Context, id string, res *state.ExecutionResult) error
}

// Sandbox abstracts one isolate box.
type Sandbox interface {
	Init(ctx context.Context) error
	PlaceFile(name, content string) error
	Compile(ctx context.Context, command string, limits sandbox.Limits) (*sandbox.Result, error)
	Run(ctx context.Context, command string, limits sandbox.Limits) (*sandbox.Result, error)
	Cleanup(ctx context.Context) error
}

// Processor executes submissions in a fixed sandbox slot.
type Processor struct {
	store Store
	cfg   *config.SandboxConfig
	slot  int

	newBox func(slot int) Sandbox
}

// NewProcessor creates a processor bound to one sandbox slot.
func NewProcessor(store Store, cfg *config.SandboxConfig, slot int) *Processor {
	p := &Processor{store: store, cfg: cfg, slot: slot}
	p.newBox = func(slot int) Sandbox {
		return sandbox.NewBox(sandbox.Config{
			Binary:  cfg.IsolateBinary,
			BoxRoot: cfg.BoxRoot,
		}, slot)
	}
	return p
}

// Process runs one job to a terminal state. A submission leaves
// PROCESSING exactly once: the claim is a compare-and-set on PENDING,
// and every path below it converges on a single terminal write.
func (p *Processor) Process(ctx context.Context, job *queue.Job) (Outcome, error) {
	sub, lang := job.Submission, job.Language
	if sub == nil || sub.ID == "" || sub.SourceCode == "" || lang == nil {
		return OutcomeInvalid, errors.New("invalid submission data")
	}

	claimed, err := p.store.ClaimSubmission(ctx, sub.ID)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to claim submission: %w", err)
	}
	if !claimed {
		log.Printf("Submission %s already claimed, skipping", sub.ID)
		return OutcomeSkipped, nil
	}

	box := p.newBox(p.slot)
	defer func() {
		// Run cleanup even when the worker is shutting down.
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := box.Cleanup(cctx); err != nil {
			log.Printf("Failed to clean up sandbox for submission %s: %v", sub.ID, err)
		}
	}()

	result, outcome, execErr := p.execute(ctx, box, sub, lang)
	if execErr != nil {
		stderr := execErr.Error()
		result = &state.ExecutionResult{
			Status: state.StatusError,
			Stdout: strPtr(""),
			Stderr: &stderr,
			Meta:   map[string]string{"error": "Worker exception"},
		}
	}

	if err := p.finish(sub.ID, result); err != nil {
		log.Printf("Failed to persist result for submission %s: %v", sub.ID, err)
		return OutcomeError, err
	}
	return outcome, execErr
}

// execute runs the sandbox pipeline. It returns a terminal result for
// the compile-error and success paths; worker-side faults surface as
// errors with a nil result.
func (p *Processor) execute(ctx context.Context, box Sandbox, sub *state.Submission, lang *state.Language) (*state.ExecutionResult, Outcome, error) {
	limits := p.resolveLimits(sub)

	runs := p.cfg.NumberOfRuns
	if sub.NumberOfRuns != nil {
		runs = *sub.NumberOfRuns
	}
	if runs < 1 {
		runs = 1
	}

	if err := box.Init(ctx); err != nil {
		return nil, OutcomeError, err
	}

	mainFile := lang.FileName + lang.FileExtension
	if err := box.PlaceFile(mainFile, sub.SourceCode); err != nil {
		return nil, OutcomeError, err
	}

	for _, f := range sub.AdditionalFiles {
		if !sandbox.ValidFileName(f.Name) {
			return nil, OutcomeError, fmt.Errorf("invalid additional file name: %q", f.Name)
		}
		if f.Name == mainFile {
			return nil, OutcomeError, fmt.Errorf("additional file %q collides with the source file", f.Name)
		}
		if err := box.PlaceFile(f.Name, f.Content); err != nil {
			return nil, OutcomeError, err
		}
	}

	stdin := ""
	if sub.Stdin != nil {
		stdin = *sub.Stdin
	}
	if err := box.PlaceFile("stdin.txt", stdin); err != nil {
		return nil, OutcomeError, err
	}

	var compileOutput *string
	if lang.CompileCommand != nil {
		res, err := box.Compile(ctx, *lang.CompileCommand, limits)
		if err != nil {
			return nil, OutcomeError, err
		}

		combined := strings.TrimSpace(res.Stdout + "\n" + res.Stderr)
		compileOutput = &combined

		if res.ExitCode != 0 {
			return &state.ExecutionResult{
				Status:        state.StatusError,
				Stdout:        &res.Stdout,
				Stderr:        &res.Stderr,
				CompileOutput: compileOutput,
				Meta:          res.Meta,
			}, OutcomeCompileError, nil
		}
	}

	var (
		last     *sandbox.Result
		times    []float64
		memories []float64
	)
	for i := 0; i < runs; i++ {
		res, err := box.Run(ctx, lang.RunCommand, limits)
		if err != nil {
			return nil, OutcomeError, err
		}
		last = res

		if v, err := strconv.ParseFloat(res.Meta["time"], 64); err == nil {
			times = append(times, v)
		}
		if v, err := strconv.ParseFloat(res.Meta["max-rss"], 64); err == nil {
			memories = append(memories, v)
		}
	}

	stdout := last.Stdout
	stderr := last.Stderr
	if strings.ToLower(lang.Name) == "node.js" && !limits.RedirectStderr {
		stderr = strings.ReplaceAll(stderr, nodeWasmWarning, "")
	}

	meta := last.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	if runs > 1 {
		if len(times) > 0 {
			meta["avg_time"] = formatMetric(mean(times))
		}
		if len(memories) > 0 {
			meta["avg_memory"] = formatMetric(mean(memories))
		}
		meta["total_runs"] = strconv.Itoa(runs)
	}

	if sub.ExpectedOutput != nil {
		if strings.TrimSpace(stdout) == strings.TrimSpace(*sub.ExpectedOutput) {
			meta["output_matched"] = "True"
		} else {
			meta["output_matched"] = "False"
		}
	}

	return &state.ExecutionResult{
		Status:        state.StatusFinished,
		Stdout:        &stdout,
		Stderr:        &stderr,
		CompileOutput: compileOutput,
		Meta:          meta,
	}, OutcomeFinished, nil
}

// finish writes the terminal state. It uses its own context so the
// write still lands when the worker is shutting down.
func (p *Processor) finish(id string, res *state.ExecutionResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.store.FinishSubmission(ctx, id, res)
}

// resolveLimits merges submission overrides onto the configured
// defaults. A nil field means "use the default"; explicit zero or
// false values are honored as set.
func (p *Processor) resolveLimits(sub *state.Submission) sandbox.Limits {
	cfg := p.cfg
	limits := sandbox.Limits{
		CPUTime:   cfg.CPUTimeLimit,
		ExtraTime: cfg.CPUExtraTime,
		WallTime:  cfg.WallTimeLimit,
		Memory:    cfg.MemoryLimit,
		Processes: cfg.MaxProcesses,
		FileSize:  cfg.MaxFileSize,

		PerProcessTime:   cfg.EnablePerProcessTimeLimit,
		PerProcessMemory: cfg.EnablePerProcessMemoryLimit,
		RedirectStderr:   cfg.RedirectStderrToStdout,
		ShareNetwork:     cfg.EnableNetwork,
	}

	if sub.CPUTimeLimit != nil {
		limits.CPUTime = *sub.CPUTimeLimit
	}
	if sub.CPUExtraTime != nil {
		limits.ExtraTime = *sub.CPUExtraTime
	}
	if sub.WallTimeLimit != nil {
		limits.WallTime = *sub.WallTimeLimit
	}
	if sub.MemoryLimit != nil {
		limits.Memory = *sub.MemoryLimit
	}
	if sub.MaxProcessesAndOrThreads != nil {
		limits.Processes = *sub.MaxProcessesAndOrThreads
	}
	if sub.MaxFileSize != nil {
		limits.FileSize = *sub.MaxFileSize
	}
	if sub.EnablePerProcessTimeLimit != nil {
		limits.PerProcessTime = *sub.EnablePerProcessTimeLimit
	}
	if sub.EnablePerProcessMemLimit != nil {
		limits.PerProcessMemory = *sub.EnablePerProcessMemLimit
	}
	if sub.RedirectStderrToStdout != nil {
		limits.RedirectStderr = *sub.RedirectStderrToStdout
	}
	if sub.EnableNetwork != nil {
		limits.ShareNetwork = *sub.EnableNetwork
	}
	return limits
}

func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

func strPtr(s string) *string { return &s }
