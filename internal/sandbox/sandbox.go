// Package sandbox drives the isolate binary to compile and run
// untrusted code in numbered boxes with resource limits.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Config holds the isolate driver configuration.
type Config struct {
	// Binary is the path to the isolate binary.
	Binary string

	// BoxRoot is the directory isolate keeps its boxes under. It is
	// scanned when assigning a free box ID.
	BoxRoot string
}

// DefaultConfig returns the standard isolate installation paths.
func DefaultConfig() Config {
	return Config{
		Binary:  "/usr/local/bin/isolate",
		BoxRoot: "/var/local/lib/isolate",
	}
}

// Limits are the resource limits and execution flags applied to every
// command run in a box.
type Limits struct {
	CPUTime   float64 // seconds
	ExtraTime float64 // seconds granted past CPUTime before the kill
	WallTime  float64 // seconds
	Memory    int     // KB
	Processes int
	FileSize  int // KB

	PerProcessTime   bool
	PerProcessMemory bool
	RedirectStderr   bool
	ShareNetwork     bool
}

// DefaultLimits returns the limits applied when a submission sets none.
func DefaultLimits() Limits {
	return Limits{
		CPUTime:   2.0,
		ExtraTime: 0.5,
		WallTime:  5.0,
		Memory:    128000,
		Processes: 128,
		FileSize:  10240,
	}
}

// Result holds the outcome of one sandboxed command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Meta     map[string]string
}

// Box is one numbered isolate sandbox.
type Box struct {
	cfg         Config
	slot        int
	path        string
	initialized bool
}

// NewBox creates a driver for the isolate box with the given ID. The
// box directory is created by Init.
func NewBox(cfg Config, slot int) *Box {
	return &Box{cfg: cfg, slot: slot}
}

// Init creates the box directory via isolate --init.
func (b *Box) Init(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, b.cfg.Binary, fmt.Sprintf("--box-id=%d", b.slot), "--init")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("failed to initialize sandbox: %s", stderr.String())
		}
		return fmt.Errorf("failed to initialize sandbox: %w", err)
	}

	boxRoot := strings.TrimSpace(stdout.String())
	if boxRoot == "" {
		return fmt.Errorf("isolate --init returned no box path")
	}

	b.path = filepath.Join(boxRoot, "box")
	b.initialized = true
	return nil
}

// PlaceFile writes a file into the box working directory. The name
// must be a bare file name.
func (b *Box) PlaceFile(name, content string) error {
	if !ValidFileName(name) {
		return fmt.Errorf("invalid file name: %q", name)
	}
	if err := os.WriteFile(filepath.Join(b.path, name), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Compile runs a compile command in the box. Compiler output is
// captured in compile_stdout.txt and compile_stderr.txt; a non-zero
// exit code is reported in the result, not as an error.
func (b *Box) Compile(ctx context.Context, command string, limits Limits) (*Result, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse compile command: %w", err)
	}

	args := b.isolateArgs("compile_meta.txt", limits)
	args = append(args,
		"--stdout=compile_stdout.txt",
		"--stderr=compile_stderr.txt",
		"--run",
		"--",
	)
	args = append(args, argv...)

	exitCode, err := b.exec(ctx, args)
	if err != nil {
		return nil, err
	}

	res := &Result{ExitCode: exitCode}
	if res.Stdout, err = b.readFile("compile_stdout.txt"); err != nil {
		return nil, err
	}
	if res.Stderr, err = b.readFile("compile_stderr.txt"); err != nil {
		return nil, err
	}
	if res.Meta, err = ParseMetaFile(filepath.Join(b.path, "compile_meta.txt")); err != nil {
		return nil, err
	}
	return res, nil
}

// Run executes a run command in the box, feeding stdin.txt to the
// program. When limits redirect stderr to stdout, both streams land in
// stdout.txt and the result's Stderr is empty. The program's exit
// status is reported through the isolate meta file.
func (b *Box) Run(ctx context.Context, command string, limits Limits) (*Result, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run command: %w", err)
	}

	args := b.isolateArgs("meta.txt", limits)
	args = append(args,
		"--stdin=stdin.txt",
		"--stdout=stdout.txt",
	)
	if limits.RedirectStderr {
		args = append(args, "--stderr=stdout.txt")
	} else {
		args = append(args, "--stderr=stderr.txt")
	}
	args = append(args, "--run", "--")
	args = append(args, argv...)

	exitCode, err := b.exec(ctx, args)
	if err != nil {
		return nil, err
	}

	res := &Result{ExitCode: exitCode}
	if res.Stdout, err = b.readFile("stdout.txt"); err != nil {
		return nil, err
	}
	if !limits.RedirectStderr {
		if res.Stderr, err = b.readFile("stderr.txt"); err != nil {
			return nil, err
		}
	}
	if res.Meta, err = ParseMetaFile(filepath.Join(b.path, "meta.txt")); err != nil {
		return nil, err
	}
	return res, nil
}

// Cleanup removes the box directory. It is safe to call on a box that
// was never initialized.
func (b *Box) Cleanup(ctx context.Context) error {
	if !b.initialized {
		return nil
	}

	cmd := exec.CommandContext(ctx, b.cfg.Binary, fmt.Sprintf("--box-id=%d", b.slot), "--cleanup")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to clean up sandbox %d: %w", b.slot, err)
	}

	b.initialized = false
	return nil
}

// isolateArgs builds the argument prefix shared by compile and run.
func (b *Box) isolateArgs(metaFile string, limits Limits) []string {
	args := []string{
		fmt.Sprintf("--box-id=%d", b.slot),
		"--meta=" + filepath.Join(b.path, metaFile),
		"--full-env",
		fmt.Sprintf("--time=%g", limits.CPUTime),
		fmt.Sprintf("--extra-time=%g", limits.ExtraTime),
		fmt.Sprintf("--wall-time=%g", limits.WallTime),
		fmt.Sprintf("--mem=%d", limits.Memory),
		fmt.Sprintf("--processes=%d", limits.Processes),
		fmt.Sprintf("--fsize=%d", limits.FileSize),
	}

	if limits.PerProcessTime {
		args = append(args, "--cg-timing")
	}
	if limits.PerProcessMemory {
		args = append(args, "--cg-mem")
	}
	if limits.ShareNetwork {
		args = append(args, "--share-net")
	}
	return args
}

// exec runs isolate and returns its exit code. Only failures to launch
// the binary surface as errors.
func (b *Box) exec(ctx context.Context, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, b.cfg.Binary, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("failed to run isolate: %w", err)
}

// readFile reads a file from the box directory, mapping a missing file
// to an empty string.
func (b *Box) readFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(b.path, name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

// ValidFileName reports whether name is a bare file name that stays
// inside the box when joined to its path.
func ValidFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return name == filepath.Base(name)
}
