// Package state provides PostgreSQL-backed persistence for submissions
// and the language catalog.
package state

import (
	"time"
)

// Status represents the lifecycle state of a submission.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusFinished   Status = "FINISHED"
	StatusError      Status = "ERROR"
)

// Language describes a supported language and how to compile and run it
// inside the sandbox.
type Language struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Version        string  `json:"version"`
	FileName       string  `json:"file_name"`
	FileExtension  string  `json:"file_extension"`
	CompileCommand *string `json:"compile_command"`
	RunCommand     string  `json:"run_command"`
}

// LanguageRef is the language shape embedded in submission responses.
type LanguageRef struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// AdditionalFile is an extra file placed in the sandbox next to the
// main source file before compilation.
type AdditionalFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Submission is a single code execution request and its results.
// Limit fields are pointers: nil means "use the configured default",
// which is distinct from an explicit zero or false.
type Submission struct {
	ID              string           `json:"id"`
	SourceCode      string           `json:"source_code"`
	LanguageID      int              `json:"language_id"`
	Stdin           *string          `json:"stdin"`
	AdditionalFiles []AdditionalFile `json:"additional_files"`
	ExpectedOutput  *string          `json:"expected_output"`

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

	Status        Status            `json:"status"`
	Stdout        *string           `json:"stdout"`
	Stderr        *string           `json:"stderr"`
	CompileOutput *string           `json:"compile_output"`
	Meta          map[string]string `json:"meta"`

	Language  *LanguageRef `json:"language,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ExecutionResult carries the terminal fields written when a worker
// finishes or fails a submission.
type ExecutionResult struct {
	Status        Status
	Stdout        *string
	Stderr        *string
	CompileOutput *string
	Meta          map[string]string
}
