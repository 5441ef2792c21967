package api

import (
	"strings"

	"github.com/kodejudge/kodejudge/internal/state"
)

// defaultFields is the projection applied when the fields query
// parameter is absent or empty.
var defaultFields = map[string]bool{
	"id":             true,
	"status":         true,
	"language_id":    true,
	"stdout":         true,
	"stderr":         true,
	"stdin":          true,
	"compile_output": true,
	"created_at":     true,
}

var allFields = map[string]bool{
	"id":                           true,
	"source_code":                  true,
	"language_id":                  true,
	"stdin":                        true,
	"additional_files":             true,
	"expected_output":              true,
	"cpu_time_limit":               true,
	"cpu_extra_time":               true,
	"wall_time_limit":              true,
	"memory_limit":                 true,
	"max_processes_and_or_threads": true,
	"max_file_size":                true,
	"number_of_runs":               true,
	"enable_per_process_and_thread_time_limit":   true,
	"enable_per_process_and_thread_memory_limit": true,
	"redirect_stderr_to_stdout":                  true,
	"enable_network":                             true,
	"language":                                   true,
	"status":                                     true,
	"stdout":                                     true,
	"stderr":                                     true,
	"compile_output":                             true,
	"meta":                                       true,
	"created_at":                                 true,
}

// parseFields interprets the fields query parameter. A nil result means
// the default projection. "all" selects every field. The token "default"
// expands to the default set and combines with any other tokens; the id
// field is always included. Unknown names are dropped.
func parseFields(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if strings.ToLower(strings.TrimSpace(raw)) == "all" {
		return allFields
	}

	requested := map[string]bool{}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			requested[tok] = true
		}
	}

	if requested["default"] {
		delete(requested, "default")
		for f := range defaultFields {
			requested[f] = true
		}
	} else {
		requested["id"] = true
	}

	for f := range requested {
		if !allFields[f] {
			delete(requested, f)
		}
	}
	if len(requested) == 0 {
		return nil
	}
	return requested
}

// projectSubmission renders sub as a map holding only the selected
// fields. A nil selection applies the default projection.
func projectSubmission(sub *state.Submission, fields map[string]bool) map[string]interface{} {
	if fields == nil {
		fields = defaultFields
	}

	full := map[string]interface{}{
		"id":                           sub.ID,
		"source_code":                  sub.SourceCode,
		"language_id":                  sub.LanguageID,
		"stdin":                        sub.Stdin,
		"additional_files":             sub.AdditionalFiles,
		"expected_output":              sub.ExpectedOutput,
		"cpu_time_limit":               sub.CPUTimeLimit,
		"cpu_extra_time":               sub.CPUExtraTime,
		"wall_time_limit":              sub.WallTimeLimit,
		"memory_limit":                 sub.MemoryLimit,
		"max_processes_and_or_threads": sub.MaxProcessesAndOrThreads,
		"max_file_size":                sub.MaxFileSize,
		"number_of_runs":               sub.NumberOfRuns,
		"enable_per_process_and_thread_time_limit":   sub.EnablePerProcessTimeLimit,
		"enable_per_process_and_thread_memory_limit": sub.EnablePerProcessMemLimit,
		"redirect_stderr_to_stdout":                  sub.RedirectStderrToStdout,
		"enable_network":                             sub.EnableNetwork,
		"language":                                   sub.Language,
		"status":                                     sub.Status,
		"stdout":                                     sub.Stdout,
		"stderr":                                     sub.Stderr,
		"compile_output":                             sub.CompileOutput,
		"meta":                                       sub.Meta,
		"created_at":                                 sub.CreatedAt,
	}

	out := make(map[string]interface{}, len(fields))
	for f := range fields {
		out[f] = full[f]
	}
	return out
}
