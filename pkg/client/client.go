// Package client provides a Go client library for the judge API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the judge API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new judge API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// CreateSubmission queues a submission for execution and returns its ID.
func (c *Client) CreateSubmission(ctx context.Context, req SubmissionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	resp, err := c.doRequest(ctx, "POST", "/submissions/", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseError(resp)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.ID, nil
}

// CreateSubmissionWait queues a submission and blocks until execution
// finishes, returning the full result.
func (c *Client) CreateSubmissionWait(ctx context.Context, req SubmissionRequest) (*Submission, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "POST", "/submissions/?wait=true", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result Submission
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// CreateSubmissionBatch queues several submissions at once and returns
// their IDs in request order.
func (c *Client) CreateSubmissionBatch(ctx context.Context, reqs []SubmissionRequest) ([]string, error) {
	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "POST", "/submissions/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var result []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	ids := make([]string, len(result))
	for i, r := range result {
		ids[i] = r.ID
	}
	return ids, nil
}

// GetSubmission gets a submission. The fields parameter selects the
// returned fields; "" applies the server default and "all" selects
// everything.
func (c *Client) GetSubmission(ctx context.Context, id, fields string) (*Submission, error) {
	path := "/submissions/" + id
	if fields != "" {
		path += "?fields=" + url.QueryEscape(fields)
	}

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result Submission
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListSubmissions lists submissions, newest first.
func (c *Client) ListSubmissions(ctx context.Context, filter ListFilter) (*SubmissionPage, error) {
	params := url.Values{}
	if filter.Page > 0 {
		params.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(filter.PageSize))
	}
	if filter.Fields != "" {
		params.Set("fields", filter.Fields)
	}

	path := "/submissions/"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result SubmissionPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// DeleteSubmission deletes a submission.
func (c *Client) DeleteSubmission(ctx context.Context, id string) error {
	resp, err := c.doRequest(ctx, "DELETE", "/submissions/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseError(resp)
	}

	return nil
}

// ListLanguages lists the supported languages.
func (c *Client) ListLanguages(ctx context.Context) ([]LanguageSummary, error) {
	resp, err := c.doRequest(ctx, "GET", "/languages/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result []LanguageSummary
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result, nil
}

// GetLanguage gets the full descriptor of one language.
func (c *Client) GetLanguage(ctx context.Context, id int) (*Language, error) {
	resp, err := c.doRequest(ctx, "GET", "/languages/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result Language
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Health gets the aggregate health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.doRequest(ctx, "GET", "/health/", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result Health
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Info gets system information and usage statistics.
func (c *Client) Info(ctx context.Context) (*SystemInfo, error) {
	resp, err := c.doRequest(ctx, "GET", "/health/info", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result SystemInfo
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// doRequest makes an HTTP request against the API.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// parseError parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, errResp.Error)
	}

	return fmt.Errorf("%s: %s", resp.Status, string(body))
}

// Request/Response types

// SubmissionRequest is the request to create a submission.
type SubmissionRequest struct {
	SourceCode      string           `json:"source_code"`
	LanguageID      int              `json:"language_id"`
	Stdin           *string          `json:"stdin,omitempty"`
	AdditionalFiles []AdditionalFile `json:"additional_files,omitempty"`
	ExpectedOutput  *string          `json:"expected_output,omitempty"`

	CPUTimeLimit              *float64 `json:"cpu_time_limit,omitempty"`
	CPUExtraTime              *float64 `json:"cpu_extra_time,omitempty"`
	WallTimeLimit             *float64 `json:"wall_time_limit,omitempty"`
	MemoryLimit               *int     `json:"memory_limit,omitempty"`
	MaxProcessesAndOrThreads  *int     `json:"max_processes_and_or_threads,omitempty"`
	MaxFileSize               *int     `json:"max_file_size,omitempty"`
	NumberOfRuns              *int     `json:"number_of_runs,omitempty"`
	EnablePerProcessTimeLimit *bool    `json:"enable_per_process_and_thread_time_limit,omitempty"`
	EnablePerProcessMemLimit  *bool    `json:"enable_per_process_and_thread_memory_limit,omitempty"`
	RedirectStderrToStdout    *bool    `json:"redirect_stderr_to_stdout,omitempty"`
	EnableNetwork             *bool    `json:"enable_network,omitempty"`
}

// AdditionalFile is an extra file placed next to the main source file.
type AdditionalFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Submission is a submission as returned by the API. Fields outside the
// requested projection stay at their zero values.
type Submission struct {
	ID              string            `json:"id"`
	SourceCode      string            `json:"source_code,omitempty"`
	LanguageID      int               `json:"language_id,omitempty"`
	Stdin           *string           `json:"stdin,omitempty"`
	AdditionalFiles []AdditionalFile  `json:"additional_files,omitempty"`
	ExpectedOutput  *string           `json:"expected_output,omitempty"`
	Status          string            `json:"status,omitempty"`
	Stdout          *string           `json:"stdout,omitempty"`
	Stderr          *string           `json:"stderr,omitempty"`
	CompileOutput   *string           `json:"compile_output,omitempty"`
	Meta            map[string]string `json:"meta,omitempty"`
	Language        *LanguageSummary  `json:"language,omitempty"`
	CreatedAt       *time.Time        `json:"created_at,omitempty"`
}

// SubmissionPage is one page of a submission listing.
type SubmissionPage struct {
	Items       []Submission `json:"items"`
	TotalItems  int          `json:"total_items"`
	TotalPages  int          `json:"total_pages"`
	CurrentPage int          `json:"current_page"`
	PageSize    int          `json:"page_size"`
}

// ListFilter is the filter for listing submissions.
type ListFilter struct {
	Page     int
	PageSize int
	Fields   string
}

// LanguageSummary is the language shape returned by the catalog listing.
type LanguageSummary struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Language is the full language descriptor.
type Language struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Version        string  `json:"version"`
	FileName       string  `json:"file_name"`
	FileExtension  string  `json:"file_extension"`
	CompileCommand *string `json:"compile_command"`
	RunCommand     string  `json:"run_command"`
}

// Health is the aggregate health report.
type Health struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Database  ComponentHealth `json:"database"`
	Redis     ComponentHealth `json:"redis"`
	Workers   WorkerHealth    `json:"workers"`
}

// ComponentHealth is the health of a single backing service.
type ComponentHealth struct {
	Status         string   `json:"status"`
	ResponseTimeMS *float64 `json:"response_time_ms,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// WorkerHealth is the health of the worker pool.
type WorkerHealth struct {
	QueueName    string `json:"queue_name"`
	QueueSize    int64  `json:"queue_size"`
	WorkersTotal int    `json:"workers_total"`
	WorkersBusy  int    `json:"workers_busy"`
	WorkersIdle  int    `json:"workers_idle"`
	FailedJobs   int64  `json:"failed_jobs"`
	Status       string `json:"status"`
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
