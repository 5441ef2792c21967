package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS languages (
	id              SERIAL PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	version         TEXT NOT NULL,
	file_name       TEXT NOT NULL,
	file_extension  TEXT NOT NULL,
	compile_command TEXT,
	run_command     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id               UUID PRIMARY KEY,
	source_code      TEXT NOT NULL,
	language_id      INTEGER NOT NULL REFERENCES languages(id),
	stdin            TEXT,
	additional_files JSONB,
	expected_output  TEXT,

	cpu_time_limit   DOUBLE PRECISION,
	cpu_extra_time   DOUBLE PRECISION,
	wall_time_limit  DOUBLE PRECISION,
	memory_limit     INTEGER,
	max_processes_and_or_threads INTEGER,
	max_file_size    INTEGER,
	number_of_runs   INTEGER,
	enable_per_process_and_thread_time_limit   BOOLEAN,
	enable_per_process_and_thread_memory_limit BOOLEAN,
	redirect_stderr_to_stdout BOOLEAN,
	enable_network   BOOLEAN,

	status           TEXT NOT NULL DEFAULT 'PENDING',
	stdout           TEXT,
	stderr           TEXT,
	compile_output   TEXT,
	meta             JSONB,

	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions (status);
`

// submissionColumns is the column list shared by all submission reads.
// Every read joins the language so responses can embed it.
const submissionColumns = `
	s.id, s.source_code, s.language_id, s.stdin, s.additional_files, s.expected_output,
	s.cpu_time_limit, s.cpu_extra_time, s.wall_time_limit, s.memory_limit,
	s.max_processes_and_or_threads, s.max_file_size, s.number_of_runs,
	s.enable_per_process_and_thread_time_limit, s.enable_per_process_and_thread_memory_limit,
	s.redirect_stderr_to_stdout, s.enable_network,
	s.status, s.stdout, s.stderr, s.compile_output, s.meta, s.created_at,
	l.id, l.name, l.version
`

// Store provides PostgreSQL persistence for submissions and languages.
type Store struct {
	db *sql.DB
}

// NewStore opens a PostgreSQL connection and ensures the schema exists.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}

	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureSchema creates tables and indexes if they do not exist.
func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertSubmission(ctx context.Context, e execer, sub *Submission) error {
	files, err := marshalJSON(sub.AdditionalFiles)
	if err != nil {
		return fmt.Errorf("failed to encode additional files: %w", err)
	}

	_, err = e.ExecContext(ctx, `
		INSERT INTO submissions (
			id, source_code, language_id, stdin, additional_files, expected_output,
			cpu_time_limit, cpu_extra_time, wall_time_limit, memory_limit,
			max_processes_and_or_threads, max_file_size, number_of_runs,
			enable_per_process_and_thread_time_limit, enable_per_process_and_thread_memory_limit,
			redirect_stderr_to_stdout, enable_network,
			status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		sub.ID, sub.SourceCode, sub.LanguageID, sub.Stdin, files, sub.ExpectedOutput,
		sub.CPUTimeLimit, sub.CPUExtraTime, sub.WallTimeLimit, sub.MemoryLimit,
		sub.MaxProcessesAndOrThreads, sub.MaxFileSize, sub.NumberOfRuns,
		sub.EnablePerProcessTimeLimit, sub.EnablePerProcessMemLimit,
		sub.RedirectStderrToStdout, sub.EnableNetwork,
		sub.Status, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// CreateSubmission persists a new submission.
func (s *Store) CreateSubmission(ctx context.Context, sub *Submission) error {
	return insertSubmission(ctx, s.db, sub)
}

// CreateSubmissions persists a batch of submissions in a single
// transaction. Either all of them are stored or none are.
func (s *Store) CreateSubmissions(ctx context.Context, subs []*Submission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, sub := range subs {
		if err := insertSubmission(ctx, tx, sub); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetSubmission loads a submission with its language by ID.
func (s *Store) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions s
		JOIN languages l ON l.id = s.language_id
		WHERE s.id = $1
	`, id)

	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return sub, nil
}

// GetSubmissions loads the submissions matching the given IDs. IDs
// without a matching row are skipped.
func (s *Store) GetSubmissions(ctx context.Context, ids []string) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions s
		JOIN languages l ON l.id = s.language_id
		WHERE s.id = ANY($1::uuid[])
		ORDER BY s.created_at DESC
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	return collectSubmissions(rows)
}

// ListSubmissions returns one page of submissions ordered by creation
// time, newest first, along with the total submission count.
func (s *Store) ListSubmissions(ctx context.Context, page, pageSize int) ([]*Submission, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions s
		JOIN languages l ON l.id = s.language_id
		ORDER BY s.created_at DESC
		LIMIT $1 OFFSET $2
	`, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	subs, err := collectSubmissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// DeleteSubmission removes a submission by ID.
func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM submissions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimSubmission transitions a submission from PENDING to PROCESSING.
// It reports false when the submission was already claimed, finished,
// or deleted, so a redelivered queue entry is processed at most once.
func (s *Store) ClaimSubmission(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE submissions SET status = $1 WHERE id = $2 AND status = $3",
		StatusProcessing, id, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishSubmission writes the terminal status and results in a single
// update.
func (s *Store) FinishSubmission(ctx context.Context, id string, res *ExecutionResult) error {
	meta, err := marshalJSON(res.Meta)
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = $2, stdout = $3, stderr = $4, compile_output = $5, meta = $6
		WHERE id = $1
	`, id, res.Status, res.Stdout, res.Stderr, res.CompileOutput, meta)
	if err != nil {
		return fmt.Errorf("failed to finish submission: %w", err)
	}
	return nil
}

// CountSubmissions returns the total number of stored submissions.
func (s *Store) CountSubmissions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n, nil
}

// GetLanguage loads a language by ID.
func (s *Store) GetLanguage(ctx context.Context, id int) (*Language, error) {
	var lang Language
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, file_name, file_extension, compile_command, run_command
		FROM languages WHERE id = $1
	`, id).Scan(
		&lang.ID, &lang.Name, &lang.Version, &lang.FileName,
		&lang.FileExtension, &lang.CompileCommand, &lang.RunCommand,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load language: %w", err)
	}
	return &lang, nil
}

// ListLanguages returns all supported languages ordered by ID.
func (s *Store) ListLanguages(ctx context.Context) ([]*Language, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, version, file_name, file_extension, compile_command, run_command
		FROM languages ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query languages: %w", err)
	}
	defer rows.Close()

	var langs []*Language
	for rows.Next() {
		var lang Language
		if err := rows.Scan(
			&lang.ID, &lang.Name, &lang.Version, &lang.FileName,
			&lang.FileExtension, &lang.CompileCommand, &lang.RunCommand,
		); err != nil {
			return nil, fmt.Errorf("failed to scan language: %w", err)
		}
		langs = append(langs, &lang)
	}
	return langs, rows.Err()
}

// CountLanguages returns the number of supported languages.
func (s *Store) CountLanguages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM languages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count languages: %w", err)
	}
	return n, nil
}

// UpsertLanguage inserts a language or updates the existing one with
// the same name. The language ID is populated on return.
func (s *Store) UpsertLanguage(ctx context.Context, lang *Language) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO languages (name, version, file_name, file_extension, compile_command, run_command)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			version = EXCLUDED.version,
			file_name = EXCLUDED.file_name,
			file_extension = EXCLUDED.file_extension,
			compile_command = EXCLUDED.compile_command,
			run_command = EXCLUDED.run_command
		RETURNING id
	`,
		lang.Name, lang.Version, lang.FileName,
		lang.FileExtension, lang.CompileCommand, lang.RunCommand,
	).Scan(&lang.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert language: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var (
		sub       Submission
		lang      LanguageRef
		filesJSON []byte
		metaJSON  []byte
	)
	err := row.Scan(
		&sub.ID, &sub.SourceCode, &sub.LanguageID, &sub.Stdin, &filesJSON, &sub.ExpectedOutput,
		&sub.CPUTimeLimit, &sub.CPUExtraTime, &sub.WallTimeLimit, &sub.MemoryLimit,
		&sub.MaxProcessesAndOrThreads, &sub.MaxFileSize, &sub.NumberOfRuns,
		&sub.EnablePerProcessTimeLimit, &sub.EnablePerProcessMemLimit,
		&sub.RedirectStderrToStdout, &sub.EnableNetwork,
		&sub.Status, &sub.Stdout, &sub.Stderr, &sub.CompileOutput, &metaJSON, &sub.CreatedAt,
		&lang.ID, &lang.Name, &lang.Version,
	)
	if err != nil {
		return nil, err
	}

	if len(filesJSON) > 0 {
		if err := json.Unmarshal(filesJSON, &sub.AdditionalFiles); err != nil {
			return nil, fmt.Errorf("failed to decode additional files: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &sub.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode meta: %w", err)
		}
	}
	sub.Language = &lang
	return &sub, nil
}

func collectSubmissions(rows *sql.Rows) ([]*Submission, error) {
	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// marshalJSON encodes a value for a JSONB column, mapping nil to NULL.
func marshalJSON(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case []AdditionalFile:
		if val == nil {
			return nil, nil
		}
	case map[string]string:
		if val == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
