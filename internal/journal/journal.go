// Package journal keeps a metadata record of every compile request in
// SQLite. Source text and artifacts are never stored.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outcome values stored in compile_log.outcome.
const (
	OutcomeSuccess       = "success"
	OutcomeCompilerError = "compiler_error"
	OutcomeTimeout       = "timeout"
	OutcomeInternal      = "internal"
	OutcomeCanceled      = "canceled"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one compile_log row.
type Entry struct {
	RequestID     string    `json:"request_id"`
	Principal     string    `json:"principal,omitempty"`
	RemoteAddr    string    `json:"remote_addr,omitempty"`
	Outcome       string    `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	ExitCode      *int      `json:"exit_code,omitempty"`
	Passes        int       `json:"passes"`
	SourceBytes   int       `json:"source_bytes"`
	ArtifactBytes int       `json:"artifact_bytes"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Recorder is the write side used by the compile service.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Journal reads and writes compile_log.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ Recorder = (*Journal)(nil)

func New(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record inserts e. A zero CompletedAt is set to now.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.RequestID == "" {
		return fmt.Errorf("journal entry has no request id")
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = j.now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.CompletedAt
	}

	var exitCode sql.NullInt64
	if e.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO compile_log(
  request_id, principal, remote_addr, outcome, reason, exit_code, passes,
  source_bytes, artifact_bytes, duration_ms, created_at, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		e.RequestID, nullString(e.Principal), nullString(e.RemoteAddr), e.Outcome, nullString(e.Reason),
		exitCode, e.Passes, e.SourceBytes, e.ArtifactBytes, e.DurationMS,
		e.CreatedAt.UTC().Format(timeFormat), e.CompletedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert compile_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. outcome filters when non-empty.
func (j *Journal) Recent(ctx context.Context, limit int, outcome string) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
SELECT request_id, principal, remote_addr, outcome, reason, exit_code, passes,
       source_bytes, artifact_bytes, duration_ms, created_at, completed_at
FROM compile_log`
	args := []any{}
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	query += ` ORDER BY completed_at DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query compile_log: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                      Entry
			principal, remote      sql.NullString
			reason                 sql.NullString
			exitCode               sql.NullInt64
			createdAtS, completedS string
		)
		if err := rows.Scan(&e.RequestID, &principal, &remote, &e.Outcome, &reason, &exitCode, &e.Passes,
			&e.SourceBytes, &e.ArtifactBytes, &e.DurationMS, &createdAtS, &completedS); err != nil {
			return nil, fmt.Errorf("scan compile_log: %w", err)
		}
		e.Principal = principal.String
		e.RemoteAddr = remote.String
		e.Reason = reason.String
		if exitCode.Valid {
			code := int(exitCode.Int64)
			e.ExitCode = &code
		}
		if t, err := time.Parse(timeFormat, createdAtS); err == nil {
			e.CreatedAt = t
		}
		if t, err := time.Parse(timeFormat, completedS); err == nil {
			e.CompletedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compile_log: %w", err)
	}
	return out, nil
}

// Prune deletes entries completed more than retention ago.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := j.now().Add(-retention).UTC().Format(timeFormat)
	res, err := j.db.ExecContext(ctx, `DELETE FROM compile_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune compile_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune compile_log: %w", err)
	}
	return n, nil
}

// Stats summarizes outcomes since a point in time.
func (j *Journal) Stats(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM compile_log WHERE completed_at >= ? GROUP BY outcome;`,
		since.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("query compile_log stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan compile_log stats: %w", err)
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
