package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/dti-core/internal/pipeline"
	"github.com/nerrad567/dti-core/internal/protocol"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Store is the SQLite journal.
type Store struct {
	db *sql.DB
}

// NewStore creates a journal on an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection
//
// Returns:
//   - *Store: Journal ready for use
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordRun inserts a finished pipeline run. Recording the same run twice
// replaces the first row.
func (s *Store) RecordRun(ctx context.Context, r pipeline.Run) error {
	if r.ID == "" {
		return ErrInvalidRun
	}

	stages, err := json.Marshal(r.Stages)
	if err != nil {
		return fmt.Errorf("marshalling stages: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pipeline_runs
		 (id, kind, forced, target, status, stage, stages, reason, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Kind.String(),
		r.Forced,
		nullString(r.Target),
		r.Status.String(),
		int(r.Stage),
		string(stages),
		nullString(r.Reason),
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
//
// Parameters:
//   - ctx: Context for cancellation
//   - limit: Maximum rows (default 50, max 500)
//
// Returns:
//   - []pipeline.Run: Runs ordered by finish time descending
//   - error: Query or decoding failure
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]pipeline.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, forced, target, status, stage, stages, reason, started_at, finished_at
		 FROM pipeline_runs
		 ORDER BY finished_at DESC, rowid DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []pipeline.Run
	for rows.Next() {
		var (
			r                 pipeline.Run
			kind, status      string
			stage             int
			stages            string
			target, reason    sql.NullString
			started, finished string
		)
		if err := rows.Scan(&r.ID, &kind, &r.Forced, &target, &status, &stage, &stages,
			&reason, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		if r.Kind, err = protocol.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if r.Status, err = protocol.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(stages), &r.Stages); err != nil {
			return nil, fmt.Errorf("run %s: unmarshalling stages: %w", r.ID, err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		r.Stage = uint8(stage) //nolint:gosec // written from a uint8
		r.Target = target.String
		r.Reason = reason.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// RecordDiagnostic inserts a diagnostic event.
func (s *Store) RecordDiagnostic(ctx context.Context, d pipeline.Diagnostic) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO diagnostics (created_at, severity, device, status, reason, run_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(d.Time),
		string(d.Severity),
		nullString(d.Device),
		d.Status.String(),
		nullString(d.Reason),
		nullString(d.RunID),
	)
	if err != nil {
		return fmt.Errorf("inserting diagnostic: %w", err)
	}
	return nil
}

// RecentDiagnostics returns the latest diagnostics, newest first.
func (s *Store) RecentDiagnostics(ctx context.Context, limit int) ([]pipeline.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, severity, device, status, reason, run_id
		 FROM diagnostics
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying diagnostics: %w", err)
	}
	defer rows.Close()

	var diags []pipeline.Diagnostic
	for rows.Next() {
		var (
			d                    pipeline.Diagnostic
			created, sev, status string
			dev, reason, runID   sql.NullString
		)
		if err := rows.Scan(&created, &sev, &dev, &status, &reason, &runID); err != nil {
			return nil, fmt.Errorf("scanning diagnostic: %w", err)
		}
		if d.Time, err = parseTime(created); err != nil {
			return nil, err
		}
		if d.Status, err = protocol.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("diagnostic: %w", err)
		}
		d.Severity = pipeline.Severity(sev)
		d.Device = dev.String
		d.Reason = reason.String
		d.RunID = runID.String
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diagnostics: %w", err)
	}
	return diags, nil
}

// SetUnsafe stores the latch.
func (s *Store) SetUnsafe(ctx context.Context, unsafe bool, reason string) error {
	if !unsafe {
		reason = ""
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unsafe_latch (id, unsafe, reason, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET unsafe = excluded.unsafe, reason = excluded.reason, updated_at = excluded.updated_at`,
		unsafe,
		nullString(reason),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storing unsafe latch: %w", err)
	}
	return nil
}

// LoadUnsafe returns the stored latch. A database that never stored one is safe.
func (s *Store) LoadUnsafe(ctx context.Context) (unsafe bool, reason string, err error) {
	var r sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT unsafe, reason FROM unsafe_latch WHERE id = 1").Scan(&unsafe, &r)
	if errors.Is(err, sql.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("loading unsafe latch: %w", err)
	}
	return unsafe, r.String, nil
}

// Prune deletes runs and diagnostics older than olderThan.
//
// Returns:
//   - int64: Rows deleted across both tables
//   - error: ErrInvalidDuration or the database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidDuration
	}
	cutoff := formatTime(time.Now().Add(-olderThan))

	var total int64
	for _, q := range []string{
		"DELETE FROM pipeline_runs WHERE finished_at < ?",
		"DELETE FROM diagnostics WHERE created_at < ?",
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning journal: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", v, err)
	}
	return t, nil
}
