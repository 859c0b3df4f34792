package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

var _ repository.RunRepository = (*DB)(nil)

// Record appends one execution to the run history.
func (db *DB) Record(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = xid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	// Stored as text, so a single zone keeps created_at comparisons ordered.
	run.CreatedAt = run.CreatedAt.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, language, status, error_kind, duration_ms, log_lines, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Language,
		run.Status,
		run.ErrorKind,
		run.DurationMS,
		run.LogLines,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording run: %w", err)
	}
	return nil
}

// Stats aggregates runs created at or after since. A zero since covers the
// whole history.
func (db *DB) Stats(ctx context.Context, since time.Time) (*model.RunStats, error) {
	where, args := "", []any{}
	if !since.IsZero() {
		where, args = ` WHERE created_at >= ?`, append(args, since.UTC())
	}

	stats := &model.RunStats{
		ByKind:     map[string]int64{},
		ByLanguage: map[string]int64{},
	}

	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(duration_ms), 0)
		 FROM runs`+where,
		append([]any{model.RunSucceeded}, args...)...,
	).Scan(&stats.Total, &stats.Succeeded, &stats.AvgMS)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating runs: %w", err)
	}
	stats.Failed = stats.Total - stats.Succeeded

	if err := db.countBy(ctx, "error_kind", where, args, stats.ByKind); err != nil {
		return nil, err
	}
	if err := db.countBy(ctx, "language", where, args, stats.ByLanguage); err != nil {
		return nil, err
	}

	return stats, nil
}

// countBy fills into with per-value row counts of column. column is always a
// constant from this file, never user input.
func (db *DB) countBy(ctx context.Context, column, where string, args []any, into map[string]int64) error {
	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT %[1]s, COUNT(*) FROM runs%[2]s GROUP BY %[1]s`, column, where),
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: counting runs by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("sqlite: scanning %s count: %w", column, err)
		}
		if key == "" {
			continue // successful runs have no error kind
		}
		into[key] = count
	}
	return rows.Err()
}
