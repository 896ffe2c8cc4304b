// Package journal records sync runs and their playlist mutation outcomes in
// SQLite so that rejected chunks can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"pendingctl/internal/core"
)

// Run is one journaled sync run.
type Run struct {
	ID           string
	Source       string
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	FailedChunks int
}

// FailedChunk is a mutation chunk the remote rejected or that was skipped.
type FailedChunk struct {
	RunID      string
	Source     string
	Op         core.MutationOp
	PlaylistID string
	Index      int
	TrackIDs   []string
	Error      string
	RecordedAt time.Time
}

// Journal implements core.Journal on a SQLite database.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ core.Journal = (*Journal)(nil)

// Open opens the journal at path and applies pending migrations. The path can
// be ":memory:".
func Open(ctx context.Context, path string, logger *zap.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("Journal opened", zap.String("path", path))

	return &Journal{db: db, logger: logger, now: time.Now}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) StartRun(ctx context.Context, runID, source string) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, source, started_at) VALUES (?, ?, ?)",
		runID, source, j.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordReport stores every chunk outcome of report in one transaction.
func (j *Journal) RecordReport(ctx context.Context, runID string, report *core.MutationReport) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_outcomes (run_id, op, playlist_id, chunk_index, track_count, track_ids, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	recordedAt := j.now().UTC()
	for _, outcome := range report.Chunks {
		var errText sql.NullString
		if outcome.Err != nil {
			errText = sql.NullString{String: outcome.Err.Error(), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			runID,
			string(report.Op),
			report.PlaylistID,
			outcome.Index,
			len(outcome.IDs),
			strings.Join(outcome.IDs, ","),
			errText,
			recordedAt,
		); err != nil {
			return fmt.Errorf("failed to record chunk %d: %w", outcome.Index, err)
		}
	}

	return tx.Commit()
}

func (j *Journal) FinishRun(ctx context.Context, runID, status string) error {
	result, err := j.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		status, j.now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.source, r.status, r.started_at, r.finished_at,
			(SELECT COUNT(*) FROM chunk_outcomes c WHERE c.run_id = r.id AND c.error IS NOT NULL)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var finishedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.Source, &run.Status, &run.StartedAt, &finishedAt, &run.FailedChunks); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// FailedChunks returns the most recent failed chunks, newest first.
func (j *Journal) FailedChunks(ctx context.Context, limit int) ([]FailedChunk, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT c.run_id, r.source, c.op, c.playlist_id, c.chunk_index, c.track_ids, c.error, c.recorded_at
		FROM chunk_outcomes c
		JOIN runs r ON r.id = c.run_id
		WHERE c.error IS NOT NULL
		ORDER BY c.recorded_at DESC, c.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed chunks: %w", err)
	}
	defer rows.Close()

	var chunks []FailedChunk
	for rows.Next() {
		var chunk FailedChunk
		var op, trackIDs string
		if err := rows.Scan(&chunk.RunID, &chunk.Source, &op, &chunk.PlaylistID,
			&chunk.Index, &trackIDs, &chunk.Error, &chunk.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failed chunk: %w", err)
		}
		chunk.Op = core.MutationOp(op)
		if trackIDs != "" {
			chunk.TrackIDs = strings.Split(trackIDs, ",")
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// Reset drops all journaled data and recreates the schema.
func (j *Journal) Reset(ctx context.Context) error {
	if err := rollbackAll(ctx, j.db); err != nil {
		return err
	}
	if err := runMigrations(ctx, j.db); err != nil {
		return err
	}

	j.logger.Info("Journal reset")
	return nil
}
