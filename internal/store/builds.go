package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Build statuses recorded in the ledger.
const (
	BuildRunning   = "running"
	BuildSucceeded = "succeeded"
	BuildFailed    = "failed"
)

// BuildRecord is one row of the build ledger.
type BuildRecord struct {
	ID         string   `json:"id"`
	Mode       string   `json:"mode"`
	Roots      []string `json:"roots"`
	Status     string   `json:"status"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at,omitempty"`
	Result     string   `json:"result,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// BeginBuild records the start of a build.
// Uses ON CONFLICT(id) DO NOTHING so a retried call is harmless.
func (s *Store) BeginBuild(ctx context.Context, id, mode string, roots []string) error {
	rootsJSON, err := json.Marshal(roots)
	if err != nil {
		return fmt.Errorf("begin build: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO builds (id, mode, roots, status, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, mode, string(rootsJSON), BuildRunning, s.timestamp())
	if err != nil {
		return fmt.Errorf("begin build %s: %w", id, err)
	}
	return nil
}

// FinishBuild records the outcome of a build. result is stored verbatim
// (typically the JSON result tree); a non-nil buildErr marks it failed.
func (s *Store) FinishBuild(ctx context.Context, id, result string, buildErr error) error {
	status := BuildSucceeded
	var errText sql.NullString
	if buildErr != nil {
		status = BuildFailed
		errText = sql.NullString{String: buildErr.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE builds
		SET status = ?, finished_at = ?, result = ?, error = ?
		WHERE id = ?
	`, status, s.timestamp(), result, errText, id)
	if err != nil {
		return fmt.Errorf("finish build %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish build %s: no such build", id)
	}
	return nil
}

// ListBuilds returns the most recent builds first.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, roots, status, started_at,
		       COALESCE(finished_at, ''), COALESCE(result, ''), COALESCE(error, '')
		FROM builds
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var (
			rec   BuildRecord
			roots string
		)
		if err := rows.Scan(&rec.ID, &rec.Mode, &roots, &rec.Status, &rec.StartedAt,
			&rec.FinishedAt, &rec.Result, &rec.Error); err != nil {
			return nil, fmt.Errorf("list builds: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(roots), &rec.Roots); err != nil {
			return nil, fmt.Errorf("list builds: roots of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return out, nil
}
