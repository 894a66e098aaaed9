package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Artifact is one stored cache entry.
type Artifact struct {
	Key       string
	Data      []byte
	Size      int64
	Writer    string
	Seq       int64
	CreatedAt string
}

// PutArtifact stores data under key unless a row for key already exists.
//
// It returns the authoritative bytes for key and whether this call wrote
// them. A losing writer gets the winner's bytes back; it must not assume its
// own value was persisted.
func (s *Store) PutArtifact(ctx context.Context, key string, data []byte, writer string) ([]byte, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("put artifact: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (key, data, size, writer, seq, created_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM artifacts), ?)
		ON CONFLICT(key) DO NOTHING
	`, key, data, len(data), writer, s.timestamp())
	if err != nil {
		return nil, false, fmt.Errorf("put artifact %s: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("put artifact %s: rows affected: %w", key, err)
	}

	stored := data
	won := affected == 1
	if !won {
		if err := tx.QueryRowContext(ctx,
			`SELECT data FROM artifacts WHERE key = ?`, key,
		).Scan(&stored); err != nil {
			return nil, false, fmt.Errorf("put artifact %s: read winner: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("put artifact %s: commit: %w", key, err)
	}
	return stored, won, nil
}

// ReadArtifact returns the bytes stored under key.
// The boolean is false when no row exists.
func (s *Store) ReadArtifact(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM artifacts WHERE key = ?`, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return data, true, nil
}

// ArtifactStats returns the number of stored artifacts and their total size.
func (s *Store) ArtifactStats(ctx context.Context) (int, int64, error) {
	var (
		count int
		bytes int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM artifacts`,
	).Scan(&count, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("artifact stats: %w", err)
	}
	return count, bytes, nil
}

// ListArtifacts returns artifact metadata (without data) in insertion order.
func (s *Store) ListArtifacts(ctx context.Context, limit int) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, size, writer, seq, created_at
		FROM artifacts
		ORDER BY seq ASC, key ASC COLLATE BINARY
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Key, &a.Size, &a.Writer, &a.Seq, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("list artifacts: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return out, nil
}
