package store

import (
	"context"
	"fmt"

	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/wire"
)

// AppendDeltas writes a batch to a channel's log in one transaction and
// returns how many rows were new. Deltas already logged are skipped.
func (s *Store) AppendDeltas(ctx context.Context, channel string, ds []ir.Delta) (int, error) {
	if len(ds) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append deltas: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deltas (channel_id, actor, seq, lamport, op, hash, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("append deltas: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, d := range ds {
		payload, err := wire.MarshalDelta(d)
		if err != nil {
			return 0, fmt.Errorf("append deltas: %w", err)
		}
		hash, err := ir.DeltaHash(d)
		if err != nil {
			return 0, fmt.Errorf("append deltas: %w", err)
		}
		res, err := stmt.ExecContext(ctx, channel, string(d.Actor), d.Seq, d.Lamport, string(d.Op), hash, payload)
		if err != nil {
			return 0, fmt.Errorf("append delta %s/%d: %w", d.Actor, d.Seq, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("append delta %s/%d: %w", d.Actor, d.Seq, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append deltas: commit: %w", err)
	}
	return inserted, nil
}

// LoadDeltas returns a channel's log ordered by (lamport, actor, seq).
//
// Returns an empty slice (not nil) for an unknown channel.
func (s *Store) LoadDeltas(ctx context.Context, channel string) ([]ir.Delta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM deltas
		WHERE channel_id = ?
		ORDER BY lamport ASC, actor COLLATE BINARY ASC, seq ASC
	`, channel)
	if err != nil {
		return nil, fmt.Errorf("query deltas: %w", err)
	}
	defer rows.Close()

	deltas := []ir.Delta{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan delta: %w", err)
		}
		d, err := wire.UnmarshalDelta(payload)
		if err != nil {
			return nil, fmt.Errorf("load deltas of %s: %w", channel, err)
		}
		deltas = append(deltas, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deltas: %w", err)
	}
	return deltas, nil
}

// CountDeltas returns the number of logged deltas for a channel.
func (s *Store) CountDeltas(ctx context.Context, channel string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deltas WHERE channel_id = ?`, channel).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deltas: %w", err)
	}
	return n, nil
}

// Channels lists every channel with a log or a snapshot, sorted.
func (s *Store) Channels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id FROM deltas
		UNION
		SELECT channel_id FROM snapshots
		ORDER BY channel_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	channels := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}
