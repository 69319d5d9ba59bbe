package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Snapshot is an exported graph state for one channel.
type Snapshot struct {
	Channel string
	Format  string
	// Hash is the graph's StateHash at export time.
	Hash   string
	Deltas int
	State  []byte
}

// SaveSnapshot replaces a channel's snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (channel_id, format, state_hash, delta_count, state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			format = excluded.format,
			state_hash = excluded.state_hash,
			delta_count = excluded.delta_count,
			state = excluded.state
	`, snap.Channel, snap.Format, snap.Hash, snap.Deltas, snap.State)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Channel, err)
	}
	return nil
}

// LoadSnapshot returns a channel's snapshot. The bool is false when the
// channel has none.
func (s *Store) LoadSnapshot(ctx context.Context, channel string) (Snapshot, bool, error) {
	snap := Snapshot{Channel: channel}
	err := s.db.QueryRowContext(ctx, `
		SELECT format, state_hash, delta_count, state
		FROM snapshots
		WHERE channel_id = ?
	`, channel).Scan(&snap.Format, &snap.Hash, &snap.Deltas, &snap.State)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot %s: %w", channel, err)
	}
	return snap, true, nil
}
