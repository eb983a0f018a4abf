package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// Checkpoints stores page checkpoints in the harvest_checkpoints table.
type Checkpoints struct {
	db *DB
}

// Checkpoints returns a harvest.CheckpointStore backed by db.
func (db *DB) Checkpoints() *Checkpoints {
	return &Checkpoints{db: db}
}

// Load implements harvest.CheckpointStore.
func (c *Checkpoints) Load(ctx context.Context, key string) (harvest.PageToken, bool, error) {
	var tok harvest.PageToken
	err := c.db.conn.QueryRowContext(ctx,
		"SELECT page, url, watermark FROM harvest_checkpoints WHERE name = ?", key).
		Scan(&tok.Number, &tok.URL, &tok.Watermark)
	if errors.Is(err, sql.ErrNoRows) {
		return harvest.PageToken{}, false, nil
	}
	if err != nil {
		return harvest.PageToken{}, false, fmt.Errorf("failed to load checkpoint %s: %w", key, err)
	}
	return tok, true, nil
}

// Save implements harvest.CheckpointStore.
func (c *Checkpoints) Save(ctx context.Context, key string, token harvest.PageToken) error {
	_, err := c.db.conn.ExecContext(ctx, c.db.dialect.UpsertCheckpoint(),
		key, token.Number, token.URL, token.Watermark, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", key, err)
	}
	return nil
}

// Delete implements harvest.CheckpointStore.
func (c *Checkpoints) Delete(ctx context.Context, key string) error {
	if _, err := c.db.conn.ExecContext(ctx, "DELETE FROM harvest_checkpoints WHERE name = ?", key); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", key, err)
	}
	return nil
}
