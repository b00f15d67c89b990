package store

import (
	"fmt"

	"github.com/starford/raido/internal/models"
)

// Short, human-readable id prefixes per entity type.
var idPrefixes = map[string]string{
	models.EntityTask:    "TASK",
	models.EntityEpic:    "EPIC",
	models.EntityComment: "CMT",
}

// NextID atomically increments the per-type counter and returns the next
// readable id, e.g. "TASK-42".
func (db *DB) NextID(entityType string) (string, error) {
	prefix, ok := idPrefixes[entityType]
	if !ok {
		return "", fmt.Errorf("store: no id prefix for entity type %q", entityType)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO id_counters (entity_type, counter) VALUES (?, 1)
		ON CONFLICT(entity_type) DO UPDATE SET counter = counter + 1
	`, entityType)
	if err != nil {
		return "", fmt.Errorf("store: bump counter: %w", err)
	}

	var n int64
	if err := tx.QueryRow(`SELECT counter FROM id_counters WHERE entity_type = ?`, entityType).Scan(&n); err != nil {
		return "", fmt.Errorf("store: read counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit counter: %w", err)
	}
	return fmt.Sprintf("%s-%d", prefix, n), nil
}
