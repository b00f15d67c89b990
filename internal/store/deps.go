package store

import (
	"fmt"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// InsertDependency stores a new dependency edge.
func (db *DB) InsertDependency(d models.Dependency) error {
	_, err := db.conn.Exec(`
		INSERT INTO dependencies (id, task_id, depends_on_id, created_at) VALUES (?, ?, ?, ?)
	`, d.ID, d.TaskID, d.DependsOnID, d.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert dependency: %w", err)
	}
	return nil
}

// DeleteDependency removes the edge (taskID, dependsOnID).
func (db *DB) DeleteDependency(taskID, dependsOnID string) error {
	res, err := db.conn.Exec(`
		DELETE FROM dependencies WHERE task_id = ? AND depends_on_id = ?
	`, taskID, dependsOnID)
	if err != nil {
		return fmt.Errorf("store: delete dependency: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DependencyExists reports whether the edge (taskID, dependsOnID) is present.
func (db *DB) DependencyExists(taskID, dependsOnID string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT count(*) FROM dependencies WHERE task_id = ? AND depends_on_id = ?
	`, taskID, dependsOnID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: dependency exists: %w", err)
	}
	return n > 0, nil
}

// ListDependencies returns the full edge set for the project.
func (db *DB) ListDependencies() ([]models.Dependency, error) {
	rows, err := db.conn.Query(`
		SELECT id, task_id, depends_on_id, created_at FROM dependencies ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list dependencies: %w", err)
	}
	defer rows.Close()

	var out []models.Dependency
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.ID, &d.TaskID, &d.DependsOnID, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
