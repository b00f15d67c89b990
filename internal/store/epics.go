package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// InsertEpic stores a new epic row.
func (db *DB) InsertEpic(e models.Epic) error {
	_, err := db.conn.Exec(`
		INSERT INTO epics (id, project_id, title, description, priority, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, e.Title, e.Description, e.Priority, e.Status, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert epic: %w", err)
	}
	return nil
}

// GetEpic returns an epic by id, or apperr.ErrNotFound.
func (db *DB) GetEpic(id string) (*models.Epic, error) {
	row := db.conn.QueryRow(`
		SELECT id, project_id, title, description, priority, status, created_at, updated_at
		FROM epics WHERE id = ?
	`, id)
	var e models.Epic
	err := row.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Description, &e.Priority, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get epic: %w", err)
	}
	return &e, nil
}

// UpdateEpic replaces all mutable fields of an epic row.
func (db *DB) UpdateEpic(e models.Epic) error {
	res, err := db.conn.Exec(`
		UPDATE epics SET title = ?, description = ?, priority = ?, status = ?, updated_at = ? WHERE id = ?
	`, e.Title, e.Description, e.Priority, e.Status, e.UpdatedAt.UTC(), e.ID)
	if err != nil {
		return fmt.Errorf("store: update epic: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteEpic removes an epic row and detaches its tasks.
func (db *DB) DeleteEpic(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`DELETE FROM epics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete epic: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	if _, err := tx.Exec(`UPDATE tasks SET epic_id = '' WHERE epic_id = ?`, id); err != nil {
		return fmt.Errorf("store: detach epic tasks: %w", err)
	}
	return tx.Commit()
}

// ListEpics returns every epic ordered by creation time.
func (db *DB) ListEpics() ([]models.Epic, error) {
	rows, err := db.conn.Query(`
		SELECT id, project_id, title, description, priority, status, created_at, updated_at
		FROM epics ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list epics: %w", err)
	}
	defer rows.Close()

	var out []models.Epic
	for rows.Next() {
		var e models.Epic
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Description, &e.Priority, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
