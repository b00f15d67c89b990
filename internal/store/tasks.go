package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// InsertTask stores a new task row.
func (db *DB) InsertTask(t models.Task) error {
	_, err := db.conn.Exec(`
		INSERT INTO tasks (id, project_id, epic_id, parent_task_id, title, description, priority, status, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.EpicID, t.ParentTaskID, t.Title, t.Description, t.Priority, t.Status, t.Tags,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert task: %w", err)
	}
	return nil
}

// GetTask returns a task by id, or apperr.ErrNotFound.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.conn.QueryRow(`
		SELECT id, project_id, epic_id, parent_task_id, title, description, priority, status, tags, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)
	var t models.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.EpicID, &t.ParentTaskID, &t.Title, &t.Description,
		&t.Priority, &t.Status, &t.Tags, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	return &t, nil
}

// UpdateTask replaces all mutable fields of a task row.
func (db *DB) UpdateTask(t models.Task) error {
	res, err := db.conn.Exec(`
		UPDATE tasks
		SET epic_id = ?, parent_task_id = ?, title = ?, description = ?, priority = ?, status = ?, tags = ?, updated_at = ?
		WHERE id = ?
	`, t.EpicID, t.ParentTaskID, t.Title, t.Description, t.Priority, t.Status, t.Tags, t.UpdatedAt.UTC(), t.ID)
	if err != nil {
		return fmt.Errorf("store: update task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteTask removes a task row.
func (db *DB) DeleteTask(id string) error {
	res, err := db.conn.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ListTasks returns every task ordered by creation time.
func (db *DB) ListTasks() ([]models.Task, error) {
	rows, err := db.conn.Query(`
		SELECT id, project_id, epic_id, parent_task_id, title, description, priority, status, tags, created_at, updated_at
		FROM tasks ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.EpicID, &t.ParentTaskID, &t.Title, &t.Description,
			&t.Priority, &t.Status, &t.Tags, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
