package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// InsertComment stores a new comment row.
func (db *DB) InsertComment(c models.Comment) error {
	_, err := db.conn.Exec(`
		INSERT INTO comments (id, task_id, author, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.TaskID, c.Author, c.Content, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert comment: %w", err)
	}
	return nil
}

// GetComment returns a comment by id, or apperr.ErrNotFound.
func (db *DB) GetComment(id string) (*models.Comment, error) {
	row := db.conn.QueryRow(`
		SELECT id, task_id, author, content, created_at, updated_at FROM comments WHERE id = ?
	`, id)
	var c models.Comment
	err := row.Scan(&c.ID, &c.TaskID, &c.Author, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get comment: %w", err)
	}
	return &c, nil
}

// DeleteComment removes a comment row.
func (db *DB) DeleteComment(id string) error {
	res, err := db.conn.Exec(`DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete comment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ListComments returns all comments for a task ordered oldest first.
func (db *DB) ListComments(taskID string) ([]models.Comment, error) {
	rows, err := db.conn.Query(`
		SELECT id, task_id, author, content, created_at, updated_at
		FROM comments WHERE task_id = ? ORDER BY created_at ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list comments: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Author, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
