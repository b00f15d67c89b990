package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/raido/internal/models"
)

// AppendEvent inserts one audit-log row and returns its id. Rows are
// never updated or deleted afterwards.
func (db *DB) AppendEvent(e models.Event) (int64, error) {
	var snapshot, changes any
	if e.Snapshot != nil {
		b, err := json.Marshal(e.Snapshot)
		if err != nil {
			return 0, fmt.Errorf("store: marshal snapshot: %w", err)
		}
		snapshot = string(b)
	}
	if e.Changes != nil {
		b, err := json.Marshal(e.Changes)
		if err != nil {
			return 0, fmt.Errorf("store: marshal changes: %w", err)
		}
		changes = string(b)
	}

	res, err := db.conn.Exec(`
		INSERT INTO events (action, entity_type, entity_id, snapshot, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Action, e.EntityType, e.EntityID, snapshot, changes, e.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: event id: %w", err)
	}
	return id, nil
}

// QueryEvents returns matching events newest first (created_at DESC,
// id DESC) plus the total match count before pagination.
func (db *DB) QueryEvents(q EventQuery) ([]models.Event, int, error) {
	var conds []string
	var args []any

	if q.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, q.EntityID)
	}
	if len(q.Types) > 0 {
		conds = append(conds, "entity_type IN ("+placeholders(len(q.Types))+")")
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	if len(q.Actions) > 0 {
		conds = append(conds, "action IN ("+placeholders(len(q.Actions))+")")
		for _, a := range q.Actions {
			args = append(args, a)
		}
	}
	if q.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	if q.Until != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, q.Until.UTC())
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.conn.QueryRow("SELECT count(*) FROM events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count events: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, action, entity_type, entity_id, snapshot, changes, created_at
		FROM events %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, where)
	rows, err := db.conn.Query(query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		var snapshot, changes sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &snapshot, &changes, &e.Timestamp); err != nil {
			return nil, 0, err
		}
		if snapshot.Valid {
			if err := json.Unmarshal([]byte(snapshot.String), &e.Snapshot); err != nil {
				return nil, 0, fmt.Errorf("store: unmarshal snapshot: %w", err)
			}
		}
		if changes.Valid {
			if err := json.Unmarshal([]byte(changes.String), &e.Changes); err != nil {
				return nil, 0, fmt.Errorf("store: unmarshal changes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
