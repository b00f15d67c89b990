// Package models defines the domain types for Raido.
package models

import "time"

// Task represents a work item on the board. A task with a non-empty
// ParentTaskID is a subtask.
type Task struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	EpicID       string    `json:"epicId,omitempty"`
	ParentTaskID string    `json:"parentTaskId,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Priority     int       `json:"priority"`
	Status       string    `json:"status"`
	Tags         string    `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Epic groups related tasks.
type Epic struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Comment is a note attached to a task.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Dependency is a directed edge "task A depends on task B".
type Dependency struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	DependsOnID string    `json:"dependsOnId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FieldChange records a single field transition in an update event.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Event is one immutable entry in the audit log. Snapshot is set for
// create/delete, Changes for update; never both.
type Event struct {
	ID         int64                  `json:"id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Snapshot   map[string]any         `json:"snapshot,omitempty"`
	Changes    map[string]FieldChange `json:"changes,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Audit log actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Entity types appearing in the audit log.
const (
	EntityTask       = "task"
	EntitySubtask    = "subtask"
	EntityEpic       = "epic"
	EntityComment    = "comment"
	EntityDependency = "dependency"
)
