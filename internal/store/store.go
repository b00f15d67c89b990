package store

import (
	"time"

	"github.com/starford/raido/internal/models"
)

// Store defines the entity-store operations consumed by the services.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type Store interface {
	InsertTask(t models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t models.Task) error
	DeleteTask(id string) error
	ListTasks() ([]models.Task, error)

	InsertEpic(e models.Epic) error
	GetEpic(id string) (*models.Epic, error)
	UpdateEpic(e models.Epic) error
	DeleteEpic(id string) error
	ListEpics() ([]models.Epic, error)

	InsertComment(c models.Comment) error
	GetComment(id string) (*models.Comment, error)
	DeleteComment(id string) error
	ListComments(taskID string) ([]models.Comment, error)

	InsertDependency(d models.Dependency) error
	DeleteDependency(taskID, dependsOnID string) error
	DependencyExists(taskID, dependsOnID string) (bool, error)
	ListDependencies() ([]models.Dependency, error)

	AppendEvent(e models.Event) (int64, error)
	QueryEvents(q EventQuery) ([]models.Event, int, error)

	NextID(entityType string) (string, error)
	Close() error
}

// EventQuery is the raw filter applied to the events table. Validation
// happens in the history package; the store only builds SQL.
type EventQuery struct {
	EntityID string
	Types    []string
	Actions  []string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
