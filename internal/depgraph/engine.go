// Package depgraph enforces the acyclic invariant on task dependency
// edges. The edge set of a project forms a DAG at all times: the cycle
// check runs, and succeeds, strictly before any edge write commits.
package depgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
)

// ConnProvider resolves a project id to its datastore handle. Satisfied
// by *pool.Manager.
type ConnProvider interface {
	Get(projectID string) (*store.DB, error)
}

// Engine validates and persists dependency edges.
type Engine struct {
	provider ConnProvider
	recorder *history.Recorder
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine.
func New(provider ConnProvider, recorder *history.Recorder, logger *slog.Logger) *Engine {
	return &Engine{
		provider: provider,
		recorder: recorder,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// projectLock returns the mutation lock for a project. Check-then-insert
// must be atomic per project: two edges that are each safe against a
// stale view can jointly close a cycle.
func (e *Engine) projectLock(projectID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[projectID] = l
	}
	return l
}

// AddDependency creates the edge "taskID depends on dependsOnID" after
// the full check sequence: self-loop, task existence, duplicate edge,
// cycle. Only when every check passes is the edge persisted and an
// audit event recorded.
func (e *Engine) AddDependency(_ context.Context, projectID, taskID, dependsOnID string) (*models.Dependency, error) {
	if taskID == dependsOnID {
		return nil, fmt.Errorf("depgraph: %s: %w", taskID, apperr.ErrSelfDependency)
	}

	l := e.projectLock(projectID)
	l.Lock()
	defer l.Unlock()

	db, err := e.provider.Get(projectID)
	if err != nil {
		return nil, err
	}

	if _, err := db.GetTask(taskID); err != nil {
		return nil, fmt.Errorf("depgraph: task %s: %w", taskID, err)
	}
	if _, err := db.GetTask(dependsOnID); err != nil {
		return nil, fmt.Errorf("depgraph: task %s: %w", dependsOnID, err)
	}

	exists, err := db.DependencyExists(taskID, dependsOnID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("depgraph: %s -> %s: %w", taskID, dependsOnID, apperr.ErrDuplicateDependency)
	}

	cycle, err := wouldCreateCycle(db, taskID, dependsOnID)
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, fmt.Errorf("depgraph: %s -> %s: %w", taskID, dependsOnID, apperr.ErrCycle)
	}

	dep := models.Dependency{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		DependsOnID: dependsOnID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.InsertDependency(dep); err != nil {
		return nil, err
	}

	e.record(db, models.ActionCreate, dep.ID, nil, snapshot(dep))
	return &dep, nil
}

// wouldCreateCycle reports whether taskID is reachable from dependsOnID
// by following existing dependsOn edges forward. If such a path exists,
// the new edge taskID -> dependsOnID would close a loop.
func wouldCreateCycle(db *store.DB, taskID, dependsOnID string) (bool, error) {
	edges, err := db.ListDependencies()
	if err != nil {
		return false, err
	}
	adj := make(map[string][]string, len(edges))
	for _, d := range edges {
		adj[d.TaskID] = append(adj[d.TaskID], d.DependsOnID)
	}

	visited := make(map[string]struct{})
	stack := []string{dependsOnID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if current == taskID {
			return true, nil
		}
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}

		for _, next := range adj[current] {
			if _, seen := visited[next]; !seen {
				stack = append(stack, next)
			}
		}
	}
	return false, nil
}

// RemoveDependency deletes the edge (taskID, dependsOnID) and records an
// audit event. Unknown edges fail with apperr.ErrNotFound.
func (e *Engine) RemoveDependency(_ context.Context, projectID, taskID, dependsOnID string) error {
	l := e.projectLock(projectID)
	l.Lock()
	defer l.Unlock()

	db, err := e.provider.Get(projectID)
	if err != nil {
		return err
	}

	var removed *models.Dependency
	edges, err := db.ListDependencies()
	if err != nil {
		return err
	}
	for i := range edges {
		if edges[i].TaskID == taskID && edges[i].DependsOnID == dependsOnID {
			removed = &edges[i]
			break
		}
	}
	if removed == nil {
		return fmt.Errorf("depgraph: %s -> %s: %w", taskID, dependsOnID, apperr.ErrNotFound)
	}

	if err := db.DeleteDependency(taskID, dependsOnID); err != nil {
		return err
	}

	e.record(db, models.ActionDelete, removed.ID, snapshot(*removed), nil)
	return nil
}

// DependsOn returns the edges where taskID is the dependent, computed by
// filtering the full edge set at read time.
func (e *Engine) DependsOn(_ context.Context, projectID, taskID string) ([]models.Dependency, error) {
	return e.filterEdges(projectID, func(d models.Dependency) bool { return d.TaskID == taskID })
}

// Blocks returns the edges where taskID is the dependency target, i.e.
// the tasks it blocks.
func (e *Engine) Blocks(_ context.Context, projectID, taskID string) ([]models.Dependency, error) {
	return e.filterEdges(projectID, func(d models.Dependency) bool { return d.DependsOnID == taskID })
}

func (e *Engine) filterEdges(projectID string, keep func(models.Dependency) bool) ([]models.Dependency, error) {
	db, err := e.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	edges, err := db.ListDependencies()
	if err != nil {
		return nil, err
	}
	out := []models.Dependency{}
	for _, d := range edges {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// record appends the audit event best-effort: the edge write is not
// rolled back when the append fails, but the failure is surfaced in the
// log.
func (e *Engine) record(db *store.DB, action, entityID string, before, after map[string]any) {
	if _, err := e.recorder.Record(db, action, models.EntityDependency, entityID, before, after); err != nil {
		e.logger.Warn("depgraph: audit append failed",
			slog.String("action", action),
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()))
	}
}

func snapshot(d models.Dependency) map[string]any {
	return map[string]any{
		"id":          d.ID,
		"taskId":      d.TaskID,
		"dependsOnId": d.DependsOnID,
		"createdAt":   d.CreatedAt,
	}
}
