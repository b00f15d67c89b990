// Package boardservice coordinates entity-store writes for tasks,
// epics, and comments: id generation, status/priority validation,
// timestamps, and audit recording.
package boardservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

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

// Board describes the configured workflow: legal statuses per entity
// and the number of priority levels (0 is highest).
type Board struct {
	TaskStatuses   []string
	EpicStatuses   []string
	PriorityLevels int
}

// Service implements board CRUD on top of the connection provider.
type Service struct {
	provider ConnProvider
	recorder *history.Recorder
	board    Board
	logger   *slog.Logger
}

// NewService creates a board service.
func NewService(provider ConnProvider, recorder *history.Recorder, board Board, logger *slog.Logger) *Service {
	return &Service{provider: provider, recorder: recorder, board: board, logger: logger}
}

// TaskInput is the payload for creating a task.
type TaskInput struct {
	Title        string
	Description  string
	Status       string
	Priority     *int
	EpicID       string
	ParentTaskID string
	Tags         string
}

// TaskUpdate is a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *int
	EpicID       *string
	ParentTaskID *string
	Tags         *string
}

// CreateTask validates the input, assigns a readable id, persists the
// task, and records a create event.
func (s *Service) CreateTask(_ context.Context, projectID string, in TaskInput) (*models.Task, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}

	if in.Title == "" {
		return nil, fmt.Errorf("boardservice: title is required: %w", apperr.ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = s.board.TaskStatuses[0]
	}
	if err := s.checkStatus(status, s.board.TaskStatuses); err != nil {
		return nil, err
	}
	priority := 2
	if in.Priority != nil {
		priority = *in.Priority
	}
	if err := s.checkPriority(priority); err != nil {
		return nil, err
	}
	if in.EpicID != "" {
		if _, err := db.GetEpic(in.EpicID); err != nil {
			return nil, fmt.Errorf("boardservice: epic %s: %w", in.EpicID, err)
		}
	}
	if in.ParentTaskID != "" {
		if _, err := db.GetTask(in.ParentTaskID); err != nil {
			return nil, fmt.Errorf("boardservice: parent task %s: %w", in.ParentTaskID, err)
		}
	}

	id, err := db.NextID(models.EntityTask)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t := models.Task{
		ID:           id,
		ProjectID:    projectID,
		EpicID:       in.EpicID,
		ParentTaskID: in.ParentTaskID,
		Title:        in.Title,
		Description:  in.Description,
		Priority:     priority,
		Status:       status,
		Tags:         in.Tags,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.InsertTask(t); err != nil {
		return nil, err
	}

	s.record(db, models.ActionCreate, taskEntity(t), t.ID, nil, taskSnapshot(t))
	return &t, nil
}

// GetTask returns a task by id.
func (s *Service) GetTask(_ context.Context, projectID, id string) (*models.Task, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	return db.GetTask(id)
}

// ListTasks returns every task in the project.
func (s *Service) ListTasks(_ context.Context, projectID string) ([]models.Task, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := db.ListTasks()
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// UpdateTask applies a partial update and records the field-level diff.
func (s *Service) UpdateTask(_ context.Context, projectID, id string, in TaskUpdate) (*models.Task, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	existing, err := db.GetTask(id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if in.Title != nil {
		if *in.Title == "" {
			return nil, fmt.Errorf("boardservice: title is required: %w", apperr.ErrValidation)
		}
		updated.Title = *in.Title
	}
	if in.Description != nil {
		updated.Description = *in.Description
	}
	if in.Status != nil {
		if err := s.checkStatus(*in.Status, s.board.TaskStatuses); err != nil {
			return nil, err
		}
		updated.Status = *in.Status
	}
	if in.Priority != nil {
		if err := s.checkPriority(*in.Priority); err != nil {
			return nil, err
		}
		updated.Priority = *in.Priority
	}
	if in.EpicID != nil {
		if *in.EpicID != "" {
			if _, err := db.GetEpic(*in.EpicID); err != nil {
				return nil, fmt.Errorf("boardservice: epic %s: %w", *in.EpicID, err)
			}
		}
		updated.EpicID = *in.EpicID
	}
	if in.ParentTaskID != nil {
		if *in.ParentTaskID == id {
			return nil, fmt.Errorf("boardservice: task cannot be its own parent: %w", apperr.ErrValidation)
		}
		if *in.ParentTaskID != "" {
			if _, err := db.GetTask(*in.ParentTaskID); err != nil {
				return nil, fmt.Errorf("boardservice: parent task %s: %w", *in.ParentTaskID, err)
			}
		}
		updated.ParentTaskID = *in.ParentTaskID
	}
	if in.Tags != nil {
		updated.Tags = *in.Tags
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := db.UpdateTask(updated); err != nil {
		return nil, err
	}

	s.record(db, models.ActionUpdate, taskEntity(updated), id, taskFields(*existing), taskFields(updated))
	return &updated, nil
}

// DeleteTask removes a task together with its comments and dependency
// edges, recording a delete event for each removed row.
func (s *Service) DeleteTask(_ context.Context, projectID, id string) error {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return err
	}
	existing, err := db.GetTask(id)
	if err != nil {
		return err
	}

	comments, err := db.ListComments(id)
	if err != nil {
		return err
	}
	for _, c := range comments {
		if err := db.DeleteComment(c.ID); err != nil {
			return err
		}
		s.record(db, models.ActionDelete, models.EntityComment, c.ID, commentSnapshot(c), nil)
	}

	edges, err := db.ListDependencies()
	if err != nil {
		return err
	}
	for _, d := range edges {
		if d.TaskID != id && d.DependsOnID != id {
			continue
		}
		if err := db.DeleteDependency(d.TaskID, d.DependsOnID); err != nil {
			return err
		}
		s.record(db, models.ActionDelete, models.EntityDependency, d.ID, map[string]any{
			"id": d.ID, "taskId": d.TaskID, "dependsOnId": d.DependsOnID, "createdAt": d.CreatedAt,
		}, nil)
	}

	if err := db.DeleteTask(id); err != nil {
		return err
	}
	s.record(db, models.ActionDelete, taskEntity(*existing), id, taskSnapshot(*existing), nil)
	return nil
}

// EpicInput is the payload for creating an epic.
type EpicInput struct {
	Title       string
	Description string
	Status      string
	Priority    *int
}

// EpicUpdate is a partial update; nil fields are left untouched.
type EpicUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *int
}

// CreateEpic validates the input, persists the epic, and records a
// create event.
func (s *Service) CreateEpic(_ context.Context, projectID string, in EpicInput) (*models.Epic, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	if in.Title == "" {
		return nil, fmt.Errorf("boardservice: title is required: %w", apperr.ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = s.board.EpicStatuses[0]
	}
	if err := s.checkStatus(status, s.board.EpicStatuses); err != nil {
		return nil, err
	}
	priority := 2
	if in.Priority != nil {
		priority = *in.Priority
	}
	if err := s.checkPriority(priority); err != nil {
		return nil, err
	}

	id, err := db.NextID(models.EntityEpic)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	e := models.Epic{
		ID:          id,
		ProjectID:   projectID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    priority,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.InsertEpic(e); err != nil {
		return nil, err
	}

	s.record(db, models.ActionCreate, models.EntityEpic, e.ID, nil, epicSnapshot(e))
	return &e, nil
}

// GetEpic returns an epic by id.
func (s *Service) GetEpic(_ context.Context, projectID, id string) (*models.Epic, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	return db.GetEpic(id)
}

// ListEpics returns every epic in the project.
func (s *Service) ListEpics(_ context.Context, projectID string) ([]models.Epic, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	epics, err := db.ListEpics()
	if err != nil {
		return nil, err
	}
	if epics == nil {
		epics = []models.Epic{}
	}
	return epics, nil
}

// UpdateEpic applies a partial update and records the field-level diff.
func (s *Service) UpdateEpic(_ context.Context, projectID, id string, in EpicUpdate) (*models.Epic, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	existing, err := db.GetEpic(id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if in.Title != nil {
		if *in.Title == "" {
			return nil, fmt.Errorf("boardservice: title is required: %w", apperr.ErrValidation)
		}
		updated.Title = *in.Title
	}
	if in.Description != nil {
		updated.Description = *in.Description
	}
	if in.Status != nil {
		if err := s.checkStatus(*in.Status, s.board.EpicStatuses); err != nil {
			return nil, err
		}
		updated.Status = *in.Status
	}
	if in.Priority != nil {
		if err := s.checkPriority(*in.Priority); err != nil {
			return nil, err
		}
		updated.Priority = *in.Priority
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := db.UpdateEpic(updated); err != nil {
		return nil, err
	}

	s.record(db, models.ActionUpdate, models.EntityEpic, id, epicFields(*existing), epicFields(updated))
	return &updated, nil
}

// DeleteEpic removes an epic, detaching its tasks, and records a delete
// event.
func (s *Service) DeleteEpic(_ context.Context, projectID, id string) error {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return err
	}
	existing, err := db.GetEpic(id)
	if err != nil {
		return err
	}
	if err := db.DeleteEpic(id); err != nil {
		return err
	}
	s.record(db, models.ActionDelete, models.EntityEpic, id, epicSnapshot(*existing), nil)
	return nil
}

// AddComment appends a comment to a task and records a create event.
func (s *Service) AddComment(_ context.Context, projectID, taskID, author, content string) (*models.Comment, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("boardservice: content is required: %w", apperr.ErrValidation)
	}
	if author == "" {
		author = "anonymous"
	}
	if _, err := db.GetTask(taskID); err != nil {
		return nil, fmt.Errorf("boardservice: task %s: %w", taskID, err)
	}

	id, err := db.NextID(models.EntityComment)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	c := models.Comment{
		ID:        id,
		TaskID:    taskID,
		Author:    author,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.InsertComment(c); err != nil {
		return nil, err
	}

	s.record(db, models.ActionCreate, models.EntityComment, c.ID, nil, commentSnapshot(c))
	return &c, nil
}

// ListComments returns a task's comments oldest first.
func (s *Service) ListComments(_ context.Context, projectID, taskID string) ([]models.Comment, error) {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return nil, err
	}
	comments, err := db.ListComments(taskID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return comments, nil
}

// DeleteComment removes a comment and records a delete event.
func (s *Service) DeleteComment(_ context.Context, projectID, id string) error {
	db, err := s.provider.Get(projectID)
	if err != nil {
		return err
	}
	existing, err := db.GetComment(id)
	if err != nil {
		return err
	}
	if err := db.DeleteComment(id); err != nil {
		return err
	}
	s.record(db, models.ActionDelete, models.EntityComment, id, commentSnapshot(*existing), nil)
	return nil
}

func (s *Service) checkStatus(status string, allowed []string) error {
	vals := make([]any, len(allowed))
	for i, v := range allowed {
		vals[i] = v
	}
	if err := validation.Validate(status, validation.In(vals...)); err != nil {
		return fmt.Errorf("boardservice: status %q: %w", status, apperr.ErrValidation)
	}
	return nil
}

func (s *Service) checkPriority(p int) error {
	if p < 0 || p >= s.board.PriorityLevels {
		return fmt.Errorf("boardservice: priority %d out of range: %w", p, apperr.ErrValidation)
	}
	return nil
}

// record appends an audit event best-effort: the entity write is never
// rolled back when the append fails, but the failure is surfaced.
func (s *Service) record(db *store.DB, action, entityType, entityID string, before, after map[string]any) {
	if _, err := s.recorder.Record(db, action, entityType, entityID, before, after); err != nil {
		s.logger.Warn("boardservice: audit append failed",
			slog.String("action", action),
			slog.String("entity_type", entityType),
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()))
	}
}

func taskEntity(t models.Task) string {
	if t.ParentTaskID != "" {
		return models.EntitySubtask
	}
	return models.EntityTask
}

// taskSnapshot is the full entity state captured at create/delete time.
func taskSnapshot(t models.Task) map[string]any {
	m := taskFields(t)
	m["id"] = t.ID
	m["projectId"] = t.ProjectID
	m["createdAt"] = t.CreatedAt
	m["updatedAt"] = t.UpdatedAt
	return m
}

// taskFields holds only the mutable fields, so that update diffs never
// report timestamp churn.
func taskFields(t models.Task) map[string]any {
	return map[string]any{
		"epicId":       t.EpicID,
		"parentTaskId": t.ParentTaskID,
		"title":        t.Title,
		"description":  t.Description,
		"priority":     t.Priority,
		"status":       t.Status,
		"tags":         t.Tags,
	}
}

func epicSnapshot(e models.Epic) map[string]any {
	m := epicFields(e)
	m["id"] = e.ID
	m["projectId"] = e.ProjectID
	m["createdAt"] = e.CreatedAt
	m["updatedAt"] = e.UpdatedAt
	return m
}

func epicFields(e models.Epic) map[string]any {
	return map[string]any{
		"title":       e.Title,
		"description": e.Description,
		"priority":    e.Priority,
		"status":      e.Status,
	}
}

func commentSnapshot(c models.Comment) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"taskId":    c.TaskID,
		"author":    c.Author,
		"content":   c.Content,
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}
