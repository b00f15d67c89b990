// Package history implements the append-only audit recorder: one
// immutable event per mutation, plus filtered, paginated queries.
package history

import (
	"fmt"
	"reflect"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Recorder appends audit events and answers history queries. It never
// edits or deletes prior records.
type Recorder struct{}

// New creates a Recorder.
func New() *Recorder {
	return &Recorder{}
}

// Record appends one event describing a mutation. For create the full
// after state is stored as a snapshot, for delete the before state. For
// update a field-level diff is computed: every field present in either
// map whose values differ yields a {from, to} entry; unchanged fields
// are omitted. An update with an empty diff is still recorded so the
// timeline stays complete.
func (r *Recorder) Record(st store.Store, action, entityType, entityID string, before, after map[string]any) (models.Event, error) {
	e := models.Event{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  time.Now().UTC(),
	}

	switch action {
	case models.ActionCreate:
		e.Snapshot = after
	case models.ActionDelete:
		e.Snapshot = before
	case models.ActionUpdate:
		e.Changes = Diff(before, after)
	default:
		return models.Event{}, fmt.Errorf("history: unknown action %q: %w", action, apperr.ErrValidation)
	}

	id, err := st.AppendEvent(e)
	if err != nil {
		return models.Event{}, fmt.Errorf("history: append: %w", err)
	}
	e.ID = id
	return e, nil
}

// Diff computes the field-level change map between two states.
func Diff(before, after map[string]any) map[string]models.FieldChange {
	changes := make(map[string]models.FieldChange)
	for field, prev := range before {
		next, ok := after[field]
		if !ok {
			changes[field] = models.FieldChange{From: prev, To: nil}
			continue
		}
		if !reflect.DeepEqual(prev, next) {
			changes[field] = models.FieldChange{From: prev, To: next}
		}
	}
	for field, next := range after {
		if _, ok := before[field]; !ok {
			changes[field] = models.FieldChange{From: nil, To: next}
		}
	}
	return changes
}

// Filter selects audit events. All fields are optional and combinable.
type Filter struct {
	EntityID string
	Types    []string
	Actions  []string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Page     int
}

// Validate rejects malformed filters rather than silently ignoring them.
func (f Filter) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Types, validation.Each(validation.In(
			models.EntityTask, models.EntitySubtask, models.EntityEpic,
			models.EntityComment, models.EntityDependency))),
		validation.Field(&f.Actions, validation.Each(validation.In(
			models.ActionCreate, models.ActionUpdate, models.ActionDelete))),
		validation.Field(&f.Limit, validation.Min(0), validation.Max(maxLimit)),
		validation.Field(&f.Page, validation.Min(0)),
	)
}

// Page is one page of query results, newest first.
type Page struct {
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
	Events []models.Event `json:"events"`
}

// Query returns events matching the filter ordered newest first
// (timestamp desc, id desc) with offset pagination. A malformed filter
// fails with apperr.ErrValidation.
func (r *Recorder) Query(st store.Store, f Filter) (*Page, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("history: %s: %w", err, apperr.ErrValidation)
	}

	limit := f.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	page := f.Page
	if page == 0 {
		page = 1
	}

	events, total, err := st.QueryEvents(store.EventQuery{
		EntityID: f.EntityID,
		Types:    f.Types,
		Actions:  f.Actions,
		Since:    f.Since,
		Until:    f.Until,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return &Page{Total: total, Page: page, Limit: limit, Events: events}, nil
}
