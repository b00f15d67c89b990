package history

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/testutil"
)

func TestRecordCreateStoresSnapshot(t *testing.T) {
	db := testutil.TestDB(t)
	r := New()

	after := map[string]any{"id": "TASK-1", "title": "Build it", "status": "todo"}
	e, err := r.Record(db, models.ActionCreate, models.EntityTask, "TASK-1", nil, after)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.ID == 0 {
		t.Error("event id not assigned")
	}
	if diff := cmp.Diff(after, e.Snapshot); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if e.Changes != nil {
		t.Errorf("create event has changes: %+v", e.Changes)
	}
}

func TestRecordDeleteStoresBeforeState(t *testing.T) {
	db := testutil.TestDB(t)
	r := New()

	before := map[string]any{"id": "TASK-1", "title": "Build it", "status": "completed"}
	e, err := r.Record(db, models.ActionDelete, models.EntityTask, "TASK-1", before, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, e.Snapshot); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordUpdateDiffsSingleField(t *testing.T) {
	db := testutil.TestDB(t)
	r := New()

	before := map[string]any{"title": "Build it", "status": "todo", "priority": 2}
	after := map[string]any{"title": "Build it", "status": "in_progress", "priority": 2}

	e, err := r.Record(db, models.ActionUpdate, models.EntityTask, "TASK-1", before, after)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]models.FieldChange{
		"status": {From: "todo", To: "in_progress"},
	}
	if diff := cmp.Diff(want, e.Changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if e.Snapshot != nil {
		t.Errorf("update event has snapshot: %+v", e.Snapshot)
	}
}

func TestRecordUnknownAction(t *testing.T) {
	db := testutil.TestDB(t)
	r := New()

	_, err := r.Record(db, "rename", models.EntityTask, "TASK-1", nil, nil)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestDiff(t *testing.T) {
	before := map[string]any{"a": 1, "b": "x", "gone": true}
	after := map[string]any{"a": 2, "b": "x", "new": "y"}

	got := Diff(before, after)
	want := map[string]models.FieldChange{
		"a":    {From: 1, To: 2},
		"gone": {From: true, To: nil},
		"new":  {From: nil, To: "y"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff mismatch (-want +got):\n%s", diff)
	}
}

func seedEvents(t *testing.T, db *store.DB, n int) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		_, err := db.AppendEvent(models.Event{
			Action:     models.ActionCreate,
			EntityType: models.EntityTask,
			EntityID:   "TASK-1",
			Snapshot:   map[string]any{"n": i},
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestQueryDefaultsAndOrder(t *testing.T) {
	db := testutil.TestDB(t)
	r := New()
	seedEvents(t, db, 3)

	page, err := r.Query(db, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if page.Total != 3 || page.Page != 1 || page.Limit != 50 {
		t.Errorf("page = %+v", page)
	}
	// Newest first.
	for i := 1; i < len(page.Events); i++ {
		if page.Events[i].Timestamp.After(page.Events[i-1].Timestamp) {
			t.Fatalf("events out of order at %d", i)
		}
	}
}

func TestQueryPagination(t *testing.T) {
	db := testutil.TestDB(t)
	r := New()
	seedEvents(t, db, 7)

	page, err := r.Query(db, Filter{Limit: 3, Page: 3})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 7 || len(page.Events) != 1 {
		t.Errorf("total = %d, len = %d", page.Total, len(page.Events))
	}

	// Past the last page yields an empty, non-nil slice.
	page, err = r.Query(db, Filter{Limit: 3, Page: 9})
	if err != nil {
		t.Fatal(err)
	}
	if page.Events == nil || len(page.Events) != 0 {
		t.Errorf("events = %+v", page.Events)
	}
}

func TestQueryRejectsBadFilters(t *testing.T) {
	db := testutil.TestDB(t)
	r := New()

	cases := []struct {
		name string
		f    Filter
	}{
		{"negative page", Filter{Page: -1}},
		{"negative limit", Filter{Limit: -5}},
		{"oversized limit", Filter{Limit: 10_000}},
		{"unknown type", Filter{Types: []string{"widget"}}},
		{"unknown action", Filter{Actions: []string{"rename"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.Query(db, tc.f); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestTimelineAcrossActions(t *testing.T) {
	db := testutil.TestDB(t)
	r := New()

	state := map[string]any{"title": "Ship", "status": "todo"}
	if _, err := r.Record(db, models.ActionCreate, models.EntityTask, "TASK-1", nil, state); err != nil {
		t.Fatal(err)
	}
	next := map[string]any{"title": "Ship", "status": "completed"}
	if _, err := r.Record(db, models.ActionUpdate, models.EntityTask, "TASK-1", state, next); err != nil {
		t.Fatal(err)
	}

	page, err := r.Query(db, Filter{EntityID: "TASK-1"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d", page.Total)
	}
	if page.Events[0].Action != models.ActionUpdate || page.Events[1].Action != models.ActionCreate {
		t.Errorf("order = %s, %s", page.Events[0].Action, page.Events[1].Action)
	}
}
