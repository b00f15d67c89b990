package depgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/testutil"
)

// fixedProvider serves one datastore for every project id.
type fixedProvider struct {
	db *store.DB
}

func (p *fixedProvider) Get(string) (*store.DB, error) { return p.db, nil }

func testEngine(t *testing.T) (*Engine, *store.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(&fixedProvider{db: db}, history.New(), logger), db
}

func addTask(t *testing.T, db *store.DB, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := db.InsertTask(models.Task{
		ID: id, ProjectID: "alpha", Title: id, Priority: 2, Status: "todo",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAddDependency(t *testing.T) {
	e, db := testEngine(t)
	addTask(t, db, "TASK-1")
	addTask(t, db, "TASK-2")

	dep, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-2")
	if err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	if dep.TaskID != "TASK-1" || dep.DependsOnID != "TASK-2" || dep.ID == "" {
		t.Errorf("dep = %+v", dep)
	}

	exists, err := db.DependencyExists("TASK-1", "TASK-2")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("edge not persisted")
	}

	// The write is audited.
	events, total, err := db.QueryEvents(store.EventQuery{Types: []string{models.EntityDependency}, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || events[0].Action != models.ActionCreate {
		t.Errorf("audit: total = %d, events = %+v", total, events)
	}
}

func TestSelfDependencyRejected(t *testing.T) {
	e, db := testEngine(t)
	addTask(t, db, "TASK-1")

	_, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-1")
	if !errors.Is(err, apperr.ErrSelfDependency) {
		t.Errorf("err = %v, want ErrSelfDependency", err)
	}
}

func TestUnknownTasksRejected(t *testing.T) {
	e, db := testEngine(t)
	addTask(t, db, "TASK-1")

	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-9", "TASK-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing dependent: err = %v", err)
	}
	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-9"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing target: err = %v", err)
	}
}

func TestDuplicateRejected(t *testing.T) {
	e, db := testEngine(t)
	addTask(t, db, "TASK-1")
	addTask(t, db, "TASK-2")

	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-2"); err != nil {
		t.Fatal(err)
	}
	_, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-2")
	if !errors.Is(err, apperr.ErrDuplicateDependency) {
		t.Errorf("err = %v, want ErrDuplicateDependency", err)
	}
}

func TestDirectCycleRejected(t *testing.T) {
	e, db := testEngine(t)
	addTask(t, db, "TASK-1")
	addTask(t, db, "TASK-2")

	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-2"); err != nil {
		t.Fatal(err)
	}
	_, err := e.AddDependency(context.Background(), "alpha", "TASK-2", "TASK-1")
	if !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("err = %v, want ErrCycle", err)
	}
}

func TestTransitiveCycleRejected(t *testing.T) {
	e, db := testEngine(t)
	for i := 1; i <= 4; i++ {
		addTask(t, db, fmt.Sprintf("TASK-%d", i))
	}

	// 1 -> 2 -> 3 -> 4
	for i := 1; i < 4; i++ {
		_, err := e.AddDependency(context.Background(), "alpha", fmt.Sprintf("TASK-%d", i), fmt.Sprintf("TASK-%d", i+1))
		if err != nil {
			t.Fatal(err)
		}
	}

	// 4 -> 1 closes the chain.
	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-4", "TASK-1"); !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("err = %v, want ErrCycle", err)
	}
	// 4 -> 2 closes a sub-chain.
	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-4", "TASK-2"); !errors.Is(err, apperr.ErrCycle) {
		t.Errorf("err = %v, want ErrCycle", err)
	}
	// A diamond is fine: 1 -> 3 shares no cycle.
	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-3"); err != nil {
		t.Errorf("diamond edge rejected: %v", err)
	}
}

// TestGraphStaysAcyclic inserts random edges and verifies the accepted
// set never contains a cycle, using an independent topological check.
func TestGraphStaysAcyclic(t *testing.T) {
	e, db := testEngine(t)

	const n = 12
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("TASK-%d", i+1)
		addTask(t, db, ids[i])
	}

	rng := rand.New(rand.NewSource(42))
	for range 200 {
		a, b := ids[rng.Intn(n)], ids[rng.Intn(n)]
		_, err := e.AddDependency(context.Background(), "alpha", a, b)
		if err != nil && !errors.Is(err, apperr.ErrSelfDependency) &&
			!errors.Is(err, apperr.ErrDuplicateDependency) && !errors.Is(err, apperr.ErrCycle) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	edges, err := db.ListDependencies()
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) == 0 {
		t.Fatal("no edges accepted")
	}

	// Kahn's algorithm: if every node can be peeled, the graph is a DAG.
	indeg := make(map[string]int, n)
	adj := make(map[string][]string, n)
	for _, id := range ids {
		indeg[id] = 0
	}
	for _, d := range edges {
		adj[d.TaskID] = append(adj[d.TaskID], d.DependsOnID)
		indeg[d.DependsOnID]++
	}
	var queue []string
	for id, deg := range indeg {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	peeled := 0
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		peeled++
		for _, next := range adj[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if peeled != n {
		t.Fatalf("accepted edge set contains a cycle: peeled %d of %d nodes", peeled, n)
	}
}

func TestRemoveDependency(t *testing.T) {
	e, db := testEngine(t)
	addTask(t, db, "TASK-1")
	addTask(t, db, "TASK-2")

	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-2"); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveDependency(context.Background(), "alpha", "TASK-1", "TASK-2"); err != nil {
		t.Fatalf("RemoveDependency: %v", err)
	}

	exists, _ := db.DependencyExists("TASK-1", "TASK-2")
	if exists {
		t.Error("edge survived removal")
	}

	// Removing again reports not found.
	if err := e.RemoveDependency(context.Background(), "alpha", "TASK-1", "TASK-2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	// Direction is now free to flip.
	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-2", "TASK-1"); err != nil {
		t.Errorf("reversed edge rejected after removal: %v", err)
	}
}

func TestDependsOnAndBlocks(t *testing.T) {
	e, db := testEngine(t)
	addTask(t, db, "TASK-1")
	addTask(t, db, "TASK-2")
	addTask(t, db, "TASK-3")

	// 1 -> 2, 3 -> 2
	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-1", "TASK-2"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddDependency(context.Background(), "alpha", "TASK-3", "TASK-2"); err != nil {
		t.Fatal(err)
	}

	deps, err := e.DependsOn(context.Background(), "alpha", "TASK-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0].DependsOnID != "TASK-2" {
		t.Errorf("dependsOn = %+v", deps)
	}

	blocks, err := e.Blocks(context.Background(), "alpha", "TASK-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Errorf("blocks len = %d", len(blocks))
	}

	// A task with no edges yields empty, not nil.
	none, err := e.DependsOn(context.Background(), "alpha", "TASK-2")
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("dependsOn(TASK-2) = %+v", none)
	}
}
