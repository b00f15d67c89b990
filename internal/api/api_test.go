package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/starford/raido/internal/boardservice"
	"github.com/starford/raido/internal/depgraph"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/pool"
	"github.com/starford/raido/internal/testutil"
)

// testEnv builds a workspace with one project, a pool, the full service
// stack, and the API router. authToken="" means auth disabled.
func testEnv(t *testing.T, authToken string) http.Handler {
	t.Helper()

	registry := testutil.TestWorkspace(t, "alpha", "beta")
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	conns := pool.New(registry, 10, time.Minute, logger)
	t.Cleanup(func() { _ = conns.CloseAll() })

	recorder := history.New()
	graph := depgraph.New(conns, recorder, logger)
	board := boardservice.NewService(conns, recorder, boardservice.Board{
		TaskStatuses:   []string{"todo", "in_progress", "completed", "wont_fix", "archived"},
		EpicStatuses:   []string{"todo", "in_progress", "completed", "archived"},
		PriorityLevels: 6,
	}, logger)

	return NewRouter(board, graph, recorder, conns, registry, authToken != "", authToken, nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createTask(t *testing.T, router http.Handler, title string) models.Task {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{"title": title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create task status = %d, body = %s", w.Code, w.Body.String())
	}
	var task models.Task
	if err := json.Unmarshal(w.Body.Bytes(), &task); err != nil {
		t.Fatal(err)
	}
	return task
}

func TestCreateAndGetTask(t *testing.T) {
	router := testEnv(t, "")

	task := createTask(t, router, "Ship it")
	if task.ID == "" || task.Status != "todo" || task.Priority != 2 {
		t.Errorf("task = %+v", task)
	}

	w := doJSON(t, router, http.MethodGet, "/tasks/"+task.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Task
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Ship it" {
		t.Errorf("title = %q", got.Title)
	}

	w = doJSON(t, router, http.MethodGet, "/tasks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Tasks []models.Task `json:"tasks"`
		Total int           `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Tasks) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestUpdateAndDeleteTask(t *testing.T) {
	router := testEnv(t, "")
	task := createTask(t, router, "Edit me")

	w := doJSON(t, router, http.MethodPatch, "/tasks/"+task.ID, map[string]any{"status": "completed"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated models.Task
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Status != "completed" || updated.Title != "Edit me" {
		t.Errorf("updated = %+v", updated)
	}

	w = doJSON(t, router, http.MethodDelete, "/tasks/"+task.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/tasks/"+task.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	router := testEnv(t, "")

	// Missing title.
	w := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{"description": "no title"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing title status = %d", w.Code)
	}

	// Unknown status.
	w = doJSON(t, router, http.MethodPost, "/tasks", map[string]any{"title": "x", "status": "done"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad status code = %d", w.Code)
	}

	// Malformed JSON.
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	router := testEnv(t, "sesame")

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer sesame")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d", w.Code)
	}
}

func TestDependencyEndpoints(t *testing.T) {
	router := testEnv(t, "")
	a := createTask(t, router, "A")
	b := createTask(t, router, "B")

	// Create edge A -> B.
	w := doJSON(t, router, http.MethodPost, "/dependencies", map[string]any{"taskId": a.ID, "dependsOnId": b.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create dep status = %d, body = %s", w.Code, w.Body.String())
	}

	// Duplicate.
	w = doJSON(t, router, http.MethodPost, "/dependencies", map[string]any{"taskId": a.ID, "dependsOnId": b.ID})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", w.Code)
	}

	// Cycle.
	w = doJSON(t, router, http.MethodPost, "/dependencies", map[string]any{"taskId": b.ID, "dependsOnId": a.ID})
	if w.Code != http.StatusConflict {
		t.Errorf("cycle status = %d", w.Code)
	}

	// Self.
	w = doJSON(t, router, http.MethodPost, "/dependencies", map[string]any{"taskId": a.ID, "dependsOnId": a.ID})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self status = %d", w.Code)
	}

	// Both directions visible on the task.
	w = doJSON(t, router, http.MethodGet, "/tasks/"+a.ID+"/dependencies", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("deps status = %d", w.Code)
	}
	var deps struct {
		DependsOn []models.Dependency `json:"dependsOn"`
		Blocks    []models.Dependency `json:"blocks"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &deps)
	if len(deps.DependsOn) != 1 || len(deps.Blocks) != 0 {
		t.Errorf("deps = %+v", deps)
	}

	// Remove.
	w = doJSON(t, router, http.MethodDelete, "/dependencies?taskId="+a.ID+"&dependsOnId="+b.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete dep status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodDelete, "/dependencies?taskId="+a.ID+"&dependsOnId="+b.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete missing dep status = %d", w.Code)
	}
}

func TestCommentEndpoints(t *testing.T) {
	router := testEnv(t, "")
	task := createTask(t, router, "Discuss")

	w := doJSON(t, router, http.MethodPost, "/tasks/"+task.ID+"/comments", map[string]any{"author": "alice", "content": "hi"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create comment status = %d, body = %s", w.Code, w.Body.String())
	}
	var c models.Comment
	_ = json.Unmarshal(w.Body.Bytes(), &c)
	if c.Author != "alice" || c.Content != "hi" {
		t.Errorf("comment = %+v", c)
	}

	w = doJSON(t, router, http.MethodGet, "/tasks/"+task.ID+"/comments", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list comments status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/comments/"+c.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete comment status = %d", w.Code)
	}
}

func TestEpicEndpoints(t *testing.T) {
	router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/epics", map[string]any{"title": "Big rock"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create epic status = %d, body = %s", w.Code, w.Body.String())
	}
	var epic models.Epic
	_ = json.Unmarshal(w.Body.Bytes(), &epic)

	w = doJSON(t, router, http.MethodPatch, "/epics/"+epic.ID, map[string]any{"status": "in_progress"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch epic status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/epics/"+epic.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete epic status = %d", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	router := testEnv(t, "")
	task := createTask(t, router, "Audit me")

	w := doJSON(t, router, http.MethodPatch, "/tasks/"+task.ID, map[string]any{"status": "in_progress"})
	if w.Code != http.StatusOK {
		t.Fatal(w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/history?entityId="+task.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d, body = %s", w.Code, w.Body.String())
	}
	var page history.Page
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
	if page.Events[0].Action != models.ActionUpdate || page.Events[1].Action != models.ActionCreate {
		t.Errorf("order = %s, %s", page.Events[0].Action, page.Events[1].Action)
	}

	// Action filter.
	w = doJSON(t, router, http.MethodGet, "/history?action=update", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 1 {
		t.Errorf("filtered total = %d", page.Total)
	}

	// Bad filter values are rejected, not ignored.
	w = doJSON(t, router, http.MethodGet, "/history?page=-1", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative page status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/history?since=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d", w.Code)
	}
}

func TestProjectEndpoints(t *testing.T) {
	router := testEnv(t, "")

	// Touch the default project so it shows as connected.
	createTask(t, router, "warm up")

	w := doJSON(t, router, http.MethodGet, "/projects", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("projects status = %d", w.Code)
	}
	var projects struct {
		Projects []projectResponse `json:"projects"`
		Current  string            `json:"current"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &projects)
	if len(projects.Projects) != 2 || projects.Current != "alpha" {
		t.Errorf("projects = %+v", projects)
	}

	// Switch to beta.
	w = doJSON(t, router, http.MethodPost, "/projects/beta/switch", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("switch status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/projects/status", nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Code)
	}
	var status struct {
		Size    int    `json:"size"`
		Current string `json:"current"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &status)
	if status.Size != 2 || status.Current != "beta" {
		t.Errorf("status = %+v", status)
	}

	// Switching to an unknown project fails upstream.
	w = doJSON(t, router, http.MethodPost, "/projects/ghost/switch", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("ghost switch status = %d", w.Code)
	}

	// Close a connection.
	w = doJSON(t, router, http.MethodDelete, "/projects/beta/connection", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("close status = %d", w.Code)
	}
}

// Requests can address a non-default project explicitly.
func TestProjectSelection(t *testing.T) {
	router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/tasks?projectId=beta", map[string]any{"title": "On beta"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create on beta status = %d", w.Code)
	}

	// The default project does not see it.
	w = doJSON(t, router, http.MethodGet, "/tasks?projectId=alpha", nil)
	var list struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 0 {
		t.Errorf("alpha total = %d", list.Total)
	}

	// Header selection works too.
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("X-Project-Id", "beta")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Total != 1 {
		t.Errorf("beta total = %d", list.Total)
	}
}
