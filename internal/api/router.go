package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/boardservice"
	"github.com/starford/raido/internal/depgraph"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/pool"
	"github.com/starford/raido/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(board *boardservice.Service, graph *depgraph.Engine, recorder *history.Recorder, p *pool.Manager, registry *workspace.Registry, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(board, graph, recorder, p, registry)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Tasks CRUD.
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks", h.CreateTask)
	r.Get("/tasks/{id}", h.GetTask)
	r.Patch("/tasks/{id}", h.UpdateTask)
	r.Delete("/tasks/{id}", h.DeleteTask)

	// Comments.
	r.Get("/tasks/{id}/comments", h.ListComments)
	r.Post("/tasks/{id}/comments", h.CreateComment)
	r.Delete("/comments/{id}", h.DeleteComment)

	// Epics CRUD.
	r.Get("/epics", h.ListEpics)
	r.Post("/epics", h.CreateEpic)
	r.Get("/epics/{id}", h.GetEpic)
	r.Patch("/epics/{id}", h.UpdateEpic)
	r.Delete("/epics/{id}", h.DeleteEpic)

	// Dependency graph.
	r.Get("/tasks/{id}/dependencies", h.TaskDependencies)
	r.Post("/dependencies", h.CreateDependency)
	r.Delete("/dependencies", h.DeleteDependency)

	// Audit history.
	r.Get("/history", h.History)

	// Workspace projects and the connection pool.
	r.Get("/projects", h.ListProjects)
	r.Get("/projects/status", h.PoolStatus)
	r.Post("/projects/{id}/switch", h.SwitchProject)
	r.Delete("/projects/{id}/connection", h.CloseConnection)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
