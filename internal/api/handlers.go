package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/boardservice"
	"github.com/starford/raido/internal/depgraph"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/pool"
	"github.com/starford/raido/internal/workspace"
)

// Handler holds API route handlers. Every core component arrives by
// injection; nothing is reached through package-level state.
type Handler struct {
	board    *boardservice.Service
	graph    *depgraph.Engine
	recorder *history.Recorder
	pool     *pool.Manager
	registry *workspace.Registry
}

// NewHandler creates a new Handler.
func NewHandler(board *boardservice.Service, graph *depgraph.Engine, recorder *history.Recorder, p *pool.Manager, registry *workspace.Registry) *Handler {
	return &Handler{board: board, graph: graph, recorder: recorder, pool: p, registry: registry}
}

// projectID resolves the project for a request: ?projectId= first, then
// the X-Project-Id header, then the workspace default.
func (h *Handler) projectID(r *http.Request) string {
	if id := r.URL.Query().Get("projectId"); id != "" {
		return id
	}
	if id := r.Header.Get("X-Project-Id"); id != "" {
		return id
	}
	return h.registry.Default().ID
}

// ListTasks handles GET /api/tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.board.ListTasks(r.Context(), h.projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "total": len(tasks)})
}

// CreateTask handles POST /api/tasks.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	task, err := h.board.CreateTask(r.Context(), h.projectID(r), boardservice.TaskInput{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		EpicID:       req.EpicID,
		ParentTaskID: req.ParentTaskID,
		Tags:         req.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// GetTask handles GET /api/tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.board.GetTask(r.Context(), h.projectID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /api/tasks/{id}.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	task, err := h.board.UpdateTask(r.Context(), h.projectID(r), chi.URLParam(r, "id"), boardservice.TaskUpdate{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		EpicID:       req.EpicID,
		ParentTaskID: req.ParentTaskID,
		Tags:         req.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/tasks/{id}.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.board.DeleteTask(r.Context(), h.projectID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEpics handles GET /api/epics.
func (h *Handler) ListEpics(w http.ResponseWriter, r *http.Request) {
	epics, err := h.board.ListEpics(r.Context(), h.projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"epics": epics, "total": len(epics)})
}

// CreateEpic handles POST /api/epics.
func (h *Handler) CreateEpic(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createEpicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	epic, err := h.board.CreateEpic(r.Context(), h.projectID(r), boardservice.EpicInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, epic)
}

// GetEpic handles GET /api/epics/{id}.
func (h *Handler) GetEpic(w http.ResponseWriter, r *http.Request) {
	epic, err := h.board.GetEpic(r.Context(), h.projectID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, epic)
}

// UpdateEpic handles PATCH /api/epics/{id}.
func (h *Handler) UpdateEpic(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req updateEpicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	epic, err := h.board.UpdateEpic(r.Context(), h.projectID(r), chi.URLParam(r, "id"), boardservice.EpicUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, epic)
}

// DeleteEpic handles DELETE /api/epics/{id}.
func (h *Handler) DeleteEpic(w http.ResponseWriter, r *http.Request) {
	if err := h.board.DeleteEpic(r.Context(), h.projectID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComments handles GET /api/tasks/{id}/comments.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.board.ListComments(r.Context(), h.projectID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// CreateComment handles POST /api/tasks/{id}/comments.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	comment, err := h.board.AddComment(r.Context(), h.projectID(r), chi.URLParam(r, "id"), req.Author, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// DeleteComment handles DELETE /api/comments/{id}.
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.board.DeleteComment(r.Context(), h.projectID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateDependency handles POST /api/dependencies.
func (h *Handler) CreateDependency(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createDependencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.TaskID == "" || req.DependsOnID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("taskId and dependsOnId are required"))
		return
	}
	dep, err := h.graph.AddDependency(r.Context(), h.projectID(r), req.TaskID, req.DependsOnID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

// DeleteDependency handles DELETE /api/dependencies.
func (h *Handler) DeleteDependency(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	dependsOnID := r.URL.Query().Get("dependsOnId")
	if taskID == "" || dependsOnID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("taskId and dependsOnId query params are required"))
		return
	}
	if err := h.graph.RemoveDependency(r.Context(), h.projectID(r), taskID, dependsOnID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TaskDependencies handles GET /api/tasks/{id}/dependencies: both
// directions of the relation for one task.
func (h *Handler) TaskDependencies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	projectID := h.projectID(r)

	dependsOn, err := h.graph.DependsOn(r.Context(), projectID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	blocks, err := h.graph.Blocks(r.Context(), projectID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dependsOn": dependsOn, "blocks": blocks})
}

// History handles GET /api/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := history.Filter{EntityID: q.Get("entityId")}
	if v := q.Get("type"); v != "" {
		f.Types = strings.Split(v, ",")
	}
	if v := q.Get("action"); v != "" {
		f.Actions = strings.Split(v, ",")
	}
	for name, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		if v := q.Get(name); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, fmt.Errorf("invalid %s timestamp: %w", name, apperr.ErrValidation))
				return
			}
			*dst = &ts
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("invalid limit: %w", apperr.ErrValidation))
			return
		}
		f.Limit = n
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("invalid page: %w", apperr.ErrValidation))
			return
		}
		f.Page = n
	}

	db, err := h.pool.Get(h.projectID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.recorder.Query(db, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
