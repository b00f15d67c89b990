package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type projectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Default   bool   `json:"default"`
	Connected bool   `json:"connected"`
}

// ListProjects handles GET /api/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects := h.registry.Projects()
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectResponse{
			ID:        p.ID,
			Name:      p.Name,
			Color:     p.Color,
			Default:   p.ID == h.registry.Default().ID,
			Connected: h.pool.IsConnected(p.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projects": out,
		"current":  h.pool.CurrentID(),
	})
}

// PoolStatus handles GET /api/projects/status.
func (h *Handler) PoolStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": h.pool.Status(),
		"size":        h.pool.Size(),
		"current":     h.pool.CurrentID(),
	})
}

// SwitchProject handles POST /api/projects/{id}/switch.
func (h *Handler) SwitchProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.pool.Switch(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": id})
}

// CloseConnection handles DELETE /api/projects/{id}/connection.
func (h *Handler) CloseConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
