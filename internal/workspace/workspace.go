// Package workspace manages the project registry: which projects exist
// and which datastore file each one is bound to.
package workspace

import (
	"fmt"
	"os"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/apperr"
)

// Project binds a logical workspace to exactly one datastore file.
type Project struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Path    string `yaml:"path" json:"path"`
	Color   string `yaml:"color" json:"color,omitempty"`
	Default bool   `yaml:"default" json:"default"`
}

// Validate validates a single project entry.
func (p Project) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Path, validation.Required),
	)
}

type registryFile struct {
	Projects []Project `yaml:"projects"`
}

// Registry holds the loaded project set. It is constructed once at
// process start and injected into every component that resolves
// projects; Reload replaces the set in place.
type Registry struct {
	path string

	mu       sync.RWMutex
	projects []Project
}

// Load reads the registry file at path and returns a Registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file and atomically replaces the project
// set. On any error the previous set is kept.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("workspace: read registry %s: %w", r.path, err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("workspace: parse registry %s: %w", r.path, err)
	}
	if len(f.Projects) == 0 {
		return fmt.Errorf("workspace: registry %s has no projects", r.path)
	}

	seen := make(map[string]struct{}, len(f.Projects))
	for _, p := range f.Projects {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("workspace: project %q: %w", p.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("workspace: duplicate project id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	r.mu.Lock()
	r.projects = f.Projects
	r.mu.Unlock()
	return nil
}

// Project returns the project with the given id.
func (r *Registry) Project(id string) (Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return Project{}, fmt.Errorf("workspace: project %q: %w", id, apperr.ErrNotFound)
}

// Projects returns a copy of the registered project list.
func (r *Registry) Projects() []Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Project, len(r.projects))
	copy(out, r.projects)
	return out
}

// Default returns the project marked default, or the first entry when
// none is marked.
func (r *Registry) Default() Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if p.Default {
			return p
		}
	}
	return r.projects[0]
}
