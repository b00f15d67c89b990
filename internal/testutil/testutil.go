// Package testutil provides shared test helpers for setting up project databases and workspaces.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/workspace"
)

// TestDB creates a temporary project database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "raido-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace writes a registry file describing the given project ids,
// each with its own database path under a temp directory, and loads it.
// The first project is marked as the default.
func TestWorkspace(t *testing.T, projectIDs ...string) *workspace.Registry {
	t.Helper()
	if len(projectIDs) == 0 {
		projectIDs = []string{"alpha"}
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "projects.yaml")

	doc := "projects:\n"
	for i, id := range projectIDs {
		doc += fmt.Sprintf("  - id: %s\n    name: %s\n    path: %s\n",
			id, id, filepath.Join(dir, id+".db"))
		if i == 0 {
			doc += "    default: true\n"
		}
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := workspace.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}
