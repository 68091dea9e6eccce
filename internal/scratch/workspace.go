// Package scratch manages the per-run working directories that hold page
// images while a PDF is processed.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spherical/barcode-extractor/internal/domain"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Workspace is a scratch directory owned by exactly one pipeline run
type Workspace struct {
	dir string
}

// New creates <root>/run-<runID>. The root is created if missing; the run
// directory must not exist yet.
func New(root, runID string) (*Workspace, error) {
	if runID == "" {
		return nil, domain.ValidationError("run ID cannot be empty", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot create scratch root %s", root), err)
	}

	dir := filepath.Join(root, "run-"+runID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot create scratch directory %s", dir), err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Reset empties the workspace, keeping the directory itself.
func (w *Workspace) Reset() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return domain.IOError(fmt.Sprintf("cannot list scratch directory %s", w.dir), err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(w.dir, e.Name())); err != nil {
			return domain.IOError(fmt.Sprintf("cannot clear scratch directory %s", w.dir), err)
		}
	}
	return nil
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return domain.IOError(fmt.Sprintf("cannot remove scratch directory %s", w.dir), err)
	}
	return nil
}
