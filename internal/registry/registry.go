// ABOUTME: Directory-backed template registry with full reload-and-swap
// ABOUTME: Invalid files are logged and skipped; loading never aborts the set

package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry holds the in-memory template set for one kind. The map is
// replaced wholesale on reload, never mutated in place.
type Registry struct {
	kind   Kind
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template
}

// New creates a registry for kind backed by dir. Pass nil logger for default.
func New(kind Kind, dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		kind:      kind,
		dir:       dir,
		logger:    logger.With("component", "registry", "kind", string(kind)),
		templates: make(map[string]*Template),
	}
}

// Dir returns the watched directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Kind returns the registry's template kind.
func (r *Registry) Kind() Kind {
	return r.kind
}

// LoadAll discovers eligible files, validates each and swaps the in-memory
// set. The directory is created if absent. A file that fails to parse or
// validate is skipped; the remaining files still load.
func (r *Registry) LoadAll() error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("creating template directory: %w", err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading template directory: %w", err)
	}

	loaded := make(map[string]*Template)
	for _, entry := range entries {
		if entry.IsDir() || !eligible(entry.Name()) {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		tmpl, err := loadFile(path, r.kind)
		if err != nil {
			r.logger.Warn("skipping template file", "file", entry.Name(), "error", err)
			continue
		}

		if prev, dup := loaded[tmpl.ID]; dup {
			r.logger.Warn("duplicate template id, later file wins",
				"id", tmpl.ID, "file", entry.Name(), "previous", prev.Name)
		}
		loaded[tmpl.ID] = tmpl
	}

	r.mu.Lock()
	r.templates = loaded
	r.mu.Unlock()

	r.logger.Info("templates loaded", "count", len(loaded))
	return nil
}

// Get looks up a template by id. Absence is a normal result.
func (r *Registry) Get(id string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[id]
	return tmpl, ok
}

// List returns all templates sorted by id.
func (r *Registry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Template, 0, len(r.templates))
	for _, tmpl := range r.templates {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of loaded templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// eligible reports whether a file name is a loadable template source.
// Underscore-prefixed files are private scratch files.
func eligible(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, "_")
}

// loadFile parses and validates one template file.
func loadFile(path string, kind Kind) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}

	var tmpl Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := tmpl.Validate(kind); err != nil {
		return nil, err
	}
	return &tmpl, nil
}
