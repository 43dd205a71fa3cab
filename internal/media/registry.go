package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Registry maps imported assets to stable identifiers
type Registry struct {
	mu     sync.RWMutex
	assets map[string]*Asset
	byPath map[string]string
	order  []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[string]*Asset),
		byPath: make(map[string]string),
	}
}

// Import probes path and registers it. Importing a path twice returns the
// existing asset.
func (r *Registry) Import(ctx context.Context, prober Prober, path string) (*Asset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("import: path is required")
	}
	if prober == nil {
		return nil, fmt.Errorf("import: prober is required")
	}

	r.mu.RLock()
	if id, ok := r.byPath[path]; ok {
		asset := r.assets[id]
		r.mu.RUnlock()
		return asset, nil
	}
	r.mu.RUnlock()

	info, err := prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	if !info.Kind.Valid() {
		return nil, fmt.Errorf("probe %s: unsupported media", path)
	}
	if info.Kind != KindImage && info.Duration <= 0 {
		return nil, fmt.Errorf("probe %s: zero duration", path)
	}

	asset := &Asset{
		ID:   uuid.NewString(),
		Path: path,
		Name: filepath.Base(path),
		Info: info,
	}
	if err := r.Add(asset); err != nil {
		// Lost a race with a concurrent import of the same path
		if existing, ok := r.Lookup(path); ok {
			return existing, nil
		}
		return nil, err
	}
	return asset, nil
}

// Add registers an already probed asset, as done when loading a project
func (r *Registry) Add(asset *Asset) error {
	if asset == nil || asset.ID == "" {
		return fmt.Errorf("asset id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[asset.ID]; ok {
		return fmt.Errorf("duplicate asset id %s", asset.ID)
	}
	if _, ok := r.byPath[asset.Path]; ok {
		return fmt.Errorf("duplicate asset path %s", asset.Path)
	}
	r.assets[asset.ID] = asset
	r.byPath[asset.Path] = asset.ID
	r.order = append(r.order, asset.ID)
	return nil
}

// Get retrieves an asset by ID
func (r *Registry) Get(id string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[id]
	return asset, ok
}

// Lookup retrieves an asset by source path
func (r *Registry) Lookup(path string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPath[path]
	if !ok {
		return nil, false
	}
	return r.assets[id], true
}

// Remove drops an asset from the registry. Callers must make sure no clip
// still references it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.assets[id]
	if !ok {
		return false
	}
	delete(r.assets, id)
	delete(r.byPath, asset.Path)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Assets returns all assets in import order
func (r *Registry) Assets() []*Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Asset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.assets[id])
	}
	return out
}

// Len returns the number of registered assets
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clone returns an independent registry holding the same assets. Assets are
// immutable so they are shared, not copied.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := &Registry{
		assets: make(map[string]*Asset, len(r.assets)),
		byPath: make(map[string]string, len(r.byPath)),
		order:  append([]string(nil), r.order...),
	}
	for id, a := range r.assets {
		cp.assets[id] = a
	}
	for p, id := range r.byPath {
		cp.byPath[p] = id
	}
	return cp
}
