package index

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry maps index keys to published, immutable indexes. At most one
// build runs per key; builds for distinct keys proceed in parallel.
type Registry struct {
	cachePath string

	mu        sync.RWMutex
	published map[string]*Index

	builds singleflight.Group
}

// NewRegistry creates a registry whose builds persist the parse cache at
// cachePath.
func NewRegistry(cachePath string) *Registry {
	return &Registry{
		cachePath: cachePath,
		published: make(map[string]*Index),
	}
}

// Get returns the published index for key, if any.
func (r *Registry) Get(key Key) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.published[key.String()]
	return idx, ok
}

// GetOrBuild returns the published index for key, building it when absent.
// Concurrent callers for the same key share one build: the first installs
// the flight, the rest wait on it and receive the same index or build error.
// A failed build publishes nothing, so the next caller retries.
func (r *Registry) GetOrBuild(ctx context.Context, key Key) (*Index, error) {
	ks := key.String()

	r.mu.RLock()
	idx, ok := r.published[ks]
	r.mu.RUnlock()
	if ok {
		return idx, nil
	}

	v, err, _ := r.builds.Do(ks, func() (any, error) {
		// Re-check under the flight: a build may have published between the
		// fast path and Do.
		r.mu.RLock()
		existing, ok := r.published[ks]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		built, err := Build(ctx, key, r.cachePath)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.published[ks] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

// Rebuild forces a fresh build and atomically replaces the published index.
// Readers holding the previous index keep a consistent snapshot.
func (r *Registry) Rebuild(ctx context.Context, key Key) (*Index, error) {
	built, err := Build(ctx, key, r.cachePath)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.published[key.String()] = built
	r.mu.Unlock()
	return built, nil
}

// Warmup ensures the index for key is published.
func (r *Registry) Warmup(ctx context.Context, key Key) error {
	_, err := r.GetOrBuild(ctx, key)
	return err
}

// Invalidate drops the published index for key.
func (r *Registry) Invalidate(key Key) {
	r.mu.Lock()
	delete(r.published, key.String())
	r.mu.Unlock()
}

// Count reports the number of currently-published indexes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.published)
}
