package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// Handle is a loaded model ready to execute inference requests. params may be
// nil, meaning backend defaults. A handle may be executed concurrently only if
// its backend allows it; the scheduler serializes per-device, not per-model.
type Handle interface {
	Execute(ctx context.Context, input []byte, params *types.GenerationParams) ([]byte, error)
	Close() error
}

// Backend opens model artifacts of one family. Backend selection is an
// explicit family -> implementation table, one implementation per family.
type Backend interface {
	Family() string
	Open(mdl types.Model) (Handle, error)
}

// Loader resolves a model id to an executable handle.
type Loader interface {
	Load(ctx context.Context, modelID string) (Handle, error)
}

// CachingLoader loads model artifacts on first use and keeps the handle for
// subsequent tasks targeting the same model.
type CachingLoader struct {
	mu       sync.RWMutex
	models   map[string]types.Model
	backends map[string]Backend
	fallback Backend
	handles  map[string]Handle
	log      zerolog.Logger
}

// NewLoader indexes the registry and backends. The first backend doubles as
// the fallback for families without a dedicated implementation.
func NewLoader(models []types.Model, log zerolog.Logger, backends ...Backend) *CachingLoader {
	l := &CachingLoader{
		models:   make(map[string]types.Model, len(models)),
		backends: make(map[string]Backend, len(backends)),
		handles:  make(map[string]Handle),
		log:      log,
	}
	for _, m := range models {
		l.models[m.ID] = m
	}
	for _, b := range backends {
		l.backends[b.Family()] = b
		if l.fallback == nil {
			l.fallback = b
		}
	}
	return l
}

// Load returns the cached handle for modelID, opening the artifact through
// its family's backend on first use.
func (l *CachingLoader) Load(ctx context.Context, modelID string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	h, ok := l.handles[modelID]
	l.mu.RUnlock()
	if ok {
		return h, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.handles[modelID]; ok {
		return h, nil
	}
	mdl, ok := l.models[modelID]
	if !ok {
		return nil, modelNotFoundError{id: modelID}
	}
	be := l.backends[mdl.Family]
	if be == nil {
		be = l.fallback
	}
	if be == nil {
		return nil, ErrDependencyUnavailable("no executor backend configured")
	}
	h, err := be.Open(mdl)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelID, err)
	}
	l.handles[modelID] = h
	l.log.Info().Str("model", modelID).Str("family", mdl.Family).
		Int("size_mb", mdl.SizeMB).Msg("model loaded")
	return h, nil
}

// Unload closes and forgets the handle for modelID, if loaded.
func (l *CachingLoader) Unload(modelID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[modelID]
	if !ok {
		return nil
	}
	delete(l.handles, modelID)
	return h.Close()
}

// Close releases every cached handle.
func (l *CachingLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for id, h := range l.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(l.handles, id)
	}
	return errors.Join(errs...)
}
