// Package sourceref resolves the object a notification points at.
package sourceref

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"realtime-service/internal/models"
)

var (
	ErrUnknownKind = errors.New("unknown source kind")
	ErrEmptyID     = errors.New("source id is empty")
)

// Loader fetches a summary of one object kind.
type Loader func(ctx context.Context, id string) (any, error)

// Registry maps source kinds to loaders.
type Registry struct {
	mu      sync.RWMutex
	loaders map[models.SourceKind]Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[models.SourceKind]Loader)}
}

// Register binds a loader to a kind, replacing any previous one.
func (r *Registry) Register(kind models.SourceKind, loader Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[kind] = loader
}

// Validate checks that ref names a registered kind and a non-empty id.
func (r *Registry) Validate(ref models.SourceRef) error {
	if ref.ID == "" {
		return ErrEmptyID
	}
	r.mu.RLock()
	_, ok := r.loaders[ref.Kind]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, ref.Kind)
	}
	return nil
}

// Resolve loads the object behind ref.
func (r *Registry) Resolve(ctx context.Context, ref models.SourceRef) (any, error) {
	if err := r.Validate(ref); err != nil {
		return nil, err
	}
	r.mu.RLock()
	loader := r.loaders[ref.Kind]
	r.mu.RUnlock()
	return loader(ctx, ref.ID)
}

// ReferenceOnly is a loader for kinds owned by other services: it echoes the reference.
func ReferenceOnly(kind models.SourceKind) Loader {
	return func(_ context.Context, id string) (any, error) {
		return models.SourceRef{Kind: kind, ID: id}, nil
	}
}
