// Package catalog resolves the 3D models that can be turned into image sequences and
// reports which sequences already exist for them.
package catalog

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrModelNotFound is returned when a model id is not in the catalog.
var ErrModelNotFound = errors.New("model not found")

// ErrModelInUse is returned when a model cannot be deleted because a pending or
// processing job still references it.
var ErrModelInUse = errors.New("model in use")

// Model is a renderable 3D asset.
type Model struct {
	ID   string
	Name string
	// File is the model file relative to the models directory, e.g. "ring-01.glb".
	File string
	// Materials the model is offered in. Empty means every known material.
	Materials []string
	CreatedAt time.Time
}

// Catalog is the source of truth for which models exist.
type Catalog interface {
	// ListModels returns all models ordered by id.
	ListModels(ctx context.Context) ([]Model, error)

	// GetModel returns a model by id or ErrModelNotFound.
	GetModel(ctx context.Context, id string) (*Model, error)

	// DeleteModel removes a model or returns ErrModelNotFound.
	DeleteModel(ctx context.Context, id string) error

	// Materials returns every material id the catalog knows about.
	Materials(ctx context.Context) ([]string, error)

	// Ping reports whether the catalog backend is reachable.
	Ping(ctx context.Context) error
}

// MergeMaterials returns the sorted union of the given material lists.
func MergeMaterials(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, m := range list {
			if m == "" {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
