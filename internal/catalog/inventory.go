package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spinframe/internal/sequence"
)

// Availability describes the sequence of one model in one material.
type Availability struct {
	Material    string     `json:"material"`
	Complete    bool       `json:"complete"`
	FrameCount  int        `json:"frameCount"`
	Formats     []string   `json:"formats,omitempty"`
	GeneratedAt *time.Time `json:"generatedAt,omitempty"`
}

// ModelStatus is a catalog model with the sequences that exist for it.
type ModelStatus struct {
	Model
	Sequences []Availability
}

// JobTracker reports whether unfinished jobs still need a model. *scheduler.Scheduler
// satisfies it.
type JobTracker interface {
	ModelInUse(model string) bool
}

// Inventory answers read-only questions about generated sequences and runs the
// model removal cascade.
type Inventory struct {
	catalog          Catalog
	store            *sequence.Store
	jobs             JobTracker
	defaultMaterials []string
	frameCount       int
	formats          []string
}

// NewInventory creates an Inventory. frameCount and formats describe the expected
// sequence when a directory has no manifest.
func NewInventory(c Catalog, store *sequence.Store, defaultMaterials []string, frameCount int, formats []string) *Inventory {
	return &Inventory{
		catalog:          c,
		store:            store,
		defaultMaterials: defaultMaterials,
		frameCount:       frameCount,
		formats:          formats,
	}
}

// TrackJobs makes DeleteModel refuse models that unfinished jobs still reference.
func (inv *Inventory) TrackJobs(t JobTracker) {
	inv.jobs = t
}

// KnownMaterials is the standard material set merged with the catalog's materials.
func (inv *Inventory) KnownMaterials(ctx context.Context) ([]string, error) {
	materials, err := inv.catalog.Materials(ctx)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return MergeMaterials(inv.defaultMaterials, materials), nil
}

// ListModels returns every catalog model with per-material sequence availability.
func (inv *Inventory) ListModels(ctx context.Context) ([]ModelStatus, error) {
	models, err := inv.catalog.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	known, err := inv.KnownMaterials(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ModelStatus, 0, len(models))
	for _, m := range models {
		materials := m.Materials
		if len(materials) == 0 {
			materials = known
		}
		status := ModelStatus{Model: m, Sequences: make([]Availability, 0, len(materials))}
		for _, material := range materials {
			a, err := inv.availability(m.ID, material)
			if err != nil {
				return nil, err
			}
			status.Sequences = append(status.Sequences, a)
		}
		out = append(out, status)
	}
	return out, nil
}

// HasSequence reports whether a complete sequence exists for (model, material).
func (inv *Inventory) HasSequence(ctx context.Context, model, material string) (bool, error) {
	a, err := inv.availability(model, material)
	if err != nil {
		return false, err
	}
	return a.Complete, nil
}

func (inv *Inventory) availability(model, material string) (Availability, error) {
	a := Availability{Material: material, FrameCount: inv.frameCount, Formats: inv.formats}

	m, err := inv.store.ReadManifest(model, material)
	switch {
	case err == nil:
		a.FrameCount = m.FrameCount
		a.Formats = m.Formats
		generated := m.GeneratedAt
		a.GeneratedAt = &generated
	case errors.Is(err, sequence.ErrNoManifest):
	default:
		return a, fmt.Errorf("availability of %s: %w", sequence.DirName(model, material), err)
	}

	complete, err := inv.store.Exists(model, material, a.FrameCount, a.Formats)
	if err != nil {
		return a, fmt.Errorf("availability of %s: %w", sequence.DirName(model, material), err)
	}
	a.Complete = complete
	return a, nil
}

// DeleteModel removes the model from the catalog and then deletes its sequence for
// every known material, returning the directories that were removed. It refuses with
// ErrModelInUse while a tracked job references the model.
func (inv *Inventory) DeleteModel(ctx context.Context, id string) ([]string, error) {
	if inv.jobs != nil && inv.jobs.ModelInUse(id) {
		return nil, fmt.Errorf("%w: %s", ErrModelInUse, id)
	}

	materials, err := inv.KnownMaterials(ctx)
	if err != nil {
		return nil, err
	}
	if m, err := inv.catalog.GetModel(ctx, id); err == nil {
		materials = MergeMaterials(materials, m.Materials)
	}

	if err := inv.catalog.DeleteModel(ctx, id); err != nil {
		return nil, err
	}

	removed, err := inv.store.DeleteModel(id, materials)
	if err != nil {
		return removed, fmt.Errorf("delete sequences of %s: %w", id, err)
	}
	return removed, nil
}
