package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is the YAML document backing a Static catalog.
type File struct {
	Models    []FileModel `yaml:"models"`
	Materials []string    `yaml:"materials,omitempty"`
}

// FileModel is one model entry of a catalog file.
type FileModel struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name,omitempty"`
	File      string   `yaml:"file"`
	Materials []string `yaml:"materials,omitempty"`
}

// Static is a catalog loaded from a YAML file. Deletions are written back to the file.
type Static struct {
	path string

	mu        sync.RWMutex
	models    map[string]Model
	materials []string
}

// LoadStatic reads a catalog file.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return NewStatic(path, f)
}

// NewStatic builds a catalog from an in-memory file. If path is empty, deletions are not persisted.
func NewStatic(path string, f File) (*Static, error) {
	s := &Static{
		path:      path,
		models:    make(map[string]Model, len(f.Models)),
		materials: MergeMaterials(f.Materials),
	}
	for _, fm := range f.Models {
		if fm.ID == "" {
			return nil, fmt.Errorf("catalog %s: model without id", path)
		}
		if _, dup := s.models[fm.ID]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate model %q", path, fm.ID)
		}
		file := fm.File
		if file == "" {
			file = fm.ID + ".glb"
		}
		name := fm.Name
		if name == "" {
			name = fm.ID
		}
		s.models[fm.ID] = Model{ID: fm.ID, Name: name, File: file, Materials: fm.Materials}
	}
	return s, nil
}

func (s *Static) ListModels(ctx context.Context) ([]Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Model, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Static) GetModel(ctx context.Context, id string) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return &m, nil
}

func (s *Static) DeleteModel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, ok := s.models[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	delete(s.models, id)

	if err := s.save(); err != nil {
		s.models[id] = removed
		return err
	}
	return nil
}

func (s *Static) Materials(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lists := [][]string{s.materials}
	for _, m := range s.models {
		lists = append(lists, m.Materials)
	}
	return MergeMaterials(lists...), nil
}

func (s *Static) Ping(ctx context.Context) error {
	return nil
}

// save writes the catalog back to its file. Caller must hold the write lock.
func (s *Static) save() error {
	if s.path == "" {
		return nil
	}

	f := File{Materials: s.materials}
	ids := make([]string, 0, len(s.models))
	for id := range s.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := s.models[id]
		f.Models = append(f.Models, FileModel{ID: m.ID, Name: m.Name, File: m.File, Materials: m.Materials})
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".catalog-*")
	if err != nil {
		return fmt.Errorf("save catalog %s: %w", s.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save catalog %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save catalog %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save catalog %s: %w", s.path, err)
	}
	return nil
}
