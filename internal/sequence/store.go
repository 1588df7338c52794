// Package sequence implements the on-disk layout of generated image sequences:
// one directory per (model, material), one file per (frame, format) and a manifest.
package sequence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// tempPrefix marks in-flight writes. Files with this prefix are never counted as frames.
const tempPrefix = ".spinframe-tmp-"

var (
	// ErrInvalidID is returned for model or material ids that are not safe path segments.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrNoManifest is returned when a sequence directory has no manifest.
	ErrNoManifest = errors.New("manifest not found")

	idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// ValidID reports whether id can be used as part of a sequence directory name.
func ValidID(id string) bool {
	return len(id) <= 128 && idPattern.MatchString(id) && !strings.Contains(id, "..")
}

// DirName is the directory of the sequence for (model, material).
func DirName(model, material string) string {
	return model + "-" + material
}

// FrameName is the file name of one frame in one format.
func FrameName(frame int, format string) string {
	return strconv.Itoa(frame) + "." + format
}

// Store is a filesystem-backed sequence store rooted at a single directory.
type Store struct {
	root string
}

// NewStore creates the root directory if needed and returns a Store.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sequences root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the sequences root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the absolute directory for (model, material).
func (s *Store) Dir(model, material string) (string, error) {
	if !ValidID(model) {
		return "", fmt.Errorf("%w: model %q", ErrInvalidID, model)
	}
	if !ValidID(material) {
		return "", fmt.Errorf("%w: material %q", ErrInvalidID, material)
	}
	return filepath.Join(s.root, DirName(model, material)), nil
}

// Exists reports whether a complete sequence exists: for every format, every frame
// file 0..frameCount-1 is present. Partial sequences are reported as missing.
func (s *Store) Exists(model, material string, frameCount int, formats []string) (bool, error) {
	if frameCount <= 0 || len(formats) == 0 {
		return false, nil
	}
	dir, err := s.Dir(model, material)
	if err != nil {
		return false, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read sequence directory %s: %w", dir, err)
	}

	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), tempPrefix) {
			present[e.Name()] = struct{}{}
		}
	}

	for _, format := range formats {
		for frame := 0; frame < frameCount; frame++ {
			if _, ok := present[FrameName(frame, format)]; !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// FrameCount returns how many frame files exist for format.
func (s *Store) FrameCount(model, material, format string) (int, error) {
	dir, err := s.Dir(model, material)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read sequence directory %s: %w", dir, err)
	}

	count := 0
	suffix := "." + format
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasSuffix(name, suffix) {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSuffix(name, suffix)); err == nil {
			count++
		}
	}
	return count, nil
}

// Write atomically stores one encoded frame.
func (s *Store) Write(model, material string, frame int, format string, data []byte) error {
	dir, err := s.Dir(model, material)
	if err != nil {
		return err
	}
	if frame < 0 {
		return fmt.Errorf("invalid frame index %d", frame)
	}
	return writeBytes(filepath.Join(dir, FrameName(frame, format)), data)
}

// WriteManifest atomically (re)writes the manifest of a sequence.
func (s *Store) WriteManifest(model, material string, m Manifest) error {
	dir, err := s.Dir(model, material)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest for %s: %w", DirName(model, material), err)
	}
	data = append(data, '\n')
	return writeBytes(filepath.Join(dir, ManifestFile), data)
}

// ReadManifest loads the manifest of a sequence.
func (s *Store) ReadManifest(model, material string) (Manifest, error) {
	dir, err := s.Dir(model, material)
	if err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, fmt.Errorf("%s: %w", DirName(model, material), ErrNoManifest)
		}
		return Manifest{}, fmt.Errorf("read manifest %s: %w", DirName(model, material), err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", DirName(model, material), err)
	}
	return m, nil
}

// Delete removes the sequence directory for (model, material). Missing sequences are not an error.
func (s *Store) Delete(model, material string) error {
	dir, err := s.Dir(model, material)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete sequence %s: %w", DirName(model, material), err)
	}
	return nil
}

// DeleteModel removes the sequences of model for every material in materials
// and returns the directories that existed and were removed.
func (s *Store) DeleteModel(model string, materials []string) ([]string, error) {
	var removed []string
	var errs []error
	for _, material := range materials {
		dir, err := s.Dir(model, material)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := s.Delete(model, material); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, DirName(model, material))
	}
	return removed, errors.Join(errs...)
}

// List returns the names of all sequence directories under the root, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read sequences root %s: %w", s.root, err)
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// CleanupTemp removes leftover temp files older than olderThan, such as those
// abandoned by a crash mid-write. It returns the number of files removed.
func (s *Store) CleanupTemp(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cleanup temp files in %s: %w", s.root, err)
	}
	return removed, nil
}

// writeBytes writes data to a temp file in the destination directory and renames it
// into place, so readers never observe a partially written file.
func writeBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
