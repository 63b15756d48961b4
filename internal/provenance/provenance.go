// Package provenance persists where the current image came from.
//
// Exactly one record exists per instance once an acquisition has been
// committed. It is replaced atomically, so readers see either the old or the
// new record, never a partial file.
package provenance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/atomicwriter"
)

// ErrNotFound is returned by Load before the first acquisition.
var ErrNotFound = errors.New("no image provenance recorded")

// Source is how the image was acquired.
type Source string

const (
	SourcePrebuilt Source = "prebuilt"
	SourceBuilt    Source = "built"
)

// Record is the persisted provenance document.
type Record struct {
	Version string `json:"version"`
	Source  Source `json:"source"`
	// Registry is set only for prebuilt images.
	Registry   *string   `json:"registry"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Prebuilt returns a record for an image pulled from registry.
func Prebuilt(version, registry string, at time.Time) Record {
	return Record{Version: version, Source: SourcePrebuilt, Registry: &registry, AcquiredAt: at.UTC()}
}

// Built returns a record for a locally built image.
func Built(version string, at time.Time) Record {
	return Record{Version: version, Source: SourceBuilt, AcquiredAt: at.UTC()}
}

// Describe renders the source for display, e.g. "prebuilt from ghcr.io/x".
func (r Record) Describe() string {
	if r.Source == SourcePrebuilt && r.Registry != nil {
		return "prebuilt from " + *r.Registry
	}
	return "built from source"
}

func (r Record) validate() error {
	if r.Version == "" {
		return errors.New("version is empty")
	}
	switch r.Source {
	case SourcePrebuilt:
		if r.Registry == nil || *r.Registry == "" {
			return errors.New("prebuilt record has no registry")
		}
	case SourceBuilt:
		if r.Registry != nil {
			return errors.New("built record has a registry")
		}
	default:
		return fmt.Errorf("unknown source %q", r.Source)
	}
	return nil
}

// Store reads and writes the record at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record. A missing file yields ErrNotFound.
func (s *Store) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("reading %s: %w", s.path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	if err := rec.validate(); err != nil {
		return Record{}, fmt.Errorf("invalid provenance in %s: %w", s.path, err)
	}
	return rec, nil
}

// Save replaces the record atomically.
func (s *Store) Save(rec Record) error {
	if err := rec.validate(); err != nil {
		return fmt.Errorf("refusing to save provenance: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := atomicwriter.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}
