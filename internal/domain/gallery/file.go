package gallery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/facesense/internal/domain/model"
)

// ErrNoGallery is returned by Load when the file does not exist.
var ErrNoGallery = errors.New("gallery file not found")

// fileFormatVersion is written into every gallery file.
const fileFormatVersion = 1

type document struct {
	Version   int                     `yaml:"version"`
	CreatedAt time.Time               `yaml:"created_at"`
	Profiles  []model.EmployeeProfile `yaml:"profiles"`
}

// Load reads a gallery file written by Save.
func Load(path string) (*Gallery, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoGallery, path)
		}
		return nil, fmt.Errorf("read gallery: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode gallery %s: %w", path, err)
	}
	if doc.Version > fileFormatVersion {
		return nil, fmt.Errorf("gallery %s: unsupported version %d", path, doc.Version)
	}
	return New(doc.Profiles), nil
}

// Save writes g to path atomically.
func Save(path string, g *Gallery, now time.Time) error {
	doc := document{Version: fileFormatVersion, CreatedAt: now.UTC(), Profiles: g.Profiles()}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create gallery dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write gallery: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace gallery: %w", err)
	}
	return nil
}
