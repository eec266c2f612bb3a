package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader produces a validated Config from some source. The file loader below
// is the only implementation today; the interface leaves room for env or
// remote sources without touching callers.
type Loader interface {
	Load(ctx context.Context) (*Config, error)
}

// FileLoader reads yaml configuration from a path on disk.
type FileLoader struct {
	path string
}

// NewFileLoader returns a loader for the yaml file at path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load parses the file over the built-in defaults, so absent keys keep their
// default values. The merged result is validated before being returned.
func (l *FileLoader) Load(ctx context.Context) (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
