// Package store implements whole-collection persistence for probe history.
package store

import (
	"fmt"

	"netmon/internal/model"
)

const (
	BackendYAML = "yaml"
	BackendBolt = "bolt"
)

// Backend saves and loads the full ordered history.
type Backend interface {
	Save(sets []model.ProbeSet) error
	Load() ([]model.ProbeSet, error)
	Close() error
}

// Open returns the backend named by kind rooted at path.
func Open(kind, path string) (Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	switch kind {
	case "", BackendYAML:
		return NewFileStore(path), nil
	case BackendBolt:
		return OpenBolt(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", kind)
	}
}
