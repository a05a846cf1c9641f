package store

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"netmon/internal/model"
)

// historyDoc is the on-disk layout of a FileStore.
type historyDoc struct {
	UpdatedAt time.Time        `yaml:"updated_at"`
	ProbeSets []model.ProbeSet `yaml:"probe_sets"`
}

// FileStore persists the whole history as one YAML document.
type FileStore struct {
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Load reads the history from disk. If the file is missing, returns an empty history.
func (s *FileStore) Load() ([]model.ProbeSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var doc historyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.ProbeSets, nil
}

// Save replaces the document. The write goes to a temp file that is renamed
// over the old one so readers never observe a half-written history.
func (s *FileStore) Save(sets []model.ProbeSet) error {
	doc := historyDoc{UpdatedAt: s.now().UTC(), ProbeSets: sets}
	if doc.ProbeSets == nil {
		doc.ProbeSets = []model.ProbeSet{}
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (s *FileStore) Close() error {
	return nil
}
