// Package state keeps harvest checkpoints in a local JSON file.
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

type entry struct {
	Token     harvest.PageToken `json:"token"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FileStore is a harvest.CheckpointStore backed by a JSON file. Every Save
// and Delete rewrites the file.
type FileStore struct {
	path        string
	mu          sync.RWMutex
	loaded      bool
	checkpoints map[string]entry
}

// NewFileStore returns a store at path. The file is read lazily.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:        path,
		checkpoints: make(map[string]entry),
	}
}

// DefaultPath returns the checkpoint file under the user's state directory.
func DefaultPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "harvest", "checkpoints.json")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "harvest", "checkpoints.json")
	}
	return ".harvest-checkpoints.json"
}

func (s *FileStore) load() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, &s.checkpoints); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

func (s *FileStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.checkpoints, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load implements harvest.CheckpointStore.
func (s *FileStore) Load(_ context.Context, key string) (harvest.PageToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return harvest.PageToken{}, false, err
	}
	e, ok := s.checkpoints[key]
	return e.Token, ok, nil
}

// Save implements harvest.CheckpointStore.
func (s *FileStore) Save(_ context.Context, key string, token harvest.PageToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	s.checkpoints[key] = entry{Token: token, UpdatedAt: time.Now().UTC()}
	return s.save()
}

// Delete implements harvest.CheckpointStore.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	if _, ok := s.checkpoints[key]; !ok {
		return nil
	}
	delete(s.checkpoints, key)
	return s.save()
}

// Keys returns the stored checkpoint keys.
func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(s.checkpoints))
	for k := range s.checkpoints {
		keys = append(keys, k)
	}
	return keys, nil
}
