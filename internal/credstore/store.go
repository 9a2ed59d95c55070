package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mazen160/go-random"
)

type Store interface {
	// Load returns ErrNoArtifact when nothing has been saved.
	Load(ctx context.Context) (Artifact, error)
	Save(ctx context.Context, artifact Artifact) error
}

// FileStore keeps the artifact as a json file only readable by the current user.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Artifact{}, ErrNoArtifact
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("read credential artifact: %w", err)
	}

	var artifact Artifact
	err = json.Unmarshal(data, &artifact)
	if err != nil {
		return Artifact{}, fmt.Errorf("decode credential artifact: %w", err)
	}
	return artifact, nil
}

// Save replaces the artifact atomically, a concurrent reader sees either the old or the
// new file.
func (s *FileStore) Save(ctx context.Context, artifact Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	err = os.MkdirAll(dir, 0700)
	if err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	suffix, err := random.String(12)
	if err != nil {
		return err
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(s.path), suffix))
	err = os.WriteFile(temp, data, 0600)
	if err != nil {
		return fmt.Errorf("write credential artifact: %w", err)
	}
	err = os.Rename(temp, s.path)
	if err != nil {
		os.Remove(temp)
		return fmt.Errorf("replace credential artifact: %w", err)
	}
	return nil
}

// MemoryStore is a Store that never touches the disk.
type MemoryStore struct {
	mu       sync.Mutex
	artifact *Artifact
	saves    int
}

func (s *MemoryStore) Load(ctx context.Context) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return Artifact{}, ErrNoArtifact
	}
	return *s.artifact, nil
}

func (s *MemoryStore) Save(ctx context.Context, artifact Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifact = &artifact
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
