// Package taskstore persists task snapshots so interrupted runs can be resumed.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/batchrun/internal/task"
)

const fileVersion = "1.0"

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("task snapshot not found")

type storeFile struct {
	Version string          `json:"version"`
	Tasks   []task.Snapshot `json:"tasks"`
}

// Store keeps task snapshots in one JSON file.
type Store struct {
	path    string
	mu      sync.RWMutex
	version string
	tasks   []task.Snapshot
}

// Open loads the store at path, starting empty when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, version: fileVersion}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create task store directory: %w", err)
	}

	if err := s.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		s.tasks = []task.Snapshot{}
	}
	return s, nil
}

// Path is the backing file.
func (s *Store) Path() string { return s.path }

// Load rereads the backing file.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse task store %s: %w", s.path, err)
	}
	s.version = file.Version
	s.tasks = file.Tasks
	return nil
}

// Save writes the store atomically through a temporary file.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(storeFile{Version: s.version, Tasks: s.tasks}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// Put inserts or replaces the snapshot with the same id.
func (s *Store) Put(snap task.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tasks {
		if existing.ID == snap.ID {
			s.tasks[i] = snap
			return
		}
	}
	s.tasks = append(s.tasks, snap)
}

// Get returns the snapshot with id.
func (s *Store) Get(id string) (task.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.tasks {
		if snap.ID == id {
			return snap, nil
		}
	}
	return task.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Latest returns the most recently created resumable snapshot of pipeline.
func (s *Store) Latest(pipeline string) (task.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []task.Snapshot
	for _, snap := range s.tasks {
		if snap.Pipeline == pipeline && snap.State.Resumable() {
			candidates = append(candidates, snap)
		}
	}
	if len(candidates) == 0 {
		return task.Snapshot{}, fmt.Errorf("%w: no resumable task for pipeline %s", ErrNotFound, pipeline)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Created.After(candidates[j].Created)
	})
	return candidates[0], nil
}

// List returns a copy of every snapshot.
func (s *Store) List() []task.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]task.Snapshot(nil), s.tasks...)
}

// Remove deletes the snapshot with id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, snap := range s.tasks {
		if snap.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Record snapshots the event's task and saves. It has the shape of an event handler.
func (s *Store) Record(_ context.Context, ev task.Event) error {
	if ev.Task == nil {
		return nil
	}
	s.Put(ev.Task.Snapshot())
	return s.Save()
}
