package rollover

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"
)

// FileMarkerStore persists week markers as a small JSON file, written
// atomically so a crash mid-write can never produce a corrupt marker that
// silently skips a week.
type FileMarkerStore struct {
	path string
	mu   sync.Mutex
}

// NewFileMarkerStore creates a marker store backed by the given file path.
// The file is created on first write.
func NewFileMarkerStore(path string) *FileMarkerStore {
	return &FileMarkerStore{path: path}
}

// LastWeekKey implements MarkerStore.
func (s *FileMarkerStore) LastWeekKey(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	markers, err := s.load()
	if err != nil {
		return "", err
	}
	return markers[userID], nil
}

// MarkPerformed implements MarkerStore.
func (s *FileMarkerStore) MarkPerformed(userID, weekKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	markers, err := s.load()
	if err != nil {
		return err
	}
	markers[userID] = weekKey

	data, err := json.MarshalIndent(markers, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rollover markers: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write rollover markers: %w", err)
	}
	return nil
}

func (s *FileMarkerStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rollover markers: %w", err)
	}

	markers := map[string]string{}
	if err := json.Unmarshal(data, &markers); err != nil {
		return nil, fmt.Errorf("parse rollover markers: %w", err)
	}
	return markers, nil
}
