package debate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultsStore persists the last-used debate lineup so the next debate
// starts pre-configured. Missing or corrupt files read as an empty lineup.
type DefaultsStore struct {
	mu   sync.Mutex
	path string
}

// NewDefaultsStore creates a store backed by the JSON file at path.
func NewDefaultsStore(path string) *DefaultsStore {
	return &DefaultsStore{path: path}
}

// Load returns the saved lineup, or an empty one.
func (s *DefaultsStore) Load() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return []Participant{}
	}
	var participants []Participant
	if err := json.Unmarshal(raw, &participants); err != nil {
		return []Participant{}
	}
	return participants
}

// Save replaces the saved lineup.
func (s *DefaultsStore) Save(participants []Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("debate: create config dir: %w", err)
	}
	raw, err := json.MarshalIndent(participants, "", "  ")
	if err != nil {
		return fmt.Errorf("debate: encode defaults: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("debate: write defaults: %w", err)
	}
	return nil
}
