package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"divvy/internal/remote"
)

// Store keeps journal entries in memory. Used in tests and as the default
// journal when no spreadsheet is configured.
type Store struct {
	mu      sync.Mutex
	entries []remote.Entry
}

func New() *Store {
	return &Store{}
}

var _ remote.Journal = (*Store)(nil)

// Append stores the entry and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e remote.Entry) (string, error) {
	if e.DebtID == "" {
		return "", errors.New("journal entry missing debt id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return fmt.Sprintf("mem:%d", len(s.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (s *Store) Entries() []remote.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
