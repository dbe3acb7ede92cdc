package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"cajero/internal/sheets"
)

// Store keeps exported rows in memory. Appending an id twice is a no-op that
// returns the original row reference.
type Store struct {
	mu    sync.Mutex
	refs  map[int64]string
	items []sheets.Entry
}

var (
	_ sheets.LedgerWriter = (*Store)(nil)
	_ sheets.LedgerReader = (*Store)(nil)
)

func New() *Store {
	return &Store{refs: make(map[int64]string)}
}

// AppendTransaction stores the entry and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, e sheets.Entry) (string, error) {
	if e.TransactionID <= 0 {
		return "", errors.New("entry has no transaction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[e.TransactionID]; ok {
		return ref, nil
	}
	s.items = append(s.items, e)
	ref := fmt.Sprintf("mem:%d", len(s.items))
	s.refs[e.TransactionID] = ref
	return ref, nil
}

func (s *Store) ListTransactionIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, len(s.items))
	for i, e := range s.items {
		ids[i] = e.TransactionID
	}
	return ids, nil
}

// Entries returns the stored rows in append order.
func (s *Store) Entries() []sheets.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}
