package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"feeledger/internal/core"
	ports "feeledger/internal/sheets"
)

// Store is an in-process payment register for development and tests.
type Store struct {
	mu   sync.Mutex
	rows [][]any
	err  error
}

var _ ports.PaymentRegisterWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the rendered row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, rec core.PaymentRecord) (string, error) {
	if rec.Payment.ID <= 0 {
		return "", errors.New("payment record has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.rows = append(s.rows, ports.Row(rec))
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of every appended row.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

// FailWith makes every following Append return err until it is called
// again with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
