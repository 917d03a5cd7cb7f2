// Package memory is an in-process sheets sink used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"sync"

	"casheye/internal/core"
	"casheye/internal/report"
	ports "casheye/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	lines  []core.ReceiptLine
	seen   map[core.LineKey]struct{}
	tables map[string]report.Table
}

var _ ports.Sink = (*Store)(nil)

func New() *Store {
	return &Store{seen: map[core.LineKey]struct{}{}, tables: map[string]report.Table{}}
}

// AppendLines stores lines not seen before.
func (s *Store) AppendLines(_ context.Context, lines []core.ReceiptLine) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range lines {
		if _, ok := s.seen[l.Key()]; ok {
			continue
		}
		s.seen[l.Key()] = struct{}{}
		s.lines = append(s.lines, l)
		n++
	}
	return n, nil
}

func (s *Store) ListLines(_ context.Context) ([]core.ReceiptLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ReceiptLine(nil), s.lines...), nil
}

func (s *Store) WriteTable(_ context.Context, sheet string, t report.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[sheet] = t
	return nil
}

// Table returns the last table written to sheet.
func (s *Store) Table(sheet string) (report.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[sheet]
	return t, ok
}
