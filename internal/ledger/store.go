package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"casheye/internal/core"
	"casheye/internal/log"
	"casheye/internal/parser"
	"casheye/internal/storage"
)

// Store persists the ledger as one delimited blob under storage.KeyLedger.
// Writers are serialised through Update.
type Store struct {
	mu     sync.Mutex
	kv     storage.KV
	parser *parser.Parser
	logger *log.Logger
}

func NewStore(kv storage.KV, p *parser.Parser, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default(log.ComponentLedger)
	}
	return &Store{kv: kv, parser: p, logger: logger.WithComponent(log.ComponentLedger)}
}

// Load reads the ledger. A blob in the legacy format is rewritten in the
// canonical format the first time it is read.
func (s *Store) Load(ctx context.Context) ([]core.ReceiptLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) ([]core.ReceiptLine, error) {
	blob, ok, err := s.kv.Get(ctx, storage.KeyLedger)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if !ok || strings.TrimSpace(blob) == "" {
		return nil, nil
	}
	rep := s.parser.ParseReport(ctx, blob)
	if isLegacy(blob) {
		if err := s.save(ctx, rep.Lines); err != nil {
			return nil, fmt.Errorf("migrate legacy ledger: %w", err)
		}
		s.logger.InfoContext(ctx, "Migrated legacy ledger", log.FieldParsed, len(rep.Lines), log.FieldSkipped, len(rep.Skipped))
	}
	return rep.Lines, nil
}

// Save replaces the persisted ledger.
func (s *Store) Save(ctx context.Context, lines []core.ReceiptLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, lines)
}

func (s *Store) save(ctx context.Context, lines []core.ReceiptLine) error {
	if err := s.kv.Put(ctx, storage.KeyLedger, Export(lines)); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// Update loads the ledger, applies fn and saves the result, holding the
// store lock throughout. fn returning an error leaves the ledger unchanged.
func (s *Store) Update(ctx context.Context, fn func([]core.ReceiptLine) ([]core.ReceiptLine, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, err := s.load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(lines)
	if err != nil {
		return err
	}
	return s.save(ctx, next)
}

// Append merges incoming through the de-duplicator and returns the lines
// that were actually added.
func (s *Store) Append(ctx context.Context, incoming []core.ReceiptLine) ([]core.ReceiptLine, error) {
	var added []core.ReceiptLine
	err := s.Update(ctx, func(existing []core.ReceiptLine) ([]core.ReceiptLine, error) {
		added = Diff(existing, incoming)
		return append(existing, added...), nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func isLegacy(blob string) bool {
	blob = strings.TrimLeft(strings.ReplaceAll(blob, "\uFEFF", ""), "\r\n \t")
	first, _, _ := strings.Cut(blob, "\n")
	return strings.TrimSpace(first) != parser.Header
}
