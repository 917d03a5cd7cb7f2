package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"casheye/internal/core"
	"casheye/internal/log"
	"casheye/internal/storage"
)

var ErrRuleNotFound = errors.New("recurring rule not found")

// ruleRecord is the persisted shape. Periods are kept as strings so one bad
// value does not make the whole list unreadable.
type ruleRecord struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Amount        int64   `json:"amount"`
	MajorCategory string  `json:"majorCategory"`
	MinorCategory string  `json:"minorCategory"`
	DayOfMonth    int     `json:"dayOfMonth"`
	StartPeriod   string  `json:"startYearMonth"`
	EndPeriod     *string `json:"endYearMonth,omitempty"`
	IsIncome      bool    `json:"isIncome"`
}

// RuleStore persists recurring rules as a JSON list under storage.KeyRules.
type RuleStore struct {
	mu     sync.Mutex
	kv     storage.KV
	logger *log.Logger
}

func NewRuleStore(kv storage.KV, logger *log.Logger) *RuleStore {
	if logger == nil {
		logger = log.Default(log.ComponentRecurring)
	}
	return &RuleStore{kv: kv, logger: logger.WithComponent(log.ComponentRecurring)}
}

// Load returns all rules. An unreadable start period decodes as the zero
// period, which the projector treats as the current month.
func (s *RuleStore) Load(ctx context.Context) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *RuleStore) load(ctx context.Context) ([]core.RecurringRule, error) {
	raw, ok, err := s.kv.Get(ctx, storage.KeyRules)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var recs []ruleRecord
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		s.logger.WarnContext(ctx, "Recurring rules unreadable, starting empty", log.FieldError, err)
		return nil, nil
	}
	rules := make([]core.RecurringRule, 0, len(recs))
	for _, rec := range recs {
		rules = append(rules, s.fromRecord(ctx, rec))
	}
	return rules, nil
}

func (s *RuleStore) fromRecord(ctx context.Context, rec ruleRecord) core.RecurringRule {
	r := core.RecurringRule{
		ID:            rec.ID,
		Title:         rec.Title,
		Amount:        rec.Amount,
		MajorCategory: rec.MajorCategory,
		MinorCategory: rec.MinorCategory,
		DayOfMonth:    rec.DayOfMonth,
		IsIncome:      rec.IsIncome,
	}
	if p, err := core.ParsePeriod(rec.StartPeriod); err == nil {
		r.StartPeriod = p
	} else {
		s.logger.WarnContext(ctx, "Invalid rule start period", log.FieldRuleID, rec.ID, log.FieldError, err)
	}
	if rec.EndPeriod != nil && *rec.EndPeriod != "" {
		if p, err := core.ParsePeriod(*rec.EndPeriod); err == nil {
			r.EndPeriod = &p
		} else {
			s.logger.WarnContext(ctx, "Invalid rule end period ignored", log.FieldRuleID, rec.ID, log.FieldError, err)
		}
	}
	return r
}

func toRecord(r core.RecurringRule) ruleRecord {
	rec := ruleRecord{
		ID:            r.ID,
		Title:         r.Title,
		Amount:        r.Amount,
		MajorCategory: r.MajorCategory,
		MinorCategory: r.MinorCategory,
		DayOfMonth:    r.DayOfMonth,
		StartPeriod:   r.StartPeriod.String(),
		IsIncome:      r.IsIncome,
	}
	if r.EndPeriod != nil {
		end := r.EndPeriod.String()
		rec.EndPeriod = &end
	}
	return rec
}

// Save replaces the stored list.
func (s *RuleStore) Save(ctx context.Context, rules []core.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, rules)
}

func (s *RuleStore) save(ctx context.Context, rules []core.RecurringRule) error {
	recs := make([]ruleRecord, 0, len(rules))
	for _, r := range rules {
		recs = append(recs, toRecord(r))
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if err := s.kv.Put(ctx, storage.KeyRules, string(b)); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

// Put inserts r, or replaces the rule with the same id.
func (s *RuleStore) Put(ctx context.Context, r core.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules, err := s.load(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(rules, func(x core.RecurringRule) bool { return x.ID == r.ID })
	if idx >= 0 {
		rules[idx] = r
	} else {
		rules = append(rules, r)
	}
	return s.save(ctx, rules)
}

// Delete removes the rule with the given id.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules, err := s.load(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(rules, func(x core.RecurringRule) bool { return x.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return s.save(ctx, slices.Delete(rules, idx, idx+1))
}
