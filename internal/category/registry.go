// Package category holds the two-level spending taxonomy and the explicit
// income tags on major categories.
package category

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"casheye/internal/log"
)

var (
	ErrEmptyName       = errors.New("category name is empty")
	ErrUnknownMajor    = errors.New("unknown major category")
	ErrUnknownMinor    = errors.New("unknown minor category")
	ErrDefaultCategory = errors.New("default categories cannot be removed")
)

// Store persists the user's taxonomy. A nil map from LoadCategories means
// nothing has been saved yet.
type Store interface {
	LoadCategories(ctx context.Context) (minors map[string][]string, income []string, err error)
	SaveCategories(ctx context.Context, minors map[string][]string, income []string) error
}

// Registry is the category taxonomy. It is safe for concurrent use and is
// passed explicitly to the components that need it.
type Registry struct {
	mu     sync.RWMutex
	store  Store
	logger *log.Logger
	order  []string
	minors map[string][]string
	income map[string]bool
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l.WithComponent(log.ComponentCategory) }
}

// NewRegistry returns a registry holding only the defaults. store may be nil,
// in which case mutations are kept in memory.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: log.Default(log.ComponentCategory),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

// Load builds a registry from the store. Saved minors are merged with the
// defaults so built-in entries can never go missing. A store that cannot be
// read leaves the registry on defaults.
func Load(ctx context.Context, store Store, opts ...Option) *Registry {
	r := NewRegistry(store, opts...)
	if store == nil {
		return r
	}
	saved, income, err := store.LoadCategories(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "Category state unreadable, using defaults", log.FieldError, err)
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merge(saved, income)
	return r
}

func (r *Registry) reset() {
	r.order = append([]string(nil), defaultOrder...)
	r.minors = Defaults()
	r.income = make(map[string]bool, len(defaultIncome))
	for _, m := range defaultIncome {
		r.income[m] = true
	}
}

func (r *Registry) merge(saved map[string][]string, income []string) {
	var extraMajors []string
	for major, minors := range saved {
		major = strings.TrimSpace(major)
		if major == "" {
			continue
		}
		base, isDefault := r.minors[major]
		if !isDefault {
			extraMajors = append(extraMajors, major)
		}
		merged := dedupe(minors)
		for _, d := range base {
			if !slices.Contains(merged, d) {
				merged = insertMinor(merged, d)
			}
		}
		r.minors[major] = merged
	}
	sort.Strings(extraMajors)
	r.order = append(r.order, extraMajors...)

	if income != nil {
		r.income = make(map[string]bool, len(income))
		for _, m := range income {
			if _, ok := r.minors[m]; ok {
				r.income[m] = true
			}
		}
	}
}

// Majors returns the major categories in display order.
func (r *Registry) Majors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Minors returns the minors of major, or just the catch-all for an unknown
// major.
func (r *Registry) Minors(major string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.minors[major]; ok {
		return append([]string(nil), m...)
	}
	return []string{CatchAll}
}

// Has reports whether major is a known major category.
func (r *Registry) Has(major string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.minors[major]
	return ok
}

// IsIncome is an exact-key lookup; no substring matching.
func (r *Registry) IsIncome(major string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.income[major]
}

// IncomeMajors lists the majors tagged as income in display order.
func (r *Registry) IncomeMajors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, m := range r.order {
		if r.income[m] {
			out = append(out, m)
		}
	}
	return out
}

// IsDefault reports whether (major, minor) is part of the built-in taxonomy.
func (r *Registry) IsDefault(major, minor string) bool {
	return slices.Contains(defaultMinors[major], minor)
}

// AddMinor inserts minor before the first catch-all of major. Unknown majors
// are created. Adding an existing minor is a no-op.
func (r *Registry) AddMinor(ctx context.Context, major, minor string) error {
	major, minor = strings.TrimSpace(major), strings.TrimSpace(minor)
	if major == "" || minor == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.minors[major]
	if ok && slices.Contains(current, minor) {
		return nil
	}
	order := r.order
	if !ok {
		order = append(slices.Clone(r.order), major)
	}
	minors := maps.Clone(r.minors)
	minors[major] = insertMinor(current, minor)
	if err := r.commit(ctx, order, minors, r.income); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Minor category added",
		log.FieldMajorCategory, major, log.FieldMinorCategory, minor)
	return nil
}

// RemoveMinor deletes a user-added minor. Defaults are refused.
func (r *Registry) RemoveMinor(ctx context.Context, major, minor string) error {
	if r.IsDefault(major, minor) {
		return fmt.Errorf("%w: %s/%s", ErrDefaultCategory, major, minor)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.minors[major]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMajor, major)
	}
	idx := slices.Index(current, minor)
	if idx < 0 {
		return fmt.Errorf("%w: %s/%s", ErrUnknownMinor, major, minor)
	}
	minors := maps.Clone(r.minors)
	minors[major] = slices.Delete(slices.Clone(current), idx, idx+1)
	if err := r.commit(ctx, r.order, minors, r.income); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Minor category removed",
		log.FieldMajorCategory, major, log.FieldMinorCategory, minor)
	return nil
}

// SetIncome tags or untags major as income.
func (r *Registry) SetIncome(ctx context.Context, major string, income bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.minors[major]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMajor, major)
	}
	if r.income[major] == income {
		return nil
	}
	tags := maps.Clone(r.income)
	if income {
		tags[major] = true
	} else {
		delete(tags, major)
	}
	return r.commit(ctx, r.order, r.minors, tags)
}

// PromptInstructions renders one "- major: minor, minor" line per major.
func (r *Registry) PromptInstructions() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	for i, major := range r.order {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", major, strings.Join(r.minors[major], ", "))
	}
	return b.String()
}

// commit saves the given state and installs it only once the store has
// accepted it, so a failed save leaves the registry unchanged. It must be
// called with r.mu held.
func (r *Registry) commit(ctx context.Context, order []string, minors map[string][]string, income map[string]bool) error {
	if r.store != nil {
		saved := make(map[string][]string, len(minors))
		for k, v := range minors {
			saved[k] = append([]string(nil), v...)
		}
		tags := []string{}
		for _, m := range order {
			if income[m] {
				tags = append(tags, m)
			}
		}
		if err := r.store.SaveCategories(ctx, saved, tags); err != nil {
			return fmt.Errorf("save categories: %w", err)
		}
	}
	r.order, r.minors, r.income = order, minors, income
	return nil
}

func insertMinor(list []string, minor string) []string {
	out := slices.Clone(list)
	for i, m := range out {
		if strings.Contains(m, CatchAll) {
			return slices.Insert(out, i, minor)
		}
	}
	return append(out, minor)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
