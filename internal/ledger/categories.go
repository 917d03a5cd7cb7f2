package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"casheye/internal/category"
	"casheye/internal/storage"
)

// CategoryStore persists the taxonomy as a JSON object major -> minors and
// the income tags as a JSON list.
type CategoryStore struct {
	kv storage.KV
}

var _ category.Store = (*CategoryStore)(nil)

func NewCategoryStore(kv storage.KV) *CategoryStore {
	return &CategoryStore{kv: kv}
}

func (s *CategoryStore) LoadCategories(ctx context.Context) (map[string][]string, []string, error) {
	raw, ok, err := s.kv.Get(ctx, storage.KeyCategories)
	if err != nil {
		return nil, nil, fmt.Errorf("load categories: %w", err)
	}
	var minors map[string][]string
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &minors); err != nil {
			return nil, nil, fmt.Errorf("decode categories: %w", err)
		}
	}

	rawIncome, ok, err := s.kv.Get(ctx, storage.KeyIncome)
	if err != nil {
		return nil, nil, fmt.Errorf("load income tags: %w", err)
	}
	var income []string
	if ok && rawIncome != "" {
		if err := json.Unmarshal([]byte(rawIncome), &income); err != nil {
			return nil, nil, fmt.Errorf("decode income tags: %w", err)
		}
	}
	return minors, income, nil
}

func (s *CategoryStore) SaveCategories(ctx context.Context, minors map[string][]string, income []string) error {
	b, err := json.Marshal(minors)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	if err := s.kv.Put(ctx, storage.KeyCategories, string(b)); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	if income == nil {
		income = []string{}
	}
	b, err = json.Marshal(income)
	if err != nil {
		return fmt.Errorf("encode income tags: %w", err)
	}
	if err := s.kv.Put(ctx, storage.KeyIncome, string(b)); err != nil {
		return fmt.Errorf("save income tags: %w", err)
	}
	return nil
}
