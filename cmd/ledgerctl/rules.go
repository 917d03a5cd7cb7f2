package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"casheye/internal/core"
)

// RuleFile is the YAML seed format for recurring rules.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

type RuleSpec struct {
	ID     string `yaml:"id,omitempty"`
	Title  string `yaml:"title"`
	Amount int64  `yaml:"amount"`
	Major  string `yaml:"major"`
	Minor  string `yaml:"minor,omitempty"`
	Day    int    `yaml:"day"`
	Start  string `yaml:"start"`
	End    string `yaml:"end,omitempty"`
	Income bool   `yaml:"income,omitempty"`
}

func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return ParseRuleFile(data)
}

func ParseRuleFile(data []byte) (*RuleFile, error) {
	var f RuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}
	return &f, nil
}

// RecurringRules converts the specs, reporting the first invalid entry by position.
func (f *RuleFile) RecurringRules() ([]core.RecurringRule, error) {
	out := make([]core.RecurringRule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		r, err := spec.rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, spec.Title, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s RuleSpec) rule() (core.RecurringRule, error) {
	start, err := core.ParsePeriod(s.Start)
	if err != nil {
		return core.RecurringRule{}, err
	}
	r := core.RecurringRule{
		ID:            s.ID,
		Title:         s.Title,
		Amount:        s.Amount,
		MajorCategory: s.Major,
		MinorCategory: s.Minor,
		DayOfMonth:    s.Day,
		StartPeriod:   start,
		IsIncome:      s.Income,
	}
	if s.End != "" {
		end, err := core.ParsePeriod(s.End)
		if err != nil {
			return core.RecurringRule{}, err
		}
		r.EndPeriod = &end
	}
	return r, r.Validate()
}
