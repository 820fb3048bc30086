// Package admit lets matching participants into Google Meet calls from the
// waiting room. Names are matched against rules loaded from a YAML file.
package admit

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Rule matches a name that contains every term, ignoring case. A rule with
// no terms matches nothing.
type Rule struct {
	MustContain []string `yaml:"must_contain" json:"must_contain"`
}

func (r Rule) matches(lowerName string) bool {
	if len(r.MustContain) == 0 {
		return false
	}
	for _, term := range r.MustContain {
		if !strings.Contains(lowerName, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

// Rules matches when any rule does.
type Rules []Rule

func (rs Rules) Match(name string) bool {
	lower := strings.ToLower(name)
	for _, r := range rs {
		if r.matches(lower) {
			return true
		}
	}
	return false
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads path. A missing file yields no rules, which turns the
// feature off.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admit rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a rules document, dropping blank terms and rules left
// with no terms.
func ParseRules(data []byte) (Rules, error) {
	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("admit rules: %w", err)
	}
	var out Rules
	for _, r := range doc.Rules {
		var terms []string
		for _, term := range r.MustContain {
			if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
				terms = append(terms, term)
			}
		}
		if len(terms) > 0 {
			out = append(out, Rule{MustContain: terms})
		}
	}
	return out, nil
}

// RuleStore holds the active rules and is safe for concurrent use.
type RuleStore struct {
	mu    sync.RWMutex
	rules Rules
}

func NewRuleStore(rules Rules) *RuleStore {
	return &RuleStore{rules: rules}
}

func (s *RuleStore) Get() Rules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

func (s *RuleStore) Set(rules Rules) {
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
}
