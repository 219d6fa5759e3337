package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds per-category booking rules that tighten the global limits.
//
//	categories:
//	  study_room:
//	    max_duration: 2h
type Policy struct {
	Categories map[string]CategoryPolicy `yaml:"categories"`
}

type CategoryPolicy struct {
	MaxDuration time.Duration `yaml:"max_duration"`
	Description string        `yaml:"description,omitempty"`
}

func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}

func ParsePolicy(data []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	for name, category := range policy.Categories {
		if category.MaxDuration <= 0 {
			return nil, fmt.Errorf("category %q: max_duration must be positive", name)
		}
	}
	return &policy, nil
}

// MaxDuration returns the duration cap for a facility category, if any.
func (p *Policy) MaxDuration(category string) (time.Duration, bool) {
	if p == nil || category == "" {
		return 0, false
	}
	c, ok := p.Categories[category]
	if !ok {
		return 0, false
	}
	return c.MaxDuration, true
}

func (p *Policy) CategoryCount() int {
	if p == nil {
		return 0
	}
	return len(p.Categories)
}
