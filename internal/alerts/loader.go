package alerts

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk layout of a rules override file.
type ruleFile struct {
	RuleSets []RuleSet `yaml:"rule_sets"`
}

// LoadRuleSets reads rule sets from a YAML file. Unknown fields are rejected
// so a typo cannot silently disable a threshold.
func LoadRuleSets(path string) ([]RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRuleSets(data)
}

// ParseRuleSets decodes and validates rule sets from YAML
func ParseRuleSets(data []byte) ([]RuleSet, error) {
	var f ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	if len(f.RuleSets) == 0 {
		return nil, fmt.Errorf("%w: no rule_sets defined", ErrInvalidRule)
	}

	for _, s := range f.RuleSets {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return f.RuleSets, nil
}

// MergeRuleSets overlays overrides on base, replacing whole rule sets by
// disease and keeping base order.
func MergeRuleSets(base, overrides []RuleSet) []RuleSet {
	merged := make([]RuleSet, 0, len(base)+len(overrides))
	replaced := make(map[int]bool)
	for _, b := range base {
		out := b
		for i, o := range overrides {
			if o.Disease == b.Disease {
				out = o
				replaced[i] = true
			}
		}
		merged = append(merged, out)
	}
	for i, o := range overrides {
		if !replaced[i] {
			merged = append(merged, o)
		}
	}
	return merged
}
