package healing

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrorOccurrence is the input to the pattern detector: an observed error
// plus a coarse kind tag (e.g. "transport", "protocol") the kernel already
// knows from its own error classification (see spec.md §7).
type ErrorOccurrence struct {
	Kind    string
	Message string
}

// patternRule is one row of the classification table: a compiled regex
// tested against the error message, scoped to an optional Kind, mapping to
// a named strategy.
type patternRule struct {
	Kind     string // empty matches any kind
	Pattern  *regexp.Regexp
	Strategy string
}

// PatternDetector classifies an ErrorOccurrence into a strategy name via
// table lookup (regex-on-message + kind tag), per spec.md §4.5. Falling
// back to DefaultStrategy keeps an unmatched error from being silently
// unrecoverable.
type PatternDetector struct {
	rules           []patternRule
	defaultStrategy string
}

// NewPatternDetector creates a detector with no rules and the given
// fallback strategy name.
func NewPatternDetector(defaultStrategy string) *PatternDetector {
	return &PatternDetector{defaultStrategy: defaultStrategy}
}

// AddRule registers one classification row. kind may be empty to match any
// ErrorOccurrence.Kind. Returns an error if pattern fails to compile.
func (d *PatternDetector) AddRule(kind, pattern, strategy string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	d.rules = append(d.rules, patternRule{Kind: kind, Pattern: re, Strategy: strategy})
	return nil
}

// ruleFile is the on-disk shape of an externalised pattern table: a flat
// list of kind/pattern/strategy rows, applied in file order.
type ruleFile struct {
	Rules []struct {
		Kind     string `yaml:"kind"`
		Pattern  string `yaml:"pattern"`
		Strategy string `yaml:"strategy"`
	} `yaml:"rules"`
}

// LoadRulesFile reads a YAML pattern table from path and registers each
// row via AddRule, in file order, so operators can tune recovery routing
// without a rebuild.
func (d *PatternDetector) LoadRulesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("healing: read rules file: %w", err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("healing: parse rules file: %w", err)
	}
	for _, r := range rf.Rules {
		if err := d.AddRule(r.Kind, r.Pattern, r.Strategy); err != nil {
			return fmt.Errorf("healing: rule %q: %w", r.Pattern, err)
		}
	}
	return nil
}

// Classify returns the strategy name for occ, the first matching rule
// (in registration order) winning, or the detector's default strategy if
// nothing matches.
func (d *PatternDetector) Classify(occ ErrorOccurrence) string {
	for _, rule := range d.rules {
		if rule.Kind != "" && rule.Kind != occ.Kind {
			continue
		}
		if rule.Pattern.MatchString(occ.Message) {
			return rule.Strategy
		}
	}
	return d.defaultStrategy
}
