package core

import (
	"regexp"

	"github.com/pkg/errors"
)

// RuleFilter is a set of compiled regular expressions tested against
// relative file paths, grounded on manager/src/common/rule_filter.rs. Its
// sole consumer is the diff engine's visibility check: a path that matches
// any rule is skipped on both the newer and the older side, so it lands in
// none of a pack's added/missing/modified buckets. The one exception is a
// folder missing from the newer side as a whole: every entry recorded under
// it is marked missing with it, matching paths included.
//
// The standard library's regexp package serves this directly; no example
// repo in the corpus reaches for a third-party regex engine; regexp's
// RE2 semantics are a strict superset of what simple path-exclusion
// patterns need.
type RuleFilter struct {
	patterns []*regexp.Regexp
}

// NewRuleFilter compiles rules into a filter. An empty rule list yields a
// filter that excludes nothing.
func NewRuleFilter(rules []string) (*RuleFilter, error) {
	patterns := make([]*regexp.Regexp, 0, len(rules))

	for _, rule := range rules {
		re, err := regexp.Compile(rule)
		if err != nil {
			return nil, errors.Wrapf(err, "compile exclude rule %q", rule)
		}
		patterns = append(patterns, re)
	}

	return &RuleFilter{patterns: patterns}, nil
}

// TestAny reports whether text matches any compiled rule. An empty filter
// always returns def.
func (f *RuleFilter) TestAny(text string, def bool) bool {
	if len(f.patterns) == 0 {
		return def
	}

	for _, p := range f.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Visible reports whether a path should participate in diffing: the
// inverse of TestAny(path, false).
func (f *RuleFilter) Visible(path string) bool {
	return !f.TestAny(path, false)
}
