// Package rules implements the coarse class-name heuristic built from a
// filter list. It is not a filter-list engine: rules are reduced to their
// identifier characters and matched as substrings of class names.
package rules

import (
	"context"
	"fmt"
	"strings"
)

// Source yields the raw newline-delimited rule list.
type Source interface {
	FetchRules(ctx context.Context) (string, error)
}

// Set is immutable after Parse and safe for concurrent use.
type Set struct {
	raw      []string
	stripped []string
	ignored  int
}

// Parse keeps every non-blank line that is not a "!" comment, in order.
func Parse(text string) *Set {
	s := &Set{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		s.raw = append(s.raw, line)
		// A rule with no identifier characters strips to "" and would match
		// every class name. It is kept in Rules but never matches.
		if st := strip(line); st != "" {
			s.stripped = append(s.stripped, st)
		} else {
			s.ignored++
		}
	}
	return s
}

// Empty returns the rule set used when no list could be loaded.
func Empty() *Set {
	return &Set{}
}

// Load fetches and parses the rule list. On failure it returns an empty set
// together with the error so the caller can report it and keep running.
func Load(ctx context.Context, src Source) (*Set, error) {
	text, err := src.FetchRules(ctx)
	if err != nil {
		return Empty(), fmt.Errorf("load rules: %w", err)
	}
	return Parse(text), nil
}

// Matches reports whether any stripped rule occurs in any of the class names.
func (s *Set) Matches(classList []string) bool {
	if s == nil {
		return false
	}
	for _, rule := range s.stripped {
		for _, class := range classList {
			if strings.Contains(class, rule) {
				return true
			}
		}
	}
	return false
}

// Rules returns the raw rules in list order.
func (s *Set) Rules() []string {
	return append([]string(nil), s.raw...)
}

// Ignored counts the rules that strip to nothing and never match.
func (s *Set) Ignored() int {
	if s == nil {
		return 0
	}
	return s.ignored
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.raw)
}

func strip(rule string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, rule)
}
