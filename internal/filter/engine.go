// Package filter decides which news articles a tracker forwards.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"toonbot/internal/model"
)

// Article is the text of a feed entry that filters are evaluated against.
type Article struct {
	Title   string
	Summary string
}

// ArticleFrom extracts the filterable text of a new_article event.
func ArticleFrom(ev model.Event) (Article, bool) {
	p, ok := ev.Payload.(model.ArticlePayload)
	if !ok {
		return Article{}, false
	}
	return Article{Title: p.Title, Summary: p.Summary}, true
}

type rule struct {
	scope   model.FilterScope
	exclude bool
	word    string
	re      *regexp.Regexp
}

// Set is a compiled list of filters of one tracker.
type Set struct {
	includes []rule
	excludes []rule
}

// Compile prepares filters for repeated evaluation. A filter with an invalid
// pattern fails the whole set.
func Compile(filters []model.Filter) (*Set, error) {
	s := &Set{}
	for _, f := range filters {
		r := rule{scope: f.Scope}
		switch f.Kind {
		case model.FilterInclude, model.FilterExclude:
			r.word = strings.ToLower(f.Value)
		case model.FilterIncludeRe, model.FilterExcludeRe:
			re, err := compile(f.Value)
			if err != nil {
				return nil, fmt.Errorf("filter %d: %w", f.ID, err)
			}
			r.re = re
		default:
			return nil, fmt.Errorf("filter %d: unknown kind %q", f.ID, f.Kind)
		}

		if f.Kind == model.FilterExclude || f.Kind == model.FilterExcludeRe {
			r.exclude = true
			s.excludes = append(s.excludes, r)
		} else {
			s.includes = append(s.includes, r)
		}
	}
	return s, nil
}

// Allows reports whether an article passes the set. An empty set allows
// everything. Includes are OR-ed; any matching exclude rejects.
func (s *Set) Allows(a Article) bool {
	if s == nil {
		return true
	}
	for _, r := range s.excludes {
		if r.matches(a) {
			return false
		}
	}
	if len(s.includes) == 0 {
		return true
	}
	for _, r := range s.includes {
		if r.matches(a) {
			return true
		}
	}
	return false
}

func (r rule) matches(a Article) bool {
	text := textForScope(a, r.scope)
	if r.re != nil {
		return r.re.MatchString(text)
	}
	return strings.Contains(text, r.word)
}

func textForScope(a Article, scope model.FilterScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(a.Title)
	case model.ScopeContent:
		return strings.ToLower(a.Summary)
	default:
		return strings.ToLower(a.Title + " " + a.Summary)
	}
}

func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := compile(pattern)
	return err
}
