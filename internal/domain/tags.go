package domain

import (
	"cmp"
	"slices"
	"strings"
)

// Tag is a label attached to jobs, e.g. {Type: "bug", Name: "io-stall"}
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func fuzzyMatch(term, s string) bool {
	return strings.Contains(strings.ToLower(s), term)
}

// FuzzySearchTags matches tags against a "type:name" search term.
//
// A single part matches either the type or the name, two parts must match the
// type and the name respectively. An empty term matches everything. The result
// is sorted by type, then name.
func FuzzySearchTags(term string, tags []Tag) []Tag {
	if len(tags) == 0 {
		return []Tag{}
	}

	termParts := make([]string, 0, 2)
	for _, part := range strings.Split(term, ":") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			termParts = append(termParts, part)
		}
	}

	results := make([]Tag, 0, len(tags))
	switch len(termParts) {
	case 0:
		results = append(results, tags...)
	case 1:
		for _, tag := range tags {
			if fuzzyMatch(termParts[0], tag.Type) || fuzzyMatch(termParts[0], tag.Name) {
				results = append(results, tag)
			}
		}
	case 2:
		for _, tag := range tags {
			if fuzzyMatch(termParts[0], tag.Type) && fuzzyMatch(termParts[1], tag.Name) {
				results = append(results, tag)
			}
		}
	}

	slices.SortStableFunc(results, func(a, b Tag) int {
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	return results
}
