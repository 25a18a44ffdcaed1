package entities

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	maxCandidates    = 20
	maxSearchResults = 10
)

// ErrNoMatch is returned when a query matches no entity
var ErrNoMatch = errors.New("no entity matched")

// Candidate is an entity offered to the user when a query is ambiguous
type Candidate struct {
	EntityID     string `json:"entity_id"`
	FriendlyName string `json:"friendly_name"`
}

// AmbiguousMatchError lists the entities a query could refer to
type AmbiguousMatchError struct {
	Query      string
	Candidates []Candidate
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("multiple entities matched %q", e.Query)
}

// NameSource lists every entity id with its friendly name
type NameSource interface {
	Names(ctx context.Context) (map[string]string, error)
}

// Resolver maps what a user typed to entity ids
type Resolver struct {
	names NameSource
}

// NewResolver creates a new Resolver
func NewResolver(names NameSource) *Resolver {
	return &Resolver{names: names}
}

// Resolve turns a friendly name or entity id into exactly one entity id.
// Exact id and name matches win over friendly name substrings.
func (r *Resolver) Resolve(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrNoMatch
	}

	all, err := r.names.Names(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list entities: %w", err)
	}

	if _, ok := all[query]; ok && strings.Contains(query, ".") {
		return query, nil
	}

	ids := sortedIDs(all)
	lower := strings.ToLower(query)

	var candidates []Candidate
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			candidates = append(candidates, Candidate{EntityID: id, FriendlyName: all[id]})
		}
	}

	for _, id := range ids {
		if strings.ToLower(id) == lower {
			add(id)
		}
	}
	for _, id := range ids {
		if strings.ToLower(all[id]) == lower {
			add(id)
		}
	}

	if len(candidates) == 0 {
		for _, id := range ids {
			name := all[id]
			if name != "" && strings.Contains(strings.ToLower(name), lower) {
				add(id)
			}
		}
	}

	switch len(candidates) {
	case 0:
		return "", ErrNoMatch
	case 1:
		return candidates[0].EntityID, nil
	default:
		if len(candidates) > maxCandidates {
			candidates = candidates[:maxCandidates]
		}
		return "", &AmbiguousMatchError{Query: query, Candidates: candidates}
	}
}

// Search returns up to ten entities whose friendly name matches the query,
// trying progressively looser checks until the result list is full.
func (r *Resolver) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	all, err := r.names.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	ids := sortedIDs(all)
	words := strings.Fields(query)
	lower := strings.ToLower(query)

	var pattern, patternFold *regexp.Regexp
	if len(words) > 0 {
		joined := strings.Join(words, ".*")
		// user input is a pattern here; invalid patterns just never match
		pattern, _ = regexp.Compile(joined)
		patternFold, _ = regexp.Compile("(?i)" + joined)
	}

	checks := []func(name string) bool{
		func(n string) bool { return strings.Contains(n, query) },
		func(n string) bool { return strings.Contains(strings.ToLower(n), lower) },
		func(n string) bool { return strings.HasPrefix(n, query) },
		func(n string) bool { return strings.HasPrefix(strings.ToLower(n), lower) },
		func(n string) bool { return pattern != nil && pattern.MatchString(n) },
		func(n string) bool { return patternFold != nil && patternFold.MatchString(n) },
		func(n string) bool {
			fields := strings.Fields(n)
			for _, w := range words {
				if !containsString(fields, w) {
					return false
				}
			}
			return true
		},
		func(n string) bool {
			ln := strings.ToLower(n)
			for _, w := range words {
				if !strings.Contains(ln, strings.ToLower(w)) {
					return false
				}
			}
			return true
		},
	}

	var matches []Candidate
	seen := make(map[string]bool)
	for _, check := range checks {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			if check(all[id]) {
				seen[id] = true
				matches = append(matches, Candidate{EntityID: id, FriendlyName: all[id]})
				if len(matches) >= maxSearchResults {
					return matches, nil
				}
			}
		}
	}

	return matches, nil
}

func sortedIDs(all map[string]string) []string {
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
