package wsd

import (
	"sort"
	"strings"
)

// StringSet is an unordered, deduplicated collection of strings.
// Types, scopes and transport addresses all travel as whitespace
// separated lists on the wire and are modelled as sets.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values, skipping empty strings.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// ParseStringSet splits a whitespace separated wire list into a set.
func ParseStringSet(text string) StringSet {
	return NewStringSet(strings.Fields(text)...)
}

// Add inserts v unless it is empty.
func (s StringSet) Add(v string) {
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

// Has reports whether v is in the set.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of entries.
func (s StringSet) Len() int {
	return len(s)
}

// Intersects reports whether s and other share at least one entry.
func (s StringSet) Intersects(other StringSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for v := range small {
		if large.Has(v) {
			return true
		}
	}
	return false
}

// Equal reports whether both sets hold exactly the same entries.
func (s StringSet) Equal(other StringSet) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

// Sorted returns the entries in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// String renders the set the way it appears on the wire.
func (s StringSet) String() string {
	return strings.Join(s.Sorted(), " ")
}

// Clone returns an independent copy.
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}
