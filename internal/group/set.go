package group

import "sort"

// Set is a collection of identifiers dedup'd by canonical key.
type Set struct {
	byKey map[string]Identifier
}

func NewSet(ids ...Identifier) *Set {
	s := &Set{byKey: make(map[string]Identifier, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *Set) Add(id Identifier) {
	s.byKey[id.Encode()] = id
}

func (s *Set) Has(id Identifier) bool {
	_, ok := s.byKey[id.Encode()]
	return ok
}

func (s *Set) HasKey(key string) bool {
	_, ok := s.byKey[key]
	return ok
}

func (s *Set) Len() int {
	return len(s.byKey)
}

// Keys returns the canonical keys in lexicographic order.
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sorted returns the identifiers in display order: School first, then
// Classes, Sections and Subjects, each kind ordered by canonical key.
// This ordering is presentational only; membership semantics live in the
// set itself.
func (s *Set) Sorted() []Identifier {
	ids := make([]Identifier, 0, len(s.byKey))
	for _, k := range s.Keys() {
		ids = append(ids, s.byKey[k])
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return kindRank(ids[i]) < kindRank(ids[j])
	})
	return ids
}

func kindRank(id Identifier) int {
	switch id.(type) {
	case School:
		return 0
	case Class:
		return 1
	case Section:
		return 2
	case Subject:
		return 3
	case Custom:
		return 4
	default:
		return 5
	}
}
