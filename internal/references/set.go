// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package references resolves the set of storage URIs referenced from
// tabular workspace data. Any object whose URI is in the set is protected
// from deletion.
package references

import (
	"slices"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
)

// Set is a set of storage URIs. It is safe for concurrent use while it is
// being filled; after Freeze it is read-only.
type Set struct {
	uris   mapset.Set[string]
	frozen atomic.Bool
}

// NewSet returns an empty set holding uris.
func NewSet(uris ...string) *Set {
	return &Set{uris: mapset.NewSet(uris...)}
}

// Add inserts uris. It panics if the set has been frozen.
func (s *Set) Add(uris ...string) {
	if s.frozen.Load() {
		panic("references: Add on frozen set")
	}
	s.uris.Append(uris...)
}

// Freeze makes the set read-only and returns it.
func (s *Set) Freeze() *Set {
	s.frozen.Store(true)
	return s
}

func (s *Set) Contains(uri string) bool { return s.uris.ContainsOne(uri) }

func (s *Set) Len() int { return s.uris.Cardinality() }

// Sorted returns the members in lexical order.
func (s *Set) Sorted() []string {
	out := s.uris.ToSlice()
	slices.Sort(out)
	return out
}

// Each calls fn for each member until fn returns false.
func (s *Set) Each(fn func(uri string) bool) {
	s.uris.Each(func(u string) bool { return !fn(u) })
}
