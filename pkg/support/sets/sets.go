// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implements a generic Set as a `map[T]struct{}`.
package sets

import (
	"iter"
	"maps"
)

// Set of keys of type T.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set. The optional size reserves space for the expected number of keys.
func Make[T comparable](size ...int) Set[T] {
	if len(size) == 0 {
		return make(Set[T])
	}
	return make(Set[T], size[0])
}

// MakeWith returns a Set with the given keys.
func MakeWith[T comparable](keys ...T) Set[T] {
	s := Make[T](len(keys))
	s.Insert(keys...)
	return s
}

// Has returns whether key is in the set.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert keys into the set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Delete keys from the set.
func (s Set[T]) Delete(keys ...T) {
	for _, key := range keys {
		delete(s, key)
	}
}

// All iterates over the keys of the set, in no particular order.
func (s Set[T]) All() iter.Seq[T] {
	return maps.Keys(s)
}
