// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package common holds the descriptors of the quantization operations used to build low precision
// test subgraphs: FakeQuantizeOnData, FakeQuantizeOnWeights and DequantizationOperations.
//
// Descriptors are plain values. Optional parts are modelled with Option: an absent (None) value
// means "don't insert this operation".
package common

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Option holds a value that may be absent.
type Option[T any] struct {
	value   T
	present bool
}

// Some returns a present Option with value.
func Some[T any](value T) Option[T] {
	return Option[T]{value: value, present: true}
}

// None returns an absent Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsPresent returns whether the option holds a value.
func (o Option[T]) IsPresent() bool { return o.present }

// Empty returns whether the option holds no value.
func (o Option[T]) Empty() bool { return !o.present }

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) { return o.value, o.present }

// MustGet returns the value, and panics if it is absent.
func (o Option[T]) MustGet() T {
	if !o.present {
		var zero T
		exceptions.Panicf("Option[%T].MustGet() called on an absent value", zero)
	}
	return o.value
}

// OrElse returns the value if present, or defaultValue otherwise.
func (o Option[T]) OrElse(defaultValue T) T {
	if o.present {
		return o.value
	}
	return defaultValue
}

// String implements fmt.Stringer.
func (o Option[T]) String() string {
	if !o.present {
		return "None"
	}
	return fmt.Sprintf("Some(%v)", o.value)
}
