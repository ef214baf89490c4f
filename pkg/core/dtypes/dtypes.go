// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element types understood by the graph IR.
//
// Besides the usual Go numeric types, it covers the 16-bit floats (Float16 through
// github.com/x448/float16 and BFloat16 through github.com/gomlx/gopjrt/dtypes/bfloat16) and the
// sub-byte packed integers (Uint1, Int4, Uint4), which have no Go counterpart and are stored
// packed in a []byte.
//
// It also includes some constraint interfaces to be used with generics (Supported).
package dtypes

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters don't follow the specifications.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// FromName returns the DType for the given name (or alias), case-insensitive.
// It returns an error for unknown names.
func FromName(name string) (DType, error) {
	if dtype, found := MapOfNames[name]; found {
		return dtype, nil
	}
	if dtype, found := MapOfNames[strings.ToLower(name)]; found {
		return dtype, nil
	}
	return InvalidDType, errors.Errorf("unknown dtype %q", name)
}

// FromGenericsType returns the DType enum for the given type that this package knows about.
// Go's int is not supported, since its size is platform dependent.
func FromGenericsType[T Supported]() DType {
	var t T
	switch (any(t)).(type) {
	case float64:
		return Float64
	case float32:
		return Float32
	case float16.Float16:
		return Float16
	case bfloat16.BFloat16:
		return BFloat16
	case int64:
		return Int64
	case int32:
		return Int32
	case int16:
		return Int16
	case int8:
		return Int8
	case bool:
		return Bool
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	}
	return InvalidDType
}

// Pre-generate constant reflect.TypeOf for convenience.
var (
	float16Type  = reflect.TypeOf(float16.Float16(0))
	bfloat16Type = reflect.TypeOf(bfloat16.BFloat16(0))
)

// GoType returns the Go `reflect.Type` used to store one element of the DType.
//
// Packed dtypes (see IsPacked) are stored as bytes, and it returns the type of uint8 for them.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Int64:
		return reflect.TypeOf(int64(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Int16:
		return reflect.TypeOf(int16(0))
	case Int8:
		return reflect.TypeOf(int8(0))

	case Uint64:
		return reflect.TypeOf(uint64(0))
	case Uint32:
		return reflect.TypeOf(uint32(0))
	case Uint16:
		return reflect.TypeOf(uint16(0))
	case Uint8, Uint1, Uint4, Int4:
		return reflect.TypeOf(uint8(0))

	case Bool:
		return reflect.TypeOf(true)

	case Float16:
		return float16Type
	case BFloat16:
		return bfloat16Type
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))

	default:
		panicf("unknown dtype %q (%d) in DType.GoType", dtype, dtype)
		panic(nil)
	}
}

// Bits returns the number of bits used by one element of the DType.
func (dtype DType) Bits() int {
	switch dtype {
	case Uint1:
		return 1
	case Int4, Uint4:
		return 4
	case InvalidDType:
		return 0
	}
	return int(dtype.GoType().Size()) * 8
}

// Size returns the number of bytes for the given DType, or 0 if the dtype uses fraction(s) of bytes.
// If the size is 0 (like a 4-bits quantity), consider the Bits or SizeForDimensions method.
func (dtype DType) Size() int {
	if dtype.IsPacked() || dtype == InvalidDType {
		return 0
	}
	return int(dtype.GoType().Size())
}

// SizeForDimensions returns the size in bytes used for the given dimensions.
// This is a safer method than Size in case the dtype uses an underlying size that is not multiple of 8 bits.
//
// It works also for scalar (one element) shapes where the list of dimensions is empty.
func (dtype DType) SizeForDimensions(dimensions ...int) int {
	numElements := 1
	for _, dim := range dimensions {
		if dim < 0 {
			panicf("dim cannot be negative for SizeForDimensions, got %v", dimensions)
		}
		numElements *= dim
	}
	if dtype.IsPacked() {
		return (numElements*dtype.Bits() + 7) / 8
	}
	return numElements * dtype.Size()
}

// IsPacked returns whether the dtype uses less than one byte per element, and its values are packed
// into bytes: Uint1, Int4 and Uint4.
func (dtype DType) IsPacked() bool {
	return dtype == Uint1 || dtype == Int4 || dtype == Uint4
}

// IsFloat16 returns whether dtype is a supported float with 16 bits: [Float16] or [BFloat16].
func (dtype DType) IsFloat16() bool {
	return dtype == Float16 || dtype == BFloat16
}

// IsInt returns whether dtype is an integer type, including the packed ones.
func (dtype DType) IsInt() bool {
	return dtype == Int64 || dtype == Int32 || dtype == Int16 || dtype == Int8 || dtype == Int4 ||
		dtype == Uint8 || dtype == Uint16 || dtype == Uint32 || dtype == Uint64 || dtype == Uint4 || dtype == Uint1
}

// IsUnsigned returns whether dtype is one of the unsigned integer types.
func (dtype DType) IsUnsigned() bool {
	return dtype == Uint1 || dtype == Uint4 || dtype == Uint8 || dtype == Uint16 || dtype == Uint32 || dtype == Uint64
}

// IsSupported returns whether dtype is one of the enumerated values.
func (dtype DType) IsSupported() bool {
	_, found := dtypeNames[dtype]
	return found && dtype != InvalidDType
}

// Supported lists the Go types that can back a tensor.
// Used as traits for generics.
//
// Packed dtypes are backed by uint8 (bytes holding several values each).
type Supported interface {
	bool | float16.Float16 | bfloat16.BFloat16 |
		float32 | float64 | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}
