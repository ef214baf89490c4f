// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements the host tensor buffer used to feed and evaluate graphs.
//
// A Tensor is a shape plus a flat storage in row-major order. For the usual dtypes the storage is a
// Go slice of the corresponding type (`[]float32`, `[]float16.Float16`, `[]bool`, ...). For the
// packed dtypes (Uint1, Int4, Uint4) the storage is a `[]byte` holding several values per byte, see
// GetPacked and SetPacked for the bit layout.
package tensors

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Tensor is a host tensor: a shape and its flat contiguous storage.
//
// The shape can be changed with SetShape (which reallocates the storage), as the ops evaluation
// does with its output tensors, otherwise a Tensor is a simple value holder and it is not safe for
// concurrent mutation.
type Tensor struct {
	shape shapes.Shape

	// flat is a []T for the Go type of shape.DType, or a []byte for packed dtypes.
	flat any
}

// allocateFlat returns a zero-initialized flat storage for the shape.
func allocateFlat(shape shapes.Shape) any {
	if !shape.Ok() {
		exceptions.Panicf("tensors: cannot allocate storage for invalid shape %s", shape)
	}
	if shape.DType.IsPacked() {
		return make([]byte, shape.Memory())
	}
	return reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size()).Interface()
}

// FromShape returns a new tensor with the given shape and zero values.
func FromShape(shape shapes.Shape) *Tensor {
	return &Tensor{shape: shape.Clone(), flat: allocateFlat(shape)}
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is copied to the Tensor.
// The `DType` is inferred from the `data` type.
//
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	t := FromShape(shape)
	copy(t.flat.([]T), data)
	return t
}

// FromScalar creates a tensor with the given scalar.
// The `DType` is inferred from the value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromScalarAndDimensions(value)
}

// FromScalarAndDimensions creates a tensor with the given dimensions, filled with the
// given scalar value replicated everywhere.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	t := FromShape(shapes.Make(dtypes.FromGenericsType[T](), dimensions...))
	flat := t.flat.([]T)
	for ii := range flat {
		flat[ii] = value
	}
	return t
}

// FromPackedBytes creates a tensor of a packed dtype (Uint1, Int4 or Uint4) from its packed
// representation. The data is copied.
func FromPackedBytes(dtype dtypes.DType, data []byte, dimensions ...int) *Tensor {
	if !dtype.IsPacked() {
		exceptions.Panicf("FromPackedBytes: dtype %s is not a packed dtype", dtype)
	}
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != int(shape.Memory()) {
		exceptions.Panicf("FromPackedBytes(%s): requires %d bytes, got %d", shape, shape.Memory(), len(data))
	}
	t := FromShape(shape)
	copy(t.flat.([]byte), data)
	return t
}

// FromFloat64s creates a tensor of the given dtype, converting each value from float64.
// It works for any dtype, including the packed ones, and it is how constants are usually created.
func FromFloat64s(dtype dtypes.DType, values []float64, dimensions ...int) *Tensor {
	t := FromShape(shapes.Make(dtype, dimensions...))
	if len(values) != t.Size() {
		exceptions.Panicf("FromFloat64s(%s): got %d values, but shape size is %d", t.shape, len(values), t.Size())
	}
	for ii, v := range values {
		t.SetFloat64(ii, v)
	}
	return t
}

// Shape of the tensor, includes DType.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used by the tensor storage.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// Ok returns whether the tensor is in a valid state.
func (t *Tensor) Ok() bool { return t != nil && t.shape.Ok() && t.flat != nil }

// CheckValid returns an error if the tensor is nil or in an invalid state.
func (t *Tensor) CheckValid() error {
	if t == nil {
		return errors.New("tensor is nil")
	}
	if !t.Ok() {
		return errors.Errorf("tensor with shape %s has no storage", t.shape)
	}
	return nil
}

// AssertValid panics if the tensor is nil or in an invalid state.
func (t *Tensor) AssertValid() {
	if err := t.CheckValid(); err != nil {
		panic(err)
	}
}

// SetShape changes the shape (and dtype) of the tensor. The storage is reallocated (and zeroed) if the
// new shape requires a different storage, otherwise the contents are preserved.
func (t *Tensor) SetShape(shape shapes.Shape) {
	if t.flat != nil && t.shape.DType == shape.DType && t.shape.Size() == shape.Size() {
		t.shape = shape.Clone()
		return
	}
	t.shape = shape.Clone()
	t.flat = allocateFlat(shape)
}

// Flat returns the flat storage of the tensor: a []T for the Go type of the dtype, or a []byte
// for the packed dtypes. It is not a copy.
func (t *Tensor) Flat() any { return t.flat }

// Flat returns the flat storage of the tensor as a []T. It is not a copy.
//
// It panics if T doesn't match the tensor's dtype.
func Flat[T dtypes.Supported](t *Tensor) []T {
	flat, ok := t.flat.([]T)
	if !ok {
		var v T
		exceptions.Panicf("tensors.Flat[%T] is incompatible with tensor's dtype %s", v, t.shape.DType)
	}
	return flat
}

// Bytes returns the packed storage of a packed dtype tensor. It is not a copy.
// It panics for non-packed dtypes.
func (t *Tensor) Bytes() []byte {
	if !t.shape.DType.IsPacked() {
		exceptions.Panicf("Tensor.Bytes() only available for packed dtypes, tensor is %s", t.shape)
	}
	return t.flat.([]byte)
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	t2 := FromShape(t.shape)
	reflect.Copy(reflect.ValueOf(t2.flat), reflect.ValueOf(t.flat))
	return t2
}

// ToFloat64s returns a copy of the values converted to float64.
func (t *Tensor) ToFloat64s() []float64 {
	values := make([]float64, t.Size())
	for ii := range values {
		values[ii] = t.Float64(ii)
	}
	return values
}

// Value returns the flat storage copy as []T if it's not a packed dtype, or the values as []float64 otherwise.
// For scalars it returns the scalar value itself.
func (t *Tensor) Value() any {
	if t.shape.DType.IsPacked() {
		values := t.ToFloat64s()
		if t.shape.IsScalar() {
			return values[0]
		}
		return values
	}
	v := reflect.ValueOf(t.flat)
	if t.shape.IsScalar() {
		return v.Index(0).Interface()
	}
	out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(out, v)
	return out.Interface()
}

// Equal returns whether both tensors have the same shape and the same values.
// 16-bit floats are compared by their bits, packed dtypes by their packed bytes.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	return reflect.DeepEqual(t.flat, other.flat)
}

// InDelta checks whether Abs(t - other) <= delta for every element, compared as float64.
// If the shapes are different, it returns false.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if t == other {
		return true
	}
	if !t.shape.Equal(other.shape) {
		return false
	}
	for ii := range t.Size() {
		v0, v1 := t.Float64(ii), other.Float64(ii)
		if v0 == v1 {
			continue
		}
		diff := v0 - v1
		if diff < 0 {
			diff = -diff
		}
		if !(diff <= delta) {
			return false
		}
	}
	return true
}

// MaxSizeToPrint is the number of values printed by String before eliding.
const MaxSizeToPrint = 16

// String implements fmt.Stringer. It prints the shape and the first values.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	if !t.Ok() {
		return fmt.Sprintf("Tensor(invalid)%s", t.shape)
	}
	n := min(t.Size(), MaxSizeToPrint)
	parts := make([]string, 0, n+1)
	for ii := range n {
		parts = append(parts, fmt.Sprintf("%g", t.Float64(ii)))
	}
	if n < t.Size() {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("%s{%s}", t.shape, strings.Join(parts, ", "))
}
