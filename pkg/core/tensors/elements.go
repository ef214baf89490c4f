// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// Float64 returns the element at the flat index idx converted to float64.
// Bool is converted to 0 or 1.
//
// It's a slow, per-element, access meant for reference kernels and tests.
func (t *Tensor) Float64(idx int) float64 {
	switch flat := t.flat.(type) {
	case []float32:
		return float64(flat[idx])
	case []float64:
		return flat[idx]
	case []float16.Float16:
		return float64(flat[idx].Float32())
	case []bfloat16.BFloat16:
		return float64(flat[idx].Float32())
	case []int8:
		return float64(flat[idx])
	case []int16:
		return float64(flat[idx])
	case []int32:
		return float64(flat[idx])
	case []int64:
		return float64(flat[idx])
	case []uint8:
		if t.shape.DType.IsPacked() {
			return float64(GetPacked(flat, t.shape.DType, idx))
		}
		return float64(flat[idx])
	case []uint16:
		return float64(flat[idx])
	case []uint32:
		return float64(flat[idx])
	case []uint64:
		return float64(flat[idx])
	case []bool:
		if flat[idx] {
			return 1
		}
		return 0
	}
	exceptions.Panicf("Tensor.Float64: unsupported storage %T for %s", t.flat, t.shape)
	panic(nil)
}

// SetFloat64 sets the element at the flat index idx from a float64 value.
//
// Floats are rounded to the nearest representable value, integers are truncated toward zero
// (and saturated to the dtype range), Bool is set to `value != 0`.
//
// Packed dtypes are the exception: the value is saturated to the int8 range, and only its low bits
// are stored, see SetPacked.
func (t *Tensor) SetFloat64(idx int, value float64) {
	switch flat := t.flat.(type) {
	case []float32:
		flat[idx] = float32(value)
	case []float64:
		flat[idx] = value
	case []float16.Float16:
		flat[idx] = float16.Fromfloat32(float32(value))
	case []bfloat16.BFloat16:
		flat[idx] = bfloat16.FromFloat32(float32(value))
	case []int8:
		flat[idx] = int8(saturate(value, math.MinInt8, math.MaxInt8))
	case []int16:
		flat[idx] = int16(saturate(value, math.MinInt16, math.MaxInt16))
	case []int32:
		flat[idx] = int32(saturate(value, math.MinInt32, math.MaxInt32))
	case []int64:
		flat[idx] = saturateInt64(value)
	case []uint8:
		if t.shape.DType.IsPacked() {
			SetPacked(flat, t.shape.DType, idx, int8(saturate(value, math.MinInt8, math.MaxInt8)))
			return
		}
		flat[idx] = uint8(saturate(value, 0, math.MaxUint8))
	case []uint16:
		flat[idx] = uint16(saturate(value, 0, math.MaxUint16))
	case []uint32:
		flat[idx] = uint32(saturate(value, 0, math.MaxUint32))
	case []uint64:
		flat[idx] = saturateUint64(value)
	case []bool:
		flat[idx] = value != 0
	default:
		exceptions.Panicf("Tensor.SetFloat64: unsupported storage %T for %s", t.flat, t.shape)
	}
}

// saturate truncates value toward zero and clamps it to [low, high]. NaN becomes 0.
func saturate(value, low, high float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	value = math.Trunc(value)
	return max(low, min(high, value))
}

// saturateInt64 is like saturate, but handles the upper bound of int64, which isn't exactly
// representable as a float64.
func saturateInt64(value float64) int64 {
	if value >= 0x1p63 {
		return math.MaxInt64
	}
	return int64(saturate(value, math.MinInt64, math.MaxInt64))
}

// saturateUint64 is like saturate, but handles the upper bound of uint64, which isn't exactly
// representable as a float64.
func saturateUint64(value float64) uint64 {
	if value >= 0x1p64 {
		return math.MaxUint64
	}
	return uint64(saturate(value, 0, math.MaxUint64))
}
