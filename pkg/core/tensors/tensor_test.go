// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math"
	"testing"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.True(t, tensor.Shape().Equal(shapes.Make(dtypes.Float32, 2, 3)))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, Flat[float32](tensor))
	assert.Equal(t, 5.0, tensor.Float64(4))
	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]float32{1, 2, 3}, 2, 2) })
	require.Panics(t, func() { _ = Flat[float64](tensor) })

	scalar := FromScalar(int32(7))
	assert.Equal(t, int32(7), scalar.Value())
	assert.Equal(t, 0, scalar.Rank())

	filled := FromScalarAndDimensions(float16.Fromfloat32(2), 6, 3, 1, 1)
	assert.Equal(t, 18, filled.Size())
	for _, v := range filled.ToFloat64s() {
		assert.Equal(t, 2.0, v)
	}
}

func TestFromFloat64s(t *testing.T) {
	values := []float64{-1.5, 0, 2.25, 300}
	for _, dtype := range []dtypes.DType{dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16} {
		tensor := FromFloat64s(dtype, values, 4)
		assert.Equalf(t, values, tensor.ToFloat64s(), "dtype=%s", dtype)
	}

	asInt8 := FromFloat64s(dtypes.Int8, values, 4)
	assert.Equal(t, []int8{-1, 0, 2, 127}, Flat[int8](asInt8))

	asUint8 := FromFloat64s(dtypes.Uint8, values, 4)
	assert.Equal(t, []uint8{0, 0, 2, 255}, Flat[uint8](asUint8))

	asInt64 := FromFloat64s(dtypes.Int64, []float64{1e19, 9.3e18, -1e19, 0x1p62}, 4)
	assert.Equal(t, []int64{math.MaxInt64, math.MaxInt64, math.MinInt64, 1 << 62}, Flat[int64](asInt64))

	asUint64 := FromFloat64s(dtypes.Uint64, []float64{2e19, 0x1p64, -1, 0x1p63}, 4)
	assert.Equal(t, []uint64{math.MaxUint64, math.MaxUint64, 0, 1 << 63}, Flat[uint64](asUint64))

	asBool := FromFloat64s(dtypes.Bool, values, 2, 2)
	assert.Equal(t, []bool{true, false, true, true}, Flat[bool](asBool))

	asBF16 := FromFloat64s(dtypes.BFloat16, []float64{1}, 1)
	assert.Equal(t, bfloat16.FromFloat32(1), Flat[bfloat16.BFloat16](asBF16)[0])
}

func TestPacked(t *testing.T) {
	// Uint1: first element in the most significant bit.
	bits := FromPackedBytes(dtypes.Uint1, []byte{0b1010_0000, 0b1000_0000}, 9)
	assert.Equal(t, []float64{1, 0, 1, 0, 0, 0, 0, 0, 1}, bits.ToFloat64s())

	// Uint4: first element in the high nibble.
	u4 := FromPackedBytes(dtypes.Uint4, []byte{0x1F, 0x70}, 3)
	assert.Equal(t, []float64{1, 15, 7}, u4.ToFloat64s())

	// Int4: two's complement in the nibble.
	i4 := FromPackedBytes(dtypes.Int4, []byte{0x8F, 0x70}, 3)
	assert.Equal(t, []float64{-8, -1, 7}, i4.ToFloat64s())

	// Writing back.
	written := FromFloat64s(dtypes.Int4, []float64{-8, -1, 7}, 3)
	assert.Equal(t, []byte{0x8F, 0x70}, written.Bytes())
	written = FromFloat64s(dtypes.Uint1, []float64{1, 0, 1, 0, 0, 0, 0, 0, 1}, 9)
	assert.Equal(t, []byte{0b1010_0000, 0b1000_0000}, written.Bytes())

	// Out of range values keep only their low bits.
	wrapped := FromFloat64s(dtypes.Uint4, []float64{-1, 16}, 2)
	assert.Equal(t, []byte{0xF0}, wrapped.Bytes())
	assert.Equal(t, []float64{15, 0}, wrapped.ToFloat64s())
	wrapped = FromFloat64s(dtypes.Int4, []float64{8, -9}, 2)
	assert.Equal(t, []float64{-8, 7}, wrapped.ToFloat64s())

	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]float32{1}, 1).Bytes() })
	require.Panics(t, func() { _ = FromPackedBytes(dtypes.Uint4, []byte{1, 2, 3}, 3) })
}

func TestSetShape(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 4)
	tensor.SetShape(shapes.Make(dtypes.Float32, 2, 2))
	assert.Equal(t, []float32{1, 2, 3, 4}, Flat[float32](tensor))

	tensor.SetShape(shapes.Make(dtypes.Float16, 1, 3, 2))
	assert.Equal(t, 6, len(Flat[float16.Float16](tensor)))
	assert.Equal(t, dtypes.Float16, tensor.DType())
}

func TestEqualAndInDelta(t *testing.T) {
	t0 := FromFlatDataAndDimensions([]float32{1, 2}, 2)
	t1 := t0.Clone()
	assert.True(t, t0.Equal(t1))
	Flat[float32](t1)[1] = 2.001
	assert.False(t, t0.Equal(t1))
	assert.True(t, t0.InDelta(t1, 0.01))
	assert.False(t, t0.InDelta(t1, 0.0001))
	assert.False(t, t0.InDelta(FromFlatDataAndDimensions([]float64{1, 2}, 2), 1))
	assert.Equal(t, "(Float32)[2]{1, 2}", t0.String())
	require.Error(t, (*Tensor)(nil).CheckValid())
}
