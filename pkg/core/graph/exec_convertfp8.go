// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"math"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

func init() {
	setNodeExecutor(NodeTypeConvertFP8, execConvertFP8, func(node *Node) bool {
		return ConvertFP8Supported(node.inputNodes[0].DType(), node.Destination())
	})
}

// fp8Float are the Go types of the dtypes ConvertFP8 has kernels for.
type fp8Float interface {
	bfloat16.BFloat16 | float16.Float16 | float32
}

type convertFP8Kernel func(input, output *tensors.Tensor)

// convertFP8Kernels is the dispatch table of ConvertFP8, keyed by the (from, to) dtypes.
// Any pair not listed here can't be evaluated, except for the packed dtypes, see lowPrecisionConvert.
var convertFP8Kernels = map[[2]dtypes.DType]convertFP8Kernel{
	{dtypes.BFloat16, dtypes.BFloat16}: convertFP8Generic[bfloat16.BFloat16, bfloat16.BFloat16],
	{dtypes.BFloat16, dtypes.Float16}:  convertFP8Generic[bfloat16.BFloat16, float16.Float16],
	{dtypes.BFloat16, dtypes.Float32}:  convertFP8Generic[bfloat16.BFloat16, float32],
	{dtypes.Float16, dtypes.BFloat16}:  convertFP8Generic[float16.Float16, bfloat16.BFloat16],
	{dtypes.Float16, dtypes.Float16}:   convertFP8Generic[float16.Float16, float16.Float16],
	{dtypes.Float16, dtypes.Float32}:   convertFP8Generic[float16.Float16, float32],
	{dtypes.Float32, dtypes.BFloat16}:  convertFP8Generic[float32, bfloat16.BFloat16],
	{dtypes.Float32, dtypes.Float16}:   convertFP8Generic[float32, float16.Float16],
	{dtypes.Float32, dtypes.Float32}:   convertFP8Generic[float32, float32],
}

// execConvertFP8 sets the output shape to the one of the input (with the destination dtype) and
// converts the values.
//
// If either side is a packed dtype, it uses lowPrecisionConvert. Otherwise, it uses the kernel of
// convertFP8Kernels, and returns false if there is none.
func execConvertFP8(node *Node, outputs, inputs []*tensors.Tensor) bool {
	input, output := inputs[0], outputs[0]
	from, to := input.DType(), node.Destination()
	output.SetShape(input.Shape().WithDType(to))

	if from.IsPacked() || to.IsPacked() {
		if !lowPrecisionConvertible(from) || !lowPrecisionConvertible(to) {
			return false
		}
		lowPrecisionConvert(input, output)
		return true
	}
	kernel, found := convertFP8Kernels[[2]dtypes.DType{from, to}]
	if !found {
		return false
	}
	kernel(input, output)
	return true
}

func convertFP8Generic[From, To fp8Float](input, output *tensors.Tensor) {
	inputFlat := tensors.Flat[From](input)
	outputFlat := tensors.Flat[To](output)
	for idx, value := range inputFlat {
		outputFlat[idx] = fp8FromFloat32[To](fp8ToFloat32(value))
	}
}

func fp8ToFloat32[T fp8Float](value T) float32 {
	switch v := any(value).(type) {
	case bfloat16.BFloat16:
		return v.Float32()
	case float16.Float16:
		return v.Float32()
	case float32:
		return v
	}
	return 0
}

func fp8FromFloat32[T fp8Float](value float32) (result T) {
	switch p := any(&result).(type) {
	case *bfloat16.BFloat16:
		*p = bfloat16.FromFloat32(value)
	case *float16.Float16:
		*p = float16.Fromfloat32(value)
	case *float32:
		*p = value
	}
	return
}

// lowPrecisionConvertible returns whether the dtype can be one side of a lowPrecisionConvert.
func lowPrecisionConvertible(dtype dtypes.DType) bool {
	return dtype.IsPacked() || ConvertFP8Supported(dtype, dtype)
}

// lowPrecisionConvert converts element by element, unpacking and packing the bits of the packed
// dtypes (Uint1, Int4, Uint4) on either side.
//
// Values converted to a packed integer are truncated towards zero, and stored in the low bits of
// the value (Uint1 stores 1 for any non-zero value). They are not saturated to the range of the packed
// dtype: out of range values wrap around, e.g. -1 becomes Uint4 15 and 16 becomes Uint4 0.
func lowPrecisionConvert(input, output *tensors.Tensor) {
	from, to := input.DType(), output.DType()
	for idx := range input.Size() {
		var value float64
		if from.IsPacked() {
			value = float64(tensors.GetPacked(input.Bytes(), from, idx))
		} else {
			value = input.Float64(idx)
		}
		if to.IsPacked() {
			var packed int8
			if !math.IsNaN(value) {
				packed = int8(int64(math.Trunc(max(math.MinInt8, min(math.MaxInt8, value)))))
			}
			tensors.SetPacked(output.Bytes(), to, idx, packed)
		} else {
			output.SetFloat64(idx, value)
		}
	}
}
