// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/gomlx/exceptions"
)

type nodeParamsConvertFP8 struct {
	destination dtypes.DType
}

func (p *nodeParamsConvertFP8) Type() NodeType { return NodeTypeConvertFP8 }
func (p *nodeParamsConvertFP8) String() string { return p.destination.String() }
func (p *nodeParamsConvertFP8) inferShape(inputs []*Node) shapes.Shape {
	return inputs[0].Shape().WithDType(p.destination)
}

// ConvertFP8 converts x to the reduced precision float dtype destination.
//
// The output has the shape of x, and the destination dtype, whatever the dtype of x. It is a pure
// change of representation: values are rounded to the nearest representable value, no scaling
// is applied.
//
// Use Node.HasEvaluate to check whether the (input, destination) pair can be evaluated: only
// BFloat16, Float16 and Float32 are supported on both sides, see ConvertFP8Supported.
func ConvertFP8(x *Node, destination dtypes.DType) *Node {
	g := validateBuildingGraphFromInputs(x)
	if !destination.IsSupported() {
		exceptions.Panicf("ConvertFP8(%s): invalid destination dtype %s", x.Shape(), destination)
	}
	return newNode(g, &nodeParamsConvertFP8{destination: destination}, x)
}

// ConvertFP8Supported returns whether ConvertFP8 has a kernel for the (from, to) pair.
//
// It is true only if both dtypes are one of BFloat16, Float16 or Float32. Packed dtypes (Uint1,
// Int4, Uint4) are excluded, even though ConvertFP8 evaluation converts them with a generic
// routine.
func ConvertFP8Supported(from, to dtypes.DType) bool {
	_, found := convertFP8Kernels[[2]dtypes.DType{from, to}]
	return found
}
