// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package builders creates the graph nodes described by the quantization descriptors of package
// common: FakeQuantize nodes and dequantization chains.
//
// Like the graph package, errors are reported by panicking (with github.com/gomlx/exceptions), since
// they are bugs in the description of the subgraph.
package builders

import (
	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/graph"
	"github.com/AlexKoff88/openvino/pkg/lpt/common"
	"github.com/AlexKoff88/openvino/pkg/support/xslices"
	"github.com/gomlx/exceptions"
)

// MakeFakeQuantize creates a FakeQuantize of input with the given number of levels, and the range
// constants of the given precision and constantShape.
//
// Each list of values must have either 1 value or one value per element of constantShape. An empty
// constantShape creates scalar range constants.
func MakeFakeQuantize(input *graph.Node, precision dtypes.DType, levels int, constantShape []int,
	inputLow, inputHigh, outputLow, outputHigh []float32) *graph.Node {
	size := xslices.Product(constantShape)
	ranges := [4][]float32{inputLow, inputHigh, outputLow, outputHigh}
	for ii, values := range ranges {
		if len(values) != 1 && len(values) != size {
			exceptions.Panicf("MakeFakeQuantize(%s): range #%d has %d values, constant shape %v requires 1 or %d",
				input.Shape(), ii, len(values), constantShape, size)
		}
	}
	g := input.Graph()
	var constants [4]*graph.Node
	for ii, values := range ranges {
		constants[ii] = graph.ConstFromFloats(g, precision, constantShape, toFloat64s(values))
	}
	return graph.FakeQuantize(input, constants[0], constants[1], constants[2], constants[3], levels)
}

// MakeFakeQuantizeFromDescriptor creates the FakeQuantize described by fq, with range constants of the
// given precision. It panics if fq is not valid, see common.FakeQuantizeOnData.Validate.
//
// fq.OutputPrecision is not used, see MakeFakeQuantizeTypeRelaxed.
func MakeFakeQuantizeFromDescriptor(input *graph.Node, precision dtypes.DType, fq common.FakeQuantizeOnData) *graph.Node {
	if err := fq.Validate(); err != nil {
		exceptions.Panicf("MakeFakeQuantize(%s): %v", input.Shape(), err)
	}
	return MakeFakeQuantize(input, precision, fq.QuantizationLevel, fq.ConstantShape,
		fq.InputLowValues, fq.InputHighValues, fq.OutputLowValues, fq.OutputHighValues)
}

// MakeFakeQuantizeTypeRelaxed is like MakeFakeQuantizeFromDescriptor, but it also sets the output dtype
// of the FakeQuantize to fq.OutputPrecision, if one is given.
func MakeFakeQuantizeTypeRelaxed(input *graph.Node, precision dtypes.DType, fq common.FakeQuantizeOnData) *graph.Node {
	node := MakeFakeQuantizeFromDescriptor(input, precision, fq)
	if fq.OutputPrecision != dtypes.InvalidDType {
		graph.SetOutputDType(node, fq.OutputPrecision)
	}
	return node
}

// MakeDequantization appends to input the stages of deq that are present, in order: Convert, Subtract
// and Multiply. It returns the output of the last stage, or input itself if deq is empty.
//
// Subtract and Multiply are type-relaxed nodes, so their constants may have a different dtype than
// their input. The broadcast compatibility of the constants is checked by the node constructors.
func MakeDequantization(input *graph.Node, deq common.DequantizationOperations) *graph.Node {
	x := input
	if convert, ok := deq.Convert.Get(); ok {
		x = graph.Convert(x, convert.OutPrecision)
	}
	if subtract, ok := deq.Subtract.Get(); ok {
		x = graph.SubtractRelaxed(x, makeDequantizationConstant(x, subtract), subtract.OutPrecision)
	}
	if multiply, ok := deq.Multiply.Get(); ok {
		x = graph.MultiplyRelaxed(x, makeDequantizationConstant(x, multiply), multiply.OutPrecision)
	}
	return x
}

// DequantizationConstantShape returns the shape used for the constant of a dequantization stage with
// numValues values, applied to an input of the given rank, when no explicit shape is given:
// a scalar for one value, or otherwise all ones except for the channels axis (axis 1).
func DequantizationConstantShape(numValues, rank int) []int {
	switch {
	case numValues == 1:
		return nil
	case rank < 2:
		return []int{numValues}
	}
	dims := xslices.SliceWithValue(rank, 1)
	dims[1] = numValues
	return dims
}

func makeDequantizationConstant(x *graph.Node, stage common.DequantizationConstant) *graph.Node {
	if len(stage.Values) == 0 {
		exceptions.Panicf("dequantization stage on %s has no values", x.Shape())
	}
	dtype := stage.ConstantPrecision
	if dtype == dtypes.InvalidDType {
		dtype = x.DType()
	}
	dims := stage.ConstantShape
	if dims == nil {
		dims = DequantizationConstantShape(len(stage.Values), x.Rank())
	}
	return graph.ConstFromFloats(x.Graph(), dtype, dims, toFloat64s(stage.Values))
}

func toFloat64s(values []float32) []float64 {
	return xslices.Map(values, func(v float32) float64 { return float64(v) })
}
