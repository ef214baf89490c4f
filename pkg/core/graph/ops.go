// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/gomlx/exceptions"
)

// inferShape returns the output shape of the node from its inputs and parameters, applying the
// output dtype override of type-relaxed nodes.
func (n *Node) inferShape() shapes.Shape {
	shape := n.params.inferShape(n.inputNodes)
	if n.relaxed && n.outputDTypeOverride != dtypes.InvalidDType {
		shape = shape.WithDType(n.outputDTypeOverride)
	}
	return shape
}

// nodeParamsParameter: Parameter ---------------------------------------------------------------------

type nodeParamsParameter struct {
	name  string
	shape shapes.Shape
}

func (p *nodeParamsParameter) Type() NodeType { return NodeTypeParameter }
func (p *nodeParamsParameter) String() string { return fmt.Sprintf("%q", p.name) }
func (p *nodeParamsParameter) inferShape([]*Node) shapes.Shape {
	return p.shape
}

// Parameter creates an input of the graph with the given name and shape.
//
// Parameters are fed with values when evaluating the Function, in the order they were created.
// If name is empty, a unique name is generated.
func Parameter(g *Graph, name string, shape shapes.Shape) *Node {
	g.AssertBuilding()
	if !shape.Ok() {
		exceptions.Panicf("Parameter(%q) requires a valid shape, got %s", name, shape)
	}
	if name == "" {
		name = fmt.Sprintf("p#%d", len(g.parameters))
	}
	for _, param := range g.parameters {
		if param.ParameterName() == name {
			exceptions.Panicf("Parameter(%q) already exists in graph %q", name, g.name)
		}
	}
	node := newNode(g, &nodeParamsParameter{name: name, shape: shape.Clone()})
	node.name = name
	return node
}

// nodeParamsConstant: Constant -----------------------------------------------------------------------

type nodeParamsConstant struct {
	value *tensors.Tensor
}

func (p *nodeParamsConstant) Type() NodeType { return NodeTypeConstant }
func (p *nodeParamsConstant) String() string {
	if p.value.Size() == 1 {
		return fmt.Sprintf("%g", p.value.Float64(0))
	}
	return ""
}
func (p *nodeParamsConstant) inferShape([]*Node) shapes.Shape {
	return p.value.Shape()
}

// Const creates a constant node holding a copy of the given tensor.
func Const(g *Graph, value *tensors.Tensor) *Node {
	g.AssertBuilding()
	value.AssertValid()
	return newNode(g, &nodeParamsConstant{value: value.Clone()})
}

// ConstFromFloats creates a constant of the given dtype and dimensions, converting the given values.
//
// values must have either one element, replicated to all positions, or exactly the number of elements
// of the shape.
func ConstFromFloats(g *Graph, dtype dtypes.DType, dimensions []int, values []float64) *Node {
	shape := shapes.Make(dtype, dimensions...)
	size := shape.Size()
	switch {
	case len(values) == size:
	case len(values) == 1:
		replicated := make([]float64, size)
		for ii := range replicated {
			replicated[ii] = values[0]
		}
		values = replicated
	default:
		exceptions.Panicf("ConstFromFloats(%s): got %d values, wanted 1 or %d", shape, len(values), size)
	}
	return Const(g, tensors.FromFloat64s(dtype, values, dimensions...))
}

// Scalar creates a scalar constant of the given dtype.
func Scalar(g *Graph, dtype dtypes.DType, value float64) *Node {
	return Const(g, tensors.FromFloat64s(dtype, []float64{value}))
}

// nodeParamsConvert: Convert -------------------------------------------------------------------------

type nodeParamsConvert struct {
	dtype dtypes.DType
}

func (p *nodeParamsConvert) Type() NodeType { return NodeTypeConvert }
func (p *nodeParamsConvert) String() string { return p.dtype.String() }
func (p *nodeParamsConvert) inferShape(inputs []*Node) shapes.Shape {
	return inputs[0].Shape().WithDType(p.dtype)
}

// Convert changes the dtype of x. Values are converted to the nearest representable value, integers
// are truncated towards zero and saturated.
func Convert(x *Node, dtype dtypes.DType) *Node {
	g := validateBuildingGraphFromInputs(x)
	if !dtype.IsSupported() {
		exceptions.Panicf("Convert(%s): invalid destination dtype %s", x.Shape(), dtype)
	}
	return newNode(g, &nodeParamsConvert{dtype: dtype}, x)
}

// nodeParamsBinary: Subtract, Multiply, LogicalAnd ---------------------------------------------------

type nodeParamsBinary struct {
	op      NodeType
	relaxed bool
}

func (p *nodeParamsBinary) Type() NodeType { return p.op }
func (p *nodeParamsBinary) String() string {
	if p.relaxed {
		return "relaxed"
	}
	return ""
}
func (p *nodeParamsBinary) inferShape(inputs []*Node) shapes.Shape {
	lhs, rhs := inputs[0].Shape(), inputs[1].Shape()
	dims, err := shapes.BroadcastDimensions(lhs.Dimensions, rhs.Dimensions)
	if err != nil {
		exceptions.Panicf("%s(%s, %s): %v", p.op, lhs, rhs, err)
	}
	switch {
	case p.op == NodeTypeLogicalAnd:
		if lhs.DType != dtypes.Bool || rhs.DType != dtypes.Bool {
			exceptions.Panicf("LogicalAnd(%s, %s) requires Bool operands", lhs, rhs)
		}
	case p.relaxed:
		// Type-relaxed ops compute in float, operands can have different dtypes.
	case lhs.DType != rhs.DType:
		exceptions.Panicf("%s(%s, %s) requires operands of the same dtype", p.op, lhs, rhs)
	}
	return shapes.Make(lhs.DType, dims...)
}

func binaryOp(op NodeType, relaxed bool, outputDType dtypes.DType, lhs, rhs *Node) *Node {
	g := validateBuildingGraphFromInputs(lhs, rhs)
	node := &Node{
		graph:               g,
		id:                  InvalidNodeId,
		nodeType:            op,
		params:              &nodeParamsBinary{op: op, relaxed: relaxed},
		inputNodes:          []*Node{lhs, rhs},
		relaxed:             relaxed,
		outputDTypeOverride: outputDType,
	}
	node.shape = node.inferShape()
	g.registerNode(node)
	return node
}

// Subtract returns lhs - rhs, with numpy broadcasting. Both operands must have the same dtype.
func Subtract(lhs, rhs *Node) *Node {
	return binaryOp(NodeTypeSubtract, false, dtypes.InvalidDType, lhs, rhs)
}

// Multiply returns lhs * rhs, with numpy broadcasting. Both operands must have the same dtype.
func Multiply(lhs, rhs *Node) *Node {
	return binaryOp(NodeTypeMultiply, false, dtypes.InvalidDType, lhs, rhs)
}

// SubtractRelaxed is a type-relaxed Subtract: operands can have different dtypes, the computation is
// done in float, and the output has the given dtype. If outputDType is InvalidDType, the output takes
// the dtype of lhs.
//
// It is the form used by dequantization chains, and its output dtype can later be changed with
// SetOutputDType.
func SubtractRelaxed(lhs, rhs *Node, outputDType dtypes.DType) *Node {
	return binaryOp(NodeTypeSubtract, true, outputDType, lhs, rhs)
}

// MultiplyRelaxed is a type-relaxed Multiply, see SubtractRelaxed.
func MultiplyRelaxed(lhs, rhs *Node, outputDType dtypes.DType) *Node {
	return binaryOp(NodeTypeMultiply, true, outputDType, lhs, rhs)
}

// LogicalAnd returns the element-wise lhs && rhs, with numpy broadcasting. Both operands must be Bool.
func LogicalAnd(lhs, rhs *Node) *Node {
	return binaryOp(NodeTypeLogicalAnd, false, dtypes.InvalidDType, lhs, rhs)
}

// nodeParamsBroadcast: Broadcast ---------------------------------------------------------------------

type nodeParamsBroadcast struct{}

func (p *nodeParamsBroadcast) Type() NodeType { return NodeTypeBroadcast }
func (p *nodeParamsBroadcast) String() string { return "" }
func (p *nodeParamsBroadcast) inferShape(inputs []*Node) shapes.Shape {
	x, target := inputs[0], inputs[1]
	dims := broadcastTargetDimensions(target)
	broadcast, err := shapes.BroadcastDimensions(x.Shape().Dimensions, dims)
	if err != nil || !slices.Equal(broadcast, dims) {
		exceptions.Panicf("Broadcast(%s): cannot be broadcast to target dimensions %v", x.Shape(), dims)
	}
	return shapes.Make(x.DType(), dims...)
}

// broadcastTargetDimensions reads the target dimensions from the constant target shape node.
func broadcastTargetDimensions(target *Node) []int {
	if target.nodeType != NodeTypeConstant {
		exceptions.Panicf("Broadcast requires a Constant target shape, got %s", target)
	}
	value := target.ConstantValue()
	if value.DType() != dtypes.Int64 || value.Rank() != 1 {
		exceptions.Panicf("Broadcast requires an Int64 vector as target shape, got %s", value.Shape())
	}
	dims := make([]int, value.Size())
	for ii, dim := range tensors.Flat[int64](value) {
		dims[ii] = int(dim)
	}
	return dims
}

// Broadcast x to the dimensions given by targetShape, an Int64 constant vector, following numpy rules.
func Broadcast(x, targetShape *Node) *Node {
	g := validateBuildingGraphFromInputs(x, targetShape)
	return newNode(g, &nodeParamsBroadcast{}, x, targetShape)
}

// BroadcastToDims is a shortcut to Broadcast with a target shape constant created from dims.
func BroadcastToDims(x *Node, dims ...int) *Node {
	g := validateBuildingGraphFromInputs(x)
	values := make([]int64, len(dims))
	for ii, dim := range dims {
		values[ii] = int64(dim)
	}
	return Broadcast(x, Const(g, tensors.FromFlatDataAndDimensions(values, len(values))))
}

// nodeParamsFakeQuantize: FakeQuantize ---------------------------------------------------------------

type nodeParamsFakeQuantize struct {
	levels int
}

func (p *nodeParamsFakeQuantize) Type() NodeType { return NodeTypeFakeQuantize }
func (p *nodeParamsFakeQuantize) String() string { return fmt.Sprintf("levels=%d", p.levels) }
func (p *nodeParamsFakeQuantize) inferShape(inputs []*Node) shapes.Shape {
	x := inputs[0].Shape()
	for ii, bound := range inputs[1:] {
		boundShape := bound.Shape()
		if boundShape.DType != x.DType {
			exceptions.Panicf("FakeQuantize(%s): range input #%d has dtype %s, wanted %s",
				x, ii+1, boundShape.DType, x.DType)
		}
		dims, err := shapes.BroadcastDimensions(x.Dimensions, boundShape.Dimensions)
		if err != nil || !slices.Equal(dims, x.Dimensions) {
			exceptions.Panicf("FakeQuantize(%s): range input #%d with shape %s is not broadcastable to the input",
				x, ii+1, boundShape)
		}
	}
	return x.Clone()
}

// FakeQuantize simulates the quantization of x to the given number of levels: values are clamped to
// [inputLow, inputHigh], mapped to one of levels values, and then linearly mapped to
// [outputLow, outputHigh]:
//
//	x <= min(inputLow, inputHigh): outputLow
//	x > max(inputLow, inputHigh):  outputHigh
//	otherwise: round((x-inputLow)/(inputHigh-inputLow)*(levels-1)) / (levels-1) * (outputHigh-outputLow) + outputLow
//
// The ranges must have the dtype of x and be broadcastable to x. The node is type-relaxed: by
// default, the output has the dtype of x, but it can be changed with SetOutputDType, which is how the
// quantized (integer) form of the output is represented.
func FakeQuantize(x, inputLow, inputHigh, outputLow, outputHigh *Node, levels int) *Node {
	g := validateBuildingGraphFromInputs(x, inputLow, inputHigh, outputLow, outputHigh)
	if levels < 2 {
		exceptions.Panicf("FakeQuantize requires at least 2 levels, got %d", levels)
	}
	node := &Node{
		graph:      g,
		id:         InvalidNodeId,
		nodeType:   NodeTypeFakeQuantize,
		params:     &nodeParamsFakeQuantize{levels: levels},
		inputNodes: []*Node{x, inputLow, inputHigh, outputLow, outputHigh},
		relaxed:    true,
	}
	node.shape = node.inferShape()
	g.registerNode(node)
	return node
}

// nodeParamsResult: Result ---------------------------------------------------------------------------

type nodeParamsResult struct{}

func (p *nodeParamsResult) Type() NodeType { return NodeTypeResult }
func (p *nodeParamsResult) String() string { return "" }
func (p *nodeParamsResult) inferShape(inputs []*Node) shapes.Shape {
	return inputs[0].Shape().Clone()
}

// Result creates a terminal node for x. It is usually not called directly, see Graph.Build.
func Result(x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return newNode(g, &nodeParamsResult{}, x)
}

// SetOutputDType overrides the output dtype of a type-relaxed node (FakeQuantize, Convolution and the
// relaxed Subtract and Multiply), and redoes the shape inference of the graph.
//
// Setting it to InvalidDType removes the override.
func SetOutputDType(node *Node, dtype dtypes.DType) {
	node.AssertValid()
	node.graph.AssertBuilding()
	if !node.relaxed {
		exceptions.Panicf("SetOutputDType(%s, %s): node is not type-relaxed", node, dtype)
	}
	node.outputDTypeOverride = dtype
	node.graph.revalidate()
}
