// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"math"

	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/gomlx/exceptions"
)

// nodeExecutor evaluates the node with the given input values, writing to outputs[0]. It is
// responsible for setting the output shape.
//
// It returns false if there is no kernel for the node configuration (for instance, for the dtypes
// involved), in which case the output contents are undefined.
type nodeExecutor func(node *Node, outputs, inputs []*tensors.Tensor) bool

// nodeCapability reports whether the executor of the node type has a kernel for the node.
type nodeCapability func(node *Node) bool

var (
	// nodeExecutors should be populated during initialization (`init` functions) for the ops implemented.
	nodeExecutors [NodeTypeLast]nodeExecutor

	// nodeCapabilities is optional: executors registered without one can evaluate any valid node.
	nodeCapabilities [NodeTypeLast]nodeCapability
)

// setNodeExecutor registers the executor for the node type, and optionally its capability check.
func setNodeExecutor(nodeType NodeType, executor nodeExecutor, capability nodeCapability) {
	nodeExecutors[nodeType] = executor
	nodeCapabilities[nodeType] = capability
}

func init() {
	setNodeExecutor(NodeTypeConstant, execConstant, nil)
	setNodeExecutor(NodeTypeResult, execIdentity, nil)
	setNodeExecutor(NodeTypeConvert, execConvert, nil)
	setNodeExecutor(NodeTypeSubtract, execSubtract, nil)
	setNodeExecutor(NodeTypeMultiply, execMultiply, nil)
	setNodeExecutor(NodeTypeLogicalAnd, execLogicalAnd, nil)
	setNodeExecutor(NodeTypeBroadcast, execBroadcast, nil)
	setNodeExecutor(NodeTypeFakeQuantize, execFakeQuantize, nil)
}

// HasEvaluate returns whether there is a kernel to evaluate the node, in its current configuration.
//
// Parameter nodes have no kernel: they are fed by Function.Evaluate.
func (n *Node) HasEvaluate() bool {
	if nodeExecutors[n.nodeType] == nil {
		return false
	}
	if capability := nodeCapabilities[n.nodeType]; capability != nil {
		return capability(n)
	}
	return true
}

// Evaluate the node with the given input values, and write the result to outputs[0], whose shape
// (and storage) is set accordingly.
//
// It requires exactly one output tensor and one input tensor per node input, and panics otherwise.
// It returns false if there is no kernel for the node configuration: in this case the output must
// not be used.
func (n *Node) Evaluate(outputs, inputs []*tensors.Tensor) bool {
	if len(outputs) != 1 {
		exceptions.Panicf("%s.Evaluate requires exactly 1 output tensor, got %d", n.nodeType, len(outputs))
	}
	if len(inputs) != len(n.inputNodes) {
		exceptions.Panicf("%s.Evaluate requires exactly %d input tensors, got %d", n.nodeType, len(n.inputNodes), len(inputs))
	}
	for ii, input := range inputs {
		if err := input.CheckValid(); err != nil {
			exceptions.Panicf("%s.Evaluate: input #%d: %v", n.nodeType, ii, err)
		}
	}
	executor := nodeExecutors[n.nodeType]
	if executor == nil {
		return false
	}
	return executor(n, outputs, inputs)
}

func execConstant(node *Node, outputs, _ []*tensors.Tensor) bool {
	copyInto(outputs[0], node.ConstantValue())
	return true
}

func execIdentity(_ *Node, outputs, inputs []*tensors.Tensor) bool {
	copyInto(outputs[0], inputs[0])
	return true
}

// copyInto makes output a copy of input, shape included.
func copyInto(output, input *tensors.Tensor) {
	*output = *input.Clone()
}

func execConvert(node *Node, outputs, inputs []*tensors.Tensor) bool {
	input, output := inputs[0], outputs[0]
	output.SetShape(input.Shape().WithDType(node.Destination()))
	for ii := range input.Size() {
		output.SetFloat64(ii, input.Float64(ii))
	}
	return true
}

// execBinaryFn evaluates a broadcasting binary op, with the operands converted to float64.
func execBinaryFn(node *Node, output, lhs, rhs *tensors.Tensor, fn func(a, b float64) float64) bool {
	outputShape, err := broadcastOutputShape(node, lhs, rhs)
	if err != nil {
		return false
	}
	output.SetShape(outputShape)
	lhsShape, rhsShape := lhs.Shape(), rhs.Shape()
	lhsStrides, rhsStrides := lhsShape.Strides(), rhsShape.Strides()
	for flatIdx, indices := range outputShape.Iter() {
		a := lhs.Float64(lhsShape.BroadcastIndex(indices, lhsStrides))
		b := rhs.Float64(rhsShape.BroadcastIndex(indices, rhsStrides))
		output.SetFloat64(flatIdx, fn(a, b))
	}
	return true
}

// broadcastOutputShape returns the output shape for the actual inputs, with the dtype of the node.
func broadcastOutputShape(node *Node, inputs ...*tensors.Tensor) (shapes.Shape, error) {
	dimsList := make([][]int, len(inputs))
	for ii, input := range inputs {
		dimsList[ii] = input.Shape().Dimensions
	}
	dims, err := shapes.BroadcastDimensions(dimsList...)
	if err != nil {
		return shapes.Invalid(), err
	}
	return shapes.Make(node.DType(), dims...), nil
}

func execSubtract(node *Node, outputs, inputs []*tensors.Tensor) bool {
	return execBinaryFn(node, outputs[0], inputs[0], inputs[1], func(a, b float64) float64 { return a - b })
}

func execMultiply(node *Node, outputs, inputs []*tensors.Tensor) bool {
	return execBinaryFn(node, outputs[0], inputs[0], inputs[1], func(a, b float64) float64 { return a * b })
}

func execLogicalAnd(node *Node, outputs, inputs []*tensors.Tensor) bool {
	return execBinaryFn(node, outputs[0], inputs[0], inputs[1], func(a, b float64) float64 {
		if a != 0 && b != 0 {
			return 1
		}
		return 0
	})
}

func execBroadcast(node *Node, outputs, inputs []*tensors.Tensor) bool {
	input, output := inputs[0], outputs[0]
	dims := make([]int, inputs[1].Size())
	for ii := range dims {
		dims[ii] = int(inputs[1].Float64(ii))
	}
	outputShape := shapes.Make(input.DType(), dims...)
	output.SetShape(outputShape)
	inputShape := input.Shape()
	inputStrides := inputShape.Strides()
	for flatIdx, indices := range outputShape.Iter() {
		output.SetFloat64(flatIdx, input.Float64(inputShape.BroadcastIndex(indices, inputStrides)))
	}
	return true
}

func execFakeQuantize(node *Node, outputs, inputs []*tensors.Tensor) bool {
	output := outputs[0]
	outputShape, err := broadcastOutputShape(node, inputs...)
	if err != nil || !outputShape.EqualDimensions(inputs[0].Shape()) {
		return false
	}
	output.SetShape(outputShape)
	levels := float64(node.Levels() - 1)
	// An integer output is the quantized form, values are rounded instead of truncated.
	quantized := outputShape.DType.IsInt()
	strides := make([][]int, len(inputs))
	for ii, input := range inputs {
		strides[ii] = input.Shape().Strides()
	}
	at := func(input int, indices []int) float64 {
		return inputs[input].Float64(inputs[input].Shape().BroadcastIndex(indices, strides[input]))
	}
	for flatIdx, indices := range outputShape.Iter() {
		x := at(0, indices)
		inLow, inHigh := at(1, indices), at(2, indices)
		outLow, outHigh := at(3, indices), at(4, indices)
		var value float64
		switch {
		case x <= min(inLow, inHigh):
			value = outLow
		case x > max(inLow, inHigh):
			value = outHigh
		default:
			value = math.RoundToEven((x-inLow)/(inHigh-inLow)*levels)/levels*(outHigh-outLow) + outLow
		}
		if quantized {
			value = math.RoundToEven(value)
		}
		output.SetFloat64(flatIdx, value)
	}
	return true
}
