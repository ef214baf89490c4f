// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"maps"
	"strings"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// NodeType enumerates the operations supported by the graph IR.
type NodeType int

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeParameter
	NodeTypeConstant
	NodeTypeConvert
	NodeTypeSubtract
	NodeTypeMultiply
	NodeTypeBroadcast
	NodeTypeFakeQuantize
	NodeTypeConvolution
	NodeTypeLogicalAnd
	NodeTypeConvertFP8
	NodeTypeResult

	// NodeTypeLast is used to size tables indexed by NodeType.
	NodeTypeLast
)

var nodeTypeNames = [NodeTypeLast]string{
	NodeTypeInvalid:      "Invalid",
	NodeTypeParameter:    "Parameter",
	NodeTypeConstant:     "Constant",
	NodeTypeConvert:      "Convert",
	NodeTypeSubtract:     "Subtract",
	NodeTypeMultiply:     "Multiply",
	NodeTypeBroadcast:    "Broadcast",
	NodeTypeFakeQuantize: "FakeQuantize",
	NodeTypeConvolution:  "Convolution",
	NodeTypeLogicalAnd:   "LogicalAnd",
	NodeTypeConvertFP8:   "ConvertFP8",
	NodeTypeResult:       "Result",
}

// String implements fmt.Stringer.
func (t NodeType) String() string {
	if t < 0 || t >= NodeTypeLast {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// NodeId is a unique identifier of a Node within its Graph.
type NodeId int

// InvalidNodeId is used to indicate a node that hasn't been registered.
const InvalidNodeId = NodeId(-1)

// Node implements a vertex of the computation graph: an operation, its inputs and its (single)
// output shape.
//
// Nodes are created by the op functions of this package (Parameter, Const, Convolution, ...),
// which do the shape and dtype inference at construction. The list of inputs can only be changed
// with ReplaceNode, while the Graph is still being built.
//
// Nodes are shared by all their consumers, and retained by their Graph.
type Node struct {
	graph      *Graph
	id         NodeId
	nodeType   NodeType
	inputNodes []*Node
	params     nodeParams
	shape      shapes.Shape
	name       string

	// relaxed is set for "type-relaxed" ops, whose output dtype can be overridden with SetOutputDType.
	relaxed             bool
	outputDTypeOverride dtypes.DType

	runtimeInfo map[string]string

	// invalid is set when the shape inference fails after graph surgery. It only becomes an error if
	// the node is used by a result, see Graph.Build.
	invalid error
}

// nodeParams holds the static (non-input) attributes of a node, one implementation per NodeType.
type nodeParams interface {
	Type() NodeType
	String() string

	// inferShape returns the output shape for the given inputs, or panics if they are not valid.
	inferShape(inputs []*Node) shapes.Shape
}

// Graph that holds this Node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Id returns the unique id of the node within its Graph.
func (n *Node) Id() NodeId { return n.id }

// Type of the operation implemented by the Node.
func (n *Node) Type() NodeType { return n.nodeType }

// Shape of the Node's output, including its DType.
func (n *Node) Shape() shapes.Shape {
	if n == nil {
		return shapes.Invalid()
	}
	return n.shape
}

// DType returns the DType of the node's output.
func (n *Node) DType() dtypes.DType { return n.Shape().DType }

// Rank of the node's output.
func (n *Node) Rank() int { return n.Shape().Rank() }

// Inputs returns the inputs of the node. The slice is owned by the Node and shouldn't be changed,
// see ReplaceNode instead.
func (n *Node) Inputs() []*Node { return n.inputNodes }

// Name returns the friendly name of the node, or "" if none was set.
func (n *Node) Name() string { return n.name }

// SetName sets the friendly name of the node, used to identify nodes in a Function (see
// Function.NodeByName). It can only be called while the Graph is being built.
func (n *Node) SetName(name string) {
	n.graph.AssertBuilding()
	n.name = name
}

// IsRelaxed returns whether the output dtype of the node can be overridden with SetOutputDType.
func (n *Node) IsRelaxed() bool { return n.relaxed }

// RuntimeInfo returns a copy of the free-form string annotations attached to the node.
func (n *Node) RuntimeInfo() map[string]string {
	return maps.Clone(n.runtimeInfo)
}

// SetRuntimeInfo attaches a free-form string annotation to the node.
func (n *Node) SetRuntimeInfo(key, value string) {
	n.graph.AssertBuilding()
	if n.runtimeInfo == nil {
		n.runtimeInfo = make(map[string]string)
	}
	n.runtimeInfo[key] = value
}

// ConstantValue returns the value of a Constant node. It panics for other node types.
func (n *Node) ConstantValue() *tensors.Tensor {
	params, ok := n.params.(*nodeParamsConstant)
	if !ok {
		exceptions.Panicf("ConstantValue() called on a %s node, only available for Constant nodes", n.nodeType)
	}
	return params.value
}

// ParameterName returns the name of a Parameter node. It panics for other node types.
func (n *Node) ParameterName() string {
	params, ok := n.params.(*nodeParamsParameter)
	if !ok {
		exceptions.Panicf("ParameterName() called on a %s node, only available for Parameter nodes", n.nodeType)
	}
	return params.name
}

// Levels returns the number of quantization levels of a FakeQuantize node. It panics for other node types.
func (n *Node) Levels() int {
	params, ok := n.params.(*nodeParamsFakeQuantize)
	if !ok {
		exceptions.Panicf("Levels() called on a %s node, only available for FakeQuantize nodes", n.nodeType)
	}
	return params.levels
}

// Destination returns the destination dtype of a Convert or ConvertFP8 node. It panics for other node types.
func (n *Node) Destination() dtypes.DType {
	switch params := n.params.(type) {
	case *nodeParamsConvert:
		return params.dtype
	case *nodeParamsConvertFP8:
		return params.destination
	}
	exceptions.Panicf("Destination() called on a %s node, only available for Convert and ConvertFP8 nodes", n.nodeType)
	panic(nil)
}

// AssertValid panics if the node is nil or not registered in a graph.
func (n *Node) AssertValid() {
	if n == nil {
		panic(errors.New("Node is nil"))
	}
	if n.graph == nil || n.id == InvalidNodeId {
		panic(errors.Errorf("Node %s is not registered in a Graph", n.nodeType))
	}
	if n.invalid != nil {
		panic(errors.WithMessagef(n.invalid, "Node #%d %s is invalid after graph surgery", n.id, n.nodeType))
	}
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s", n.id, n.nodeType)
	if n.name != "" {
		fmt.Fprintf(&sb, " %q", n.name)
	}
	if n.params != nil {
		if p := n.params.String(); p != "" {
			fmt.Fprintf(&sb, "(%s)", p)
		}
	}
	if len(n.inputNodes) > 0 {
		ids := make([]string, len(n.inputNodes))
		for ii, input := range n.inputNodes {
			ids[ii] = fmt.Sprintf("#%d", input.id)
		}
		fmt.Fprintf(&sb, " <- [%s]", strings.Join(ids, ", "))
	}
	fmt.Fprintf(&sb, " -> %s", n.shape)
	return sb.String()
}
