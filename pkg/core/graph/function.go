// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Function is the immutable result of building a Graph: its ordered parameters, its results and
// the nodes used to compute them, with lookup by friendly name.
//
// Create it with Graph.Build.
type Function struct {
	name       string
	parameters []*Node
	results    []*Node
	nodes      []*Node
	byName     map[string]*Node
}

func newFunction(name string, parameters, results []*Node) *Function {
	fn := &Function{
		name:       name,
		parameters: parameters,
		results:    results,
		byName:     make(map[string]*Node),
	}
	roots := make([]*Node, 0, len(parameters)+len(results))
	roots = append(roots, parameters...)
	roots = append(roots, results...)
	fn.nodes = topologicalOrder(roots)
	for _, node := range fn.nodes {
		node.AssertValid()
		if node.name == "" {
			continue
		}
		if _, found := fn.byName[node.name]; !found {
			fn.byName[node.name] = node
		}
	}
	return fn
}

// Name of the function, the one given to the Graph.
func (fn *Function) Name() string { return fn.name }

// Parameters returns the Parameter nodes, the inputs of the function, in creation order.
// The slice is owned by the Function and shouldn't be changed.
func (fn *Function) Parameters() []*Node { return fn.parameters }

// Results returns the terminal Result nodes. The slice is owned by the Function and shouldn't be changed.
func (fn *Function) Results() []*Node { return fn.results }

// Nodes returns all nodes used by the function, in topological order: inputs are always listed before
// their consumers. Nodes left unused by graph surgery are not included.
func (fn *Function) Nodes() []*Node { return fn.nodes }

// NodeByName returns the first node (in topological order) with the given friendly name, or nil
// if there is none.
func (fn *Function) NodeByName(name string) *Node {
	return fn.byName[name]
}

// NodesOfType returns the nodes of the given type, in topological order.
func (fn *Function) NodesOfType(nodeType NodeType) []*Node {
	var nodes []*Node
	for _, node := range fn.nodes {
		if node.nodeType == nodeType {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// NumNodesOfType returns the number of nodes of the given type.
func (fn *Function) NumNodesOfType(nodeType NodeType) int {
	return len(fn.NodesOfType(nodeType))
}

// String returns a multi-line description of the function.
func (fn *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Function %q: %d parameters, %d results", fn.name, len(fn.parameters), len(fn.results))
	for _, node := range fn.nodes {
		fmt.Fprintf(&sb, "\n\t%s", node)
	}
	return sb.String()
}

// Evaluate the function with the given parameter values, using the reference kernels in the host.
//
// The inputs must match the parameters in number and shape. It returns one tensor per result.
// An error is returned if any node has no kernel for its configuration (see Node.HasEvaluate).
func (fn *Function) Evaluate(inputs ...*tensors.Tensor) (outputs []*tensors.Tensor, err error) {
	if len(inputs) != len(fn.parameters) {
		return nil, errors.Errorf("Function(%q).Evaluate: got %d inputs, but it has %d parameters",
			fn.name, len(inputs), len(fn.parameters))
	}
	values := make(map[*Node]*tensors.Tensor, len(fn.nodes))
	for ii, param := range fn.parameters {
		input := inputs[ii]
		if err = input.CheckValid(); err != nil {
			return nil, errors.WithMessagef(err, "Function(%q).Evaluate: input #%d (%q)", fn.name, ii, param.name)
		}
		if !input.Shape().Equal(param.shape) {
			return nil, errors.Errorf("Function(%q).Evaluate: input #%d (%q) has shape %s, but parameter has shape %s",
				fn.name, ii, param.name, input.Shape(), param.shape)
		}
		values[param] = input
	}

	err = exceptions.TryCatch[error](func() {
		for _, node := range fn.nodes {
			if node.nodeType == NodeTypeParameter {
				continue
			}
			nodeInputs := make([]*tensors.Tensor, len(node.inputNodes))
			for ii, input := range node.inputNodes {
				nodeInputs[ii] = values[input]
			}
			output := &tensors.Tensor{}
			if !node.Evaluate([]*tensors.Tensor{output}, nodeInputs) {
				panic(errors.Errorf("no kernel to evaluate node %s", node))
			}
			if klog.V(2).Enabled() {
				klog.Infof("Function(%q) evaluated %s: %s", fn.name, node, output)
			}
			values[node] = output
		}
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "Function(%q).Evaluate", fn.name)
	}

	outputs = make([]*tensors.Tensor, len(fn.results))
	for ii, result := range fn.results {
		outputs[ii] = values[result]
	}
	return outputs, nil
}
