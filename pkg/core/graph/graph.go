// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph implements a small computation graph IR: a Graph of Nodes built with the op
// functions of this package, and the immutable Function it produces once built.
//
// Construction follows these steps:
//
//  1. Create a Graph with NewGraph.
//  2. Create the parameters (Parameter) and constants (Const, ConstFromFloats, Scalar), and then
//     combine them with the ops: Convert, Subtract, Multiply, Broadcast, FakeQuantize, Convolution,
//     LogicalAnd, ConvertFP8.
//  3. Optionally do graph surgery: ReplaceNode, SetOutputDType, Fold.
//  4. Call Graph.Build with the results, which returns the Function and freezes the Graph.
//
// Shape and dtype inference happen at node creation (and again after any graph surgery), and
// errors in the construction are reported by panicking with an error with a stack trace (see
// package github.com/gomlx/exceptions). Code that builds graphs from user input should use
// exceptions.TryCatch to convert them to errors.
//
// A Function can be evaluated in the host with Function.Evaluate, using the reference kernels
// registered for each NodeType. Node.HasEvaluate reports whether a node can be evaluated.
//
// A Graph under construction is not safe for concurrent use. A built Function can be
// evaluated concurrently.
package graph

import (
	"fmt"
	"strings"

	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/AlexKoff88/openvino/pkg/support/sets"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Graph is the arena where Nodes are created, and where graph surgery happens, until it is built
// into a Function.
type Graph struct {
	name       string
	nodes      []*Node
	parameters []*Node
	built      bool
}

// NewGraph creates a new empty Graph with the given name. The name is carried to the Function built from it.
func NewGraph(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// IsBuilding returns whether the graph can still be changed, that is, Build hasn't been called yet.
func (g *Graph) IsBuilding() bool { return g != nil && !g.built }

// AssertBuilding panics if the graph is nil or has already been built.
func (g *Graph) AssertBuilding() {
	if g == nil {
		exceptions.Panicf("the Graph is nil")
	}
	if g.built {
		exceptions.Panicf("Graph %q has already been built into a Function, it can no longer be changed", g.name)
	}
}

// Nodes return a slice of all nodes created in the graph, in creation order, including the ones
// no longer used after graph surgery. The slice is owned by Graph and shouldn't be changed.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Parameters returns the Parameter nodes, in creation order.
func (g *Graph) Parameters() []*Node { return g.parameters }

// registerNode in the graph and assigns it a new unique id.
func (g *Graph) registerNode(node *Node) {
	g.AssertBuilding()
	if !node.shape.Ok() {
		exceptions.Panicf("trying to add node with invalid shape: %s", node)
	}
	node.id = NodeId(len(g.nodes))
	g.nodes = append(g.nodes, node)
	if node.nodeType == NodeTypeParameter {
		g.parameters = append(g.parameters, node)
	}
}

// validateBuildingGraphFromInputs checks that all inputs are valid and belong to the same graph, and
// returns that graph.
func validateBuildingGraphFromInputs(inputs ...*Node) (g *Graph) {
	if len(inputs) == 0 {
		exceptions.Panicf("no input nodes provided, at least one is required")
	}
	for ii, n := range inputs {
		if err := exceptions.TryCatch[error](n.AssertValid); err != nil {
			panic(errors.WithMessagef(err, "invalid input[%d]", ii))
		}
		if g == nil {
			g = n.Graph()
			g.AssertBuilding()
		} else if n.Graph() != g {
			exceptions.Panicf("combining nodes from different graphs not allowed: "+
				"input[0] graph is %q, input[%d] graph is %q", g.Name(), ii, n.Graph().Name())
		}
	}
	return
}

// newNode creates and registers a node with the given attributes and inputs, inferring its shape.
func newNode(g *Graph, params nodeParams, inputs ...*Node) *Node {
	g.AssertBuilding()
	node := &Node{
		graph:      g,
		id:         InvalidNodeId,
		nodeType:   params.Type(),
		params:     params,
		inputNodes: inputs,
	}
	node.shape = node.inferShape()
	g.registerNode(node)
	return node
}

// revalidate redoes the shape inference of every node, in topological order.
// It is called after graph surgery, since changing one node may change the shape of its consumers.
//
// Nodes that fail the inference (or whose inputs failed) are marked invalid instead of panicking:
// graph surgery may leave behind nodes that are no longer used, and those are allowed to be
// inconsistent. Graph.Build checks that no invalid node is used by a result.
func (g *Graph) revalidate() {
	for _, node := range topologicalOrder(g.nodes) {
		node.invalid = nil
		for _, input := range node.inputNodes {
			if input.invalid != nil {
				node.invalid = errors.Errorf("input #%d %s is invalid", input.id, input.nodeType)
				break
			}
		}
		if node.invalid != nil {
			continue
		}
		var shape shapes.Shape
		node.invalid = exceptions.TryCatch[error](func() { shape = node.inferShape() })
		if node.invalid != nil {
			klog.V(1).Infof("graph %q: node #%d %s became invalid: %v", g.name, node.id, node.nodeType, node.invalid)
			continue
		}
		if !shape.Equal(node.shape) {
			klog.V(2).Infof("graph %q: node #%d %s changed shape %s -> %s", g.name, node.id, node.nodeType, node.shape, shape)
		}
		node.shape = shape
	}
}

// topologicalOrder returns the given roots and all their transitive inputs, with inputs always
// listed before their consumers. It panics if it finds a cycle.
func topologicalOrder(roots []*Node) []*Node {
	visiting, visited := sets.Make[*Node](), sets.Make[*Node]()
	order := make([]*Node, 0, len(roots))
	var visit func(node *Node)
	visit = func(node *Node) {
		if visited.Has(node) {
			return
		}
		if visiting.Has(node) {
			exceptions.Panicf("cycle found in graph %q at node %s", node.graph.name, node)
		}
		visiting.Insert(node)
		for _, input := range node.inputNodes {
			visit(input)
		}
		visiting.Delete(node)
		visited.Insert(node)
		order = append(order, node)
	}
	for _, root := range roots {
		visit(root)
	}
	return order
}

// Build creates the Function with the given results, and freezes the Graph: no more nodes can be
// created, and no more surgery can be done.
//
// Each result is wrapped in a Result node. All Parameter nodes created in the graph become the
// Function parameters, in creation order, even if they are not used by any result.
func (g *Graph) Build(results ...*Node) *Function {
	g.AssertBuilding()
	if len(results) == 0 {
		exceptions.Panicf("Graph(%q).Build requires at least one result", g.name)
	}
	for ii, result := range results {
		if result == nil {
			exceptions.Panicf("Graph(%q).Build: result #%d is nil", g.name, ii)
		}
		if result.graph != g {
			exceptions.Panicf("Graph(%q).Build: result #%d belongs to graph %q", g.name, ii, result.graph.Name())
		}
	}
	resultNodes := make([]*Node, len(results))
	for ii, result := range results {
		resultNodes[ii] = Result(result)
	}
	fn := newFunction(g.name, g.parameters, resultNodes)
	g.built = true
	klog.V(1).Infof("graph %q built: %d parameters, %d results, %d nodes", g.name, len(fn.parameters),
		len(fn.results), len(fn.nodes))
	return fn
}

// String returns a multi-line description of all nodes in the graph.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Graph %q: %d nodes", g.name, len(g.nodes))
	for _, node := range g.nodes {
		fmt.Fprintf(&sb, "\n\t%s", node)
	}
	return sb.String()
}
