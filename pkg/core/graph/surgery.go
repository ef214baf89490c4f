// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// ReplaceNode replaces every use of oldNode as an input by newNode, and redoes the shape inference
// of the graph. It returns the number of input edges changed.
//
// The nodes themselves are not changed: only the input edges of the consumers of oldNode, and only
// the edges that pointed to oldNode, other edges of the consumers are preserved. newNode is never
// considered a consumer, so it can use oldNode as an input.
//
// If newNode has no friendly name, it takes the one of oldNode.
//
// Consumers that become inconsistent (e.g. a dtype mismatch) are marked invalid, which is only an
// error if they are still used by a result when the Graph is built.
func ReplaceNode(oldNode, newNode *Node) int {
	g := validateBuildingGraphFromInputs(oldNode, newNode)
	if oldNode == newNode {
		return 0
	}
	var count int
	for _, consumer := range g.nodes {
		if consumer == newNode {
			continue
		}
		for ii, input := range consumer.inputNodes {
			if input == oldNode {
				consumer.inputNodes[ii] = newNode
				count++
			}
		}
	}
	if newNode.name == "" && newNode.nodeType != NodeTypeParameter {
		newNode.name = oldNode.name
	}
	g.revalidate()
	klog.V(1).Infof("graph %q: replaced %s by %s in %d input edges", g.name, oldNode, newNode, count)
	return count
}

// Fold evaluates node, whose inputs must all be constants, and returns a new Constant node with its
// value. The node itself is left unchanged, use ReplaceNode to replace its uses.
//
// It panics if an input is not a constant or if there is no kernel to evaluate the node.
func Fold(node *Node) *Node {
	g := validateBuildingGraphFromInputs(node)
	inputs := make([]*tensors.Tensor, len(node.inputNodes))
	for ii, input := range node.inputNodes {
		if input.nodeType != NodeTypeConstant {
			exceptions.Panicf("Fold(%s): input #%d is not a constant, it is a %s", node, ii, input.nodeType)
		}
		inputs[ii] = input.ConstantValue()
	}
	output := &tensors.Tensor{}
	if !node.Evaluate([]*tensors.Tensor{output}, inputs) {
		exceptions.Panicf("Fold(%s): no kernel to evaluate the node", node)
	}
	klog.V(2).Infof("graph %q: folded %s", g.name, node)
	return Const(g, output)
}
