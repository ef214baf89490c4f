// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/AlexKoff88/openvino/pkg/support/xslices"
	"github.com/gomlx/exceptions"
)

// This file contains all parts of the Convolution implementation.

// ConvolutionBuilder is a helper to build a convolution computation.
// Create it with Convolution, set the desired parameters and
// when set, call Done.
type ConvolutionBuilder struct {
	graph          *Graph
	x, kernel      *Node
	numSpatialDims int

	strides, dilations []int
	padsBegin, padsEnd []int
	inputDTypes        []dtypes.DType
	outputDType        dtypes.DType
}

// Convolution prepares a convolution of x with the given kernel, for an arbitrary number of
// spatial dimensions.
//
// The shape of x must be [batch, input_channels, <spatial_dimensions...>] and the shape of the kernel
// [output_channels, input_channels, <kernel_spatial_dimensions...>]. The output has shape
// [batch, output_channels, <output_spatial_dimensions...>].
//
// It returns a ConvolutionBuilder object that can be further configured. Once the configuration is
// finished, call ConvolutionBuilder.Done, and it will return the convolved x.
//
// The defaults are strides of 1, no padding and dilations of 1.
func Convolution(x, kernel *Node) *ConvolutionBuilder {
	conv := &ConvolutionBuilder{
		graph:  validateBuildingGraphFromInputs(x, kernel),
		x:      x,
		kernel: kernel,
	}
	if x.Rank() < 3 {
		exceptions.Panicf("Convolution: x must have rank >= 3 ([batch, channels, <spatial...>]), got %s", x.Shape())
	}
	shapes.AssertRank(kernel, x.Rank())
	conv.numSpatialDims = x.Rank() - 2
	conv.strides = xslices.SliceWithValue(conv.numSpatialDims, 1)
	conv.dilations = xslices.SliceWithValue(conv.numSpatialDims, 1)
	conv.padsBegin = make([]int, conv.numSpatialDims)
	conv.padsEnd = make([]int, conv.numSpatialDims)
	return conv
}

func (conv *ConvolutionBuilder) checkSpatial(what string, values []int, minValue int) []int {
	if len(values) != conv.numSpatialDims {
		exceptions.Panicf("Convolution.%s: got %d values, but there are %d spatial dimensions",
			what, len(values), conv.numSpatialDims)
	}
	for _, v := range values {
		if v < minValue {
			exceptions.Panicf("Convolution.%s%v: values must be >= %d", what, values, minValue)
		}
	}
	return slices.Clone(values)
}

// Strides sets the strides of the convolution, one per spatial dimension. The default is 1 for all.
func (conv *ConvolutionBuilder) Strides(strides ...int) *ConvolutionBuilder {
	conv.strides = conv.checkSpatial("Strides", strides, 1)
	return conv
}

// Dilations sets the kernel dilations, one per spatial dimension. The default is 1 for all.
func (conv *ConvolutionBuilder) Dilations(dilations ...int) *ConvolutionBuilder {
	conv.dilations = conv.checkSpatial("Dilations", dilations, 1)
	return conv
}

// PadsBegin sets the padding added at the start of each spatial dimension. The default is 0.
func (conv *ConvolutionBuilder) PadsBegin(pads ...int) *ConvolutionBuilder {
	conv.padsBegin = conv.checkSpatial("PadsBegin", pads, 0)
	return conv
}

// PadsEnd sets the padding added at the end of each spatial dimension. The default is 0.
func (conv *ConvolutionBuilder) PadsEnd(pads ...int) *ConvolutionBuilder {
	conv.padsEnd = conv.checkSpatial("PadsEnd", pads, 0)
	return conv
}

// RelaxedInputs makes the convolution type-relaxed, computing as if x and kernel had the given dtypes,
// regardless of their actual dtypes. The output dtype is the one of x (after the replacement),
// unless set with OutputDType.
func (conv *ConvolutionBuilder) RelaxedInputs(xDType, kernelDType dtypes.DType) *ConvolutionBuilder {
	conv.inputDTypes = []dtypes.DType{xDType, kernelDType}
	return conv
}

// OutputDType makes the convolution type-relaxed, and forces its output dtype.
func (conv *ConvolutionBuilder) OutputDType(dtype dtypes.DType) *ConvolutionBuilder {
	conv.outputDType = dtype
	return conv
}

// Done indicates that the convolution is finished being configured, and it creates the
// Convolution node.
func (conv *ConvolutionBuilder) Done() *Node {
	params := &nodeParamsConvolution{
		strides:     conv.strides,
		dilations:   conv.dilations,
		padsBegin:   conv.padsBegin,
		padsEnd:     conv.padsEnd,
		inputDTypes: conv.inputDTypes,
	}
	node := &Node{
		graph:               conv.graph,
		id:                  InvalidNodeId,
		nodeType:            NodeTypeConvolution,
		params:              params,
		inputNodes:          []*Node{conv.x, conv.kernel},
		relaxed:             len(conv.inputDTypes) > 0 || conv.outputDType != dtypes.InvalidDType,
		outputDTypeOverride: conv.outputDType,
	}
	node.shape = node.inferShape()
	conv.graph.registerNode(node)
	return node
}

// nodeParamsConvolution: Convolution -----------------------------------------------------------------

type nodeParamsConvolution struct {
	strides, dilations []int
	padsBegin, padsEnd []int

	// inputDTypes, if set, replaces the dtypes of x and kernel for the computation.
	inputDTypes []dtypes.DType
}

func (p *nodeParamsConvolution) Type() NodeType { return NodeTypeConvolution }
func (p *nodeParamsConvolution) String() string {
	s := fmt.Sprintf("strides=%v, pads=%v/%v, dilations=%v", p.strides, p.padsBegin, p.padsEnd, p.dilations)
	if len(p.inputDTypes) > 0 {
		s += fmt.Sprintf(", relaxed=%v", p.inputDTypes)
	}
	return s
}

// computationDTypes returns the dtypes the inputs are taken as.
func (p *nodeParamsConvolution) computationDTypes(inputs []*Node) (xDType, kernelDType dtypes.DType) {
	if len(p.inputDTypes) > 0 {
		return p.inputDTypes[0], p.inputDTypes[1]
	}
	return inputs[0].DType(), inputs[1].DType()
}

func (p *nodeParamsConvolution) inferShape(inputs []*Node) shapes.Shape {
	x, kernel := inputs[0].Shape(), inputs[1].Shape()
	xDType, kernelDType := p.computationDTypes(inputs)
	if xDType != kernelDType {
		exceptions.Panicf("Convolution(x=%s, kernel=%s): input dtypes %s and %s don't match, "+
			"use RelaxedInputs for mixed precision", x, kernel, xDType, kernelDType)
	}
	if x.Rank() != kernel.Rank() || x.Rank() != len(p.strides)+2 {
		exceptions.Panicf("Convolution(x=%s, kernel=%s): ranks don't match %d spatial dimensions",
			x, kernel, len(p.strides))
	}
	if x.Dim(1) != kernel.Dim(1) {
		exceptions.Panicf("Convolution(x=%s, kernel=%s): input channels of x (%d) and kernel (%d) don't match",
			x, kernel, x.Dim(1), kernel.Dim(1))
	}
	dims := make([]int, x.Rank())
	dims[0] = x.Dim(0)
	dims[1] = kernel.Dim(0)
	for axis := range len(p.strides) {
		padded := x.Dim(axis+2) + p.padsBegin[axis] + p.padsEnd[axis]
		kernelExtent := p.dilations[axis]*(kernel.Dim(axis+2)-1) + 1
		if padded < kernelExtent {
			exceptions.Panicf("Convolution(x=%s, kernel=%s): spatial axis %d is smaller than the dilated kernel (%d < %d)",
				x, kernel, axis, padded, kernelExtent)
		}
		dims[axis+2] = (padded-kernelExtent)/p.strides[axis] + 1
	}
	return shapes.Make(xDType, dims...)
}
