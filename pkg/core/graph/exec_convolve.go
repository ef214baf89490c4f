// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
)

func init() {
	setNodeExecutor(NodeTypeConvolution, execConvolution, nil)
}

// execConvolution is the reference (direct) convolution, accumulating in float64.
//
// x is [batch, in_channels, <spatial...>], kernel is [out_channels, in_channels, <kernel_spatial...>].
func execConvolution(node *Node, outputs, inputs []*tensors.Tensor) bool {
	x, kernel, output := inputs[0], inputs[1], outputs[0]
	params := node.params.(*nodeParamsConvolution)
	xShape, kernelShape := x.Shape(), kernel.Shape()
	if xShape.Rank() != node.Rank() || kernelShape.Rank() != node.Rank() || xShape.Dim(1) != kernelShape.Dim(1) {
		return false
	}
	numSpatial := len(params.strides)
	output.SetShape(node.Shape())
	xStrides, kernelStrides := xShape.Strides(), kernelShape.Strides()
	kernelSpatial := shapes.Make(kernelShape.DType, kernelShape.Dimensions[2:]...)
	inChannels := xShape.Dim(1)
	inputPos := make([]int, numSpatial)

	for outFlat, outIdx := range node.Shape().Iter() {
		batch, outChannel := outIdx[0], outIdx[1]
		var sum float64
		for _, kernelIdx := range kernelSpatial.Iter() {
			// Input spatial position for this kernel position, skipping the padding.
			inside := true
			for axis := range numSpatial {
				pos := outIdx[axis+2]*params.strides[axis] - params.padsBegin[axis] +
					kernelIdx[axis]*params.dilations[axis]
				if pos < 0 || pos >= xShape.Dim(axis+2) {
					inside = false
					break
				}
				inputPos[axis] = pos
			}
			if !inside {
				continue
			}
			xBase := batch * xStrides[0]
			kernelBase := outChannel * kernelStrides[0]
			for axis := range numSpatial {
				xBase += inputPos[axis] * xStrides[axis+2]
				kernelBase += kernelIdx[axis] * kernelStrides[axis+2]
			}
			for inChannel := range inChannels {
				sum += x.Float64(xBase+inChannel*xStrides[1]) * kernel.Float64(kernelBase+inChannel*kernelStrides[1])
			}
		}
		output.SetFloat64(outFlat, sum)
	}
	return true
}
