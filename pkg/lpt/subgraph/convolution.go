// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package subgraph builds the small graphs used to test the low precision transformations of a
// quantized Convolution.
//
// All variants share the same layout: an "input" parameter, optionally quantized and dequantized, a
// weights constant of shape [2*C, C, 1, 1] (C is the number of input channels), optionally quantized,
// a type-relaxed Convolution with strides 1, no padding and dilations 1, and an optional dequantization
// of the output. The node producing the result is named "output".
//
// The functions return errors instead of panicking: construction errors raised by the graph package
// are caught and returned.
package subgraph

import (
	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/graph"
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/AlexKoff88/openvino/pkg/lpt/builders"
	"github.com/AlexKoff88/openvino/pkg/lpt/common"
	"github.com/AlexKoff88/openvino/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

const (
	// InputName is the name of the parameter of the built functions.
	InputName = "input"

	// OutputName is the friendly name of the node producing the result of the built functions.
	OutputName = "output"

	// RuntimeInfoVariant is the runtime information key used to tag the convolution nodes.
	RuntimeInfoVariant = "Variant::std::string"
)

// Names of the built functions.
const (
	ConvolutionFunctionName       = "ConvolutionFunction"
	ConvolutionTransformationName = "ConvolutionTransformation"
	IncorrectWeightsFunctionName  = "IncorrectWeightsAndConvolutionFunction"
)

// WeightsDimensions returns the dimensions of the weights for the given input shape: [2*C, C, 1, 1],
// where C = inputShape[1].
//
// It panics if numValues is neither 1 (one value broadcast to all the weights) nor the size of the
// weights.
func WeightsDimensions(inputShape []int, numValues int) []int {
	if len(inputShape) < 2 {
		exceptions.Panicf("input shape %v has no channels axis", inputShape)
	}
	inputChannels := inputShape[1]
	outputChannels := 2 * inputChannels
	if numValues != 1 && numValues != inputChannels*outputChannels {
		exceptions.Panicf("unexpected actual weights values size: got %d values, weights of shape [%d %d 1 1] need 1 or %d",
			numValues, outputChannels, inputChannels, inputChannels*outputChannels)
	}
	return []int{outputChannels, inputChannels, 1, 1}
}

// build runs the builder function, converting panics to errors, and logs the result.
func build(name string, builder func() *graph.Function) (fn *graph.Function, err error) {
	err = exceptions.TryCatch[error](func() { fn = builder() })
	if err != nil {
		klog.V(1).Infof("failed to build %q: %v", name, err)
		return nil, err
	}
	klog.V(1).Infof("built %q with %d nodes", name, len(fn.Nodes()))
	return fn, nil
}

// convolution creates the type-relaxed Convolution used by every variant.
func convolution(x, weights *graph.Node) *graph.Node {
	return graph.Convolution(x, weights).
		Strides(1, 1).
		PadsBegin(0, 0).
		PadsEnd(0, 0).
		Dilations(1, 1).
		RelaxedInputs(dtypes.Float32, dtypes.Float32).
		Done()
}

// weightsConstant creates the weights constant in the given dtype, replicating a single value if needed.
func weightsConstant(g *graph.Graph, dtype dtypes.DType, dims []int, values []float32) *graph.Node {
	return graph.ConstFromFloats(g, dtype, dims, xslices.Map(values, func(v float32) float64 { return float64(v) }))
}

// broadcastWeights returns a constant with the given weights in the given dims: a single value is
// broadcast (and folded), otherwise the values are laid out in dims.
func broadcastWeights(g *graph.Graph, weights *tensors.Tensor, dims []int) *graph.Node {
	if weights.Size() == 1 {
		return graph.Fold(graph.BroadcastToDims(graph.Const(g, weights), dims...))
	}
	return graph.ConstFromFloats(g, weights.DType(), dims, weights.ToFloat64s())
}

// quantizeWeights applies the FakeQuantize on weights, if present, in the dtype of the weights.
func quantizeWeights(weights *graph.Node, fq common.Option[common.FakeQuantizeOnWeights]) *graph.Node {
	onWeights, ok := fq.Get()
	if !ok {
		return weights
	}
	return builders.MakeFakeQuantizeTypeRelaxed(weights, weights.DType(), onWeights.FakeQuantizeOnData)
}

// Get builds the plain "ConvolutionFunction": optional FakeQuantize on the input and on the weights,
// and the Convolution.
//
// weightsValues must have either 1 value or 2*C*C values, see WeightsDimensions.
func Get(inputShape []int, precision dtypes.DType, fqOnData common.Option[common.FakeQuantizeOnData],
	weightsValues []float32, fqOnWeights common.Option[common.FakeQuantizeOnWeights]) (*graph.Function, error) {
	return build(ConvolutionFunctionName, func() *graph.Function {
		weightsDims := WeightsDimensions(inputShape, len(weightsValues))
		g := graph.NewGraph(ConvolutionFunctionName)
		input := graph.Parameter(g, InputName, shapes.Make(precision, inputShape...))

		parentOnData := input
		if onData, ok := fqOnData.Get(); ok {
			parentOnData = builders.MakeFakeQuantizeTypeRelaxed(input, precision, onData)
		}
		weights := weightsConstant(g, precision, weightsDims, weightsValues)
		output := convolution(parentOnData, quantizeWeights(weights, fqOnWeights))
		output.SetName(OutputName)
		return g.Build(output)
	})
}

// GetOriginal builds the "ConvolutionTransformation" before the low precision transformation: the
// dequantization of the input, and the Convolution with the optionally quantized weights.
//
// weights must have either 1 value, broadcast to the full weights shape, or 2*C*C values.
func GetOriginal(inputPrecision dtypes.DType, inputShape []int, dequantizationBefore common.DequantizationOperations,
	weights *tensors.Tensor, fqOnWeights common.Option[common.FakeQuantizeOnWeights]) (*graph.Function, error) {
	return build(ConvolutionTransformationName, func() *graph.Function {
		weights.AssertValid()
		weightsDims := WeightsDimensions(inputShape, weights.Size())
		g := graph.NewGraph(ConvolutionTransformationName)
		input := graph.Parameter(g, InputName, shapes.Make(inputPrecision, inputShape...))
		dequantization := builders.MakeDequantization(input, dequantizationBefore)

		onWeights := quantizeWeights(broadcastWeights(g, weights, weightsDims), fqOnWeights)
		output := convolution(dequantization, onWeights)
		output.SetName(OutputName)
		output.SetRuntimeInfo(RuntimeInfoVariant, "convolution")
		return g.Build(output)
	})
}

// GetReference builds the "ConvolutionTransformation" as expected after the low precision
// transformation: the Convolution output dtype is forced to precisionAfterOperation, and it is followed
// by dequantizationAfter.
//
// If precisionAfterDequantization is valid, it is set as the output dtype of the last dequantization
// node, if it is a type-relaxed node. It is ignored if dequantizationAfter is empty: the output is then
// the Convolution, whose dtype stays precisionAfterOperation.
func GetReference(inputPrecision dtypes.DType, inputShape []int, dequantizationBefore common.DequantizationOperations,
	weights *tensors.Tensor, fqOnWeights common.Option[common.FakeQuantizeOnWeights],
	precisionAfterOperation dtypes.DType, dequantizationAfter common.DequantizationOperations,
	precisionAfterDequantization dtypes.DType) (*graph.Function, error) {
	return build(ConvolutionTransformationName, func() *graph.Function {
		weights.AssertValid()
		weightsDims := WeightsDimensions(inputShape, weights.Size())
		g := graph.NewGraph(ConvolutionTransformationName)
		input := graph.Parameter(g, InputName, shapes.Make(inputPrecision, inputShape...))
		deqBefore := builders.MakeDequantization(input, dequantizationBefore)

		onWeights := quantizeWeights(broadcastWeights(g, weights, weightsDims), fqOnWeights)
		conv := convolution(deqBefore, onWeights)
		if precisionAfterOperation != dtypes.InvalidDType {
			graph.SetOutputDType(conv, precisionAfterOperation)
		}
		conv.SetRuntimeInfo(RuntimeInfoVariant, "convolution")

		output := builders.MakeDequantization(conv, dequantizationAfter)
		if output != conv && precisionAfterDequantization != dtypes.InvalidDType {
			if output.IsRelaxed() {
				graph.SetOutputDType(output, precisionAfterDequantization)
			} else {
				klog.Warningf("%s: output %s is not type-relaxed, precision after dequantization %s ignored",
					ConvolutionTransformationName, output, precisionAfterDequantization)
			}
		}
		output.SetName(OutputName)
		return g.Build(output)
	})
}

// GetOriginalWithIncorrectWeights builds the "IncorrectWeightsAndConvolutionFunction": a Convolution
// on the optionally quantized input, with weights of value 1 optionally quantized.
//
// If isCorrect is false, a Subtract of 3 is inserted between the (quantized) weights and the
// Convolution.
func GetOriginalWithIncorrectWeights(inputShape []int, precision dtypes.DType,
	fqOnWeights common.Option[common.FakeQuantizeOnWeights], fqOnData common.Option[common.FakeQuantizeOnData],
	isCorrect bool) (*graph.Function, error) {
	return build(IncorrectWeightsFunctionName, func() *graph.Function {
		weightsDims := WeightsDimensions(inputShape, 1)
		g := graph.NewGraph(IncorrectWeightsFunctionName)
		input := graph.Parameter(g, InputName, shapes.Make(precision, inputShape...))
		parentOnData := input
		if onData, ok := fqOnData.Get(); ok {
			parentOnData = builders.MakeFakeQuantizeTypeRelaxed(input, precision, onData)
		}

		weights := weightsConstant(g, precision, weightsDims, []float32{1})
		onWeights := quantizeWeights(weights, fqOnWeights)
		if !isCorrect {
			three := graph.ConstFromFloats(g, dtypes.Float32, []int{1, 1, 1, 1}, []float64{3})
			onWeights = graph.SubtractRelaxed(onWeights, three, dtypes.InvalidDType)
		}
		output := graph.Convolution(parentOnData, onWeights).Done()
		output.SetName(OutputName)
		return g.Build(output)
	})
}

// GetReferenceWithIncorrectWeights builds the "IncorrectWeightsAndConvolutionFunction" as expected after
// the low precision transformation.
//
// It first builds the graph as the transformation would see it, and then replaces the nodes changed by
// the transformation: the output ranges of the FakeQuantize on data become scalars, the constant of the
// dequantization Multiply before the Convolution is replaced, and, if isCorrect, the weights are
// converted to weightsPrecision and used directly by the Convolution.
//
// fqOnData is required.
func GetReferenceWithIncorrectWeights(inputShape []int, precision, dataPrecision dtypes.DType,
	fqOnData common.Option[common.FakeQuantizeOnData], dequantizationBefore common.DequantizationOperations,
	weightsPrecision dtypes.DType, weightsValues []float32, fqOnWeights common.Option[common.FakeQuantizeOnWeights],
	dequantizationAfter common.DequantizationOperations, isCorrect bool) (*graph.Function, error) {
	return build(IncorrectWeightsFunctionName, func() *graph.Function {
		onData, ok := fqOnData.Get()
		if !ok {
			exceptions.Panicf("%s reference requires a FakeQuantize on data", IncorrectWeightsFunctionName)
		}
		weightsDims := WeightsDimensions(inputShape, len(weightsValues))
		g := graph.NewGraph(IncorrectWeightsFunctionName)
		input := graph.Parameter(g, InputName, shapes.Make(precision, inputShape...))

		fqNode := builders.MakeFakeQuantizeFromDescriptor(input, precision, onData)
		if dataPrecision != dtypes.InvalidDType {
			graph.SetOutputDType(fqNode, dataPrecision)
		}
		parentOnData := fqNode
		if !dequantizationBefore.Empty() {
			parentOnData = builders.MakeDequantization(fqNode, dequantizationBefore)
		}

		weights := weightsConstant(g, precision, weightsDims, weightsValues)
		onWeights := quantizeWeights(weights, fqOnWeights)
		convWeights := weights
		if !isCorrect {
			three := graph.ConstFromFloats(g, precision, []int{1, 1, 1, 1}, []float64{3})
			convWeights = graph.SubtractRelaxed(onWeights, three, dtypes.InvalidDType)
		}
		conv := convolution(parentOnData, convWeights)

		// Dequantization constants are per-tensor: rank 3 when the weights are correct, rank 4 otherwise.
		constantDims := []int{1, 1, 1, 1}
		if isCorrect {
			constantDims = []int{1, 1, 1}
		}
		output := conv
		if multiply, ok := dequantizationAfter.Multiply.Get(); ok {
			value := graph.ConstFromFloats(g, precision, constantDims, []float64{float64(multiply.Values[0])})
			output = graph.MultiplyRelaxed(conv, value, dtypes.InvalidDType)
		}

		graph.ReplaceNode(fqNode.Inputs()[3], graph.Scalar(g, precision, float64(onData.OutputLowValues[0])))
		graph.ReplaceNode(fqNode.Inputs()[4], graph.Scalar(g, precision, float64(onData.OutputHighValues[0])))
		if multiply, ok := dequantizationBefore.Multiply.Get(); ok {
			value := graph.ConstFromFloats(g, precision, constantDims, []float64{float64(multiply.Values[0])})
			graph.ReplaceNode(parentOnData.Inputs()[1], value)
		}
		if isCorrect {
			graph.ReplaceNode(weights, graph.Fold(graph.Convert(weights, weightsPrecision)))
		}

		output.SetName(OutputName)
		return g.Build(output)
	})
}
