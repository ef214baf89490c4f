// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package subgraph

import (
	"fmt"
	"testing"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/graph"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/AlexKoff88/openvino/pkg/lpt/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	noFQOnData    = common.None[common.FakeQuantizeOnData]()
	noFQOnWeights = common.None[common.FakeQuantizeOnWeights]()

	fqOnData = common.NewFakeQuantizeOnData(256, nil,
		[]float32{0}, []float32{2.55}, []float32{0}, []float32{2.55})
	fqOnWeights = common.NewFakeQuantizeOnWeights(255, []int{1, 1, 1, 1},
		[]float32{-1.27}, []float32{1.27}, []float32{-1.27}, []float32{1.27})
)

// convolutionWeights returns the weights input of the Convolution of fn.
func convolutionWeights(t *testing.T, fn *graph.Function) *graph.Node {
	convs := fn.NodesOfType(graph.NodeTypeConvolution)
	require.Len(t, convs, 1)
	return convs[0].Inputs()[1]
}

// evaluateOne evaluates fn with one input and returns the values of its only output.
func evaluateOne(t *testing.T, fn *graph.Function, input *tensors.Tensor) *tensors.Tensor {
	outputs, err := fn.Evaluate(input)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	return outputs[0]
}

func TestGetBroadcastsScalarWeights(t *testing.T) {
	fn, err := Get([]int{1, 3, 4, 4}, dtypes.Float32, noFQOnData, []float32{2}, noFQOnWeights)
	require.NoError(t, err)
	assert.Equal(t, ConvolutionFunctionName, fn.Name())

	weights := convolutionWeights(t, fn)
	require.Equal(t, graph.NodeTypeConstant, weights.Type())
	require.NoError(t, weights.Shape().Check(dtypes.Float32, 6, 3, 1, 1))
	for _, v := range weights.ConstantValue().ToFloat64s() {
		require.Equal(t, 2.0, v)
	}
	assert.Equal(t, 0, fn.NumNodesOfType(graph.NodeTypeFakeQuantize))

	output := fn.NodeByName(OutputName)
	require.NotNil(t, output)
	assert.Equal(t, graph.NodeTypeConvolution, output.Type())
	require.NoError(t, output.Shape().Check(dtypes.Float32, 1, 6, 4, 4))
}

func TestGetWithQuantization(t *testing.T) {
	fn, err := Get([]int{1, 2, 2, 2}, dtypes.Float32, fqOnData, []float32{1, 2, 3, 4, 5, 6, 7, 8}, fqOnWeights)
	require.NoError(t, err)
	assert.Equal(t, 2, fn.NumNodesOfType(graph.NodeTypeFakeQuantize))
	conv := fn.NodeByName(OutputName)
	assert.Equal(t, graph.NodeTypeFakeQuantize, conv.Inputs()[0].Type())
	assert.Equal(t, graph.NodeTypeFakeQuantize, conv.Inputs()[1].Type())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, conv.Inputs()[1].Inputs()[0].ConstantValue().ToFloat64s())
}

func TestWeightsValuesSize(t *testing.T) {
	inputShape := []int{1, 2, 4, 4}
	for _, numValues := range []int{0, 2, 3, 5, 16} {
		values := make([]float32, numValues)
		_, err := Get(inputShape, dtypes.Float32, noFQOnData, values, noFQOnWeights)
		require.ErrorContains(t, err, "unexpected actual weights values size", "%d values", numValues)

		if numValues > 0 {
			weights := tensors.FromFlatDataAndDimensions(values, numValues)
			_, err = GetOriginal(dtypes.Float32, inputShape, common.DequantizationOperations{}, weights, noFQOnWeights)
			require.ErrorContains(t, err, "unexpected actual weights values size")
			_, err = GetReference(dtypes.Float32, inputShape, common.DequantizationOperations{}, weights, noFQOnWeights,
				dtypes.Float32, common.DequantizationOperations{}, dtypes.InvalidDType)
			require.ErrorContains(t, err, "unexpected actual weights values size")
		}
		_, err = GetReferenceWithIncorrectWeights(inputShape, dtypes.Float32, dtypes.Uint8, fqOnData,
			common.DequantizationOperations{}, dtypes.Int8, values, fqOnWeights, common.DequantizationOperations{}, true)
		require.ErrorContains(t, err, "unexpected actual weights values size")
	}

	for _, numValues := range []int{1, 8} {
		values := make([]float32, numValues)
		_, err := Get(inputShape, dtypes.Float32, noFQOnData, values, noFQOnWeights)
		require.NoError(t, err, "%d values", numValues)
	}
}

func TestOneParameterAndOneResult(t *testing.T) {
	inputShape := []int{1, 3, 4, 4}
	deq := common.NewDequantization(dtypes.Float32, []float32{128}, []float32{0.02})
	weights := tensors.FromScalar(float32(2))
	builders := map[string]func() (*graph.Function, error){
		"Get": func() (*graph.Function, error) {
			return Get(inputShape, dtypes.Float32, fqOnData, []float32{2}, fqOnWeights)
		},
		"GetOriginal": func() (*graph.Function, error) {
			return GetOriginal(dtypes.Uint8, inputShape, deq, weights, fqOnWeights)
		},
		"GetReference": func() (*graph.Function, error) {
			return GetReference(dtypes.Uint8, inputShape, common.DequantizationOperations{}, weights, noFQOnWeights,
				dtypes.Float32, common.NewDequantization(dtypes.InvalidDType, nil, []float32{0.02}), dtypes.Float32)
		},
		"GetOriginalWithIncorrectWeights": func() (*graph.Function, error) {
			return GetOriginalWithIncorrectWeights(inputShape, dtypes.Float32, fqOnWeights, fqOnData, false)
		},
		"GetReferenceWithIncorrectWeights": func() (*graph.Function, error) {
			return GetReferenceWithIncorrectWeights(inputShape, dtypes.Float32, dtypes.Uint8, fqOnData, deq,
				dtypes.Int8, []float32{2}, fqOnWeights, deq, true)
		},
	}
	for name, builder := range builders {
		t.Run(name, func(t *testing.T) {
			fn, err := builder()
			require.NoError(t, err)
			require.Len(t, fn.Parameters(), 1)
			assert.Equal(t, InputName, fn.Parameters()[0].ParameterName())
			require.Len(t, fn.Results(), 1)
			output := fn.NodeByName(OutputName)
			require.NotNil(t, output)
			assert.Same(t, output, fn.Results()[0].Inputs()[0])
		})
	}
}

func TestGetOriginal(t *testing.T) {
	deq := common.NewDequantization(dtypes.Float32, []float32{128}, []float32{0.02})
	fn, err := GetOriginal(dtypes.Uint8, []int{1, 1, 2, 2}, deq, tensors.FromScalar(float32(2)), noFQOnWeights)
	require.NoError(t, err)
	assert.Equal(t, ConvolutionTransformationName, fn.Name())

	conv := fn.NodeByName(OutputName)
	assert.Equal(t, graph.NodeTypeConvolution, conv.Type())
	assert.Equal(t, map[string]string{RuntimeInfoVariant: "convolution"}, conv.RuntimeInfo())
	assert.Equal(t, graph.NodeTypeMultiply, conv.Inputs()[0].Type())
	require.NoError(t, convolutionWeights(t, fn).Shape().Check(dtypes.Float32, 2, 1, 1, 1))

	output := evaluateOne(t, fn, tensors.FromFlatDataAndDimensions([]uint8{128, 178, 78, 128}, 1, 1, 2, 2))
	assert.Equal(t, dtypes.Float32, output.DType())
	assert.InDeltaSlice(t, []float64{0, 2, -2, 0, 0, 2, -2, 0}, output.ToFloat64s(), 1e-5)
}

func TestGetReference(t *testing.T) {
	deqAfter := common.NewDequantization(dtypes.InvalidDType, nil, []float32{0.5})
	fn, err := GetReference(dtypes.Uint8, []int{1, 1, 2, 2}, common.DequantizationOperations{},
		tensors.FromScalar(float32(2)), noFQOnWeights, dtypes.Float16, deqAfter, dtypes.Float32)
	require.NoError(t, err)

	conv := fn.NodesOfType(graph.NodeTypeConvolution)[0]
	assert.Equal(t, dtypes.Float16, conv.DType())
	assert.Equal(t, "convolution", conv.RuntimeInfo()[RuntimeInfoVariant])
	assert.Same(t, fn.Parameters()[0], conv.Inputs()[0])

	output := fn.NodeByName(OutputName)
	assert.Equal(t, graph.NodeTypeMultiply, output.Type())
	assert.Equal(t, dtypes.Float32, output.DType())

	values := evaluateOne(t, fn, tensors.FromFlatDataAndDimensions([]uint8{1, 2, 3, 4}, 1, 1, 2, 2))
	assert.Equal(t, []float32{1, 2, 3, 4, 1, 2, 3, 4}, tensors.Flat[float32](values))

	// Without dequantization after, the Convolution is the output.
	fn, err = GetReference(dtypes.Float32, []int{1, 1, 2, 2}, common.DequantizationOperations{},
		tensors.FromScalar(float32(2)), noFQOnWeights, dtypes.Float32, common.DequantizationOperations{}, dtypes.InvalidDType)
	require.NoError(t, err)
	assert.Equal(t, graph.NodeTypeConvolution, fn.NodeByName(OutputName).Type())
}

func TestGetReferenceKeepsPrecisionAfterOperation(t *testing.T) {
	// Without dequantization after, precisionAfterDequantization doesn't override the Convolution dtype.
	fn, err := GetReference(dtypes.Uint8, []int{1, 1, 2, 2}, common.DequantizationOperations{},
		tensors.FromScalar(float32(2)), noFQOnWeights, dtypes.Int32, common.DequantizationOperations{}, dtypes.Float32)
	require.NoError(t, err)
	output := fn.NodeByName(OutputName)
	assert.Equal(t, graph.NodeTypeConvolution, output.Type())
	assert.Equal(t, dtypes.Int32, output.DType())

	values := evaluateOne(t, fn, tensors.FromFlatDataAndDimensions([]uint8{1, 2, 3, 4}, 1, 1, 2, 2))
	assert.Equal(t, []int32{2, 4, 6, 8, 2, 4, 6, 8}, tensors.Flat[int32](values))
}

func TestGetOriginalWithFullWeights(t *testing.T) {
	weights := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 8)
	fn, err := GetOriginal(dtypes.Float32, []int{1, 2, 1, 1}, common.DequantizationOperations{}, weights, noFQOnWeights)
	require.NoError(t, err)
	kernel := convolutionWeights(t, fn)
	require.NoError(t, kernel.Shape().Check(dtypes.Float32, 4, 2, 1, 1))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, kernel.ConstantValue().ToFloat64s())

	values := evaluateOne(t, fn, tensors.FromFlatDataAndDimensions([]float32{1, 10}, 1, 2, 1, 1))
	assert.Equal(t, []float32{21, 43, 65, 87}, tensors.Flat[float32](values))
}

func TestFakeQuantizeOutputPrecision(t *testing.T) {
	onData := fqOnData.MustGet()
	onData.OutputPrecision = dtypes.Uint8
	onWeights := fqOnWeights.MustGet()
	onWeights.OutputPrecision = dtypes.Int8

	fn, err := Get([]int{1, 1, 2, 2}, dtypes.Float32, common.Some(onData), []float32{1}, common.Some(onWeights))
	require.NoError(t, err)
	conv := fn.NodeByName(OutputName)
	assert.Equal(t, dtypes.Uint8, conv.Inputs()[0].DType())
	assert.Equal(t, dtypes.Int8, conv.Inputs()[1].DType())

	// The Convolution of IncorrectWeightsAndConvolutionFunction is not type-relaxed: both sides must match.
	onData.OutputPrecision = dtypes.Float16
	onWeights.OutputPrecision = dtypes.Float16
	fn, err = GetOriginalWithIncorrectWeights([]int{1, 1, 2, 2}, dtypes.Float32, common.Some(onWeights),
		common.Some(onData), true)
	require.NoError(t, err)
	conv = fn.NodeByName(OutputName)
	assert.Equal(t, dtypes.Float16, conv.Inputs()[0].DType())
	assert.Equal(t, dtypes.Float16, conv.Inputs()[1].DType())
	assert.Equal(t, dtypes.Float16, conv.DType())

	// Descriptors are validated.
	onData.QuantizationLevel = 0
	_, err = Get([]int{1, 1, 2, 2}, dtypes.Float32, common.Some(onData), []float32{1}, noFQOnWeights)
	require.ErrorContains(t, err, "at least 2 quantization levels")
}

func TestGetOriginalWithIncorrectWeights(t *testing.T) {
	for _, isCorrect := range []bool{false, true} {
		t.Run(fmt.Sprintf("isCorrect=%v", isCorrect), func(t *testing.T) {
			fn, err := GetOriginalWithIncorrectWeights([]int{1, 3, 4, 4}, dtypes.Float32, fqOnWeights, fqOnData, isCorrect)
			require.NoError(t, err)
			assert.Equal(t, IncorrectWeightsFunctionName, fn.Name())
			conv := fn.NodeByName(OutputName)
			assert.Equal(t, graph.NodeTypeConvolution, conv.Type())
			assert.False(t, conv.IsRelaxed())
			assert.Equal(t, graph.NodeTypeFakeQuantize, conv.Inputs()[0].Type())

			weights := conv.Inputs()[1]
			if isCorrect {
				assert.Equal(t, graph.NodeTypeFakeQuantize, weights.Type())
				assert.Equal(t, 0, fn.NumNodesOfType(graph.NodeTypeSubtract))
				return
			}
			require.Equal(t, graph.NodeTypeSubtract, weights.Type())
			assert.Equal(t, graph.NodeTypeFakeQuantize, weights.Inputs()[0].Type())
			three := weights.Inputs()[1]
			require.NoError(t, three.Shape().Check(dtypes.Float32, 1, 1, 1, 1))
			assert.Equal(t, []float64{3}, three.ConstantValue().ToFloat64s())
		})
	}
}

func TestGetReferenceWithIncorrectWeights(t *testing.T) {
	onData := fqOnData.MustGet()
	onData.OutputHighValues = []float32{255}
	deqBefore := common.NewDequantization(dtypes.Float32, nil, []float32{0.01})
	deqAfter := common.NewDequantization(dtypes.InvalidDType, nil, []float32{2})
	input := tensors.FromFlatDataAndDimensions([]float32{0, 1, 2, 2.55}, 1, 1, 2, 2)

	t.Run("isCorrect=true", func(t *testing.T) {
		fn, err := GetReferenceWithIncorrectWeights([]int{1, 1, 2, 2}, dtypes.Float32, dtypes.Uint8,
			common.Some(onData), deqBefore, dtypes.Int8, []float32{1}, fqOnWeights, deqAfter, true)
		require.NoError(t, err)

		// Output ranges of the FakeQuantize on data replaced by scalars.
		fqs := fn.NodesOfType(graph.NodeTypeFakeQuantize)
		require.Len(t, fqs, 1, "the FakeQuantize on weights is bypassed")
		fq := fqs[0]
		assert.Equal(t, dtypes.Uint8, fq.DType())
		for ii, want := range []float64{0, 255} {
			bound := fq.Inputs()[3+ii]
			assert.True(t, bound.Shape().IsScalar())
			assert.Equal(t, []float64{want}, bound.ConstantValue().ToFloat64s())
		}

		// Multiply constant of the dequantization before replaced.
		conv := fn.NodesOfType(graph.NodeTypeConvolution)[0]
		multiplyBefore := conv.Inputs()[0]
		require.Equal(t, graph.NodeTypeMultiply, multiplyBefore.Type())
		require.NoError(t, multiplyBefore.Inputs()[1].Shape().Check(dtypes.Float32, 1, 1, 1))

		// Weights folded to the weights precision, and consumed directly.
		weights := conv.Inputs()[1]
		require.Equal(t, graph.NodeTypeConstant, weights.Type())
		require.NoError(t, weights.Shape().Check(dtypes.Int8, 2, 1, 1, 1))
		assert.Equal(t, []int8{1, 1}, tensors.Flat[int8](weights.ConstantValue()))

		output := fn.NodeByName(OutputName)
		require.Equal(t, graph.NodeTypeMultiply, output.Type())
		require.NoError(t, output.Inputs()[1].Shape().Check(dtypes.Float32, 1, 1, 1))

		values := evaluateOne(t, fn, input)
		assert.InDeltaSlice(t, []float64{0, 2, 4, 5.1, 0, 2, 4, 5.1}, values.ToFloat64s(), 1e-4)
	})

	t.Run("isCorrect=false", func(t *testing.T) {
		fn, err := GetReferenceWithIncorrectWeights([]int{1, 1, 2, 2}, dtypes.Float32, dtypes.Uint8,
			common.Some(onData), deqBefore, dtypes.Int8, []float32{1}, fqOnWeights, deqAfter, false)
		require.NoError(t, err)
		assert.Equal(t, 2, fn.NumNodesOfType(graph.NodeTypeFakeQuantize))

		conv := fn.NodesOfType(graph.NodeTypeConvolution)[0]
		require.NoError(t, conv.Inputs()[0].Inputs()[1].Shape().Check(dtypes.Float32, 1, 1, 1, 1))
		subtract := conv.Inputs()[1]
		require.Equal(t, graph.NodeTypeSubtract, subtract.Type())
		assert.Equal(t, graph.NodeTypeFakeQuantize, subtract.Inputs()[0].Type())

		// Weights: quantized 1, minus 3.
		values := evaluateOne(t, fn, input)
		assert.InDeltaSlice(t, []float64{0, -4, -8, -10.2, 0, -4, -8, -10.2}, values.ToFloat64s(), 1e-3)
	})

	t.Run("missing FakeQuantize on data", func(t *testing.T) {
		_, err := GetReferenceWithIncorrectWeights([]int{1, 1, 2, 2}, dtypes.Float32, dtypes.Uint8,
			noFQOnData, deqBefore, dtypes.Int8, []float32{1}, fqOnWeights, deqAfter, true)
		require.Error(t, err)
	})
}
