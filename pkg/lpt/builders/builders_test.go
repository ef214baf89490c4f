// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package builders

import (
	"testing"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/graph"
	"github.com/AlexKoff88/openvino/pkg/core/shapes"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/AlexKoff88/openvino/pkg/lpt/common"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeFakeQuantize(t *testing.T) {
	g := graph.NewGraph("fq")
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 3, 2, 2))
	fq := MakeFakeQuantize(x, dtypes.Float32, 256, []int{1, 3, 1, 1},
		[]float32{0}, []float32{1, 2, 3}, []float32{0}, []float32{1, 2, 3})
	assert.Equal(t, graph.NodeTypeFakeQuantize, fq.Type())
	assert.Equal(t, 256, fq.Levels())
	require.NoError(t, fq.Shape().Check(dtypes.Float32, 1, 3, 2, 2))
	inputs := fq.Inputs()
	require.Len(t, inputs, 5)
	assert.Same(t, x, inputs[0])
	for _, bound := range inputs[1:] {
		assert.Equal(t, graph.NodeTypeConstant, bound.Type())
		require.NoError(t, bound.Shape().Check(dtypes.Float32, 1, 3, 1, 1))
	}
	assert.Equal(t, []float64{0, 0, 0}, inputs[1].ConstantValue().ToFloat64s())
	assert.Equal(t, []float64{1, 2, 3}, inputs[2].ConstantValue().ToFloat64s())

	// Scalar ranges.
	scalarFQ := MakeFakeQuantize(x, dtypes.Float32, 2, nil, []float32{0}, []float32{1}, []float32{-1}, []float32{1})
	assert.True(t, scalarFQ.Inputs()[3].Shape().IsScalar())

	// Number of values doesn't match the constant shape.
	numNodes := len(g.Nodes())
	require.Panics(t, func() {
		MakeFakeQuantize(x, dtypes.Float32, 256, []int{1, 3, 1, 1},
			[]float32{0, 1}, []float32{1}, []float32{0}, []float32{1})
	})
	assert.Len(t, g.Nodes(), numNodes, "no node should be created on error")
}

func TestMakeFakeQuantizeFromDescriptorValidates(t *testing.T) {
	g := graph.NewGraph("fq")
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Float32, 1, 3, 2, 2))
	numNodes := len(g.Nodes())
	desc := common.NewFakeQuantizeOnData(1, nil, []float32{0}, []float32{1}, []float32{0}, []float32{1}).MustGet()
	err := exceptions.TryCatch[error](func() { MakeFakeQuantizeFromDescriptor(x, dtypes.Float32, desc) })
	require.ErrorContains(t, err, "at least 2 quantization levels")

	desc = common.NewFakeQuantizeOnData(256, []int{1, 3, 1, 1}, []float32{0}, []float32{1}, []float32{0, 1},
		[]float32{1}).MustGet()
	err = exceptions.TryCatch[error](func() { MakeFakeQuantizeFromDescriptor(x, dtypes.Float32, desc) })
	require.ErrorContains(t, err, "output low has 2 values")
	assert.Len(t, g.Nodes(), numNodes)
}

func TestMakeFakeQuantizeTypeRelaxed(t *testing.T) {
	g := graph.NewGraph("fq")
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Float32, 4))
	desc := common.NewFakeQuantizeOnData(256, nil, []float32{0}, []float32{2.55}, []float32{0}, []float32{255}).MustGet()
	desc.OutputPrecision = dtypes.Uint8
	fq := MakeFakeQuantizeTypeRelaxed(x, dtypes.Float32, desc)
	assert.Equal(t, dtypes.Uint8, fq.DType())

	fn := g.Build(fq)
	outputs, err := fn.Evaluate(tensors.FromFlatDataAndDimensions([]float32{-1, 0.5, 1.28, 3}, 4))
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 50, 128, 255}, tensors.Flat[uint8](outputs[0]))

	// Without OutputPrecision the dtype is kept.
	g = graph.NewGraph("fq")
	x = graph.Parameter(g, "x", shapes.Make(dtypes.Float16, 4))
	desc.OutputPrecision = dtypes.InvalidDType
	fq = MakeFakeQuantizeTypeRelaxed(x, dtypes.Float16, desc)
	assert.Equal(t, dtypes.Float16, fq.DType())
}

func TestMakeDequantization(t *testing.T) {
	g := graph.NewGraph("deq")
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Uint8, 1, 2, 1, 2))

	// Empty descriptor returns the input itself.
	assert.Same(t, x, MakeDequantization(x, common.DequantizationOperations{}))

	deq := common.NewDequantization(dtypes.Float32, []float32{128}, []float32{0.5, 2})
	y := MakeDequantization(x, deq)
	assert.Equal(t, graph.NodeTypeMultiply, y.Type())
	require.NoError(t, y.Shape().Check(dtypes.Float32, 1, 2, 1, 2))
	multiplyConst := y.Inputs()[1]
	require.NoError(t, multiplyConst.Shape().Check(dtypes.Float32, 1, 2, 1, 1))
	subtract := y.Inputs()[0]
	assert.Equal(t, graph.NodeTypeSubtract, subtract.Type())
	assert.True(t, subtract.Inputs()[1].Shape().IsScalar())
	assert.Equal(t, graph.NodeTypeConvert, subtract.Inputs()[0].Type())

	fn := g.Build(y)
	outputs, err := fn.Evaluate(tensors.FromFlatDataAndDimensions([]uint8{128, 130, 120, 129}, 1, 2, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, -16, 2}, tensors.Flat[float32](outputs[0]))
}

func TestMakeDequantizationStagePrecisions(t *testing.T) {
	g := graph.NewGraph("deq")
	x := graph.Parameter(g, "x", shapes.Make(dtypes.Uint8, 1, 3))
	deq := common.DequantizationOperations{
		Subtract: common.Some(common.DequantizationConstant{
			Values:            []float32{1},
			OutPrecision:      dtypes.Float32,
			ConstantShape:     []int{1, 1},
			ConstantPrecision: dtypes.Uint8,
		}),
		Multiply: common.Some(common.DequantizationConstant{
			Values:       []float32{0.1},
			OutPrecision: dtypes.Float16,
		}),
	}
	y := MakeDequantization(x, deq)
	assert.Equal(t, dtypes.Float16, y.DType())
	subtract := y.Inputs()[0]
	assert.Equal(t, dtypes.Float32, subtract.DType())
	require.NoError(t, subtract.Inputs()[1].Shape().Check(dtypes.Uint8, 1, 1))
	assert.Equal(t, dtypes.Float32, y.Inputs()[1].DType())

	// Constant shape not broadcastable with the input is rejected by the node constructor.
	bad := common.DequantizationOperations{
		Multiply: common.Some(common.DequantizationConstant{Values: []float32{1, 2}, ConstantShape: []int{1, 2}}),
	}
	require.Panics(t, func() { MakeDequantization(x, bad) })
}

func TestDequantizationConstantShape(t *testing.T) {
	assert.Nil(t, DequantizationConstantShape(1, 4))
	assert.Equal(t, []int{1, 3, 1, 1}, DequantizationConstantShape(3, 4))
	assert.Equal(t, []int{1, 3}, DequantizationConstantShape(3, 2))
	assert.Equal(t, []int{3}, DequantizationConstantShape(3, 1))
}
