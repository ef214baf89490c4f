// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"fmt"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/support/xslices"
	"github.com/pkg/errors"
)

// FakeQuantizeOnData describes a FakeQuantize operation on activations.
//
// Each of the range values lists must have either 1 value (used for every position) or one value per
// element of ConstantShape, which must be broadcastable to the quantized tensor.
type FakeQuantizeOnData struct {
	// QuantizationLevel is the number of quantization levels, e.g. 256 for 8 bits.
	QuantizationLevel int

	// ConstantShape is the shape of the range constants. Empty means a scalar.
	ConstantShape []int

	InputLowValues, InputHighValues   []float32
	OutputLowValues, OutputHighValues []float32

	// OutputPrecision, if set, overrides the output dtype of the FakeQuantize node.
	OutputPrecision dtypes.DType
}

// FakeQuantizeOnWeights describes a FakeQuantize operation on weights. It has the same parameters as
// FakeQuantizeOnData.
type FakeQuantizeOnWeights struct {
	FakeQuantizeOnData
}

// NewFakeQuantizeOnData returns a present FakeQuantizeOnData descriptor.
func NewFakeQuantizeOnData(levels int, constantShape []int, inputLow, inputHigh, outputLow, outputHigh []float32) Option[FakeQuantizeOnData] {
	return Some(FakeQuantizeOnData{
		QuantizationLevel: levels,
		ConstantShape:     constantShape,
		InputLowValues:    inputLow,
		InputHighValues:   inputHigh,
		OutputLowValues:   outputLow,
		OutputHighValues:  outputHigh,
	})
}

// NewFakeQuantizeOnWeights returns a present FakeQuantizeOnWeights descriptor.
func NewFakeQuantizeOnWeights(levels int, constantShape []int, inputLow, inputHigh, outputLow, outputHigh []float32) Option[FakeQuantizeOnWeights] {
	return Some(FakeQuantizeOnWeights{NewFakeQuantizeOnData(levels, constantShape, inputLow, inputHigh,
		outputLow, outputHigh).MustGet()})
}

// Validate checks the number of levels and the number of range values.
func (fq FakeQuantizeOnData) Validate() error {
	if fq.QuantizationLevel < 2 {
		return errors.Errorf("FakeQuantize requires at least 2 quantization levels, got %d", fq.QuantizationLevel)
	}
	size := xslices.Product(fq.ConstantShape)
	ranges := []struct {
		name   string
		values []float32
	}{
		{"input low", fq.InputLowValues},
		{"input high", fq.InputHighValues},
		{"output low", fq.OutputLowValues},
		{"output high", fq.OutputHighValues},
	}
	for _, r := range ranges {
		if len(r.values) != 1 && len(r.values) != size {
			return errors.Errorf("FakeQuantize %s has %d values, constant shape %v requires 1 or %d",
				r.name, len(r.values), fq.ConstantShape, size)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (fq FakeQuantizeOnData) String() string {
	s := fmt.Sprintf("levels=%d shape=%v in=%v:%v out=%v:%v", fq.QuantizationLevel, fq.ConstantShape,
		fq.InputLowValues, fq.InputHighValues, fq.OutputLowValues, fq.OutputHighValues)
	if fq.OutputPrecision != dtypes.InvalidDType {
		s += " precision=" + fq.OutputPrecision.String()
	}
	return s
}
