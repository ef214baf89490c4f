// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"fmt"
	"strings"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
)

// DequantizationConvert is the convert stage of a dequantization: changes the dtype only.
type DequantizationConvert struct {
	OutPrecision dtypes.DType
}

// DequantizationConstant is the constant operand of the subtract or multiply stage of a dequantization.
type DequantizationConstant struct {
	Values []float32

	// OutPrecision of the stage. InvalidDType keeps the dtype of the stage input.
	OutPrecision dtypes.DType

	// ConstantShape of the constant. If nil, it is a scalar for one value, or a per-channel shape
	// (e.g. [1, C, 1, 1]) with the rank of the stage input otherwise.
	ConstantShape []int

	// ConstantPrecision is the dtype of the constant. InvalidDType uses the dtype of the stage input.
	ConstantPrecision dtypes.DType
}

// DequantizationOperations describes a dequantization chain: an optional Convert, followed by an
// optional Subtract, followed by an optional Multiply.
type DequantizationOperations struct {
	Convert  Option[DequantizationConvert]
	Subtract Option[DequantizationConstant]
	Multiply Option[DequantizationConstant]
}

// NewDequantization is a shortcut to create a dequantization chain: convert is the destination dtype of
// the convert stage, subtract and multiply the values of the corresponding stages. An InvalidDType
// or an empty list of values omits the stage.
func NewDequantization(convert dtypes.DType, subtract, multiply []float32) DequantizationOperations {
	var deq DequantizationOperations
	if convert != dtypes.InvalidDType {
		deq.Convert = Some(DequantizationConvert{OutPrecision: convert})
	}
	if len(subtract) > 0 {
		deq.Subtract = Some(DequantizationConstant{Values: subtract})
	}
	if len(multiply) > 0 {
		deq.Multiply = Some(DequantizationConstant{Values: multiply})
	}
	return deq
}

// Empty returns whether no stage is present.
func (deq DequantizationOperations) Empty() bool {
	return deq.Convert.Empty() && deq.Subtract.Empty() && deq.Multiply.Empty()
}

// String implements fmt.Stringer.
func (deq DequantizationOperations) String() string {
	if deq.Empty() {
		return "{}"
	}
	var parts []string
	if c, ok := deq.Convert.Get(); ok {
		parts = append(parts, "convert:"+c.OutPrecision.String())
	}
	if s, ok := deq.Subtract.Get(); ok {
		parts = append(parts, fmt.Sprintf("subtract:%v", s.Values))
	}
	if m, ok := deq.Multiply.Get(); ok {
		parts = append(parts, fmt.Sprintf("multiply:%v", m.Values))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
