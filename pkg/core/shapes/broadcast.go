// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"github.com/pkg/errors"
)

// BroadcastDimensions returns the dimensions resulting from broadcasting the given list of dimensions
// together with numpy rules: shapes are right-aligned, and an axis of dimension 1 is expanded to
// match the other side.
//
// It returns an error if any pair of aligned axes has different dimensions, none of them 1.
func BroadcastDimensions(dimensionsList ...[]int) ([]int, error) {
	rank := 0
	for _, dims := range dimensionsList {
		rank = max(rank, len(dims))
	}
	result := make([]int, rank)
	for ii := range result {
		result[ii] = 1
	}
	for _, dims := range dimensionsList {
		offset := rank - len(dims)
		for axis, dim := range dims {
			current := result[offset+axis]
			switch {
			case dim == current:
			case current == 1:
				result[offset+axis] = dim
			case dim == 1:
			default:
				return nil, errors.Errorf("dimensions %v are not broadcastable (axis %d has %d, other operand has %d)",
					dims, axis, dim, current)
			}
		}
	}
	return result, nil
}

// BroadcastIndex converts the indices of a broadcast output (with rank >= s.Rank()) to the
// flat index into a tensor of shape s, following numpy broadcasting rules.
//
// strides must be s.Strides(), passed in to avoid recomputing it for each element.
func (s Shape) BroadcastIndex(outputIndices []int, strides []int) int {
	offset := len(outputIndices) - s.Rank()
	flat := 0
	for axis, dim := range s.Dimensions {
		if dim == 1 {
			continue
		}
		flat += outputIndices[offset+axis] * strides[axis]
	}
	return flat
}
