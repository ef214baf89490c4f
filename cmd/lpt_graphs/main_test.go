// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/lpt/subgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFunction(t *testing.T) {
	for _, variant := range variants {
		t.Run(variant, func(t *testing.T) {
			cfg := config{
				variant:     variant,
				shape:       []int{1, 2, 3, 3},
				precision:   dtypes.Float32,
				weights:     []float32{1},
				fqOnData:    defaultFQOnData(),
				fqOnWeights: defaultFQOnWeights(),
				isCorrect:   variant != "original_incorrect",
			}
			fn, err := buildFunction(cfg)
			require.NoError(t, err)
			require.NotNil(t, fn.NodeByName(subgraph.OutputName))

			rendered := nodesTable(fn).Render()
			assert.Contains(t, rendered, "Convolution")
			assert.Contains(t, rendered, subgraph.OutputName)
			assert.Contains(t, summaryTable(fn).Render(), fn.Name())

			output, err := evaluateIota(fn)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 4, 3, 3}, output.Shape().Dimensions)
		})
	}

	_, err := buildFunction(config{variant: "unknown"})
	require.Error(t, err)

	_, err = buildFunction(config{variant: "get", shape: []int{1, 2, 4, 4}, precision: dtypes.Float32,
		weights: []float32{1, 2, 3}})
	require.ErrorContains(t, err, "unexpected actual weights values size")
}
