// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// lpt_graphs builds one of the low precision Convolution test graphs and prints its nodes.
//
// Example:
//
//	lpt_graphs -variant=reference_incorrect -shape=1,3,8,8 -fq_data -fq_weights -correct=false -evaluate
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/AlexKoff88/openvino/pkg/core/graph"
	"github.com/AlexKoff88/openvino/pkg/core/tensors"
	"github.com/AlexKoff88/openvino/pkg/lpt/common"
	"github.com/AlexKoff88/openvino/pkg/lpt/subgraph"
	"github.com/AlexKoff88/openvino/pkg/support/xslices"
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Variants of the Convolution graphs.
var variants = []string{"get", "original", "reference", "original_incorrect", "reference_incorrect"}

var (
	flagVariant = flag.String("variant", "get",
		fmt.Sprintf("Graph to build, one of %q.", variants))
	flagShape = xslices.Flag("shape", []int{1, 3, 4, 4},
		"Comma-separated dimensions of the input, in NCHW layout.", strconv.Atoi)
	flagPrecision = flag.String("precision", "f32", "DType of the input, e.g. f32, u8, bf16.")
	flagWeights   = xslices.Flag("weights", []float32{2},
		"Comma-separated weights values: either 1 value, or 2*C*C values where C is the number of input channels.",
		parseFloat32)
	flagFQOnData    = flag.Bool("fq_data", false, "Quantize the input to 256 levels in [0, 2.55].")
	flagFQOnWeights = flag.Bool("fq_weights", false, "Quantize the weights to 255 levels in [-1.27, 1.27].")
	flagCorrect     = flag.Bool("correct", true, "For the *_incorrect variants, whether the weights are correct.")
	flagEvaluate    = flag.Bool("evaluate", false, "Evaluate the graph with the input 0, 1, 2, ... and print the result.")
	flagNoColor     = flag.Bool("no_color", false, "Disable colors in the output.")
)

func parseFloat32(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	precision := must.M1(dtypes.FromName(*flagPrecision))
	cfg := config{
		variant:   *flagVariant,
		shape:     *flagShape,
		precision: precision,
		weights:   *flagWeights,
		isCorrect: *flagCorrect,
	}
	if *flagFQOnData {
		cfg.fqOnData = defaultFQOnData()
	}
	if *flagFQOnWeights {
		cfg.fqOnWeights = defaultFQOnWeights()
	}
	fn, err := buildFunction(cfg)
	if err != nil {
		klog.Errorf("Failed to build %q: %+v", cfg.variant, err)
		os.Exit(1)
	}
	fmt.Println(titleStyle.Render(fn.Name()))
	fmt.Println(summaryTable(fn).Render())
	fmt.Println(nodesTable(fn).Render())

	if *flagEvaluate {
		output, err := evaluateIota(fn)
		if err != nil {
			klog.Errorf("Failed to evaluate %q: %+v", fn.Name(), err)
			os.Exit(1)
		}
		fmt.Println(titleStyle.Render("Output"))
		fmt.Println(output)
	}
}

type config struct {
	variant     string
	shape       []int
	precision   dtypes.DType
	weights     []float32
	fqOnData    common.Option[common.FakeQuantizeOnData]
	fqOnWeights common.Option[common.FakeQuantizeOnWeights]
	isCorrect   bool
}

func defaultFQOnData() common.Option[common.FakeQuantizeOnData] {
	return common.NewFakeQuantizeOnData(256, nil, []float32{0}, []float32{2.55}, []float32{0}, []float32{2.55})
}

func defaultFQOnWeights() common.Option[common.FakeQuantizeOnWeights] {
	return common.NewFakeQuantizeOnWeights(255, []int{1, 1, 1, 1},
		[]float32{-1.27}, []float32{1.27}, []float32{-1.27}, []float32{1.27})
}

// buildFunction builds the graph of the configured variant.
//
// The "original" and "reference" variants dequantize the input (Convert to Float32, Multiply by 0.02), and
// the "reference" variants also dequantize the output (Multiply by 0.5).
func buildFunction(cfg config) (*graph.Function, error) {
	deqBefore := common.NewDequantization(dtypes.Float32, nil, []float32{0.02})
	deqAfter := common.NewDequantization(dtypes.InvalidDType, nil, []float32{0.5})
	weights := tensors.FromFlatDataAndDimensions(cfg.weights, len(cfg.weights))
	switch cfg.variant {
	case "get":
		return subgraph.Get(cfg.shape, cfg.precision, cfg.fqOnData, cfg.weights, cfg.fqOnWeights)
	case "original":
		return subgraph.GetOriginal(cfg.precision, cfg.shape, deqBefore, weights, cfg.fqOnWeights)
	case "reference":
		return subgraph.GetReference(cfg.precision, cfg.shape, common.DequantizationOperations{}, weights,
			cfg.fqOnWeights, dtypes.Float32, deqAfter, dtypes.Float32)
	case "original_incorrect":
		return subgraph.GetOriginalWithIncorrectWeights(cfg.shape, cfg.precision, cfg.fqOnWeights, cfg.fqOnData,
			cfg.isCorrect)
	case "reference_incorrect":
		fqOnData := cfg.fqOnData
		if fqOnData.Empty() {
			fqOnData = defaultFQOnData()
		}
		return subgraph.GetReferenceWithIncorrectWeights(cfg.shape, cfg.precision, dtypes.Uint8, fqOnData,
			deqBefore, dtypes.Int8, cfg.weights, cfg.fqOnWeights, deqAfter, cfg.isCorrect)
	}
	return nil, errors.Errorf("unknown variant %q, valid values are %q", cfg.variant, variants)
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
}

func summaryTable(fn *graph.Function) *lgtable.Table {
	var numConstants, constantsSize int
	var constantsMemory uintptr
	for _, node := range fn.NodesOfType(graph.NodeTypeConstant) {
		numConstants++
		constantsSize += node.Shape().Size()
		constantsMemory += node.Shape().Memory()
	}
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Row("graph", fn.Name())
	table.Row("# nodes", humanize.Comma(int64(len(fn.Nodes()))))
	table.Row("# constants", humanize.Comma(int64(numConstants)))
	table.Row("# constant values", humanize.Comma(int64(constantsSize)))
	table.Row("constants memory", humanize.Bytes(uint64(constantsMemory)))
	return table
}

func nodesTable(fn *graph.Function) *lgtable.Table {
	table := newPlainTable(lipgloss.Right, lipgloss.Left)
	table.Headers("Id", "Type", "Name", "Shape", "Inputs", "Info")
	for _, node := range fn.Nodes() {
		inputs := xslices.Map(node.Inputs(), func(input *graph.Node) string {
			return fmt.Sprintf("#%d", input.Id())
		})
		var info []string
		switch node.Type() {
		case graph.NodeTypeConstant:
			if node.Shape().Size() <= 4 {
				info = append(info, fmt.Sprintf("%v", node.ConstantValue().ToFloat64s()))
			}
		case graph.NodeTypeFakeQuantize:
			info = append(info, fmt.Sprintf("levels=%d", node.Levels()))
		}
		if node.IsRelaxed() {
			info = append(info, "relaxed")
		}
		for key, value := range node.RuntimeInfo() {
			info = append(info, key+"="+value)
		}
		table.Row(strconv.Itoa(int(node.Id())), node.Type().String(), node.Name(), node.Shape().String(),
			strings.Join(inputs, ","), strings.Join(info, " "))
	}
	return table
}

// evaluateIota evaluates fn with an input holding 0, 1, 2, ... (modulo 256) and returns its output.
func evaluateIota(fn *graph.Function) (*tensors.Tensor, error) {
	param := fn.Parameters()[0]
	values := xslices.Map(xslices.Iota(0, param.Shape().Size()), func(v int) float64 { return float64(v % 256) })
	input := tensors.FromFloat64s(param.DType(), values, param.Shape().Dimensions...)
	outputs, err := fn.Evaluate(input)
	if err != nil {
		return nil, err
	}
	return outputs[0], nil
}
