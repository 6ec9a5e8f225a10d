/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package pass

import (
	"math"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/sram"
	"github.com/accelplan/accelplan/types/shapes"
)

// Strategy names a scheme for laying out input, output and weight stripes
// across SRAM.
type Strategy uint8

//go:generate go tool enumer -type=Strategy -output=gen_strategy_enumer.go

const (
	// Strategy0 stripes the input along H, keeping W and C whole.
	Strategy0 Strategy = iota
	// Strategy1 streams weights: output depth is striped, H and W are whole.
	Strategy1
	// Strategy3 keeps input, output and weights entirely resident.
	Strategy3
	// Strategy4 stripes the input along W, keeping H and C whole.
	Strategy4
	// Strategy5 stripes along H with a three-stripe input tile so adjacent
	// rows needed by the kernel stay resident.
	Strategy5
	// Strategy6 stripes along both H and W.
	Strategy6
	// Strategy7 stripes along H, W and output depth.
	Strategy7
	// StrategyFc is the fully-connected scheme: 8x8 blocks, streamed weights.
	StrategyFc
)

// DefaultStrategies is the default candidate order, most resident first.
var DefaultStrategies = []Strategy{
	Strategy3, Strategy0, Strategy4, Strategy6, Strategy1, Strategy5, Strategy7,
}

// SramAllocation is one tensor's placement: the offset of its tile, the
// stripe shape streamed through it and the tile's total size in bytes.
type SramAllocation struct {
	Offset      uint32
	StripeShape shapes.TensorShape
	TileSize    uint32
}

// TensorConfig is the per-pass plan produced by strategy selection.
type TensorConfig struct {
	Strategy    Strategy
	BlockWidth  uint32
	BlockHeight uint32

	Input   SramAllocation
	Output  SramAllocation
	Weights SramAllocation
	PleCode SramAllocation
}

// setupArgs bundles the inputs of TrySetup.
type setupArgs struct {
	caps            *hwcaps.Capabilities
	inputShape      shapes.TensorShape
	outputShape     shapes.TensorShape
	weightsFormat   graph.WeightsFormat
	weightsShape    shapes.TensorShape
	blockConfig     cmdstream.BlockConfig
	shapeMultiplier shapes.ShapeMultiplier
	inputInSram     bool
	inputSramOffset uint32
	algorithm       graph.Algorithm
	depthMax        uint32
}

// roundToBricks rounds a stripe up to whole brick groups on H, W and C.
func roundToBricks(caps *hwcaps.Capabilities, s shapes.TensorShape) shapes.TensorShape {
	b := caps.BrickGroupShape
	return shapes.TensorShape{
		s[0],
		shapes.RoundUpToMultiple(s[1], b[1]),
		shapes.RoundUpToMultiple(s[2], b[2]),
		shapes.RoundUpToMultiple(s[3], b[3]),
	}
}

// byteSize is the QAsymm8 footprint of a stripe; it reports failure instead
// of panicking so oversized candidates are simply skipped.
func byteSize(s shapes.TensorShape) (uint32, bool) {
	total := uint64(s[0]) * uint64(s[1]) * uint64(s[2]) * uint64(s[3])
	if total > math.MaxUint32 {
		return 0, false
	}
	return uint32(total), true
}

// stripePlan is a strategy's proposed layout before allocation.
type stripePlan struct {
	inputStripe  shapes.TensorShape
	outputStripe shapes.TensorShape
	weightStripe shapes.TensorShape

	// inputTileStripes is how many input stripes the tile rings; 0 means
	// single-buffer when there is one stripe, double-buffer otherwise.
	inputTileStripes uint32
}

// clampOutputDepth returns the output stripe depth for depth-streaming
// strategies: whole (rounded) depth when it fits under depthMax, else the
// largest brick-multiple not exceeding depthMax.
func clampOutputDepth(caps *hwcaps.Capabilities, outC, depthMax uint32) (uint32, bool) {
	brickC := caps.BrickGroupShape[3]
	rounded := shapes.RoundUpToMultiple(outC, brickC)
	if rounded <= depthMax {
		return rounded, true
	}
	capped := depthMax / brickC * brickC
	if capped == 0 {
		return 0, false
	}
	return capped, true
}

// TrySetup attempts to lay the pass's tensors out in SRAM under this
// strategy. On success it mutates alloc and fills cfg; on failure both are
// left untouched.
func (s Strategy) TrySetup(cfg *TensorConfig, alloc *sram.Allocator, args *setupArgs) bool {
	plan, ok := s.plan(args)
	if !ok {
		return false
	}
	return commitPlan(cfg, alloc, args, s, plan)
}

func (s Strategy) plan(args *setupArgs) (stripePlan, bool) {
	caps := args.caps
	in := roundToBricks(caps, args.inputShape)
	out := roundToBricks(caps, args.outputShape)
	weights := args.weightsShape

	if out[3] > args.depthMax {
		// Only the depth-streaming strategies can honour the cap.
		switch s {
		case Strategy1, Strategy7, StrategyFc:
		default:
			return stripePlan{}, false
		}
	}

	stripeH := shapes.RoundUpToMultiple(args.blockConfig.Height, caps.BrickGroupShape[1])
	stripeW := shapes.RoundUpToMultiple(args.blockConfig.Width, caps.BrickGroupShape[2])

	switch s {
	case Strategy3:
		return stripePlan{inputStripe: in, outputStripe: out, weightStripe: weights}, true
	case Strategy0:
		return stripePlan{
			inputStripe:  shapes.TensorShape{in[0], stripeH, in[2], in[3]},
			outputStripe: applyMultiplierH(args, stripeH, out),
			weightStripe: weights,
		}, true
	case Strategy4:
		return stripePlan{
			inputStripe:  shapes.TensorShape{in[0], in[1], stripeW, in[3]},
			outputStripe: applyMultiplierW(args, stripeW, out),
			weightStripe: weights,
		}, true
	case Strategy6:
		p := stripePlan{
			inputStripe:  shapes.TensorShape{in[0], stripeH, stripeW, in[3]},
			outputStripe: applyMultiplierH(args, stripeH, applyMultiplierW(args, stripeW, out)),
			weightStripe: weights,
		}
		return p, true
	case Strategy1:
		depth, ok := clampOutputDepth(caps, args.outputShape[3], args.depthMax)
		if !ok {
			return stripePlan{}, false
		}
		return stripePlan{
			inputStripe:  in,
			outputStripe: shapes.TensorShape{out[0], out[1], out[2], depth},
			weightStripe: weightDepthStripe(args, depth),
		}, true
	case Strategy7:
		depth, ok := clampOutputDepth(caps, args.outputShape[3], args.depthMax)
		if !ok {
			return stripePlan{}, false
		}
		return stripePlan{
			inputStripe:  shapes.TensorShape{in[0], stripeH, stripeW, in[3]},
			outputStripe: applyMultiplierH(args, stripeH, applyMultiplierW(args, stripeW, shapes.TensorShape{out[0], out[1], out[2], depth})),
			weightStripe: weightDepthStripe(args, depth),
		}, true
	case Strategy5:
		return stripePlan{
			inputStripe:      shapes.TensorShape{in[0], stripeH, in[2], in[3]},
			outputStripe:     applyMultiplierH(args, stripeH, out),
			weightStripe:     weights,
			inputTileStripes: 3,
		}, true
	case StrategyFc:
		if args.blockConfig.Width != 8 || args.blockConfig.Height != 8 {
			return stripePlan{}, false
		}
		depth, ok := clampOutputDepth(caps, args.outputShape[3], shapes.MinU32(args.depthMax, caps.NumberOfOfm()))
		if !ok {
			return stripePlan{}, false
		}
		return stripePlan{
			inputStripe:  in,
			outputStripe: shapes.TensorShape{out[0], out[1], out[2], depth},
			weightStripe: weightDepthStripe(args, depth),
		}, true
	}
	return stripePlan{}, false
}

// applyMultiplierH rescales the H extent of a striped output through the
// MCExPLE shape multiplier, clamped to the whole tensor.
func applyMultiplierH(args *setupArgs, stripeH uint32, out shapes.TensorShape) shapes.TensorShape {
	h := args.shapeMultiplier.H.Apply(stripeH)
	out[1] = shapes.MinU32(h, out[1])
	return out
}

func applyMultiplierW(args *setupArgs, stripeW uint32, out shapes.TensorShape) shapes.TensorShape {
	w := args.shapeMultiplier.W.Apply(stripeW)
	out[2] = shapes.MinU32(w, out[2])
	return out
}

// weightDepthStripe is the weight stripe covering depth output channels.
func weightDepthStripe(args *setupArgs, depth uint32) shapes.TensorShape {
	w := args.weightsShape
	w[3] = shapes.MinU32(depth, w[3])
	return w
}

func tileSize(stripeBytes uint32, stripes uint32, wholeTensor bool) (uint32, bool) {
	if wholeTensor {
		return stripeBytes, true
	}
	if stripes == 0 {
		stripes = 2
	}
	total := uint64(stripeBytes) * uint64(stripes)
	if total > math.MaxUint32 {
		return 0, false
	}
	return uint32(total), true
}

func commitPlan(cfg *TensorConfig, alloc *sram.Allocator, args *setupArgs, s Strategy, plan stripePlan) bool {
	caps := args.caps
	in := roundToBricks(caps, args.inputShape)
	out := roundToBricks(caps, args.outputShape)

	inputStripeBytes, ok1 := byteSize(plan.inputStripe)
	outputStripeBytes, ok2 := byteSize(plan.outputStripe)
	weightStripeBytes, ok3 := byteSize(plan.weightStripe)
	if !ok1 || !ok2 || !ok3 {
		return false
	}

	inputWhole := plan.inputStripe == in
	outputWhole := plan.outputStripe == out
	weightsWhole := plan.weightStripe == args.weightsShape

	inputTile, ok1 := tileSize(inputStripeBytes, plan.inputTileStripes, inputWhole)
	outputTile, ok2 := tileSize(outputStripeBytes, 0, outputWhole)
	weightsTile, ok3 := tileSize(weightStripeBytes, 0, weightsWhole)
	if !ok1 || !ok2 || !ok3 {
		return false
	}

	if args.inputInSram && !inputWhole {
		// A resident input from the previous pass cannot be re-striped.
		return false
	}

	probe := alloc.Clone()
	next := TensorConfig{
		Strategy:    s,
		BlockWidth:  args.blockConfig.Width,
		BlockHeight: args.blockConfig.Height,
	}

	if args.inputInSram {
		next.Input = SramAllocation{Offset: args.inputSramOffset, StripeShape: plan.inputStripe, TileSize: inputTile}
	} else {
		offset, ok := probe.Reserve(inputTile)
		if !ok {
			return false
		}
		next.Input = SramAllocation{Offset: offset, StripeShape: plan.inputStripe, TileSize: inputTile}
	}

	offset, ok := probe.Reserve(outputTile)
	if !ok {
		return false
	}
	next.Output = SramAllocation{Offset: offset, StripeShape: plan.outputStripe, TileSize: outputTile}

	offset, ok = probe.Reserve(weightsTile)
	if !ok {
		return false
	}
	next.Weights = SramAllocation{Offset: offset, StripeShape: plan.weightStripe, TileSize: weightsTile}

	offset, ok = probe.Reserve(caps.PleCodeSize)
	if !ok {
		return false
	}
	next.PleCode = SramAllocation{Offset: offset, TileSize: caps.PleCodeSize}

	*alloc = *probe
	*cfg = next
	return true
}
