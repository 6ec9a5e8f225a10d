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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/sram"
	"github.com/accelplan/accelplan/types/shapes"
)

func testArgs(input, output, weights shapes.TensorShape) *setupArgs {
	return &setupArgs{
		caps:            hwcaps.Default(),
		inputShape:      input,
		outputShape:     output,
		weightsFormat:   graph.WeightsHWIO,
		weightsShape:    weights,
		blockConfig:     cmdstream.BlockConfig{Width: 16, Height: 16},
		shapeMultiplier: shapes.Identity,
		algorithm:       graph.AlgorithmDirect,
		depthMax:        math.MaxUint32,
	}
}

func TestStrategy3AllResident(t *testing.T) {
	args := testArgs(
		shapes.TensorShape{1, 16, 16, 16},
		shapes.TensorShape{1, 16, 16, 16},
		shapes.TensorShape{3, 3, 16, 16})
	alloc := sram.New(args.caps.SramSize)

	var cfg TensorConfig
	require.True(t, Strategy3.TrySetup(&cfg, alloc, args))

	assert.Equal(t, Strategy3, cfg.Strategy)
	assert.Equal(t, uint32(0), cfg.Input.Offset)
	assert.Equal(t, uint32(4096), cfg.Input.TileSize)
	assert.Equal(t, uint32(4096), cfg.Output.Offset)
	assert.Equal(t, uint32(4096), cfg.Output.TileSize)
	assert.Equal(t, uint32(8192), cfg.Weights.Offset)
	assert.Equal(t, uint32(2304), cfg.Weights.TileSize)
	assert.Equal(t, uint32(10496), cfg.PleCode.Offset)
	assert.Equal(t, args.caps.PleCodeSize, cfg.PleCode.TileSize)
	assert.Equal(t, args.caps.SramSize-14720, alloc.FreeBytes())
}

func TestTrySetupFailureLeavesAllocatorUntouched(t *testing.T) {
	args := testArgs(
		shapes.TensorShape{1, 16, 16, 16},
		shapes.TensorShape{1, 16, 16, 16},
		shapes.TensorShape{3, 3, 16, 16})
	alloc := sram.New(10000)

	var cfg TensorConfig
	assert.False(t, Strategy3.TrySetup(&cfg, alloc, args))
	assert.Equal(t, uint32(10000), alloc.FreeBytes())
	assert.Equal(t, TensorConfig{}, cfg)
}

func TestStrategy0StripesHeight(t *testing.T) {
	args := testArgs(
		shapes.TensorShape{1, 64, 16, 16},
		shapes.TensorShape{1, 64, 16, 16},
		shapes.TensorShape{3, 3, 16, 16})
	alloc := sram.New(args.caps.SramSize)

	var cfg TensorConfig
	require.True(t, Strategy0.TrySetup(&cfg, alloc, args))

	assert.Equal(t, shapes.TensorShape{1, 16, 16, 16}, cfg.Input.StripeShape)
	// Striped tiles are double-buffered.
	assert.Equal(t, uint32(8192), cfg.Input.TileSize)
	assert.Equal(t, shapes.TensorShape{1, 16, 16, 16}, cfg.Output.StripeShape)
	assert.Equal(t, uint32(8192), cfg.Output.TileSize)
	// Weights stay whole.
	assert.Equal(t, uint32(2304), cfg.Weights.TileSize)
}

func TestStrategy5TripleBuffersInput(t *testing.T) {
	args := testArgs(
		shapes.TensorShape{1, 64, 16, 16},
		shapes.TensorShape{1, 64, 16, 16},
		shapes.TensorShape{3, 3, 16, 16})
	alloc := sram.New(args.caps.SramSize)

	var cfg TensorConfig
	require.True(t, Strategy5.TrySetup(&cfg, alloc, args))
	assert.Equal(t, uint32(3*4096), cfg.Input.TileSize)
}

func TestDepthMaxGatesStrategies(t *testing.T) {
	input := shapes.TensorShape{1, 8, 8, 16}
	output := shapes.TensorShape{1, 8, 8, 64}
	weights := shapes.TensorShape{1, 1, 16, 64}

	args := testArgs(input, output, weights)
	args.depthMax = 16
	alloc := sram.New(args.caps.SramSize)

	var cfg TensorConfig
	// Only depth-streaming strategies can honour the cap.
	assert.False(t, Strategy3.TrySetup(&cfg, alloc, args))
	assert.False(t, Strategy0.TrySetup(&cfg, alloc, args))

	require.True(t, Strategy1.TrySetup(&cfg, alloc, args))
	assert.Equal(t, uint32(16), cfg.Output.StripeShape[3])
	assert.Equal(t, uint32(16), cfg.Weights.StripeShape[3])
}

func TestStrategyFcNeeds8x8Block(t *testing.T) {
	args := testArgs(
		shapes.TensorShape{1, 1, 1, 1024},
		shapes.TensorShape{1, 1, 1, 64},
		shapes.TensorShape{1, 1, 1024, 64})
	alloc := sram.New(args.caps.SramSize)

	var cfg TensorConfig
	assert.False(t, StrategyFc.TrySetup(&cfg, alloc, args))

	args.blockConfig = cmdstream.BlockConfig{Width: 8, Height: 8}
	require.True(t, StrategyFc.TrySetup(&cfg, alloc, args))
	// Output depth streams in groups of the OFM generator count.
	assert.Equal(t, args.caps.NumberOfOfm(), cfg.Output.StripeShape[3])
}

func TestResidentInputKeepsItsOffset(t *testing.T) {
	args := testArgs(
		shapes.TensorShape{1, 16, 16, 16},
		shapes.TensorShape{1, 16, 16, 16},
		shapes.TensorShape{3, 3, 16, 16})
	args.inputInSram = true
	args.inputSramOffset = 1234
	alloc := sram.New(args.caps.SramSize)

	var cfg TensorConfig
	require.True(t, Strategy3.TrySetup(&cfg, alloc, args))
	assert.Equal(t, uint32(1234), cfg.Input.Offset)
	// Output claims the first free region since no input tile was reserved.
	assert.Equal(t, uint32(0), cfg.Output.Offset)
}

func TestResidentInputCannotBeRestriped(t *testing.T) {
	args := testArgs(
		shapes.TensorShape{1, 64, 16, 16},
		shapes.TensorShape{1, 64, 16, 16},
		shapes.TensorShape{3, 3, 16, 16})
	args.inputInSram = true
	alloc := sram.New(args.caps.SramSize)

	var cfg TensorConfig
	assert.False(t, Strategy0.TrySetup(&cfg, alloc, args))
}

func TestChooseAndSetupStrategyFallsBack(t *testing.T) {
	caps := hwcaps.Default()
	// Too small for everything resident, enough for height striping.
	alloc := sram.New(30000)

	var cfg TensorConfig
	ok := chooseAndSetupStrategy(
		caps, alloc, DefaultStrategies, DefaultBlockConfigs, &cfg,
		shapes.TensorShape{1, 64, 16, 16},
		shapes.TensorShape{1, 64, 16, 16},
		graph.WeightsHWIO,
		shapes.TensorShape{3, 3, 16, 16},
		shapes.Identity, false, 0, graph.AlgorithmDirect, math.MaxUint32)
	require.True(t, ok)
	assert.Equal(t, Strategy0, cfg.Strategy)
}

func TestChooseAndSetupStrategyExhaustion(t *testing.T) {
	caps := hwcaps.Default()
	alloc := sram.New(4096)

	var cfg TensorConfig
	ok := chooseAndSetupStrategy(
		caps, alloc, DefaultStrategies, DefaultBlockConfigs, &cfg,
		shapes.TensorShape{1, 64, 64, 64},
		shapes.TensorShape{1, 64, 64, 64},
		graph.WeightsHWIO,
		shapes.TensorShape{3, 3, 64, 64},
		shapes.Identity, false, 0, graph.AlgorithmDirect, math.MaxUint32)
	assert.False(t, ok)
	assert.Equal(t, uint32(4096), alloc.FreeBytes())
}
