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

package pass_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/pass"
	"github.com/accelplan/accelplan/sram"
	"github.com/accelplan/accelplan/types/shapes"
)

type fakeBuffers struct {
	nextId      uint32
	constants   [][]byte
	dramSizes   map[uint32]uint32
	sramOffsets map[uint32]uint32
}

func newFakeBuffers() *fakeBuffers {
	return &fakeBuffers{
		dramSizes:   make(map[uint32]uint32),
		sramOffsets: make(map[uint32]uint32),
	}
}

func (b *fakeBuffers) AddDramConstant(data []byte) uint32 {
	id := b.nextId
	b.nextId++
	b.constants = append(b.constants, data)
	return id
}

func (b *fakeBuffers) AddDram(size uint32) uint32 {
	id := b.nextId
	b.nextId++
	b.dramSizes[id] = size
	return id
}

func (b *fakeBuffers) AddSram(size uint32, sramOffset uint32) uint32 {
	id := b.nextId
	b.nextId++
	b.sramOffsets[id] = sramOffset
	return id
}

func (b *fakeBuffers) SramOffset(bufferId uint32) uint32 {
	return b.sramOffsets[bufferId]
}

func testQuant() graph.QuantizationInfo {
	return graph.QuantizationInfo{ZeroPoint: 0, Scale: 1.0}
}

func newConvMce(kernelH, kernelW, inC, outC uint32) *graph.MceOp {
	return &graph.MceOp{
		Operation: cmdstream.MceOperationConvolution,
		Weights: graph.WeightsInfo{
			Dimensions:   shapes.TensorShape{kernelH, kernelW, inC, outC},
			Format:       graph.WeightsHWIO,
			Quantization: testQuant(),
		},
		WeightsData:   make([]uint8, kernelH*kernelW*inC*outC),
		Stride:        graph.Stride{X: 1, Y: 1},
		UpscaleFactor: 1,
	}
}

// buildConvChain returns a graph with input -> mce and the mce node as seed.
func buildConvChain(shape shapes.TensorShape, format graph.DataFormat) (*graph.Node, *graph.Node) {
	g := graph.New()
	input := g.NewNode(&graph.InputOp{}, shape, format, testQuant())
	mce := g.NewNode(newConvMce(3, 3, shape[3], shape[3]), shape, format, testQuant(), input)
	return input, mce
}

func TestCreateGreedilyCommitsResidentOutput(t *testing.T) {
	caps := hwcaps.Default()
	_, mceNode := buildConvChain(shapes.TensorShape{1, 16, 16, 16}, graph.FormatNHWCB)
	alloc := sram.New(caps.SramSize)

	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	require.NotNil(t, p)

	assert.Len(t, p.Nodes(), 1)
	assert.Equal(t, graph.AlgorithmDirect, p.Algorithm())
	assert.Equal(t, pass.Strategy3, p.TensorConfig().Strategy)

	// Everything resident: the output stays in SRAM and only its tile
	// outlives the commit.
	assert.Equal(t, graph.LocationSram, mceNode.Location())
	assert.Equal(t, uint32(4096), mceNode.OutputSramOffset())
	assert.Equal(t, caps.SramSize-4096, alloc.FreeBytes())
	assert.Equal(t, p, mceNode.Pass())
}

func TestCreateGreedilyHintsDirectWhenWinogradPlanFails(t *testing.T) {
	caps := hwcaps.Default()
	_, mceNode := buildConvChain(shapes.TensorShape{1, 16, 16, 16}, graph.FormatNHWCB)
	alloc := sram.New(8192) // nothing fits

	p := pass.CreateGreedily(caps, 0, &pass.Options{},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	assert.Nil(t, p)

	mce := mceNode.Op().(*graph.MceOp)
	assert.Equal(t, graph.RequireDirect, mce.AlgorithmHint)
	assert.Equal(t, uint32(8192), alloc.FreeBytes())
}

func TestCreateGreedilyEvictsResidentDependency(t *testing.T) {
	caps := hwcaps.Default()
	input, mceNode := buildConvChain(shapes.TensorShape{1, 16, 16, 16}, graph.FormatNHWCB)
	input.SetLocation(graph.LocationSram)
	alloc := sram.New(8192)

	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	assert.Nil(t, p)
	assert.Equal(t, graph.RequireDram, input.LocationHint())
}

func TestCreateGreedilyHintsFormatConversion(t *testing.T) {
	caps := hwcaps.Default()
	// Wide tensor with NHWC output: the only fitting strategy stripes the
	// width, which NHWC output cannot express.
	_, mceNode := buildConvChain(shapes.TensorShape{1, 16, 64, 16}, graph.FormatNHWC)
	alloc := sram.New(30000)

	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	assert.Nil(t, p)
	assert.Equal(t, graph.FormatNHWCB, mceNode.FixGraphConvertOutputTo())
	assert.Equal(t, uint32(30000), alloc.FreeBytes())
}

func TestCreateGreedilyHintsUncompressedInput(t *testing.T) {
	caps := hwcaps.Default()
	input, mceNode := buildConvChain(shapes.TensorShape{1, 16, 64, 16}, graph.FormatNHWCB)
	input.SetCompressed(true)
	alloc := sram.New(30000)

	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	assert.Nil(t, p)
	assert.Equal(t, graph.RequiredUncompressed, input.CompressionHint())
}

func TestCreateGreedilyFusesPleAndRequantize(t *testing.T) {
	caps := hwcaps.Default()
	g := graph.New()
	shape := shapes.TensorShape{1, 16, 16, 16}
	pooled := shapes.TensorShape{1, 8, 8, 16}
	half := shapes.Fraction{Num: 1, Denom: 2}

	input := g.NewNode(&graph.InputOp{}, shape, graph.FormatNHWCB, testQuant())
	mceNode := g.NewNode(newConvMce(3, 3, 16, 16), shape, graph.FormatNHWCB, testQuant(), input)
	pleNode := g.NewNode(&graph.FuseOnlyPleOp{
		Operation:                cmdstream.PleOpMaxPool2x2Stride2,
		AgnosticToRequantisation: true,
		Multiplier: shapes.ShapeMultiplier{
			H: half, W: half, C: shapes.Fraction{Num: 1, Denom: 1},
		},
	}, pooled, graph.FormatNHWCB, testQuant(), mceNode)
	requant := g.NewNode(&graph.RequantizeOp{}, pooled, graph.FormatNHWCB,
		graph.QuantizationInfo{ZeroPoint: 3, Scale: 0.5}, pleNode)

	alloc := sram.New(caps.SramSize)
	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	require.NotNil(t, p)

	assert.Len(t, p.Nodes(), 3)
	assert.Equal(t, cmdstream.PleOpMaxPool2x2Stride2, p.PleOperation())
	assert.Equal(t, graph.LocationSram, requant.Location())
	assert.Equal(t, p, requant.Pass())
}

func TestCreateGreedilyStopsAtRequantizeBehindSensitivePle(t *testing.T) {
	caps := hwcaps.Default()
	g := graph.New()
	shape := shapes.TensorShape{1, 16, 16, 16}

	input := g.NewNode(&graph.InputOp{}, shape, graph.FormatNHWCB, testQuant())
	mceNode := g.NewNode(newConvMce(3, 3, 16, 16), shape, graph.FormatNHWCB, testQuant(), input)
	pleNode := g.NewNode(&graph.FuseOnlyPleOp{
		Operation:  cmdstream.PleOpSigmoid,
		Multiplier: shapes.Identity,
	}, shape, graph.FormatNHWCB, testQuant(), mceNode)
	g.NewNode(&graph.RequantizeOp{}, shape, graph.FormatNHWCB,
		graph.QuantizationInfo{ZeroPoint: 0, Scale: 2}, pleNode)

	alloc := sram.New(caps.SramSize)
	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	require.NotNil(t, p)
	assert.Len(t, p.Nodes(), 2)
}

func TestGenerate(t *testing.T) {
	caps := hwcaps.Default()
	_, mceNode := buildConvChain(shapes.TensorShape{1, 16, 16, 16}, graph.FormatNHWCB)
	alloc := sram.New(caps.SramSize)

	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	require.NotNil(t, p)

	var cs cmdstream.Buffer
	buffers := newFakeBuffers()
	require.NoError(t, p.Generate(&cs, buffers))

	cmds := cs.Commands()
	require.Len(t, cmds, 1)
	cmd := cmds[0]

	assert.Equal(t, cmdstream.AllocationStrategy3, cmd.SramConfig.AllocationStrategy)
	assert.Equal(t, cmdstream.DataLocationDram, cmd.InputInfo.DataLocation)
	assert.Equal(t, cmdstream.DataLocationSram, cmd.OutputInfo.DataLocation)
	assert.Equal(t, cmdstream.DataFormatWeightStream, cmd.WeightInfo.DataFormat)
	assert.Equal(t, cmdstream.PleOpPassthrough, cmd.PleData.Operation)
	assert.Equal(t, cmdstream.MceAlgorithmDirect, cmd.MceData.Algorithm)
	assert.Equal(t, uint8(0), cmd.MceData.ActivationMin)
	assert.Equal(t, uint8(255), cmd.MceData.ActivationMax)
	assert.Equal(t, shapes.TensorShape{1, 16, 16, 16}, cmd.MceData.OutputStripeShape)

	// Weight stream and metadata land in DRAM constants.
	require.Len(t, buffers.constants, 2)
	assert.Len(t, buffers.constants[0], 2304)
	assert.Len(t, buffers.constants[1], 8)

	// The resident output is registered against its committed offset.
	assert.Equal(t, uint32(4096), buffers.sramOffsets[cmd.OutputInfo.DramBufferId])
	assert.Equal(t, cmd.OutputInfo.DramBufferId, mceNode.BufferId())
}

func TestGenerateFoldsRequantize(t *testing.T) {
	caps := hwcaps.Default()
	g := graph.New()
	shape := shapes.TensorShape{1, 16, 16, 16}

	input := g.NewNode(&graph.InputOp{}, shape, graph.FormatNHWCB, testQuant())
	mceNode := g.NewNode(newConvMce(3, 3, 16, 16), shape, graph.FormatNHWCB, testQuant(), input)
	g.NewNode(&graph.RequantizeOp{}, shape, graph.FormatNHWCB,
		graph.QuantizationInfo{ZeroPoint: 7, Scale: 0.5}, mceNode)

	alloc := sram.New(caps.SramSize)
	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	require.NotNil(t, p)
	require.Len(t, p.Nodes(), 2)

	var cs cmdstream.Buffer
	require.NoError(t, p.Generate(&cs, newFakeBuffers()))
	cmd := cs.Commands()[0]

	// Rescale by 1.0/0.5 = 2: multiplier 2^15, shift 14.
	assert.Equal(t, uint16(32768), cmd.MceData.OutputRescaleMultiplier)
	assert.Equal(t, uint16(14), cmd.MceData.OutputRescaleShift)
	assert.Equal(t, int16(7), cmd.MceData.OutputZeroPoint)
	assert.Equal(t, uint8(7), cmd.OutputInfo.ZeroPoint)
}

func TestMceStats(t *testing.T) {
	caps := hwcaps.Default()
	_, mceNode := buildConvChain(shapes.TensorShape{1, 16, 16, 16}, graph.FormatNHWCB)
	alloc := sram.New(caps.SramSize)

	p := pass.CreateGreedily(caps, 0, &pass.Options{DisableWinograd: true},
		pass.DefaultStrategies, pass.DefaultBlockConfigs, mceNode, alloc)
	require.NotNil(t, p)

	stats := p.MceStats(
		shapes.TensorShape{1, 16, 16, 16},
		shapes.TensorShape{1, 16, 16, 16},
		shapes.TensorShape{3, 3, 16, 16})
	assert.NotZero(t, stats.CycleCount)
	assert.NotZero(t, stats.Operations)
}
