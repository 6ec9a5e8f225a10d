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

// Package pass forms fused MCE+PLE passes out of linear chains of graph
// nodes and plans their SRAM residency.
//
// CreateGreedily is the entry point: it fuses the longest workable chain
// starting at a seed node, binds it to an algorithm, block config and
// strategy, and commits the SRAM plan. When no pass can be formed it
// installs at most one fix-graph hint on some node and returns nil; the
// caller re-shapes the graph and retries. Every hint strictly narrows the
// next attempt. When no strategy fits and no node of the MCE's dependency
// cone is resident in SRAM, no hint is installed.
package pass

import (
	"math"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/sram"
	"github.com/accelplan/accelplan/types/shapes"
	"github.com/accelplan/accelplan/weights"
)

// Options are the planner's global switches.
type Options struct {
	// DisableWinograd forces the direct algorithm everywhere.
	DisableWinograd bool

	// EnableIntermediateCompression lets intermediate DRAM tensors be
	// activation-compressed when the layout permits.
	EnableIntermediateCompression bool
}

// BufferTable is the DRAM buffer registry the pass emits against.
type BufferTable interface {
	// AddDramConstant registers constant data to be DMAed in, returning its
	// buffer id.
	AddDramConstant(data []byte) uint32

	// AddDram registers an intermediate DRAM buffer of the given size.
	AddDram(size uint32) uint32

	// AddSram registers a buffer that stays resident in SRAM.
	AddSram(size uint32, sramOffset uint32) uint32

	// SramOffset returns the SRAM offset of a buffer added with AddSram.
	SramOffset(bufferId uint32) uint32
}

// McePlePass is a committed fused pass: an MCE stage, optional
// post-processing, and a PLE kernel, bound to a strategy and SRAM plan.
type McePlePass struct {
	caps *hwcaps.Capabilities
	id   int

	nodes            []*graph.Node
	preConversions   []*graph.Node
	extractNode      *graph.Node
	mceNode          *graph.Node
	mce              *graph.MceOp
	pleNode          *graph.Node
	ple              *graph.FuseOnlyPleOp
	postProcessNodes []*graph.Node
	postConversions  []*graph.Node
	requantizeNodes  []*graph.Node

	encoder      weights.Encoder
	tensorConfig TensorConfig
	algorithm    graph.Algorithm
	sramOffset   uint32
}

// ID implements graph.PassRef.
func (p *McePlePass) ID() int { return p.id }

// TensorConfig returns the committed plan.
func (p *McePlePass) TensorConfig() TensorConfig { return p.tensorConfig }

// Nodes returns the working nodes in chain order.
func (p *McePlePass) Nodes() []*graph.Node { return p.nodes }

// Algorithm returns the committed convolution algorithm.
func (p *McePlePass) Algorithm() graph.Algorithm { return p.algorithm }

// CreateGreedily fuses the longest workable chain starting at firstNode into
// a pass, committing its SRAM plan into alloc. It returns nil when no pass
// can be formed; in that case alloc is untouched and at most one fix-graph
// hint has been installed. No hint is installed when firstNode cannot seed a
// pass at all, or when no strategy fits and nothing in the MCE's dependency
// cone is resident in SRAM.
func CreateGreedily(
	caps *hwcaps.Capabilities,
	id int,
	opts *Options,
	allowedStrategies []Strategy,
	allowedBlockConfigs []cmdstream.BlockConfig,
	firstNode *graph.Node,
	alloc *sram.Allocator,
) *McePlePass {
	linear := findLinearWorkingNodes(firstNode, alloc, caps, opts, allowedStrategies, allowedBlockConfigs)

	if linear.mce == nil {
		return nil
	}
	if linear.requiredOutputFormat != graph.FormatNone && len(linear.workingNodes) > 0 {
		tail := linear.workingNodes[len(linear.workingNodes)-1]
		if tail.Format() != linear.requiredOutputFormat {
			tail.SetFixGraphConvertOutputTo(linear.requiredOutputFormat)
			return nil
		}
	}
	if (len(linear.validBlockConfigs) == 0 || !linear.strategySelected) &&
		linear.algorithm == graph.AlgorithmWinograd {
		linear.mce.SetFixGraphAlgorithmHint(graph.RequireDirect)
		return nil
	}
	if !linear.strategySelected {
		// SRAM may simply be full; evicting an earlier resident output can
		// unblock the next attempt.
		inSram := func(n *graph.Node) bool { return n.Location() == graph.LocationSram }
		if nodeToChange := graph.SearchDependencies(linear.mceNode, inSram); nodeToChange != nil {
			nodeToChange.SetFixGraphLocationHint(graph.RequireDram)
		}
		return nil
	}

	front := linear.workingNodes[0]
	if linear.tensorConfig.Input.StripeShape[3] < front.InputShape(0)[3] &&
		front.InputFormat(0) == graph.FormatNHWC {
		// The firmware cannot read NHWC when IFM stripes are not contiguous
		// in DRAM.
		front.InputSource(0).SetFixGraphConvertOutputTo(graph.FormatNHWCB)
		return nil
	}

	if front.InputCompressed(0) &&
		(linear.tensorConfig.Input.StripeShape[2] < front.InputShape(0)[2] ||
			linear.tensorConfig.Input.StripeShape[3] < front.InputShape(0)[3]) {
		// IFM compression needs the stripe to span the full width and depth.
		front.InputSource(0).SetFixGraphCompressionHint(graph.RequiredUncompressed)
		return nil
	}

	if linear.outputLocation == graph.LocationNone {
		exceptions.Panicf("pass: strategy selected without an output location")
	}
	tail := linear.workingNodes[len(linear.workingNodes)-1]
	useIntermediateCompression := opts.EnableIntermediateCompression &&
		tail.CompressionHint() == graph.PreferCompressed &&
		tail.Format() == graph.FormatNHWCB &&
		linear.outputLocation == graph.LocationDram &&
		linear.tensorConfig.Output.StripeShape[2] >= tail.Shape()[2] &&
		linear.tensorConfig.Output.StripeShape[3] >= tail.Shape()[3]

	// Commit: the probed allocator becomes the master, then everything that
	// does not outlive the pass is released again.
	*alloc = *linear.allocator
	alloc.Free(linear.tensorConfig.Weights.Offset)
	alloc.Free(linear.tensorConfig.PleCode.Offset)
	if firstNode.InputLocation(0) != graph.LocationSram {
		alloc.Free(linear.tensorConfig.Input.Offset)
	}
	if linear.outputLocation == graph.LocationDram {
		alloc.Free(linear.tensorConfig.Output.Offset)
	}

	p := newMcePlePass(caps, id, linear.workingNodes, linear.tensorConfig,
		linear.outputLocation, useIntermediateCompression, linear.algorithm,
		linear.tensorConfig.Output.Offset)
	klog.V(1).Infof("pass: #%d commits %d node(s), %s, block %dx%d, output in %s",
		id, len(p.nodes), p.tensorConfig.Strategy,
		p.tensorConfig.BlockWidth, p.tensorConfig.BlockHeight, linear.outputLocation)
	return p
}

func newMcePlePass(
	caps *hwcaps.Capabilities,
	id int,
	nodes []*graph.Node,
	tensorConfig TensorConfig,
	outputLocation graph.Location,
	useIntermediateCompression bool,
	algorithm graph.Algorithm,
	sramOffset uint32,
) *McePlePass {
	p := &McePlePass{
		caps:         caps,
		id:           id,
		nodes:        nodes,
		encoder:      weights.NewEncoder(),
		tensorConfig: tensorConfig,
		algorithm:    algorithm,
		sramOffset:   sramOffset,
	}
	for _, node := range nodes {
		node.SetPass(p)
		switch op := node.Op().(type) {
		case *graph.FormatConversionOp:
			if p.mce == nil {
				p.preConversions = append(p.preConversions, node)
			} else {
				p.postConversions = append(p.postConversions, node)
			}
		case *graph.ExtractSubtensorOp:
			if p.extractNode == nil {
				p.extractNode = node
			}
		case *graph.MceOp:
			if p.mce == nil {
				p.mceNode, p.mce = node, op
			}
		case *graph.McePostProcessOp:
			p.postProcessNodes = append(p.postProcessNodes, node)
		case *graph.FuseOnlyPleOp:
			p.pleNode, p.ple = node, op
		case *graph.RequantizeOp:
			p.requantizeNodes = append(p.requantizeNodes, node)
		default:
			exceptions.Panicf("pass: unexpected node %s in working set", node)
		}
	}

	tail := p.nodes[len(p.nodes)-1]
	tail.SetOutputSramOffset(sramOffset)
	tail.SetLocation(outputLocation)
	tail.SetCompressed(useIntermediateCompression)

	p.mce.Algorithm = algorithm
	return p
}

// PleOperation returns the PLE kernel this pass runs: passthrough unless a
// PLE node was fused.
func (p *McePlePass) PleOperation() cmdstream.PleOp {
	if p.ple != nil {
		return p.ple.Operation
	}
	return cmdstream.PleOpPassthrough
}

// outputQuantization is the quantisation the MCE stage must produce: the
// last fused requantize wins over the MCE node's own.
func (p *McePlePass) outputQuantization() graph.QuantizationInfo {
	if n := len(p.requantizeNodes); n > 0 {
		return p.requantizeNodes[n-1].Quantization()
	}
	return p.mceNode.Quantization()
}

// weightStripeSizeAndDepth derives the weight encoder's stripe parameters
// from the committed weight stripe shape.
func (p *McePlePass) weightStripeSizeAndDepth() (size uint32, depth uint32) {
	stripe := p.tensorConfig.Weights.StripeShape
	size = stripe.TotalSize()
	switch p.mce.Weights.Format {
	case graph.WeightsHWIO:
		depth = stripe[3]
	case graph.WeightsHWIM:
		depth = stripe[2] * stripe[3] / (p.mce.Stride.X * p.mce.Stride.Y)
	default:
		exceptions.Panicf("pass: weight format %s is neither HWIO nor HWIM", p.mce.Weights.Format)
	}
	return size, depth
}

func commandDataLocation(location graph.Location) cmdstream.DataLocation {
	if location == graph.LocationSram {
		return cmdstream.DataLocationSram
	}
	return cmdstream.DataLocationDram
}

// bufferSizeBytes is the DRAM footprint of a tensor in the given
// command-stream format.
func (p *McePlePass) bufferSizeBytes(shape shapes.TensorShape, format cmdstream.DataFormat) uint32 {
	if format != cmdstream.DataFormatNHWC {
		shape = roundToBricks(p.caps, shape)
	}
	return shape.TotalSize()
}

func commandStrategy(s Strategy) cmdstream.SramAllocationStrategy {
	switch s {
	case Strategy0:
		return cmdstream.AllocationStrategy0
	case Strategy1:
		return cmdstream.AllocationStrategy1
	case Strategy3:
		return cmdstream.AllocationStrategy3
	case Strategy4:
		return cmdstream.AllocationStrategy4
	case Strategy5:
		return cmdstream.AllocationStrategy5
	case Strategy6:
		return cmdstream.AllocationStrategy6
	case Strategy7:
		return cmdstream.AllocationStrategy7
	case StrategyFc:
		// The firmware keys off stripe and tile sizes, not the tag, so the
		// fully-connected scheme rides on strategy 1.
		return cmdstream.AllocationStrategy1
	}
	exceptions.Panicf("pass: unknown strategy %s", s)
	return 0
}

// applyRequantize folds a scale/zero-point change into the MCE stage's
// output rescale.
func applyRequantize(data *cmdstream.MceData, pre, post graph.QuantizationInfo) {
	mult, shift := cmdstream.CalculateRescaleMultiplierAndShift(pre.Scale / post.Scale)
	data.OutputRescaleMultiplier = mult
	data.OutputRescaleShift = shift
	data.OutputZeroPoint = int16(post.ZeroPoint)
}

// Generate emits this pass's McePle command, registering its buffers in
// buffers. Weight encoding is the only fallible step.
func (p *McePlePass) Generate(cs *cmdstream.Buffer, buffers BufferTable) error {
	mceInputShape := p.mceNode.InputShape(0)
	mceOutputShape := p.mceNode.Shape()
	front := p.nodes[0]
	tail := p.nodes[len(p.nodes)-1]
	outputShape := tail.Shape()
	inputLocation := front.InputSource(0).Location()
	outputLocation := tail.Location()

	var cmd cmdstream.McePle
	cmd.SramConfig.AllocationStrategy = commandStrategy(p.tensorConfig.Strategy)

	cmd.InputInfo.StripeShape = p.tensorConfig.Input.StripeShape
	cmd.InputInfo.TileSize = p.tensorConfig.Input.TileSize
	cmd.OutputInfo.StripeShape = p.tensorConfig.Output.StripeShape
	cmd.OutputInfo.TileSize = p.tensorConfig.Output.TileSize
	cmd.WeightInfo.StripeShape = p.tensorConfig.Weights.StripeShape
	cmd.WeightInfo.TileSize = p.tensorConfig.Weights.TileSize
	cmd.BlockConfig.Width = p.tensorConfig.BlockWidth
	cmd.BlockConfig.Height = p.tensorConfig.BlockHeight

	inputBufferId := front.InputSource(0).BufferId()
	quant := p.outputQuantization()

	stripeSize, stripeDepth := p.weightStripeSizeAndDepth()
	encoded, err := p.encoder.Encode(p.mce, stripeDepth, stripeSize, quant)
	if err != nil {
		return err
	}
	weightBufferId := buffers.AddDramConstant(encoded.Data)
	cmd.WeightMetadataBufferId = buffers.AddDramConstant(encoded.Metadata)

	cmd.InputInfo.DataType = cmdstream.DataTypeQAsymm8
	cmd.InputInfo.DataFormat = front.InputBufferFormat(0)
	cmd.InputInfo.TensorShape = mceInputShape
	cmd.InputInfo.SupertensorShape = front.InputShape(0)
	supertensorOffset := shapes.TensorShape{}
	if p.extractNode != nil {
		supertensorOffset = p.extractNode.Op().(*graph.ExtractSubtensorOp).SupertensorOffset
	}
	cmd.InputInfo.SupertensorOffset = supertensorOffset
	cmd.InputInfo.DramBufferId = inputBufferId
	cmd.InputInfo.ZeroPoint = uint8(front.InputQuantization(0).ZeroPoint)
	cmd.InputInfo.DataLocation = commandDataLocation(inputLocation)

	cmd.WeightInfo.DataType = cmdstream.DataTypeQAsymm8
	cmd.WeightInfo.DataFormat = cmdstream.DataFormatWeightStream
	weightsShape := p.mce.Weights.Dimensions
	if p.mce.Algorithm == graph.AlgorithmWinograd {
		if p.mce.Weights.Format == graph.WeightsHWIM {
			exceptions.Panicf("pass: Winograd committed on a depthwise convolution")
		}
		weightsShape = winogradWeightShape(p.caps, weightsShape)
	}
	cmd.WeightInfo.TensorShape = weightsShape
	cmd.WeightInfo.SupertensorShape = weightsShape
	cmd.WeightInfo.SupertensorOffset = shapes.TensorShape{}
	cmd.WeightInfo.DramBufferId = weightBufferId
	cmd.WeightInfo.ZeroPoint = uint8(p.mce.Weights.Quantization.ZeroPoint)

	cmd.OutputInfo.DataType = cmdstream.DataTypeQAsymm8
	cmd.OutputInfo.DataFormat = tail.BufferFormat()
	cmd.OutputInfo.TensorShape = outputShape
	cmd.OutputInfo.SupertensorShape = outputShape
	cmd.OutputInfo.SupertensorOffset = shapes.TensorShape{}
	cmd.OutputInfo.ZeroPoint = uint8(tail.Quantization().ZeroPoint)
	cmd.OutputInfo.DataLocation = commandDataLocation(outputLocation)

	inputSramOffset := p.tensorConfig.Input.Offset
	if inputLocation == graph.LocationSram {
		inputSramOffset = buffers.SramOffset(inputBufferId)
	}

	outputSize := p.bufferSizeBytes(outputShape, tail.BufferFormat())
	var outputBufferId uint32
	if outputLocation == graph.LocationSram {
		outputBufferId = buffers.AddSram(outputSize, p.tensorConfig.Output.Offset)
	} else {
		outputBufferId = buffers.AddDram(outputSize)
	}
	tail.SetBufferId(outputBufferId)
	cmd.OutputInfo.DramBufferId = outputBufferId

	outputStripeDepth := p.tensorConfig.Output.StripeShape[3]
	if p.PleOperation() == cmdstream.PleOpInterleave2x2Stride2 {
		outputStripeDepth /= 4
	}
	mceOutputStripe := shapes.TensorShape{
		p.tensorConfig.Input.StripeShape[0],
		shapes.RoundUpToMultiple(
			p.tensorConfig.Input.StripeShape[1]*mceOutputShape[1]/mceInputShape[1],
			p.caps.BrickGroupShape[1]),
		shapes.RoundUpToMultiple(
			p.tensorConfig.Input.StripeShape[2]*mceOutputShape[2]/mceInputShape[2],
			p.caps.BrickGroupShape[2]),
		outputStripeDepth,
	}

	cmd.MceData = p.mce.MceData()
	if p.algorithm == graph.AlgorithmWinograd {
		cmd.MceData.Algorithm = cmdstream.MceAlgorithmWinograd
	}
	cmd.MceData.ActivationMin = 0
	cmd.MceData.ActivationMax = 255
	if p.mce.UpscaleFactor > 2 {
		exceptions.Panicf("pass: upscale factor %d is not supported", p.mce.UpscaleFactor)
	}
	if p.mce.UpscaleFactor == 2 {
		cmd.MceData.UpsampleMode = cmdstream.UpsampleTranspose
	}
	cmd.MceData.UninterleavedInputShape = p.mce.UninterleavedInputShape
	cmd.MceData.OutputShape = mceOutputShape
	cmd.MceData.OutputStripeShape = mceOutputStripe
	cmd.MceData.OutputZeroPoint = int16(quant.ZeroPoint)

	preRequant := p.mceNode.Quantization()
	for _, node := range p.postProcessNodes {
		node.Op().(*graph.McePostProcessOp).Apply(&cmd.MceData)
		preRequant = node.Quantization()
	}
	for _, node := range p.requantizeNodes {
		applyRequantize(&cmd.MceData, preRequant, node.Quantization())
		preRequant = node.Quantization()
	}

	if p.PleOperation() == cmdstream.PleOpSigmoid {
		applySigmoidBounds(&cmd.MceData, quant)
	}

	cmd.InputInfo.SramOffset = inputSramOffset
	cmd.OutputInfo.SramOffset = p.tensorConfig.Output.Offset
	cmd.WeightInfo.SramOffset = p.tensorConfig.Weights.Offset

	cmd.PleData.CeSram = p.tensorConfig.PleCode.Offset
	cmd.PleData.PleSram = 0
	cmd.PleData.Operation = p.PleOperation()

	cs.EmplaceBack(cmd)
	return nil
}

// applySigmoidBounds programs the MCE rescale so its output lands in the
// fixed-point domain the Sigmoid PLE kernel expects, and clamps the
// activation bounds to the representable band around the zero point.
func applySigmoidBounds(data *cmdstream.MceData, quant graph.QuantizationInfo) {
	const log2e = 1.4426950408889634

	rescaleFactor := quant.Scale * (log2e * 256.)
	mult, shift := cmdstream.CalculateRescaleMultiplierAndShift(rescaleFactor)

	absMax := int(math.Ceil(math.Ldexp(1., 15+int(shift))/float64(mult))) - 1
	if absMax == 0 {
		absMax = 1
		mult = math.MaxInt16
		shift = 0
	}

	zeroPoint := int(quant.ZeroPoint)
	lowerBound := max(int(data.ActivationMin), zeroPoint-absMax)
	upperBound := max(lowerBound, min(int(data.ActivationMax), zeroPoint+absMax))

	data.ActivationMin = uint8(lowerBound)
	data.ActivationMax = uint8(upperBound)
	data.OutputRescaleMultiplier = mult
	data.OutputRescaleShift = shift
}
