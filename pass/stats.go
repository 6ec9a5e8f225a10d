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
	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/types/shapes"
)

// MceStats is the MCE stage's estimated cost.
type MceStats struct {
	// CycleCount is the estimated MCE cycle count for the whole pass.
	CycleCount uint32

	// Operations counts multiply and accumulate operations.
	Operations uint32
}

func mceCycleCountWinograd(caps *hwcaps.Capabilities, inputShape, outputShape shapes.TensorShape, weightsHeight, weightsWidth uint32) uint32 {
	ifmConsumed := caps.IfmPerEngine * caps.NumberOfEngines
	ofmProduced := caps.OfmPerEngine * caps.NumberOfEngines

	winogradOutputH := caps.OutputSizePerWinograd2D
	if weightsHeight == 1 {
		winogradOutputH = caps.OutputSizePerWinograd1D
	}
	winogradOutputW := caps.OutputSizePerWinograd2D
	if weightsWidth == 1 {
		winogradOutputW = caps.OutputSizePerWinograd1D
	}

	numTotIfms := shapes.RoundUpToMultiple(inputShape[3], ifmConsumed)
	numWinogradOutputs := shapes.DivRoundUp(outputShape[2], winogradOutputW) *
		shapes.DivRoundUp(outputShape[1], winogradOutputH)

	k := caps.WideKernelSize
	var numMacsPerElemHW uint32
	if weightsHeight == 1 || weightsWidth == 1 {
		numMacsPerElemHW = caps.MacsPerWinograd1D * shapes.DivRoundUp(weightsWidth*weightsHeight, k)
	} else {
		numMacsPerElemHW = caps.MacsPerWinograd2D *
			shapes.DivRoundUp(weightsWidth, k) * shapes.DivRoundUp(weightsHeight, k)
	}

	numMacOps := numWinogradOutputs * numMacsPerElemHW
	numCyclesPerOfm := (numTotIfms * numMacOps) / (ifmConsumed * caps.MacUnitsPerEngine)
	return numCyclesPerOfm * shapes.DivRoundUp(outputShape[3], ofmProduced)
}

func mceCycleCountDirect(caps *hwcaps.Capabilities, mce *mceStatsInput, inputShape, outputShape shapes.TensorShape, weightsHeight, weightsWidth uint32) uint32 {
	numKernelElements := weightsWidth * weightsHeight
	ifmConsumed := caps.IfmPerEngine * caps.NumberOfEngines
	ofmProduced := caps.OfmPerEngine * caps.NumberOfEngines
	halfPatchH := caps.PatchShape[1]
	halfPatchW := shapes.DivRoundUp(caps.PatchShape[2], 2)
	numActualIfms := inputShape[3] / (mce.strideX * mce.strideY)

	numIfms := numActualIfms
	numOfms := outputShape[3]
	if mce.operation == cmdstream.MceOperationDepthwiseConvolution {
		numIfms = ifmConsumed
		numOfms = numActualIfms
	}

	numTotIfms := shapes.RoundUpToMultiple(numIfms, ifmConsumed)
	numOutputElements := shapes.RoundUpToMultiple(outputShape[2], halfPatchW) *
		shapes.RoundUpToMultiple(outputShape[1], halfPatchH)

	numMacOps := numOutputElements * numKernelElements
	numCyclesPerOfm := (numTotIfms * numMacOps) / (ifmConsumed * caps.MacUnitsPerEngine)
	return numCyclesPerOfm * shapes.DivRoundUp(numOfms, ofmProduced)
}

func numOperations(mce *mceStatsInput, inputShape, outputShape shapes.TensorShape, weightsHeight, weightsWidth uint32) uint32 {
	numKernelElements := weightsWidth * weightsHeight
	// A multiply and an accumulate per kernel element.
	numOpsPerElement := numKernelElements + numKernelElements
	numActualIfms := shapes.DivRoundUp(inputShape[3], mce.strideX*mce.strideY)
	numInputElements := inputShape[1] * inputShape[2]
	numOpsPerIfm := numInputElements * numOpsPerElement

	numIfms := numActualIfms
	numOfms := outputShape[3]
	if mce.operation == cmdstream.MceOperationDepthwiseConvolution {
		numIfms = 1
		numOfms = numActualIfms
	}
	return numIfms * numOpsPerIfm * numOfms
}

type mceStatsInput struct {
	operation        cmdstream.MceOperation
	strideX, strideY uint32
}

// MceStats estimates the MCE cost of this pass over the given shapes.
func (p *McePlePass) MceStats(inputShape, outputShape, weightsShape shapes.TensorShape) MceStats {
	in := &mceStatsInput{
		operation: p.mce.Operation,
		strideX:   p.mce.Stride.X,
		strideY:   p.mce.Stride.Y,
	}
	weightsHeight := weightsShape[0]
	weightsWidth := weightsShape[1]

	var cycles uint32
	if p.algorithm == graph.AlgorithmWinograd {
		cycles = mceCycleCountWinograd(p.caps, inputShape, outputShape, weightsHeight, weightsWidth)
	} else {
		cycles = mceCycleCountDirect(p.caps, in, inputShape, outputShape, weightsHeight, weightsWidth)
	}
	return MceStats{
		CycleCount: cycles,
		Operations: numOperations(in, inputShape, outputShape, weightsHeight, weightsWidth),
	}
}
