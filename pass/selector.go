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

	"k8s.io/klog/v2"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/sram"
	"github.com/accelplan/accelplan/types/shapes"
)

// validStrategies narrows the allowed strategy list for this MCE operation.
// Fully-connected operations use their dedicated scheme exclusively.
func validStrategies(mce *graph.MceOp, allowed []Strategy) []Strategy {
	if mce.Operation == cmdstream.MceOperationFullyConnected {
		return []Strategy{StrategyFc}
	}
	return allowed
}

// selectionDepthMax returns the output stripe depth cap. Only the MaxPool
// 3x3 stride 2 PLE kernel is depth-limited; it processes one OFM slot per
// SRAM (depthwise) or one per OFM generator otherwise.
func selectionDepthMax(caps *hwcaps.Capabilities, mce *graph.MceOp, ple *graph.FuseOnlyPleOp) uint32 {
	if ple == nil || ple.Operation != cmdstream.PleOpMaxPool3x3Stride2 {
		return math.MaxUint32
	}
	if mce.Operation == cmdstream.MceOperationDepthwiseConvolution {
		return caps.NumberOfSrams
	}
	return caps.NumberOfOfm()
}

// winogradWeightShape is the effective weight shape used for SRAM sizing
// under Winograd, with the kernel extents rounded to the wide-kernel
// decomposition the algorithm runs on.
func winogradWeightShape(caps *hwcaps.Capabilities, w shapes.TensorShape) shapes.TensorShape {
	w[0], w[1] = wideKernelDims(caps, w[0], w[1])
	return w
}

// chooseAndSetupStrategy tries every (strategy, block config) pair in order
// against alloc and commits the first that fits, filling cfg. It returns
// false, with alloc untouched, when no pair fits.
func chooseAndSetupStrategy(
	caps *hwcaps.Capabilities,
	alloc *sram.Allocator,
	strategies []Strategy,
	blockConfigs []cmdstream.BlockConfig,
	cfg *TensorConfig,
	mceInputShape shapes.TensorShape,
	outputShape shapes.TensorShape,
	weightsFormat graph.WeightsFormat,
	weightsShape shapes.TensorShape,
	shapeMultiplier shapes.ShapeMultiplier,
	inputInSram bool,
	inputSramOffset uint32,
	algorithm graph.Algorithm,
	depthMax uint32,
) bool {
	args := &setupArgs{
		caps:            caps,
		inputShape:      mceInputShape,
		outputShape:     outputShape,
		weightsFormat:   weightsFormat,
		weightsShape:    weightsShape,
		shapeMultiplier: shapeMultiplier,
		inputInSram:     inputInSram,
		inputSramOffset: inputSramOffset,
		algorithm:       algorithm,
		depthMax:        depthMax,
	}
	if algorithm == graph.AlgorithmWinograd {
		args.weightsShape = winogradWeightShape(caps, args.weightsShape)
	}
	for _, strategy := range strategies {
		for _, blockConfig := range blockConfigs {
			args.blockConfig = blockConfig
			if strategy.TrySetup(cfg, alloc, args) {
				klog.V(2).Infof("pass: %s fits with block %dx%d",
					strategy, blockConfig.Width, blockConfig.Height)
				return true
			}
		}
	}
	return false
}
