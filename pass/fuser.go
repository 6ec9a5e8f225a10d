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
	"k8s.io/klog/v2"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/sram"
	"github.com/accelplan/accelplan/types/xslices"
)

// linearNodesOutput is the running best of the fuser's forward walk: the
// longest prefix of the linear chain for which a strategy existed, plus the
// state needed to either commit it or derive a hint.
type linearNodesOutput struct {
	workingNodes []*graph.Node

	mceNode *graph.Node
	mce     *graph.MceOp

	strategySelected     bool
	allocator            *sram.Allocator
	tensorConfig         TensorConfig
	validBlockConfigs    []cmdstream.BlockConfig
	algorithm            graph.Algorithm
	requiredOutputFormat graph.DataFormat
	outputLocation       graph.Location
}

// findLinearWorkingNodes walks the single-consumer chain starting at
// firstNode, admitting nodes into the fusion set under the typed rules
// below, and re-runs strategy selection after every admission. A later,
// longer set may succeed after a shorter one failed; the running best keeps
// the longest success.
func findLinearWorkingNodes(
	firstNode *graph.Node,
	master *sram.Allocator,
	caps *hwcaps.Capabilities,
	opts *Options,
	allowedStrategies []Strategy,
	allowedBlockConfigs []cmdstream.BlockConfig,
) linearNodesOutput {
	current := firstNode
	var extract *graph.ExtractSubtensorOp
	var mceNode *graph.Node
	var mce *graph.MceOp
	var ple *graph.FuseOnlyPleOp
	foundPostConversions := false
	foundRequantizes := false
	var currentSet []*graph.Node
	requiredOutputFormat := graph.FormatNone

	var res linearNodesOutput
	for current != nil {
		admitted := false
		switch op := current.Op().(type) {
		case *graph.FormatConversionOp:
			if mce == nil {
				admitted = true
			} else {
				// Merging a conversion that breaks an already-required
				// output format would undo the strategy we just found.
				if requiredOutputFormat == graph.FormatNone || current.Format() == requiredOutputFormat {
					foundPostConversions = true
					admitted = true
				}
			}
		case *graph.ExtractSubtensorOp:
			if mce == nil && extract == nil {
				extract = op
				admitted = true
			}
		case *graph.MceOp:
			if mce == nil {
				mceNode, mce = current, op
				admitted = true
			}
		case *graph.McePostProcessOp:
			if mce != nil && ple == nil && !foundPostConversions && !foundRequantizes {
				admitted = true
			}
		case *graph.FuseOnlyPleOp:
			if mce != nil && ple == nil && !foundPostConversions {
				ple = op
				admitted = true
			}
		case *graph.RequantizeOp:
			// The requantisation is folded into the MCE stage, which runs
			// before the PLE; a requantize behind the PLE is only mergeable
			// when the PLE kernel commutes with it.
			if mce != nil && (ple == nil || ple.AgnosticToRequantisation) {
				foundRequantizes = true
				admitted = true
			}
		}
		if !admitted {
			break
		}
		currentSet = append(currentSet, current)

		requiredOutputFormat = graph.FormatNone
		if mce != nil {
			first := currentSet[0]
			last := currentSet[len(currentSet)-1]
			inputInSram := first.InputLocation(0) == graph.LocationSram
			inputSramOffset := first.InputSource(0).OutputSramOffset()

			multiplier := mce.ShapeMultiplier()
			if ple != nil {
				multiplier = multiplier.Mul(ple.Multiplier)
			}

			algorithm := chooseAlgorithm(caps, opts, mce)
			res.algorithm = algorithm

			validConfigs := filterAndSortBlockConfigs(mce, ple, allowedBlockConfigs, caps, last.Shape(), algorithm)
			strategies := validStrategies(mce, allowedStrategies)
			depthMax := selectionDepthMax(caps, mce, ple)

			currentAlloc := master.Clone()
			var cfg TensorConfig
			selected := len(validConfigs) > 0 && chooseAndSetupStrategy(
				caps, currentAlloc, strategies, validConfigs, &cfg,
				mceNode.InputShape(0), last.Shape(),
				mce.Weights.Format, mce.Weights.Dimensions,
				multiplier, inputInSram, inputSramOffset, algorithm, depthMax)
			if selected {
				if (cfg.Output.StripeShape[3] < last.Shape()[3] || cfg.Output.StripeShape[2] < last.Shape()[2]) &&
					mce.Operation != cmdstream.MceOperationFullyConnected {
					// The firmware cannot write NHWC when OFM stripes are
					// not contiguous in DRAM.
					requiredOutputFormat = graph.FormatNHWCB
				} else if mce.Operation == cmdstream.MceOperationFullyConnected {
					requiredOutputFormat = graph.FormatNHWC
				}

				if cfg.Strategy == Strategy3 &&
					last.Format() == graph.FormatNHWCB &&
					last.LocationHint() != graph.RequireDram {
					// The whole output is already resident; keep it there.
					requiredOutputFormat = graph.FormatNHWCB
					res.outputLocation = graph.LocationSram
				} else {
					res.outputLocation = graph.LocationDram
				}

				res.workingNodes = xslices.Copy(currentSet)
				res.allocator = currentAlloc
				res.tensorConfig = cfg
				res.validBlockConfigs = validConfigs
				res.requiredOutputFormat = requiredOutputFormat
				res.strategySelected = true
				klog.V(2).Infof("pass: %d node(s) fused under %s", len(currentSet), cfg.Strategy)
			}
			res.mceNode, res.mce = mceNode, mce
		}

		current = graph.NextLinearNode(current)
	}
	return res
}
