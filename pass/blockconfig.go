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
	"slices"
	"sort"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/types/shapes"
	"github.com/accelplan/accelplan/types/xslices"
)

// DefaultBlockConfigs is the full menu of MCE block sizes, tried in this
// order when the direct algorithm is used.
var DefaultBlockConfigs = []cmdstream.BlockConfig{
	{Width: 16, Height: 16},
	{Width: 32, Height: 8},
	{Width: 8, Height: 32},
	{Width: 16, Height: 8},
	{Width: 8, Height: 16},
	{Width: 8, Height: 8},
}

// filterAndSortBlockConfigs narrows allowed down to the block configs legal
// for this MCE/PLE pairing and, under Winograd, orders them best-first.
//
// Winograd halves (2D) or keeps (1D) the accumulator budget per output
// element, capping the block area. Among capped configs the sort prefers, for
// outputs that fit entirely in a block, the smallest such block; otherwise it
// maximises the partial blocks at the edge of the OFM XY plane, e.g. on a
// 17x17 output a 32x8 block scores 17%32+17%8 = 18 against 16x16's 2.
func filterAndSortBlockConfigs(
	mce *graph.MceOp,
	ple *graph.FuseOnlyPleOp,
	allowed []cmdstream.BlockConfig,
	caps *hwcaps.Capabilities,
	outputShape shapes.TensorShape,
	algorithm graph.Algorithm,
) []cmdstream.BlockConfig {
	weightsHeight := mce.Weights.Dimensions[0]
	weightsWidth := mce.Weights.Dimensions[1]

	res := slices.Clone(allowed)

	if algorithm == graph.AlgorithmWinograd {
		winograd2d := weightsHeight > 1 && weightsWidth > 1
		divisor := uint32(2)
		if winograd2d {
			divisor = 4
		}
		maxAllowedWxH := caps.TotalAccumulatorsPerEngine / divisor
		res = xslices.Filter(res, func(bc cmdstream.BlockConfig) bool {
			return bc.Width*bc.Height <= maxAllowedWxH
		})

		sort.SliceStable(res, func(i, j int) bool {
			bc1, bc2 := res[i], res[j]
			fits1 := outputShape.Height() <= bc1.Height && outputShape.Width() <= bc1.Width
			fits2 := outputShape.Height() <= bc2.Height && outputShape.Width() <= bc2.Width
			switch {
			case fits1 && fits2:
				return bc1.Width*bc1.Height < bc2.Width*bc2.Height
			case !fits1 && !fits2:
				rem1 := outputShape.Height()%bc1.Height + outputShape.Width()%bc1.Width
				rem2 := outputShape.Height()%bc2.Height + outputShape.Width()%bc2.Width
				if rem1 == rem2 {
					if weightsWidth > weightsHeight {
						return bc1.Width > bc2.Width ||
							(bc1.Width == bc2.Width && bc1.Height > bc2.Height)
					}
					return bc1.Height > bc2.Height ||
						(bc1.Height == bc2.Height && bc1.Width > bc2.Width)
				}
				return rem1 > rem2
			default:
				return fits1
			}
		})
	}

	if mce.Operation == cmdstream.MceOperationFullyConnected {
		res = xslices.Filter(res, func(bc cmdstream.BlockConfig) bool {
			return bc == cmdstream.BlockConfig{Width: 8, Height: 8}
		})
	}

	if ple != nil {
		var allowedForPle []cmdstream.BlockConfig
		switch ple.Operation {
		case cmdstream.PleOpInterleave2x2Stride2:
			allowedForPle = []cmdstream.BlockConfig{{Width: 16, Height: 16}}
		case cmdstream.PleOpMaxPool2x2Stride2:
			allowedForPle = []cmdstream.BlockConfig{
				{Width: 16, Height: 16}, {Width: 32, Height: 8}, {Width: 8, Height: 8}}
		case cmdstream.PleOpMeanXY8x8:
			allowedForPle = []cmdstream.BlockConfig{{Width: 8, Height: 8}}
		case cmdstream.PleOpMaxPool3x3Stride2:
			allowedForPle = []cmdstream.BlockConfig{
				{Width: 32, Height: 8}, {Width: 8, Height: 8}}
		}
		if allowedForPle != nil {
			res = xslices.Filter(res, func(bc cmdstream.BlockConfig) bool {
				return slices.Contains(allowedForPle, bc)
			})
		}
	}

	return res
}
