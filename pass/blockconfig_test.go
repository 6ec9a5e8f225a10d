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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/types/shapes"
)

func bc(w, h uint32) cmdstream.BlockConfig {
	return cmdstream.BlockConfig{Width: w, Height: h}
}

func TestBlockConfigsDirectKeepsOrder(t *testing.T) {
	caps := hwcaps.Default()
	got := filterAndSortBlockConfigs(convOp(3, 3), nil, DefaultBlockConfigs, caps,
		shapes.TensorShape{1, 17, 17, 16}, graph.AlgorithmDirect)
	assert.Equal(t, DefaultBlockConfigs, got)
}

func TestBlockConfigsWinogradAccumulatorCap(t *testing.T) {
	// 512 accumulators and a 2D kernel cap the block area at 128.
	caps := hwcaps.Default()
	got := filterAndSortBlockConfigs(convOp(3, 3), nil, DefaultBlockConfigs, caps,
		shapes.TensorShape{1, 17, 17, 16}, graph.AlgorithmWinograd)
	assert.Equal(t, []cmdstream.BlockConfig{bc(8, 16), bc(16, 8), bc(8, 8)}, got)
}

func TestBlockConfigsWinogradSortPrefersPartialBlocks(t *testing.T) {
	caps := hwcaps.Default()
	caps.TotalAccumulatorsPerEngine = 2048

	// On a 17x17 output nothing fits; 32x8 and 8x32 leave the largest partial
	// blocks (17%8 + 17%32 = 18 against 16x16's 2) and sort first.
	got := filterAndSortBlockConfigs(convOp(3, 3), nil, DefaultBlockConfigs, caps,
		shapes.TensorShape{1, 17, 17, 16}, graph.AlgorithmWinograd)
	want := []cmdstream.BlockConfig{
		bc(8, 32), bc(32, 8), bc(16, 16), bc(8, 16), bc(16, 8), bc(8, 8),
	}
	assert.Equal(t, want, got)
}

func TestBlockConfigsWinogradSortPrefersSmallestFitting(t *testing.T) {
	caps := hwcaps.Default()
	caps.TotalAccumulatorsPerEngine = 2048

	// An 8x8 output fits every block; smaller areas sort first.
	got := filterAndSortBlockConfigs(convOp(3, 3), nil, DefaultBlockConfigs, caps,
		shapes.TensorShape{1, 8, 8, 16}, graph.AlgorithmWinograd)
	want := []cmdstream.BlockConfig{
		bc(8, 8), bc(16, 8), bc(8, 16), bc(16, 16), bc(32, 8), bc(8, 32),
	}
	assert.Equal(t, want, got)
}

func TestBlockConfigsFullyConnected(t *testing.T) {
	caps := hwcaps.Default()
	fc := convOp(1, 1)
	fc.Operation = cmdstream.MceOperationFullyConnected
	got := filterAndSortBlockConfigs(fc, nil, DefaultBlockConfigs, caps,
		shapes.TensorShape{1, 1, 1, 1024}, graph.AlgorithmDirect)
	assert.Equal(t, []cmdstream.BlockConfig{bc(8, 8)}, got)
}

func TestBlockConfigsPleRestrictions(t *testing.T) {
	caps := hwcaps.Default()
	out := shapes.TensorShape{1, 16, 16, 16}
	mce := convOp(3, 3)

	tests := []struct {
		op   cmdstream.PleOp
		want []cmdstream.BlockConfig
	}{
		{cmdstream.PleOpInterleave2x2Stride2, []cmdstream.BlockConfig{bc(16, 16)}},
		{cmdstream.PleOpMaxPool2x2Stride2, []cmdstream.BlockConfig{bc(16, 16), bc(32, 8), bc(8, 8)}},
		{cmdstream.PleOpMeanXY8x8, []cmdstream.BlockConfig{bc(8, 8)}},
		{cmdstream.PleOpMaxPool3x3Stride2, []cmdstream.BlockConfig{bc(32, 8), bc(8, 8)}},
	}
	for _, test := range tests {
		ple := &graph.FuseOnlyPleOp{Operation: test.op, Multiplier: shapes.Identity}
		got := filterAndSortBlockConfigs(mce, ple, DefaultBlockConfigs, caps, out, graph.AlgorithmDirect)
		assert.Equal(t, test.want, got, "ple=%s", test.op)
	}
}
