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

package cmdstream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/accelplan/accelplan/cmdstream"
)

func TestRescaleMultiplierAndShift(t *testing.T) {
	tests := []struct {
		factor    float64
		wantMult  uint16
		wantShift uint16
	}{
		{1.0, 32768, 15},
		{0.5, 32768, 16},
		{2.0, 32768, 14},
		{0.75, 49152, 16},
	}
	for _, test := range tests {
		mult, shift := cmdstream.CalculateRescaleMultiplierAndShift(test.factor)
		assert.Equal(t, test.wantMult, mult, "factor=%v", test.factor)
		assert.Equal(t, test.wantShift, shift, "factor=%v", test.factor)
	}
}

func TestRescaleNormalized(t *testing.T) {
	// The multiplier always lands in [2^15, 2^16).
	for _, factor := range []float64{0.001, 0.3, 1.7, 123.456, 30000} {
		mult, _ := cmdstream.CalculateRescaleMultiplierAndShift(factor)
		assert.GreaterOrEqual(t, mult, uint16(32768), "factor=%v", factor)
	}
}

func TestRescaleInvalidFactorPanics(t *testing.T) {
	assert.Panics(t, func() { cmdstream.CalculateRescaleMultiplierAndShift(0) })
	assert.Panics(t, func() { cmdstream.CalculateRescaleMultiplierAndShift(-1) })
	// Beyond what a 16-bit multiplier and right shift can express.
	assert.Panics(t, func() { cmdstream.CalculateRescaleMultiplierAndShift(1 << 17) })
}
