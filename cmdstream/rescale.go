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

package cmdstream

import (
	"math"

	"github.com/gomlx/exceptions"
)

// CalculateRescaleMultiplierAndShift approximates factor as mult/2^shift with
// mult in [2^15, 2^16). The hardware rescale unit multiplies by a 16-bit
// integer and shifts right.
func CalculateRescaleMultiplierAndShift(factor float64) (mult uint16, shift uint16) {
	if factor <= 0 || math.IsInf(factor, 0) || math.IsNaN(factor) {
		exceptions.Panicf("cmdstream: cannot rescale by %v", factor)
	}
	frac, exp := math.Frexp(factor) // frac in [0.5, 1)
	q := int64(math.Round(math.Ldexp(frac, 16)))
	if q == 1<<16 {
		// Rounding carried into bit 16.
		q >>= 1
		exp++
	}
	s := 16 - exp
	if s < 0 {
		exceptions.Panicf("cmdstream: rescale factor %v too large for 16-bit multiplier", factor)
	}
	if s > math.MaxUint16 {
		s = math.MaxUint16
	}
	return uint16(q), uint16(s)
}
