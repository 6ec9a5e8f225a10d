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

// Package shapes defines TensorShape and the integer shape arithmetic used
// throughout the planner.
//
// The accelerator operates on 4-dimensional quantised tensors. Activation
// tensors are always laid out as NHWC (batch, height, width, channels) and
// weight tensors as HWIO (height, width, input channels, output channels) or
// HWIM for depthwise (height, width, input channels, channel multiplier).
// TensorShape is used for both: axis meaning depends on context.
//
// All shape arithmetic is unsigned 32-bit. Helpers that could overflow at
// boundary values (RoundUpToMultiple, TotalSize) check and panic rather than
// silently wrapping: a wrapped size feeding the SRAM allocator would turn
// into a bogus "fits" answer.
package shapes

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
)

// TensorShape is a 4-axis shape: NHWC for activations, HWIO/HWIM for weights.
type TensorShape [4]uint32

// String implements fmt.Stringer.
func (s TensorShape) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d]", s[0], s[1], s[2], s[3])
}

// Batch, Height, Width and Channels read the NHWC axes by name.
func (s TensorShape) Batch() uint32    { return s[0] }
func (s TensorShape) Height() uint32   { return s[1] }
func (s TensorShape) Width() uint32    { return s[2] }
func (s TensorShape) Channels() uint32 { return s[3] }

// TotalSize returns the number of elements in the shape.
// It panics if the product overflows uint32.
func (s TensorShape) TotalSize() uint32 {
	size := uint64(s[0]) * uint64(s[1]) * uint64(s[2]) * uint64(s[3])
	if size > math.MaxUint32 {
		exceptions.Panicf("shapes: size of %s overflows uint32", s)
	}
	return uint32(size)
}

// DivRoundUp returns numerator/denominator rounded towards +inf.
// It panics on a zero denominator.
func DivRoundUp(numerator, denominator uint32) uint32 {
	if denominator == 0 {
		exceptions.Panicf("shapes: DivRoundUp(%d, 0): division by zero", numerator)
	}
	// (numerator + denominator - 1) / denominator would overflow near
	// MaxUint32, so divide first.
	q := numerator / denominator
	if numerator%denominator != 0 {
		q++
	}
	return q
}

// RoundUpToMultiple rounds value up to the nearest multiple of m.
// It panics on m == 0 or if the result overflows uint32.
func RoundUpToMultiple(value, m uint32) uint32 {
	if m == 0 {
		exceptions.Panicf("shapes: RoundUpToMultiple(%d, 0): zero multiple", value)
	}
	rounded := uint64(DivRoundUp(value, m)) * uint64(m)
	if rounded > math.MaxUint32 {
		exceptions.Panicf("shapes: RoundUpToMultiple(%d, %d) overflows uint32", value, m)
	}
	return uint32(rounded)
}

// MinU32 returns the smaller of a and b.
func MinU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// MaxU32 returns the larger of a and b.
func MaxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
