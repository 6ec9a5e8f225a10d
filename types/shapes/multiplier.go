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

package shapes

import "github.com/gomlx/exceptions"

// Fraction is an exact rational multiplier applied to a shape axis.
type Fraction struct {
	Num, Denom uint32
}

// Apply multiplies value by the fraction. The product must be exact: a PLE
// kernel never produces fractional extents.
func (f Fraction) Apply(value uint32) uint32 {
	if f.Denom == 0 {
		exceptions.Panicf("shapes: Fraction %d/0 applied to %d", f.Num, value)
	}
	product := uint64(value) * uint64(f.Num)
	if product%uint64(f.Denom) != 0 {
		exceptions.Panicf("shapes: %d * %d/%d is not integral", value, f.Num, f.Denom)
	}
	return uint32(product / uint64(f.Denom))
}

// Mul composes two fractions.
func (f Fraction) Mul(other Fraction) Fraction {
	return Fraction{Num: f.Num * other.Num, Denom: f.Denom * other.Denom}
}

// ShapeMultiplier describes how an operation reshapes its input on the
// height, width and channel axes. A MaxPool 2x2 stride 2 has H and W of 1/2;
// an Interleave 2x2 has H and W of 1/2 and C of 4.
type ShapeMultiplier struct {
	H, W, C Fraction
}

// Identity is the no-op multiplier.
var Identity = ShapeMultiplier{
	H: Fraction{1, 1},
	W: Fraction{1, 1},
	C: Fraction{1, 1},
}

// Mul composes two shape multipliers axis-wise.
func (m ShapeMultiplier) Mul(other ShapeMultiplier) ShapeMultiplier {
	return ShapeMultiplier{
		H: m.H.Mul(other.H),
		W: m.W.Mul(other.W),
		C: m.C.Mul(other.C),
	}
}

// Apply returns shape with the multiplier applied to the H, W and C axes.
func (m ShapeMultiplier) Apply(shape TensorShape) TensorShape {
	return TensorShape{
		shape[0],
		m.H.Apply(shape[1]),
		m.W.Apply(shape[2]),
		m.C.Apply(shape[3]),
	}
}
