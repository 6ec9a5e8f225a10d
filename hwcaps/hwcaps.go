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

// Package hwcaps describes the fixed-function accelerator variant being
// compiled for.
//
// Capabilities is read-only configuration: the planner consults it for engine
// counts, accumulator budgets, SRAM size and the Winograd cost-model
// constants, but never mutates it. One value is shared by a whole compile.
package hwcaps

import "github.com/accelplan/accelplan/types/shapes"

// Capabilities holds the hardware parameters of one accelerator variant.
type Capabilities struct {
	NumberOfEngines uint32
	IfmPerEngine    uint32
	OfmPerEngine    uint32
	NumberOfSrams   uint32

	MacUnitsPerEngine          uint32
	TotalAccumulatorsPerEngine uint32

	// PatchShape is the smallest unit the MCE writes; BrickGroupShape is the
	// NHWCB packing granule.
	PatchShape      shapes.TensorShape
	BrickGroupShape shapes.TensorShape

	// Winograd cost-model constants: output elements and MAC operations per
	// Winograd patch, for the 1D and 2D transforms, and the sub-kernel size
	// wide kernels are decomposed into.
	OutputSizePerWinograd1D uint32
	OutputSizePerWinograd2D uint32
	MacsPerWinograd1D       uint32
	MacsPerWinograd2D       uint32
	WideKernelSize          uint32

	// SramSize is the total on-chip SRAM in bytes available to the planner.
	SramSize uint32

	// PleCodeSize is the SRAM reservation for the PLE kernel code of a pass.
	PleCodeSize uint32
}

// NumberOfOfm returns the number of OFMs the variant can produce in parallel.
func (c *Capabilities) NumberOfOfm() uint32 {
	return c.OfmPerEngine * c.NumberOfEngines
}

// NumberOfIfm returns the number of IFMs the variant consumes in parallel.
func (c *Capabilities) NumberOfIfm() uint32 {
	return c.IfmPerEngine * c.NumberOfEngines
}

// Default returns the capabilities of the reference 8-engine variant.
func Default() *Capabilities {
	return &Capabilities{
		NumberOfEngines:            8,
		IfmPerEngine:               2,
		OfmPerEngine:               2,
		NumberOfSrams:              16,
		MacUnitsPerEngine:          8,
		TotalAccumulatorsPerEngine: 512,
		PatchShape:                 shapes.TensorShape{1, 4, 4, 1},
		BrickGroupShape:            shapes.TensorShape{1, 8, 8, 16},
		OutputSizePerWinograd1D:    2,
		OutputSizePerWinograd2D:    2,
		MacsPerWinograd1D:          4,
		MacsPerWinograd2D:          16,
		WideKernelSize:             3,
		SramSize:                   1024 * 1024,
		PleCodeSize:                4096,
	}
}
