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

package graph

import "fmt"

// DataFormat is the compiler-level activation layout.
type DataFormat uint8

const (
	// FormatNone is the "no requirement" sentinel.
	FormatNone DataFormat = iota
	FormatNHWC
	FormatNHWCB
)

// String implements fmt.Stringer.
func (f DataFormat) String() string {
	switch f {
	case FormatNone:
		return "None"
	case FormatNHWC:
		return "NHWC"
	case FormatNHWCB:
		return "NHWCB"
	}
	return fmt.Sprintf("DataFormat(%d)", uint8(f))
}

// Location says where a tensor lives.
type Location uint8

const (
	LocationNone Location = iota
	LocationDram
	LocationSram
)

// String implements fmt.Stringer.
func (l Location) String() string {
	switch l {
	case LocationNone:
		return "None"
	case LocationDram:
		return "Dram"
	case LocationSram:
		return "Sram"
	}
	return fmt.Sprintf("Location(%d)", uint8(l))
}

// Algorithm is the compiler-level convolution algorithm choice.
type Algorithm uint8

const (
	AlgorithmDirect Algorithm = iota
	AlgorithmWinograd
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmDirect:
		return "Direct"
	case AlgorithmWinograd:
		return "Winograd"
	}
	return fmt.Sprintf("Algorithm(%d)", uint8(a))
}

// WeightsFormat is the weight tensor layout.
type WeightsFormat uint8

const (
	// WeightsHWIO is [kernelH, kernelW, inputChannels, outputChannels].
	WeightsHWIO WeightsFormat = iota
	// WeightsHWIM is [kernelH, kernelW, inputChannels, channelMultiplier],
	// used by depthwise convolutions.
	WeightsHWIM
)

// String implements fmt.Stringer.
func (f WeightsFormat) String() string {
	switch f {
	case WeightsHWIO:
		return "HWIO"
	case WeightsHWIM:
		return "HWIM"
	}
	return fmt.Sprintf("WeightsFormat(%d)", uint8(f))
}
