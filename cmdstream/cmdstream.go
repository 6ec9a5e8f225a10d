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

// Package cmdstream defines the command-stream records consumed by the
// firmware.
//
// These are wire-level types: the planner fills in one McePle record per
// committed pass, and the surrounding driver serialises the Buffer. Nothing
// here knows about the graph; the dependency points the other way.
package cmdstream

import "github.com/accelplan/accelplan/types/shapes"

// BlockConfig is the spatial extent the MCE processes per cycle.
type BlockConfig struct {
	Width, Height uint32
}

// PleOp identifies the kernel loaded into the programmable layer engine.
//
//go:generate go tool enumer -type=PleOp -trimprefix=PleOp -output=gen_pleop_enumer.go cmdstream.go
type PleOp uint8

const (
	PleOpPassthrough PleOp = iota
	PleOpMaxPool2x2Stride2
	PleOpInterleave2x2Stride2
	PleOpMeanXY8x8
	PleOpMaxPool3x3Stride2
	PleOpSigmoid
)

// SramAllocationStrategy is the firmware-visible strategy tag. The firmware
// makes decisions based on stripe and tile sizes, not on this tag, but it is
// still carried for diagnostics.
type SramAllocationStrategy uint8

const (
	AllocationStrategy0 SramAllocationStrategy = iota
	AllocationStrategy1
	AllocationStrategy2
	AllocationStrategy3
	AllocationStrategy4
	AllocationStrategy5
	AllocationStrategy6
	AllocationStrategy7
)

// DataType of a tensor in the command stream.
type DataType uint8

const (
	DataTypeQAsymm8 DataType = iota
)

// DataFormat of a tensor in the command stream.
type DataFormat uint8

const (
	DataFormatNHWC DataFormat = iota
	DataFormatNHWCB
	DataFormatNHWCBCompressed
	DataFormatWeightStream
)

// DataLocation says where a tensor lives when the command executes.
type DataLocation uint8

const (
	DataLocationDram DataLocation = iota
	DataLocationSram
)

// UpsampleType selects the MCE upsampling mode.
type UpsampleType uint8

const (
	UpsampleOff UpsampleType = iota
	UpsampleTranspose
)

// TensorInfo describes one tensor operand of an McePle command.
type TensorInfo struct {
	DataType          DataType
	DataFormat        DataFormat
	TensorShape       shapes.TensorShape
	SupertensorShape  shapes.TensorShape
	SupertensorOffset shapes.TensorShape
	StripeShape       shapes.TensorShape
	TileSize          uint32
	DramBufferId      uint32
	SramOffset        uint32
	ZeroPoint         uint8
	DataLocation      DataLocation
}

// MceData is the MCE stage programming of an McePle command.
type MceData struct {
	Stride                  shapes.TensorShape
	PadTop, PadLeft         uint32
	UninterleavedInputShape shapes.TensorShape
	OutputShape             shapes.TensorShape
	OutputStripeShape       shapes.TensorShape
	Operation               MceOperation
	Algorithm               MceAlgorithm
	ActivationMin           uint8
	ActivationMax           uint8
	UpsampleMode            UpsampleType
	OutputZeroPoint         int16
	OutputRescaleMultiplier uint16
	OutputRescaleShift      uint16
}

// MceOperation is the firmware-visible MCE operation kind.
type MceOperation uint8

const (
	MceOperationConvolution MceOperation = iota
	MceOperationDepthwiseConvolution
	MceOperationFullyConnected
)

// MceAlgorithm is the firmware-visible convolution algorithm.
type MceAlgorithm uint8

const (
	MceAlgorithmDirect MceAlgorithm = iota
	MceAlgorithmWinograd
)

// PleData is the PLE stage programming of an McePle command.
type PleData struct {
	CeSram    uint32
	PleSram   uint32
	Operation PleOp
}

// SramConfig carries the strategy tag.
type SramConfig struct {
	AllocationStrategy SramAllocationStrategy
}

// McePle is one fused MCE+PLE hardware pass.
type McePle struct {
	InputInfo              TensorInfo
	WeightInfo             TensorInfo
	OutputInfo             TensorInfo
	SramConfig             SramConfig
	BlockConfig            BlockConfig
	MceData                MceData
	PleData                PleData
	WeightMetadataBufferId uint32
}

// Buffer is an append-only list of commands, in execution order.
type Buffer struct {
	commands []McePle
}

// EmplaceBack appends a command.
func (b *Buffer) EmplaceBack(cmd McePle) {
	b.commands = append(b.commands, cmd)
}

// Commands returns the commands appended so far, in order.
func (b *Buffer) Commands() []McePle {
	return b.commands
}
