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

import (
	"fmt"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/types/shapes"
)

// NodeKind tags the Op variant of a node. The planner's admission rules are a
// switch over this tag.
type NodeKind uint8

const (
	KindInput NodeKind = iota
	KindFormatConversion
	KindExtractSubtensor
	KindMceOperation
	KindMcePostProcess
	KindFuseOnlyPle
	KindRequantize
)

// String implements fmt.Stringer.
func (k NodeKind) String() string {
	switch k {
	case KindInput:
		return "Input"
	case KindFormatConversion:
		return "FormatConversion"
	case KindExtractSubtensor:
		return "ExtractSubtensor"
	case KindMceOperation:
		return "MceOperation"
	case KindMcePostProcess:
		return "McePostProcess"
	case KindFuseOnlyPle:
		return "FuseOnlyPle"
	case KindRequantize:
		return "Requantize"
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// Op is the operation variant of a node.
type Op interface {
	Kind() NodeKind

	// String prints a descriptive representation of the operation.
	String() string
}

// InputOp is a graph input: a tensor produced outside the compiled network.
type InputOp struct{}

func (*InputOp) Kind() NodeKind { return KindInput }
func (*InputOp) String() string { return "Input" }

// FormatConversionOp changes the data format of its input; the target format
// is the node's own Format().
type FormatConversionOp struct{}

func (*FormatConversionOp) Kind() NodeKind { return KindFormatConversion }
func (*FormatConversionOp) String() string { return "FormatConversion" }

// ExtractSubtensorOp carves a sub-region out of a supertensor. The node's
// shape is the sub-region; the input's shape is the supertensor.
type ExtractSubtensorOp struct {
	SupertensorOffset shapes.TensorShape
}

func (*ExtractSubtensorOp) Kind() NodeKind { return KindExtractSubtensor }
func (op *ExtractSubtensorOp) String() string {
	return fmt.Sprintf("ExtractSubtensor(offset=%s)", op.SupertensorOffset)
}

// Stride is the convolution stride.
type Stride struct {
	X, Y uint32
}

// WeightsInfo describes the weight tensor of an MCE operation.
type WeightsInfo struct {
	Dimensions   shapes.TensorShape
	Format       WeightsFormat
	Quantization QuantizationInfo
}

// MceOp is a convolution, depthwise convolution or fully-connected operation
// executed on the matrix/convolution engine.
type MceOp struct {
	Operation     cmdstream.MceOperation
	Weights       WeightsInfo
	WeightsData   []uint8
	Stride        Stride
	UpscaleFactor uint32
	PadTop        uint32
	PadLeft       uint32

	// UninterleavedInputShape is the MCE input shape before any striding
	// interleave was applied by graph preparation.
	UninterleavedInputShape shapes.TensorShape

	// AlgorithmHint constrains the algorithm chooser; the planner strengthens
	// it to RequireDirect when a Winograd plan fails.
	AlgorithmHint AlgorithmHint

	// Algorithm is the committed choice, stamped when a pass is built.
	Algorithm Algorithm
}

func (*MceOp) Kind() NodeKind { return KindMceOperation }
func (op *MceOp) String() string {
	return fmt.Sprintf("Mce(%s, weights=%s %s, stride=%dx%d)",
		mceOperationName(op.Operation), op.Weights.Dimensions, op.Weights.Format, op.Stride.X, op.Stride.Y)
}

// ShapeMultiplier returns how the operation rescales its input extents:
// identity, except upscaling convolutions which scale H and W by the upscale
// factor.
func (op *MceOp) ShapeMultiplier() shapes.ShapeMultiplier {
	m := shapes.Identity
	if op.UpscaleFactor > 1 {
		m.H = shapes.Fraction{Num: op.UpscaleFactor, Denom: 1}
		m.W = shapes.Fraction{Num: op.UpscaleFactor, Denom: 1}
	}
	return m
}

// MceData returns the base MCE stage programming for this operation.
func (op *MceOp) MceData() cmdstream.MceData {
	return cmdstream.MceData{
		Stride:    shapes.TensorShape{1, op.Stride.Y, op.Stride.X, 1},
		PadTop:    op.PadTop,
		PadLeft:   op.PadLeft,
		Operation: op.Operation,
		Algorithm: cmdstream.MceAlgorithmDirect,
	}
}

// SetFixGraphAlgorithmHint strengthens the algorithm constraint. RequireDirect
// is never relaxed back to AllowWinograd.
func (op *MceOp) SetFixGraphAlgorithmHint(hint AlgorithmHint) {
	if hint < op.AlgorithmHint {
		return
	}
	op.AlgorithmHint = hint
}

func mceOperationName(op cmdstream.MceOperation) string {
	switch op {
	case cmdstream.MceOperationConvolution:
		return "Convolution"
	case cmdstream.MceOperationDepthwiseConvolution:
		return "DepthwiseConvolution"
	case cmdstream.MceOperationFullyConnected:
		return "FullyConnected"
	}
	return fmt.Sprintf("MceOperation(%d)", uint8(op))
}

// McePostProcessOp folds an activation clamp (and the accompanying
// requantisation, carried on the node header) into the MCE stage.
type McePostProcessOp struct {
	LowerBound uint8
	UpperBound uint8
}

func (*McePostProcessOp) Kind() NodeKind { return KindMcePostProcess }
func (op *McePostProcessOp) String() string {
	return fmt.Sprintf("McePostProcess[%d, %d]", op.LowerBound, op.UpperBound)
}

// Apply intersects the activation bounds into the MCE stage programming.
func (op *McePostProcessOp) Apply(data *cmdstream.MceData) {
	if op.LowerBound > data.ActivationMin {
		data.ActivationMin = op.LowerBound
	}
	if op.UpperBound < data.ActivationMax {
		data.ActivationMax = op.UpperBound
	}
	if data.ActivationMax < data.ActivationMin {
		data.ActivationMax = data.ActivationMin
	}
}

// FuseOnlyPleOp is a PLE kernel that only exists fused behind an MCE stage.
type FuseOnlyPleOp struct {
	Operation cmdstream.PleOp

	// AgnosticToRequantisation is set for kernels whose result commutes with
	// a zero-point/scale change, e.g. MaxPool.
	AgnosticToRequantisation bool

	// Multiplier is how the kernel rescales its input extents.
	Multiplier shapes.ShapeMultiplier
}

func (*FuseOnlyPleOp) Kind() NodeKind { return KindFuseOnlyPle }
func (op *FuseOnlyPleOp) String() string {
	return fmt.Sprintf("FuseOnlyPle(%s)", op.Operation)
}

// RequantizeOp changes scale and zero point; the new quantisation is the
// node header's Quantization().
type RequantizeOp struct{}

func (*RequantizeOp) Kind() NodeKind { return KindRequantize }
func (*RequantizeOp) String() string { return "Requantize" }
