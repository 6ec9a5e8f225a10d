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

// Package weights encodes weight tensors into the streamed form the DMA
// engine expects, split into the per-stripe layout the chosen strategy
// dictates.
package weights

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/accelplan/accelplan/graph"
)

// EncodedWeights is the outcome of encoding: the weight stream itself plus a
// metadata blob describing per-stripe offsets inside it.
type EncodedWeights struct {
	// Data is the encoded weight stream, uploaded to a DRAM constant buffer.
	Data []byte

	// Metadata holds one {offset, size} pair per weight stripe, each pair
	// being two little-endian uint32 words consumed by the firmware.
	Metadata []byte
}

// Encoder turns an MCE operation's raw weights into a streamable form.
type Encoder interface {
	// Encode encodes the weights of mce, split into stripes of stripeDepth
	// output channels each. stripeSize is the SRAM budget of a single
	// encoded stripe; encoders fail when a stripe cannot fit it.
	Encode(mce *graph.MceOp, stripeDepth uint32, stripeSize uint32, outputQuant graph.QuantizationInfo) (EncodedWeights, error)
}

// NewEncoder returns the default encoder.
func NewEncoder() Encoder {
	return &rawEncoder{}
}

// rawEncoder packs weights unencoded, stripe by stripe. Each stripe carries
// the raw bytes of its slice of output channels.
type rawEncoder struct{}

func (e *rawEncoder) Encode(mce *graph.MceOp, stripeDepth uint32, stripeSize uint32, outputQuant graph.QuantizationInfo) (EncodedWeights, error) {
	if stripeDepth == 0 {
		return EncodedWeights{}, errors.Errorf("weights: stripe depth is zero")
	}
	dims := mce.Weights.Dimensions
	var depth uint32
	switch mce.Weights.Format {
	case graph.WeightsHWIO:
		depth = dims[3]
	case graph.WeightsHWIM:
		depth = dims[2] * dims[3]
	default:
		return EncodedWeights{}, errors.Errorf("weights: unsupported format %s", mce.Weights.Format)
	}
	if depth == 0 {
		return EncodedWeights{}, errors.Errorf("weights: weight tensor %s has no output channels", dims)
	}
	total := uint32(len(mce.WeightsData))
	if total == 0 {
		return EncodedWeights{}, errors.Errorf("weights: no weight data for %s", dims)
	}
	bytesPerChannel := total / depth
	if bytesPerChannel*depth != total {
		return EncodedWeights{}, errors.Errorf(
			"weights: %d bytes do not divide into %d output channels", total, depth)
	}

	numStripes := (depth + stripeDepth - 1) / stripeDepth
	out := EncodedWeights{
		Data:     make([]byte, 0, total),
		Metadata: make([]byte, 0, numStripes*8),
	}
	for s := uint32(0); s < numStripes; s++ {
		first := s * stripeDepth
		last := first + stripeDepth
		if last > depth {
			last = depth
		}
		stripe := mce.WeightsData[first*bytesPerChannel : last*bytesPerChannel]
		if uint32(len(stripe)) > stripeSize {
			return EncodedWeights{}, errors.Errorf(
				"weights: stripe %d is %d bytes, exceeds the %d byte stripe budget",
				s, len(stripe), stripeSize)
		}
		out.Metadata = binary.LittleEndian.AppendUint32(out.Metadata, uint32(len(out.Data)))
		out.Metadata = binary.LittleEndian.AppendUint32(out.Metadata, uint32(len(stripe)))
		out.Data = append(out.Data, stripe...)
	}
	klog.V(2).Infof("weights: encoded %s into %d stripes, %d bytes", dims, numStripes, len(out.Data))
	return out, nil
}
