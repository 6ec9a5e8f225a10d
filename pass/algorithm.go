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
	"k8s.io/klog/v2"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/graph"
	"github.com/accelplan/accelplan/hwcaps"
	"github.com/accelplan/accelplan/types/shapes"
)

// wideKernelDims rounds kernel extents up to a multiple of the wide-kernel
// unit on axes larger than 1, since wide kernels decompose into chained
// passes of that unit.
func wideKernelDims(caps *hwcaps.Capabilities, h, w uint32) (uint32, uint32) {
	k := caps.WideKernelSize
	if h > 1 {
		h = shapes.RoundUpToMultiple(h, k)
	}
	if w > 1 {
		w = shapes.RoundUpToMultiple(w, k)
	}
	return h, w
}

// numMultsDirect counts the multiplications the direct algorithm performs per
// winograd-sized output tile, so both algorithms are compared on the same
// output region.
func numMultsDirect(caps *hwcaps.Capabilities, h, w uint32) uint32 {
	if h == 1 || w == 1 {
		return h * w * caps.OutputSizePerWinograd2D * caps.OutputSizePerWinograd1D
	}
	return h * w * caps.OutputSizePerWinograd2D * caps.OutputSizePerWinograd2D
}

// numMultsWinograd counts the multiplications Winograd performs over the same
// output tile. Each wide-kernel unit costs one fixed batch of MACs.
func numMultsWinograd(caps *hwcaps.Capabilities, h, w uint32) uint32 {
	k := caps.WideKernelSize
	if h == 1 || w == 1 {
		return caps.MacsPerWinograd1D * shapes.DivRoundUp(h*w, k)
	}
	return caps.MacsPerWinograd2D * shapes.DivRoundUp(h, k) * shapes.DivRoundUp(w, k)
}

// chooseAlgorithm decides between the direct and Winograd convolution
// algorithms for mce. Winograd is only eligible for plain convolutions with
// unit stride, no upscaling, and when neither the compiler options nor the
// node's hint forbid it; among eligible cases it is picked only when it
// strictly reduces the multiplication count.
func chooseAlgorithm(caps *hwcaps.Capabilities, opts *Options, mce *graph.MceOp) graph.Algorithm {
	if opts.DisableWinograd ||
		mce.AlgorithmHint == graph.RequireDirect ||
		mce.Operation != cmdstream.MceOperationConvolution ||
		mce.Stride.X != 1 || mce.Stride.Y != 1 ||
		mce.UpscaleFactor > 1 {
		return graph.AlgorithmDirect
	}
	h, w := mce.Weights.Dimensions[0], mce.Weights.Dimensions[1]
	direct := numMultsDirect(caps, h, w)
	winograd := numMultsWinograd(caps, h, w)
	if winograd < direct {
		klog.V(2).Infof("pass: kernel %dx%d picks Winograd (%d vs %d mults)",
			h, w, winograd, direct)
		return graph.AlgorithmWinograd
	}
	return graph.AlgorithmDirect
}
