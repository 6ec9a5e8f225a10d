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

	"k8s.io/klog/v2"
)

// CompressionHint constrains whether a node's output may be compressed.
type CompressionHint uint8

const (
	// PreferCompressed lets the planner compress the output when legal.
	PreferCompressed CompressionHint = iota
	// RequiredUncompressed forbids compression of the output.
	RequiredUncompressed
)

// String implements fmt.Stringer.
func (h CompressionHint) String() string {
	switch h {
	case PreferCompressed:
		return "PreferCompressed"
	case RequiredUncompressed:
		return "RequiredUncompressed"
	}
	return fmt.Sprintf("CompressionHint(%d)", uint8(h))
}

// LocationHint constrains where a node's output must live.
type LocationHint uint8

const (
	// PreferSram lets the planner keep the output in SRAM when a strategy
	// allows it.
	PreferSram LocationHint = iota
	// RequireDram forces the output to DRAM.
	RequireDram
)

// String implements fmt.Stringer.
func (h LocationHint) String() string {
	switch h {
	case PreferSram:
		return "PreferSram"
	case RequireDram:
		return "RequireDram"
	}
	return fmt.Sprintf("LocationHint(%d)", uint8(h))
}

// AlgorithmHint constrains the convolution algorithm an MCE node may use.
type AlgorithmHint uint8

const (
	// AllowWinograd lets the algorithm chooser pick Winograd when profitable.
	AllowWinograd AlgorithmHint = iota
	// RequireDirect forces the direct algorithm.
	RequireDirect
)

// String implements fmt.Stringer.
func (h AlgorithmHint) String() string {
	switch h {
	case AllowWinograd:
		return "AllowWinograd"
	case RequireDirect:
		return "RequireDirect"
	}
	return fmt.Sprintf("AlgorithmHint(%d)", uint8(h))
}

// CompressionHint returns the node's compression constraint.
func (n *Node) CompressionHint() CompressionHint { return n.compressionHint }

// LocationHint returns the node's location constraint.
func (n *Node) LocationHint() LocationHint { return n.locationHint }

// FixGraphConvertOutputTo returns the format the planner asked this node's
// output to be converted to, or FormatNone.
func (n *Node) FixGraphConvertOutputTo() DataFormat { return n.fixConvertOutputTo }

// SetFixGraphConvertOutputTo asks the graph re-shaper to insert a conversion
// of this node's output to format before the next planning attempt.
func (n *Node) SetFixGraphConvertOutputTo(format DataFormat) {
	klog.V(1).Infof("graph: node #%d hinted ConvertOutputTo(%s)", n.id, format)
	n.fixConvertOutputTo = format
}

// SetFixGraphLocationHint constrains the node's output location. Hints only
// strengthen: RequireDram is never downgraded back to PreferSram.
func (n *Node) SetFixGraphLocationHint(hint LocationHint) {
	if hint < n.locationHint {
		return
	}
	klog.V(1).Infof("graph: node #%d hinted %s", n.id, hint)
	n.locationHint = hint
}

// SetFixGraphCompressionHint constrains the node's output compression. Hints
// only strengthen: RequiredUncompressed is never relaxed.
func (n *Node) SetFixGraphCompressionHint(hint CompressionHint) {
	if hint < n.compressionHint {
		return
	}
	klog.V(1).Infof("graph: node #%d hinted %s", n.id, hint)
	n.compressionHint = hint
}
