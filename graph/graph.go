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

// Package graph holds the typed DAG of tensor-producing nodes that the
// planner works on.
//
// A Node is a shared header (shape, data format, location, compression state,
// quantisation and the fix-graph hints) plus an Op variant identifying what
// the node computes. The planner classifies nodes by Op kind; it never
// rewires edges. The only mutations it performs are the Set... hint methods
// and the output bookkeeping stamped on commit (SRAM offset, location,
// compression flag, owning pass).
//
// Hints are monotone within a compile: once a node is forced to DRAM, to an
// output format, or to uncompressed output, a later attempt can keep or
// strengthen the constraint but never relax it. The graph re-shaper between
// planning attempts consumes the hints; this package only records them.
package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"

	"github.com/accelplan/accelplan/cmdstream"
	"github.com/accelplan/accelplan/types/shapes"
)

// InvalidBufferId marks a node with no DRAM buffer assigned yet.
const InvalidBufferId uint32 = 0xffffffff

// NodeId is the unique id of a node within its Graph.
type NodeId int32

// QuantizationInfo is the affine quantisation of a tensor.
type QuantizationInfo struct {
	ZeroPoint int32
	Scale     float64
}

// PassRef is implemented by the pass records that take ownership of nodes.
type PassRef interface {
	ID() int
}

// Graph is a DAG of nodes. Nodes are added once, edges are fixed at
// construction.
type Graph struct {
	nodes []*Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// Nodes returns the graph's nodes in creation order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Input is one incoming edge of a node.
type Input struct {
	source      *Node
	outputIndex int
}

// Source returns the producing node of the edge.
func (in *Input) Source() *Node { return in.source }

// OutputIndex returns which output of the source this edge reads.
// Every node in this graph has a single output, so it is always 0.
func (in *Input) OutputIndex() int { return in.outputIndex }

// Node is a vertex of the graph: a shared header plus an Op variant.
type Node struct {
	graph  *Graph
	id     NodeId
	op     Op
	inputs []*Input

	// consumers are the nodes reading this node's output.
	consumers []*Node

	shape  shapes.TensorShape
	format DataFormat
	quant  QuantizationInfo

	location         Location
	compressed       bool
	outputSramOffset uint32
	bufferId         uint32
	pass             PassRef

	// Fix-graph hints, written by the planner on failed attempts.
	fixConvertOutputTo DataFormat
	locationHint       LocationHint
	compressionHint    CompressionHint
}

// NewNode adds a node computing op to the graph. The inputs are fixed for the
// node's lifetime.
func (g *Graph) NewNode(op Op, shape shapes.TensorShape, format DataFormat, quant QuantizationInfo, inputs ...*Node) *Node {
	if op == nil {
		exceptions.Panicf("graph: NewNode with nil op")
	}
	n := &Node{
		graph:              g,
		id:                 NodeId(len(g.nodes)),
		op:                 op,
		shape:              shape,
		format:             format,
		quant:              quant,
		bufferId:           InvalidBufferId,
		fixConvertOutputTo: FormatNone,
	}
	for _, source := range inputs {
		if source.graph != g {
			exceptions.Panicf("graph: input node #%d belongs to a different graph", source.id)
		}
		n.inputs = append(n.inputs, &Input{source: source})
		source.consumers = append(source.consumers, n)
	}
	g.nodes = append(g.nodes, n)
	return n
}

// Op returns the node's operation variant.
func (n *Node) Op() Op { return n.op }

// Kind returns the kind tag of the node's operation.
func (n *Node) Kind() NodeKind {
	return n.op.Kind()
}

// Id is the unique id of this node within the Graph.
func (n *Node) Id() NodeId { return n.id }

// Shape of the node's single output tensor.
func (n *Node) Shape() shapes.TensorShape { return n.shape }

// Format is the node's current output data format.
func (n *Node) Format() DataFormat { return n.format }

// Quantization of the node's output.
func (n *Node) Quantization() QuantizationInfo { return n.quant }

// Location says where the node's output currently lives. It is LocationNone
// until a pass assigns it.
func (n *Node) Location() Location { return n.location }

// SetLocation assigns the node's output location.
func (n *Node) SetLocation(location Location) { n.location = location }

// Compressed reports whether the node's output is activation-compressed.
func (n *Node) Compressed() bool { return n.compressed }

// SetCompressed marks the node's output as compressed or not.
func (n *Node) SetCompressed(compressed bool) { n.compressed = compressed }

// OutputSramOffset is the SRAM offset of the node's output, valid once the
// owning pass committed.
func (n *Node) OutputSramOffset() uint32 { return n.outputSramOffset }

// SetOutputSramOffset stamps the output SRAM offset.
func (n *Node) SetOutputSramOffset(offset uint32) { n.outputSramOffset = offset }

// BufferId is the DRAM buffer id of the node's output, or InvalidBufferId.
func (n *Node) BufferId() uint32 { return n.bufferId }

// SetBufferId assigns the DRAM buffer id of the node's output.
func (n *Node) SetBufferId(id uint32) { n.bufferId = id }

// Pass returns the pass that owns this node, or nil.
func (n *Node) Pass() PassRef { return n.pass }

// SetPass records the pass that owns this node.
func (n *Node) SetPass(p PassRef) { n.pass = p }

// NumInputs returns the number of incoming edges.
func (n *Node) NumInputs() int { return len(n.inputs) }

// Input returns the i-th incoming edge.
func (n *Node) Input(i int) *Input { return n.inputs[i] }

// InputSource returns the producer of the i-th input.
func (n *Node) InputSource(i int) *Node { return n.inputs[i].source }

// InputShape returns the shape of the i-th input.
func (n *Node) InputShape(i int) shapes.TensorShape { return n.inputs[i].source.shape }

// InputFormat returns the data format of the i-th input.
func (n *Node) InputFormat(i int) DataFormat { return n.inputs[i].source.format }

// InputLocation returns the location of the i-th input.
func (n *Node) InputLocation(i int) Location { return n.inputs[i].source.location }

// InputCompressed reports whether the i-th input is compressed.
func (n *Node) InputCompressed(i int) bool { return n.inputs[i].source.compressed }

// InputQuantization returns the quantisation of the i-th input.
func (n *Node) InputQuantization(i int) QuantizationInfo { return n.inputs[i].source.quant }

// Consumers returns the nodes reading this node's output.
func (n *Node) Consumers() []*Node { return n.consumers }

// BufferFormat maps the node's output format and compression state to the
// command-stream data format.
func (n *Node) BufferFormat() cmdstream.DataFormat {
	return bufferFormat(n.format, n.compressed)
}

// InputBufferFormat maps the i-th input's format and compression state to the
// command-stream data format.
func (n *Node) InputBufferFormat(i int) cmdstream.DataFormat {
	source := n.inputs[i].source
	return bufferFormat(source.format, source.compressed)
}

func bufferFormat(format DataFormat, compressed bool) cmdstream.DataFormat {
	switch format {
	case FormatNHWC:
		return cmdstream.DataFormatNHWC
	case FormatNHWCB:
		if compressed {
			return cmdstream.DataFormatNHWCBCompressed
		}
		return cmdstream.DataFormatNHWCB
	}
	exceptions.Panicf("graph: no buffer format for %s", format)
	return 0
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("#%d %s %s %s", n.id, n.op, n.shape, n.format)
}
