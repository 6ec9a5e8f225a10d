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

// NextLinearNode returns the next node of the linear chain starting at n: the
// sole consumer of n's output, provided that consumer reads nothing else.
// It returns nil where the chain ends (fan-out, fan-in or a graph output).
func NextLinearNode(n *Node) *Node {
	if len(n.consumers) != 1 {
		return nil
	}
	next := n.consumers[0]
	if len(next.inputs) != 1 {
		return nil
	}
	return next
}

// SearchDependencies walks the dependency cone of start (start itself, then
// its inputs depth-first in input order) and returns the first node for which
// pred is true, or nil. The traversal order is deterministic.
func SearchDependencies(start *Node, pred func(*Node) bool) *Node {
	visited := make(map[NodeId]bool)
	var visit func(n *Node) *Node
	visit = func(n *Node) *Node {
		if visited[n.id] {
			return nil
		}
		visited[n.id] = true
		if pred(n) {
			return n
		}
		for _, in := range n.inputs {
			if found := visit(in.source); found != nil {
				return found
			}
		}
		return nil
	}
	return visit(start)
}
