// ABOUTME: Graph builder that turns a parsed instance into a gonum weighted directed graph.
// ABOUTME: Resolves the depot to Source/Sink per edge, applies last-write-wins arc costs, and annotates demands.
package network

import (
	"fmt"
	"log"
	"sort"

	"github.com/2389-research/routegraph/graphfile"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Network is the directed routing graph handed to a solver. It is built once
// and not modified afterwards.
type Network struct {
	g      *simple.WeightedDirectedGraph
	nodes  map[int64]*Node
	source *Node
	sink   *Node
}

// Build converts inst into a Network. Each edge endpoint equal to the depot is
// rewritten independently: to Source when it is the origin, to Sink when it is
// the destination. A repeated (origin, destination) pair keeps the cost of the
// later line. Demands are attached after all edges, so stops that no edge
// mentions still appear as isolated nodes. An edge from a stop to itself is
// logged and skipped: no elementary route can use it.
func Build(inst *graphfile.Instance) *Network {
	n := &Network{
		g:     simple.NewWeightedDirectedGraph(0, 0),
		nodes: make(map[int64]*Node),
	}

	for _, e := range inst.Edges {
		from := n.endpoint(e.From, KindSource)
		to := n.endpoint(e.To, KindSink)
		if from.id == to.id {
			log.Printf("component=network action=skip_self_loop node=%s line=%d", from, e.Line)
			continue
		}

		if prev, ok := n.Arc(from.id, to.id); ok {
			log.Printf("component=network action=overwrite_arc from=%s to=%s line=%d previous_line=%d cost=%d previous_cost=%d",
				from, to, e.Line, prev.Line, e.Cost, prev.Cost)
		}
		n.g.SetWeightedEdge(&Arc{F: from, T: to, Cost: e.Cost, Line: e.Line})
	}

	demands := inst.Demands()
	for _, id := range inst.DemandIDs() {
		node := n.stop(int64(id))
		node.demand = demands[id]
		node.annotated = true
	}

	return n
}

// endpoint resolves a file reference. The depot maps to the sentinel of the
// requested kind.
func (n *Network) endpoint(ref graphfile.Ref, depotKind Kind) *Node {
	if !ref.IsDepot() {
		return n.stop(int64(ref.ID()))
	}
	if depotKind == KindSource {
		if n.source == nil {
			n.source = n.add(&Node{id: SourceID, kind: KindSource})
		}
		return n.source
	}
	if n.sink == nil {
		n.sink = n.add(&Node{id: SinkID, kind: KindSink})
	}
	return n.sink
}

func (n *Network) stop(id int64) *Node {
	if node, ok := n.nodes[id]; ok {
		return node
	}
	return n.add(&Node{id: id, kind: KindStop})
}

func (n *Network) add(node *Node) *Node {
	n.nodes[node.id] = node
	n.g.AddNode(node)
	return node
}

// Graph exposes the underlying gonum graph.
func (n *Network) Graph() graph.WeightedDirected {
	return n.g
}

// Node returns the node with the given id, or nil.
func (n *Network) Node(id int64) *Node {
	return n.nodes[id]
}

// Source returns the Source sentinel, or nil when no edge leaves the depot.
func (n *Network) Source() *Node {
	return n.source
}

// Sink returns the Sink sentinel, or nil when no edge enters the depot.
func (n *Network) Sink() *Node {
	return n.sink
}

// NumNodes returns the number of nodes, sentinels included.
func (n *Network) NumNodes() int {
	return len(n.nodes)
}

// Stops returns the regular nodes ordered by id.
func (n *Network) Stops() []*Node {
	stops := make([]*Node, 0, len(n.nodes))
	for _, node := range n.nodes {
		if node.IsStop() {
			stops = append(stops, node)
		}
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].id < stops[j].id })
	return stops
}

// Arc returns the arc from -> to if it exists.
func (n *Network) Arc(from, to int64) (*Arc, bool) {
	e := n.g.WeightedEdge(from, to)
	if e == nil {
		return nil, false
	}
	return e.(*Arc), true
}

// Arcs returns every arc ordered by origin then destination, Source first and
// Sink last.
func (n *Network) Arcs() []*Arc {
	edges := graph.WeightedEdgesOf(n.g.WeightedEdges())
	arcs := make([]*Arc, len(edges))
	for i, e := range edges {
		arcs[i] = e.(*Arc)
	}
	sort.Slice(arcs, func(i, j int) bool {
		if arcs[i].F != arcs[j].F {
			return less(arcs[i].F, arcs[j].F)
		}
		return less(arcs[i].T, arcs[j].T)
	})
	return arcs
}

// Successors returns the nodes reachable over one arc from id, in node order.
func (n *Network) Successors(id int64) []*Node {
	return n.sorted(graph.NodesOf(n.g.From(id)))
}

// Predecessors returns the nodes with an arc into id, in node order.
func (n *Network) Predecessors(id int64) []*Node {
	return n.sorted(graph.NodesOf(n.g.To(id)))
}

func (n *Network) sorted(gn []graph.Node) []*Node {
	out := make([]*Node, len(gn))
	for i, v := range gn {
		out[i] = v.(*Node)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// ReachableFromSource reports whether a directed path leads from Source to id.
func (n *Network) ReachableFromSource(id int64) bool {
	node := n.nodes[id]
	if n.source == nil || node == nil {
		return false
	}
	return topo.PathExistsIn(n.g, n.source, node)
}

// ReachesSink reports whether a directed path leads from id to Sink.
func (n *Network) ReachesSink(id int64) bool {
	node := n.nodes[id]
	if n.sink == nil || node == nil {
		return false
	}
	return topo.PathExistsIn(n.g, node, n.sink)
}

// Label returns the display label of id: "Source", "Sink" or the stop id.
func (n *Network) Label(id int64) string {
	if node, ok := n.nodes[id]; ok {
		return node.Label()
	}
	switch id {
	case SourceID:
		return SourceLabel
	case SinkID:
		return SinkLabel
	}
	return fmt.Sprintf("%d", id)
}
