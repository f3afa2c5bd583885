// ABOUTME: Node and Arc types stored in the routing network; both satisfy the gonum graph interfaces.
// ABOUTME: Source and Sink are sentinel nodes with reserved negative ids; regular stops keep their file id.
package network

import (
	"strconv"

	"gonum.org/v1/gonum/graph"
)

// Reserved ids for the depot endpoints. File ids are never negative.
const (
	SourceID int64 = -1
	SinkID   int64 = -2
)

// Labels used for the depot endpoints.
const (
	SourceLabel = "Source"
	SinkLabel   = "Sink"
)

// Kind distinguishes regular stops from the depot endpoints.
type Kind uint8

const (
	KindStop Kind = iota
	KindSource
	KindSink
)

// Node is a vertex of the network.
type Node struct {
	id        int64
	kind      Kind
	demand    int
	annotated bool
}

var _ graph.Node = (*Node)(nil)

// ID returns the gonum node id.
func (n *Node) ID() int64 { return n.id }

// Kind reports whether the node is a stop, the Source or the Sink.
func (n *Node) Kind() Kind { return n.kind }

// IsStop reports whether the node is a regular stop.
func (n *Node) IsStop() bool { return n.kind == KindStop }

// Demand returns the demand attribute, 0 when the node has none.
func (n *Node) Demand() int { return n.demand }

// Annotated reports whether the node received a demand from the demand mapping.
func (n *Node) Annotated() bool { return n.annotated }

// Label returns "Source", "Sink", or the decimal stop id.
func (n *Node) Label() string {
	switch n.kind {
	case KindSource:
		return SourceLabel
	case KindSink:
		return SinkLabel
	default:
		return strconv.FormatInt(n.id, 10)
	}
}

func (n *Node) String() string { return n.Label() }

// rank orders Source first, stops by id, and Sink last.
func (n *Node) rank() (int, int64) {
	switch n.kind {
	case KindSource:
		return 0, 0
	case KindSink:
		return 2, 0
	default:
		return 1, n.id
	}
}

func less(a, b *Node) bool {
	ra, ia := a.rank()
	rb, ib := b.rank()
	if ra != rb {
		return ra < rb
	}
	return ia < ib
}

// Arc is a directed, costed edge.
type Arc struct {
	F, T *Node
	Cost int
	// Line is the graph file line the arc came from.
	Line int
}

var _ graph.WeightedEdge = (*Arc)(nil)

func (a *Arc) From() graph.Node { return a.F }
func (a *Arc) To() graph.Node   { return a.T }

// ReversedEdge returns a copy of the arc pointing the other way.
func (a *Arc) ReversedEdge() graph.Edge {
	return &Arc{F: a.T, T: a.F, Cost: a.Cost, Line: a.Line}
}

// Weight exposes the cost as a gonum edge weight.
func (a *Arc) Weight() float64 { return float64(a.Cost) }
