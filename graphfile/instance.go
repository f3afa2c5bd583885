// ABOUTME: Data model for a parsed routing instance: tagged node references, demand entries, and edges.
// ABOUTME: Folds demand entries into the last-write-wins demand mapping consumed by the graph builder.
package graphfile

import (
	"sort"
	"strconv"
)

// Ref identifies a node named in the graph file. The file id 0 is the depot;
// every other id is a regular stop. The depot is only resolved to the Source
// or Sink endpoint when edges are inserted into a network.
type Ref struct {
	depot bool
	id    int
}

// Depot returns the reference to the depot (file id 0).
func Depot() Ref {
	return Ref{depot: true}
}

// Stop returns the reference to the regular stop with the given file id.
func Stop(id int) Ref {
	return Ref{id: id}
}

// RefOf maps a raw file id onto a tagged reference.
func RefOf(id int) Ref {
	if id == 0 {
		return Depot()
	}
	return Stop(id)
}

// IsDepot reports whether r refers to the depot.
func (r Ref) IsDepot() bool {
	return r.depot
}

// ID returns the stop id, or 0 for the depot.
func (r Ref) ID() int {
	if r.depot {
		return 0
	}
	return r.id
}

// String returns the file representation of the reference.
func (r Ref) String() string {
	return strconv.Itoa(r.ID())
}

// Demand is one "<node_id> <demand>" line.
type Demand struct {
	Node   int
	Amount int
	Line   int
}

// Edge is one "<origin> <destination> <cost>" line.
type Edge struct {
	From Ref
	To   Ref
	Cost int
	Line int
}

// Instance is the parsed content of a graph file.
type Instance struct {
	// NodeCount is the declared count on the first line, depot included.
	NodeCount int
	// Entries holds the demand lines in file order.
	Entries []Demand
	// Edges holds the edge lines in file order.
	Edges []Edge
	// Trailing counts non-blank lines found after the last declared edge.
	Trailing int
}

// StopCount returns the declared number of stops (the depot excluded).
func (in *Instance) StopCount() int {
	return in.NodeCount - 1
}

// Demands folds the demand entries into a node-to-demand mapping. When an id
// appears more than once the last entry wins.
func (in *Instance) Demands() map[int]int {
	m := make(map[int]int, len(in.Entries))
	for _, d := range in.Entries {
		m[d.Node] = d.Amount
	}
	return m
}

// DemandIDs returns the distinct ids of the demand mapping in ascending order.
func (in *Instance) DemandIDs() []int {
	m := in.Demands()
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Severity levels for diagnostics.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Diagnostic is a finding about an instance, tied to the file line that caused it
// when there is one.
type Diagnostic struct {
	Severity string `json:"severity" yaml:"severity"`
	Rule     string `json:"rule" yaml:"rule"`
	Message  string `json:"message" yaml:"message"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
}
