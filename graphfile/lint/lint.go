// ABOUTME: Static checks over a parsed graph file instance, run by the validate command and the /validate endpoint.
// ABOUTME: Lint(inst, opts) runs every check and returns diagnostics ordered by check, then file line.
package lint

import (
	"fmt"
	"sort"

	"github.com/2389-research/routegraph/graphfile"
)

// Options tunes the checks that depend on solver parameters.
type Options struct {
	// Capacity enables the capacity check when positive.
	Capacity int
}

// Lint runs all checks on inst and returns any diagnostics found.
func Lint(inst *graphfile.Instance, opts Options) []graphfile.Diagnostic {
	var diags []graphfile.Diagnostic

	diags = append(diags, checkDuplicateDemands(inst)...)
	diags = append(diags, checkDuplicateEdges(inst)...)
	diags = append(diags, checkSelfLoops(inst)...)
	diags = append(diags, checkDepot(inst)...)
	diags = append(diags, checkCapacity(inst, opts.Capacity)...)
	diags = append(diags, checkUndeclaredNodes(inst)...)
	diags = append(diags, checkIsolatedNodes(inst)...)
	diags = append(diags, checkReachability(inst)...)
	diags = append(diags, checkTrailing(inst)...)

	return diags
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []graphfile.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == graphfile.SeverityError {
			return true
		}
	}
	return false
}

// checkDuplicateDemands flags repeated demand ids; the later line wins.
func checkDuplicateDemands(inst *graphfile.Instance) []graphfile.Diagnostic {
	var diags []graphfile.Diagnostic
	first := make(map[int]int)
	for _, d := range inst.Entries {
		if line, ok := first[d.Node]; ok {
			diags = append(diags, graphfile.Diagnostic{
				Severity: graphfile.SeverityWarning,
				Rule:     "duplicate_demand",
				Message:  fmt.Sprintf("node %d already has a demand on line %d; this line wins", d.Node, line),
				Line:     d.Line,
			})
			continue
		}
		first[d.Node] = d.Line
	}
	return diags
}

// checkDuplicateEdges flags repeated (origin, destination) pairs; the later cost wins.
func checkDuplicateEdges(inst *graphfile.Instance) []graphfile.Diagnostic {
	var diags []graphfile.Diagnostic
	first := make(map[[2]graphfile.Ref]int)
	for _, e := range inst.Edges {
		key := [2]graphfile.Ref{e.From, e.To}
		if line, ok := first[key]; ok {
			diags = append(diags, graphfile.Diagnostic{
				Severity: graphfile.SeverityWarning,
				Rule:     "duplicate_edge",
				Message:  fmt.Sprintf("edge %s -> %s already declared on line %d; this cost wins", e.From, e.To, line),
				Line:     e.Line,
			})
			continue
		}
		first[key] = e.Line
	}
	return diags
}

// checkSelfLoops flags edges from a stop to itself, which the builder skips.
// The depot pair 0 0 is allowed because it becomes Source -> Sink.
func checkSelfLoops(inst *graphfile.Instance) []graphfile.Diagnostic {
	var diags []graphfile.Diagnostic
	for _, e := range inst.Edges {
		if e.From == e.To && !e.From.IsDepot() {
			diags = append(diags, graphfile.Diagnostic{
				Severity: graphfile.SeverityWarning,
				Rule:     "self_loop",
				Message:  fmt.Sprintf("self-loop on node %s", e.From),
				Line:     e.Line,
			})
		}
	}
	return diags
}

// checkDepot verifies that routes can leave and re-enter the depot.
func checkDepot(inst *graphfile.Instance) []graphfile.Diagnostic {
	if len(stopIDs(inst)) == 0 {
		return nil
	}
	var out, in bool
	for _, e := range inst.Edges {
		out = out || e.From.IsDepot()
		in = in || e.To.IsDepot()
	}
	var diags []graphfile.Diagnostic
	if !out {
		diags = append(diags, graphfile.Diagnostic{
			Severity: graphfile.SeverityError,
			Rule:     "depot_outgoing",
			Message:  "no edge leaves the depot (node 0), so there is no Source",
		})
	}
	if !in {
		diags = append(diags, graphfile.Diagnostic{
			Severity: graphfile.SeverityError,
			Rule:     "depot_incoming",
			Message:  "no edge enters the depot (node 0), so there is no Sink",
		})
	}
	return diags
}

// checkCapacity flags stops whose demand alone exceeds the vehicle capacity.
func checkCapacity(inst *graphfile.Instance, capacity int) []graphfile.Diagnostic {
	if capacity <= 0 {
		return nil
	}
	var diags []graphfile.Diagnostic
	demands := inst.Demands()
	lines := demandLines(inst)
	for _, id := range inst.DemandIDs() {
		if demands[id] > capacity {
			diags = append(diags, graphfile.Diagnostic{
				Severity: graphfile.SeverityError,
				Rule:     "capacity",
				Message:  fmt.Sprintf("node %d demand %d exceeds capacity %d", id, demands[id], capacity),
				Line:     lines[id],
			})
		}
	}
	return diags
}

// checkUndeclaredNodes flags edge endpoints with no demand line. They route
// with demand 0.
func checkUndeclaredNodes(inst *graphfile.Instance) []graphfile.Diagnostic {
	demands := inst.Demands()
	seen := make(map[int]bool)
	var diags []graphfile.Diagnostic
	for _, e := range inst.Edges {
		for _, r := range []graphfile.Ref{e.From, e.To} {
			if r.IsDepot() || seen[r.ID()] {
				continue
			}
			if _, ok := demands[r.ID()]; !ok {
				seen[r.ID()] = true
				diags = append(diags, graphfile.Diagnostic{
					Severity: graphfile.SeverityWarning,
					Rule:     "undeclared_node",
					Message:  fmt.Sprintf("node %d appears in an edge but has no demand line; it routes with demand 0", r.ID()),
					Line:     e.Line,
				})
			}
		}
	}
	return diags
}

// checkIsolatedNodes flags demand nodes that no edge mentions.
func checkIsolatedNodes(inst *graphfile.Instance) []graphfile.Diagnostic {
	used := make(map[int]bool)
	for _, e := range inst.Edges {
		used[e.From.ID()] = true
		used[e.To.ID()] = true
	}
	lines := demandLines(inst)
	var diags []graphfile.Diagnostic
	for _, id := range inst.DemandIDs() {
		if !used[id] {
			diags = append(diags, graphfile.Diagnostic{
				Severity: graphfile.SeverityWarning,
				Rule:     "isolated_node",
				Message:  fmt.Sprintf("node %d has no edges and cannot be routed", id),
				Line:     lines[id],
			})
		}
	}
	return diags
}

// checkReachability walks forward from the depot and backward into it, and
// flags connected stops that miss either walk.
func checkReachability(inst *graphfile.Instance) []graphfile.Diagnostic {
	forward := make(map[graphfile.Ref][]graphfile.Ref)
	backward := make(map[graphfile.Ref][]graphfile.Ref)
	for _, e := range inst.Edges {
		forward[e.From] = append(forward[e.From], e.To)
		backward[e.To] = append(backward[e.To], e.From)
	}
	depot := graphfile.Depot()
	if len(forward[depot]) == 0 || len(backward[depot]) == 0 {
		return nil
	}
	fromDepot := walk(forward, depot)
	toDepot := walk(backward, depot)

	var diags []graphfile.Diagnostic
	for _, id := range stopIDs(inst) {
		ref := graphfile.Stop(id)
		if len(forward[ref]) == 0 && len(backward[ref]) == 0 {
			continue
		}
		if !fromDepot[ref] {
			diags = append(diags, graphfile.Diagnostic{
				Severity: graphfile.SeverityWarning,
				Rule:     "reachability",
				Message:  fmt.Sprintf("node %d is not reachable from Source", id),
			})
		}
		if !toDepot[ref] {
			diags = append(diags, graphfile.Diagnostic{
				Severity: graphfile.SeverityWarning,
				Rule:     "sink_reachability",
				Message:  fmt.Sprintf("node %d has no path to Sink", id),
			})
		}
	}
	return diags
}

// walk returns every ref reachable from start over adj, start excluded unless
// a cycle leads back to it.
func walk(adj map[graphfile.Ref][]graphfile.Ref, start graphfile.Ref) map[graphfile.Ref]bool {
	visited := make(map[graphfile.Ref]bool)
	queue := []graphfile.Ref{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adj[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// checkTrailing reports lines after the last declared edge.
func checkTrailing(inst *graphfile.Instance) []graphfile.Diagnostic {
	if inst.Trailing == 0 {
		return nil
	}
	return []graphfile.Diagnostic{{
		Severity: graphfile.SeverityInfo,
		Rule:     "trailing_lines",
		Message:  fmt.Sprintf("%d line(s) after the last declared edge were ignored", inst.Trailing),
	}}
}

// stopIDs returns every regular node id named by a demand line or an edge.
func stopIDs(inst *graphfile.Instance) []int {
	set := make(map[int]bool)
	for _, d := range inst.Entries {
		set[d.Node] = true
	}
	for _, e := range inst.Edges {
		for _, r := range []graphfile.Ref{e.From, e.To} {
			if !r.IsDepot() {
				set[r.ID()] = true
			}
		}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// demandLines maps each node to the line of its winning demand entry.
func demandLines(inst *graphfile.Instance) map[int]int {
	lines := make(map[int]int, len(inst.Entries))
	for _, d := range inst.Entries {
		lines[d.Node] = d.Line
	}
	return lines
}
