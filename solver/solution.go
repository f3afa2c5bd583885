// ABOUTME: Route and Solution types returned by every back end, plus route evaluation against a network.
// ABOUTME: BestRoutes gives the 1-based route map rendered as Source ... Sink label sequences.
package solver

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/2389-research/routegraph/network"
)

// Route is one vehicle tour. Stops lists the regular nodes visited between
// Source and Sink.
type Route struct {
	Stops []int64 `json:"stops" yaml:"stops"`
	Cost  int     `json:"cost" yaml:"cost"`
	Load  int     `json:"load" yaml:"load"`
}

// Labels returns the full visit sequence including the depot endpoints.
func (r Route) Labels() []string {
	out := make([]string, 0, len(r.Stops)+2)
	out = append(out, network.SourceLabel)
	for _, id := range r.Stops {
		out = append(out, strconv.FormatInt(id, 10))
	}
	return append(out, network.SinkLabel)
}

// Solution is the result of one Solve call.
type Solution struct {
	// Solver names the back end that produced the routes.
	Solver string  `json:"solver" yaml:"solver"`
	Routes []Route `json:"routes" yaml:"routes"`
	Cost   int     `json:"cost" yaml:"cost"`
}

// BestRoutes numbers the routes from 1 in solution order.
func (s *Solution) BestRoutes() map[int][]string {
	out := make(map[int][]string, len(s.Routes))
	for i, r := range s.Routes {
		out[i+1] = r.Labels()
	}
	return out
}

// newSolution orders the routes by first stop and totals their cost.
func newSolution(solver string, routes []Route) *Solution {
	sort.SliceStable(routes, func(i, j int) bool {
		return slices.Compare(routes[i].Stops, routes[j].Stops) < 0
	})
	sol := &Solution{Solver: solver, Routes: routes}
	for _, r := range routes {
		sol.Cost += r.Cost
	}
	if sol.Routes == nil {
		sol.Routes = []Route{}
	}
	return sol
}

// evaluate walks Source -> stops -> Sink and sums arc costs and stop demands.
// It fails on unknown stops and missing arcs.
func evaluate(net *network.Network, stops []int64) (Route, error) {
	r := Route{Stops: stops}
	prev := network.SourceID
	for _, id := range stops {
		node := net.Node(id)
		if node == nil || !node.IsStop() {
			return Route{}, fmt.Errorf("unknown stop %d", id)
		}
		arc, ok := net.Arc(prev, id)
		if !ok {
			return Route{}, fmt.Errorf("no arc %s -> %s", net.Label(prev), net.Label(id))
		}
		r.Cost += arc.Cost
		r.Load += node.Demand()
		prev = id
	}
	arc, ok := net.Arc(prev, network.SinkID)
	if !ok {
		return Route{}, fmt.Errorf("no arc %s -> %s", net.Label(prev), network.SinkLabel)
	}
	r.Cost += arc.Cost
	return r, nil
}
