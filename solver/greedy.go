// ABOUTME: Greedy back end: builds routes by repeatedly taking the cheapest feasible arc from the current position.
// ABOUTME: A route closes at Sink when no stop fits; stops without a Sink arc are backed out and banned for that route.
package solver

import (
	"context"

	"github.com/2389-research/routegraph/network"
)

// Greedy is a nearest-neighbour heuristic. It has no size limit but may fail
// on instances the exact back end can route.
type Greedy struct{}

func (g *Greedy) Name() string { return "greedy" }

func (g *Greedy) Solve(ctx context.Context, net *network.Network, p Params) (*Solution, error) {
	pr, err := prepare(g.Name(), net, p)
	if err != nil {
		return nil, err
	}

	pending := make(map[int64]*network.Node, len(pr.stops))
	for _, s := range pr.stops {
		pending[s.ID()] = s
	}

	var routes []Route
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Solver: g.Name(), Err: err}
		}
		stops := g.route(pr, pending)
		if len(stops) == 0 {
			return nil, fail(g.Name(), "%d stops left that no route can take: %w", len(pending), ErrInfeasible)
		}
		r, err := evaluate(net, stops)
		if err != nil {
			return nil, &Error{Solver: g.Name(), Err: err}
		}
		routes = append(routes, r)
		for _, id := range stops {
			delete(pending, id)
		}
	}
	return newSolution(g.Name(), routes), nil
}

// route grows one route from Source over pending stops.
func (g *Greedy) route(pr *problem, pending map[int64]*network.Node) []int64 {
	var stops []int64
	load := 0
	onRoute := make(map[int64]bool)
	banned := make(map[int64]bool)

	for {
		cur := network.SourceID
		if len(stops) > 0 {
			cur = stops[len(stops)-1]
		}

		next := g.nearest(pr, cur, load, len(stops), func(id int64) bool {
			_, ok := pending[id]
			return ok && !onRoute[id] && !banned[id]
		})
		if next != nil {
			stops = append(stops, next.ID())
			onRoute[next.ID()] = true
			load += next.Demand()
			continue
		}

		if len(stops) == 0 {
			return nil
		}
		if _, ok := pr.net.Arc(cur, network.SinkID); ok {
			return stops
		}
		stops = stops[:len(stops)-1]
		delete(onRoute, cur)
		banned[cur] = true
		load -= pending[cur].Demand()
	}
}

// nearest returns the cheapest open successor of cur that fits the remaining
// capacity and stop budget. Ties go to the lower id.
func (g *Greedy) nearest(pr *problem, cur int64, load, count int, open func(int64) bool) *network.Node {
	if count >= pr.p.MaxStops {
		return nil
	}
	var best *network.Node
	bestCost := 0
	for _, succ := range pr.net.Successors(cur) {
		if !succ.IsStop() || !open(succ.ID()) || load+succ.Demand() > pr.p.Capacity {
			continue
		}
		arc, _ := pr.net.Arc(cur, succ.ID())
		if best == nil || arc.Cost < bestCost {
			best, bestCost = succ, arc.Cost
		}
	}
	return best
}
