// ABOUTME: Auto back end: uses the exact solver while the instance is small enough to search, the fallback otherwise.
// ABOUTME: Logs the fallback so large instances are visible in the run output.
package solver

import (
	"context"
	"errors"
	"log"

	"github.com/2389-research/routegraph/network"
)

// Auto picks between an exact and a heuristic back end by instance size. The
// exact back end is tried first; it refuses instances over MaxExactStops or
// whose route search would pass its step cap, and those go to the fallback.
type Auto struct {
	Exact    *Exact
	Fallback Solver
}

func (a *Auto) Name() string { return "auto" }

func (a *Auto) Solve(ctx context.Context, net *network.Network, p Params) (*Solution, error) {
	if n := len(net.Stops()); n > MaxExactStops {
		log.Printf("component=solver action=fallback solver=%s reason=stops stops=%d limit=%d", a.Fallback.Name(), n, MaxExactStops)
		return a.Fallback.Solve(ctx, net, p)
	}
	sol, err := a.Exact.Solve(ctx, net, p)
	if errors.Is(err, ErrTooLarge) {
		log.Printf("component=solver action=fallback solver=%s reason=search stops=%d max_stops=%d", a.Fallback.Name(), len(net.Stops()), p.MaxStops)
		return a.Fallback.Solve(ctx, net, p)
	}
	return sol, err
}
