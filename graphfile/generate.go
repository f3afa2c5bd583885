// ABOUTME: Random instance generator used by the generate command and by solver tests.
// ABOUTME: Every stop gets arcs from and to the depot, so generated instances are always routable.
package graphfile

import (
	"fmt"
	"math/rand/v2"
)

// GenerateOptions controls Generate.
type GenerateOptions struct {
	Stops     int
	Density   float64
	Seed      uint64
	MaxDemand int
	MaxCost   int
}

// DefaultGenerateOptions returns a ten-stop instance with a quarter of the
// stop-to-stop arcs present.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{Stops: 10, Density: 0.25, Seed: 1, MaxDemand: 5, MaxCost: 20}
}

// Generate builds a random instance. The same options always yield the same
// instance. Demands fall in [1, MaxDemand], costs in [1, MaxCost]; a stop-to-stop
// arc exists with probability Density.
func Generate(opts GenerateOptions) (*Instance, error) {
	switch {
	case opts.Stops < 0:
		return nil, fmt.Errorf("generate: stops must be >= 0, got %d", opts.Stops)
	case opts.Density < 0 || opts.Density > 1:
		return nil, fmt.Errorf("generate: density must be in [0, 1], got %g", opts.Density)
	case opts.MaxDemand < 1 || opts.MaxDemand > MaxValue:
		return nil, fmt.Errorf("generate: max demand must be in [1, %d], got %d", MaxValue, opts.MaxDemand)
	case opts.MaxCost < 1 || opts.MaxCost > MaxValue:
		return nil, fmt.Errorf("generate: max cost must be in [1, %d], got %d", MaxValue, opts.MaxCost)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	cost := func() int { return 1 + rng.IntN(opts.MaxCost) }

	inst := &Instance{NodeCount: opts.Stops + 1}
	line := 2
	for id := 1; id <= opts.Stops; id++ {
		inst.Entries = append(inst.Entries, Demand{Node: id, Amount: 1 + rng.IntN(opts.MaxDemand), Line: line})
		line++
	}
	line++ // edge count

	addEdge := func(from, to Ref) {
		inst.Edges = append(inst.Edges, Edge{From: from, To: to, Cost: cost(), Line: line})
		line++
	}
	for id := 1; id <= opts.Stops; id++ {
		addEdge(Depot(), Stop(id))
		addEdge(Stop(id), Depot())
	}
	for from := 1; from <= opts.Stops; from++ {
		for to := 1; to <= opts.Stops; to++ {
			if from != to && rng.Float64() < opts.Density {
				addEdge(Stop(from), Stop(to))
			}
		}
	}
	return inst, nil
}
