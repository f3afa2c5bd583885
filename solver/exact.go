// ABOUTME: Exact back end: enumerates every feasible elementary route, then picks the cheapest set partition.
// ABOUTME: Route enumeration is split by first stop across an errgroup; the partition is a bitmask dynamic program.
package solver

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"runtime"
	"slices"
	"sort"

	"github.com/2389-research/routegraph/network"
	"golang.org/x/sync/errgroup"
)

// MaxExactStops is the largest stop count the exact back end accepts.
const MaxExactStops = 20

// MaxSearchSteps is the default cap on depth-first steps the exact back end
// will take. Twenty stops on a complete digraph with five stops per route stay
// under it.
const MaxSearchSteps = 1 << 22

// ctxCheckEvery bounds how many search steps run between context checks.
const ctxCheckEvery = 1 << 12

// Exact finds a minimum-cost routing. Among equal-cost routes covering the same
// stops the lexicographically smallest stop order wins, so results are
// deterministic.
type Exact struct {
	// Workers bounds the enumeration goroutines; 0 means GOMAXPROCS.
	Workers int
	// MaxSteps caps the route search; 0 means MaxSearchSteps.
	MaxSteps int
}

func (e *Exact) Name() string { return "exact" }

// candidate is the cheapest known route over one set of stops.
type candidate struct {
	mask  uint32
	stops []int64
	cost  int
	load  int
}

func (c candidate) better(o candidate) bool {
	if c.cost != o.cost {
		return c.cost < o.cost
	}
	return slices.Compare(c.stops, o.stops) < 0
}

// hop is an arc between two stops, addressed by stop index.
type hop struct {
	to   int
	cost int
}

// index is the stop-indexed view of the network used during enumeration.
type index struct {
	ids      []int64
	demand   []int
	next     [][]hop
	fromSrc  []int // -1 when Source has no arc to the stop
	toSink   []int // -1 when the stop has no arc to Sink
	capacity int
	maxStops int
}

func newIndex(pr *problem) *index {
	n := len(pr.stops)
	ix := &index{
		ids:      make([]int64, n),
		demand:   make([]int, n),
		next:     make([][]hop, n),
		fromSrc:  make([]int, n),
		toSink:   make([]int, n),
		capacity: pr.p.Capacity,
		maxStops: pr.p.MaxStops,
	}
	pos := make(map[int64]int, n)
	for i, s := range pr.stops {
		ix.ids[i] = s.ID()
		ix.demand[i] = s.Demand()
		pos[s.ID()] = i
	}
	for i, id := range ix.ids {
		ix.fromSrc[i], ix.toSink[i] = -1, -1
		if a, ok := pr.net.Arc(network.SourceID, id); ok {
			ix.fromSrc[i] = a.Cost
		}
		if a, ok := pr.net.Arc(id, network.SinkID); ok {
			ix.toSink[i] = a.Cost
		}
		for _, succ := range pr.net.Successors(id) {
			j, ok := pos[succ.ID()]
			if !ok {
				continue
			}
			a, _ := pr.net.Arc(id, succ.ID())
			ix.next[i] = append(ix.next[i], hop{to: j, cost: a.Cost})
		}
	}
	return ix
}

func (e *Exact) Solve(ctx context.Context, net *network.Network, p Params) (*Solution, error) {
	pr, err := prepare(e.Name(), net, p)
	if err != nil {
		return nil, err
	}
	if len(pr.stops) == 0 {
		return newSolution(e.Name(), nil), nil
	}
	if len(pr.stops) > MaxExactStops {
		return nil, fail(e.Name(), "%d stops, limit %d: %w", len(pr.stops), MaxExactStops, ErrTooLarge)
	}

	ix := newIndex(pr)
	limit := e.MaxSteps
	if limit <= 0 {
		limit = MaxSearchSteps
	}
	if steps := ix.searchSteps(limit); steps > limit {
		return nil, fail(e.Name(), "route search over %d steps with max stops %d: %w", limit, ix.maxStops, ErrTooLarge)
	}

	routes, err := e.enumerate(ctx, ix)
	if err != nil {
		return nil, &Error{Solver: e.Name(), Err: err}
	}

	full := uint32(1)<<len(ix.ids) - 1
	var covered uint32
	for mask := range routes {
		covered |= mask
	}
	if missing := full &^ covered; missing != 0 {
		return nil, fail(e.Name(), "stop %d is on no route within the limits: %w",
			ix.ids[bits.TrailingZeros32(missing)], ErrInfeasible)
	}

	chosen, err := partition(ctx, ix, routes, full)
	if err != nil {
		return nil, &Error{Solver: e.Name(), Err: err}
	}

	out := make([]Route, len(chosen))
	for i, c := range chosen {
		out[i] = Route{Stops: c.stops, Cost: c.cost, Load: c.load}
	}
	return newSolution(e.Name(), out), nil
}

// searchSteps counts the walk calls enumerate would make, stopping as soon as
// the count passes limit.
func (ix *index) searchSteps(limit int) int {
	steps := 0
	var count func(last int, mask uint32, depth, load int)
	count = func(last int, mask uint32, depth, load int) {
		steps++
		if depth == ix.maxStops {
			return
		}
		for _, h := range ix.next[last] {
			if steps > limit {
				return
			}
			bit := uint32(1) << h.to
			if mask&bit != 0 || load+ix.demand[h.to] > ix.capacity {
				continue
			}
			count(h.to, mask|bit, depth+1, load+ix.demand[h.to])
		}
	}
	for i, c := range ix.fromSrc {
		if steps > limit {
			break
		}
		if c >= 0 && ix.demand[i] <= ix.capacity {
			count(i, uint32(1)<<i, 1, ix.demand[i])
		}
	}
	return steps
}

// enumerate returns the cheapest feasible route for every reachable stop set.
func (e *Exact) enumerate(ctx context.Context, ix *index) (map[uint32]candidate, error) {
	var firsts []int
	for i, c := range ix.fromSrc {
		if c >= 0 && ix.demand[i] <= ix.capacity {
			firsts = append(firsts, i)
		}
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]map[uint32]candidate, len(firsts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k, first := range firsts {
		g.Go(func() error {
			w := &walker{ctx: gctx, ix: ix, best: make(map[uint32]candidate)}
			w.path = append(w.path, first)
			if err := w.walk(uint32(1)<<first, ix.fromSrc[first], ix.demand[first]); err != nil {
				return err
			}
			results[k] = w.best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[uint32]candidate)
	for _, part := range results {
		for mask, c := range part {
			if cur, ok := merged[mask]; !ok || c.better(cur) {
				merged[mask] = c
			}
		}
	}
	return merged, nil
}

// walker runs the depth-first search below one first stop.
type walker struct {
	ctx   context.Context
	ix    *index
	path  []int
	best  map[uint32]candidate
	steps int
}

func (w *walker) walk(mask uint32, cost, load int) error {
	w.steps++
	if w.steps%ctxCheckEvery == 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
	}

	last := w.path[len(w.path)-1]
	if sink := w.ix.toSink[last]; sink >= 0 {
		w.offer(mask, cost+sink, load)
	}
	if len(w.path) == w.ix.maxStops {
		return nil
	}
	for _, h := range w.ix.next[last] {
		bit := uint32(1) << h.to
		if mask&bit != 0 || load+w.ix.demand[h.to] > w.ix.capacity {
			continue
		}
		w.path = append(w.path, h.to)
		err := w.walk(mask|bit, cost+h.cost, load+w.ix.demand[h.to])
		w.path = w.path[:len(w.path)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) offer(mask uint32, cost, load int) {
	cur, ok := w.best[mask]
	if ok && cost > cur.cost {
		return
	}
	stops := make([]int64, len(w.path))
	for i, p := range w.path {
		stops[i] = w.ix.ids[p]
	}
	c := candidate{mask: mask, stops: stops, cost: cost, load: load}
	if !ok || c.better(cur) {
		w.best[mask] = c
	}
}

// partition picks the cheapest set of disjoint routes covering full. Each
// step extends a covered set with a route through its lowest uncovered stop.
func partition(ctx context.Context, ix *index, routes map[uint32]candidate, full uint32) ([]candidate, error) {
	byLow := make([][]candidate, len(ix.ids))
	for mask, c := range routes {
		low := bits.TrailingZeros32(mask)
		byLow[low] = append(byLow[low], c)
	}
	for _, list := range byLow {
		sort.Slice(list, func(i, j int) bool { return list[i].better(list[j]) })
	}

	size := int(full) + 1
	best := make([]int, size)
	from := make([]uint32, size)
	pick := make([]int32, size)
	for i := range best {
		best[i] = math.MaxInt
	}
	best[0] = 0

	for mask := uint32(0); mask < full; mask++ {
		if mask%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if best[mask] == math.MaxInt {
			continue
		}
		low := bits.TrailingZeros32(^mask)
		for j, c := range byLow[low] {
			if c.mask&mask != 0 {
				continue
			}
			next := mask | c.mask
			if v := best[mask] + c.cost; v < best[next] {
				best[next] = v
				from[next] = mask
				pick[next] = int32(j)
			}
		}
	}
	if best[full] == math.MaxInt {
		return nil, fmt.Errorf("no combination of routes covers every stop: %w", ErrInfeasible)
	}

	var chosen []candidate
	for m := full; m != 0; m = from[m] {
		prev := from[m]
		chosen = append(chosen, byLow[bits.TrailingZeros32(^prev)][pick[m]])
	}
	return chosen, nil
}
