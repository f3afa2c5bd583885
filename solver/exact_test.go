// ABOUTME: Tests for the exact back end: hand-checked optima, limits, tie-breaking, size cap, and cancellation.
// ABOUTME: Also checks the exact optimum never exceeds the greedy cost on generated instances.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/2389-research/routegraph/graphfile"
	"github.com/2389-research/routegraph/network"
	"github.com/google/go-cmp/cmp"
)

func TestExactOptimum(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		routes [][]int64
		cost   int
	}{
		{"defaults merge 1 and 2", DefaultParams(), [][]int64{{1, 2}, {3}}, 35},
		{"one stop per route", Params{Capacity: 15, MaxStops: 1}, [][]int64{{1}, {2}, {3}}, 41},
		{"capacity splits 1 and 2", Params{Capacity: 7, MaxStops: 5}, [][]int64{{1}, {2}, {3}}, 41},
	}

	net := mustNetwork(t, threeStops)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol, err := (&Exact{Workers: 2}).Solve(context.Background(), net, tt.params)
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if diff := cmp.Diff(tt.routes, stopsOf(sol)); diff != "" {
				t.Errorf("routes mismatch (-want +got):\n%s", diff)
			}
			if sol.Cost != tt.cost {
				t.Errorf("cost = %d, want %d", sol.Cost, tt.cost)
			}
			checkFeasible(t, net, tt.params, sol)
		})
	}
}

func TestExactRouteDetails(t *testing.T) {
	net := mustNetwork(t, threeStops)
	sol, err := (&Exact{}).Solve(context.Background(), net, DefaultParams())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	want := []Route{
		{Stops: []int64{1, 2}, Cost: 23, Load: 8},
		{Stops: []int64{3}, Cost: 12, Load: 2},
	}
	if diff := cmp.Diff(want, sol.Routes); diff != "" {
		t.Errorf("routes mismatch (-want +got):\n%s", diff)
	}
	if sol.Solver != "exact" {
		t.Errorf("Solver = %q", sol.Solver)
	}
}

func TestExactIsolatedStopIsInfeasible(t *testing.T) {
	net := mustNetwork(t, isolatedStop)
	_, err := (&Exact{}).Solve(context.Background(), net, DefaultParams())
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Solver != "exact" {
		t.Fatalf("expected *Error from exact, got %T", err)
	}
	if !strings.Contains(err.Error(), "stop 3") {
		t.Errorf("error should name stop 3: %v", err)
	}
}

func TestExactTieBreaksLexicographically(t *testing.T) {
	net := mustNetwork(t, "3\n1 1\n2 1\n6\n0 1 1\n1 2 1\n2 0 1\n0 2 1\n2 1 1\n1 0 1\n")
	for i := 0; i < 5; i++ {
		sol, err := (&Exact{Workers: 4}).Solve(context.Background(), net, DefaultParams())
		if err != nil {
			t.Fatalf("Solve: %v", err)
		}
		if diff := cmp.Diff([][]int64{{1, 2}}, stopsOf(sol)); diff != "" {
			t.Fatalf("run %d: routes mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestExactRespectsArcDirection(t *testing.T) {
	// 2 -> 1 exists but 1 -> 2 does not, so the merged route must be [2 1].
	net := mustNetwork(t, "3\n1 1\n2 1\n4\n0 2 1\n2 1 1\n1 0 1\n2 0 50\n")
	sol, err := (&Exact{}).Solve(context.Background(), net, DefaultParams())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if diff := cmp.Diff([][]int64{{2, 1}}, stopsOf(sol)); diff != "" {
		t.Errorf("routes mismatch (-want +got):\n%s", diff)
	}
	if sol.Cost != 3 {
		t.Errorf("cost = %d, want 3", sol.Cost)
	}
}

func TestExactTooLarge(t *testing.T) {
	var b strings.Builder
	n := MaxExactStops + 1
	fmt.Fprintf(&b, "%d\n", n+1)
	for id := 1; id <= n; id++ {
		fmt.Fprintf(&b, "%d 1\n", id)
	}
	fmt.Fprintf(&b, "%d\n", 2*n)
	for id := 1; id <= n; id++ {
		fmt.Fprintf(&b, "0 %d 1\n%d 0 1\n", id, id)
	}
	net := mustNetwork(t, b.String())

	if _, err := (&Exact{}).Solve(context.Background(), net, DefaultParams()); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

// completeDigraph has n stops of demand 1, an arc of cost 1 between every pair
// of stops, and arcs to and from the depot.
func completeDigraph(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", n+1)
	for id := 1; id <= n; id++ {
		fmt.Fprintf(&b, "%d 1\n", id)
	}
	fmt.Fprintf(&b, "%d\n", n*(n+1))
	for from := 1; from <= n; from++ {
		fmt.Fprintf(&b, "0 %d 1\n%d 0 1\n", from, from)
		for to := 1; to <= n; to++ {
			if from != to {
				fmt.Fprintf(&b, "%d %d 1\n", from, to)
			}
		}
	}
	return b.String()
}

func TestExactRefusesOversizedSearch(t *testing.T) {
	net := mustNetwork(t, completeDigraph(13))
	p := Params{Capacity: 100, MaxStops: 13}

	start := time.Now()
	_, err := (&Exact{}).Solve(context.Background(), net, p)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("refusal took %v", elapsed)
	}

	if _, err := (&Exact{MaxSteps: 2}).Solve(context.Background(), mustNetwork(t, threeStops), DefaultParams()); !errors.Is(err, ErrTooLarge) {
		t.Errorf("MaxSteps 2: expected ErrTooLarge, got %v", err)
	}
}

func TestExactDefaultLimitsFitTwentyDenseStops(t *testing.T) {
	net := mustNetwork(t, completeDigraph(MaxExactStops))
	ix := newIndex(&problem{net: net, p: DefaultParams(), stops: net.Stops()})
	// 20 + 20*19 + ... + 20*19*18*17*16 walk calls.
	if steps := ix.searchSteps(MaxSearchSteps); steps != 1_984_000 {
		t.Errorf("searchSteps = %d, want 1984000", steps)
	}
}

func TestExactHonoursCancellation(t *testing.T) {
	net := mustNetwork(t, threeStops)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Exact{}).Solve(ctx, net, DefaultParams())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExactNeverWorseThanGreedy(t *testing.T) {
	for seed := uint64(1); seed <= 8; seed++ {
		opts := graphfile.GenerateOptions{Stops: 9, Density: 0.4, Seed: seed, MaxDemand: 6, MaxCost: 30}
		net := mustGenerate(t, opts)
		p := DefaultParams()

		exact, err := (&Exact{}).Solve(context.Background(), net, p)
		if err != nil {
			t.Fatalf("seed %d exact: %v", seed, err)
		}
		checkFeasible(t, net, p, exact)

		greedy, err := (&Greedy{}).Solve(context.Background(), net, p)
		if err != nil {
			t.Fatalf("seed %d greedy: %v", seed, err)
		}
		if exact.Cost > greedy.Cost {
			t.Errorf("seed %d: exact cost %d above greedy cost %d", seed, exact.Cost, greedy.Cost)
		}
	}
}

func TestExactSingletonRoutesAlwaysAvailable(t *testing.T) {
	// With every stop tied to the depot, one stop per route is always feasible.
	net := mustGenerate(t, graphfile.GenerateOptions{Stops: 6, Density: 0, Seed: 3, MaxDemand: 4, MaxCost: 9})
	sol, err := (&Exact{}).Solve(context.Background(), net, Params{Capacity: 4, MaxStops: 1})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Routes) != 6 {
		t.Errorf("got %d routes, want 6", len(sol.Routes))
	}
	for _, r := range sol.Routes {
		want := []string{network.SourceLabel, fmt.Sprint(r.Stops[0]), network.SinkLabel}
		if diff := cmp.Diff(want, r.Labels()); diff != "" {
			t.Errorf("labels mismatch (-want +got):\n%s", diff)
		}
	}
}
