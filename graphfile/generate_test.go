// ABOUTME: Tests for the random instance generator: determinism, depot coverage, value ranges, and option checks.
// ABOUTME: Generated instances must survive a write-then-parse round trip unchanged.
package graphfile

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateDeterministic(t *testing.T) {
	opts := DefaultGenerateOptions()
	a, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, _ := Generate(opts)
	if diff := cmp.Diff(a, b, cmp.AllowUnexported(Ref{})); diff != "" {
		t.Errorf("same seed produced different instances (-a +b):\n%s", diff)
	}

	opts.Seed = 2
	c, _ := Generate(opts)
	if cmp.Equal(a, c, cmp.AllowUnexported(Ref{})) {
		t.Error("different seeds produced identical instances")
	}
}

func TestGenerateTiesEveryStopToDepot(t *testing.T) {
	opts := GenerateOptions{Stops: 12, Density: 0.3, Seed: 7, MaxDemand: 4, MaxCost: 10}
	inst, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if inst.NodeCount != 13 || len(inst.Entries) != 12 {
		t.Fatalf("node count %d, entries %d", inst.NodeCount, len(inst.Entries))
	}

	out := make(map[int]bool)
	in := make(map[int]bool)
	for _, e := range inst.Edges {
		if e.Cost < 1 || e.Cost > opts.MaxCost {
			t.Errorf("edge cost %d out of range", e.Cost)
		}
		if e.From == e.To {
			t.Errorf("self-loop on %s", e.From)
		}
		if e.From.IsDepot() {
			out[e.To.ID()] = true
		}
		if e.To.IsDepot() {
			in[e.From.ID()] = true
		}
	}
	for _, d := range inst.Entries {
		if d.Amount < 1 || d.Amount > opts.MaxDemand {
			t.Errorf("node %d demand %d out of range", d.Node, d.Amount)
		}
		if !out[d.Node] || !in[d.Node] {
			t.Errorf("node %d is missing a depot arc", d.Node)
		}
	}
}

func TestGenerateZeroDensity(t *testing.T) {
	inst, err := Generate(GenerateOptions{Stops: 5, Density: 0, Seed: 1, MaxDemand: 1, MaxCost: 1})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(inst.Edges) != 10 {
		t.Errorf("got %d edges, want only the 10 depot arcs", len(inst.Edges))
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	inst, err := Generate(DefaultGenerateOptions())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, inst); err != nil {
		t.Fatalf("Write: %v", err)
	}
	back, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(inst, back, cmp.AllowUnexported(Ref{})); diff != "" {
		t.Errorf("round trip mismatch (-generated +parsed):\n%s", diff)
	}
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	bad := []GenerateOptions{
		{Stops: -1, Density: 0.5, MaxDemand: 1, MaxCost: 1},
		{Stops: 3, Density: 1.5, MaxDemand: 1, MaxCost: 1},
		{Stops: 3, Density: 0.5, MaxDemand: 0, MaxCost: 1},
		{Stops: 3, Density: 0.5, MaxDemand: 1, MaxCost: 0},
		{Stops: 3, Density: 0.5, MaxDemand: 1, MaxCost: MaxValue + 1},
	}
	for _, opts := range bad {
		if _, err := Generate(opts); err == nil {
			t.Errorf("Generate(%+v) should fail", opts)
		}
	}
}
