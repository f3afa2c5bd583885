// ABOUTME: Tests for DOT serialisation of routing networks with and without a solution overlay.
// ABOUTME: Graphviz-backed formats are exercised only when the dot command is installed.
package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/2389-research/routegraph/graphfile"
	"github.com/2389-research/routegraph/network"
	"github.com/2389-research/routegraph/solver"
)

const feasible = `4
1 3
2 5
3 2
7
0 1 10
0 2 4
0 3 6
1 2 5
1 0 7
2 0 8
3 0 6
`

func mustNetwork(t *testing.T, src string) *network.Network {
	t.Helper()
	inst, err := graphfile.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return network.Build(inst)
}

func solution() *solver.Solution {
	return &solver.Solution{
		Solver: "exact",
		Cost:   35,
		Routes: []solver.Route{
			{Stops: []int64{1, 2}, Cost: 23, Load: 8},
			{Stops: []int64{3}, Cost: 12, Load: 2},
		},
	}
}

func TestToDOTNetworkOnly(t *testing.T) {
	out := ToDOT(mustNetwork(t, feasible), nil)

	for _, want := range []string{
		"digraph routes {\n",
		`  rankdir="LR"`,
		`  Source [label="Source", shape="Mdiamond"]`,
		`  Sink [label="Sink", shape="Msquare"]`,
		`  n1 [label="1\nd=3"]`,
		`  n3 [label="3\nd=2"]`,
		`  Source -> n1 [label="10"]`,
		`  n1 -> n2 [label="5"]`,
		`  n2 -> Sink [label="8"]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dashed") {
		t.Error("arcs should not be dashed without a solution")
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Error("DOT should close the digraph")
	}
}

func TestToDOTSourceBeforeStopsBeforeSink(t *testing.T) {
	out := ToDOT(mustNetwork(t, feasible), nil)
	src := strings.Index(out, "  Source [")
	stop := strings.Index(out, "  n1 [")
	sink := strings.Index(out, "  Sink [")
	if !(src < stop && stop < sink) {
		t.Errorf("node order wrong: Source@%d n1@%d Sink@%d", src, stop, sink)
	}
}

func TestToDOTWithSolution(t *testing.T) {
	out := ToDOT(mustNetwork(t, feasible), solution())

	for _, want := range []string{
		`label="exact: 2 route(s), cost 35"`,
		`  n1 [fillcolor="` + RouteColors[0] + `", fontcolor="white", label="1\nd=3", style="filled"]`,
		`  n3 [fillcolor="` + RouteColors[1] + `", fontcolor="white", label="3\nd=2", style="filled"]`,
		`  Source -> n1 [color="` + RouteColors[0] + `", label="10 (r1)", penwidth="2"]`,
		`  n2 -> Sink [color="` + RouteColors[0] + `", label="8 (r1)", penwidth="2"]`,
		`  n3 -> Sink [color="` + RouteColors[1] + `", label="6 (r2)", penwidth="2"]`,
		`  Source -> n2 [color="` + UnusedArcColor + `", label="4", style="dashed"]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT missing %q:\n%s", want, out)
		}
	}
}

func TestToDOTDeterministic(t *testing.T) {
	net := mustNetwork(t, feasible)
	first := ToDOT(net, solution())
	for i := 0; i < 5; i++ {
		if got := ToDOT(net, solution()); got != first {
			t.Fatalf("run %d produced different DOT", i)
		}
	}
}

func TestToDOTNilNetwork(t *testing.T) {
	if got := ToDOT(nil, nil); got != "" {
		t.Errorf("ToDOT(nil) = %q, want empty", got)
	}
	if _, err := Render(context.Background(), nil, nil, "dot"); err == nil {
		t.Error("Render(nil) should fail")
	}
}

func TestRenderDOTFormat(t *testing.T) {
	net := mustNetwork(t, feasible)
	data, err := Render(context.Background(), net, nil, "dot")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(data) != ToDOT(net, nil) {
		t.Error("dot format should return the DOT text unchanged")
	}
}

func TestRenderUnsupportedFormat(t *testing.T) {
	_, err := Render(context.Background(), mustNetwork(t, feasible), nil, "gif")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
	if _, err := RenderDOTSource(context.Background(), "", "svg"); err == nil {
		t.Error("empty DOT text should fail")
	}
}

func TestRenderSVG(t *testing.T) {
	if !GraphvizAvailable() {
		t.Skip("graphviz not installed")
	}
	data, err := Render(context.Background(), mustNetwork(t, feasible), solution(), "svg")
	if err != nil {
		t.Fatalf("Render svg: %v", err)
	}
	if !bytes.Contains(data, []byte("<svg")) {
		t.Errorf("output is not SVG: %.80s", data)
	}
}

func TestRenderPNG(t *testing.T) {
	if !GraphvizAvailable() {
		t.Skip("graphviz not installed")
	}
	data, err := Render(context.Background(), mustNetwork(t, feasible), nil, "png")
	if err != nil {
		t.Fatalf("Render png: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}
