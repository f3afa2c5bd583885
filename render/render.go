// ABOUTME: Converts a routing network, optionally overlaid with a solution, to DOT text and renders it via graphviz.
// ABOUTME: Provides ToDOT, Render, and RenderDOTSource; output is deterministic for a given network and solution.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/2389-research/routegraph/network"
	"github.com/2389-research/routegraph/solver"
)

// RouteColors is the palette cycled through for routes; route i uses
// RouteColors[i % len(RouteColors)].
var RouteColors = []string{
	"#1E88E5", // blue
	"#43A047", // green
	"#FB8C00", // orange
	"#8E24AA", // purple
	"#E53935", // red
	"#00ACC1", // teal
}

// UnusedArcColor greys out arcs no route travels when a solution is overlaid.
const UnusedArcColor = "#BDBDBD"

// Formats lists the supported output formats.
var Formats = []string{"dot", "svg", "png"}

// ToDOT serialises net as a DOT digraph. Source is drawn as an Mdiamond and
// Sink as an Msquare; stops show their demand and arcs their cost. When sol is
// non-nil, each route's stops and arcs are coloured and the remaining arcs are
// dashed grey.
func ToDOT(net *network.Network, sol *solver.Solution) string {
	if net == nil {
		return ""
	}

	var buf strings.Builder
	buf.WriteString("digraph routes {\n")

	graphAttrs := map[string]string{"rankdir": "LR"}
	if sol != nil {
		graphAttrs["label"] = fmt.Sprintf("%s: %d route(s), cost %d", sol.Solver, len(sol.Routes), sol.Cost)
	}
	writeAttrsBlock(&buf, graphAttrs)
	fmt.Fprintf(&buf, "  node [%s]\n", formatAttrs(map[string]string{"shape": "circle", "fontname": "Helvetica"}))

	stopRoute, arcRoute := overlay(sol)

	if src := net.Source(); src != nil {
		writeNode(&buf, src, map[string]string{"shape": "Mdiamond", "label": network.SourceLabel})
	}
	for _, s := range net.Stops() {
		attrs := map[string]string{"label": fmt.Sprintf("%s\\nd=%d", s.Label(), s.Demand())}
		if i, ok := stopRoute[s.ID()]; ok {
			attrs["style"] = "filled"
			attrs["fillcolor"] = routeColor(i)
			attrs["fontcolor"] = "white"
		}
		writeNode(&buf, s, attrs)
	}
	if sink := net.Sink(); sink != nil {
		writeNode(&buf, sink, map[string]string{"shape": "Msquare", "label": network.SinkLabel})
	}

	for _, a := range net.Arcs() {
		attrs := map[string]string{"label": strconv.Itoa(a.Cost)}
		if sol != nil {
			if i, ok := arcRoute[[2]int64{a.F.ID(), a.T.ID()}]; ok {
				attrs["color"] = routeColor(i)
				attrs["penwidth"] = "2"
				attrs["label"] = fmt.Sprintf("%d (r%d)", a.Cost, i+1)
			} else {
				attrs["color"] = UnusedArcColor
				attrs["style"] = "dashed"
			}
		}
		fmt.Fprintf(&buf, "  %s -> %s [%s]\n", nodeID(a.F), nodeID(a.T), formatAttrs(attrs))
	}

	buf.WriteString("}\n")
	return buf.String()
}

// overlay indexes which route visits each stop and travels each arc.
func overlay(sol *solver.Solution) (map[int64]int, map[[2]int64]int) {
	stops := make(map[int64]int)
	arcs := make(map[[2]int64]int)
	if sol == nil {
		return stops, arcs
	}
	for i, r := range sol.Routes {
		prev := network.SourceID
		for _, id := range r.Stops {
			stops[id] = i
			arcs[[2]int64{prev, id}] = i
			prev = id
		}
		arcs[[2]int64{prev, network.SinkID}] = i
	}
	return stops, arcs
}

func routeColor(i int) string {
	return RouteColors[i%len(RouteColors)]
}

// Render produces output for net and sol in the given format: "dot" returns
// the DOT text, "svg" and "png" shell out to graphviz.
func Render(ctx context.Context, net *network.Network, sol *solver.Solution, format string) ([]byte, error) {
	if net == nil {
		return nil, fmt.Errorf("cannot render nil network")
	}
	return RenderDOTSource(ctx, ToDOT(net, sol), format)
}

// GraphvizAvailable checks whether the graphviz dot command is installed and reachable.
func GraphvizAvailable() bool {
	_, err := exec.LookPath("dot")
	return err == nil
}

// RenderDOTSource renders raw DOT text. For "dot" it returns the input as-is.
func RenderDOTSource(ctx context.Context, dotText string, format string) ([]byte, error) {
	if dotText == "" {
		return nil, fmt.Errorf("cannot render empty DOT text")
	}

	switch format {
	case "dot":
		return []byte(dotText), nil
	case "svg", "png":
		return renderWithGraphviz(ctx, dotText, format)
	default:
		return nil, fmt.Errorf("unsupported format %q: supported formats are %s", format, strings.Join(Formats, ", "))
	}
}

// renderWithGraphviz pipes DOT text to the graphviz dot command and returns the output.
func renderWithGraphviz(ctx context.Context, dotText string, format string) ([]byte, error) {
	if !GraphvizAvailable() {
		return nil, fmt.Errorf("graphviz dot command not found: install graphviz to render %s output", format)
	}

	cmd := exec.CommandContext(ctx, "dot", "-T"+format)
	cmd.Stdin = strings.NewReader(dotText)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("graphviz dot command failed: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// nodeID returns the DOT identifier of a node. Stops are prefixed so numeric
// ids stay valid identifiers next to Source and Sink.
func nodeID(n *network.Node) string {
	if n.IsStop() {
		return "n" + n.Label()
	}
	return n.Label()
}

func writeNode(buf *strings.Builder, n *network.Node, attrs map[string]string) {
	fmt.Fprintf(buf, "  %s [%s]\n", nodeID(n), formatAttrs(attrs))
}

// writeAttrsBlock writes graph-level attributes as individual lines.
func writeAttrsBlock(buf *strings.Builder, attrs map[string]string) {
	for _, k := range sortedKeys(attrs) {
		fmt.Fprintf(buf, "  %s=%q\n", k, attrs[k])
	}
}

// formatAttrs formats a map of attributes as a DOT attribute list (key="value", key="value").
// Values are written verbatim between quotes so escapes such as \n reach graphviz.
func formatAttrs(attrs map[string]string) string {
	keys := sortedKeys(attrs)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(attrs[k], `"`, `\"`)
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, v))
	}
	return strings.Join(parts, ", ")
}

// sortedKeys returns the keys of a map in sorted order for deterministic output.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
