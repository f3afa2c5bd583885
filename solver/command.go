// ABOUTME: Command back end: hands the network to an external program as JSON on stdin and reads routes from stdout.
// ABOUTME: Returned routes are re-evaluated against the network, so costs and loads never come from the program.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/2389-research/routegraph/network"
)

// CommandRequest is written to the program's stdin.
type CommandRequest struct {
	Capacity int           `json:"capacity"`
	MaxStops int           `json:"max_stops"`
	Nodes    []CommandNode `json:"nodes"`
	Arcs     []CommandArc  `json:"arcs"`
}

// CommandNode describes one stop.
type CommandNode struct {
	ID     int64 `json:"id"`
	Demand int   `json:"demand"`
}

// CommandArc describes one arc. From and To are node labels, so the depot
// appears as "Source" and "Sink".
type CommandArc struct {
	From string `json:"from"`
	To   string `json:"to"`
	Cost int    `json:"cost"`
}

// CommandResponse is read from the program's stdout. Status is "ok" (or empty)
// with Routes listing stop ids, or "infeasible" with an optional Message.
type CommandResponse struct {
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	Routes  [][]int64 `json:"routes"`
}

// Command runs an external solver program once per Solve call.
type Command struct {
	Path string
	Args []string
}

func (c *Command) Name() string { return "command" }

func (c *Command) Solve(ctx context.Context, net *network.Network, p Params) (*Solution, error) {
	pr, err := prepare(c.Name(), net, p)
	if err != nil {
		return nil, err
	}
	if len(pr.stops) == 0 {
		return newSolution(c.Name(), nil), nil
	}

	body, err := json.Marshal(NewCommandRequest(net, p))
	if err != nil {
		return nil, &Error{Solver: c.Name(), Err: fmt.Errorf("encode request: %w", err)}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(body)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Solver: c.Name(), Err: ctx.Err()}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fail(c.Name(), "run %s: %w: %s", c.Path, err, msg)
		}
		return nil, fail(c.Name(), "run %s: %w", c.Path, err)
	}

	var resp CommandResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fail(c.Name(), "decode response: %w", err)
	}
	switch resp.Status {
	case "", "ok":
	case "infeasible":
		if resp.Message != "" {
			return nil, fail(c.Name(), "%s: %w", resp.Message, ErrInfeasible)
		}
		return nil, &Error{Solver: c.Name(), Err: ErrInfeasible}
	default:
		return nil, fail(c.Name(), "unknown response status %q", resp.Status)
	}

	routes, err := checkRoutes(net, p, resp.Routes)
	if err != nil {
		return nil, &Error{Solver: c.Name(), Err: err}
	}
	return newSolution(c.Name(), routes), nil
}

// NewCommandRequest encodes net and p in the command protocol.
func NewCommandRequest(net *network.Network, p Params) CommandRequest {
	req := CommandRequest{Capacity: p.Capacity, MaxStops: p.MaxStops}
	for _, s := range net.Stops() {
		req.Nodes = append(req.Nodes, CommandNode{ID: s.ID(), Demand: s.Demand()})
	}
	for _, a := range net.Arcs() {
		req.Arcs = append(req.Arcs, CommandArc{From: a.F.Label(), To: a.T.Label(), Cost: a.Cost})
	}
	return req
}

// checkRoutes evaluates externally produced routes and verifies that they
// visit every stop exactly once within the limits.
func checkRoutes(net *network.Network, p Params, raw [][]int64) ([]Route, error) {
	seen := make(map[int64]int)
	routes := make([]Route, 0, len(raw))
	for i, stops := range raw {
		if len(stops) == 0 {
			return nil, fmt.Errorf("route %d is empty", i+1)
		}
		if len(stops) > p.MaxStops {
			return nil, fmt.Errorf("route %d has %d stops, limit %d", i+1, len(stops), p.MaxStops)
		}
		r, err := evaluate(net, stops)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i+1, err)
		}
		if r.Load > p.Capacity {
			return nil, fmt.Errorf("route %d load %d exceeds capacity %d", i+1, r.Load, p.Capacity)
		}
		for _, id := range stops {
			if prev, dup := seen[id]; dup {
				return nil, fmt.Errorf("stop %d on routes %d and %d", id, prev, i+1)
			}
			seen[id] = i + 1
		}
		routes = append(routes, r)
	}
	for _, s := range net.Stops() {
		if _, ok := seen[s.ID()]; !ok {
			return nil, fmt.Errorf("stop %s not visited", s)
		}
	}
	return routes, nil
}
