// ABOUTME: Solver boundary: the interface every routing back end implements, its parameters, and error taxonomy.
// ABOUTME: New builds a back end by name (auto, exact, greedy, command) from shared Options.
package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/2389-research/routegraph/network"
)

// Default parameters.
const (
	DefaultCapacity = 15
	DefaultMaxStops = 5
)

// Sentinel causes carried inside *Error.
var (
	ErrInfeasible    = errors.New("no feasible routing")
	ErrInvalidParams = errors.New("invalid solver parameters")
	ErrNoDepot       = errors.New("network has no Source or Sink")
	ErrTooLarge      = errors.New("instance too large for solver")
	ErrUnknownSolver = errors.New("unknown solver")
)

// Params are the constraints handed to a back end with the network.
type Params struct {
	// Capacity bounds the summed demand on one route.
	Capacity int
	// MaxStops bounds the number of stops on one route.
	MaxStops int
}

// DefaultParams returns capacity 15 and five stops per route.
func DefaultParams() Params {
	return Params{Capacity: DefaultCapacity, MaxStops: DefaultMaxStops}
}

// Validate rejects a capacity or stop limit below one.
func (p Params) Validate() error {
	if p.Capacity <= 0 || p.MaxStops <= 0 {
		return fmt.Errorf("capacity %d, max stops %d: %w", p.Capacity, p.MaxStops, ErrInvalidParams)
	}
	return nil
}

// Solver finds routes from Source to Sink that together visit every stop of
// the network once, each route within Params.
type Solver interface {
	Name() string
	Solve(ctx context.Context, net *network.Network, p Params) (*Solution, error)
}

// Error wraps every failure raised by a back end.
type Error struct {
	Solver string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("solver %s: %v", e.Solver, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(solver string, format string, args ...any) error {
	return &Error{Solver: solver, Err: fmt.Errorf(format, args...)}
}

// Options configures the back ends built by New.
type Options struct {
	// Workers bounds the goroutines of the exact enumerator; 0 means GOMAXPROCS.
	Workers int
	// Command is the executable and arguments of the command back end.
	Command []string
}

var constructors = map[string]func(Options) (Solver, error){
	"auto": func(o Options) (Solver, error) {
		return &Auto{Exact: &Exact{Workers: o.Workers}, Fallback: &Greedy{}}, nil
	},
	"exact": func(o Options) (Solver, error) {
		return &Exact{Workers: o.Workers}, nil
	},
	"greedy": func(Options) (Solver, error) {
		return &Greedy{}, nil
	},
	"command": func(o Options) (Solver, error) {
		if len(o.Command) == 0 {
			return nil, fmt.Errorf("command solver needs an executable: %w", ErrInvalidParams)
		}
		return &Command{Path: o.Command[0], Args: o.Command[1:]}, nil
	},
}

// New returns the back end registered under name.
func New(name string, opts Options) (Solver, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownSolver, name, Names())
	}
	return ctor(opts)
}

// Names lists the registered back ends.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// problem is the validated input shared by the built-in back ends.
type problem struct {
	net   *network.Network
	p     Params
	stops []*network.Node
}

// prepare checks the parameters and the depot, and rejects stops whose demand
// alone exceeds the capacity.
func prepare(solver string, net *network.Network, p Params) (*problem, error) {
	if err := p.Validate(); err != nil {
		return nil, &Error{Solver: solver, Err: err}
	}
	pr := &problem{net: net, p: p, stops: net.Stops()}
	if len(pr.stops) == 0 {
		return pr, nil
	}
	if net.Source() == nil || net.Sink() == nil {
		return nil, &Error{Solver: solver, Err: ErrNoDepot}
	}
	for _, s := range pr.stops {
		if s.Demand() > p.Capacity {
			return nil, fail(solver, "stop %s demand %d exceeds capacity %d: %w", s, s.Demand(), p.Capacity, ErrInfeasible)
		}
	}
	return pr, nil
}
