// ABOUTME: Run orchestration shared by the CLI and the HTTP server: parse, build, solve, and optionally record.
// ABOUTME: Stops at the first failing stage; recording failures are logged and never fail the run.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/2389-research/routegraph/graphfile"
	"github.com/2389-research/routegraph/graphfile/lint"
	"github.com/2389-research/routegraph/history"
	"github.com/2389-research/routegraph/network"
	"github.com/2389-research/routegraph/solver"
	"github.com/oklog/ulid/v2"
)

// Recorder persists finished runs. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Config wires an Engine.
type Config struct {
	Solver   solver.Solver
	Params   solver.Params
	Recorder Recorder
	// Timeout bounds each solve call; 0 means no limit.
	Timeout time.Duration
	// Verbose logs per-stage timings.
	Verbose bool
}

// Engine runs graph files through the pipeline. It holds no per-run state and
// is safe for concurrent use when its Recorder is.
type Engine struct {
	cfg Config
}

// New returns an Engine. A nil Solver defaults to auto and zero Params to the
// default capacity and stop limit.
func New(cfg Config) (*Engine, error) {
	if cfg.Solver == nil {
		s, err := solver.New("auto", solver.Options{})
		if err != nil {
			return nil, err
		}
		cfg.Solver = s
	}
	if cfg.Params == (solver.Params{}) {
		cfg.Params = solver.DefaultParams()
	}
	return &Engine{cfg: cfg}, nil
}

// Params returns the solver parameters runs use.
func (e *Engine) Params() solver.Params {
	return e.cfg.Params
}

// Result is a completed run.
type Result struct {
	RunID    ulid.ULID
	Name     string
	Instance *graphfile.Instance
	Network  *network.Network
	Solution *solver.Solution
	Params   solver.Params
	Elapsed  time.Duration
}

// RunFile reads path and runs it.
func (e *Engine) RunFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &graphfile.FileAccessError{Path: path, Err: err}
	}
	return e.Run(ctx, path, data)
}

// Run parses source, builds the network, and solves it. name identifies the
// input in logs and history.
func (e *Engine) Run(ctx context.Context, name string, source []byte) (*Result, error) {
	res := &Result{RunID: ulid.Make(), Name: name, Params: e.cfg.Params}
	started := time.Now()

	err := e.run(ctx, res, source)
	res.Elapsed = time.Since(started)
	e.record(ctx, res, source, started, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) run(ctx context.Context, res *Result, source []byte) error {
	var err error

	t := time.Now()
	if res.Instance, err = graphfile.Parse(bytes.NewReader(source)); err != nil {
		return fmt.Errorf("%s: %w", res.Name, err)
	}
	e.stage("parse", res, t)

	t = time.Now()
	res.Network = network.Build(res.Instance)
	e.stage("build", res, t)

	solveCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	t = time.Now()
	if res.Solution, err = e.cfg.Solver.Solve(solveCtx, res.Network, e.cfg.Params); err != nil {
		return err
	}
	e.stage("solve", res, t)
	return nil
}

func (e *Engine) stage(name string, res *Result, started time.Time) {
	if !e.cfg.Verbose {
		return
	}
	log.Printf("component=engine action=stage stage=%s run=%s input=%s elapsed=%s", name, res.RunID, res.Name, time.Since(started))
}

func (e *Engine) record(ctx context.Context, res *Result, source []byte, started time.Time, runErr error) {
	if e.cfg.Recorder == nil {
		return
	}
	run := history.Run{
		ID:         res.RunID,
		Name:       res.Name,
		SourceHash: history.SourceHash(source),
		Solver:     e.cfg.Solver.Name(),
		Capacity:   res.Params.Capacity,
		MaxStops:   res.Params.MaxStops,
		Status:     history.StatusOK,
		StartedAt:  started,
		Elapsed:    res.Elapsed,
	}
	if res.Solution != nil {
		run.Solver = res.Solution.Solver
		run.Cost = res.Solution.Cost
		run.Routes = res.Solution.Routes
	}
	if runErr != nil {
		run.Status = history.StatusFailed
		run.Error = runErr.Error()
	}
	if err := e.cfg.Recorder.Record(context.WithoutCancel(ctx), run); err != nil {
		log.Printf("component=engine action=record_failed run=%s err=%v", res.RunID, err)
	}
}

// Validate parses source and lints it with the engine's capacity.
func (e *Engine) Validate(name string, source []byte) (*graphfile.Instance, []graphfile.Diagnostic, error) {
	inst, err := graphfile.Parse(bytes.NewReader(source))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return inst, lint.Lint(inst, lint.Options{Capacity: e.cfg.Params.Capacity}), nil
}
