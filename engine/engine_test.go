// ABOUTME: Tests for the run pipeline: success, each failing stage, recording, timeouts, and validation.
// ABOUTME: Uses an in-memory recorder and a stub solver that blocks until its context ends.
package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/2389-research/routegraph/graphfile"
	"github.com/2389-research/routegraph/history"
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

type memRecorder struct {
	mu   sync.Mutex
	runs []history.Run
	err  error
}

func (m *memRecorder) Record(_ context.Context, run history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return m.err
}

type blockingSolver struct{}

func (blockingSolver) Name() string { return "blocking" }

func (blockingSolver) Solve(ctx context.Context, _ *network.Network, _ solver.Params) (*solver.Solution, error) {
	<-ctx.Done()
	return nil, &solver.Error{Solver: "blocking", Err: ctx.Err()}
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewDefaults(t *testing.T) {
	e := newEngine(t, Config{})
	if e.cfg.Solver.Name() != "auto" {
		t.Errorf("default solver = %q, want auto", e.cfg.Solver.Name())
	}
	if e.Params() != solver.DefaultParams() {
		t.Errorf("default params = %+v", e.Params())
	}
}

func TestRunFileSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grafo.txt")
	if err := os.WriteFile(path, []byte(feasible), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := &memRecorder{}
	e := newEngine(t, Config{Recorder: rec, Verbose: true})

	res, err := e.RunFile(context.Background(), path)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if res.Solution.Cost != 35 {
		t.Errorf("cost = %d, want 35", res.Solution.Cost)
	}
	if res.Name != path || res.Instance == nil || res.Network == nil {
		t.Errorf("result incomplete: %+v", res)
	}

	if len(rec.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(rec.runs))
	}
	run := rec.runs[0]
	if run.ID != res.RunID || run.Status != history.StatusOK || run.Cost != 35 {
		t.Errorf("recorded run = %+v", run)
	}
	if run.Solver != "exact" {
		t.Errorf("recorded solver = %q, want the back end auto picked", run.Solver)
	}
	if run.SourceHash != history.SourceHash([]byte(feasible)) {
		t.Error("source hash should cover the file bytes")
	}
}

func TestRunFileMissing(t *testing.T) {
	e := newEngine(t, Config{})
	_, err := e.RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))

	var fae *graphfile.FileAccessError
	if !errors.As(err, &fae) {
		t.Fatalf("expected FileAccessError, got %T: %v", err, err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestRunFormatErrorIsRecorded(t *testing.T) {
	rec := &memRecorder{}
	e := newEngine(t, Config{Recorder: rec})

	_, err := e.Run(context.Background(), "bad", []byte("3\n1 1\n"))
	if !errors.Is(err, graphfile.ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
	if len(rec.runs) != 1 || rec.runs[0].Status != history.StatusFailed {
		t.Fatalf("failed run not recorded: %+v", rec.runs)
	}
	if rec.runs[0].Error == "" {
		t.Error("recorded failure should carry the error text")
	}
}

func TestRunSkipsStopSelfLoop(t *testing.T) {
	e := newEngine(t, Config{})
	res, err := e.Run(context.Background(), "loop", []byte("2\n1 1\n3\n0 1 1\n1 1 2\n1 0 1\n"))
	if err != nil {
		t.Fatalf("a self-loop should be skipped, got %v", err)
	}
	if res.Solution.Cost != 2 || len(res.Solution.Routes) != 1 {
		t.Errorf("solution = %+v", res.Solution)
	}
}

func TestRunSolverError(t *testing.T) {
	e := newEngine(t, Config{})
	_, err := e.Run(context.Background(), "isolated", []byte("2\n1 1\n0\n"))

	var se *solver.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *solver.Error, got %T: %v", err, err)
	}
	if !errors.Is(err, solver.ErrNoDepot) {
		t.Errorf("expected ErrNoDepot, got %v", err)
	}
}

func TestRecorderFailureDoesNotFailRun(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	e := newEngine(t, Config{Recorder: rec})
	if _, err := e.Run(context.Background(), "ok", []byte(feasible)); err != nil {
		t.Fatalf("Run should succeed despite recorder failure: %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	e := newEngine(t, Config{Solver: blockingSolver{}, Timeout: 20 * time.Millisecond})
	_, err := e.Run(context.Background(), "slow", []byte(feasible))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	e := newEngine(t, Config{Params: solver.Params{Capacity: 4, MaxStops: 5}})

	_, diags, err := e.Validate("grafo.txt", []byte(feasible))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	var capacity int
	for _, d := range diags {
		if d.Rule == "capacity" {
			capacity++
		}
	}
	if capacity != 1 {
		t.Errorf("expected 1 capacity diagnostic for demand 5 > 4, got %d: %+v", capacity, diags)
	}

	if _, _, err := e.Validate("bad", []byte("x\n")); !errors.Is(err, graphfile.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}
