// ABOUTME: Cobra command tree for routegraph and the handlers behind each subcommand.
// ABOUTME: Settings resolve as defaults, then the config file, then ROUTEGRAPH_* variables, then flags.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/2389-research/routegraph/config"
	"github.com/2389-research/routegraph/engine"
	"github.com/2389-research/routegraph/export"
	"github.com/2389-research/routegraph/graphfile"
	"github.com/2389-research/routegraph/graphfile/lint"
	"github.com/2389-research/routegraph/history"
	"github.com/2389-research/routegraph/network"
	"github.com/2389-research/routegraph/render"
	"github.com/2389-research/routegraph/server"
	"github.com/2389-research/routegraph/solver"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var errValidationFailed = errors.New("validation failed")

// flagValues receives the persistent flags before they are overlaid on the
// loaded configuration.
type flagValues struct {
	capacity  int
	maxStops  int
	solver    string
	solverCmd string
	workers   int
	timeout   string
	format    string
	output    string
	record    bool
	dataDir   string
	verbose   bool
	listen    string
}

type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	flags      flagValues
	cfg        config.Config
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "routegraph [graph-file]",
		Short: "Plan capacitated delivery routes from a grafo.txt network",
		Long: `routegraph reads a graph file (node count, demand lines, edge count, edges),
maps node 0 to the Source and Sink depots, and finds routes that visit every
stop once within the vehicle capacity and stop limit.

Running routegraph with no subcommand solves the given file (default grafo.txt).`,
		Version:           version,
		Args:              maxArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
		RunE:              a.runSolve,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML config file (default: $ROUTEGRAPH_CONFIG)")
	pf.IntVar(&a.flags.capacity, "capacity", solver.DefaultCapacity, "Vehicle capacity per route")
	pf.IntVar(&a.flags.maxStops, "max-stops", solver.DefaultMaxStops, "Maximum stops per route")
	pf.StringVar(&a.flags.solver, "solver", "auto", "Solver back end: "+strings.Join(solver.Names(), ", "))
	pf.StringVar(&a.flags.solverCmd, "solver-cmd", "", "External solver command line for --solver command")
	pf.IntVar(&a.flags.workers, "workers", 0, "Parallel workers for the exact solver (0: GOMAXPROCS)")
	pf.StringVar(&a.flags.timeout, "timeout", "", "Solve time limit, e.g. 30s (default: none)")
	pf.StringVarP(&a.flags.format, "format", "f", "text", "Output format: "+formatList())
	pf.StringVarP(&a.flags.output, "output", "o", "", "Also write solve output to a file; other commands write only to the file")
	pf.BoolVar(&a.flags.record, "record", false, "Record runs in the history database")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "Data directory for run history (default: $XDG_DATA_HOME/routegraph)")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Log per-stage timings")

	root.AddCommand(
		a.solveCmd(),
		a.validateCmd(),
		a.renderCmd(),
		a.generateCmd(),
		a.serveCmd(),
		a.historyCmd(),
	)
	return root
}

// maxArgs wraps cobra.MaximumNArgs so argument count errors exit 2.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func formatList() string {
	names := make([]string, 0, len(export.Formats()))
	for _, f := range export.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// loadConfig resolves the effective configuration for every subcommand.
func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	path := a.configPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return usageError{err}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return usageError{err}
	}

	f := cmd.Flags()
	if f.Changed("capacity") {
		cfg.Capacity = a.flags.capacity
	}
	if f.Changed("max-stops") {
		cfg.MaxStops = a.flags.maxStops
	}
	if f.Changed("solver") {
		cfg.Solver = a.flags.solver
	}
	if f.Changed("solver-cmd") {
		cfg.SolverCmd = strings.Fields(a.flags.solverCmd)
	}
	if f.Changed("workers") {
		cfg.Workers = a.flags.workers
	}
	if f.Changed("timeout") {
		d, err := time.ParseDuration(a.flags.timeout)
		if err != nil {
			return usageError{fmt.Errorf("--timeout: %w", err)}
		}
		cfg.Timeout = d
	}
	if f.Changed("format") {
		cfg.Format = a.flags.format
	}
	if f.Changed("output") {
		cfg.Output = a.flags.output
	}
	if f.Changed("record") {
		cfg.Record = a.flags.record
	}
	if f.Changed("data-dir") {
		cfg.DataDir = a.flags.dataDir
	}
	if f.Changed("verbose") {
		cfg.Verbose = a.flags.verbose
	}
	if f.Changed("listen") {
		cfg.Listen = a.flags.listen
	}

	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}
	a.cfg = cfg
	return nil
}

// graphPath is the positional file argument, or the configured graph file.
func (a *app) graphPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.Graph
}

// openHistory opens the run history when recording is on. The returned close
// function is always safe to call.
func (a *app) openHistory(force bool) (*history.Store, func(), error) {
	if !a.cfg.Record && !force {
		return nil, func() {}, nil
	}
	store, err := history.Open(a.cfg.HistoryPath())
	if err != nil {
		return nil, func() {}, err
	}
	return store, func() { store.Close() }, nil
}

func (a *app) newEngine(rec engine.Recorder) (*engine.Engine, error) {
	sv, err := solver.New(a.cfg.Solver, a.cfg.SolverOptions())
	if err != nil {
		return nil, usageError{err}
	}
	return engine.New(engine.Config{
		Solver:   sv,
		Params:   a.cfg.Params(),
		Recorder: rec,
		Timeout:  a.cfg.Timeout,
		Verbose:  a.cfg.Verbose,
	})
}

// writeOutput sends output to --output when set, otherwise to stdout.
func (a *app) writeOutput(write func(io.Writer) error) error {
	return a.writeTo(false, write)
}

// teeOutput always writes to stdout and also to --output when set.
func (a *app) teeOutput(write func(io.Writer) error) error {
	return a.writeTo(true, write)
}

func (a *app) writeTo(tee bool, write func(io.Writer) error) error {
	if a.cfg.Output == "" {
		return write(a.stdout)
	}
	f, err := os.Create(a.cfg.Output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	var w io.Writer = f
	if tee {
		w = io.MultiWriter(a.stdout, f)
	}
	if err := write(w); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *app) solveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve [graph-file]",
		Short: "Solve a graph file and print the routes",
		Args:  maxArgs(1),
		RunE:  a.runSolve,
	}
}

func (a *app) runSolve(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(a.cfg.Format)
	if err != nil {
		return usageError{err}
	}
	store, closeStore, err := a.openHistory(false)
	if err != nil {
		return err
	}
	defer closeStore()

	var rec engine.Recorder
	if store != nil {
		rec = store
	}
	eng, err := a.newEngine(rec)
	if err != nil {
		return err
	}
	res, err := eng.RunFile(cmd.Context(), a.graphPath(args))
	if err != nil {
		return err
	}
	return a.teeOutput(func(w io.Writer) error {
		return export.Write(w, format, res)
	})
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [graph-file]",
		Short: "Parse and lint a graph file without solving it",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(a.cfg.Format)
			if err != nil {
				return usageError{err}
			}
			path := a.graphPath(args)
			data, err := os.ReadFile(path)
			if err != nil {
				return &graphfile.FileAccessError{Path: path, Err: err}
			}
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			_, diags, err := eng.Validate(path, data)
			if err != nil {
				return err
			}
			if err := a.writeOutput(func(w io.Writer) error {
				return export.WriteDiagnostics(w, format, path, diags)
			}); err != nil {
				return err
			}
			if lint.HasErrors(diags) {
				return fmt.Errorf("%s: %w", path, errValidationFailed)
			}
			return nil
		},
	}
}

func (a *app) renderCmd() *cobra.Command {
	var (
		outType    string
		withRoutes bool
	)
	cmd := &cobra.Command{
		Use:   "render [graph-file]",
		Short: "Draw the network as DOT, SVG, or PNG, optionally with solved routes",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.graphPath(args)
			var (
				net *network.Network
				sol *solver.Solution
			)
			if withRoutes {
				eng, err := a.newEngine(nil)
				if err != nil {
					return err
				}
				res, err := eng.RunFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				net, sol = res.Network, res.Solution
			} else {
				inst, err := graphfile.ParseFile(path)
				if err != nil {
					return err
				}
				net = network.Build(inst)
			}

			data, err := render.Render(cmd.Context(), net, sol, outType)
			if err != nil {
				return err
			}
			return a.writeOutput(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&outType, "type", "T", "dot", "Render type: "+strings.Join(render.Formats, ", "))
	cmd.Flags().BoolVar(&withRoutes, "solve", false, "Solve first and overlay the routes")
	return cmd
}

func (a *app) generateCmd() *cobra.Command {
	opts := graphfile.DefaultGenerateOptions()
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a random graph file",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := graphfile.Generate(opts)
			if err != nil {
				return usageError{err}
			}
			return a.writeOutput(func(w io.Writer) error {
				return graphfile.Write(w, inst)
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.Stops, "stops", opts.Stops, "Number of stops besides the depot")
	f.Float64Var(&opts.Density, "density", opts.Density, "Probability of each stop-to-stop arc")
	f.Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	f.IntVar(&opts.MaxDemand, "max-demand", opts.MaxDemand, "Largest stop demand")
	f.IntVar(&opts.MaxCost, "max-cost", opts.MaxCost, "Largest arc cost")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openHistory(false)
			if err != nil {
				return err
			}
			defer closeStore()

			cfg := server.Config{
				Addr:    a.cfg.Listen,
				Solver:  a.cfg.Solver,
				Options: a.cfg.SolverOptions(),
				Params:  a.cfg.Params(),
				Timeout: a.cfg.Timeout,
				Verbose: a.cfg.Verbose,
			}
			if store != nil {
				cfg.History = store
			}
			srv, err := server.New(cfg)
			if err != nil {
				return usageError{err}
			}
			fmt.Fprintf(a.stderr, "listening on %s\n", a.cfg.Listen)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&a.flags.listen, "listen", "127.0.0.1:8080", "Listen address")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(a.cfg.Format)
			if err != nil {
				return usageError{err}
			}
			if format == export.Text && !cmd.Flags().Changed("format") && isTerminal(a.stdout) {
				format = export.Table
			}

			store, closeStore, err := a.openHistory(true)
			if err != nil {
				return err
			}
			defer closeStore()

			var runs []history.Run
			if len(args) == 1 {
				run, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				runs = []history.Run{*run}
			} else if runs, err = store.List(cmd.Context(), limit); err != nil {
				return err
			}
			return a.writeOutput(func(w io.Writer) error {
				return export.WriteRuns(w, format, runs)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
