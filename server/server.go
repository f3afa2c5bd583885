// ABOUTME: HTTP API for routegraph behind a chi router: solve, validate, render, and run history.
// ABOUTME: Graph files arrive as the raw request body; query parameters override the configured defaults.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/2389-research/routegraph/engine"
	"github.com/2389-research/routegraph/export"
	"github.com/2389-research/routegraph/graphfile"
	"github.com/2389-research/routegraph/history"
	"github.com/2389-research/routegraph/network"
	"github.com/2389-research/routegraph/render"
	"github.com/2389-research/routegraph/solver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MaxBodyBytes bounds the graph file accepted in a request body.
const MaxBodyBytes = 1 << 20

// RunStore is the run history the server records to and reads from.
// *history.Store implements it.
type RunStore interface {
	engine.Recorder
	Get(ctx context.Context, id string) (*history.Run, error)
	List(ctx context.Context, limit int) ([]history.Run, error)
}

// Config holds the server settings.
type Config struct {
	Addr    string // listen address (default: "127.0.0.1:8080")
	Solver  string // default back end (default: "auto")
	Options solver.Options
	Params  solver.Params
	Timeout time.Duration
	// History is optional; without it /runs answers 404 and nothing is recorded.
	History RunStore
	Verbose bool
}

// Server serves the routegraph HTTP API.
type Server struct {
	cfg    Config
	router chi.Router
	cache  *render.RenderCache
}

// New creates a Server and builds its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.Solver == "" {
		cfg.Solver = "auto"
	}
	if cfg.Params == (solver.Params{}) {
		cfg.Params = solver.DefaultParams()
	}
	if _, err := solver.New(cfg.Solver, cfg.Options); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:   cfg,
		cache: render.NewRenderCache(render.RenderDOTSource, 10*time.Minute, 128),
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("component=server action=listen addr=%s solver=%s", s.cfg.Addr, s.cfg.Solver)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("component=server action=shutdown addr=%s", s.cfg.Addr)
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(withRequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/solve", s.handleSolve)
	r.Post("/validate", s.handleValidate)
	r.Post("/render", s.handleRender)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleRunList)
		r.Get("/{runID}", s.handleRunGet)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSolve runs the posted graph file and writes the routes in the
// requested format (default json).
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	format, err := queryFormat(r, export.JSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	eng, err := s.engineFor(r, true)
	if err != nil {
		writeError(w, paramStatus(err), err)
		return
	}
	source, ok := readBody(w, r)
	if !ok {
		return
	}

	res, err := eng.Run(r.Context(), inputName(r), source)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, res); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("X-Run-ID", res.RunID.String())
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// handleValidate lints the posted graph file. Findings are reported with
// status 200; only an unparseable file is a client error.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	format, err := queryFormat(r, export.JSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	eng, err := s.engineFor(r, false)
	if err != nil {
		writeError(w, paramStatus(err), err)
		return
	}
	source, ok := readBody(w, r)
	if !ok {
		return
	}

	name := inputName(r)
	_, diags, err := eng.Validate(name, source)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteDiagnostics(&buf, format, name, diags); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// handleRender draws the posted network as dot, svg, or png. With solve=true
// the routes are solved first and overlaid.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "svg"
	}
	if !slices.Contains(render.Formats, format) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported render format %q", format))
		return
	}
	withRoutes, err := queryBool(r, "solve")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	eng, err := s.engineFor(r, false)
	if err != nil {
		writeError(w, paramStatus(err), err)
		return
	}
	source, ok := readBody(w, r)
	if !ok {
		return
	}

	var (
		net *network.Network
		sol *solver.Solution
	)
	if withRoutes {
		res, err := eng.Run(r.Context(), inputName(r), source)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		net, sol = res.Network, res.Solution
	} else {
		inst, err := graphfile.Parse(bytes.NewReader(source))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		net = network.Build(inst)
	}

	data, err := s.cache.RenderDOTSource(r.Context(), render.ToDOT(net, sol), format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", renderContentType(format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusNotFound, errors.New("run history is not enabled"))
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}
	runs, err := s.cfg.History.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusNotFound, errors.New("run history is not enabled"))
		return
	}
	run, err := s.cfg.History.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, history.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// engineFor builds an engine from the configured defaults and the request's
// capacity, max_stops, and solver overrides.
func (s *Server) engineFor(r *http.Request, record bool) (*engine.Engine, error) {
	q := r.URL.Query()
	params := s.cfg.Params
	for key, dst := range map[string]*int{"capacity": &params.Capacity, "max_stops": &params.MaxStops} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		*dst = n
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	name := q.Get("solver")
	if name == "" {
		name = s.cfg.Solver
	}
	sv, err := solver.New(name, s.cfg.Options)
	if err != nil {
		return nil, err
	}

	cfg := engine.Config{
		Solver:  sv,
		Params:  params,
		Timeout: s.cfg.Timeout,
		Verbose: s.cfg.Verbose,
	}
	if record && s.cfg.History != nil {
		cfg.Recorder = s.cfg.History
	}
	return engine.New(cfg)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, MaxBodyBytes)); err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, fmt.Errorf("read request body: %w", err))
		return nil, false
	}
	return buf.Bytes(), true
}

func inputName(r *http.Request) string {
	if name := r.URL.Query().Get("name"); name != "" {
		return name
	}
	return "request"
}

func queryFormat(r *http.Request, def export.Format) (export.Format, error) {
	v := r.URL.Query().Get("format")
	if v == "" {
		return def, nil
	}
	return export.ParseFormat(v)
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// statusFor maps pipeline errors to HTTP statuses: malformed input is 400,
// an unsolvable instance is 422, a solver timeout is 504.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graphfile.ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, solver.ErrInfeasible), errors.Is(err, solver.ErrInvalidParams),
		errors.Is(err, solver.ErrNoDepot), errors.Is(err, solver.ErrTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// paramStatus is 422 for out-of-range solver parameters and 400 for any other
// bad query value.
func paramStatus(err error) int {
	if errors.Is(err, solver.ErrInvalidParams) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func renderContentType(format string) string {
	switch format {
	case "svg":
		return "image/svg+xml"
	case "png":
		return "image/png"
	default:
		return "text/vnd.graphviz; charset=utf-8"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
