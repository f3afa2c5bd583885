// ABOUTME: Runtime configuration with documented defaults, YAML file loading, ROUTEGRAPH_* overrides, and validation.
// ABOUTME: Precedence is defaults, then the YAML file, then the environment; the CLI applies flags last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/2389-research/routegraph/solver"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROUTEGRAPH_"

// Config holds every setting the CLI and server read.
type Config struct {
	Graph     string        `yaml:"graph" validate:"required"`
	Capacity  int           `yaml:"capacity" validate:"gte=1"`
	MaxStops  int           `yaml:"max_stops" validate:"gte=1"`
	Solver    string        `yaml:"solver" validate:"oneof=auto exact greedy command"`
	SolverCmd []string      `yaml:"solver_cmd" validate:"required_if=Solver command"`
	Format    string        `yaml:"format" validate:"oneof=text table json yaml markdown html"`
	Output    string        `yaml:"output"`
	Workers   int           `yaml:"workers" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	Record    bool          `yaml:"record"`
	DataDir   string        `yaml:"data_dir" validate:"required_if=Record true"`
	Verbose   bool          `yaml:"verbose"`
	Listen    string        `yaml:"listen" validate:"hostname_port"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir, _ := DefaultDataDir()
	return Config{
		Graph:    "grafo.txt",
		Capacity: solver.DefaultCapacity,
		MaxStops: solver.DefaultMaxStops,
		Solver:   "auto",
		Format:   "text",
		DataDir:  dataDir,
		Listen:   "127.0.0.1:8080",
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty path
// returns the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays ROUTEGRAPH_* variables found by lookup onto cfg.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("GRAPH", &c.Graph)
	str("SOLVER", &c.Solver)
	str("FORMAT", &c.Format)
	str("OUTPUT", &c.Output)
	str("DATA_DIR", &c.DataDir)
	str("LISTEN", &c.Listen)
	if v, ok := lookup(EnvPrefix + "SOLVER_CMD"); ok {
		c.SolverCmd = strings.Fields(v)
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Timeout = d
	}
	if err := num("CAPACITY", &c.Capacity); err != nil {
		return err
	}
	if err := num("MAX_STOPS", &c.MaxStops); err != nil {
		return err
	}
	if err := num("WORKERS", &c.Workers); err != nil {
		return err
	}
	if err := flag("RECORD", &c.Record); err != nil {
		return err
	}
	return flag("VERBOSE", &c.Verbose)
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_if":
		return fmt.Sprintf("%s is required when %s", fe.Field(), strings.Replace(fe.Param(), " ", " is ", 1))
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port, got %q", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("%s fails %s", fe.Field(), fe.Tag())
	}
}

// Params returns the solver parameters.
func (c *Config) Params() solver.Params {
	return solver.Params{Capacity: c.Capacity, MaxStops: c.MaxStops}
}

// SolverOptions returns the options passed to solver.New.
func (c *Config) SolverOptions() solver.Options {
	return solver.Options{Workers: c.Workers, Command: c.SolverCmd}
}

// HistoryPath is the run history database inside DataDir.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// DefaultDataDir returns $XDG_DATA_HOME/routegraph, falling back to
// ~/.local/share/routegraph.
func DefaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "routegraph"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "routegraph"), nil
}
