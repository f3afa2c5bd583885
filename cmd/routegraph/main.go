// ABOUTME: CLI entrypoint for routegraph: solve, validate, render, generate, serve, and history.
// ABOUTME: Exit codes are 0 on success, 1 when a command fails, and 2 for usage or configuration errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389-research/routegraph/config"
)

var version = "dev"

func main() {
	config.LoadDotEnvAuto()
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// usageError marks failures caused by how the command was invoked.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// execute runs the command line in args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		var uerr usageError
		if errors.As(err, &uerr) {
			return 2
		}
		return 1
	}
	return 0
}
