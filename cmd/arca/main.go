// Command arca is the Arca Engine CLI: it manages the daemon process
// (daemon start/stop/status) that serves the Docker Engine API over a
// Unix socket. Reimplementing the `docker` client CLI itself is out of
// scope; this binary only manages the daemon's own lifecycle.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitCode values: 0 success, 1 generic failure, 2 misconfiguration.
type exitCode int

const (
	exitSuccess       exitCode = 0
	exitFailure       exitCode = 1
	exitMisconfigured exitCode = 2
)

// exitError carries the exit code a RunE failure should produce, so
// main doesn't have to re-classify plain errors after the fact.
type exitError struct {
	code exitCode
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func misconfigured(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitMisconfigured, err: err}
}

func failure(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: exitFailure, err: err}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "arca",
		Short:         "Arca Engine: a host-native, VM-per-container runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDaemonCommand())
	return root
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "arca:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(int(ee.code))
		}
		os.Exit(int(exitFailure))
	}
}
