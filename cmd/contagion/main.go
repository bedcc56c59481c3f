package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/contagion/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// exitError carries an exit code other than the usage default.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// failed marks err as a run failure (exit 1). Unmarked errors are usage or
// configuration errors (exit 2).
func failed(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 1, err: err}
}

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = ok
//	1 = run failure or determinism mismatch
//	2 = usage or configuration error
func Run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	slog.SetDefault(cfg.NewLogger(stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(cfg)
	root.SetArgs(args[1:])
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 2
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "contagion",
		Short: "Deterministic agent-based epidemic simulation",
		Long: `contagion replays contact traces through an infection and disease
progression model. Runs are reproducible from a scenario and a seed,
independent of the number of workers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n%s", err, cmd.UsageString())
	})

	root.AddCommand(runCmd(cfg))
	root.AddCommand(validateCmd())
	root.AddCommand(restoreCmd(cfg))
	root.AddCommand(verifyCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "contagion %s\n", version)
		},
	}
}
