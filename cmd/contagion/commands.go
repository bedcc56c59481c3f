package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/contagion/pkg/config"
	"github.com/Mindburn-Labs/contagion/pkg/events"
	"github.com/Mindburn-Labs/contagion/pkg/sim"
)

func runCmd(cfg *config.Config) *cobra.Command {
	var (
		scenarioPath string
		seed         uint64
		days         int
		workers      int
		eventsDSN    string
		out          string
		runID        string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario from day 1",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}
			m := s.Model()
			if cmd.Flags().Changed("seed") {
				m.Seed = seed
			}
			if days > 0 {
				m.Days = days
			}

			b, err := openBackends(ctx, cfg, eventsDSN)
			if err != nil {
				return err
			}
			defer b.close(ctx)

			run, err := sim.New(m, b.options(runID, workersFor(workers, s, cfg)))
			if err != nil {
				return err
			}
			res, err := run.Run(ctx, m.Days)
			if err != nil {
				return failed(err)
			}
			return writeResult(cmd.OutOrStdout(), out, res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&scenarioPath, "scenario", "", "scenario YAML file (required)")
	f.Uint64Var(&seed, "seed", 0, "override the scenario seed")
	f.IntVar(&days, "days", 0, "override the number of days")
	f.IntVar(&workers, "workers", 0, "worker goroutines (default: scenario, then WORKERS)")
	f.StringVar(&eventsDSN, "events", "", "event sink DSN (default: EVENTS_DSN)")
	f.StringVar(&out, "out", "", "also write the result JSON to this file")
	f.StringVar(&runID, "run-id", "", "run identifier (default: random UUID)")
	return cmd
}

func validateCmd() *cobra.Command {
	var scenarioPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a scenario without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}
			m := s.Model()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok %s: %d persons, %d days, %s\n", s.Name, len(m.Population), m.Days, s.Digest)
			return nil
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "scenario YAML file (required)")
	return cmd
}

func restoreCmd(cfg *config.Config) *cobra.Command {
	var (
		scenarioPath string
		runID        string
		day          int
		days         int
		workers      int
		eventsDSN    string
		out          string
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Resume a run from a checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if runID == "" {
				return errors.New("--run is required")
			}
			s, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}
			m := s.Model()
			last := m.Days
			if days > 0 {
				last = days
			}

			b, err := openBackends(ctx, cfg, eventsDSN)
			if err != nil {
				return err
			}
			defer b.close(ctx)

			cp, err := b.checkpoints.Load(ctx, runID, day)
			if err != nil {
				return failed(err)
			}
			run, err := sim.Restore(ctx, m, b.options(runID, workersFor(workers, s, cfg)), cp)
			if err != nil {
				if errors.Is(err, sim.ErrScenarioMismatch) {
					return err
				}
				return failed(err)
			}
			res, err := run.Run(ctx, last)
			if err != nil {
				return failed(err)
			}
			return writeResult(cmd.OutOrStdout(), out, res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&scenarioPath, "scenario", "", "scenario YAML file (required)")
	f.StringVar(&runID, "run", "", "run identifier to resume (required)")
	f.IntVar(&day, "day", 0, "checkpoint day (default: latest)")
	f.IntVar(&days, "days", 0, "last day to simulate (default: scenario days)")
	f.IntVar(&workers, "workers", 0, "worker goroutines (default: scenario, then WORKERS)")
	f.StringVar(&eventsDSN, "events", "", "event sink DSN (default: EVENTS_DSN)")
	f.StringVar(&out, "out", "", "also write the result JSON to this file")
	return cmd
}

// verifyCmd runs the scenario once per worker count into memory and compares
// the event digests.
func verifyCmd() *cobra.Command {
	var (
		scenarioPath string
		workers      []int
		days         int
	)
	cmd := &cobra.Command{
		Use:   "verify-determinism",
		Short: "Check that worker counts do not change the event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if len(workers) < 2 {
				return errors.New("--workers needs at least two counts")
			}
			s, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}
			m := s.Model()
			if days > 0 {
				m.Days = days
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "WORKERS\tEVENTS\tDIGEST")
			var first string
			mismatch := false
			for i, w := range workers {
				if w <= 0 {
					return fmt.Errorf("worker count %d must be positive", w)
				}
				run, err := sim.New(m, sim.Options{Workers: w, Sink: events.NewMemorySink()})
				if err != nil {
					return err
				}
				res, err := run.Run(ctx, m.Days)
				if err != nil {
					return failed(err)
				}
				_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\n", w, res.Events, res.Digest)
				if i == 0 {
					first = res.Digest
				} else if res.Digest != first {
					mismatch = true
				}
			}
			_ = tw.Flush()

			if mismatch {
				return failed(errors.New("determinism check failed: digests differ"))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "match")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&scenarioPath, "scenario", "", "scenario YAML file (required)")
	f.IntSliceVar(&workers, "workers", []int{1, 4}, "comma-separated worker counts to compare")
	f.IntVar(&days, "days", 0, "override the number of days")
	return cmd
}
