package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ict4d/chwmonitor/internal/platform/sandbox"
)

func seedCmd() *cobra.Command {
	var (
		sc  sandbox.SeedConfig
		out string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate sample programme data and optionally export it as NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			defaults := seedConfig(cfg)
			flags := cmd.Flags()
			if !flags.Changed("workers") {
				sc.Workers = defaults.Workers
			}
			if !flags.Changed("patients") {
				sc.Patients = defaults.Patients
			}
			if !flags.Changed("visits") {
				sc.Visits = defaults.Visits
			}
			if !flags.Changed("seed") {
				sc.Seed = defaults.Seed
			}

			return runSeed(ctx, cmd.OutOrStdout(), newService(cfg, zerolog.Nop()), sc, out)
		},
	}
	cmd.Flags().IntVar(&sc.Workers, "workers", 0, "number of workers (default SEED_WORKERS)")
	cmd.Flags().IntVar(&sc.Patients, "patients", 0, "number of patients (default SEED_PATIENTS)")
	cmd.Flags().IntVar(&sc.Visits, "visits", 0, "number of visits (default SEED_VISITS)")
	cmd.Flags().Int64Var(&sc.Seed, "seed", 0, "random seed, 0 for time based (default SEED_RANDOM)")
	cmd.Flags().StringVar(&out, "out", "", "write the generated data as NDJSON to this file, - for stdout")
	return cmd
}

// newProgressBar creates a progress bar with consistent settings.
func newProgressBar(total int, prefix string) *pb.ProgressBar {
	bar := pb.Full.Start(total)
	bar.Set("prefix", prefix)
	bar.Set(pb.CleanOnFinish, true)
	return bar
}

func runSeed(ctx context.Context, w io.Writer, svc sandbox.Service, sc sandbox.SeedConfig, out string) error {
	if err := sc.Validate(); err != nil {
		return err
	}

	bar := newProgressBar(sc.Workers+sc.Patients+sc.Visits, "seeding ")
	result, err := sandbox.Seed(ctx, svc, sc, func(done, _ int) { bar.SetCurrent(int64(done)) })
	bar.Finish()
	if err != nil {
		return err
	}

	summary := w
	if out == "-" {
		summary = os.Stderr
	}
	fmt.Fprintf(summary, "Generated %s workers, %s patients and %s visits in %s (seed %d)\n",
		humanize.Comma(int64(result.Workers)),
		humanize.Comma(int64(result.Patients)),
		humanize.Comma(int64(result.Visits)),
		result.Duration.Round(time.Millisecond),
		result.Seed,
	)

	if out == "" {
		return nil
	}
	return exportTo(ctx, w, svc, out)
}

func exportTo(ctx context.Context, stdout io.Writer, svc sandbox.Service, out string) error {
	dst := stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		dst = f
	}

	snap := svc.Snapshot(ctx)
	bar := newProgressBar(len(snap.Workers)+len(snap.Patients)+len(snap.Visits), "exporting ")
	counter := &countingWriter{w: dst}
	err := sandbox.ExportNDJSON(counter, snap, func(done, _ int) { bar.SetCurrent(int64(done)) })
	bar.Finish()
	if err != nil {
		return err
	}
	if out != "-" {
		fmt.Fprintf(stdout, "Wrote %s to %s\n", humanize.Bytes(uint64(counter.n)), out)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
