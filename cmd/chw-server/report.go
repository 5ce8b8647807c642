package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ict4d/chwmonitor/internal/domain/chw"
	"github.com/ict4d/chwmonitor/internal/platform/sandbox"
)

var reportKinds = []string{"dashboard", "district", "offline", "stats", "breakdown"}

type reportOptions struct {
	District  string
	WorkerID  string
	PatientID string
}

func reportCmd() *cobra.Command {
	var (
		opts   reportOptions
		format string
		seed   int64
	)
	cmd := &cobra.Command{
		Use:       "report [dashboard|district|offline|stats|breakdown]",
		Short:     "Print a programme report over freshly generated sample data",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: reportKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			svc := newService(cfg, zerolog.Nop())
			sc := seedConfig(cfg)
			if cmd.Flags().Changed("seed") {
				sc.Seed = seed
			}
			if _, err := sandbox.Seed(ctx, svc, sc, nil); err != nil {
				return fmt.Errorf("seeding sample data: %w", err)
			}

			data, err := buildReport(ctx, svc, args[0], opts)
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), format, data, svc.Now())
		},
	}
	cmd.Flags().StringVar(&opts.District, "district", "", "district for the district report (all districts when empty)")
	cmd.Flags().StringVar(&opts.WorkerID, "worker", "", "restrict visit stats to one worker id")
	cmd.Flags().StringVar(&opts.PatientID, "patient", "", "restrict visit stats to one patient id")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")
	cmd.Flags().Int64Var(&seed, "seed", 0, "sample data seed (default SEED_RANDOM)")
	return cmd
}

// buildReport computes the named report from svc.
func buildReport(ctx context.Context, svc *chw.Service, kind string, opts reportOptions) (interface{}, error) {
	switch kind {
	case "dashboard":
		return svc.Dashboard(ctx), nil
	case "district":
		if opts.District != "" {
			return []chw.DistrictSummary{svc.DistrictSummary(ctx, opts.District)}, nil
		}
		var out []chw.DistrictSummary
		for _, d := range chw.Districts(svc.ListWorkers(ctx, chw.WorkerFilter{})) {
			out = append(out, svc.DistrictSummary(ctx, d))
		}
		return out, nil
	case "offline":
		return svc.OfflineSyncReport(ctx), nil
	case "stats":
		return svc.VisitStats(ctx, chw.VisitFilter{WorkerID: opts.WorkerID, PatientID: opts.PatientID}), nil
	case "breakdown":
		return svc.DistrictBreakdown(ctx), nil
	default:
		return nil, fmt.Errorf("unknown report %q", kind)
	}
}

func renderReport(w io.Writer, format string, data interface{}, now time.Time) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		return writeYAML(w, data)
	case "text", "":
		return writeText(w, data, now)
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// writeYAML renders data under its JSON field names.
func writeYAML(w io.Writer, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func writeText(w io.Writer, data interface{}, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch v := data.(type) {
	case chw.DashboardStats:
		fmt.Fprintf(tw, "Workers\t%s (%s active)\n", humanize.Comma(int64(v.TotalWorkers)), humanize.Comma(int64(v.ActiveWorkers)))
		fmt.Fprintf(tw, "Patients\t%s (%s need a visit)\n", humanize.Comma(int64(v.TotalPatients)), humanize.Comma(int64(v.PatientsNeedingVisits)))
		fmt.Fprintf(tw, "Visits\t%s (%s this week)\n", humanize.Comma(int64(v.TotalVisits)), humanize.Comma(int64(v.VisitsThisWeek)))
		if len(v.RecentVisits) > 0 {
			fmt.Fprintln(tw, "\nRecent visits")
			for _, visit := range v.RecentVisits {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", visit.ID, visit.VisitType, visit.WorkerID, visit.PatientID,
					humanize.RelTime(visit.VisitDate, now, "ago", "from now"))
			}
		}
	case []chw.DistrictSummary:
		fmt.Fprintln(tw, "DISTRICT\tCHWS\tACTIVE\tPATIENTS\tVISITS\tPATIENTS/CHW")
		for _, s := range v {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.1f\n", s.District,
				humanize.Comma(int64(s.WorkerCount)), humanize.Comma(int64(s.ActiveWorkerCount)),
				humanize.Comma(int64(s.PatientCount)), humanize.Comma(int64(s.VisitCount)), s.PatientToWorkerRatio)
		}
	case chw.OfflineSyncReport:
		fmt.Fprintf(tw, "Offline visits\t%s\n", humanize.Comma(int64(v.TotalOffline)))
		fmt.Fprintf(tw, "Workers syncing offline\t%s\n", humanize.Comma(int64(v.UniqueWorkersOffline)))
		fmt.Fprintf(tw, "Offline visits last week\t%s\n", humanize.Comma(int64(v.LastWeekOffline)))
		fmt.Fprintf(tw, "Adoption rate\t%.1f%%\n", v.OfflineAdoptionRate)
	case chw.VisitStats:
		fmt.Fprintf(tw, "Total visits\t%s\n", humanize.Comma(int64(v.Total)))
		fmt.Fprintf(tw, "Routine\t%s\n", humanize.Comma(int64(v.Routine)))
		fmt.Fprintf(tw, "Follow-up\t%s\n", humanize.Comma(int64(v.FollowUp)))
		fmt.Fprintf(tw, "Emergency\t%s\n", humanize.Comma(int64(v.Emergency)))
		fmt.Fprintf(tw, "Offline-synced\t%s\n", humanize.Comma(int64(v.OfflineSync)))
		fmt.Fprintf(tw, "Completion rate\t%.1f%%\n", v.CompletionRate)
	case map[string]chw.DistrictTally:
		districts := make([]string, 0, len(v))
		for d := range v {
			districts = append(districts, d)
		}
		sort.Strings(districts)
		fmt.Fprintln(tw, "DISTRICT\tCHWS\tPATIENTS\tVISITS")
		for _, d := range districts {
			t := v[d]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d,
				humanize.Comma(int64(t.Workers)), humanize.Comma(int64(t.Patients)), humanize.Comma(int64(t.Visits)))
		}
	default:
		return fmt.Errorf("no text rendering for %T", data)
	}
	return tw.Flush()
}
