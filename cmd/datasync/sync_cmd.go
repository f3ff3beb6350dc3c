package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/fomcagent/datasync/internal/codec"
	"github.com/fomcagent/datasync/internal/config"
	"github.com/fomcagent/datasync/internal/sync"
	"github.com/spf13/cobra"
)

var syncFlagBindings = config.FlagBindings{
	"runner.concurrency": "concurrency",
	"runner.delay":       "delay",
}

func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize configured sources into the destination",
	}

	syncCmd.PersistentFlags().Bool("json", false, "Print the run report as JSON")
	syncCmd.PersistentFlags().Int("concurrency", 1, "Sources synced in parallel")
	syncCmd.PersistentFlags().Duration("delay", time.Second, "Pause between sources when running one at a time")

	syncCmd.AddCommand(newSyncDirCmd())
	syncCmd.AddCommand(newSyncResourceCmd())
	syncCmd.AddCommand(newSyncTimeseriesCmd())
	syncCmd.AddCommand(newSyncAllCmd())
	return syncCmd
}

func newSyncDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dir [SOURCE_ID...]",
		Aliases: []string{"directory", "d"},
		Short:   "Mirror remote directory listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, func(env *syncEnv) ([]sync.Job, error) {
				return env.directoryJobs(args)
			})
		},
	}
}

func newSyncResourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "resource [SOURCE_ID...]",
		Aliases: []string{"r"},
		Short:   "Fetch JSON resources and store them when their content changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, func(env *syncEnv) ([]sync.Job, error) {
				return env.resourceJobs(args)
			})
		},
	}
}

func newSyncTimeseriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "timeseries [SOURCE_ID...]",
		Aliases: []string{"ts", "api"},
		Short:   "Pull series from the timeseries API and store them as one TSV when changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, func(env *syncEnv) ([]sync.Job, error) {
				return env.timeseriesJobs(args)
			})
		},
	}
}

func newSyncAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Sync every configured directory, resource and timeseries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, func(env *syncEnv) ([]sync.Job, error) {
				dirs, err := env.directoryJobs(nil)
				if err != nil {
					return nil, err
				}
				resources, err := env.resourceJobs(nil)
				if err != nil {
					return nil, err
				}
				series, err := env.timeseriesJobs(nil)
				if err != nil {
					return nil, err
				}
				return slices.Concat(dirs, resources, series), nil
			})
		},
	}
}

func runSync(cmd *cobra.Command, jobsFn func(*syncEnv) ([]sync.Job, error)) error {
	cfg, err := loadConfig(cmd, syncFlagBindings)
	if err != nil {
		return err
	}

	env, err := newSyncEnv(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	jobs, err := jobsFn(env)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		slog.Warn("no sources configured")
		return nil
	}

	runner := &sync.Runner{
		Jobs:        jobs,
		Concurrency: cfg.Runner.Concurrency,
		Delay:       cfg.Runner.Delay,
	}
	report := runner.Run(cmd.Context())

	asJSON, _ := cmd.Flags().GetBool("json")
	if err := printReport(cmd.OutOrStdout(), report, asJSON); err != nil {
		return err
	}

	if n := report.Failures(); n > 0 {
		slog.Error("sync finished with failures", "failed", n, "total", len(report.Results))
		return errSyncFailed
	}
	return nil
}

func printReport(w io.Writer, report *sync.Report, asJSON bool) error {
	if asJSON {
		data, err := codec.MarshalIndent(report)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	for _, r := range report.Results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "%s %s %s\n", red.Render("FAIL"), bold.Render(r.SourceID), r.Err)
		case r.Directory != nil:
			s := r.Directory
			status := green.Render("OK  ")
			if s.HasFailures() {
				status = red.Render("PART")
			}
			fmt.Fprintf(w, "%s %s added=%d updated=%d unchanged=%d deleted=%d failed=%d %s\n",
				status, bold.Render(r.SourceID),
				len(s.Added), len(s.Updated), len(s.Unchanged), len(s.Deleted), len(s.Failed),
				gray.Render(s.Duration.Round(time.Millisecond).String()))
			for _, f := range s.Failed {
				fmt.Fprintf(w, "     %s %s: %s\n", red.Render(f.Op), f.Item, f.Error)
			}
		case r.Resource != nil:
			s := r.Resource
			line := fmt.Sprintf("%s %s %s fingerprint=%s", green.Render("OK  "), bold.Render(r.SourceID), cyan.Render(string(s.Action)), s.Fingerprint)
			if s.RecordCount != nil {
				line += fmt.Sprintf(" records=%d", *s.RecordCount)
			}
			fmt.Fprintln(w, line+" "+gray.Render(s.Duration.Round(time.Millisecond).String()))
		}
	}
	return nil
}
