package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omxlab/equityrun/internal/advisor"
	"github.com/omxlab/equityrun/internal/scheduler"
	"github.com/omxlab/equityrun/internal/telemetry"
)

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Refresh daily bars and macro readings from the feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			summary, err := rt.engine.RunDataUpdate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

func newSignalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signals",
		Short: "Recompute technical snapshots for the tracked universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			summary, err := rt.engine.RunSignalPass(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Score the universe and print the ranked prospects",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			opps, err := rt.engine.RunScoringPass(cmd.Context())
			if err != nil {
				return err
			}
			if len(opps) == 0 {
				fmt.Println("No opportunities above the confidence threshold.")
				return nil
			}

			fmt.Printf("%-14s %-24s %6s  %s\n", "INSTRUMENT", "NAME", "CONF", "THESIS")
			for _, opp := range opps {
				fmt.Printf("%-14s %-24s %6.1f  %s\n", opp.Instrument, truncate(opp.Name, 24), opp.Confidence, opp.Thesis)
			}
			return nil
		},
	}
}

func newExecCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Validate and execute a batch of candidate actions",
		Long: `Reads a JSON batch of candidate actions from --file (or stdin),
repairs and validates it, runs the risk gate chain against the current
portfolio and executes the approved trades.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(file)
			if err != nil {
				return err
			}
			actions, err := advisor.ParseActions(string(raw))
			if err != nil {
				return fmt.Errorf("parse actions: %w", err)
			}
			if len(actions) == 0 {
				fmt.Println("No valid actions in input.")
				return nil
			}

			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			results, err := rt.engine.ExecuteActions(cmd.Context(), actions)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Actions JSON file (default: stdin)")
	return cmd
}

func newPositionsCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List open positions, or run the exit check with --check",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			if check {
				summary, err := rt.engine.RunPositionCheck(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(summary)
			}

			positions, err := rt.manager.Repository().Portfolio.OpenPositions(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(positions)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Evaluate exit rules and execute forced exits")
	return cmd
}

func newBacktestCmd() *cobra.Command {
	var strategy, from, to string
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a cataloged strategy over a historical window",
		RunE: func(cmd *cobra.Command, args []string) error {
			end := time.Now()
			start := end.AddDate(-1, 0, 0)
			var err error
			if from != "" {
				if start, err = time.Parse("2006-01-02", from); err != nil {
					return fmt.Errorf("bad --from: %w", err)
				}
			}
			if to != "" {
				if end, err = time.Parse("2006-01-02", to); err != nil {
					return fmt.Errorf("bad --to: %w", err)
				}
			}

			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			result, outcomes, err := rt.engine.RunBacktest(cmd.Context(), strategy, start, end)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"result":   result,
				"outcomes": outcomes,
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "golden_cross_sma20_sma50", "Strategy name from the catalog")
	cmd.Flags().StringVar(&from, "from", "", "Window start (YYYY-MM-DD, default one year back)")
	cmd.Flags().StringVar(&to, "to", "", "Window end (YYYY-MM-DD, default today)")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var jobsPath string
	var runJob string
	var once bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the job scheduler daemon, one job with --run, or the current hour's jobs with --once",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			schedConfig, err := scheduler.LoadConfig(jobsPath)
			if err != nil {
				return err
			}
			sched, err := scheduler.New(schedConfig)
			if err != nil {
				return err
			}

			sched.Register("data.update", func(ctx context.Context) error {
				_, err := rt.engine.RunDataUpdate(ctx)
				return err
			})
			sched.Register("signal.refresh", func(ctx context.Context) error {
				_, err := rt.engine.RunSignalPass(ctx)
				return err
			})
			sched.Register("scan.score", func(ctx context.Context) error {
				_, err := rt.engine.RunScoringPass(ctx)
				return err
			})
			sched.Register("positions.check", func(ctx context.Context) error {
				_, err := rt.engine.RunPositionCheck(ctx)
				return err
			})
			sched.Register("backtest.catalog", func(ctx context.Context) error {
				_, err := rt.engine.RunBacktestCatalog(ctx)
				return err
			})

			if once {
				results := sched.RunDue(cmd.Context(), time.Now())
				if err := printJSON(results); err != nil {
					return err
				}
				for _, result := range results {
					if !result.Success {
						return fmt.Errorf("job failed: %s", result.Error)
					}
				}
				return nil
			}
			if runJob != "" {
				result := sched.RunJob(cmd.Context(), runJob)
				if err := printJSON(result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("job failed: %s", result.Error)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			log.Info().Msg("Scheduler stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&jobsPath, "jobs", "config/scheduler.yaml", "Scheduler job table")
	cmd.Flags().StringVar(&runJob, "run", "", "Run one job by name and exit")
	cmd.Flags().BoolVar(&once, "once", false, "Run the jobs scheduled for the current hour and exit")
	return cmd
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Serve /health, /ready and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false)
			if err != nil {
				return err
			}
			defer rt.close()

			var feedState func() string
			if rt.feed != nil {
				feedState = rt.feed.BreakerState
			}
			srv := telemetry.NewServer(rt.cfg.Monitor.Addr, rt.engine.Metrics(), rt.manager.Health(), feedState)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print storage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false)
			if err != nil {
				return err
			}
			defer rt.close()

			return printJSON(rt.manager.Health().Health(cmd.Context()))
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

// truncate shortens s to at most n runes, cutting on rune boundaries
// so multi-byte names never split mid-sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
