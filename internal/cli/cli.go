// Package cli wires the platereduce command line to the reduction driver.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"platereduce/internal/config"
	"platereduce/internal/logging"
	"platereduce/internal/plate"
	"platereduce/internal/reduce"
	"platereduce/internal/server"
)

// NewRootCmd creates the root command. The positional argument is the plate
// URL; every job parameter is a flag.
func NewRootCmd() *cobra.Command {
	var (
		job        config.Job
		configPath string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "platereduce <plate-url>",
		Short: "Combine versioned tile layers of a plate with a reduction function",
		Long: `platereduce walks one resolution level of a plate, gathers every tile
version written within a transaction-id range, combines the overlapping
versions per tile with a reduction function (weighted average by alpha), and
commits each result as a new transaction.

Work is sharded deterministically: launch num_jobs processes with distinct
job_id values and the same level and output transaction id, and each process
owns a disjoint slice of the tile grid with no further coordination.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			job.URL = args[0]
			if err := job.Validate(); err != nil {
				return err
			}

			settings, err := config.LoadSettings(configPath)
			if err != nil {
				return err
			}
			if logLevel == "" {
				logLevel = settings.Logging.Level
			}
			if logFormat == "" {
				logFormat = settings.Logging.Format
			}
			log := logging.New(logLevel, logFormat)

			return run(cmd.Context(), &job, log)
		},
	}

	cmd.Flags().IntVarP(&job.JobID, "job_id", "j", 0, "index of this job among num_jobs sharded workers")
	cmd.Flags().IntVarP(&job.NumJobs, "num_jobs", "n", 1, "total number of sharded worker processes")
	cmd.Flags().IntVar(&job.StartTransaction, "start_t", 0, "starting transaction id of the input range")
	cmd.Flags().IntVar(&job.EndTransaction, "end_t", config.OpenEnd, "ending transaction id of the input range (unset means up to the latest)")
	cmd.Flags().IntVarP(&job.Level, "level", "l", -1, "pyramid level to process; -1 errors out and shows the levels available")
	cmd.Flags().StringVarP(&job.Function, "function", "f", "WeightedAvg", "reduction function to apply [WeightedAvg]")
	cmd.Flags().IntVarP(&job.OutputTransaction, "transaction-id", "t", 2000, "transaction id to write results under")
	cmd.Flags().StringVar(&job.StatusAddr, "status-addr", "", "serve a JSON progress endpoint on this address while running")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON settings file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error), overrides settings")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "log format (text|json), overrides settings")

	return cmd
}

func run(ctx context.Context, job *config.Job, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reject unknown functions before touching the store.
	if _, err := reduce.ResolveStrategy(job.Function); err != nil {
		return err
	}

	p, err := plate.Open(job.URL)
	if err != nil {
		return err
	}
	defer p.Close()

	runID := uuid.NewString()
	progress := server.NewProgress(runID, job.JobID, job.NumJobs, job.Level)

	var wg sync.WaitGroup
	if job.StatusAddr != "" {
		srv := server.New(job.StatusAddr, progress, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				log.Warn("status endpoint failed", "error", err)
			}
		}()
	}

	logging.LogJobStart(log, runID, job.URL, job.JobID, job.NumJobs, job.Level)
	start := time.Now()
	err = reduce.Run(ctx, p, job, log, progress)
	if err != nil {
		logging.LogJobError(log, runID, time.Since(start), err)
	} else {
		logging.LogJobComplete(log, runID, time.Since(start), progress.Reduced(), progress.Skipped())
	}

	stop()
	wg.Wait()
	return err
}
