package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/compressoor/pkg/config"
	"github.com/ethpandaops/compressoor/pkg/cpufreq"
	"github.com/ethpandaops/compressoor/pkg/executor"
	"github.com/ethpandaops/compressoor/pkg/fsutil"
	"github.com/ethpandaops/compressoor/pkg/machine"
	"github.com/ethpandaops/compressoor/pkg/preflight"
	"github.com/ethpandaops/compressoor/pkg/runner"
	"github.com/ethpandaops/compressoor/pkg/store"
	"github.com/ethpandaops/compressoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	runMachine  string
	runArch     string
	runDatabase string
	runReset    bool
	runTimeout  time.Duration
	runGovernor string
)

var runCmd = &cobra.Command{
	Use:   "run [data-file]",
	Short: "Run the benchmark",
	Long: `Benchmark every configured compressor against the data file and record
the results for this machine. Test cases already recorded for the machine are
skipped unless --reset is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runMachine, "machine", "m", "",
		`Brief description of this machine, e.g. "Pi Zero 2" (required)`)
	runCmd.Flags().StringVar(&runArch, "arch", "",
		"Architecture label (defaults to the detected host architecture)")
	runCmd.Flags().StringVarP(&runDatabase, "database", "d", "",
		"SQLite database file to record results in")
	runCmd.Flags().BoolVar(&runReset, "reset", false,
		"Discard this machine's previous results before running")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0,
		"Timeout for each compress and decompress phase (0 disables)")
	runCmd.Flags().StringVar(&runGovernor, "cpu-governor", "",
		`CPU frequency governor to pin during the run, e.g. "performance" (requires root)`)
}

// applyRunFlags overrides config values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, args []string, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("machine") {
		cfg.Benchmark.Machine = runMachine
	}

	if flags.Changed("arch") {
		cfg.Benchmark.Arch = runArch
	}

	if flags.Changed("database") {
		cfg.Database.Driver = "sqlite"
		cfg.Database.SQLite.Path = runDatabase
	}

	if flags.Changed("reset") {
		cfg.Benchmark.Reset = runReset
	}

	if flags.Changed("timeout") {
		cfg.Benchmark.Timeout = runTimeout
	}

	if flags.Changed("cpu-governor") {
		cfg.Benchmark.CPUGovernor = runGovernor
	}

	if len(args) == 1 {
		cfg.Benchmark.Input = args[0]
	}
}

// resolveIdentity builds the machine identity, detecting the architecture
// when none was configured.
func resolveIdentity(cfg *config.BenchmarkConfig) (machine.Identity, error) {
	if cfg.Machine == "" {
		return machine.Identity{}, fmt.Errorf("%w (use --machine)", machine.ErrMissingMachine)
	}

	arch := cfg.Arch
	if arch == "" {
		detected, err := machine.DetectArch()
		if err != nil {
			return machine.Identity{}, err
		}

		arch = detected
	}

	return machine.Identity{Machine: cfg.Machine, Arch: arch}, nil
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	applyRunFlags(cmd, args, cfg)

	// The machine label is checked first so nothing is measured or
	// recorded without one.
	id, err := resolveIdentity(&cfg.Benchmark)
	if err != nil {
		return err
	}

	if err := cfg.ValidateBenchmark(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Create S3 uploader if configured.
	var resultsUploader upload.Uploader

	if s3Enabled(cfg) {
		if cfg.Database.Driver != "sqlite" {
			log.WithField("driver", cfg.Database.Driver).
				Warn("S3 upload only publishes SQLite databases, skipping")
		} else {
			resultsUploader, err = upload.NewS3Uploader(log, cfg.Upload.S3)
			if err != nil {
				return fmt.Errorf("creating S3 uploader: %w", err)
			}

			if err := resultsUploader.Preflight(ctx); err != nil {
				return fmt.Errorf("S3 upload preflight check failed: %w", err)
			}
		}
	}

	resultsOwner, err := fsutil.ParseOwner(cfg.Benchmark.ResultsOwner)
	if err != nil {
		return fmt.Errorf("parsing results_owner: %w", err)
	}

	// Ownership is applied after the store is closed.
	if resultsOwner != nil && cfg.Database.Driver == "sqlite" {
		defer func() {
			path := cfg.Database.SQLite.Path
			if err := fsutil.Chown(resultsOwner, path, path+"-journal"); err != nil {
				log.WithError(err).Warn("Failed to set results owner")
			}
		}()
	}

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop store")
		}
	}()

	if cfg.Benchmark.CPUGovernor != "" {
		governors := cpufreq.NewManager(log, cpufreq.DefaultSysfsCPUPath)
		if err := governors.Pin(ctx, cfg.Benchmark.CPUGovernor); err != nil {
			return fmt.Errorf("pinning cpu governor: %w", err)
		}

		defer func() {
			if err := governors.Restore(); err != nil {
				log.WithError(err).Warn("Failed to restore cpu governors")
			}
		}()
	}

	r := runner.NewRunner(log, &runner.Config{
		TimeCommand: cfg.Benchmark.TimeCommand,
		Timeout:     cfg.Benchmark.Timeout,
		SpoolDir:    cfg.Benchmark.SpoolDir,
	})

	exec := executor.NewExecutor(
		log,
		&executor.Config{Matrix: cfg.Benchmark.Matrix},
		st,
		r,
		preflight.NewChecker(log),
	)

	summary, err := exec.Run(ctx, &executor.RunOptions{
		Identity:  id,
		InputPath: cfg.Benchmark.Input,
		Reset:     cfg.Benchmark.Reset,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Benchmark interrupted")

			return err
		}

		var missing *preflight.MissingBinariesError
		if errors.As(err, &missing) {
			return missing
		}

		return fmt.Errorf("running benchmark: %w", err)
	}

	log.WithFields(logrus.Fields{
		"machine":   id.String(),
		"measured":  summary.Pending,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Benchmark completed")

	if resultsUploader != nil {
		key, err := resultsUploader.UploadFile(ctx, cfg.Database.SQLite.Path)
		if err != nil {
			return fmt.Errorf("uploading results: %w", err)
		}

		log.WithField("key", key).Info("Results uploaded")
	}

	return nil
}

func s3Enabled(cfg *config.Config) bool {
	return cfg.Upload.S3 != nil && cfg.Upload.S3.Enabled
}
