package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"
	"github.com/ethpandaops/compressoor/pkg/machine"
	"github.com/ethpandaops/compressoor/pkg/matrix"
	"github.com/ethpandaops/compressoor/pkg/preflight"
	"github.com/ethpandaops/compressoor/pkg/runner"
	"github.com/ethpandaops/compressoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// Executor drives a resumable benchmark run for one machine identity.
type Executor interface {
	// Run measures every test case still pending for the identity and
	// records each outcome as soon as it is known. A run interrupted by
	// ctx or a fatal error keeps everything recorded so far.
	Run(ctx context.Context, opts *RunOptions) (*RunSummary, error)
}

// RunOptions contains options for a benchmark run.
type RunOptions struct {
	Identity  machine.Identity
	InputPath string
	// Reset discards the identity's previous results before running.
	Reset bool
}

// RunSummary contains the overall run summary.
type RunSummary struct {
	Pending   int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Config for the executor.
type Config struct {
	Matrix []matrix.Entry
}

// NewExecutor creates a new executor instance.
func NewExecutor(
	log logrus.FieldLogger,
	cfg *Config,
	st store.Store,
	run runner.Runner,
	checker preflight.Checker,
) Executor {
	return &executor{
		log:     log.WithField("component", "executor"),
		cfg:     cfg,
		store:   st,
		runner:  run,
		checker: checker,
	}
}

type executor struct {
	log     logrus.FieldLogger
	cfg     *Config
	store   store.Store
	runner  runner.Runner
	checker preflight.Checker
}

// Ensure interface compliance.
var _ Executor = (*executor)(nil)

// Run implements Executor.
func (e *executor) Run(ctx context.Context, opts *RunOptions) (*RunSummary, error) {
	startTime := time.Now()

	if err := opts.Identity.Validate(); err != nil {
		return nil, err
	}

	info, err := os.Stat(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("checking input file: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("input %q is a directory", opts.InputPath)
	}

	log := e.log.WithFields(logrus.Fields{
		"machine": opts.Identity.Machine,
		"arch":    opts.Identity.Arch,
	})

	if err := e.store.Initialize(ctx, matrix.Generate(e.cfg.Matrix)); err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	compressors, err := e.store.KnownCompressors(ctx)
	if err != nil {
		return nil, err
	}

	binaries := append([]string{e.runner.TimeCommand()}, compressors...)
	if err := e.checker.Check(ctx, binaries); err != nil {
		return nil, fmt.Errorf("preflight: %w", err)
	}

	if opts.Reset {
		removed, err := e.store.Reset(ctx, opts.Identity)
		if err != nil {
			return nil, err
		}

		log.WithField("removed", removed).Info("Previous results discarded")
	}

	pending, err := e.store.PendingWork(ctx, opts.Identity)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{Pending: len(pending)}

	log.WithFields(logrus.Fields{
		"pending": len(pending),
		"input":   opts.InputPath,
		"size":    units.HumanSize(float64(info.Size())),
	}).Info("Starting benchmark")

	for i, tc := range pending {
		if err := ctx.Err(); err != nil {
			log.Warn("Benchmark interrupted between test cases")

			summary.Duration = time.Since(startTime)

			return summary, err
		}

		caseLog := log.WithFields(logrus.Fields{
			"test":     tc.String(),
			"progress": fmt.Sprintf("%d/%d", i+1, len(pending)),
		})
		caseLog.Info("Running test case")

		outcome, err := e.measure(ctx, tc, opts.InputPath)
		if err != nil {
			summary.Duration = time.Since(startTime)

			if ctx.Err() != nil {
				caseLog.Warn("Benchmark interrupted during test case")

				return summary, ctx.Err()
			}

			return summary, fmt.Errorf("measuring %s: %w", tc, err)
		}

		if err := e.store.RecordResult(ctx, opts.Identity, tc, outcome); err != nil {
			summary.Duration = time.Since(startTime)

			return summary, err
		}

		if outcome.Succeeded {
			summary.Succeeded++

			caseLog.WithFields(logrus.Fields{
				"comp_duration":   outcome.CompDuration,
				"decomp_duration": outcome.DecompDuration,
				"output_size":     units.HumanSize(float64(outcome.OutputSize)),
			}).Info("Test case recorded")
		} else {
			summary.Failed++
		}
	}

	summary.Duration = time.Since(startTime)

	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"duration":  summary.Duration.Round(time.Millisecond),
	}).Info("Benchmark complete")

	return summary, nil
}

// measure runs one test case. A compression failure becomes a failed
// outcome; any other error is returned.
func (e *executor) measure(
	ctx context.Context, tc matrix.TestCase, inputPath string,
) (store.Outcome, error) {
	m, err := e.runner.Run(ctx, tc, inputPath)
	if err != nil {
		if errors.Is(err, runner.ErrCompressionFailed) && ctx.Err() == nil {
			e.log.WithError(err).WithField("test", tc.String()).
				Warn("Test case failed, recording failure")

			return store.FailedOutcome, nil
		}

		return store.Outcome{}, err
	}

	return store.Outcome{
		Succeeded:      true,
		CompDuration:   m.CompDuration,
		CompMaxMem:     m.CompMaxMem,
		DecompDuration: m.DecompDuration,
		DecompMaxMem:   m.DecompMaxMem,
		InputSize:      m.InputSize,
		OutputSize:     m.OutputSize,
	}, nil
}
