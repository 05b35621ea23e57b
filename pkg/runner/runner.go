package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	units "github.com/docker/go-units"
	"github.com/ethpandaops/compressoor/pkg/matrix"
	"github.com/ethpandaops/compressoor/pkg/timing"
	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeCommand is the timing wrapper used when none is configured.
	DefaultTimeCommand = "time"

	// DecompressFlag is passed to a compressor to make it decompress stdin.
	DecompressFlag = "-d"

	// waitDelay bounds how long Wait drains stderr after a phase's process
	// has been killed.
	waitDelay = 2 * time.Second

	phaseCompress   = "compress"
	phaseDecompress = "decompress"
)

// ErrCompressionFailed is returned when a compressor exits non-zero or a
// phase exceeds its timeout. The test case could not be measured, but the
// benchmark run may continue.
var ErrCompressionFailed = errors.New("compression failed")

// Measurement holds the values measured for one test case.
type Measurement struct {
	CompDuration   float64 // seconds
	CompMaxMem     int64   // bytes
	DecompDuration float64 // seconds
	DecompMaxMem   int64   // bytes
	InputSize      int64   // bytes
	OutputSize     int64   // bytes
}

// Runner measures compressors as external processes.
type Runner interface {
	// Run compresses inputPath with the test case's compressor, then
	// decompresses the result, returning the measurements of both phases.
	Run(ctx context.Context, tc matrix.TestCase, inputPath string) (*Measurement, error)

	// TimeCommand returns the timing wrapper binary.
	TimeCommand() string
}

// Config for the runner.
type Config struct {
	TimeCommand string
	// Timeout bounds each phase independently. Zero means unbounded.
	Timeout  time.Duration
	SpoolDir string
}

// NewRunner creates a new runner instance.
func NewRunner(log logrus.FieldLogger, cfg *Config) Runner {
	if cfg.TimeCommand == "" {
		cfg.TimeCommand = DefaultTimeCommand
	}

	return &runner{
		log: log.WithField("component", "runner"),
		cfg: cfg,
	}
}

type runner struct {
	log logrus.FieldLogger
	cfg *Config
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// TimeCommand implements Runner.
func (r *runner) TimeCommand() string {
	return r.cfg.TimeCommand
}

// Run implements Runner.
func (r *runner) Run(
	ctx context.Context,
	tc matrix.TestCase,
	inputPath string,
) (*Measurement, error) {
	input, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer func() { _ = input.Close() }()

	info, err := input.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	if tc.IsBaseline() {
		return &Measurement{
			InputSize:  info.Size(),
			OutputSize: info.Size(),
		}, nil
	}

	options, err := shlex.Split(tc.Options)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing options %q: %v", ErrCompressionFailed, tc.Options, err)
	}

	spool, err := os.CreateTemp(r.cfg.SpoolDir, "compressoor-*.spool")
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}

	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	comp, err := r.runPhase(ctx, phaseCompress, compressArgs(tc, options), input, spool)
	if err != nil {
		return nil, err
	}

	spoolInfo, err := spool.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat spool file: %w", err)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding spool file: %w", err)
	}

	decomp, err := r.runPhase(ctx, phaseDecompress,
		[]string{tc.Compressor, DecompressFlag}, spool, nil)
	if err != nil {
		return nil, err
	}

	m := &Measurement{
		CompDuration:   comp.Seconds,
		CompMaxMem:     comp.MaxResidentBytes,
		DecompDuration: decomp.Seconds,
		DecompMaxMem:   decomp.MaxResidentBytes,
		InputSize:      info.Size(),
		OutputSize:     spoolInfo.Size(),
	}

	r.log.WithFields(logrus.Fields{
		"test":        tc.String(),
		"input":       units.HumanSize(float64(m.InputSize)),
		"output":      units.HumanSize(float64(m.OutputSize)),
		"comp_time":   comp.Elapsed(),
		"comp_mem":    units.BytesSize(float64(m.CompMaxMem)),
		"decomp_time": decomp.Elapsed(),
		"decomp_mem":  units.BytesSize(float64(m.DecompMaxMem)),
	}).Debug("Measured test case")

	return m, nil
}

// compressArgs builds the compressor argument list: binary, level flag,
// then each option token.
func compressArgs(tc matrix.TestCase, options []string) []string {
	args := make([]string, 0, 2+len(options))
	args = append(args, tc.Compressor)

	if tc.Level != "" {
		args = append(args, tc.Level)
	}

	return append(args, options...)
}

// runPhase runs args under the timing wrapper and parses its report. A nil
// stdout discards the output.
func (r *runner) runPhase(
	ctx context.Context,
	phase string,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
) (timing.Usage, error) {
	phaseCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.cfg.Timeout > 0 {
		phaseCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
	}
	defer cancel()

	cmdline := make([]string, 0, len(args)+2)
	cmdline = append(cmdline, "-f", timing.Format)
	cmdline = append(cmdline, args...)

	r.log.WithFields(logrus.Fields{
		"phase": phase,
		"args":  append([]string{r.cfg.TimeCommand}, cmdline...),
	}).Debug("Running phase")

	var stderr bytes.Buffer

	cmd := exec.CommandContext(phaseCtx, r.cfg.TimeCommand, cmdline...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	runErr := cmd.Run()

	if err := ctx.Err(); err != nil {
		return timing.Usage{}, err
	}

	if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
		return timing.Usage{}, fmt.Errorf("%w: %s phase exceeded timeout of %s",
			ErrCompressionFailed, phase, r.cfg.Timeout)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return timing.Usage{}, fmt.Errorf("%w: %s phase exited with status %d: %s",
				ErrCompressionFailed, phase, exitErr.ExitCode(),
				timing.LastLine(stderr.Bytes()))
		}

		return timing.Usage{}, fmt.Errorf("running %s phase: %w", phase, runErr)
	}

	usage, err := timing.Parse(timing.LastLine(stderr.Bytes()))
	if err != nil {
		return timing.Usage{}, fmt.Errorf("parsing %s phase timing: %w", phase, err)
	}

	return usage, nil
}
