package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/ethpandaops/compressoor/pkg/config"
	"github.com/ethpandaops/compressoor/pkg/machine"
	"github.com/ethpandaops/compressoor/pkg/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().StringVarP(&runMachine, "machine", "m", "", "")
	cmd.Flags().StringVar(&runArch, "arch", "", "")
	cmd.Flags().StringVarP(&runDatabase, "database", "d", "", "")
	cmd.Flags().BoolVar(&runReset, "reset", false, "")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "")
	cmd.Flags().StringVar(&runGovernor, "cpu-governor", "", "")

	return cmd
}

func TestApplyRunFlags(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Database: config.DatabaseConfig{
				Driver: "postgres",
				SQLite: config.SQLiteDatabaseConfig{Path: "compression.db"},
			},
			Benchmark: config.BenchmarkConfig{
				Machine: "from-config",
				Input:   "/data/config.bin",
				Timeout: time.Minute,
			},
		}
	}

	t.Run("unset flags keep config values", func(t *testing.T) {
		cmd := newTestRunCmd()
		require.NoError(t, cmd.ParseFlags(nil))

		cfg := base()
		applyRunFlags(cmd, nil, cfg)

		assert.Equal(t, "from-config", cfg.Benchmark.Machine)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, time.Minute, cfg.Benchmark.Timeout)
		assert.Equal(t, "/data/config.bin", cfg.Benchmark.Input)
	})

	t.Run("flags and positional argument win", func(t *testing.T) {
		cmd := newTestRunCmd()
		require.NoError(t, cmd.ParseFlags([]string{
			"--machine", "Pi Zero 2", "--database", "/tmp/pi.db", "--reset", "--timeout", "45s",
		}))

		cfg := base()
		applyRunFlags(cmd, []string{"/data/flag.bin"}, cfg)

		assert.Equal(t, "Pi Zero 2", cfg.Benchmark.Machine)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "/tmp/pi.db", cfg.Database.SQLite.Path)
		assert.True(t, cfg.Benchmark.Reset)
		assert.Equal(t, 45*time.Second, cfg.Benchmark.Timeout)
		assert.Equal(t, "/data/flag.bin", cfg.Benchmark.Input)
	})
}

func TestResolveIdentity(t *testing.T) {
	_, err := resolveIdentity(&config.BenchmarkConfig{})
	require.ErrorIs(t, err, machine.ErrMissingMachine)

	id, err := resolveIdentity(&config.BenchmarkConfig{Machine: "Pi 4", Arch: "armhf"})
	require.NoError(t, err)
	assert.Equal(t, machine.Identity{Machine: "Pi 4", Arch: "armhf"}, id)
}

func TestRenderSummaries(t *testing.T) {
	var buf bytes.Buffer

	renderSummaries(&buf, []*store.Summary{
		{Machine: "Pi 4", Arch: "armhf", Total: 77, Succeeded: 70, Failed: 2, Pending: 5},
	})

	out := buf.String()
	assert.Contains(t, out, "Machine")
	assert.Contains(t, out, "Pi 4")
	assert.Contains(t, out, "armhf")
	assert.Contains(t, out, "70")
	assert.Contains(t, out, "77")
}

func TestRenderAnalysis(t *testing.T) {
	var buf bytes.Buffer

	renderAnalysis(&buf, []store.Analysis{
		{
			Machine: "Pi 4", Arch: "armhf", Label: "xz -e -9", Succeeded: true,
			CompDuration: 12.5, CompMaxMem: 1 << 20, OutputSize: 125, RatioPct: 12.5,
		},
		{Machine: "Pi 4", Arch: "armhf", Label: "zstd -19"},
	})

	out := buf.String()
	assert.Contains(t, out, "xz -e -9")
	assert.Contains(t, out, "12.50s")
	assert.Contains(t, out, "12.5%")
	assert.Contains(t, out, "1MiB")
	assert.Contains(t, out, "zstd -19")
}
