package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/compressoor/pkg/config"
	"github.com/ethpandaops/compressoor/pkg/machine"
	"github.com/ethpandaops/compressoor/pkg/matrix"
	"github.com/ethpandaops/compressoor/pkg/store"
)

var (
	pi   = machine.Identity{Machine: "Pi 4", Arch: "armhf"}
	zero = machine.Identity{Machine: "Pi Zero 2", Arch: "arm64"}

	zstdCases = []matrix.TestCase{
		{Compressor: "zstd", Level: "-1"},
		{Compressor: "zstd", Level: "-2"},
		{Compressor: "zstd", Level: "-3"},
	}
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{
			Path: filepath.Join(t.TempDir(), "compression.db"),
		},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func measured(in, out int64) store.Outcome {
	return store.Outcome{
		Succeeded:      true,
		CompDuration:   1.5,
		CompMaxMem:     2048,
		DecompDuration: 0.25,
		DecompMaxMem:   1024,
		InputSize:      in,
		OutputSize:     out,
	}
}

func TestStore_InitializeIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cases := append(append([]matrix.TestCase{}, zstdCases...), matrix.Baseline)

	require.NoError(t, s.Initialize(ctx, cases))
	require.NoError(t, s.Initialize(ctx, cases))

	pending, err := s.PendingWork(ctx, pi)
	require.NoError(t, err)
	assert.Len(t, pending, 4)

	// A grown matrix only adds the new cases.
	grown := append(cases, matrix.TestCase{Compressor: "gzip", Level: "-1"})
	require.NoError(t, s.Initialize(ctx, grown))

	pending, err = s.PendingWork(ctx, pi)
	require.NoError(t, err)
	assert.Len(t, pending, 5)
}

func TestStore_PendingWorkShrinksAndResets(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, zstdCases))

	pending, err := s.PendingWork(ctx, pi)
	require.NoError(t, err)
	assert.Equal(t, zstdCases, pending)

	for i, tc := range zstdCases {
		require.NoError(t, s.RecordResult(ctx, pi, tc, measured(100, int64(50-i))))
	}

	pending, err = s.PendingWork(ctx, pi)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Other identities are unaffected.
	pending, err = s.PendingWork(ctx, zero)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	require.NoError(t, s.RecordResult(ctx, zero, zstdCases[0], measured(100, 40)))

	removed, err := s.Reset(ctx, pi)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	pending, err = s.PendingWork(ctx, pi)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	results, err := s.ListResults(ctx, zero)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestStore_ResetWithoutResults(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, zstdCases))

	removed, err := s.Reset(ctx, pi)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStore_RecordResultOverwrites(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, zstdCases))

	tc := zstdCases[1]
	require.NoError(t, s.RecordResult(ctx, pi, tc, store.FailedOutcome))
	require.NoError(t, s.RecordResult(ctx, pi, tc, measured(1000, 250)))

	results, err := s.ListResults(ctx, pi)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.True(t, got.Succeeded)
	assert.Equal(t, "zstd", got.Compressor)
	assert.Equal(t, "-2", got.Level)
	assert.Equal(t, int64(1000), got.InputSize)
	assert.Equal(t, int64(250), got.OutputSize)
	assert.InDelta(t, 1.5, got.CompDuration, 1e-9)
	assert.Equal(t, int64(2048), got.CompMaxMem)
}

func TestStore_RecordFailedOutcome(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, zstdCases))
	require.NoError(t, s.RecordResult(ctx, pi, zstdCases[0], store.FailedOutcome))

	results, err := s.ListResults(ctx, pi)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Succeeded)
	assert.Zero(t, results[0].CompDuration)
	assert.Zero(t, results[0].OutputSize)

	// A failure still counts as done.
	pending, err := s.PendingWork(ctx, pi)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestStore_RecordUnknownTestRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, zstdCases))

	err := s.RecordResult(ctx, pi, matrix.TestCase{Compressor: "brotli", Level: "-5"}, measured(1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording result for brotli -5")
}

func TestStore_KnownCompressors(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cases := matrix.Generate(matrix.DefaultEntries())
	require.NoError(t, s.Initialize(ctx, cases))

	names, err := s.KnownCompressors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "gzip", "lz4", "xz", "zstd"}, names)
}

func TestStore_ListAnalysis(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cases := []matrix.TestCase{
		{Compressor: "xz", Options: "-e", Level: "-9"},
		matrix.Baseline,
	}
	require.NoError(t, s.Initialize(ctx, cases))

	require.NoError(t, s.RecordResult(ctx, pi, cases[0], measured(1000, 125)))
	require.NoError(t, s.RecordResult(ctx, pi, matrix.Baseline, store.Outcome{
		Succeeded:  true,
		InputSize:  1000,
		OutputSize: 1000,
	}))
	require.NoError(t, s.RecordResult(ctx, zero, cases[0], store.FailedOutcome))

	rows, err := s.ListAnalysis(ctx, pi)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byLabel := make(map[string]store.Analysis, len(rows))
	for _, r := range rows {
		byLabel[r.Label] = r
	}

	require.Contains(t, byLabel, "xz -e -9")
	assert.InDelta(t, 12.5, byLabel["xz -e -9"].RatioPct, 1e-9)

	require.Contains(t, byLabel, "cat")
	assert.InDelta(t, 100.0, byLabel["cat"].RatioPct, 1e-9)

	// Zero input size yields a zero ratio.
	rows, err = s.ListAnalysis(ctx, zero)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Succeeded)
	assert.Zero(t, rows[0].RatioPct)

	// An empty identity matches everything.
	rows, err = s.ListAnalysis(ctx, machine.Identity{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestStore_ListIdentities(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, zstdCases))

	ids, err := s.ListIdentities(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.RecordResult(ctx, zero, zstdCases[0], measured(10, 5)))
	require.NoError(t, s.RecordResult(ctx, pi, zstdCases[0], measured(10, 5)))
	require.NoError(t, s.RecordResult(ctx, pi, zstdCases[1], measured(10, 5)))

	ids, err = s.ListIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []machine.Identity{pi, zero}, ids)
}

func TestStore_Summarize(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx, zstdCases))
	require.NoError(t, s.RecordResult(ctx, pi, zstdCases[0], measured(10, 5)))
	require.NoError(t, s.RecordResult(ctx, pi, zstdCases[1], store.FailedOutcome))

	summary, err := s.Summarize(ctx, pi)
	require.NoError(t, err)
	assert.Equal(t, &store.Summary{
		Machine:   "Pi 4",
		Arch:      "armhf",
		Total:     3,
		Succeeded: 1,
		Failed:    1,
		Pending:   1,
	}, summary)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compression.db")
	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: path},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	ctx := context.Background()

	first := store.NewStore(log, cfg)
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.Initialize(ctx, zstdCases))
	require.NoError(t, first.RecordResult(ctx, pi, zstdCases[0], measured(10, 5)))
	require.NoError(t, first.Stop())

	second := store.NewStore(log, cfg)
	require.NoError(t, second.Start(ctx))

	t.Cleanup(func() { _ = second.Stop() })

	require.NoError(t, second.Initialize(ctx, zstdCases))

	pending, err := second.PendingWork(ctx, pi)
	require.NoError(t, err)
	assert.Equal(t, zstdCases[1:], pending)
}

func TestStore_UnsupportedDriver(t *testing.T) {
	s := store.NewStore(logrus.New(), &config.DatabaseConfig{Driver: "mysql"})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
