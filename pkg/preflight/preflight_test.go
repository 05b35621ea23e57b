package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChecker() Checker {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return NewChecker(log)
}

func TestCheck_AllPresent(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "fakezip")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	require.NoError(t, newTestChecker().Check(context.Background(), []string{"sh", bin}))
}

func TestCheck_Missing(t *testing.T) {
	err := newTestChecker().Check(context.Background(), []string{
		"sh",
		"compressoor-missing-a",
		"compressoor-missing-b",
	})
	require.Error(t, err)

	var missing *MissingBinariesError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"compressoor-missing-a", "compressoor-missing-b"}, missing.Names)
	assert.Contains(t, err.Error(), "compressoor-missing-a, compressoor-missing-b")
}

func TestCheck_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestChecker().Check(ctx, []string{"sh"})
	assert.ErrorIs(t, err, context.Canceled)
}
