package cpufreq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSysfs builds a cpufreq tree with n CPUs using the given governor.
func fakeSysfs(t *testing.T, n int, governor string) string {
	t.Helper()

	base := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(base, "online"), []byte(fmt.Sprintf("0-%d\n", n-1)), 0o644))

	for cpu := 0; cpu < n; cpu++ {
		dir := filepath.Join(base, fmt.Sprintf("cpu%d", cpu), cpufreqSubdir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, scalingGovernorFile), []byte(governor+"\n"), 0o644))
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, scalingAvailGovsFile),
			[]byte("ondemand performance powersave\n"), 0o644))
	}

	return base
}

func governorOf(t *testing.T, base string, cpu int) string {
	t.Helper()

	gov, err := getGovernor(base, cpu)
	require.NoError(t, err)

	return gov
}

func TestParseCPURange(t *testing.T) {
	tests := []struct {
		input   string
		want    []int
		wantErr bool
	}{
		{input: "", want: nil},
		{input: "0", want: []int{0}},
		{input: "0-3", want: []int{0, 1, 2, 3}},
		{input: "0,2,4-6", want: []int{0, 2, 4, 5, 6}},
		{input: "3-1", wantErr: true},
		{input: "a-b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseCPURange(tt.input)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_PinAndRestore(t *testing.T) {
	base := fakeSysfs(t, 4, "ondemand")
	m := NewManager(logrus.New(), base)

	require.NoError(t, m.Pin(context.Background(), "performance"))

	for cpu := 0; cpu < 4; cpu++ {
		assert.Equal(t, "performance", governorOf(t, base, cpu))
	}

	require.NoError(t, m.Restore())

	for cpu := 0; cpu < 4; cpu++ {
		assert.Equal(t, "ondemand", governorOf(t, base, cpu))
	}

	// A second restore has nothing to do.
	require.NoError(t, m.Restore())
}

func TestManager_UnavailableGovernor(t *testing.T) {
	base := fakeSysfs(t, 2, "ondemand")
	m := NewManager(logrus.New(), base)

	err := m.Pin(context.Background(), "schedutil")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `governor "schedutil" not available`)
	assert.Equal(t, "ondemand", governorOf(t, base, 0))
}

func TestManager_MissingSysfs(t *testing.T) {
	m := NewManager(logrus.New(), filepath.Join(t.TempDir(), "missing"))

	err := m.Pin(context.Background(), "performance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "getting online CPUs")
}

func TestManager_CancelledRestores(t *testing.T) {
	base := fakeSysfs(t, 2, "powersave")
	m := NewManager(logrus.New(), base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Pin(ctx, "performance")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "powersave", governorOf(t, base, 0))
	assert.Equal(t, "powersave", governorOf(t, base, 1))
}
