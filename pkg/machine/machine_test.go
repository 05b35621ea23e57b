package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityValidate(t *testing.T) {
	require.NoError(t, Identity{Machine: "Pi Zero 2", Arch: "arm64"}.Validate())

	err := Identity{Arch: "amd64"}.Validate()
	assert.ErrorIs(t, err, ErrMissingMachine)

	err = Identity{Machine: "laptop"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "architecture is required")
}

func TestIdentityString(t *testing.T) {
	assert.Equal(t, "Pi 4 (armhf)", Identity{Machine: "Pi 4", Arch: "armhf"}.String())
}

func TestNormalizeArch(t *testing.T) {
	tests := map[string]string{
		"x86_64":  "amd64",
		"aarch64": "arm64",
		"armv7l":  "armhf",
		"armv6l":  "armel",
		"i686":    "i386",
		"mips":    "mips",
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, NormalizeArch(in))
		})
	}
}

func TestDetectArch(t *testing.T) {
	arch, err := DetectArch()
	require.NoError(t, err)
	assert.NotEmpty(t, arch)
}
