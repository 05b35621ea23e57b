package machine

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/host"
)

// ErrMissingMachine is returned when no machine label was supplied.
var ErrMissingMachine = errors.New("machine label is required")

// Identity groups all results from one benchmarking context.
type Identity struct {
	Machine string `json:"machine"`
	Arch    string `json:"arch"`
}

// Validate checks that both parts of the identity are set.
func (id Identity) Validate() error {
	if id.Machine == "" {
		return ErrMissingMachine
	}

	if id.Arch == "" {
		return fmt.Errorf("architecture is required for machine %q", id.Machine)
	}

	return nil
}

func (id Identity) String() string {
	return id.Machine + " (" + id.Arch + ")"
}

// debianArch maps kernel machine names to Debian architecture names.
var debianArch = map[string]string{
	"x86_64":  "amd64",
	"amd64":   "amd64",
	"aarch64": "arm64",
	"arm64":   "arm64",
	"armv7l":  "armhf",
	"armv6l":  "armel",
	"i386":    "i386",
	"i686":    "i386",
	"riscv64": "riscv64",
	"ppc64le": "ppc64el",
	"s390x":   "s390x",
}

// DetectArch returns the host architecture using Debian naming.
func DetectArch() (string, error) {
	arch, err := host.KernelArch()
	if err != nil {
		return "", fmt.Errorf("detecting kernel architecture: %w", err)
	}

	return NormalizeArch(arch), nil
}

// NormalizeArch converts a kernel machine name to its Debian architecture
// name. Unknown names are returned unchanged.
func NormalizeArch(arch string) string {
	if name, ok := debianArch[arch]; ok {
		return name
	}

	return arch
}
