package cpufreq

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultSysfsCPUPath is the default sysfs path for CPU frequency control.
	DefaultSysfsCPUPath = "/sys/devices/system/cpu"

	cpufreqSubdir = "cpufreq"

	scalingGovernorFile  = "scaling_governor"
	scalingAvailGovsFile = "scaling_available_governors"
)

// getOnlineCPUs returns the list of online CPU IDs.
func getOnlineCPUs(basePath string) ([]int, error) {
	data, err := os.ReadFile(filepath.Join(basePath, "online"))
	if err == nil {
		return parseCPURange(strings.TrimSpace(string(data)))
	}

	// Fall back to present CPUs if online file doesn't exist.
	data, err = os.ReadFile(filepath.Join(basePath, "present"))
	if err != nil {
		return nil, fmt.Errorf("reading CPU online/present: %w", err)
	}

	return parseCPURange(strings.TrimSpace(string(data)))
}

// parseCPURange parses CPU range strings like "0-7" or "0,2,4-6".
func parseCPURange(rangeStr string) ([]int, error) {
	if rangeStr == "" {
		return nil, nil
	}

	var cpus []int

	for _, part := range strings.Split(rangeStr, ",") {
		part = strings.TrimSpace(part)

		lo, hi, isRange := strings.Cut(part, "-")

		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("parsing CPU ID %q: %w", part, err)
		}

		end := start

		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("parsing CPU range end %q: %w", part, err)
			}

			if end < start {
				return nil, fmt.Errorf("invalid CPU range: %s", part)
			}
		}

		for i := start; i <= end; i++ {
			cpus = append(cpus, i)
		}
	}

	return cpus, nil
}

// cpufreqPath returns the path to a cpufreq file for a given CPU.
func cpufreqPath(basePath string, cpuID int, filename string) string {
	return filepath.Join(basePath, fmt.Sprintf("cpu%d", cpuID), cpufreqSubdir, filename)
}

func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}

func writeSysfsString(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("no write permission to %s (requires root)", path)
		}

		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func getGovernor(basePath string, cpuID int) (string, error) {
	return readSysfsString(cpufreqPath(basePath, cpuID, scalingGovernorFile))
}

func setGovernor(basePath string, cpuID int, governor string) error {
	return writeSysfsString(cpufreqPath(basePath, cpuID, scalingGovernorFile), governor)
}

// getAvailableGovernors returns the list of available governors for a CPU.
func getAvailableGovernors(basePath string, cpuID int) ([]string, error) {
	data, err := readSysfsString(cpufreqPath(basePath, cpuID, scalingAvailGovsFile))
	if err != nil {
		return nil, err
	}

	return strings.Fields(data), nil
}

// validateGovernor checks that governor is available on cpuID.
func validateGovernor(basePath string, cpuID int, governor string) error {
	availGovs, err := getAvailableGovernors(basePath, cpuID)
	if err != nil {
		return fmt.Errorf("getting available governors: %w", err)
	}

	for _, avail := range availGovs {
		if avail == governor {
			return nil
		}
	}

	return fmt.Errorf(
		"governor %q not available (available: %s)",
		governor, strings.Join(availGovs, ", "),
	)
}
