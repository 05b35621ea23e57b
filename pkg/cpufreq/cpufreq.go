package cpufreq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager pins the CPU frequency governor for the duration of a benchmark
// so that timings are not skewed by frequency scaling.
type Manager interface {
	// Pin sets governor on every online CPU, remembering the previous
	// governors. The governor must be available on the system.
	Pin(ctx context.Context, governor string) error
	// Restore puts back the governors captured by Pin. It is a no-op when
	// nothing was pinned.
	Restore() error
}

// Ensure interface compliance.
var _ Manager = (*manager)(nil)

// NewManager creates a new CPU frequency manager.
// sysfsBasePath is the base path for CPU sysfs files (e.g. "/sys/devices/system/cpu").
func NewManager(log logrus.FieldLogger, sysfsBasePath string) Manager {
	if sysfsBasePath == "" {
		sysfsBasePath = DefaultSysfsCPUPath
	}

	return &manager{
		log:           log.WithField("component", "cpufreq"),
		sysfsBasePath: sysfsBasePath,
	}
}

type manager struct {
	log           logrus.FieldLogger
	sysfsBasePath string

	mu       sync.Mutex
	original map[int]string
}

// Pin implements Manager.
func (m *manager) Pin(ctx context.Context, governor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpus, err := getOnlineCPUs(m.sysfsBasePath)
	if err != nil {
		return fmt.Errorf("getting online CPUs: %w", err)
	}

	if len(cpus) == 0 {
		return fmt.Errorf("no online CPUs found")
	}

	if err := validateGovernor(m.sysfsBasePath, cpus[0], governor); err != nil {
		return err
	}

	original := make(map[int]string, len(cpus))

	for _, cpu := range cpus {
		gov, err := getGovernor(m.sysfsBasePath, cpu)
		if err != nil {
			return fmt.Errorf("capturing governor of cpu%d: %w", cpu, err)
		}

		original[cpu] = gov
	}

	m.original = original

	for _, cpu := range cpus {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, m.restoreLocked())
		}

		if err := setGovernor(m.sysfsBasePath, cpu, governor); err != nil {
			return errors.Join(
				fmt.Errorf("setting governor of cpu%d: %w", cpu, err),
				m.restoreLocked(),
			)
		}
	}

	m.log.WithFields(logrus.Fields{
		"governor": governor,
		"cpus":     len(cpus),
	}).Info("CPU governor pinned")

	return nil
}

// Restore implements Manager.
func (m *manager) Restore() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.restoreLocked()
}

func (m *manager) restoreLocked() error {
	if m.original == nil {
		return nil
	}

	var errs []error

	for cpu, gov := range m.original {
		if err := setGovernor(m.sysfsBasePath, cpu, gov); err != nil {
			errs = append(errs, fmt.Errorf("restoring governor of cpu%d: %w", cpu, err))
		}
	}

	m.original = nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	m.log.Info("CPU governors restored")

	return nil
}
