package preflight

import (
	"context"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// MissingBinariesError lists the binaries that could not be found.
type MissingBinariesError struct {
	Names []string
}

func (e *MissingBinariesError) Error() string {
	return "missing binaries: " + strings.Join(e.Names, ", ") +
		" (please install them before benchmarking)"
}

// Checker verifies that external binaries are installed.
type Checker interface {
	// Check resolves every binary and returns a *MissingBinariesError
	// naming all that are absent.
	Check(ctx context.Context, binaries []string) error
}

// Ensure interface compliance.
var _ Checker = (*pathChecker)(nil)

type pathChecker struct {
	log      logrus.FieldLogger
	lookPath func(string) (string, error)
}

// NewChecker creates a Checker that resolves binaries on PATH.
func NewChecker(log logrus.FieldLogger) Checker {
	return &pathChecker{
		log:      log.WithField("component", "preflight"),
		lookPath: exec.LookPath,
	}
}

// Check implements Checker.
func (c *pathChecker) Check(ctx context.Context, binaries []string) error {
	var missing []string

	for _, name := range binaries {
		if err := ctx.Err(); err != nil {
			return err
		}

		path, err := c.lookPath(name)
		if err != nil {
			c.log.WithField("binary", name).Warn("Binary not found")

			missing = append(missing, name)

			continue
		}

		c.log.WithFields(logrus.Fields{
			"binary": name,
			"path":   path,
		}).Debug("Binary found")
	}

	if len(missing) > 0 {
		return &MissingBinariesError{Names: missing}
	}

	return nil
}
