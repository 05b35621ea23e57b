package fsutil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Owner holds a parsed UID/GID for file ownership.
type Owner struct {
	UID int
	GID int
}

// ParseOwner parses a "UID:GID" string. Returns nil if empty.
func ParseOwner(owner string) (*Owner, error) {
	if owner == "" {
		return nil, nil
	}

	uidStr, gidStr, ok := strings.Cut(owner, ":")
	if !ok || strings.Contains(gidStr, ":") {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil || uid < 0 {
		return nil, fmt.Errorf("invalid UID %q", uidStr)
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil || gid < 0 {
		return nil, fmt.Errorf("invalid GID %q", gidStr)
	}

	return &Owner{UID: uid, GID: gid}, nil
}

// Chown sets the ownership of every existing path. A nil owner is a no-op
// and missing paths are skipped.
func Chown(owner *Owner, paths ...string) error {
	if owner == nil {
		return nil
	}

	var errs []error

	for _, path := range paths {
		err := os.Chown(path, owner.UID, owner.GID)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("chown %s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}
