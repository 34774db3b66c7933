package store

import "errors"

// ErrNotFound is returned by mutations that matched no row.
var ErrNotFound = errors.New("not found")

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
