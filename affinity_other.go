//go:build !linux

package fibersched

import "errors"

// affinitize has no portable implementation outside Linux in this module;
// see DESIGN.md. Callers that set Affinitize on a non-Linux platform get a
// logged warning per worker instead of a hard failure.
func affinitize(index int) error {
	return errors.New("fibersched: Affinitize is not implemented on this platform")
}
