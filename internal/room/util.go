package room

import "errors"

// matchesSentinel is a small errors.Is wrapper kept local to this
// package so callers read "isErrClientTooOld(err)" rather than
// repeating errors.Is at every call site.
func matchesSentinel(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
