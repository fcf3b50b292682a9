package service

import "errors"

var (
	// ErrLookup reports that a URL verdict could not be produced because the
	// remote full-hash resolution failed or was not allowed yet. Callers must
	// not treat the URL as safe.
	ErrLookup = errors.New("lookup unresolved")

	// ErrUpdateFailed reports that at least one list failed to apply its
	// update during a sync cycle. Per-list details are attached via
	// errors.Join.
	ErrUpdateFailed = errors.New("threat list update failed")
)
