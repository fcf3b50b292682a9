package store

import "errors"

var (
	// ErrChecksumMismatch reports that an applied update produced a prefix
	// set whose digest disagrees with the server-declared checksum. The
	// pre-update state remains authoritative and the list needs a full
	// resync.
	ErrChecksumMismatch = errors.New("prefix set checksum mismatch")

	// ErrRemovalIndex reports a removal index outside the current sorted
	// prefix array. The update is unusable as a whole.
	ErrRemovalIndex = errors.New("removal index out of range")

	// ErrPrefixSize reports an addition outside the valid prefix width of
	// 4 to 32 bytes.
	ErrPrefixSize = errors.New("invalid hash prefix size")

	// ErrUnknownList reports an operation against a list the store does not
	// track.
	ErrUnknownList = errors.New("unknown threat list")

	// ErrUnsupportedEngine reports a storage engine name the repository
	// layer cannot serve.
	ErrUnsupportedEngine = errors.New("unsupported storage engine")
)
