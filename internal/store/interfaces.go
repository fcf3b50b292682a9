package store

import (
	"context"

	"github.com/urlguard/urlguard/models"
)

// Repository is the persistence boundary of the client: durable storage for
// threat list state and prefix sets surviving process restart. The in-memory
// PrefixStore is hydrated from it at startup and writes through on every
// successful update. Implementations must be safe for concurrent use.
type Repository interface {
	// ListStates returns the persisted state of every known threat list.
	ListStates(ctx context.Context) ([]models.ThreatListState, error)

	// SaveListState inserts or updates the state of one list, keyed by its
	// descriptor.
	SaveListState(ctx context.Context, state models.ThreatListState) error

	// DeleteList removes a list's state together with its prefix set.
	DeleteList(ctx context.Context, desc models.ThreatDescriptor) error

	// LoadPrefixes returns the persisted prefix set of one list in
	// lexicographic order. A list with no persisted prefixes yields an
	// empty set, not an error.
	LoadPrefixes(ctx context.Context, desc models.ThreatDescriptor) ([][]byte, error)

	// ReplacePrefixes atomically replaces the persisted prefix set of one
	// list.
	ReplacePrefixes(ctx context.Context, desc models.ThreatDescriptor, prefixes [][]byte) error
}
