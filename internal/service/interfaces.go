// SPDX-License-Identifier: Apache-2.0

// Package service implements the client's two domain workflows on top of the
// store and adapter layers: keeping the local threat lists synchronized with
// the remote service, and producing verdicts for URLs.
//
// The sync side ([SyncService]) drives the update protocol: it requests
// deltas for every tracked list, decodes the compressed entry sets, applies
// them to the checksum-verified prefix store, and schedules the next attempt
// per list, honoring server-mandated wait intervals and exponential backoff
// after failures. [SyncJob] runs it periodically.
//
// The lookup side ([LookupService]) canonicalizes a URL, derives its
// candidate expressions, matches their digests against the prefix store and
// resolves surviving candidates through the full-hash endpoint, consulting
// the positive/negative cache first.
package service

import (
	"context"
	"time"

	"github.com/urlguard/urlguard/models"
)

// SyncService keeps the tracked threat lists synchronized with the remote
// service. Implementations are safe for concurrent use with LookupService.
type SyncService interface {
	// Bootstrap loads the persisted list states and prefix sets into memory
	// and registers any newly configured lists. Must be called once before
	// SyncOnce or lookups.
	Bootstrap(ctx context.Context) error

	// SyncOnce runs a single update cycle over every list whose wait window
	// has elapsed. A failure of one list does not prevent updates of the
	// others; per-list errors are joined into the returned error.
	SyncOnce(ctx context.Context) error

	// ClientStates returns the opaque state token of every tracked list,
	// as required by full-hash requests.
	ClientStates() []string

	// Statuses returns a point-in-time snapshot of every tracked list.
	Statuses() []models.ListStatus
}

// LookupService produces verdicts for URLs against the synced lists.
type LookupService interface {
	// LookupURL canonicalizes rawURL, derives its candidate expressions and
	// returns every confirmed threat list match. An empty match set means
	// the URL is not on any tracked list. Returns an error wrapping
	// urlcanon.ErrMalformedURL for unusable input and ErrLookup when a
	// verdict could not be produced.
	LookupURL(ctx context.Context, rawURL string) (models.LookupResult, error)
}

// SyncJob periodically runs a SyncService in the background.
type SyncJob interface {
	// Start launches the background loop with the given interval. An
	// already running job is restarted.
	Start(ctx context.Context, interval time.Duration)

	// Stop cancels the loop and blocks until it has exited. Safe to call
	// when the job is not running.
	Stop()
}
