// SPDX-License-Identifier: Apache-2.0

// Package adapter provides transport-layer abstractions for communicating with
// the remote threat list service.
//
// The primary abstraction is [ServerAdapter], which decouples the service
// layer from the underlying protocol. The package ships an HTTP/JSON
// implementation ([NewHTTPServerAdapter]) speaking the v4 update API.
//
// Error values defined in errors.go are mapped from HTTP status codes by
// mapHTTPError so that callers can use [errors.Is] for transport-agnostic
// error handling (e.g. [ErrUnauthorized] for 401/403, [ErrServerError] for
// 5xx responses).
package adapter

import (
	"context"

	"github.com/urlguard/urlguard/models"
)

// ServerAdapter defines transport-agnostic communication with the remote
// threat list service. Implementations are responsible for serialisation,
// authentication, client-side rate limiting, and mapping transport-level
// errors to the sentinel values defined in this package.
type ServerAdapter interface {
	// ListThreatLists fetches the catalog of threat lists the service
	// currently serves. Used to reconcile the locally configured lists
	// against what the server actually offers.
	ListThreatLists(ctx context.Context) ([]models.ThreatDescriptor, error)

	// FetchUpdates requests incremental or full updates for the lists named
	// in req. The adapter fills in the client identification; callers supply
	// the per-list states and constraints. The response carries the new
	// opaque state token, the additions and removals, and the server's
	// minimum wait duration.
	FetchUpdates(ctx context.Context, req models.FetchUpdatesRequest) (*models.FetchUpdatesResponse, error)

	// FindFullHashes resolves hash prefixes to full-length hashes. The
	// adapter fills in the client identification; callers supply the client
	// states and the prefixes under suspicion.
	FindFullHashes(ctx context.Context, req models.FindFullHashesRequest) (*models.FindFullHashesResponse, error)
}
