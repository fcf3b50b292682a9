// Package http exposes the client's local HTTP surface: URL lookups against
// the synced threat lists, list status inspection and a liveness probe.
package http

import (
	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/internal/service"
)

type Handler struct {
	lookup service.LookupService
	sync   service.SyncService

	logger *logger.Logger
}

func NewHandler(lookup service.LookupService, sync service.SyncService, logger *logger.Logger) *Handler {
	logger.Info().Msg("http handler created")
	return &Handler{
		lookup: lookup,
		sync:   sync,
		logger: logger,
	}
}
