// SPDX-License-Identifier: Apache-2.0

package http

import (
	"errors"
	"net/http"

	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/internal/service"
	"github.com/urlguard/urlguard/internal/urlcanon"
	"github.com/urlguard/urlguard/internal/utils"
)

// getLookup produces a verdict for the URL given in the "url" query
// parameter. An empty match list means the URL is on no tracked threat list.
func (h *Handler) getLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromRequest(r)

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		http.Error(w, "missing url query parameter", http.StatusBadRequest)
		return
	}

	result, err := h.lookup.LookupURL(ctx, rawURL)
	switch {
	case errors.Is(err, urlcanon.ErrMalformedURL):
		log.Warn().Str("func", "*Handler.getLookup").Str("url", rawURL).Msg("malformed url")
		http.Error(w, "malformed url", http.StatusBadRequest)
		return
	case errors.Is(err, service.ErrLookup):
		log.Error().Err(err).Str("func", "*Handler.getLookup").Msg("verdict unavailable")
		http.Error(w, "verdict unavailable", http.StatusBadGateway)
		return
	case err != nil:
		log.Error().Err(err).Str("func", "*Handler.getLookup").Msg("lookup failed")
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, result, http.StatusOK)
}
