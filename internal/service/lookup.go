// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/urlguard/urlguard/internal/adapter"
	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/internal/store"
	"github.com/urlguard/urlguard/internal/urlcanon"
	"github.com/urlguard/urlguard/models"
)

// StateSource supplies the opaque per-list state tokens attached to full-hash
// requests. Satisfied by SyncService.
type StateSource interface {
	ClientStates() []string
}

type lookupService struct {
	prefixes *store.PrefixStore
	cache    *store.HashCache
	adapter  adapter.ServerAdapter
	states   StateSource
	log      *logger.Logger

	now func() time.Time

	mu            sync.Mutex
	findWaitUntil time.Time // full-hash endpoint quiet period
}

// NewLookupService builds the URL verdict workflow on top of the prefix
// store, the full-hash cache and the remote full-hash endpoint.
func NewLookupService(
	prefixes *store.PrefixStore,
	cache *store.HashCache,
	serverAdapter adapter.ServerAdapter,
	states StateSource,
	log *logger.Logger,
) LookupService {
	return &lookupService{
		prefixes: prefixes,
		cache:    cache,
		adapter:  serverAdapter,
		states:   states,
		log:      log,
		now:      time.Now,
	}
}

// candidate is one canonical expression under suspicion together with its
// full digest.
type candidate struct {
	pattern string
	digest  []byte
	hits    []store.PrefixHit
}

func (s *lookupService) LookupURL(ctx context.Context, rawURL string) (models.LookupResult, error) {
	result := models.LookupResult{URL: rawURL, Matches: []models.Match{}}

	canonical, err := urlcanon.Canonicalize(rawURL)
	if err != nil {
		return result, err
	}

	var candidates []candidate
	for _, pattern := range urlcanon.Patterns(canonical) {
		digest := urlcanon.Digest(pattern)
		hits := s.prefixes.Lookup(digest)
		if len(hits) == 0 {
			continue
		}
		candidates = append(candidates, candidate{pattern: pattern, digest: digest, hits: hits})
	}
	if len(candidates) == 0 {
		return result, nil
	}

	// Answer what the cache already knows and collect the prefixes that
	// still need a remote round-trip.
	pending := make(map[string][]byte)
	for _, c := range candidates {
		for _, hit := range c.hits {
			for _, e := range s.cache.Matches(hit.Prefix, c.digest) {
				result.Matches = appendMatch(result.Matches, models.Match{
					Descriptor:        e.Descriptor,
					Pattern:           c.pattern,
					FullHash:          e.FullHash,
					MalwareThreatType: e.MalwareThreatType,
				})
			}
			if !s.cache.Resolved(hit.Prefix, c.digest) {
				pending[string(hit.Prefix)] = hit.Prefix
			}
		}
	}
	if len(pending) == 0 {
		return result, nil
	}

	resp, err := s.findFullHashes(ctx, pending)
	if err != nil {
		return result, err
	}

	negTTL := resp.NegativeCacheDuration.Std()
	for _, prefix := range pending {
		s.cache.PutNegative(prefix, negTTL)
	}

	for _, m := range resp.Matches {
		prefix, ok := coveringPrefix(pending, m.Threat.Hash)
		if !ok {
			s.log.Warn().
				Str("list", m.Descriptor().String()).
				Msg("full hash response outside the queried prefixes")
			continue
		}
		s.cache.PutPositive(prefix, store.PositiveEntry{
			FullHash:          m.Threat.Hash,
			Descriptor:        m.Descriptor(),
			MalwareThreatType: malwareThreatType(m.ThreatEntryMetadata),
		}, m.CacheDuration.Std())

		for _, c := range candidates {
			if bytes.Equal(c.digest, m.Threat.Hash) {
				result.Matches = appendMatch(result.Matches, models.Match{
					Descriptor:        m.Descriptor(),
					Pattern:           c.pattern,
					FullHash:          m.Threat.Hash,
					MalwareThreatType: malwareThreatType(m.ThreatEntryMetadata),
				})
			}
		}
	}

	return result, nil
}

// findFullHashes resolves the pending prefixes remotely, honoring the
// endpoint's minimum wait duration from earlier responses.
func (s *lookupService) findFullHashes(ctx context.Context, pending map[string][]byte) (*models.FindFullHashesResponse, error) {
	now := s.now()
	s.mu.Lock()
	waitUntil := s.findWaitUntil
	s.mu.Unlock()
	if waitUntil.After(now) {
		return nil, fmt.Errorf("%w: full hash endpoint in wait window until %s", ErrLookup, waitUntil.Format(time.RFC3339))
	}

	prefixes := make([][]byte, 0, len(pending))
	for _, p := range pending {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return bytes.Compare(prefixes[i], prefixes[j]) < 0 })

	entries := make([]models.ThreatEntry, 0, len(prefixes))
	for _, p := range prefixes {
		entries = append(entries, models.ThreatEntry{Hash: p})
	}

	req := models.FindFullHashesRequest{
		ClientStates: s.states.ClientStates(),
		ThreatInfo:   s.threatInfo(entries),
	}
	resp, err := s.adapter.FindFullHashes(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}

	if wait := resp.MinimumWaitDuration.Std(); wait > 0 {
		s.mu.Lock()
		s.findWaitUntil = s.now().Add(wait)
		s.mu.Unlock()
	}
	return resp, nil
}

// threatInfo enumerates the type axes of every tracked list plus the
// suspicious entries.
func (s *lookupService) threatInfo(entries []models.ThreatEntry) models.ThreatInfo {
	threatTypes := make(map[string]struct{})
	platformTypes := make(map[string]struct{})
	entryTypes := make(map[string]struct{})
	for _, desc := range s.prefixes.Descriptors() {
		threatTypes[desc.ThreatType] = struct{}{}
		platformTypes[desc.PlatformType] = struct{}{}
		entryTypes[desc.ThreatEntryType] = struct{}{}
	}
	return models.ThreatInfo{
		ThreatTypes:      sortedKeys(threatTypes),
		PlatformTypes:    sortedKeys(platformTypes),
		ThreatEntryTypes: sortedKeys(entryTypes),
		ThreatEntries:    entries,
	}
}

// coveringPrefix finds the queried prefix the full hash extends.
func coveringPrefix(pending map[string][]byte, fullHash []byte) ([]byte, bool) {
	for _, p := range pending {
		if len(p) <= len(fullHash) && bytes.Equal(fullHash[:len(p)], p) {
			return p, true
		}
	}
	return nil, false
}

// malwareThreatType extracts the "malware_threat_type" metadata value, empty
// when absent.
func malwareThreatType(meta models.ThreatEntryMetadata) string {
	for _, e := range meta.Entries {
		if string(e.Key) == "malware_threat_type" {
			return string(e.Value)
		}
	}
	return ""
}

// appendMatch deduplicates on (descriptor, pattern).
func appendMatch(matches []models.Match, m models.Match) []models.Match {
	for _, existing := range matches {
		if existing.Descriptor == m.Descriptor && existing.Pattern == m.Pattern {
			return matches
		}
	}
	return append(matches, m)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
