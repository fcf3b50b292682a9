// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/models"
)

// Valid prefix widths in bytes. 4 is the default lookup granularity; the
// protocol may ship longer prefixes up to the full digest.
const (
	MinPrefixSize = 4
	MaxPrefixSize = 32
)

// PrefixHit reports that a stored prefix matched the leading bytes of a
// candidate full hash.
type PrefixHit struct {
	Descriptor models.ThreatDescriptor
	Prefix     []byte
}

// listSnapshot is an immutable view of one list's prefix set. Lookups load
// the current snapshot atomically, so a reader observes either the fully-old
// or the fully-new state, never a partially applied update.
type listSnapshot struct {
	prefixes [][]byte // lexicographically sorted, duplicate-free
	lengths  []int    // distinct prefix widths present, ascending
	checksum []byte   // SHA-256 over the concatenation of prefixes
}

type threatList struct {
	mu   sync.Mutex // serializes mutations for this list
	snap atomic.Pointer[listSnapshot]
}

// PrefixStore is the in-memory ground truth for prefix lookups. It owns all
// PrefixEntry records, mediates every read and write, and writes through to
// the Repository before a new snapshot becomes visible.
type PrefixStore struct {
	repo   Repository
	logger *logger.Logger

	mu    sync.RWMutex // guards the lists map, not list contents
	lists map[models.ThreatDescriptor]*threatList
}

func NewPrefixStore(repo Repository, logger *logger.Logger) *PrefixStore {
	return &PrefixStore{
		repo:   repo,
		logger: logger,
		lists:  make(map[models.ThreatDescriptor]*threatList),
	}
}

// Load hydrates the in-memory snapshots of the given lists from persistence.
// Lists without persisted data start empty.
func (s *PrefixStore) Load(ctx context.Context, descs []models.ThreatDescriptor) error {
	for _, desc := range descs {
		prefixes, err := s.repo.LoadPrefixes(ctx, desc)
		if err != nil {
			return fmt.Errorf("load prefixes of %s: %w", desc, err)
		}
		sortPrefixes(prefixes)
		prefixes = dedupePrefixes(prefixes)

		list := s.ensure(desc)
		list.mu.Lock()
		list.snap.Store(newSnapshot(prefixes))
		list.mu.Unlock()

		s.logger.Debug().
			Str("list", desc.String()).
			Int("entries", len(prefixes)).
			Msg("hydrated prefix list from storage")
	}
	return nil
}

// ApplyUpdate atomically replaces the list's prefix set with (current set
// minus entries at removalIndices) union additions, re-sorted and
// deduplicated. The indices refer to the pre-update sorted order and are
// deleted before additions are merged. On ErrChecksumMismatch nothing is
// changed anywhere: the pre-update state stays authoritative in memory and
// in persistence.
func (s *PrefixStore) ApplyUpdate(ctx context.Context, desc models.ThreatDescriptor, removalIndices []int, additions [][]byte, expectedChecksum []byte) error {
	list := s.ensure(desc)
	list.mu.Lock()
	defer list.mu.Unlock()

	current := list.snap.Load()
	next, err := applyDelta(current.prefixes, removalIndices, additions)
	if err != nil {
		return err
	}
	return s.commit(ctx, desc, list, next, expectedChecksum)
}

// ReplaceFull unconditionally replaces the list's entire prefix set, still
// checksum-verified. Used for full (non-incremental) resyncs.
func (s *PrefixStore) ReplaceFull(ctx context.Context, desc models.ThreatDescriptor, prefixes [][]byte, expectedChecksum []byte) error {
	if err := validatePrefixes(prefixes); err != nil {
		return err
	}
	list := s.ensure(desc)
	list.mu.Lock()
	defer list.mu.Unlock()

	next := make([][]byte, len(prefixes))
	copy(next, prefixes)
	sortPrefixes(next)
	next = dedupePrefixes(next)
	return s.commit(ctx, desc, list, next, expectedChecksum)
}

// commit verifies the checksum, persists the new set and only then swaps the
// visible snapshot. Callers hold the list mutex.
func (s *PrefixStore) commit(ctx context.Context, desc models.ThreatDescriptor, list *threatList, next [][]byte, expectedChecksum []byte) error {
	snap := newSnapshot(next)
	if !bytes.Equal(snap.checksum, expectedChecksum) {
		s.logger.Warn().
			Str("list", desc.String()).
			Hex("want", expectedChecksum).
			Hex("got", snap.checksum).
			Msg("rejecting update: checksum mismatch")
		return fmt.Errorf("list %s: %w", desc, ErrChecksumMismatch)
	}
	if err := s.repo.ReplacePrefixes(ctx, desc, next); err != nil {
		return fmt.Errorf("persist prefixes of %s: %w", desc, err)
	}
	list.snap.Store(snap)
	return nil
}

// Lookup binary-searches every list for a stored prefix matching the leading
// bytes of fullHash, at each prefix width the list actually holds. A prefix
// may legitimately appear in multiple lists; every owner is reported.
// Safe for concurrent use with ApplyUpdate and ReplaceFull.
func (s *PrefixStore) Lookup(fullHash []byte) []PrefixHit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []PrefixHit
	for desc, list := range s.lists {
		snap := list.snap.Load()
		for _, width := range snap.lengths {
			if width > len(fullHash) {
				break
			}
			prefix := fullHash[:width]
			if containsPrefix(snap.prefixes, prefix) {
				hits = append(hits, PrefixHit{Descriptor: desc, Prefix: prefix})
			}
		}
	}
	return hits
}

// Checksum returns the current SHA-256 checksum of the list's sorted prefix
// set.
func (s *PrefixStore) Checksum(desc models.ThreatDescriptor) ([]byte, error) {
	list, ok := s.get(desc)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownList, desc)
	}
	return list.snap.Load().checksum, nil
}

// Count returns the number of prefixes the list currently holds.
func (s *PrefixStore) Count(desc models.ThreatDescriptor) int {
	list, ok := s.get(desc)
	if !ok {
		return 0
	}
	return len(list.snap.Load().prefixes)
}

// Descriptors returns every list the store tracks.
func (s *PrefixStore) Descriptors() []models.ThreatDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	descs := make([]models.ThreatDescriptor, 0, len(s.lists))
	for desc := range s.lists {
		descs = append(descs, desc)
	}
	return descs
}

// Drop removes a list from memory and persistence. Used when the server's
// catalog no longer serves it.
func (s *PrefixStore) Drop(ctx context.Context, desc models.ThreatDescriptor) error {
	if err := s.repo.DeleteList(ctx, desc); err != nil {
		return fmt.Errorf("delete list %s: %w", desc, err)
	}
	s.mu.Lock()
	delete(s.lists, desc)
	s.mu.Unlock()
	return nil
}

func (s *PrefixStore) ensure(desc models.ThreatDescriptor) *threatList {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[desc]
	if !ok {
		list = &threatList{}
		list.snap.Store(newSnapshot(nil))
		s.lists[desc] = list
	}
	return list
}

func (s *PrefixStore) get(desc models.ThreatDescriptor) (*threatList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.lists[desc]
	return list, ok
}

// applyDelta removes the entries at removalIndices from the current sorted
// order, merges additions, sorts and deduplicates.
func applyDelta(current [][]byte, removalIndices []int, additions [][]byte) ([][]byte, error) {
	if err := validatePrefixes(additions); err != nil {
		return nil, err
	}
	removed := make(map[int]struct{}, len(removalIndices))
	for _, idx := range removalIndices {
		if idx < 0 || idx >= len(current) {
			return nil, fmt.Errorf("%w: index %d, %d entries", ErrRemovalIndex, idx, len(current))
		}
		removed[idx] = struct{}{}
	}

	next := make([][]byte, 0, len(current)-len(removed)+len(additions))
	for i, p := range current {
		if _, drop := removed[i]; !drop {
			next = append(next, p)
		}
	}
	next = append(next, additions...)
	sortPrefixes(next)
	return dedupePrefixes(next), nil
}

func validatePrefixes(prefixes [][]byte) error {
	for _, p := range prefixes {
		if len(p) < MinPrefixSize || len(p) > MaxPrefixSize {
			return fmt.Errorf("%w: %d bytes", ErrPrefixSize, len(p))
		}
	}
	return nil
}

func newSnapshot(sorted [][]byte) *listSnapshot {
	h := sha256.New()
	widths := make(map[int]struct{})
	for _, p := range sorted {
		h.Write(p)
		widths[len(p)] = struct{}{}
	}
	lengths := make([]int, 0, len(widths))
	for w := range widths {
		lengths = append(lengths, w)
	}
	sort.Ints(lengths)
	return &listSnapshot{
		prefixes: sorted,
		lengths:  lengths,
		checksum: h.Sum(nil),
	}
}

func sortPrefixes(prefixes [][]byte) {
	sort.Slice(prefixes, func(i, j int) bool {
		return bytes.Compare(prefixes[i], prefixes[j]) < 0
	})
}

// dedupePrefixes removes adjacent duplicates from a sorted set, in place.
func dedupePrefixes(sorted [][]byte) [][]byte {
	out := sorted[:0]
	for _, p := range sorted {
		if len(out) > 0 && bytes.Equal(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func containsPrefix(sorted [][]byte, prefix []byte) bool {
	i := sort.Search(len(sorted), func(i int) bool {
		return bytes.Compare(sorted[i], prefix) >= 0
	})
	return i < len(sorted) && bytes.Equal(sorted[i], prefix)
}
