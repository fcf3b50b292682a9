// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/urlguard/urlguard/internal/adapter"
	"github.com/urlguard/urlguard/internal/config"
	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/internal/ricecodec"
	"github.com/urlguard/urlguard/internal/store"
	"github.com/urlguard/urlguard/models"
)

// listRuntime is the mutable per-list scheduling state. Guarded by
// syncService.mu.
type listRuntime struct {
	clientState string
	waitUntil   time.Time
	lastSync    time.Time
	failures    int
}

type syncService struct {
	adapter  adapter.ServerAdapter
	prefixes *store.PrefixStore
	repo     store.Repository
	cache    *store.HashCache
	cfg      config.Sync
	log      *logger.Logger

	now    func() time.Time
	jitter func() float64

	mu    sync.RWMutex
	lists map[models.ThreatDescriptor]*listRuntime
}

// NewSyncService builds the update-cycle driver for the given threat lists.
func NewSyncService(
	serverAdapter adapter.ServerAdapter,
	prefixes *store.PrefixStore,
	repo store.Repository,
	cache *store.HashCache,
	lists []models.ThreatDescriptor,
	cfg config.Sync,
	log *logger.Logger,
) SyncService {
	s := &syncService{
		adapter:  serverAdapter,
		prefixes: prefixes,
		repo:     repo,
		cache:    cache,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		jitter:   rand.Float64,
		lists:    make(map[models.ThreatDescriptor]*listRuntime, len(lists)),
	}
	for _, desc := range lists {
		s.lists[desc] = &listRuntime{}
	}
	return s
}

// Bootstrap restores the persisted per-list states, registers newly
// configured lists, removes lists that are no longer configured and hydrates
// the prefix store. A list's state row must exist before its prefixes are
// written, so new lists are persisted here once.
func (s *syncService) Bootstrap(ctx context.Context) error {
	persisted, err := s.repo.ListStates(ctx)
	if err != nil {
		return fmt.Errorf("load list states: %w", err)
	}
	known := make(map[models.ThreatDescriptor]models.ThreatListState, len(persisted))
	for _, st := range persisted {
		known[st.Descriptor] = st
	}

	s.mu.Lock()
	descs := make([]models.ThreatDescriptor, 0, len(s.lists))
	for desc, rt := range s.lists {
		descs = append(descs, desc)
		st, ok := known[desc]
		if !ok {
			if err := s.repo.SaveListState(ctx, models.ThreatListState{Descriptor: desc}); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("register list %s: %w", desc, err)
			}
			s.log.Info().Str("list", desc.String()).Msg("tracking new threat list")
			continue
		}
		rt.clientState = st.ClientState
		rt.waitUntil = st.WaitUntil
		rt.lastSync = st.LastSync
	}
	s.mu.Unlock()

	for desc := range known {
		if _, ok := s.lists[desc]; ok {
			continue
		}
		if err := s.repo.DeleteList(ctx, desc); err != nil {
			return fmt.Errorf("drop unconfigured list %s: %w", desc, err)
		}
		s.log.Info().Str("list", desc.String()).Msg("dropped list no longer configured")
	}

	if err := s.prefixes.Load(ctx, descs); err != nil {
		return fmt.Errorf("hydrate prefix store: %w", err)
	}
	return nil
}

// SyncOnce runs one update cycle. Lists still inside their wait window are
// skipped. One failing list does not prevent the others from updating.
func (s *syncService) SyncOnce(ctx context.Context) error {
	if s.cfg.PruneStaleLists {
		s.reconcileCatalog(ctx)
	}

	now := s.now()
	requests, eligible := s.buildRequests(now)
	if len(requests) == 0 {
		s.log.Debug().Time("now", now).Msg("all lists inside their wait window")
		return nil
	}

	resp, err := s.adapter.FetchUpdates(ctx, models.FetchUpdatesRequest{ListUpdateRequests: requests})
	if err != nil {
		for _, desc := range eligible {
			s.recordFailure(ctx, desc)
		}
		return fmt.Errorf("fetch updates: %w", err)
	}

	if wait := resp.MinimumWaitDuration.Std(); wait > 0 {
		s.delayAll(ctx, s.now().Add(wait))
	}

	var errs []error
	for _, lur := range resp.ListUpdateResponses {
		desc := lur.Descriptor()
		if !s.tracked(desc) {
			s.log.Warn().Str("list", desc.String()).Msg("server responded for a list we do not track")
			continue
		}
		if err := s.applyListUpdate(ctx, desc, lur); err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", desc, err))
		}
	}

	s.cache.Cleanup(s.cfg.KeepExpiredFor)

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrUpdateFailed}, errs...)...)
	}
	return nil
}

// applyListUpdate decodes and applies one list's delta. A checksum mismatch
// clears the opaque state token so the next cycle requests a full update.
func (s *syncService) applyListUpdate(ctx context.Context, desc models.ThreatDescriptor, lur models.ListUpdateResponse) error {
	additions, err := decodeAdditions(lur.Additions)
	if err != nil {
		s.recordFailure(ctx, desc)
		return fmt.Errorf("decode additions: %w", err)
	}
	removals, err := decodeRemovals(lur.Removals)
	if err != nil {
		s.recordFailure(ctx, desc)
		return fmt.Errorf("decode removals: %w", err)
	}

	switch lur.ResponseType {
	case models.ResponseTypeFull:
		if len(removals) > 0 {
			s.recordFailure(ctx, desc)
			return fmt.Errorf("%w: full update carries removals", ricecodec.ErrDecode)
		}
		err = s.prefixes.ReplaceFull(ctx, desc, additions, lur.Checksum.SHA256)
	case models.ResponseTypePartial:
		err = s.prefixes.ApplyUpdate(ctx, desc, removals, additions, lur.Checksum.SHA256)
	default:
		s.recordFailure(ctx, desc)
		return fmt.Errorf("%w: unknown response type %q", ricecodec.ErrDecode, lur.ResponseType)
	}

	if err != nil {
		if errors.Is(err, store.ErrChecksumMismatch) {
			// Local and remote disagree; drop the state token to force a
			// full resync once the backoff elapses.
			s.mu.Lock()
			if rt, ok := s.lists[desc]; ok {
				rt.clientState = ""
			}
			s.mu.Unlock()
		}
		s.recordFailure(ctx, desc)
		return err
	}

	now := s.now()
	s.mu.Lock()
	rt, ok := s.lists[desc]
	if ok {
		rt.clientState = lur.NewClientState
		rt.lastSync = now
		rt.failures = 0
	}
	s.mu.Unlock()
	if ok {
		s.persistState(ctx, desc)
	}

	s.log.Info().
		Str("list", desc.String()).
		Str("response_type", lur.ResponseType).
		Int("added", len(additions)).
		Int("removed", len(removals)).
		Int("entries", s.prefixes.Count(desc)).
		Msg("threat list updated")
	return nil
}

func (s *syncService) ClientStates() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make([]string, 0, len(s.lists))
	for _, rt := range s.lists {
		if rt.clientState != "" {
			states = append(states, rt.clientState)
		}
	}
	sort.Strings(states)
	return states
}

func (s *syncService) Statuses() []models.ListStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ListStatus, 0, len(s.lists))
	for desc, rt := range s.lists {
		out = append(out, models.ListStatus{
			Descriptor: desc,
			Entries:    s.prefixes.Count(desc),
			HasState:   rt.clientState != "",
			LastSync:   rt.lastSync,
			WaitUntil:  rt.waitUntil,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor.String() < out[j].Descriptor.String()
	})
	return out
}

// reconcileCatalog drops tracked lists the server's catalog no longer serves.
// Catalog failures are logged and ignored; the update cycle proceeds.
func (s *syncService) reconcileCatalog(ctx context.Context) {
	catalog, err := s.adapter.ListThreatLists(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("threat list catalog unavailable")
		return
	}
	served := make(map[models.ThreatDescriptor]struct{}, len(catalog))
	for _, desc := range catalog {
		served[desc] = struct{}{}
	}

	s.mu.Lock()
	var stale []models.ThreatDescriptor
	for desc := range s.lists {
		if _, ok := served[desc]; !ok {
			stale = append(stale, desc)
			delete(s.lists, desc)
		}
	}
	s.mu.Unlock()

	for _, desc := range stale {
		if err := s.prefixes.Drop(ctx, desc); err != nil {
			s.log.Error().Err(err).Str("list", desc.String()).Msg("failed to drop stale list")
			continue
		}
		s.log.Info().Str("list", desc.String()).Msg("dropped list absent from server catalog")
	}
}

func (s *syncService) buildRequests(now time.Time) ([]models.ListUpdateRequest, []models.ThreatDescriptor) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var requests []models.ListUpdateRequest
	var eligible []models.ThreatDescriptor
	for desc, rt := range s.lists {
		if rt.waitUntil.After(now) {
			continue
		}
		requests = append(requests, models.ListUpdateRequest{
			ThreatType:      desc.ThreatType,
			PlatformType:    desc.PlatformType,
			ThreatEntryType: desc.ThreatEntryType,
			State:           rt.clientState,
			Constraints: models.UpdateConstraints{
				SupportedCompressions: []string{models.CompressionRaw, models.CompressionRice},
			},
		})
		eligible = append(eligible, desc)
	}
	sort.Slice(requests, func(i, j int) bool {
		a := models.ThreatDescriptor{ThreatType: requests[i].ThreatType, PlatformType: requests[i].PlatformType, ThreatEntryType: requests[i].ThreatEntryType}
		b := models.ThreatDescriptor{ThreatType: requests[j].ThreatType, PlatformType: requests[j].PlatformType, ThreatEntryType: requests[j].ThreatEntryType}
		return a.String() < b.String()
	})
	return requests, eligible
}

// delayAll pushes every list's wait mark to at least until.
func (s *syncService) delayAll(ctx context.Context, until time.Time) {
	s.mu.Lock()
	var touched []models.ThreatDescriptor
	for desc, rt := range s.lists {
		if rt.waitUntil.Before(until) {
			rt.waitUntil = until
			touched = append(touched, desc)
		}
	}
	s.mu.Unlock()
	for _, desc := range touched {
		s.persistState(ctx, desc)
	}
}

// recordFailure advances the list's failure count and schedules the next
// attempt with jittered exponential backoff.
func (s *syncService) recordFailure(ctx context.Context, desc models.ThreatDescriptor) {
	now := s.now()
	s.mu.Lock()
	rt, ok := s.lists[desc]
	if !ok {
		s.mu.Unlock()
		return
	}
	rt.failures++
	delay := s.backoffDelay(rt.failures)
	rt.waitUntil = now.Add(delay)
	failures := rt.failures
	s.mu.Unlock()

	s.persistState(ctx, desc)
	s.log.Warn().
		Str("list", desc.String()).
		Int("consecutive_failures", failures).
		Dur("retry_in", delay).
		Msg("threat list update failed, backing off")
}

// backoffDelay computes base * 2^(n-1) * (1 + jitter), capped.
func (s *syncService) backoffDelay(failures int) time.Duration {
	d := float64(s.cfg.BaseBackoff) * math.Pow(2, float64(failures-1)) * (1 + s.jitter())
	if capped := float64(s.cfg.MaxBackoff); d > capped {
		d = capped
	}
	return time.Duration(d)
}

func (s *syncService) persistState(ctx context.Context, desc models.ThreatDescriptor) {
	s.mu.RLock()
	rt, ok := s.lists[desc]
	if !ok {
		s.mu.RUnlock()
		return
	}
	st := models.ThreatListState{
		Descriptor:  desc,
		ClientState: rt.clientState,
		WaitUntil:   rt.waitUntil,
		LastSync:    rt.lastSync,
	}
	s.mu.RUnlock()

	if err := s.repo.SaveListState(ctx, st); err != nil {
		s.log.Error().Err(err).Str("list", desc.String()).Msg("failed to persist list state")
	}
}

func (s *syncService) tracked(desc models.ThreatDescriptor) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lists[desc]
	return ok
}

// decodeAdditions flattens every addition entry set into hash prefixes.
func decodeAdditions(sets []models.ThreatEntrySet) ([][]byte, error) {
	var out [][]byte
	for _, set := range sets {
		switch set.CompressionType {
		case models.CompressionRaw:
			if set.RawHashes == nil {
				return nil, fmt.Errorf("%w: RAW additions without rawHashes", ricecodec.ErrDecode)
			}
			prefixes, err := splitRawHashes(set.RawHashes)
			if err != nil {
				return nil, err
			}
			out = append(out, prefixes...)
		case models.CompressionRice:
			if set.RiceHashes == nil {
				return nil, fmt.Errorf("%w: RICE additions without riceHashes", ricecodec.ErrDecode)
			}
			prefixes, err := ricecodec.DecodePrefixes(set.RiceHashes)
			if err != nil {
				return nil, err
			}
			out = append(out, prefixes...)
		default:
			return nil, fmt.Errorf("%w: unknown compression type %q", ricecodec.ErrDecode, set.CompressionType)
		}
	}
	return out, nil
}

// decodeRemovals flattens every removal entry set into indices.
func decodeRemovals(sets []models.ThreatEntrySet) ([]int, error) {
	var out []int
	for _, set := range sets {
		switch set.CompressionType {
		case models.CompressionRaw:
			if set.RawIndices == nil {
				return nil, fmt.Errorf("%w: RAW removals without rawIndices", ricecodec.ErrDecode)
			}
			out = append(out, set.RawIndices.Indices...)
		case models.CompressionRice:
			if set.RiceIndices == nil {
				return nil, fmt.Errorf("%w: RICE removals without riceIndices", ricecodec.ErrDecode)
			}
			indices, err := ricecodec.DecodeIndices(set.RiceIndices)
			if err != nil {
				return nil, err
			}
			out = append(out, indices...)
		default:
			return nil, fmt.Errorf("%w: unknown compression type %q", ricecodec.ErrDecode, set.CompressionType)
		}
	}
	return out, nil
}

func splitRawHashes(raw *models.RawHashes) ([][]byte, error) {
	size := raw.PrefixSize
	if size < store.MinPrefixSize || size > store.MaxPrefixSize {
		return nil, fmt.Errorf("%w: prefix size %d", ricecodec.ErrDecode, size)
	}
	if len(raw.RawHashes)%size != 0 {
		return nil, fmt.Errorf("%w: %d raw bytes not a multiple of prefix size %d", ricecodec.ErrDecode, len(raw.RawHashes), size)
	}
	prefixes := make([][]byte, 0, len(raw.RawHashes)/size)
	for i := 0; i < len(raw.RawHashes); i += size {
		prefixes = append(prefixes, raw.RawHashes[i:i+size])
	}
	return prefixes, nil
}
