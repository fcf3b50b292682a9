// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urlguard/urlguard/internal/config"
	"github.com/urlguard/urlguard/internal/logger"
	"github.com/urlguard/urlguard/internal/ricecodec"
	"github.com/urlguard/urlguard/internal/store"
	"github.com/urlguard/urlguard/models"
)

var testList = models.ThreatDescriptor{
	ThreatType:      "MALWARE",
	PlatformType:    "ANY_PLATFORM",
	ThreatEntryType: "URL",
}

// ── test doubles ─────────────────────────────────────────────────────────────

// fakeRepo is an in-memory store.Repository.
type fakeRepo struct {
	mu       sync.Mutex
	states   map[models.ThreatDescriptor]models.ThreatListState
	prefixes map[models.ThreatDescriptor][][]byte
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		states:   make(map[models.ThreatDescriptor]models.ThreatListState),
		prefixes: make(map[models.ThreatDescriptor][][]byte),
	}
}

func (r *fakeRepo) ListStates(context.Context) ([]models.ThreatListState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ThreatListState, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, st)
	}
	return out, nil
}

func (r *fakeRepo) SaveListState(_ context.Context, state models.ThreatListState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.Descriptor] = state
	return nil
}

func (r *fakeRepo) DeleteList(_ context.Context, desc models.ThreatDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, desc)
	delete(r.prefixes, desc)
	return nil
}

func (r *fakeRepo) LoadPrefixes(_ context.Context, desc models.ThreatDescriptor) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.prefixes[desc]))
	copy(out, r.prefixes[desc])
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out, nil
}

func (r *fakeRepo) ReplacePrefixes(_ context.Context, desc models.ThreatDescriptor, prefixes [][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := make([][]byte, len(prefixes))
	copy(stored, prefixes)
	r.prefixes[desc] = stored
	return nil
}

// spyAdapter is a scriptable adapter.ServerAdapter recording every request.
type spyAdapter struct {
	mu sync.Mutex

	catalog    []models.ThreatDescriptor
	catalogErr error

	fetchQueue []*models.FetchUpdatesResponse
	fetchErr   error
	fetchCalls []models.FetchUpdatesRequest

	findResp  *models.FindFullHashesResponse
	findErr   error
	findCalls []models.FindFullHashesRequest
}

func (a *spyAdapter) ListThreatLists(context.Context) ([]models.ThreatDescriptor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.catalog, a.catalogErr
}

func (a *spyAdapter) FetchUpdates(_ context.Context, req models.FetchUpdatesRequest) (*models.FetchUpdatesResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchCalls = append(a.fetchCalls, req)
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	if len(a.fetchQueue) == 0 {
		return &models.FetchUpdatesResponse{}, nil
	}
	resp := a.fetchQueue[0]
	a.fetchQueue = a.fetchQueue[1:]
	return resp, nil
}

func (a *spyAdapter) FindFullHashes(_ context.Context, req models.FindFullHashesRequest) (*models.FindFullHashesResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.findCalls = append(a.findCalls, req)
	if a.findErr != nil {
		return nil, a.findErr
	}
	if a.findResp == nil {
		return &models.FindFullHashesResponse{}, nil
	}
	return a.findResp, nil
}

func (a *spyAdapter) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fetchCalls)
}

func (a *spyAdapter) findCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.findCalls)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func testSyncConfig() config.Sync {
	return config.Sync{
		Interval:       time.Minute,
		BaseBackoff:    15 * time.Minute,
		MaxBackoff:     24 * time.Hour,
		KeepExpiredFor: 12 * time.Hour,
	}
}

func newTestSync(t *testing.T, lists ...models.ThreatDescriptor) (*syncService, *spyAdapter, *fakeRepo, *store.PrefixStore, *store.HashCache) {
	t.Helper()
	repo := newFakeRepo()
	prefixes := store.NewPrefixStore(repo, logger.Nop())
	cache := store.NewHashCache()
	a := &spyAdapter{}

	svc := NewSyncService(a, prefixes, repo, cache, lists, testSyncConfig(), logger.Nop()).(*syncService)
	svc.jitter = func() float64 { return 0 }
	return svc, a, repo, prefixes, cache
}

// checksumOf digests the lexicographically sorted concatenation of prefixes.
func checksumOf(prefixes [][]byte) []byte {
	sorted := make([][]byte, len(prefixes))
	copy(sorted, prefixes)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	h := sha256.New()
	for _, p := range sorted {
		h.Write(p)
	}
	return h.Sum(nil)
}

func rawAdditions(prefixes [][]byte) []models.ThreatEntrySet {
	var raw []byte
	for _, p := range prefixes {
		raw = append(raw, p...)
	}
	return []models.ThreatEntrySet{{
		CompressionType: models.CompressionRaw,
		RawHashes:       &models.RawHashes{PrefixSize: 4, RawHashes: raw},
	}}
}

func fullUpdateResponse(state string, prefixes [][]byte) *models.FetchUpdatesResponse {
	return &models.FetchUpdatesResponse{
		ListUpdateResponses: []models.ListUpdateResponse{{
			ThreatType:      testList.ThreatType,
			PlatformType:    testList.PlatformType,
			ThreatEntryType: testList.ThreatEntryType,
			ResponseType:    models.ResponseTypeFull,
			Additions:       rawAdditions(prefixes),
			NewClientState:  state,
			Checksum:        models.Checksum{SHA256: checksumOf(prefixes)},
		}},
	}
}

func tenPrefixes() [][]byte {
	out := make([][]byte, 10)
	for i := range out {
		out[i] = []byte{byte(i), 0, 0, 0}
	}
	return out
}

// ── Bootstrap ────────────────────────────────────────────────────────────────

func TestBootstrap_RegistersNewList(t *testing.T) {
	svc, _, repo, _, _ := newTestSync(t, testList)

	require.NoError(t, svc.Bootstrap(context.Background()))

	states, err := repo.ListStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, testList, states[0].Descriptor)
	assert.Empty(t, states[0].ClientState)
}

func TestBootstrap_RestoresPersistedStateAndPrefixes(t *testing.T) {
	svc, _, repo, prefixes, _ := newTestSync(t, testList)
	ctx := context.Background()

	require.NoError(t, repo.SaveListState(ctx, models.ThreatListState{
		Descriptor:  testList,
		ClientState: "persisted-state",
		LastSync:    time.Now().Add(-time.Hour),
	}))
	require.NoError(t, repo.ReplacePrefixes(ctx, testList, tenPrefixes()))

	require.NoError(t, svc.Bootstrap(ctx))

	assert.Equal(t, []string{"persisted-state"}, svc.ClientStates())
	assert.Equal(t, 10, prefixes.Count(testList))
}

func TestBootstrap_DropsUnconfiguredList(t *testing.T) {
	svc, _, repo, _, _ := newTestSync(t, testList)
	ctx := context.Background()

	stale := models.ThreatDescriptor{ThreatType: "MALWARE", PlatformType: "OSX", ThreatEntryType: "URL"}
	require.NoError(t, repo.SaveListState(ctx, models.ThreatListState{Descriptor: stale}))
	require.NoError(t, repo.ReplacePrefixes(ctx, stale, tenPrefixes()))

	require.NoError(t, svc.Bootstrap(ctx))

	states, err := repo.ListStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, testList, states[0].Descriptor)
}

// ── SyncOnce ─────────────────────────────────────────────────────────────────

func TestSyncOnce_FullUpdateRaw(t *testing.T) {
	svc, a, repo, prefixes, _ := newTestSync(t, testList)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	added := tenPrefixes()
	a.fetchQueue = append(a.fetchQueue, fullUpdateResponse("state-1", added))

	require.NoError(t, svc.SyncOnce(ctx))

	assert.Equal(t, 10, prefixes.Count(testList))
	assert.Equal(t, []string{"state-1"}, svc.ClientStates())

	// The request carried an empty state and both supported compressions.
	require.Equal(t, 1, a.fetchCount())
	req := a.fetchCalls[0].ListUpdateRequests[0]
	assert.Empty(t, req.State)
	assert.ElementsMatch(t, []string{models.CompressionRaw, models.CompressionRice}, req.Constraints.SupportedCompressions)

	// State and prefixes survived to persistence.
	persisted, err := repo.LoadPrefixes(ctx, testList)
	require.NoError(t, err)
	assert.Len(t, persisted, 10)
	states, err := repo.ListStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, "state-1", states[0].ClientState)
}

func TestSyncOnce_PartialUpdateRemovalsThenAdditions(t *testing.T) {
	svc, a, _, prefixes, _ := newTestSync(t, testList)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	initial := tenPrefixes()
	a.fetchQueue = append(a.fetchQueue, fullUpdateResponse("state-1", initial))
	require.NoError(t, svc.SyncOnce(ctx))

	// Remove the entries at sorted positions 2 and 5, then add three more.
	added := [][]byte{{0xF0, 0, 0, 0}, {0xF1, 0, 0, 0}, {0xF2, 0, 0, 0}}
	var want [][]byte
	for i, p := range initial {
		if i == 2 || i == 5 {
			continue
		}
		want = append(want, p)
	}
	want = append(want, added...)

	a.fetchQueue = append(a.fetchQueue, &models.FetchUpdatesResponse{
		ListUpdateResponses: []models.ListUpdateResponse{{
			ThreatType:      testList.ThreatType,
			PlatformType:    testList.PlatformType,
			ThreatEntryType: testList.ThreatEntryType,
			ResponseType:    models.ResponseTypePartial,
			Additions:       rawAdditions(added),
			Removals: []models.ThreatEntrySet{{
				CompressionType: models.CompressionRaw,
				RawIndices:      &models.RawIndices{Indices: []int{2, 5}},
			}},
			NewClientState: "state-2",
			Checksum:       models.Checksum{SHA256: checksumOf(want)},
		}},
	})

	require.NoError(t, svc.SyncOnce(ctx))

	assert.Equal(t, 11, prefixes.Count(testList))
	assert.Equal(t, []string{"state-2"}, svc.ClientStates())

	// Removed entries are gone, added ones are found.
	full := append([]byte{2, 0, 0, 0}, make([]byte, 28)...)
	assert.Empty(t, prefixes.Lookup(full))
	full = append([]byte{0xF1, 0, 0, 0}, make([]byte, 28)...)
	assert.Len(t, prefixes.Lookup(full), 1)

	// The second request resumed from the first state token.
	assert.Equal(t, "state-1", a.fetchCalls[1].ListUpdateRequests[0].State)
}

func TestSyncOnce_RiceAdditions(t *testing.T) {
	svc, a, _, prefixes, _ := newTestSync(t, testList)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	added := tenPrefixes()
	first, count, data, err := ricecodec.EncodePrefixes(added, 2)
	require.NoError(t, err)

	a.fetchQueue = append(a.fetchQueue, &models.FetchUpdatesResponse{
		ListUpdateResponses: []models.ListUpdateResponse{{
			ThreatType:      testList.ThreatType,
			PlatformType:    testList.PlatformType,
			ThreatEntryType: testList.ThreatEntryType,
			ResponseType:    models.ResponseTypeFull,
			Additions: []models.ThreatEntrySet{{
				CompressionType: models.CompressionRice,
				RiceHashes: &models.RiceDeltaEncoding{
					FirstValue:    strconv.FormatUint(uint64(first), 10),
					RiceParameter: 2,
					NumEntries:    count,
					EncodedData:   data,
				},
			}},
			NewClientState: "state-1",
			Checksum:       models.Checksum{SHA256: checksumOf(added)},
		}},
	})

	require.NoError(t, svc.SyncOnce(ctx))
	assert.Equal(t, 10, prefixes.Count(testList))
}

func TestSyncOnce_ChecksumMismatchClearsStateAndKeepsPrior(t *testing.T) {
	svc, a, repo, prefixes, _ := newTestSync(t, testList)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	initial := tenPrefixes()
	a.fetchQueue = append(a.fetchQueue, fullUpdateResponse("state-1", initial))
	require.NoError(t, svc.SyncOnce(ctx))

	bad := fullUpdateResponse("state-2", [][]byte{{9, 9, 9, 9}})
	bad.ListUpdateResponses[0].Checksum = models.Checksum{SHA256: bytes.Repeat([]byte{0xAB}, 32)}
	a.fetchQueue = append(a.fetchQueue, bad)

	// Make the list eligible again immediately.
	svc.mu.Lock()
	svc.lists[testList].waitUntil = time.Time{}
	svc.mu.Unlock()

	err := svc.SyncOnce(ctx)
	require.ErrorIs(t, err, ErrUpdateFailed)
	require.ErrorIs(t, err, store.ErrChecksumMismatch)

	// Prior data stays authoritative, the state token is cleared and the
	// list backs off.
	assert.Equal(t, 10, prefixes.Count(testList))
	assert.Empty(t, svc.ClientStates())
	persisted, err := repo.LoadPrefixes(ctx, testList)
	require.NoError(t, err)
	assert.Len(t, persisted, 10)

	statuses := svc.Statuses()
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].WaitUntil.After(time.Now()))
}

func TestSyncOnce_BadRemovalIndexRejectsUpdate(t *testing.T) {
	svc, a, _, prefixes, _ := newTestSync(t, testList)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	initial := tenPrefixes()
	a.fetchQueue = append(a.fetchQueue, fullUpdateResponse("state-1", initial))
	require.NoError(t, svc.SyncOnce(ctx))

	a.fetchQueue = append(a.fetchQueue, &models.FetchUpdatesResponse{
		ListUpdateResponses: []models.ListUpdateResponse{{
			ThreatType:      testList.ThreatType,
			PlatformType:    testList.PlatformType,
			ThreatEntryType: testList.ThreatEntryType,
			ResponseType:    models.ResponseTypePartial,
			Removals: []models.ThreatEntrySet{{
				CompressionType: models.CompressionRaw,
				RawIndices:      &models.RawIndices{Indices: []int{10}},
			}},
			NewClientState: "state-2",
			Checksum:       models.Checksum{SHA256: checksumOf(initial)},
		}},
	})
	svc.mu.Lock()
	svc.lists[testList].waitUntil = time.Time{}
	svc.mu.Unlock()

	err := svc.SyncOnce(ctx)
	require.ErrorIs(t, err, store.ErrRemovalIndex)
	assert.Equal(t, 10, prefixes.Count(testList))
	assert.Equal(t, []string{"state-1"}, svc.ClientStates())
}

func TestSyncOnce_TransportErrorBacksOffExponentially(t *testing.T) {
	svc, a, _, _, _ := newTestSync(t, testList)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	a.fetchErr = assert.AnError
	base := time.Now()

	require.Error(t, svc.SyncOnce(ctx))
	first := svc.Statuses()[0].WaitUntil
	assert.WithinDuration(t, base.Add(15*time.Minute), first, 5*time.Second)

	svc.mu.Lock()
	svc.lists[testList].waitUntil = time.Time{}
	svc.mu.Unlock()

	require.Error(t, svc.SyncOnce(ctx))
	second := svc.Statuses()[0].WaitUntil
	assert.WithinDuration(t, base.Add(30*time.Minute), second, 5*time.Second)
}

func TestSyncOnce_MinimumWaitDelaysNextCycle(t *testing.T) {
	svc, a, _, _, _ := newTestSync(t, testList)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	resp := fullUpdateResponse("state-1", tenPrefixes())
	resp.MinimumWaitDuration = models.Duration(10 * time.Minute)
	a.fetchQueue = append(a.fetchQueue, resp)

	require.NoError(t, svc.SyncOnce(ctx))
	require.Equal(t, 1, a.fetchCount())

	// Still inside the server-mandated window: no request goes out.
	require.NoError(t, svc.SyncOnce(ctx))
	assert.Equal(t, 1, a.fetchCount())
}

func TestSyncOnce_PerListIsolation(t *testing.T) {
	other := models.ThreatDescriptor{ThreatType: "SOCIAL_ENGINEERING", PlatformType: "ANY_PLATFORM", ThreatEntryType: "URL"}
	svc, a, _, prefixes, _ := newTestSync(t, testList, other)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	good := tenPrefixes()
	resp := fullUpdateResponse("state-1", good)
	resp.ListUpdateResponses = append(resp.ListUpdateResponses, models.ListUpdateResponse{
		ThreatType:      other.ThreatType,
		PlatformType:    other.PlatformType,
		ThreatEntryType: other.ThreatEntryType,
		ResponseType:    models.ResponseTypeFull,
		Additions:       rawAdditions([][]byte{{1, 2, 3, 4}}),
		NewClientState:  "state-x",
		Checksum:        models.Checksum{SHA256: bytes.Repeat([]byte{0xAB}, 32)},
	})
	a.fetchQueue = append(a.fetchQueue, resp)

	err := svc.SyncOnce(ctx)
	require.ErrorIs(t, err, ErrUpdateFailed)

	// The healthy list is updated despite its sibling's failure.
	assert.Equal(t, 10, prefixes.Count(testList))
	assert.Equal(t, 0, prefixes.Count(other))
	assert.Equal(t, []string{"state-1"}, svc.ClientStates())
}

func TestSyncOnce_PrunesListsAbsentFromCatalog(t *testing.T) {
	svc, a, repo, _, _ := newTestSync(t, testList)
	svc.cfg.PruneStaleLists = true
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	a.catalog = []models.ThreatDescriptor{
		{ThreatType: "SOCIAL_ENGINEERING", PlatformType: "ANY_PLATFORM", ThreatEntryType: "URL"},
	}

	require.NoError(t, svc.SyncOnce(ctx))

	assert.Empty(t, svc.Statuses())
	states, err := repo.ListStates(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
	// Nothing left to update.
	assert.Equal(t, 0, a.fetchCount())
}

// ── SyncJob ──────────────────────────────────────────────────────────────────

func TestSyncJob_RunsImmediatelyAndStops(t *testing.T) {
	svc, a, _, _, _ := newTestSync(t, testList)
	require.NoError(t, svc.Bootstrap(context.Background()))

	job := NewSyncJob(svc, logger.Nop())
	job.Start(context.Background(), time.Hour)

	require.Eventually(t, func() bool { return a.fetchCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	job.Stop()

	// No further cycles after Stop.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, a.fetchCount())
}
