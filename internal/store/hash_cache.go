// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"sync"
	"time"

	"github.com/urlguard/urlguard/models"
)

// PositiveEntry is a confirmed full hash with its owning list, cached until
// ExpiresAt.
type PositiveEntry struct {
	FullHash          []byte
	Descriptor        models.ThreatDescriptor
	MalwareThreatType string
	ExpiresAt         time.Time
}

// HashCache holds the results of remote full-hash resolutions: positive
// entries scoped by (prefix, list, full hash) and negative entries scoped by
// prefix. Entries expire lazily on access; Cleanup drops long-expired ones.
// Safe for concurrent use.
type HashCache struct {
	now func() time.Time

	mu        sync.RWMutex
	positives map[string][]PositiveEntry // keyed by prefix bytes
	negatives map[string]time.Time       // prefix bytes -> expiry
}

func NewHashCache() *HashCache {
	return &HashCache{
		now:       time.Now,
		positives: make(map[string][]PositiveEntry),
		negatives: make(map[string]time.Time),
	}
}

// Matches returns the unexpired positive entries whose full hash equals
// fullHash, for the given prefix.
func (c *HashCache) Matches(prefix, fullHash []byte) []PositiveEntry {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []PositiveEntry
	for _, e := range c.positives[string(prefix)] {
		if e.ExpiresAt.After(now) && bytes.Equal(e.FullHash, fullHash) {
			out = append(out, e)
		}
	}
	return out
}

// Resolved reports whether the cache can answer a candidate (prefix,
// fullHash) pair without a remote round-trip: either an unexpired negative
// entry covers the prefix, or an unexpired positive entry already confirms
// this exact full hash. A prefix lacking both must be queried remotely.
func (c *HashCache) Resolved(prefix, fullHash []byte) bool {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if exp, ok := c.negatives[string(prefix)]; ok && exp.After(now) {
		return true
	}
	for _, e := range c.positives[string(prefix)] {
		if e.ExpiresAt.After(now) && bytes.Equal(e.FullHash, fullHash) {
			return true
		}
	}
	return false
}

// PutPositive records a confirmed full hash for prefix with its own TTL.
// Idempotent overwrite keyed by (prefix, descriptor, full hash).
func (c *HashCache) PutPositive(prefix []byte, entry PositiveEntry, ttl time.Duration) {
	entry.ExpiresAt = c.now().Add(ttl)
	key := string(prefix)

	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.positives[key]
	for i, e := range entries {
		if e.Descriptor == entry.Descriptor && bytes.Equal(e.FullHash, entry.FullHash) {
			entries[i] = entry
			return
		}
	}
	c.positives[key] = append(entries, entry)
}

// PutNegative records that prefix had no full-hash match as of now,
// suppressing remote queries for it until the TTL elapses. Idempotent
// overwrite keyed by prefix.
func (c *HashCache) PutNegative(prefix []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negatives[string(prefix)] = c.now().Add(ttl)
}

// Cleanup removes entries that expired more than keepExpiredFor ago.
// Recently expired positives are kept so status inspection can distinguish
// "expired" from "never seen"; lookups never observe them as live.
func (c *HashCache) Cleanup(keepExpiredFor time.Duration) {
	cutoff := c.now().Add(-keepExpiredFor)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entries := range c.positives {
		kept := entries[:0]
		for _, e := range entries {
			if e.ExpiresAt.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(c.positives, key)
			continue
		}
		c.positives[key] = kept
	}
	for key, exp := range c.negatives {
		if !exp.After(cutoff) {
			delete(c.negatives, key)
		}
	}
}

// Len returns the number of live positive entries plus live negative
// records. Used by the status endpoint.
func (c *HashCache) Len() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, entries := range c.positives {
		for _, e := range entries {
			if e.ExpiresAt.After(now) {
				n++
			}
		}
	}
	for _, exp := range c.negatives {
		if exp.After(now) {
			n++
		}
	}
	return n
}
