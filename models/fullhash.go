package models

// Wire types of the full hash resolution endpoint
// (POST /v4/fullHashes:find).

// ThreatEntry carries a single hash or hash prefix, base64 on the wire.
type ThreatEntry struct {
	Hash []byte `json:"hash"`
}

// ThreatInfo enumerates the lists and hash prefixes a find request covers.
type ThreatInfo struct {
	ThreatTypes      []string      `json:"threatTypes"`
	PlatformTypes    []string      `json:"platformTypes"`
	ThreatEntryTypes []string      `json:"threatEntryTypes"`
	ThreatEntries    []ThreatEntry `json:"threatEntries"`
}

// FindFullHashesRequest is the body of the full hash endpoint. ClientStates
// carries the current state token for every synced list so the server can
// detect a stale local cache.
type FindFullHashesRequest struct {
	Client       ClientInfo `json:"client"`
	ClientStates []string   `json:"clientStates"`
	ThreatInfo   ThreatInfo `json:"threatInfo"`
}

// MetadataEntry is an opaque key/value pair attached to a match,
// e.g. key "malware_threat_type" with value "LANDING".
type MetadataEntry struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// ThreatEntryMetadata wraps the per-match metadata entries.
type ThreatEntryMetadata struct {
	Entries []MetadataEntry `json:"entries,omitempty"`
}

// ThreatMatch is one confirmed full hash returned by the server.
// CacheDuration is the positive-cache TTL specific to this entry.
type ThreatMatch struct {
	ThreatType          string              `json:"threatType"`
	PlatformType        string              `json:"platformType"`
	ThreatEntryType     string              `json:"threatEntryType"`
	Threat              ThreatEntry         `json:"threat"`
	ThreatEntryMetadata ThreatEntryMetadata `json:"threatEntryMetadata,omitempty"`
	CacheDuration       Duration            `json:"cacheDuration"`
}

// Descriptor returns the identity of the list the match belongs to.
func (m ThreatMatch) Descriptor() ThreatDescriptor {
	return ThreatDescriptor{
		ThreatType:      m.ThreatType,
		PlatformType:    m.PlatformType,
		ThreatEntryType: m.ThreatEntryType,
	}
}

// FindFullHashesResponse is the body of the full hash endpoint response.
// NegativeCacheDuration applies to every prefix that was queried, including
// the ones that returned no match.
type FindFullHashesResponse struct {
	Matches               []ThreatMatch `json:"matches,omitempty"`
	MinimumWaitDuration   Duration      `json:"minimumWaitDuration"`
	NegativeCacheDuration Duration      `json:"negativeCacheDuration"`
}
