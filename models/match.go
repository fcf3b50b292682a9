package models

// Match reports that a URL candidate expression hit a threat list. What the
// caller does with a match (block, warn, log) is out of scope; the client
// only reports list identity plus the expression that matched.
type Match struct {
	// Descriptor is the threat list the full hash was confirmed against.
	Descriptor ThreatDescriptor `json:"descriptor"`

	// Pattern is the canonical host/path expression whose digest matched.
	Pattern string `json:"pattern"`

	// FullHash is the confirmed 32-byte digest of Pattern.
	FullHash []byte `json:"full_hash"`

	// MalwareThreatType is optional server metadata ("LANDING",
	// "DISTRIBUTION"), empty when the server attached none.
	MalwareThreatType string `json:"malware_threat_type,omitempty"`
}

// LookupResult is the JSON shape served by the HTTP lookup endpoint.
type LookupResult struct {
	URL     string  `json:"url"`
	Matches []Match `json:"matches"`
}
