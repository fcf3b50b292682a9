package models

// Wire types of the threat list update endpoint
// (POST /v4/threatListUpdates:fetch). Field names and base64 []byte handling
// follow the JSON representation of the update API.

// Response types of a single list update.
const (
	ResponseTypePartial = "PARTIAL_UPDATE"
	ResponseTypeFull    = "FULL_UPDATE"
)

// Compression types of an encoded threat entry set.
const (
	CompressionRaw  = "RAW"
	CompressionRice = "RICE"
)

// ClientInfo identifies this client implementation to the remote service.
type ClientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

// UpdateConstraints restricts what the server may send for one list.
type UpdateConstraints struct {
	SupportedCompressions []string `json:"supportedCompressions"`
}

// ListUpdateRequest asks for the delta between ClientState and the server's
// current version of one list. An empty State requests a full update.
type ListUpdateRequest struct {
	ThreatType      string            `json:"threatType"`
	PlatformType    string            `json:"platformType"`
	ThreatEntryType string            `json:"threatEntryType"`
	State           string            `json:"state"`
	Constraints     UpdateConstraints `json:"constraints"`
}

// FetchUpdatesRequest is the body of the update endpoint.
type FetchUpdatesRequest struct {
	Client             ClientInfo          `json:"client"`
	ListUpdateRequests []ListUpdateRequest `json:"listUpdateRequests"`
}

// RawHashes carries uncompressed hash prefixes: the concatenation of
// PrefixSize-byte prefixes, base64 on the wire.
type RawHashes struct {
	PrefixSize int    `json:"prefixSize"`
	RawHashes  []byte `json:"rawHashes"`
}

// RawIndices carries uncompressed removal indices.
type RawIndices struct {
	Indices []int `json:"indices"`
}

// RiceDeltaEncoding is a Golomb-Rice coded set of monotonically increasing
// 32-bit integers. FirstValue is transmitted explicitly (as a decimal string,
// the JSON encoding of 64-bit integers on this API); the remaining NumEntries
// values are delta-coded in EncodedData with parameter RiceParameter.
type RiceDeltaEncoding struct {
	FirstValue    string `json:"firstValue"`
	RiceParameter int    `json:"riceParameter"`
	NumEntries    int    `json:"numEntries"`
	EncodedData   []byte `json:"encodedData"`
}

// ThreatEntrySet is one addition or removal set. Exactly one of the payload
// fields is populated, matching CompressionType.
type ThreatEntrySet struct {
	CompressionType string             `json:"compressionType"`
	RawHashes       *RawHashes         `json:"rawHashes,omitempty"`
	RawIndices      *RawIndices        `json:"rawIndices,omitempty"`
	RiceHashes      *RiceDeltaEncoding `json:"riceHashes,omitempty"`
	RiceIndices     *RiceDeltaEncoding `json:"riceIndices,omitempty"`
}

// Checksum is the expected digest of the full, lexicographically sorted
// prefix set after the update is applied.
type Checksum struct {
	SHA256 []byte `json:"sha256"`
}

// ListUpdateResponse is the server's answer for one requested list.
type ListUpdateResponse struct {
	ThreatType      string           `json:"threatType"`
	PlatformType    string           `json:"platformType"`
	ThreatEntryType string           `json:"threatEntryType"`
	ResponseType    string           `json:"responseType"`
	Additions       []ThreatEntrySet `json:"additions,omitempty"`
	Removals        []ThreatEntrySet `json:"removals,omitempty"`
	NewClientState  string           `json:"newClientState"`
	Checksum        Checksum         `json:"checksum"`
}

// Descriptor returns the identity of the list this response belongs to.
func (r ListUpdateResponse) Descriptor() ThreatDescriptor {
	return ThreatDescriptor{
		ThreatType:      r.ThreatType,
		PlatformType:    r.PlatformType,
		ThreatEntryType: r.ThreatEntryType,
	}
}

// FetchUpdatesResponse is the body of the update endpoint response.
// MinimumWaitDuration is the server-mandated pause before the next update
// request, regardless of outcome.
type FetchUpdatesResponse struct {
	ListUpdateResponses []ListUpdateResponse `json:"listUpdateResponses"`
	MinimumWaitDuration Duration             `json:"minimumWaitDuration"`
}

// ThreatListsResponse is the body of the list catalog endpoint
// (GET /v4/threatLists), enumerating every list the server currently serves.
type ThreatListsResponse struct {
	ThreatLists []ThreatDescriptor `json:"threatLists"`
}
