package models

import (
	"fmt"
	"strings"
	"time"
)

// ThreatDescriptor identifies a single threat list served by the remote
// service. The three fields form the list identity tuple; two descriptors are
// the same list iff all three fields are equal.
type ThreatDescriptor struct {
	// ThreatType is the nature of the threat, e.g. "MALWARE" or
	// "SOCIAL_ENGINEERING".
	ThreatType string `json:"threatType"`

	// PlatformType is the platform the list targets, e.g. "ANY_PLATFORM",
	// "LINUX", "WINDOWS".
	PlatformType string `json:"platformType"`

	// ThreatEntryType is the kind of entries the list holds, e.g. "URL".
	ThreatEntryType string `json:"threatEntryType"`
}

// ParseThreatDescriptor parses a descriptor from its compact
// "THREAT_TYPE/PLATFORM_TYPE/THREAT_ENTRY_TYPE" form used in configuration.
func ParseThreatDescriptor(s string) (ThreatDescriptor, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return ThreatDescriptor{}, fmt.Errorf("threat list %q: want THREAT_TYPE/PLATFORM_TYPE/THREAT_ENTRY_TYPE", s)
	}
	for _, p := range parts {
		if p == "" {
			return ThreatDescriptor{}, fmt.Errorf("threat list %q: empty component", s)
		}
	}
	return ThreatDescriptor{
		ThreatType:      parts[0],
		PlatformType:    parts[1],
		ThreatEntryType: parts[2],
	}, nil
}

// String returns the compact "MALWARE/ANY_PLATFORM/URL" form.
// It implements the [fmt.Stringer] interface.
func (d ThreatDescriptor) String() string {
	return d.ThreatType + "/" + d.PlatformType + "/" + d.ThreatEntryType
}

// ThreatListState is the locally persisted, mutable state of one threat list.
// The descriptor never changes; everything else is updated after each sync
// cycle.
type ThreatListState struct {
	Descriptor ThreatDescriptor

	// ClientState is the opaque server-issued token identifying the
	// client's last synced position. Empty means "never synced" and makes
	// the server reply with a full update.
	ClientState string

	// WaitUntil is the earliest moment the next update request for this
	// list is allowed, either server-mandated or set by local backoff.
	WaitUntil time.Time

	// LastSync is the time of the last successfully applied update.
	LastSync time.Time
}

// ListStatus is a read-only snapshot of one list exposed by the status
// endpoint and the CLI.
type ListStatus struct {
	Descriptor ThreatDescriptor `json:"descriptor"`
	Entries    int              `json:"entries"`
	HasState   bool             `json:"has_state"`
	LastSync   time.Time        `json:"last_sync,omitzero"`
	WaitUntil  time.Time        `json:"wait_until,omitzero"`
}
