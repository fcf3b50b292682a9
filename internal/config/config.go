// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"github.com/urlguard/urlguard/models"
)

// Version is the client version reported to the remote service.
const Version = "1.2.0"

// StructuredConfig is the top-level configuration container for urlguard.
// It aggregates all sub-configurations and is populated by merging values
// from environment variables, command-line flags, an optional JSON file and
// built-in defaults, in that order of precedence.
//
// Struct tags: envPrefix prefixes all nested env tag lookups (caarlos0/env),
// env names the variable of a scalar field directly.
//
// All environment variables additionally carry the global URLGUARD_ prefix.
type StructuredConfig struct {
	// App identifies this client implementation to the remote service.
	App App `envPrefix:"APP_"`

	// API holds the remote update/full-hash service settings.
	API API `envPrefix:"API_"`

	// Storage holds the persistence backend settings.
	Storage Storage `envPrefix:"STORAGE_"`

	// Server holds the optional HTTP lookup endpoint settings.
	Server Server `envPrefix:"SERVER_"`

	// Sync holds the update cycle settings and the set of threat lists to
	// keep synchronized.
	Sync Sync `envPrefix:"SYNC_"`

	// Mode selects one-shot behaviors. Populated from flags only.
	Mode Mode `env:"-"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// Populated via URLGUARD_CONFIG or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`

	lists []models.ThreatDescriptor
}

// App identifies the client to the remote service.
type App struct {
	// ClientID is the client identifier sent with every request.
	// Env: URLGUARD_APP_CLIENT_ID
	ClientID string `env:"CLIENT_ID"`

	// ClientVersion is the version string sent with every request.
	// Env: URLGUARD_APP_CLIENT_VERSION
	ClientVersion string `env:"CLIENT_VERSION"`
}

// API holds settings of the remote threat list service.
type API struct {
	// Key authenticates this client with the remote service.
	// Env: URLGUARD_API_KEY
	Key string `env:"KEY"`

	// BaseURL is the root of the remote service,
	// e.g. "https://safebrowsing.googleapis.com".
	// Env: URLGUARD_API_BASE_URL
	BaseURL string `env:"BASE_URL"`

	// RequestTimeout bounds a single remote call; a timed-out call is a
	// transport failure subject to backoff.
	// Env: URLGUARD_API_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// MaxRetries bounds the transparent retries of requests that failed
	// with a 5xx status or a network error.
	// Env: URLGUARD_API_MAX_RETRIES
	MaxRetries int `env:"MAX_RETRIES"`

	// RequestsPerSecond throttles outbound calls as a client-side fair-use
	// guard, in addition to server-mandated wait intervals.
	// Env: URLGUARD_API_REQUESTS_PER_SECOND
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	// Engine is "sqlite" (default) or "postgres".
	// Env: URLGUARD_STORAGE_ENGINE
	Engine string `env:"ENGINE"`

	// DSN is the SQLite file path or the PostgreSQL connection string.
	// Env: URLGUARD_STORAGE_DSN
	DSN string `env:"DSN"`
}

// Server holds the optional HTTP lookup endpoint settings. An empty address
// disables the endpoint.
type Server struct {
	// HTTPAddress is the listen address in "host:port" format.
	// Env: URLGUARD_SERVER_ADDRESS
	HTTPAddress string `env:"ADDRESS"`

	// RequestTimeout bounds a single inbound lookup request.
	// Env: URLGUARD_SERVER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// Sync holds update cycle settings.
type Sync struct {
	// Interval between periodic update cycles.
	// Env: URLGUARD_SYNC_INTERVAL
	Interval time.Duration `env:"INTERVAL"`

	// BaseBackoff is the first backoff step after a failed cycle for a
	// list; each further consecutive failure doubles it.
	// Env: URLGUARD_SYNC_BASE_BACKOFF
	BaseBackoff time.Duration `env:"BASE_BACKOFF"`

	// MaxBackoff caps the exponential backoff.
	// Env: URLGUARD_SYNC_MAX_BACKOFF
	MaxBackoff time.Duration `env:"MAX_BACKOFF"`

	// KeepExpiredFor controls how long expired full-hash cache entries are
	// retained before cleanup.
	// Env: URLGUARD_SYNC_KEEP_EXPIRED_FOR
	KeepExpiredFor time.Duration `env:"KEEP_EXPIRED_FOR"`

	// Lists enumerates the threat lists to synchronize, each in
	// "THREAT_TYPE/PLATFORM_TYPE/THREAT_ENTRY_TYPE" form.
	// Env: URLGUARD_SYNC_LISTS (comma-separated)
	Lists []string `env:"LISTS" envSeparator:","`

	// PruneStaleLists removes locally cached lists that the server's
	// catalog no longer serves.
	// Env: URLGUARD_SYNC_PRUNE_STALE_LISTS
	PruneStaleLists bool `env:"PRUNE_STALE_LISTS"`
}

// Mode selects one-shot behaviors instead of the daemon loop.
type Mode struct {
	// CheckURL, when non-empty, looks up one URL, prints the result and
	// exits.
	CheckURL string

	// Onetime runs a single sync cycle and exits.
	Onetime bool
}

// Load builds the effective configuration from environment variables,
// command-line flags, an optional JSON file and defaults.
func Load() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		withJSON().
		withDefaults().
		build()
}

// ThreatLists returns the parsed threat list descriptors. Only valid after a
// successful Load.
func (c *StructuredConfig) ThreatLists() []models.ThreatDescriptor {
	return c.lists
}
