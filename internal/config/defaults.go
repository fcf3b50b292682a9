package config

import "time"

// defaultConfig returns the built-in defaults applied after all explicit
// configuration sources.
//
// The default threat lists cover the three URL-keyed lists served for all
// platforms; the default backoff bounds match the server's published
// fair-use schedule (15 minute first step, 24 hour ceiling).
func defaultConfig() *StructuredConfig {
	return &StructuredConfig{
		App: App{
			ClientID:      "urlguard",
			ClientVersion: Version,
		},
		API: API{
			BaseURL:           "https://safebrowsing.googleapis.com",
			RequestTimeout:    30 * time.Second,
			MaxRetries:        3,
			RequestsPerSecond: 2,
		},
		Storage: Storage{
			Engine: "sqlite",
			DSN:    "urlguard.db",
		},
		Server: Server{
			HTTPAddress:    ":8080",
			RequestTimeout: 10 * time.Second,
		},
		Sync: Sync{
			Interval:       30 * time.Minute,
			BaseBackoff:    15 * time.Minute,
			MaxBackoff:     24 * time.Hour,
			KeepExpiredFor: 12 * time.Hour,
			Lists: []string{
				"MALWARE/ANY_PLATFORM/URL",
				"SOCIAL_ENGINEERING/ANY_PLATFORM/URL",
				"UNWANTED_SOFTWARE/ANY_PLATFORM/URL",
			},
		},
	}
}
