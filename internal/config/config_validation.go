// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/urlguard/urlguard/models"
)

// validate checks that the final merged [StructuredConfig] satisfies all
// application invariants before it is used at startup, and parses the
// configured threat list names into descriptors.
//
// Returns nil if the configuration is valid, or a descriptive error otherwise.
func (cfg *StructuredConfig) validate() error {
	if cfg.API.Key == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidAPIConfigs)
	}

	if cfg.API.BaseURL == "" || cfg.API.RequestTimeout <= 0 {
		return ErrInvalidAPIConfigs
	}

	if cfg.Storage.Engine != "sqlite" && cfg.Storage.Engine != "postgres" {
		return fmt.Errorf("%w: unknown engine %q", ErrInvalidStorageConfigs, cfg.Storage.Engine)
	}

	if cfg.Storage.Engine == "postgres" && cfg.Storage.DSN == "" {
		return fmt.Errorf("%w: postgres requires a DSN", ErrInvalidStorageConfigs)
	}

	if cfg.Sync.Interval <= 0 || cfg.Sync.BaseBackoff <= 0 || cfg.Sync.MaxBackoff < cfg.Sync.BaseBackoff {
		return ErrInvalidSyncConfigs
	}

	if len(cfg.Sync.Lists) == 0 {
		return fmt.Errorf("%w: at least one threat list is required", ErrInvalidSyncConfigs)
	}

	cfg.lists = cfg.lists[:0]
	for _, name := range cfg.Sync.Lists {
		desc, err := models.ParseThreatDescriptor(name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSyncConfigs, err)
		}
		cfg.lists = append(cfg.lists, desc)
	}

	return nil
}
