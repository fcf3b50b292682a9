// SPDX-License-Identifier: Apache-2.0

package store

const (
	selectListStates = `
		SELECT
			threat_type,
			platform_type,
			threat_entry_type,
			client_state,
			wait_until,
			last_sync
		FROM threat_list;`

	upsertListState = `
		INSERT INTO threat_list (
			threat_type,
			platform_type,
			threat_entry_type,
			client_state,
			wait_until,
			last_sync
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (threat_type, platform_type, threat_entry_type)
		DO UPDATE SET
			client_state = excluded.client_state,
			wait_until   = excluded.wait_until,
			last_sync    = excluded.last_sync;`

	deleteListState = `
		DELETE FROM threat_list
		WHERE threat_type = $1 AND platform_type = $2 AND threat_entry_type = $3;`

	selectListPrefixes = `
		SELECT value FROM hash_prefix
		WHERE threat_type = $1 AND platform_type = $2 AND threat_entry_type = $3
		ORDER BY value;`

	deleteListPrefixes = `
		DELETE FROM hash_prefix
		WHERE threat_type = $1 AND platform_type = $2 AND threat_entry_type = $3;`

	insertListPrefix = `
		INSERT INTO hash_prefix (value, threat_type, platform_type, threat_entry_type)
		VALUES ($1, $2, $3, $4);`
)
