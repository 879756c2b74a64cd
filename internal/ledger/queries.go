/**
 * Copyright 2025-present Reserve Financing Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ledger

const (
	// Balance queries
	queryGetBalance = `
		SELECT user_id, available_shares, protected_shares, total_deposited, last_deposit_ts, version
		FROM share_balances
		WHERE user_id = ?`

	queryInsertBalance = `
		INSERT INTO share_balances (user_id, available_shares, protected_shares, total_deposited, last_deposit_ts, version)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryUpdateBalance = `
		UPDATE share_balances
		SET available_shares = ?, protected_shares = ?, total_deposited = ?, last_deposit_ts = ?,
		    version = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND version = ?`

	// Stats queries
	queryGetTotalStats = `
		SELECT total_available, total_protected, total_deposited, unique_users
		FROM total_stats
		WHERE id = 1`

	queryInsertTotalStats = `
		INSERT INTO total_stats (id, total_available, total_protected, total_deposited, unique_users)
		VALUES (1, '0', '0', '0', 0)`

	queryUpdateTotalStats = `
		UPDATE total_stats
		SET total_available = ?, total_protected = ?, total_deposited = ?, unique_users = ?
		WHERE id = 1`

	// Instance configuration queries
	queryGetInstanceConfig = `
		SELECT min_deposit_interval_secs, slippage_tolerance_bps, paused, engine_identity, admin_identity, asset
		FROM instance_config
		WHERE id = 1`

	queryInsertInstanceConfig = `
		INSERT INTO instance_config (id, min_deposit_interval_secs, slippage_tolerance_bps, paused, engine_identity, admin_identity, asset)
		VALUES (1, ?, ?, ?, ?, ?, ?)`

	queryUpdateInstanceConfig = `
		UPDATE instance_config
		SET min_deposit_interval_secs = ?, slippage_tolerance_bps = ?
		WHERE id = 1`

	queryUpdatePaused = `
		UPDATE instance_config
		SET paused = ?
		WHERE id = 1`

	queryUpdateEngineIdentity = `
		UPDATE instance_config
		SET engine_identity = ?
		WHERE id = 1`
)
