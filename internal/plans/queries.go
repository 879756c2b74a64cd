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

package plans

const (
	// Plan queries
	queryGetPlan = `
		SELECT id, user_id, merchant, total_amount, total_shares, protected_shares, installments_count, status, created_at
		FROM plans
		WHERE id = ?`

	queryInsertPlan = `
		INSERT INTO plans (id, user_id, merchant, total_amount, total_shares, protected_shares, installments_count, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdatePlan = `
		UPDATE plans
		SET protected_shares = ?, status = ?
		WHERE id = ?`

	queryGetUserPlans = `
		SELECT id, user_id, merchant, total_amount, total_shares, protected_shares, installments_count, status, created_at
		FROM plans
		WHERE user_id = ?
		ORDER BY id`

	queryListActivePlans = `
		SELECT id, user_id, merchant, total_amount, total_shares, protected_shares, installments_count, status, created_at
		FROM plans
		WHERE status = ?
		ORDER BY id`

	// Installment queries
	queryGetInstallments = `
		SELECT number, amount, due_date, paid_at, payment_source, status
		FROM installments
		WHERE plan_id = ?
		ORDER BY number`

	queryInsertInstallment = `
		INSERT INTO installments (plan_id, number, amount, due_date, status)
		VALUES (?, ?, ?, ?, ?)`

	queryUpdateInstallment = `
		UPDATE installments
		SET paid_at = ?, payment_source = ?, status = ?
		WHERE plan_id = ? AND number = ?`

	// Counter queries: the plan id counter only ever increases, so ids are
	// never reused even across deleted rows.
	queryNextCounter = `
		INSERT INTO counters (name, value)
		VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`

	queryGetCounter = `
		SELECT value
		FROM counters
		WHERE name = ?`
)
