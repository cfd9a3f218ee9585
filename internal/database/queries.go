/**
 * Copyright 2025-present Coinbase Global, Inc.
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

package database

const accountColumns = `
		id, email, name, premium_active, premium_plan, premium_start, premium_end,
		premium_cancelled, gateway_customer_ref, gateway_subscription_ref,
		coin_balance, letter_credit_balance, referred_by_account_id, referral_program,
		registration_ip, last_monthly_coins, version, created_at, updated_at`

const earningColumns = `
		id, referrer_account_id, referred_account_id, earning_type, amount, percentage,
		purchase_amount, status, referrer_ip, referred_ip, user_agent,
		external_transaction_id, created_at, updated_at`

const transactionLogColumns = `
		id, account_id, transaction_type, item_type, package_type, amount, price,
		gateway_session_ref, status, failure_reason, metadata, created_at, updated_at, completed_at`

const (
	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (id, email, name, referred_by_account_id, referral_program,
			registration_ip, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetAccountById = `
		SELECT` + accountColumns + `
		FROM accounts
		WHERE id = ?`

	queryListAccounts = `
		SELECT` + accountColumns + `
		FROM accounts
		ORDER BY created_at`

	queryFindAccountByGatewayRef = `
		SELECT` + accountColumns + `
		FROM accounts
		WHERE (? != '' AND gateway_subscription_ref = ?)
		   OR (? != '' AND gateway_customer_ref = ?)
		ORDER BY (gateway_subscription_ref = ?) DESC, updated_at DESC
		LIMIT 1`

	queryFindAccountByEmail = `
		SELECT` + accountColumns + `
		FROM accounts
		WHERE LOWER(email) = LOWER(?)`

	// Writes every field UpdateAccount may change; balances are only moved by increments.
	queryUpdateAccount = `
		UPDATE accounts
		SET premium_active = ?, premium_plan = ?, premium_start = ?, premium_end = ?,
			premium_cancelled = ?, gateway_customer_ref = ?, gateway_subscription_ref = ?,
			referral_program = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryAccountExists = `
		SELECT EXISTS(SELECT 1 FROM accounts WHERE id = ?)`

	queryCountOtherAccountsWithIP = `
		SELECT COUNT(*)
		FROM accounts
		WHERE registration_ip = ? AND id != ?`

	// Balance queries
	queryIncrementCoins = `
		UPDATE accounts
		SET coin_balance = coin_balance + ?, version = version + 1, updated_at = ?
		WHERE id = ? AND coin_balance + ? >= 0
		RETURNING coin_balance`

	queryIncrementLetterCredits = `
		UPDATE accounts
		SET letter_credit_balance = letter_credit_balance + ?, version = version + 1, updated_at = ?
		WHERE id = ? AND letter_credit_balance + ? >= 0
		RETURNING letter_credit_balance`

	queryInsertBalanceEntry = `
		INSERT INTO balance_entries (id, account_id, kind, delta, balance_after, reason, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBalanceEntries = `
		SELECT id, account_id, kind, delta, balance_after, reason, reference, created_at
		FROM balance_entries
		WHERE account_id = ? AND kind = ?
		ORDER BY created_at, rowid`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(delta), 0)
		FROM balance_entries
		WHERE account_id = ? AND kind = ?`

	// Sweep queries
	queryExpireCancelledPremium = `
		UPDATE accounts
		SET premium_active = 0, version = version + 1, updated_at = ?
		WHERE premium_active = 1 AND premium_cancelled = 1
		  AND premium_end IS NOT NULL AND premium_end <= ?`

	queryExpireLegacyCancelledPremium = `
		UPDATE accounts
		SET premium_active = 0, version = version + 1, updated_at = ?
		WHERE premium_active = 1 AND premium_cancelled = 1
		  AND premium_end IS NULL AND premium_plan = ?
		  AND premium_start IS NOT NULL AND premium_start <= ?`

	queryMonthlyCoinCandidates = `
		SELECT id
		FROM accounts
		WHERE premium_active = 1
		  AND (premium_end IS NULL OR premium_end > ?)
		  AND (last_monthly_coins IS NULL OR last_monthly_coins < ?)`

	queryGrantMonthlyCoins = `
		UPDATE accounts
		SET coin_balance = coin_balance + ?, last_monthly_coins = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND (last_monthly_coins IS NULL OR last_monthly_coins < ?)
		RETURNING coin_balance`

	// Referral earning queries
	queryInsertEarning = `
		INSERT INTO referral_earnings (` + earningColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	querySignupBonusExists = `
		SELECT EXISTS(
			SELECT 1 FROM referral_earnings
			WHERE referrer_account_id = ? AND referred_account_id = ? AND earning_type = 'signup_bonus')`

	queryEarningExistsForTransaction = `
		SELECT EXISTS(
			SELECT 1 FROM referral_earnings
			WHERE referrer_account_id = ? AND referred_account_id = ? AND external_transaction_id = ?)`

	queryGetEarningById = `
		SELECT` + earningColumns + `
		FROM referral_earnings
		WHERE id = ?`

	queryListEarnings = `
		SELECT` + earningColumns + `
		FROM referral_earnings`

	queryUpdateEarningStatus = `
		UPDATE referral_earnings
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	// Transaction log queries
	queryInsertTransactionLog = `
		INSERT INTO transaction_logs (` + transactionLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionLogBySession = `
		SELECT` + transactionLogColumns + `
		FROM transaction_logs
		WHERE gateway_session_ref = ?`

	queryFinalizeTransactionLog = `
		UPDATE transaction_logs
		SET status = ?, failure_reason = ?, metadata = ?, amount = ?, price = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND status IN ('initiated', 'pending', 'processing')`
)
