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

const schema = `
	-- Accounts (current state - hot data)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		premium_active BOOLEAN NOT NULL DEFAULT 0,
		premium_plan TEXT NOT NULL DEFAULT '',
		premium_start TIMESTAMP,
		premium_end TIMESTAMP,
		premium_cancelled BOOLEAN NOT NULL DEFAULT 0,
		gateway_customer_ref TEXT NOT NULL DEFAULT '',
		gateway_subscription_ref TEXT NOT NULL DEFAULT '',
		coin_balance INTEGER NOT NULL DEFAULT 0 CHECK (coin_balance >= 0),
		letter_credit_balance INTEGER NOT NULL DEFAULT 0 CHECK (letter_credit_balance >= 0),
		referred_by_account_id TEXT NOT NULL DEFAULT '',
		referral_program TEXT NOT NULL DEFAULT 'standard',
		registration_ip TEXT NOT NULL DEFAULT '',
		last_monthly_coins TIMESTAMP,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_customer_ref ON accounts(gateway_customer_ref);
	CREATE INDEX IF NOT EXISTS idx_accounts_subscription_ref ON accounts(gateway_subscription_ref);
	CREATE INDEX IF NOT EXISTS idx_accounts_registration_ip ON accounts(registration_ip);
	CREATE INDEX IF NOT EXISTS idx_accounts_premium ON accounts(premium_active, premium_cancelled);
	CREATE INDEX IF NOT EXISTS idx_accounts_referred_by ON accounts(referred_by_account_id);

	-- Balance entries (journal for coin and letter-credit movements)
	CREATE TABLE IF NOT EXISTS balance_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL,
		delta INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		reason TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_entries_account ON balance_entries(account_id, kind);

	-- Referral earnings (append-mostly; status is the only mutable column)
	CREATE TABLE IF NOT EXISTS referral_earnings (
		id TEXT PRIMARY KEY,
		referrer_account_id TEXT NOT NULL,
		referred_account_id TEXT NOT NULL,
		earning_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		percentage TEXT,
		purchase_amount TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		referrer_ip TEXT NOT NULL DEFAULT '',
		referred_ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		external_transaction_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_earnings_referrer ON referral_earnings(referrer_account_id);
	CREATE INDEX IF NOT EXISTS idx_earnings_status ON referral_earnings(status);
	CREATE INDEX IF NOT EXISTS idx_earnings_created_at ON referral_earnings(created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_earnings_signup_bonus
		ON referral_earnings(referrer_account_id, referred_account_id)
		WHERE earning_type = 'signup_bonus';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_earnings_external_tx
		ON referral_earnings(referrer_account_id, referred_account_id, external_transaction_id)
		WHERE external_transaction_id != '';

	-- Transaction logs (audit trail - cold data)
	CREATE TABLE IF NOT EXISTS transaction_logs (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		item_type TEXT NOT NULL DEFAULT '',
		package_type TEXT NOT NULL DEFAULT '',
		amount INTEGER NOT NULL DEFAULT 0,
		price TEXT NOT NULL DEFAULT '0',
		gateway_session_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_logs_account ON transaction_logs(account_id);
	CREATE INDEX IF NOT EXISTS idx_transaction_logs_status ON transaction_logs(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transaction_logs_session
		ON transaction_logs(gateway_session_ref)
		WHERE gateway_session_ref != '';
	`
