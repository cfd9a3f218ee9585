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

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account                  models.Account
		plan, program            string
		start, end, lastMonthly  sql.NullTime
		premiumActive, cancelled bool
	)
	err := row.Scan(
		&account.Id, &account.Email, &account.Name, &premiumActive, &plan, &start, &end,
		&cancelled, &account.GatewayCustomerRef, &account.GatewaySubscriptionRef,
		&account.CoinBalance, &account.LetterCreditBalance, &account.ReferredByAccountId, &program,
		&account.RegistrationIP, &lastMonthly, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	account.PremiumActive = premiumActive
	account.PremiumCancelled = cancelled
	account.PremiumPlan = models.PlanType(plan)
	account.ReferralProgram = models.ReferralProgram(program)
	account.PremiumStart = timePtr(start)
	account.PremiumEnd = timePtr(end)
	account.LastMonthlyCoins = timePtr(lastMonthly)
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}

func (s *Service) getAccount(ctx context.Context, q queryer, accountId string) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, queryGetAccountById, accountId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, accountId)
		}
		return nil, fmt.Errorf("unable to query account %s: %w", accountId, err)
	}
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, accountId string) (*models.Account, error) {
	zap.L().Debug("Querying account by ID", zap.String("account_id", accountId))
	return s.getAccount(ctx, s.db, accountId)
}

func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, queryListAccounts)
	if err != nil {
		zap.L().Error("Failed to query accounts", zap.Error(err))
		return nil, fmt.Errorf("unable to query accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan account row: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	zap.L().Debug("Retrieved accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}

// FindAccountByGatewayRef resolves an account by subscription reference first, then customer reference.
func (s *Service) FindAccountByGatewayRef(ctx context.Context, subscriptionRef, customerRef string) (*models.Account, error) {
	if subscriptionRef == "" && customerRef == "" {
		return nil, fmt.Errorf("%w: no gateway reference given", store.ErrAccountNotFound)
	}

	account, err := scanAccount(s.db.QueryRowContext(ctx, queryFindAccountByGatewayRef,
		subscriptionRef, subscriptionRef, customerRef, customerRef, subscriptionRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: subscription=%q customer=%q", store.ErrAccountNotFound, subscriptionRef, customerRef)
		}
		return nil, fmt.Errorf("unable to query account by gateway ref: %w", err)
	}
	return account, nil
}

func (s *Service) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", store.ErrAccountNotFound)
	}

	account, err := scanAccount(s.db.QueryRowContext(ctx, queryFindAccountByEmail, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, email)
		}
		return nil, fmt.Errorf("unable to query account by email: %w", err)
	}
	return account, nil
}

func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	program, err := models.ParseReferralProgram(string(params.ReferralProgram))
	if err != nil {
		return nil, err
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC()

	accountId := uuid.New().String()
	zap.L().Info("Creating account",
		zap.String("id", accountId),
		zap.String("email", params.Email),
		zap.String("referred_by", params.ReferredByAccountId),
		zap.String("program", string(program)))

	_, err = s.db.ExecContext(ctx, queryInsertAccount,
		accountId, params.Email, params.Name, params.ReferredByAccountId, string(program),
		params.RegistrationIP, createdAt, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("account with email %s already exists", params.Email)
		}
		return nil, fmt.Errorf("unable to insert account: %w", err)
	}

	return s.GetAccount(ctx, accountId)
}

// UpdateAccount applies mutate to a fresh copy of the account inside a transaction and
// writes the subscription fields back under an optimistic version check. Balances are
// not written here; they only move through IncrementBalance, ApplyCheckout and TransferBalance.
func (s *Service) UpdateAccount(ctx context.Context, accountId string, mutate func(*models.Account) error) (*models.Account, error) {
	var lastErr error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		account, err := s.updateAccountAttempt(ctx, accountId, mutate)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, store.ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
		zap.L().Warn("Account update conflicted, retrying",
			zap.String("account_id", accountId),
			zap.Int("attempt", attempt))
	}
	return nil, lastErr
}

func (s *Service) updateAccountAttempt(ctx context.Context, accountId string, mutate func(*models.Account) error) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	account, err := s.mutateAccount(ctx, tx, accountId, mutate)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit account update: %w", err)
	}
	return account, nil
}

// mutateAccount performs the read-modify-write of one account on q.
func (s *Service) mutateAccount(ctx context.Context, q queryer, accountId string, mutate func(*models.Account) error) (*models.Account, error) {
	account, err := s.getAccount(ctx, q, accountId)
	if err != nil {
		return nil, err
	}

	version := account.Version
	if err := mutate(account); err != nil {
		return nil, err
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	result, err := q.ExecContext(ctx, queryUpdateAccount,
		account.PremiumActive, string(account.PremiumPlan),
		nullTime(account.PremiumStart), nullTime(account.PremiumEnd),
		account.PremiumCancelled, account.GatewayCustomerRef, account.GatewaySubscriptionRef,
		string(account.ReferralProgram), now, accountId, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("account update failed - %w", store.ErrConcurrentModification)
	}

	account.Version = version + 1
	account.UpdatedAt = now
	return account, nil
}

func (s *Service) CountOtherAccountsWithIP(ctx context.Context, ip, excludeAccountId string) (int, error) {
	if ip == "" {
		return 0, nil
	}
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountOtherAccountsWithIP, ip, excludeAccountId).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count accounts for ip: %w", err)
	}
	return count, nil
}

// ExpireCancelledPremium clears premium_active on cancelled accounts whose premium_end has passed.
func (s *Service) ExpireCancelledPremium(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryExpireCancelledPremium, s.now(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire cancelled premium: %w", err)
	}
	return result.RowsAffected()
}

// ExpireLegacyCancelledPremium clears premium_active on cancelled accounts of the given plan that
// never recorded premium_end and started at or before the cutoff.
func (s *Service) ExpireLegacyCancelledPremium(ctx context.Context, plan models.PlanType, startedAtOrBefore time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryExpireLegacyCancelledPremium, s.now(), string(plan), startedAtOrBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire legacy cancelled premium for %s: %w", plan, err)
	}
	return result.RowsAffected()
}
