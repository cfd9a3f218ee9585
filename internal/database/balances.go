package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IncrementBalance atomically applies change to one balance and journals it.
func (s *Service) IncrementBalance(ctx context.Context, change store.BalanceChange) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := s.applyBalanceChange(ctx, tx, change, s.now())
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit balance change: %w", err)
	}

	zap.L().Info("Balance updated",
		zap.String("account_id", change.AccountId),
		zap.String("kind", string(change.Kind)),
		zap.Int64("delta", change.Delta),
		zap.Int64("balance", balance),
		zap.String("reason", change.Reason))
	return balance, nil
}

// applyBalanceChange performs the per-field increment and its journal entry on q.
// A change that would take the balance below zero fails with store.ErrInsufficientBalance.
func (s *Service) applyBalanceChange(ctx context.Context, q queryer, change store.BalanceChange, at time.Time) (int64, error) {
	if change.Delta == 0 {
		return 0, store.ErrNonPositiveBalanceChange
	}

	var query string
	switch change.Kind {
	case models.BalanceCoins:
		query = queryIncrementCoins
	case models.BalanceLetterCredits:
		query = queryIncrementLetterCredits
	default:
		return 0, fmt.Errorf("unknown balance kind %q", change.Kind)
	}

	var balance int64
	err := q.QueryRowContext(ctx, query, change.Delta, at, change.AccountId, change.Delta).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := q.QueryRowContext(ctx, queryAccountExists, change.AccountId).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check account: %w", err)
		}
		if !exists {
			return 0, fmt.Errorf("%w: %s", store.ErrAccountNotFound, change.AccountId)
		}
		return 0, fmt.Errorf("%w: %s %s by %d", store.ErrInsufficientBalance, change.AccountId, change.Kind, change.Delta)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update %s balance: %w", change.Kind, err)
	}

	_, err = q.ExecContext(ctx, queryInsertBalanceEntry,
		uuid.New().String(), change.AccountId, string(change.Kind), change.Delta, balance,
		change.Reason, change.Reference, at)
	if err != nil {
		return 0, fmt.Errorf("failed to insert balance entry: %w", err)
	}
	return balance, nil
}

// TransferBalance moves amount from one account to another. The debit, the credit and
// both audit logs commit together or not at all.
func (s *Service) TransferBalance(ctx context.Context, params store.TransferParams) error {
	if params.Amount <= 0 {
		return store.ErrNonPositiveBalanceChange
	}
	if params.FromAccountId == params.ToAccountId {
		return store.ErrSelfTransfer
	}

	at := params.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	reference := params.Reference
	if reference == "" {
		reference = uuid.New().String()
	}

	zap.L().Info("Transferring balance",
		zap.String("from", params.FromAccountId),
		zap.String("to", params.ToAccountId),
		zap.String("kind", string(params.Kind)),
		zap.Int64("amount", params.Amount))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	legs := []struct {
		accountId string
		delta     int64
		reason    string
	}{
		{params.FromAccountId, -params.Amount, "gift_sent"},
		{params.ToAccountId, params.Amount, "gift_received"},
	}
	for _, leg := range legs {
		_, err := s.applyBalanceChange(ctx, tx, store.BalanceChange{
			AccountId: leg.accountId,
			Kind:      params.Kind,
			Delta:     leg.delta,
			Reason:    leg.reason,
			Reference: reference,
		}, at)
		if err != nil {
			return err
		}

		log := &models.TransactionLog{
			Id:              uuid.New().String(),
			AccountId:       leg.accountId,
			TransactionType: models.TransactionGift,
			ItemType:        string(params.Kind),
			Amount:          leg.delta,
			Status:          models.TxCompleted,
			Metadata: map[string]string{
				"reference":    reference,
				"from_account": params.FromAccountId,
				"to_account":   params.ToAccountId,
			},
			CreatedAt:   at,
			UpdatedAt:   at,
			CompletedAt: &at,
		}
		if err := insertTransactionLog(ctx, tx, log); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}

	zap.L().Info("Transfer committed", zap.String("reference", reference))
	return nil
}

// GrantMonthlyCoins credits amount to every entitled premium account that has not
// received its grant in the current calendar month. Returns the number of accounts credited.
func (s *Service) GrantMonthlyCoins(ctx context.Context, amount int64, now time.Time) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	reference := "monthly:" + now.Format("2006-01")

	// Collect candidates first; each grant then runs in its own transaction.
	rows, err := s.db.QueryContext(ctx, queryMonthlyCoinCandidates, now, monthStart)
	if err != nil {
		return 0, fmt.Errorf("failed to query monthly coin candidates: %w", err)
	}
	candidates, err := collectIds(rows)
	if err != nil {
		return 0, fmt.Errorf("failed to read monthly coin candidates: %w", err)
	}

	var granted int64
	for _, accountId := range candidates {
		ok, err := s.grantMonthlyCoins(ctx, accountId, amount, now, monthStart, reference)
		if err != nil {
			return granted, err
		}
		if ok {
			granted++
		}
	}

	if granted > 0 {
		zap.L().Info("Monthly coins granted",
			zap.Int64("accounts", granted),
			zap.Int64("coins_each", amount),
			zap.String("period", reference))
	}
	return granted, nil
}

func (s *Service) grantMonthlyCoins(ctx context.Context, accountId string, amount int64, now, monthStart time.Time, reference string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, queryGrantMonthlyCoins, amount, now, now, accountId, monthStart).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// granted concurrently
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to grant monthly coins to %s: %w", accountId, err)
	}

	_, err = tx.ExecContext(ctx, queryInsertBalanceEntry,
		uuid.New().String(), accountId, string(models.BalanceCoins), amount, balance,
		string(models.TransactionMonthlyGrant), reference, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert balance entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit monthly grant: %w", err)
	}
	return true, nil
}

func (s *Service) GetBalanceEntries(ctx context.Context, accountId string, kind models.BalanceKind) ([]models.BalanceEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetBalanceEntries, accountId, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query balance entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.BalanceEntry
	for rows.Next() {
		var entry models.BalanceEntry
		var entryKind string
		if err := rows.Scan(&entry.Id, &entry.AccountId, &entryKind, &entry.Delta, &entry.BalanceAfter,
			&entry.Reason, &entry.Reference, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance entry: %w", err)
		}
		entry.Kind = models.BalanceKind(entryKind)
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance entries: %w", err)
	}
	return entries, nil
}

// ReconcileBalance verifies that the stored balance matches the sum of its journal entries
func (s *Service) ReconcileBalance(ctx context.Context, accountId string, kind models.BalanceKind) error {
	zap.L().Info("Reconciling balance", zap.String("account_id", accountId), zap.String("kind", string(kind)))

	account, err := s.GetAccount(ctx, accountId)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	current := account.Balance(kind)

	var calculated int64
	if err := s.db.QueryRowContext(ctx, queryReconcileBalance, accountId, string(kind)).Scan(&calculated); err != nil {
		return fmt.Errorf("failed to calculate balance from entries: %w", err)
	}

	if current != calculated {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_id", accountId),
			zap.String("kind", string(kind)),
			zap.Int64("current_balance", current),
			zap.Int64("calculated_balance", calculated),
			zap.Int64("difference", current-calculated))
		return fmt.Errorf("balance mismatch: current=%d, calculated=%d", current, calculated)
	}

	zap.L().Info("Balance reconciliation successful",
		zap.String("account_id", accountId),
		zap.String("kind", string(kind)),
		zap.Int64("balance", current))
	return nil
}
