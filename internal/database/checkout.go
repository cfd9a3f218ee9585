package database

import (
	"context"
	"errors"
	"fmt"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
)

// ApplyCheckout runs the account mutation, the balance credit and the completed
// transaction log for one gateway session in a single transaction. A session whose
// log is already terminal is rejected with store.ErrAlreadyApplied.
func (s *Service) ApplyCheckout(ctx context.Context, params store.CheckoutParams) (*models.Account, error) {
	if params.AccountId == "" {
		return nil, fmt.Errorf("%w: checkout without account", store.ErrAccountNotFound)
	}

	var lastErr error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		account, err := s.applyCheckoutAttempt(ctx, params)
		if err == nil {
			zap.L().Info("Checkout applied",
				zap.String("account_id", params.AccountId),
				zap.String("session", params.SessionRef))
			return account, nil
		}
		if !errors.Is(err, store.ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
		zap.L().Warn("Checkout conflicted, retrying",
			zap.String("account_id", params.AccountId),
			zap.String("session", params.SessionRef),
			zap.Int("attempt", attempt))
	}
	return nil, lastErr
}

func (s *Service) applyCheckoutAttempt(ctx context.Context, params store.CheckoutParams) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if params.SessionRef != "" {
		existing, err := s.getTransactionLogBySession(ctx, tx, params.SessionRef)
		switch {
		case err == nil:
			if existing.Status.IsTerminal() {
				return nil, fmt.Errorf("%w: session %s", store.ErrAlreadyApplied, params.SessionRef)
			}
		case !errors.Is(err, store.ErrTransactionLogNotFound):
			return nil, err
		}
	}

	if params.Mutate != nil {
		if _, err := s.mutateAccount(ctx, tx, params.AccountId, params.Mutate); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if params.Credit != nil {
		credit := *params.Credit
		credit.AccountId = params.AccountId
		if credit.Reference == "" {
			credit.Reference = params.SessionRef
		}
		if _, err := s.applyBalanceChange(ctx, tx, credit, now); err != nil {
			return nil, err
		}
	}

	log := params.Log
	if log == nil {
		log = &models.TransactionLog{TransactionType: models.TransactionPurchase}
	}
	log.AccountId = params.AccountId
	log.GatewaySessionRef = params.SessionRef
	if !log.Status.IsTerminal() {
		log.Status = models.TxCompleted
	}
	if err := s.finalizeTransactionLog(ctx, tx, log, now); err != nil {
		if errors.Is(err, store.ErrTransactionLogFinalized) {
			return nil, fmt.Errorf("%w: session %s", store.ErrAlreadyApplied, params.SessionRef)
		}
		return nil, err
	}

	account, err := s.getAccount(ctx, tx, params.AccountId)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}
	return account, nil
}
