package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

func scanTransactionLog(row rowScanner) (*models.TransactionLog, error) {
	var (
		log                      models.TransactionLog
		txType, status, priceStr string
		metadata                 string
		completedAt              sql.NullTime
	)
	err := row.Scan(&log.Id, &log.AccountId, &txType, &log.ItemType, &log.PackageType, &log.Amount,
		&priceStr, &log.GatewaySessionRef, &status, &log.FailureReason, &metadata,
		&log.CreatedAt, &log.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	log.TransactionType = models.TransactionType(txType)
	log.Status = models.TransactionStatus(status)
	log.Price, err = decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price '%s': %w", priceStr, err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &log.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	log.CompletedAt = timePtr(completedAt)
	log.CreatedAt = log.CreatedAt.UTC()
	log.UpdatedAt = log.UpdatedAt.UTC()
	return &log, nil
}

func insertTransactionLog(ctx context.Context, q queryer, log *models.TransactionLog) error {
	if log.Id == "" {
		log.Id = uuid.New().String()
	}
	metadata, err := encodeMetadata(log.Metadata)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, queryInsertTransactionLog,
		log.Id, log.AccountId, string(log.TransactionType), log.ItemType, log.PackageType, log.Amount,
		log.Price.String(), log.GatewaySessionRef, string(log.Status), log.FailureReason, metadata,
		log.CreatedAt.UTC(), log.UpdatedAt.UTC(), nullTime(log.CompletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session %s", store.ErrTransactionLogFinalized, log.GatewaySessionRef)
		}
		return fmt.Errorf("failed to insert transaction log: %w", err)
	}
	return nil
}

func (s *Service) InsertTransactionLog(ctx context.Context, log *models.TransactionLog) error {
	now := s.now()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	if log.UpdatedAt.IsZero() {
		log.UpdatedAt = log.CreatedAt
	}
	if err := insertTransactionLog(ctx, s.db, log); err != nil {
		return err
	}

	zap.L().Debug("Transaction log recorded",
		zap.String("id", log.Id),
		zap.String("account_id", log.AccountId),
		zap.String("status", string(log.Status)))
	return nil
}

func (s *Service) getTransactionLogBySession(ctx context.Context, q queryer, sessionRef string) (*models.TransactionLog, error) {
	log, err := scanTransactionLog(q.QueryRowContext(ctx, queryGetTransactionLogBySession, sessionRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: session %s", store.ErrTransactionLogNotFound, sessionRef)
		}
		return nil, fmt.Errorf("failed to query transaction log: %w", err)
	}
	return log, nil
}

func (s *Service) GetTransactionLogBySession(ctx context.Context, sessionRef string) (*models.TransactionLog, error) {
	return s.getTransactionLogBySession(ctx, s.db, sessionRef)
}

func (s *Service) FinalizeTransactionLog(ctx context.Context, log *models.TransactionLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.finalizeTransactionLog(ctx, tx, log, s.now()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction log: %w", err)
	}

	zap.L().Info("Transaction log finalized",
		zap.String("id", log.Id),
		zap.String("session", log.GatewaySessionRef),
		zap.String("status", string(log.Status)),
		zap.String("failure_reason", log.FailureReason))
	return nil
}

// finalizeTransactionLog moves the session's existing non-terminal log to log.Status, or inserts
// log when the session has no row yet. A terminal row is never updated again.
func (s *Service) finalizeTransactionLog(ctx context.Context, q queryer, log *models.TransactionLog, now time.Time) error {
	if !log.Status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", log.Status)
	}
	if log.CompletedAt == nil {
		log.CompletedAt = &now
	}
	log.UpdatedAt = now

	if log.GatewaySessionRef != "" {
		existing, err := s.getTransactionLogBySession(ctx, q, log.GatewaySessionRef)
		switch {
		case err == nil:
			if existing.Status.IsTerminal() {
				return fmt.Errorf("%w: session %s is %s", store.ErrTransactionLogFinalized, log.GatewaySessionRef, existing.Status)
			}
			return s.updateTransactionLog(ctx, q, existing, log)
		case !errors.Is(err, store.ErrTransactionLogNotFound):
			return err
		}
	}

	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	return insertTransactionLog(ctx, q, log)
}

func (s *Service) updateTransactionLog(ctx context.Context, q queryer, existing, log *models.TransactionLog) error {
	metadata := existing.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	for k, v := range log.Metadata {
		metadata[k] = v
	}
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	amount, price := existing.Amount, existing.Price
	if log.Amount != 0 {
		amount = log.Amount
	}
	if !log.Price.IsZero() {
		price = log.Price
	}

	result, err := q.ExecContext(ctx, queryFinalizeTransactionLog,
		string(log.Status), log.FailureReason, encoded, amount, price.String(),
		log.UpdatedAt, nullTime(log.CompletedAt), existing.Id)
	if err != nil {
		return fmt.Errorf("failed to finalize transaction log: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrTransactionLogFinalized, existing.Id)
	}

	log.Id = existing.Id
	log.CreatedAt = existing.CreatedAt
	log.Metadata = metadata
	return nil
}
