package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func scanEarning(row rowScanner) (*models.ReferralEarning, error) {
	var (
		earning                 models.ReferralEarning
		earningType, status     string
		amount                  string
		percentage, purchaseAmt sql.NullString
	)
	err := row.Scan(&earning.Id, &earning.ReferrerAccountId, &earning.ReferredAccountId, &earningType,
		&amount, &percentage, &purchaseAmt, &status, &earning.ReferrerIP, &earning.ReferredIP,
		&earning.UserAgent, &earning.ExternalTransactionId, &earning.CreatedAt, &earning.UpdatedAt)
	if err != nil {
		return nil, err
	}

	earning.EarningType = models.EarningType(earningType)
	earning.Status = models.EarningStatus(status)
	if earning.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse earning amount '%s': %w", amount, err)
	}
	if earning.Percentage, err = parseNullDecimal(percentage); err != nil {
		return nil, fmt.Errorf("failed to parse earning percentage: %w", err)
	}
	if earning.PurchaseAmount, err = parseNullDecimal(purchaseAmt); err != nil {
		return nil, fmt.Errorf("failed to parse purchase amount: %w", err)
	}
	earning.CreatedAt = earning.CreatedAt.UTC()
	earning.UpdatedAt = earning.UpdatedAt.UTC()
	return &earning, nil
}

// InsertEarning appends a referral earning. Repeating a signup bonus or an external
// transaction for the same referrer/referred pair fails with store.ErrDuplicateEarning.
func (s *Service) InsertEarning(ctx context.Context, earning *models.ReferralEarning) error {
	if earning.Id == "" {
		earning.Id = uuid.New().String()
	}
	if earning.Status == "" {
		earning.Status = models.EarningPending
	}
	if earning.CreatedAt.IsZero() {
		earning.CreatedAt = s.now()
	}
	earning.CreatedAt = earning.CreatedAt.UTC()
	earning.UpdatedAt = earning.CreatedAt

	_, err := s.db.ExecContext(ctx, queryInsertEarning,
		earning.Id, earning.ReferrerAccountId, earning.ReferredAccountId, string(earning.EarningType),
		earning.Amount.String(), nullDecimal(earning.Percentage), nullDecimal(earning.PurchaseAmount),
		string(earning.Status), earning.ReferrerIP, earning.ReferredIP, earning.UserAgent,
		earning.ExternalTransactionId, earning.CreatedAt, earning.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s for %s->%s", store.ErrDuplicateEarning,
				earning.EarningType, earning.ReferrerAccountId, earning.ReferredAccountId)
		}
		return fmt.Errorf("failed to insert referral earning: %w", err)
	}

	zap.L().Info("Referral earning recorded",
		zap.String("id", earning.Id),
		zap.String("referrer", earning.ReferrerAccountId),
		zap.String("referred", earning.ReferredAccountId),
		zap.String("type", string(earning.EarningType)),
		zap.String("amount", earning.Amount.StringFixed(2)))
	return nil
}

func (s *Service) SignupBonusExists(ctx context.Context, referrerId, referredId string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, querySignupBonusExists, referrerId, referredId).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check signup bonus: %w", err)
	}
	return exists, nil
}

func (s *Service) EarningExistsForTransaction(ctx context.Context, referrerId, referredId, externalTxId string) (bool, error) {
	if externalTxId == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, queryEarningExistsForTransaction, referrerId, referredId, externalTxId).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check earning for transaction: %w", err)
	}
	return exists, nil
}

func (s *Service) getEarning(ctx context.Context, q queryer, earningId string) (*models.ReferralEarning, error) {
	earning, err := scanEarning(q.QueryRowContext(ctx, queryGetEarningById, earningId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrEarningNotFound, earningId)
		}
		return nil, fmt.Errorf("unable to query earning %s: %w", earningId, err)
	}
	return earning, nil
}

func (s *Service) GetEarning(ctx context.Context, earningId string) (*models.ReferralEarning, error) {
	return s.getEarning(ctx, s.db, earningId)
}

func (s *Service) ListEarnings(ctx context.Context, filter store.EarningFilter) ([]models.ReferralEarning, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ReferrerId != "" {
		conditions = append(conditions, "referrer_account_id = ?")
		args = append(args, filter.ReferrerId)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.Until.UTC())
	}

	query := queryListEarnings
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query earnings: %w", err)
	}
	defer closeRows(rows)

	var earnings []models.ReferralEarning
	for rows.Next() {
		earning, err := scanEarning(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan earning row: %w", err)
		}
		earnings = append(earnings, *earning)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earning rows: %w", err)
	}
	return earnings, nil
}

// UpdateEarningStatus moves an earning forward. The update is conditional on the status
// read, so two concurrent transitions cannot both succeed.
func (s *Service) UpdateEarningStatus(ctx context.Context, earningId string, next models.EarningStatus) (*models.ReferralEarning, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	earning, err := s.getEarning(ctx, tx, earningId)
	if err != nil {
		return nil, err
	}
	if !earning.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidStatusTransition, earning.Status, next)
	}

	now := s.now()
	result, err := tx.ExecContext(ctx, queryUpdateEarningStatus, string(next), now, earningId, string(earning.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to update earning status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("earning status update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit earning status: %w", err)
	}

	zap.L().Info("Referral earning status changed",
		zap.String("id", earningId),
		zap.String("from", string(earning.Status)),
		zap.String("to", string(next)))

	earning.Status = next
	earning.UpdatedAt = now
	return earning, nil
}
