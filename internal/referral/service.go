package referral

import (
	"context"
	"errors"
	"fmt"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Summary totals a referrer's earnings by status.
type Summary struct {
	ReferrerId string                                   `json:"referrerId"`
	Count      int                                      `json:"count"`
	Totals     map[models.EarningStatus]decimal.Decimal `json:"totals"`
}

// Service runs the administrative earning workflow.
type Service struct {
	ledger  store.LedgerRepository
	journal Journal
}

func NewService(ledger store.LedgerRepository, journal Journal) *Service {
	return &Service{ledger: ledger, journal: journal}
}

func (s *Service) Approve(ctx context.Context, earningId string) (*models.ReferralEarning, error) {
	return s.transition(ctx, earningId, models.EarningApproved)
}

func (s *Service) MarkPaid(ctx context.Context, earningId string) (*models.ReferralEarning, error) {
	return s.transition(ctx, earningId, models.EarningPaid)
}

func (s *Service) Cancel(ctx context.Context, earningId string) (*models.ReferralEarning, error) {
	return s.transition(ctx, earningId, models.EarningCancelled)
}

func (s *Service) transition(ctx context.Context, earningId string, next models.EarningStatus) (*models.ReferralEarning, error) {
	earning, err := s.ledger.UpdateEarningStatus(ctx, earningId, next)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, earning)
	return earning, nil
}

func (s *Service) mirror(ctx context.Context, earning *models.ReferralEarning) {
	if s.journal == nil {
		return
	}

	var err error
	switch earning.Status {
	case models.EarningPaid:
		err = s.journal.RecordPayout(ctx, earning)
	case models.EarningCancelled:
		err = s.journal.RecordCancellation(ctx, earning)
	default:
		return
	}
	if err != nil {
		zap.L().Warn("Failed to mirror earning status",
			zap.String("earning_id", earning.Id),
			zap.String("status", string(earning.Status)),
			zap.Error(err))
	}
}

// PayAllApproved marks every approved earning of referrerId as paid and returns
// the earnings paid and their total.
func (s *Service) PayAllApproved(ctx context.Context, referrerId string) ([]models.ReferralEarning, decimal.Decimal, error) {
	if referrerId == "" {
		return nil, decimal.Zero, fmt.Errorf("referrer id is required")
	}

	approved, err := s.ledger.ListEarnings(ctx, store.EarningFilter{
		Status:     models.EarningApproved,
		ReferrerId: referrerId,
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	var (
		paid  []models.ReferralEarning
		total = decimal.Zero
	)
	for _, earning := range approved {
		updated, err := s.MarkPaid(ctx, earning.Id)
		if err != nil {
			// moved by someone else since listing
			if errors.Is(err, store.ErrInvalidStatusTransition) || errors.Is(err, store.ErrConcurrentModification) {
				zap.L().Warn("Skipping earning changed during payout",
					zap.String("earning_id", earning.Id),
					zap.Error(err))
				continue
			}
			return paid, total, err
		}
		paid = append(paid, *updated)
		total = total.Add(updated.Amount)
	}

	zap.L().Info("Referral payout completed",
		zap.String("referrer_id", referrerId),
		zap.Int("earnings", len(paid)),
		zap.String("total", total.StringFixed(2)))
	return paid, total, nil
}

func (s *Service) Summary(ctx context.Context, referrerId string) (*Summary, error) {
	earnings, err := s.ledger.ListEarnings(ctx, store.EarningFilter{ReferrerId: referrerId})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ReferrerId: referrerId,
		Count:      len(earnings),
		Totals:     make(map[models.EarningStatus]decimal.Decimal),
	}
	for _, e := range earnings {
		summary.Totals[e.Status] = summary.Totals[e.Status].Add(e.Amount)
	}
	return summary, nil
}

func (s *Service) List(ctx context.Context, filter store.EarningFilter) ([]models.ReferralEarning, error) {
	return s.ledger.ListEarnings(ctx, filter)
}
