package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"premium-referral-go/internal/clock"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const unknownUserAgent = "unknown"

// Purchase is a payment by a possibly-referred account.
type Purchase struct {
	AccountId             string
	Amount                decimal.Decimal
	IsSubscription        bool
	IsSecondMonth         bool
	ExternalTransactionId string
	// OccurredAt defaults to the calculator's clock.
	OccurredAt time.Time
	// UserAgent is recorded for fraud review; empty means unknown.
	UserAgent string
}

// Journal mirrors earning lifecycle events to an external ledger.
type Journal interface {
	RecordEarning(ctx context.Context, earning *models.ReferralEarning) error
	RecordPayout(ctx context.Context, earning *models.ReferralEarning) error
	RecordCancellation(ctx context.Context, earning *models.ReferralEarning) error
}

// Calculator turns purchases into pending referral earnings.
type Calculator struct {
	accounts store.AccountRepository
	ledger   store.LedgerRepository
	journal  Journal
	clock    clock.Clock
}

// NewCalculator wires the calculator; journal may be nil.
func NewCalculator(accounts store.AccountRepository, ledger store.LedgerRepository, journal Journal, c clock.Clock) *Calculator {
	if c == nil {
		c = clock.System{}
	}
	return &Calculator{accounts: accounts, ledger: ledger, journal: journal, clock: c}
}

// Process records the commission owed for p, if any, and returns it.
// A nil earning with a nil error means nothing was owed or it was already recorded.
func (c *Calculator) Process(ctx context.Context, p Purchase) (*models.ReferralEarning, error) {
	referred, err := c.accounts.GetAccount(ctx, p.AccountId)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			zap.L().Warn("Purchaser not found for referral processing", zap.String("account_id", p.AccountId))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load purchaser: %w", err)
	}
	if referred.ReferredByAccountId == "" {
		return nil, nil
	}

	referrer, err := c.accounts.GetAccount(ctx, referred.ReferredByAccountId)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			zap.L().Warn("Referrer not found",
				zap.String("account_id", referred.Id),
				zap.String("referrer_id", referred.ReferredByAccountId))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load referrer: %w", err)
	}

	program, err := ProgramFor(referrer.ReferralProgram)
	if err != nil {
		return nil, err
	}

	at := p.OccurredAt
	if at.IsZero() {
		at = c.clock.Now()
	}

	in := Input{Referred: *referred, Purchase: p, At: at}
	if program.NeedsSignupBonusCheck(p) {
		if in.SignupBonusPaid, err = c.ledger.SignupBonusExists(ctx, referrer.Id, referred.Id); err != nil {
			return nil, err
		}
	}

	award := program.Award(in)
	if award == nil || !award.Amount.IsPositive() {
		zap.L().Debug("No referral award",
			zap.String("referrer_id", referrer.Id),
			zap.String("referred_id", referred.Id),
			zap.String("program", string(referrer.ReferralProgram)))
		return nil, nil
	}

	if award.Type == models.EarningSignupBonus {
		exists, err := c.ledger.SignupBonusExists(ctx, referrer.Id, referred.Id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
	}
	if p.ExternalTransactionId != "" {
		exists, err := c.ledger.EarningExistsForTransaction(ctx, referrer.Id, referred.Id, p.ExternalTransactionId)
		if err != nil {
			return nil, err
		}
		if exists {
			zap.L().Info("Referral earning already recorded for transaction",
				zap.String("referrer_id", referrer.Id),
				zap.String("transaction_id", p.ExternalTransactionId))
			return nil, nil
		}
	}

	userAgent := p.UserAgent
	if userAgent == "" {
		userAgent = unknownUserAgent
	}

	earning := &models.ReferralEarning{
		ReferrerAccountId:     referrer.Id,
		ReferredAccountId:     referred.Id,
		EarningType:           award.Type,
		Amount:                award.Amount,
		Percentage:            award.Percentage,
		PurchaseAmount:        decimal.NewNullDecimal(p.Amount),
		Status:                models.EarningPending,
		ReferrerIP:            referrer.RegistrationIP,
		ReferredIP:            referred.RegistrationIP,
		UserAgent:             userAgent,
		ExternalTransactionId: p.ExternalTransactionId,
		CreatedAt:             c.clock.Now(),
	}
	if err := c.ledger.InsertEarning(ctx, earning); err != nil {
		if errors.Is(err, store.ErrDuplicateEarning) {
			// lost a race with a concurrent delivery of the same payment
			return nil, nil
		}
		return nil, err
	}

	if c.journal != nil {
		if err := c.journal.RecordEarning(ctx, earning); err != nil {
			zap.L().Warn("Failed to mirror referral earning",
				zap.String("earning_id", earning.Id),
				zap.Error(err))
		}
	}
	return earning, nil
}
