package premium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"premium-referral-go/internal/clock"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
)

var (
	ErrNotUpgrade = errors.New("target plan is not an upgrade")
	ErrNotActive  = errors.New("premium is not active")
)

// SubscriptionGateway is the part of the payment gateway that user-initiated
// cancellation talks to.
type SubscriptionGateway interface {
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionRef string, cancel bool) error
}

// Status is the resolved premium state of one account.
type Status struct {
	AccountId string          `json:"accountId"`
	Active    bool            `json:"active"`
	Plan      models.PlanType `json:"plan,omitempty"`
	Start     *time.Time      `json:"start,omitempty"`
	End       *time.Time      `json:"end,omitempty"`
	Cancelled bool            `json:"cancelled"`
}

type Service struct {
	accounts store.AccountRepository
	gateway  SubscriptionGateway
	clock    clock.Clock
}

// NewService builds the premium service. gateway may be nil, in which case only local state changes.
func NewService(accounts store.AccountRepository, gateway SubscriptionGateway, c clock.Clock) *Service {
	if c == nil {
		c = clock.System{}
	}
	return &Service{accounts: accounts, gateway: gateway, clock: c}
}

// Status resolves the account's entitlement and clears a stale premium_active flag.
func (s *Service) Status(ctx context.Context, accountId string) (*Status, error) {
	account, err := s.accounts.GetAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entitled := IsEntitled(*account, now)
	if account.PremiumActive && !entitled {
		zap.L().Info("Premium expired, clearing flag",
			zap.String("account_id", accountId),
			zap.String("plan", string(account.PremiumPlan)))
		account, err = s.accounts.UpdateAccount(ctx, accountId, func(a *models.Account) error {
			if !IsEntitled(*a, now) {
				a.PremiumActive = false
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to persist premium expiry: %w", err)
		}
	}

	status := &Status{
		AccountId: account.Id,
		Active:    entitled,
		Plan:      account.PremiumPlan,
		Start:     account.PremiumStart,
		Cancelled: account.PremiumCancelled,
	}
	if end, ok := EffectiveEnd(*account); ok {
		status.End = &end
	}
	return status, nil
}

// ChangePlan moves an entitled account to a higher plan, carrying over unused paid time.
func (s *Service) ChangePlan(ctx context.Context, accountId string, target models.PlanType) (*models.Account, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("unknown plan %q", target)
	}

	now := s.clock.Now()
	account, err := s.accounts.UpdateAccount(ctx, accountId, func(a *models.Account) error {
		if !IsEntitled(*a, now) {
			return fmt.Errorf("%w: account %s", ErrNotActive, a.Id)
		}
		if !IsUpgrade(a.PremiumPlan, target) {
			return fmt.Errorf("%w: %s -> %s", ErrNotUpgrade, a.PremiumPlan, target)
		}
		start, end := UpgradeWindow(*a, target, now)
		a.PremiumPlan = target
		a.PremiumStart = &start
		a.PremiumEnd = &end
		a.PremiumActive = true
		a.PremiumCancelled = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Premium plan changed",
		zap.String("account_id", accountId),
		zap.String("plan", string(target)),
		zap.Time("premium_end", *account.PremiumEnd))
	return account, nil
}

// Cancel stops renewal. Entitlement continues until premium_end.
func (s *Service) Cancel(ctx context.Context, accountId string) (*models.Account, error) {
	return s.setCancelled(ctx, accountId, true)
}

// Reactivate resumes renewal of a cancelled subscription that has not lapsed yet.
func (s *Service) Reactivate(ctx context.Context, accountId string) (*models.Account, error) {
	return s.setCancelled(ctx, accountId, false)
}

func (s *Service) setCancelled(ctx context.Context, accountId string, cancelled bool) (*models.Account, error) {
	account, err := s.accounts.GetAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !IsEntitled(*account, now) {
		return nil, fmt.Errorf("%w: account %s", ErrNotActive, accountId)
	}

	if s.gateway != nil && account.GatewaySubscriptionRef != "" {
		if err := s.gateway.SetCancelAtPeriodEnd(ctx, account.GatewaySubscriptionRef, cancelled); err != nil {
			// local state still follows the user's request; the next webhook reconciles the gateway
			zap.L().Warn("Failed to update subscription at gateway",
				zap.String("account_id", accountId),
				zap.String("subscription", account.GatewaySubscriptionRef),
				zap.Bool("cancel_at_period_end", cancelled),
				zap.Error(err))
		}
	}

	account, err = s.accounts.UpdateAccount(ctx, accountId, func(a *models.Account) error {
		a.PremiumCancelled = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Premium cancellation updated",
		zap.String("account_id", accountId),
		zap.Bool("cancelled", cancelled))
	return account, nil
}
