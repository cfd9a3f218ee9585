package webhook

import (
	"context"
	"errors"
	"fmt"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
)

var errReplacedSubscription = errors.New("subscription was replaced")

// handleSubscriptionDeleted marks the account cancelled. Entitlement runs until
// premium end; the reconciliation job clears the flag afterwards.
func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event Event) (Outcome, error) {
	sub := event.(*SubscriptionDeleted).Subscription

	account, err := r.accounts.FindAccountByGatewayRef(ctx, sub.Id, sub.CustomerRef)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			zap.L().Warn("No account for deleted subscription",
				zap.String("subscription", sub.Id),
				zap.String("customer", sub.CustomerRef))
			return OutcomeIgnored, nil
		}
		return "", err
	}
	if account.PremiumCancelled && account.GatewaySubscriptionRef == sub.Id {
		return OutcomeDuplicate, nil
	}

	_, err = r.accounts.UpdateAccount(ctx, account.Id, func(a *models.Account) error {
		// deleting the subscription an upgrade replaced must not cancel the new one
		if a.GatewaySubscriptionRef != "" && a.GatewaySubscriptionRef != sub.Id {
			return errReplacedSubscription
		}
		a.PremiumCancelled = true
		return nil
	})
	if err != nil {
		if errors.Is(err, errReplacedSubscription) {
			zap.L().Info("Ignoring deletion of replaced subscription",
				zap.String("account_id", account.Id),
				zap.String("subscription", sub.Id))
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("failed to cancel subscription %s: %w", sub.Id, err)
	}

	zap.L().Info("Subscription cancelled",
		zap.String("account_id", account.Id),
		zap.String("subscription", sub.Id),
		zap.Timep("premium_end", account.PremiumEnd))
	return OutcomeApplied, nil
}
