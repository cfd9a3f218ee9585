package webhook

import (
	"context"
	"errors"
	"fmt"

	"premium-referral-go/internal/catalog"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/referral"
	"premium-referral-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const premiumItemType = "premium"

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, event Event) (Outcome, error) {
	checkout := event.(*CheckoutCompleted)
	if checkout.Purchase != nil {
		return r.fulfillPurchase(ctx, checkout)
	}
	return r.activateSubscription(ctx, checkout)
}

func (r *Reconciler) fulfillPurchase(ctx context.Context, checkout *CheckoutCompleted) (Outcome, error) {
	purchase := checkout.Purchase
	replayed := func(log *models.TransactionLog) *referral.Purchase {
		return &referral.Purchase{
			AccountId:             log.AccountId,
			Amount:                log.Price,
			ExternalTransactionId: checkout.SessionId,
			OccurredAt:            completedAt(log),
			UserAgent:             checkout.UserAgent,
		}
	}

	done, err := r.alreadyFinal(ctx, checkout.SessionId)
	if err != nil {
		return "", err
	}
	if done {
		return r.replay(ctx, checkout.SessionId, replayed)
	}

	account, err := r.accounts.GetAccount(ctx, checkout.AccountId)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			zap.L().Warn("Checkout for unknown account",
				zap.String("session", checkout.SessionId),
				zap.String("account_id", checkout.AccountId))
			return OutcomeIgnored, nil
		}
		return "", err
	}

	now := r.clock.Now()
	pkg, err := r.catalog.Validate(catalog.Request{
		PackageType: purchase.PackageType,
		ItemType:    purchase.ItemType,
		Amount:      purchase.Amount,
		Price:       purchase.Price,
		PriceType:   purchase.PriceType,
	}, premium.IsEntitled(*account, now))
	if err != nil {
		var violation *catalog.ViolationError
		if errors.As(err, &violation) {
			return r.rejectPurchase(ctx, checkout, violation)
		}
		return "", err
	}

	kind, err := models.BalanceKindForItem(pkg.ItemType)
	if err != nil {
		return "", err
	}

	_, err = r.accounts.ApplyCheckout(ctx, store.CheckoutParams{
		AccountId:  account.Id,
		SessionRef: checkout.SessionId,
		Log: &models.TransactionLog{
			TransactionType: models.TransactionPurchase,
			ItemType:        pkg.ItemType,
			PackageType:     pkg.Name,
			Amount:          pkg.Amount,
			Price:           pkg.Price,
			Status:          models.TxCompleted,
			Metadata:        map[string]string{"priceType": purchase.PriceType},
		},
		Credit: &store.BalanceChange{
			Kind:   kind,
			Delta:  pkg.Amount,
			Reason: string(models.TransactionPurchase),
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyApplied) {
			return r.replay(ctx, checkout.SessionId, replayed)
		}
		return "", fmt.Errorf("failed to fulfil purchase %s: %w", checkout.SessionId, err)
	}

	zap.L().Info("Purchase fulfilled",
		zap.String("account_id", account.Id),
		zap.String("package", pkg.Name),
		zap.Int64("amount", pkg.Amount),
		zap.String("price", pkg.Price.StringFixed(2)))

	if err := r.commission(ctx, &referral.Purchase{
		AccountId:             account.Id,
		Amount:                pkg.Price,
		ExternalTransactionId: checkout.SessionId,
		OccurredAt:            now,
		UserAgent:             checkout.UserAgent,
	}); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// rejectPurchase records a purchase that failed server-side validation; no balance moves.
func (r *Reconciler) rejectPurchase(ctx context.Context, checkout *CheckoutCompleted, violation *catalog.ViolationError) (Outcome, error) {
	purchase := checkout.Purchase
	metadata := map[string]string{
		"securityViolationType": violation.Type,
		"priceType":             purchase.PriceType,
	}
	if !violation.ExpectedPrice.IsZero() {
		metadata["expectedPrice"] = violation.ExpectedPrice.StringFixed(2)
	}

	err := r.ledger.FinalizeTransactionLog(ctx, &models.TransactionLog{
		AccountId:         checkout.AccountId,
		TransactionType:   models.TransactionPurchase,
		ItemType:          purchase.ItemType,
		PackageType:       purchase.PackageType,
		Amount:            purchase.Amount,
		Price:             purchase.Price,
		GatewaySessionRef: checkout.SessionId,
		Status:            models.TxSecurityViolation,
		FailureReason:     violation.Reason,
		Metadata:          metadata,
	})
	if err != nil {
		if errors.Is(err, store.ErrTransactionLogFinalized) {
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("failed to record security violation for %s: %w", checkout.SessionId, err)
	}

	zap.L().Warn("Security violation: purchase rejected",
		zap.String("session", checkout.SessionId),
		zap.String("account_id", checkout.AccountId),
		zap.String("violation", violation.Type),
		zap.String("reason", violation.Reason),
		zap.String("claimed_price", purchase.Price.String()))
	r.observer.RecordViolation(violation.Type)
	return OutcomeViolation, nil
}

func (r *Reconciler) activateSubscription(ctx context.Context, checkout *CheckoutCompleted) (Outcome, error) {
	sub := checkout.Subscription
	replayed := func(log *models.TransactionLog) *referral.Purchase {
		return &referral.Purchase{
			AccountId:             log.AccountId,
			Amount:                log.Price,
			IsSubscription:        true,
			ExternalTransactionId: checkout.SessionId,
			OccurredAt:            completedAt(log),
			UserAgent:             checkout.UserAgent,
		}
	}

	done, err := r.alreadyFinal(ctx, checkout.SessionId)
	if err != nil {
		return "", err
	}
	if done {
		return r.replay(ctx, checkout.SessionId, replayed)
	}

	account, err := r.accounts.GetAccount(ctx, checkout.AccountId)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			zap.L().Warn("Subscription checkout for unknown account",
				zap.String("session", checkout.SessionId),
				zap.String("account_id", checkout.AccountId))
			return OutcomeIgnored, nil
		}
		return "", err
	}

	if sub.IsUpgrade {
		r.cancelReplacedSubscription(ctx, account, checkout.SubscriptionRef)
	}

	now := r.clock.Now()
	price := decimal.New(checkout.AmountTotal, -2)
	transactionType := models.TransactionSubscription
	if sub.IsUpgrade {
		transactionType = models.TransactionUpgrade
	}

	updated, err := r.accounts.ApplyCheckout(ctx, store.CheckoutParams{
		AccountId:  account.Id,
		SessionRef: checkout.SessionId,
		Log: &models.TransactionLog{
			TransactionType: transactionType,
			ItemType:        premiumItemType,
			PackageType:     string(sub.Plan),
			Amount:          1,
			Price:           price,
			Status:          models.TxCompleted,
			Metadata: map[string]string{
				"planName":        sub.PlanName,
				"subscriptionRef": checkout.SubscriptionRef,
			},
		},
		Mutate: func(a *models.Account) error {
			start, end := premium.UpgradeWindow(*a, sub.Plan, now)
			a.PremiumActive = true
			a.PremiumPlan = sub.Plan
			a.PremiumStart = &start
			a.PremiumEnd = &end
			a.PremiumCancelled = false
			if checkout.CustomerRef != "" {
				a.GatewayCustomerRef = checkout.CustomerRef
			}
			if checkout.SubscriptionRef != "" {
				a.GatewaySubscriptionRef = checkout.SubscriptionRef
			}
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyApplied) {
			return r.replay(ctx, checkout.SessionId, replayed)
		}
		return "", fmt.Errorf("failed to activate subscription %s: %w", checkout.SessionId, err)
	}

	zap.L().Info("Premium activated",
		zap.String("account_id", updated.Id),
		zap.String("plan", string(updated.PremiumPlan)),
		zap.Bool("upgrade", sub.IsUpgrade),
		zap.Timep("premium_end", updated.PremiumEnd))

	if err := r.commission(ctx, &referral.Purchase{
		AccountId:             updated.Id,
		Amount:                price,
		IsSubscription:        true,
		ExternalTransactionId: checkout.SessionId,
		OccurredAt:            now,
		UserAgent:             checkout.UserAgent,
	}); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// cancelReplacedSubscription is best-effort: the upgrade proceeds when the gateway refuses.
func (r *Reconciler) cancelReplacedSubscription(ctx context.Context, account *models.Account, newRef string) {
	oldRef := account.GatewaySubscriptionRef
	if oldRef == "" || oldRef == newRef {
		return
	}
	if r.gateway == nil {
		zap.L().Warn("No gateway configured, old subscription left active",
			zap.String("account_id", account.Id),
			zap.String("subscription", oldRef))
		return
	}
	if err := r.gateway.CancelSubscription(ctx, oldRef); err != nil {
		zap.L().Warn("Failed to cancel replaced subscription",
			zap.String("account_id", account.Id),
			zap.String("subscription", oldRef),
			zap.Error(err))
		return
	}
	zap.L().Info("Cancelled replaced subscription",
		zap.String("account_id", account.Id),
		zap.String("subscription", oldRef),
		zap.String("plan", string(account.PremiumPlan)))
}
