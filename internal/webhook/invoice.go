package webhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"premium-referral-go/internal/gateway"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/referral"
	"premium-referral-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	renewalFallback = 30 * 24 * time.Hour

	// The first invoice of a subscription is paid through the checkout session,
	// which already carries the commission for it.
	billingReasonCreate = "subscription_create"
)

// errNoPlan rolls back an invoice for an account whose plan is not recorded yet, so
// a redelivery after the checkout session can still apply it.
var errNoPlan = errors.New("account has no premium plan")

func (r *Reconciler) handleInvoicePaid(ctx context.Context, event Event) (Outcome, error) {
	return r.applyInvoice(ctx, &event.(*InvoicePaid).Invoice)
}

func (r *Reconciler) handleInvoicePaymentPaid(ctx context.Context, event Event) (Outcome, error) {
	payment := event.(*InvoicePaymentPaid)
	if r.gateway == nil {
		return "", fmt.Errorf("invoice payment %s: no gateway configured to fetch invoice", payment.PaymentId)
	}

	invoice, err := r.gateway.GetInvoice(ctx, payment.InvoiceRef)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			zap.L().Warn("Invoice for payment not found",
				zap.String("payment", payment.PaymentId),
				zap.String("invoice", payment.InvoiceRef))
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("failed to fetch invoice %s: %w", payment.InvoiceRef, err)
	}
	return r.applyInvoice(ctx, invoice)
}

// applyInvoice extends the entitlement of the subscription an invoice paid for.
func (r *Reconciler) applyInvoice(ctx context.Context, invoice *models.GatewayInvoice) (Outcome, error) {
	if invoice.SubscriptionRef == "" {
		zap.L().Info("Invoice without subscription, nothing to renew", zap.String("invoice", invoice.Id))
		return OutcomeIgnored, nil
	}

	paidAt := invoice.Created
	if paidAt.IsZero() {
		paidAt = r.clock.Now()
	}
	amount := decimal.New(invoice.AmountPaid, -2)
	payCommission := invoice.BillingReason != billingReasonCreate
	purchase := func(accountId string, secondMonth bool) *referral.Purchase {
		if !payCommission {
			return nil
		}
		return &referral.Purchase{
			AccountId:             accountId,
			Amount:                amount,
			IsSubscription:        true,
			IsSecondMonth:         secondMonth,
			ExternalTransactionId: invoice.Id,
			OccurredAt:            paidAt,
		}
	}
	replayed := func(log *models.TransactionLog) *referral.Purchase {
		return purchase(log.AccountId, log.Metadata["secondMonth"] == "true")
	}

	done, err := r.alreadyFinal(ctx, invoice.Id)
	if err != nil {
		return "", err
	}
	if done {
		return r.replay(ctx, invoice.Id, replayed)
	}

	customerRef := invoice.CustomerRef
	periodEnd := invoice.PeriodEnd
	if r.gateway != nil {
		sub, err := r.gateway.GetSubscription(ctx, invoice.SubscriptionRef)
		if err != nil {
			zap.L().Warn("Unable to fetch subscription for invoice",
				zap.String("invoice", invoice.Id),
				zap.String("subscription", invoice.SubscriptionRef),
				zap.Error(err))
		} else {
			if sub.CustomerRef != "" {
				customerRef = sub.CustomerRef
			}
			if sub.CurrentPeriodEnd != nil {
				periodEnd = sub.CurrentPeriodEnd
			}
		}
	}

	account, byEmail, err := r.resolveAccount(ctx, invoice.SubscriptionRef, customerRef, invoice.CustomerEmail)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			zap.L().Warn("No account for paid invoice",
				zap.String("invoice", invoice.Id),
				zap.String("subscription", invoice.SubscriptionRef),
				zap.String("customer", customerRef))
			return OutcomeIgnored, nil
		}
		return "", err
	}

	secondMonth := premium.IsSecondMonth(account.PremiumStart, paidAt)
	end := paidAt.Add(renewalFallback)
	if periodEnd != nil {
		end = *periodEnd
	}

	updated, err := r.accounts.ApplyCheckout(ctx, store.CheckoutParams{
		AccountId:  account.Id,
		SessionRef: invoice.Id,
		Log: &models.TransactionLog{
			TransactionType: models.TransactionSubscription,
			ItemType:        premiumItemType,
			PackageType:     string(account.PremiumPlan),
			Amount:          1,
			Price:           amount,
			Status:          models.TxCompleted,
			Metadata: map[string]string{
				"subscriptionRef": invoice.SubscriptionRef,
				"billingReason":   invoice.BillingReason,
				"secondMonth":     strconv.FormatBool(secondMonth),
			},
		},
		Mutate: func(a *models.Account) error {
			if byEmail || a.GatewayCustomerRef == "" {
				a.GatewayCustomerRef = customerRef
			}
			if a.GatewaySubscriptionRef == "" {
				a.GatewaySubscriptionRef = invoice.SubscriptionRef
			}
			if a.PremiumPlan == models.PlanNone {
				// plan is only known from the checkout session
				return errNoPlan
			}
			if a.PremiumStart == nil {
				a.PremiumStart = &paidAt
			}
			if a.PremiumEnd == nil || end.After(*a.PremiumEnd) {
				a.PremiumEnd = &end
			}
			a.PremiumActive = true
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyApplied) {
			return r.replay(ctx, invoice.Id, replayed)
		}
		if errors.Is(err, errNoPlan) {
			zap.L().Warn("Invoice paid before plan was recorded",
				zap.String("account_id", account.Id),
				zap.String("invoice", invoice.Id))
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("failed to apply invoice %s: %w", invoice.Id, err)
	}

	zap.L().Info("Subscription renewed",
		zap.String("account_id", updated.Id),
		zap.String("invoice", invoice.Id),
		zap.Bool("second_month", secondMonth),
		zap.Timep("premium_end", updated.PremiumEnd))

	if err := r.commission(ctx, purchase(updated.Id, secondMonth)); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// handlePaymentFailed only records the failure; the gateway owns retries and the
// entitlement lapses on its own at premium end.
func (r *Reconciler) handlePaymentFailed(ctx context.Context, event Event) (Outcome, error) {
	invoice := event.(*InvoicePaymentFailed).Invoice
	zap.L().Warn("Subscription payment failed",
		zap.String("invoice", invoice.Id),
		zap.String("customer", invoice.CustomerRef),
		zap.String("subscription", invoice.SubscriptionRef),
		zap.String("amount_due", decimal.New(invoice.AmountDue, -2).StringFixed(2)),
		zap.Int("attempt_count", invoice.AttemptCount))
	return OutcomeIgnored, nil
}
