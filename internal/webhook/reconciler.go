package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"premium-referral-go/internal/catalog"
	"premium-referral-go/internal/clock"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/referral"
	"premium-referral-go/internal/store"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

// Outcome is the business result of handling one event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeViolation Outcome = "violation"
)

// Gateway is the subset of the payment gateway API the handlers call back into.
type Gateway interface {
	GetSubscription(ctx context.Context, subscriptionRef string) (*models.GatewaySubscription, error)
	CancelSubscription(ctx context.Context, subscriptionRef string) error
	GetCustomer(ctx context.Context, customerRef string) (*models.GatewayCustomer, error)
	GetInvoice(ctx context.Context, invoiceRef string) (*models.GatewayInvoice, error)
}

type Commissions interface {
	Process(ctx context.Context, p referral.Purchase) (*models.ReferralEarning, error)
}

type Observer interface {
	RecordEvent(kind, outcome string, duration time.Duration)
	RecordViolation(violationType string)
	RecordEarning(earningType models.EarningType)
}

type nopObserver struct{}

func (nopObserver) RecordEvent(string, string, time.Duration) {}
func (nopObserver) RecordViolation(string)                    {}
func (nopObserver) RecordEarning(models.EarningType)          {}

// Params wires a Reconciler. Gateway, Commissions and Observer are optional.
type Params struct {
	Accounts    store.AccountRepository
	Ledger      store.LedgerRepository
	Gateway     Gateway
	Commissions Commissions
	Catalog     *catalog.Catalog
	Observer    Observer
	Clock       clock.Clock
}

type handlerFunc func(ctx context.Context, event Event) (Outcome, error)

// Reconciler applies gateway events to accounts and the ledger. Every handler is
// safe to run concurrently and tolerates redelivery of the same event.
type Reconciler struct {
	accounts    store.AccountRepository
	ledger      store.LedgerRepository
	gateway     Gateway
	commissions Commissions
	catalog     *catalog.Catalog
	observer    Observer
	clock       clock.Clock
	handlers    map[Kind]handlerFunc
}

func NewReconciler(params Params) (*Reconciler, error) {
	if params.Accounts == nil || params.Ledger == nil {
		return nil, fmt.Errorf("reconciler requires account and ledger repositories")
	}
	r := &Reconciler{
		accounts:    params.Accounts,
		ledger:      params.Ledger,
		gateway:     params.Gateway,
		commissions: params.Commissions,
		catalog:     params.Catalog,
		observer:    params.Observer,
		clock:       params.Clock,
	}
	if r.catalog == nil {
		r.catalog = catalog.Default()
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.clock == nil {
		r.clock = clock.System{}
	}
	r.handlers = map[Kind]handlerFunc{
		KindCheckoutCompleted:    r.handleCheckoutCompleted,
		KindInvoicePaid:          r.handleInvoicePaid,
		KindInvoicePaymentPaid:   r.handleInvoicePaymentPaid,
		KindInvoicePaymentFailed: r.handlePaymentFailed,
		KindSubscriptionDeleted:  r.handleSubscriptionDeleted,
	}
	return r, nil
}

// HandleGatewayEvent applies an event already authenticated by a Verifier.
func (r *Reconciler) HandleGatewayEvent(ctx context.Context, evt stripe.Event) (Outcome, error) {
	event, err := FromStripe(evt)
	if err != nil {
		zap.L().Warn("Rejected gateway event", zap.String("event_id", evt.ID), zap.Error(err))
		return "", err
	}
	return r.Handle(ctx, event)
}

// Handle applies a decoded event. Errors are infrastructure failures the gateway should retry.
func (r *Reconciler) Handle(ctx context.Context, event Event) (Outcome, error) {
	started := time.Now()
	kind := string(event.Kind())

	logger := zap.L()
	if rc := models.GetRequestContext(ctx); rc != nil {
		logger = logger.With(
			zap.String("request_id", rc.RequestId),
			zap.String("client_ip", rc.ClientIP),
			zap.String("user_agent", rc.UserAgent))
	}

	handler, ok := r.handlers[event.Kind()]
	if !ok {
		logger.Debug("Ignoring unhandled gateway event",
			zap.String("event_id", event.EventId()),
			zap.String("type", kind))
		r.observer.RecordEvent(kind, string(OutcomeIgnored), time.Since(started))
		return OutcomeIgnored, nil
	}

	outcome, err := handler(ctx, event)
	if err != nil {
		logger.Error("Failed to handle gateway event",
			zap.String("event_id", event.EventId()),
			zap.String("type", kind),
			zap.Error(err))
		r.observer.RecordEvent(kind, "error", time.Since(started))
		return "", err
	}

	logger.Info("Gateway event handled",
		zap.String("event_id", event.EventId()),
		zap.String("type", kind),
		zap.String("outcome", string(outcome)))
	r.observer.RecordEvent(kind, string(outcome), time.Since(started))
	return outcome, nil
}

// commission runs the calculator; a nil purchase means nothing is owed.
func (r *Reconciler) commission(ctx context.Context, purchase *referral.Purchase) error {
	if r.commissions == nil || purchase == nil {
		return nil
	}
	earning, err := r.commissions.Process(ctx, *purchase)
	if err != nil {
		return fmt.Errorf("failed to process referral commission: %w", err)
	}
	if earning != nil {
		r.observer.RecordEarning(earning.EarningType)
	}
	return nil
}

// replay handles a session whose log is already terminal. The commission is re-run
// for completed sessions so a delivery that failed after committing still pays out once.
func (r *Reconciler) replay(ctx context.Context, sessionRef string, purchase func(*models.TransactionLog) *referral.Purchase) (Outcome, error) {
	log, err := r.ledger.GetTransactionLogBySession(ctx, sessionRef)
	if err != nil {
		return "", fmt.Errorf("failed to load transaction log for %s: %w", sessionRef, err)
	}
	zap.L().Info("Gateway session already applied",
		zap.String("session", sessionRef),
		zap.String("status", string(log.Status)))
	if log.Status == models.TxCompleted {
		if err := r.commission(ctx, purchase(log)); err != nil {
			return "", err
		}
	}
	return OutcomeDuplicate, nil
}

func completedAt(log *models.TransactionLog) time.Time {
	if log.CompletedAt != nil {
		return *log.CompletedAt
	}
	return log.CreatedAt
}

// alreadyFinal reports whether the session's log has reached a terminal status.
func (r *Reconciler) alreadyFinal(ctx context.Context, sessionRef string) (bool, error) {
	log, err := r.ledger.GetTransactionLogBySession(ctx, sessionRef)
	if err != nil {
		if errors.Is(err, store.ErrTransactionLogNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load transaction log for %s: %w", sessionRef, err)
	}
	return log.Status.IsTerminal(), nil
}

// resolveAccount finds the owner of a gateway subscription or customer, falling back to
// the payer's email. byEmail reports whether the fallback was used.
func (r *Reconciler) resolveAccount(ctx context.Context, subscriptionRef, customerRef, email string) (account *models.Account, byEmail bool, err error) {
	account, err = r.accounts.FindAccountByGatewayRef(ctx, subscriptionRef, customerRef)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, false, err
	}

	if email == "" && customerRef != "" && r.gateway != nil {
		customer, err := r.gateway.GetCustomer(ctx, customerRef)
		if err != nil {
			zap.L().Warn("Unable to fetch gateway customer",
				zap.String("customer", customerRef),
				zap.Error(err))
		} else {
			email = customer.Email
		}
	}
	if email == "" {
		return nil, false, fmt.Errorf("%w: subscription=%q customer=%q", store.ErrAccountNotFound, subscriptionRef, customerRef)
	}

	account, err = r.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	zap.L().Info("Resolved account by customer email",
		zap.String("account_id", account.Id),
		zap.String("customer", customerRef))
	return account, true, nil
}
