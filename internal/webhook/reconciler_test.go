package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"premium-referral-go/internal/clock"
	"premium-referral-go/internal/database"
	"premium-referral-go/internal/gateway"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/referral"
	"premium-referral-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	subscriptions map[string]*models.GatewaySubscription
	customers     map[string]*models.GatewayCustomer
	invoices      map[string]*models.GatewayInvoice
	cancelled     []string
	cancelErr     error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		subscriptions: map[string]*models.GatewaySubscription{},
		customers:     map[string]*models.GatewayCustomer{},
		invoices:      map[string]*models.GatewayInvoice{},
	}
}

func (g *fakeGateway) GetSubscription(ctx context.Context, ref string) (*models.GatewaySubscription, error) {
	if sub, ok := g.subscriptions[ref]; ok {
		return sub, nil
	}
	return nil, gateway.ErrNotFound
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, ref string) error {
	g.cancelled = append(g.cancelled, ref)
	return g.cancelErr
}

func (g *fakeGateway) GetCustomer(ctx context.Context, ref string) (*models.GatewayCustomer, error) {
	if customer, ok := g.customers[ref]; ok {
		return customer, nil
	}
	return nil, gateway.ErrNotFound
}

func (g *fakeGateway) GetInvoice(ctx context.Context, ref string) (*models.GatewayInvoice, error) {
	if invoice, ok := g.invoices[ref]; ok {
		return invoice, nil
	}
	return nil, gateway.ErrNotFound
}

type flakyCommissions struct {
	next     Commissions
	failures int
}

func (f *flakyCommissions) Process(ctx context.Context, p referral.Purchase) (*models.ReferralEarning, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("ledger unavailable")
	}
	return f.next.Process(ctx, p)
}

type fixture struct {
	db         *database.Service
	clock      *clock.Fake
	gateway    *fakeGateway
	reconciler *Reconciler
	referrer   *models.Account
	referred   *models.Account
}

func newFixture(t *testing.T, program models.ReferralProgram) *fixture {
	t.Helper()
	return newFixtureWith(t, program, nil)
}

func newFixtureWith(t *testing.T, program models.ReferralProgram, wrap func(Commissions) Commissions) *fixture {
	t.Helper()
	ctx := context.Background()
	fake := clock.NewFake(testNow)
	db, err := database.NewMemoryService(ctx, fake)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	referrer, err := db.CreateAccount(ctx, store.CreateAccountParams{
		Email:           "a@example.com",
		ReferralProgram: program,
		RegistrationIP:  "198.51.100.1",
		CreatedAt:       testNow.AddDate(0, -2, 0),
	})
	if err != nil {
		t.Fatalf("CreateAccount referrer failed: %v", err)
	}
	referred, err := db.CreateAccount(ctx, store.CreateAccountParams{
		Email:               "b@example.com",
		ReferredByAccountId: referrer.Id,
		RegistrationIP:      "203.0.113.7",
		CreatedAt:           testNow.Add(-24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateAccount referred failed: %v", err)
	}

	var commissions Commissions = referral.NewCalculator(db, db, nil, fake)
	if wrap != nil {
		commissions = wrap(commissions)
	}
	gw := newFakeGateway()
	reconciler, err := NewReconciler(Params{
		Accounts:    db,
		Ledger:      db,
		Gateway:     gw,
		Commissions: commissions,
		Clock:       fake,
	})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}

	return &fixture{
		db:         db,
		clock:      fake,
		gateway:    gw,
		reconciler: reconciler,
		referrer:   referrer,
		referred:   referred,
	}
}

func (f *fixture) deliver(t *testing.T, eventType string, object map[string]any) (Outcome, error) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_test",
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("Failed to encode payload: %v", err)
	}
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	return f.reconciler.HandleGatewayEvent(context.Background(), evt)
}

func (f *fixture) mustDeliver(t *testing.T, eventType string, object map[string]any, want Outcome) {
	t.Helper()
	outcome, err := f.deliver(t, eventType, object)
	if err != nil {
		t.Fatalf("%s failed: %v", eventType, err)
	}
	if outcome != want {
		t.Fatalf("Expected outcome %s for %s, got %s", want, eventType, outcome)
	}
}

func (f *fixture) account(t *testing.T, id string) *models.Account {
	t.Helper()
	account, err := f.db.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	return account
}

func (f *fixture) earnings(t *testing.T) []models.ReferralEarning {
	t.Helper()
	earnings, err := f.db.ListEarnings(context.Background(), store.EarningFilter{ReferrerId: f.referrer.Id})
	if err != nil {
		t.Fatalf("ListEarnings failed: %v", err)
	}
	return earnings
}

// makePremium puts account on plan with the given window and gateway refs.
func (f *fixture) makePremium(t *testing.T, accountId string, plan models.PlanType, start, end time.Time, subscriptionRef, customerRef string) {
	t.Helper()
	_, err := f.db.UpdateAccount(context.Background(), accountId, func(a *models.Account) error {
		a.PremiumActive = true
		a.PremiumPlan = plan
		a.PremiumStart = &start
		a.PremiumEnd = &end
		a.GatewaySubscriptionRef = subscriptionRef
		a.GatewayCustomerRef = customerRef
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
}

func purchaseCheckout(sessionId, accountId string, metadata map[string]string) map[string]any {
	meta := map[string]string{"accountId": accountId}
	for k, v := range metadata {
		meta[k] = v
	}
	return map[string]any{"id": sessionId, "customer": "cus_b", "metadata": meta}
}

func subscriptionCheckout(sessionId, accountId, plan, subscriptionRef string, amountTotal int64, upgrade bool) map[string]any {
	meta := map[string]string{"accountId": accountId, "planType": plan, "planName": plan}
	if upgrade {
		meta["isUpgrade"] = "true"
	}
	return map[string]any{
		"id":           sessionId,
		"customer":     "cus_b",
		"subscription": subscriptionRef,
		"amount_total": amountTotal,
		"metadata":     meta,
	}
}

func invoiceObject(id, subscriptionRef, customerRef string, amountPaid int64, created, periodEnd time.Time, billingReason string) map[string]any {
	return map[string]any{
		"id":             id,
		"subscription":   subscriptionRef,
		"customer":       customerRef,
		"amount_paid":    amountPaid,
		"created":        created.Unix(),
		"billing_reason": billingReason,
		"lines": map[string]any{"data": []any{
			map[string]any{"period": map[string]any{"end": periodEnd.Unix()}},
		}},
	}
}

func TestCheckout_PurchaseCreditsOnce(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	checkout := purchaseCheckout("cs_coins", f.referred.Id, map[string]string{
		"itemType": "coins", "packageType": "basic", "amount": "250", "price": "2.99",
	})

	f.mustDeliver(t, string(KindCheckoutCompleted), checkout, OutcomeApplied)
	f.mustDeliver(t, string(KindCheckoutCompleted), checkout, OutcomeDuplicate)

	account := f.account(t, f.referred.Id)
	if account.CoinBalance != 250 {
		t.Errorf("Expected 250 coins after replay, got %d", account.CoinBalance)
	}

	log, err := f.db.GetTransactionLogBySession(context.Background(), "cs_coins")
	if err != nil {
		t.Fatalf("GetTransactionLogBySession failed: %v", err)
	}
	if log.Status != models.TxCompleted || log.PackageType != "basic" {
		t.Errorf("Unexpected log %+v", log)
	}

	earnings := f.earnings(t)
	if len(earnings) != 1 {
		t.Fatalf("Expected 1 earning, got %d", len(earnings))
	}
	if want := decimal.RequireFromString("0.1495"); !earnings[0].Amount.Equal(want) {
		t.Errorf("Expected earning %s, got %s", want, earnings[0].Amount)
	}
	if earnings[0].ExternalTransactionId != "cs_coins" {
		t.Errorf("Expected session as external transaction, got %q", earnings[0].ExternalTransactionId)
	}
}

func TestCheckout_PriceTamperingIsViolation(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	checkout := purchaseCheckout("cs_cheap", f.referred.Id, map[string]string{
		"itemType": "coins", "packageType": "basic", "amount": "250", "price": "0.01",
	})

	f.mustDeliver(t, string(KindCheckoutCompleted), checkout, OutcomeViolation)
	f.mustDeliver(t, string(KindCheckoutCompleted), checkout, OutcomeDuplicate)

	if account := f.account(t, f.referred.Id); account.CoinBalance != 0 {
		t.Errorf("Expected balance unchanged, got %d", account.CoinBalance)
	}

	log, err := f.db.GetTransactionLogBySession(context.Background(), "cs_cheap")
	if err != nil {
		t.Fatalf("GetTransactionLogBySession failed: %v", err)
	}
	if log.Status != models.TxSecurityViolation {
		t.Errorf("Expected security_violation, got %s", log.Status)
	}
	if log.Metadata["securityViolationType"] != "price_mismatch" {
		t.Errorf("Expected price_mismatch, got %q", log.Metadata["securityViolationType"])
	}
	if log.Metadata["expectedPrice"] != "2.99" {
		t.Errorf("Expected expectedPrice 2.99, got %q", log.Metadata["expectedPrice"])
	}
	if len(f.earnings(t)) != 0 {
		t.Error("Violation must not produce a commission")
	}
}

func TestCheckout_DiscountRequiresPremium(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	discount := map[string]string{
		"itemType": "credits", "packageType": "letter-credits", "amount": "1",
		"price": "2.39", "priceType": "discount",
	}

	f.mustDeliver(t, string(KindCheckoutCompleted), purchaseCheckout("cs_d1", f.referred.Id, discount), OutcomeViolation)
	log, err := f.db.GetTransactionLogBySession(context.Background(), "cs_d1")
	if err != nil {
		t.Fatalf("GetTransactionLogBySession failed: %v", err)
	}
	if log.Metadata["securityViolationType"] != "premium_discount_abuse" {
		t.Errorf("Expected premium_discount_abuse, got %q", log.Metadata["securityViolationType"])
	}
	if log.FailureReason != "Non-premium user attempted to use discount pricing" {
		t.Errorf("Unexpected reason %q", log.FailureReason)
	}

	f.makePremium(t, f.referred.Id, models.PlanMonthly, testNow.Add(-24*time.Hour), testNow.Add(29*24*time.Hour), "sub_b", "cus_b")
	f.mustDeliver(t, string(KindCheckoutCompleted), purchaseCheckout("cs_d2", f.referred.Id, discount), OutcomeApplied)
	if account := f.account(t, f.referred.Id); account.LetterCreditBalance != 1 {
		t.Errorf("Expected 1 letter credit, got %d", account.LetterCreditBalance)
	}
}

func TestCheckout_UnknownAccountIgnored(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	f.mustDeliver(t, string(KindCheckoutCompleted),
		subscriptionCheckout("cs_ghost", "no-such-account", "monthly", "sub_x", 699, false), OutcomeIgnored)
}

func TestCheckout_SubscriptionActivatesOnce(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	checkout := subscriptionCheckout("cs_sub", f.referred.Id, "monthly", "sub_b", 699, false)

	f.mustDeliver(t, string(KindCheckoutCompleted), checkout, OutcomeApplied)
	f.clock.Advance(time.Hour)
	f.mustDeliver(t, string(KindCheckoutCompleted), checkout, OutcomeDuplicate)

	account := f.account(t, f.referred.Id)
	if !account.PremiumActive || account.PremiumPlan != models.PlanMonthly || account.PremiumCancelled {
		t.Errorf("Unexpected premium state %+v", account)
	}
	if account.PremiumStart == nil || !account.PremiumStart.Equal(testNow) {
		t.Errorf("Expected start %s, got %v", testNow, account.PremiumStart)
	}
	if want := testNow.Add(30 * 24 * time.Hour); account.PremiumEnd == nil || !account.PremiumEnd.Equal(want) {
		t.Errorf("Expected end %s, got %v", want, account.PremiumEnd)
	}
	if account.GatewaySubscriptionRef != "sub_b" || account.GatewayCustomerRef != "cus_b" {
		t.Errorf("Expected refs stored, got %q / %q", account.GatewaySubscriptionRef, account.GatewayCustomerRef)
	}

	earnings := f.earnings(t)
	if len(earnings) != 1 {
		t.Fatalf("Expected 1 earning, got %d", len(earnings))
	}
	e := earnings[0]
	if e.EarningType != models.EarningPercentage || !e.Amount.Equal(decimal.RequireFromString("0.3495")) {
		t.Errorf("Expected percentage 0.3495, got %s %s", e.EarningType, e.Amount)
	}
	if e.Status != models.EarningPending {
		t.Errorf("Expected pending, got %s", e.Status)
	}
}

func TestCheckout_UpgradeKeepsPaidTime(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	oldEnd := testNow.Add(20 * 24 * time.Hour)
	f.makePremium(t, f.referred.Id, models.PlanMonthly, testNow.Add(-10*24*time.Hour), oldEnd, "sub_old", "cus_b")
	f.gateway.cancelErr = errors.New("gateway down")

	f.mustDeliver(t, string(KindCheckoutCompleted),
		subscriptionCheckout("cs_up", f.referred.Id, "yearly", "sub_new", 5999, true), OutcomeApplied)

	if len(f.gateway.cancelled) != 1 || f.gateway.cancelled[0] != "sub_old" {
		t.Errorf("Expected old subscription cancel attempt, got %v", f.gateway.cancelled)
	}
	account := f.account(t, f.referred.Id)
	if account.PremiumPlan != models.PlanYearly || account.GatewaySubscriptionRef != "sub_new" {
		t.Errorf("Expected yearly on sub_new, got %s on %s", account.PremiumPlan, account.GatewaySubscriptionRef)
	}
	if account.PremiumEnd == nil || account.PremiumEnd.Before(oldEnd) {
		t.Fatalf("Upgrade reduced paid time: %v < %s", account.PremiumEnd, oldEnd)
	}
	if want := oldEnd.Add(365 * 24 * time.Hour); !account.PremiumEnd.Equal(want) {
		t.Errorf("Expected end %s, got %s", want, account.PremiumEnd)
	}

	log, err := f.db.GetTransactionLogBySession(context.Background(), "cs_up")
	if err != nil {
		t.Fatalf("GetTransactionLogBySession failed: %v", err)
	}
	if log.TransactionType != models.TransactionUpgrade {
		t.Errorf("Expected upgrade log, got %s", log.TransactionType)
	}
}

func TestInvoice_Offer10PaysOnlyFirstPayment(t *testing.T) {
	f := newFixture(t, models.ProgramOffer10)

	f.mustDeliver(t, string(KindCheckoutCompleted),
		subscriptionCheckout("cs_first", f.referred.Id, "monthly", "sub_b", 699, false), OutcomeApplied)
	// first invoice arrives alongside the checkout session
	f.mustDeliver(t, string(KindInvoicePaid),
		invoiceObject("in_1", "sub_b", "cus_b", 699, testNow, testNow.Add(30*24*time.Hour), "subscription_create"), OutcomeApplied)

	renewal := testNow.Add(30 * 24 * time.Hour)
	f.clock.Set(renewal)
	f.mustDeliver(t, string(KindInvoicePaid),
		invoiceObject("in_2", "sub_b", "cus_b", 699, renewal, renewal.Add(30*24*time.Hour), "subscription_cycle"), OutcomeApplied)

	earnings := f.earnings(t)
	if len(earnings) != 1 {
		t.Fatalf("Expected exactly one earning, got %d", len(earnings))
	}
	if earnings[0].EarningType != models.EarningSignupBonus || !earnings[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected $10 signup bonus, got %s %s", earnings[0].EarningType, earnings[0].Amount)
	}

	account := f.account(t, f.referred.Id)
	if want := renewal.Add(30 * 24 * time.Hour); account.PremiumEnd == nil || !account.PremiumEnd.Equal(want) {
		t.Errorf("Expected end extended to %s, got %v", want, account.PremiumEnd)
	}

	log, err := f.db.GetTransactionLogBySession(context.Background(), "in_2")
	if err != nil {
		t.Fatalf("GetTransactionLogBySession failed: %v", err)
	}
	if log.Metadata["secondMonth"] != "true" {
		t.Errorf("Expected renewal flagged as second month, got %q", log.Metadata["secondMonth"])
	}
}

func TestInvoice_StandardRenewalPaysAndReplaysOnce(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	f.makePremium(t, f.referred.Id, models.PlanMonthly, testNow.Add(-30*24*time.Hour), testNow, "sub_b", "cus_b")
	periodEnd := testNow.Add(30 * 24 * time.Hour)
	f.gateway.subscriptions["sub_b"] = &models.GatewaySubscription{Id: "sub_b", CustomerRef: "cus_b", CurrentPeriodEnd: &periodEnd}

	invoice := invoiceObject("in_r", "sub_b", "cus_b", 699, testNow, testNow.Add(time.Hour), "subscription_cycle")
	f.mustDeliver(t, string(KindInvoicePaid), invoice, OutcomeApplied)
	f.mustDeliver(t, string(KindInvoicePaid), invoice, OutcomeDuplicate)

	account := f.account(t, f.referred.Id)
	if account.PremiumEnd == nil || !account.PremiumEnd.Equal(periodEnd) {
		t.Errorf("Expected gateway period end %s, got %v", periodEnd, account.PremiumEnd)
	}
	earnings := f.earnings(t)
	if len(earnings) != 1 || earnings[0].ExternalTransactionId != "in_r" {
		t.Fatalf("Expected one earning for in_r, got %+v", earnings)
	}
}

func TestInvoice_NeverShortensEntitlement(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	farEnd := testNow.Add(300 * 24 * time.Hour)
	f.makePremium(t, f.referred.Id, models.PlanYearly, testNow.Add(-65*24*time.Hour), farEnd, "sub_b", "cus_b")

	f.mustDeliver(t, string(KindInvoicePaid),
		invoiceObject("in_short", "sub_b", "cus_b", 699, testNow, testNow.Add(30*24*time.Hour), "subscription_cycle"), OutcomeApplied)

	if account := f.account(t, f.referred.Id); !account.PremiumEnd.Equal(farEnd) {
		t.Errorf("Expected end to stay %s, got %s", farEnd, account.PremiumEnd)
	}
}

func TestInvoice_UnresolvedIsIgnored(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)

	f.mustDeliver(t, string(KindInvoicePaid),
		invoiceObject("in_orphan", "sub_unknown", "cus_unknown", 699, testNow, testNow.Add(time.Hour), ""), OutcomeIgnored)
	f.mustDeliver(t, string(KindInvoicePaid),
		map[string]any{"id": "in_nosub", "customer": "cus_b", "amount_paid": 100}, OutcomeIgnored)

	if _, err := f.db.GetTransactionLogBySession(context.Background(), "in_orphan"); !errors.Is(err, store.ErrTransactionLogNotFound) {
		t.Errorf("Expected no log for unresolved invoice, got %v", err)
	}
}

func TestInvoice_NoPlanPaysNoCommission(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	_, err := f.db.UpdateAccount(context.Background(), f.referred.Id, func(a *models.Account) error {
		a.GatewaySubscriptionRef = "sub_b"
		a.GatewayCustomerRef = "cus_b"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}

	invoice := invoiceObject("in_early", "sub_b", "cus_b", 699, testNow, testNow.Add(30*24*time.Hour), "subscription_cycle")
	f.mustDeliver(t, string(KindInvoicePaid), invoice, OutcomeIgnored)

	if account := f.account(t, f.referred.Id); account.PremiumActive || account.PremiumEnd != nil {
		t.Errorf("Expected no entitlement without a plan, got %+v", account)
	}
	if earnings := f.earnings(t); len(earnings) != 0 {
		t.Errorf("Expected no commission without a plan, got %+v", earnings)
	}
	if _, err := f.db.GetTransactionLogBySession(context.Background(), "in_early"); !errors.Is(err, store.ErrTransactionLogNotFound) {
		t.Errorf("Expected no log for ignored invoice, got %v", err)
	}

	// once the plan is recorded the same invoice applies
	f.makePremium(t, f.referred.Id, models.PlanMonthly, testNow.Add(-30*24*time.Hour), testNow, "sub_b", "cus_b")
	f.mustDeliver(t, string(KindInvoicePaid), invoice, OutcomeApplied)
	if earnings := f.earnings(t); len(earnings) != 1 || earnings[0].ExternalTransactionId != "in_early" {
		t.Errorf("Expected one earning for in_early, got %+v", earnings)
	}
}

func TestInvoice_EmailFallbackBackfillsRefs(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	f.makePremium(t, f.referred.Id, models.PlanMonthly, testNow.Add(-30*24*time.Hour), testNow, "", "")
	f.gateway.customers["cus_new"] = &models.GatewayCustomer{Id: "cus_new", Email: "B@example.com"}

	f.mustDeliver(t, string(KindInvoicePaid),
		invoiceObject("in_mail", "sub_new", "cus_new", 699, testNow, testNow.Add(30*24*time.Hour), "subscription_cycle"), OutcomeApplied)

	account := f.account(t, f.referred.Id)
	if account.GatewayCustomerRef != "cus_new" || account.GatewaySubscriptionRef != "sub_new" {
		t.Errorf("Expected refs backfilled, got %q / %q", account.GatewayCustomerRef, account.GatewaySubscriptionRef)
	}
	if want := testNow.Add(30 * 24 * time.Hour); !account.PremiumEnd.Equal(want) {
		t.Errorf("Expected end %s, got %s", want, account.PremiumEnd)
	}

	found, err := f.db.FindAccountByGatewayRef(context.Background(), "sub_new", "")
	if err != nil || found.Id != f.referred.Id {
		t.Errorf("Expected lookup by backfilled ref, got %v", err)
	}
}

func TestInvoicePaymentPaid_FetchesInvoice(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	f.makePremium(t, f.referred.Id, models.PlanMonthly, testNow.Add(-30*24*time.Hour), testNow, "sub_b", "cus_b")
	end := testNow.Add(30 * 24 * time.Hour)
	f.gateway.invoices["in_alias"] = &models.GatewayInvoice{
		Id: "in_alias", SubscriptionRef: "sub_b", CustomerRef: "cus_b",
		AmountPaid: 699, Created: testNow, PeriodEnd: &end,
	}

	f.mustDeliver(t, string(KindInvoicePaymentPaid), map[string]any{"id": "inpay_1", "invoice": "in_alias"}, OutcomeApplied)
	f.mustDeliver(t, string(KindInvoicePaymentPaid), map[string]any{"id": "inpay_2", "invoice": "in_missing"}, OutcomeIgnored)

	if account := f.account(t, f.referred.Id); !account.PremiumEnd.Equal(end) {
		t.Errorf("Expected end %s, got %s", end, account.PremiumEnd)
	}
}

func TestPaymentFailed_KeepsEntitlement(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	end := testNow.Add(5 * 24 * time.Hour)
	f.makePremium(t, f.referred.Id, models.PlanMonthly, testNow.Add(-25*24*time.Hour), end, "sub_b", "cus_b")

	f.mustDeliver(t, string(KindInvoicePaymentFailed), map[string]any{
		"id": "in_fail", "subscription": "sub_b", "customer": "cus_b", "amount_due": 699, "attempt_count": 2,
	}, OutcomeIgnored)

	account := f.account(t, f.referred.Id)
	if !account.PremiumActive || account.PremiumCancelled || !account.PremiumEnd.Equal(end) {
		t.Errorf("Payment failure must not change entitlement: %+v", account)
	}
}

func TestSubscriptionDeleted(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)
	end := testNow.Add(12 * 24 * time.Hour)
	f.makePremium(t, f.referred.Id, models.PlanMonthly, testNow.Add(-18*24*time.Hour), end, "sub_b", "cus_b")

	// an upgrade replaced sub_old; its deletion is not a cancellation
	f.mustDeliver(t, string(KindSubscriptionDeleted), map[string]any{"id": "sub_old", "customer": "cus_b"}, OutcomeIgnored)
	if f.account(t, f.referred.Id).PremiumCancelled {
		t.Fatal("Deleting a replaced subscription cancelled the account")
	}

	f.mustDeliver(t, string(KindSubscriptionDeleted), map[string]any{"id": "sub_b", "customer": "cus_b"}, OutcomeApplied)
	f.mustDeliver(t, string(KindSubscriptionDeleted), map[string]any{"id": "sub_b", "customer": "cus_b"}, OutcomeDuplicate)

	account := f.account(t, f.referred.Id)
	if !account.PremiumCancelled || !account.PremiumActive {
		t.Errorf("Expected cancelled but still active, got %+v", account)
	}
	if !account.PremiumEnd.Equal(end) {
		t.Errorf("Expected end untouched at %s, got %s", end, account.PremiumEnd)
	}

	f.mustDeliver(t, string(KindSubscriptionDeleted), map[string]any{"id": "sub_nobody", "customer": "cus_nobody"}, OutcomeIgnored)
}

func TestHandle_CommissionFailureHealsOnRedelivery(t *testing.T) {
	f := newFixtureWith(t, models.ProgramStandard, func(next Commissions) Commissions {
		return &flakyCommissions{next: next, failures: 1}
	})
	checkout := subscriptionCheckout("cs_retry", f.referred.Id, "monthly", "sub_b", 699, false)

	if _, err := f.deliver(t, string(KindCheckoutCompleted), checkout); err == nil {
		t.Fatal("Expected commission failure to surface")
	}
	if !f.account(t, f.referred.Id).PremiumActive {
		t.Fatal("Expected activation committed before commission")
	}
	if len(f.earnings(t)) != 0 {
		t.Fatal("Expected no earning after failure")
	}

	f.mustDeliver(t, string(KindCheckoutCompleted), checkout, OutcomeDuplicate)
	f.mustDeliver(t, string(KindCheckoutCompleted), checkout, OutcomeDuplicate)
	if got := len(f.earnings(t)); got != 1 {
		t.Errorf("Expected exactly one earning after redelivery, got %d", got)
	}
}

func TestHandleGatewayEvent_MalformedAndUnknown(t *testing.T) {
	f := newFixture(t, models.ProgramStandard)

	if _, err := f.reconciler.HandleGatewayEvent(context.Background(), stripe.Event{ID: "evt_untyped"}); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("Expected ErrMalformedEvent, got %v", err)
	}
	f.mustDeliver(t, "customer.updated", map[string]any{"id": "cus_b"}, OutcomeIgnored)
}
