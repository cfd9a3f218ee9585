package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"premium-referral-go/internal/clock"
	"premium-referral-go/internal/database"
	"premium-referral-go/internal/fraud"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/reconcile"
	"premium-referral-go/internal/referral"
	"premium-referral-go/internal/store"
	"premium-referral-go/internal/wallet"
	"premium-referral-go/internal/webhook"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

const (
	testToken         = "s3cret"
	testWebhookSecret = "whsec_test"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testServer struct {
	server   *Server
	db       *database.Service
	checkout *fakeCheckout
	referrer *models.Account
	referred *models.Account
}

type fakeCheckout struct {
	requests []models.CheckoutSessionRequest
}

func (f *fakeCheckout) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.GatewayCheckoutSession, error) {
	f.requests = append(f.requests, req)
	id := fmt.Sprintf("cs_open_%d", len(f.requests))
	return &models.GatewayCheckoutSession{Id: id, URL: "https://checkout.example/" + id}, nil
}

func newTestVerifier(t *testing.T) *webhook.Verifier {
	t.Helper()
	verifier, err := webhook.NewVerifier(testWebhookSecret, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	return verifier
}

func newTestServer(t *testing.T, adminToken string) *testServer {
	t.Helper()
	ctx := context.Background()
	fake := clock.NewFake(testNow)
	db, err := database.NewMemoryService(ctx, fake)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	referrer, err := db.CreateAccount(ctx, store.CreateAccountParams{
		Email:          "a@example.com",
		RegistrationIP: "198.51.100.1",
		CreatedAt:      testNow.AddDate(0, -2, 0),
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

	reconciler, err := webhook.NewReconciler(webhook.Params{
		Accounts:    db,
		Ledger:      db,
		Commissions: referral.NewCalculator(db, db, nil, fake),
		Clock:       fake,
	})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}

	checkout := &fakeCheckout{}
	server, err := NewServer(Deps{
		Webhooks:  reconciler,
		Verifier:  newTestVerifier(t),
		Health:    db,
		Referrals: referral.NewService(db, nil),
		Premium:   premium.NewService(db, nil, fake),
		Wallet: wallet.NewService(wallet.Params{
			Accounts: db,
			Ledger:   db,
			Checkout: checkout,
			Clock:    fake,
		}),
		Fraud:      fraud.NewChecker(db, db, 2),
		Sweeper:    reconcile.NewJob(reconcile.JobConfig{Accounts: db, Clock: fake}),
		AdminToken: adminToken,
		MaxBodyKB:  1,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return &testServer{server: server, db: db, checkout: checkout, referrer: referrer, referred: referred}
}

func encode(t *testing.T, body any) []byte {
	t.Helper()
	switch b := body.(type) {
	case nil:
		return nil
	case []byte:
		return b
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	return raw
}

func (ts *testServer) send(t *testing.T, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, method, path, encode(t, body), header)
}

func signature(payload []byte, secret string, at time.Time) string {
	return stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

// deliver posts body to the gateway webhook signed with the endpoint secret.
func (ts *testServer) deliver(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload := encode(t, body)
	header := http.Header{}
	header.Set(webhook.SignatureHeader, signature(payload, testWebhookSecret, time.Now()))
	return ts.send(t, http.MethodPost, "/webhooks/gateway", payload, header)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func coinPurchase(sessionId, accountId string) map[string]any {
	return map[string]any{
		"id":   "evt_" + sessionId,
		"type": "checkout.session.completed",
		"data": map[string]any{"object": map[string]any{
			"id":       sessionId,
			"customer": "cus_b",
			"metadata": map[string]string{
				"accountId":   accountId,
				"itemType":    "coins",
				"packageType": "basic",
				"amount":      "250",
				"price":       "2.99",
			},
		}},
	}
}

// deliverPurchase posts a purchase and returns the resulting pending earning.
func (ts *testServer) deliverPurchase(t *testing.T, sessionId string) models.ReferralEarning {
	t.Helper()
	rec := ts.deliver(t, coinPurchase(sessionId, ts.referred.Id))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	earnings, err := ts.db.ListEarnings(context.Background(), store.EarningFilter{ReferrerId: ts.referrer.Id})
	if err != nil {
		t.Fatalf("ListEarnings failed: %v", err)
	}
	for _, e := range earnings {
		if e.ExternalTransactionId == sessionId {
			return e
		}
	}
	t.Fatalf("No earning recorded for %s", sessionId)
	return models.ReferralEarning{}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testToken)
	rec := ts.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestGatewayWebhook(t *testing.T) {
	ts := newTestServer(t, testToken)

	rec := ts.deliver(t, coinPurchase("cs_1", ts.referred.Id))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ack := decodeBody[models.WebhookAck](t, rec); !ack.Received {
		t.Error("Expected received=true")
	}

	// redelivery is acknowledged without a second credit
	rec = ts.deliver(t, coinPurchase("cs_1", ts.referred.Id))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on redelivery, got %d", rec.Code)
	}
	account, err := ts.db.GetAccount(context.Background(), ts.referred.Id)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.CoinBalance != 250 {
		t.Errorf("Expected 250 coins, got %d", account.CoinBalance)
	}

	// unknown account and unknown types are still acknowledged
	rec = ts.deliver(t, coinPurchase("cs_2", "ghost"))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for unknown account, got %d", rec.Code)
	}
	rec = ts.deliver(t, []byte(`{"id":"evt_x","type":"customer.updated","data":{"object":{}}}`))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for unhandled type, got %d", rec.Code)
	}
}

func TestGatewayWebhook_Rejections(t *testing.T) {
	ts := newTestServer(t, testToken)

	tests := []struct {
		name string
		body []byte
		want int
	}{
		{"not json", []byte(`{`), http.StatusBadRequest},
		{"missing type", []byte(`{"id":"evt_1","data":{"object":{}}}`), http.StatusBadRequest},
		{"too large", []byte(`{"id":"` + strings.Repeat("x", 2048) + `"}`), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.deliver(t, tt.body)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

type failingWebhooks struct{}

func (failingWebhooks) HandleGatewayEvent(context.Context, stripe.Event) (webhook.Outcome, error) {
	return "", errors.New("database is locked")
}

func TestNewServer_RequiresVerifier(t *testing.T) {
	ts := newTestServer(t, testToken)
	if _, err := NewServer(Deps{Webhooks: failingWebhooks{}, Health: ts.db}); err == nil {
		t.Error("Expected error without a webhook verifier")
	}
}

func TestGatewayWebhook_InfrastructureFailure(t *testing.T) {
	ts := newTestServer(t, testToken)
	server, err := NewServer(Deps{Webhooks: failingWebhooks{}, Verifier: newTestVerifier(t), Health: ts.db})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts.server = server

	rec := ts.deliver(t, coinPurchase("cs_1", ts.referred.Id))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 so the gateway retries, got %d", rec.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t, testToken)

	for _, token := range []string{"", "wrong"} {
		rec := ts.do(t, http.MethodGet, "/admin/earnings", nil, token)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: expected 401, got %d", token, rec.Code)
		}
	}
	rec := ts.do(t, http.MethodGet, "/admin/earnings", nil, testToken)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", rec.Code)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodGet, "/admin/earnings", nil, "anything")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when admin is disabled, got %d", rec.Code)
	}
}

func TestEarningWorkflow(t *testing.T) {
	ts := newTestServer(t, testToken)
	earning := ts.deliverPurchase(t, "cs_1")

	rec := ts.do(t, http.MethodGet, "/admin/earnings?status=pending&referrerId="+ts.referrer.Id, nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if listed := decodeBody[[]models.ReferralEarning](t, rec); len(listed) != 1 || listed[0].Id != earning.Id {
		t.Fatalf("Expected the pending earning, got %+v", listed)
	}

	// paying a pending earning skips approval
	rec = ts.do(t, http.MethodPost, "/admin/earnings/"+earning.Id+"/pay", nil, testToken)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 paying a pending earning, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/admin/earnings/"+earning.Id+"/approve", nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on approve, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[models.ReferralEarning](t, rec); got.Status != models.EarningApproved {
		t.Errorf("Expected approved, got %s", got.Status)
	}

	rec = ts.do(t, http.MethodPost, "/admin/referrers/"+ts.referrer.Id+"/payout", nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on payout, got %d", rec.Code)
	}
	payout := decodeBody[models.PayoutResult](t, rec)
	if len(payout.Paid) != 1 || payout.Total.String() != "0.1495" {
		t.Errorf("Expected one payout of 0.1495, got %d totalling %s", len(payout.Paid), payout.Total)
	}

	rec = ts.do(t, http.MethodPost, "/admin/earnings/"+earning.Id+"/cancel", nil, testToken)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 cancelling a paid earning, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/admin/earnings/missing/approve", nil, testToken)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown earning, got %d", rec.Code)
	}
}

func TestListEarnings_BadFilter(t *testing.T) {
	ts := newTestServer(t, testToken)
	for _, query := range []string{"status=owed", "since=yesterday", "limit=-1"} {
		rec := ts.do(t, http.MethodGet, "/admin/earnings?"+query, nil, testToken)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestFraudReport(t *testing.T) {
	ts := newTestServer(t, testToken)
	ts.deliverPurchase(t, "cs_1")

	rec := ts.do(t, http.MethodGet, "/admin/fraud", nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if reports := decodeBody[[]fraud.Report](t, rec); len(reports) != 1 {
		t.Errorf("Expected 1 report, got %d", len(reports))
	}

	rec = ts.do(t, http.MethodGet, "/admin/fraud?flagged=true", nil, testToken)
	if flagged := decodeBody[[]fraud.Report](t, rec); len(flagged) != 0 {
		t.Errorf("Expected no flagged reports, got %+v", flagged)
	}
}

func TestPremiumRoutes(t *testing.T) {
	ts := newTestServer(t, testToken)
	ctx := context.Background()
	start := testNow.Add(-10 * 24 * time.Hour)
	end := start.Add(premium.Duration(models.PlanMonthly))
	_, err := ts.db.UpdateAccount(ctx, ts.referred.Id, func(a *models.Account) error {
		a.PremiumActive = true
		a.PremiumPlan = models.PlanMonthly
		a.PremiumStart = &start
		a.PremiumEnd = &end
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	base := "/admin/accounts/" + ts.referred.Id + "/premium"

	rec := ts.do(t, http.MethodGet, base, nil, testToken)
	if status := decodeBody[premium.Status](t, rec); !status.Active || status.Plan != models.PlanMonthly {
		t.Fatalf("Expected active monthly, got %+v", status)
	}

	rec = ts.do(t, http.MethodPost, base+"/cancel", nil, testToken)
	if status := decodeBody[premium.Status](t, rec); !status.Cancelled || !status.Active {
		t.Errorf("Expected cancelled but still active, got %+v", status)
	}
	rec = ts.do(t, http.MethodPost, base+"/reactivate", nil, testToken)
	if status := decodeBody[premium.Status](t, rec); status.Cancelled {
		t.Errorf("Expected reactivated, got %+v", status)
	}

	rec = ts.do(t, http.MethodPost, base+"/plan", models.PlanChangeRequest{Plan: "yearly"}, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on upgrade, got %d: %s", rec.Code, rec.Body.String())
	}
	if status := decodeBody[premium.Status](t, rec); status.Plan != models.PlanYearly {
		t.Errorf("Expected yearly, got %s", status.Plan)
	}

	rec = ts.do(t, http.MethodPost, base+"/plan", models.PlanChangeRequest{Plan: "monthly"}, testToken)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 on downgrade, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, base+"/plan", models.PlanChangeRequest{Plan: "weekly"}, testToken)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 on unknown plan, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/admin/accounts/ghost/premium", nil, testToken)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown account, got %d", rec.Code)
	}
}

func TestGiftAndAudit(t *testing.T) {
	ts := newTestServer(t, testToken)
	ts.deliverPurchase(t, "cs_1")

	rec := ts.do(t, http.MethodPost, "/admin/gifts", models.GiftRequest{
		FromAccountId: ts.referred.Id,
		ToAccountId:   ts.referrer.Id,
		Amount:        100,
	}, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[models.GiftResult](t, rec)
	if result.SenderBalance != 150 || result.RecipientBalance != 100 {
		t.Errorf("Expected 150/100, got %d/%d", result.SenderBalance, result.RecipientBalance)
	}

	rec = ts.do(t, http.MethodPost, "/admin/gifts", models.GiftRequest{
		FromAccountId: ts.referred.Id,
		ToAccountId:   ts.referrer.Id,
		Amount:        1000,
	}, testToken)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 on insufficient balance, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/admin/balances/audit", nil, testToken)
	audits := decodeBody[[]models.BalanceAudit](t, rec)
	for _, audit := range audits {
		if !audit.Matches {
			t.Errorf("Unexpected mismatch: %+v", audit)
		}
	}
}

func TestRunSweep(t *testing.T) {
	ts := newTestServer(t, testToken)
	rec := ts.do(t, http.MethodPost, "/admin/sweep", nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	result := decodeBody[models.SweepResult](t, rec)
	if !result.RanAt.Equal(testNow) {
		t.Errorf("Expected sweep at %s, got %s", testNow, result.RanAt)
	}
}

func TestGatewayWebhook_RejectsUnauthenticated(t *testing.T) {
	ts := newTestServer(t, testToken)
	forged := encode(t, map[string]any{
		"id":   "evt_forged",
		"type": "checkout.session.completed",
		"data": map[string]any{"object": map[string]any{
			"id":           "cs_forged",
			"customer":     "cus_b",
			"subscription": "sub_forged",
			"amount_total": 0,
			"metadata":     map[string]string{"accountId": ts.referred.Id, "planType": "yearly", "planName": "yearly"},
		}},
	})

	tests := []struct {
		name      string
		signature string
	}{
		{"missing signature", ""},
		{"wrong secret", signature(forged, "whsec_guess", time.Now())},
		{"signature of another body", signature([]byte(`{"id":"evt_other"}`), testWebhookSecret, time.Now())},
		{"stale timestamp", signature(forged, testWebhookSecret, time.Now().Add(-10*time.Minute))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.signature != "" {
				header.Set(webhook.SignatureHeader, tt.signature)
			}
			rec := ts.send(t, http.MethodPost, "/webhooks/gateway", forged, header)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	account, err := ts.db.GetAccount(context.Background(), ts.referred.Id)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.PremiumActive || account.PremiumPlan != models.PlanNone {
		t.Errorf("Unsigned delivery granted premium: %+v", account)
	}
	if _, err := ts.db.GetTransactionLogBySession(context.Background(), "cs_forged"); !errors.Is(err, store.ErrTransactionLogNotFound) {
		t.Errorf("Expected no log for a rejected delivery, got %v", err)
	}
}

func TestInitiatePurchase_FinalizedByCheckout(t *testing.T) {
	ts := newTestServer(t, testToken)
	ctx := context.Background()
	path := "/admin/accounts/" + ts.referred.Id + "/purchases"

	rec := ts.do(t, http.MethodPost, path, models.PurchaseRequest{
		PackageType: "basic",
		ItemType:    "coins",
		Amount:      250,
		Price:       decimal.RequireFromString("2.99"),
	}, testToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	initiation := decodeBody[models.PurchaseInitiation](t, rec)

	opened, err := ts.db.GetTransactionLogBySession(ctx, initiation.SessionId)
	if err != nil {
		t.Fatalf("GetTransactionLogBySession failed: %v", err)
	}
	if opened.Id != initiation.TransactionId || opened.Status != models.TxInitiated {
		t.Fatalf("Expected initiated log %s, got %+v", initiation.TransactionId, opened)
	}

	// the gateway echoes the session metadata back on completion
	rec = ts.deliver(t, map[string]any{
		"id":   "evt_" + initiation.SessionId,
		"type": "checkout.session.completed",
		"data": map[string]any{"object": map[string]any{
			"id":       initiation.SessionId,
			"customer": "cus_b",
			"metadata": ts.checkout.requests[0].Metadata,
		}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	finalized, err := ts.db.GetTransactionLogBySession(ctx, initiation.SessionId)
	if err != nil {
		t.Fatalf("GetTransactionLogBySession failed: %v", err)
	}
	if finalized.Id != opened.Id || finalized.Status != models.TxCompleted || finalized.CompletedAt == nil {
		t.Errorf("Expected log %s completed in place, got %+v", opened.Id, finalized)
	}
	account, err := ts.db.GetAccount(ctx, ts.referred.Id)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.CoinBalance != 250 {
		t.Errorf("Expected 250 coins, got %d", account.CoinBalance)
	}

	// a tampered price never reaches the gateway
	rec = ts.do(t, http.MethodPost, path, models.PurchaseRequest{
		PackageType: "basic",
		ItemType:    "coins",
		Amount:      250,
		Price:       decimal.RequireFromString("0.99"),
	}, testToken)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a tampered price, got %d", rec.Code)
	}
	if len(ts.checkout.requests) != 1 {
		t.Errorf("Expected no checkout for a tampered price, got %d sessions", len(ts.checkout.requests))
	}
}

func TestAdjustBalance(t *testing.T) {
	ts := newTestServer(t, testToken)
	path := "/admin/accounts/" + ts.referrer.Id + "/balance"

	rec := ts.do(t, http.MethodPost, path, models.BalanceAdjustment{Delta: 40, Reason: "support"}, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if result := decodeBody[models.BalanceResult](t, rec); result.Balance != 40 || result.Kind != models.BalanceCoins {
		t.Errorf("Expected 40 coins, got %+v", result)
	}

	tests := []struct {
		name string
		path string
		adj  models.BalanceAdjustment
		want int
	}{
		{"overdraw", path, models.BalanceAdjustment{Delta: -41}, http.StatusConflict},
		{"zero delta", path, models.BalanceAdjustment{}, http.StatusBadRequest},
		{"unknown account", "/admin/accounts/ghost/balance", models.BalanceAdjustment{Delta: 1}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := ts.do(t, http.MethodPost, tt.path, tt.adj, testToken); rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
