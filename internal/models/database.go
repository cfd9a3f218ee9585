package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the subscription fields and balances the core mutates
type Account struct {
	Id                     string          `db:"id"`
	Email                  string          `db:"email"`
	Name                   string          `db:"name"`
	PremiumActive          bool            `db:"premium_active"`
	PremiumPlan            PlanType        `db:"premium_plan"`
	PremiumStart           *time.Time      `db:"premium_start"`
	PremiumEnd             *time.Time      `db:"premium_end"`
	PremiumCancelled       bool            `db:"premium_cancelled"`
	GatewayCustomerRef     string          `db:"gateway_customer_ref"`
	GatewaySubscriptionRef string          `db:"gateway_subscription_ref"`
	CoinBalance            int64           `db:"coin_balance"`
	LetterCreditBalance    int64           `db:"letter_credit_balance"`
	ReferredByAccountId    string          `db:"referred_by_account_id"`
	ReferralProgram        ReferralProgram `db:"referral_program"`
	RegistrationIP         string          `db:"registration_ip"`
	LastMonthlyCoins       *time.Time      `db:"last_monthly_coins"`
	Version                int64           `db:"version"`
	CreatedAt              time.Time       `db:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at"`
}

// Validate checks the subscription invariants that must hold before an account is persisted.
func (a *Account) Validate() error {
	if a.PremiumActive && (a.PremiumPlan == PlanNone || a.PremiumStart == nil) {
		return fmt.Errorf("account %s: active premium requires plan and start", a.Id)
	}
	if a.PremiumPlan != PlanNone && !a.PremiumPlan.Valid() {
		return fmt.Errorf("account %s: unknown plan %q", a.Id, a.PremiumPlan)
	}
	if a.PremiumStart != nil && a.PremiumEnd != nil && a.PremiumEnd.Before(*a.PremiumStart) {
		return fmt.Errorf("account %s: premium end %s before start %s",
			a.Id, a.PremiumEnd.Format(time.RFC3339), a.PremiumStart.Format(time.RFC3339))
	}
	if a.CoinBalance < 0 || a.LetterCreditBalance < 0 {
		return fmt.Errorf("account %s: negative balance", a.Id)
	}
	return nil
}

// Balance returns the balance of the given kind
func (a *Account) Balance(kind BalanceKind) int64 {
	if kind == BalanceLetterCredits {
		return a.LetterCreditBalance
	}
	return a.CoinBalance
}

// ReferralEarning is a commission owed to a referrer; Status is its only mutable field
type ReferralEarning struct {
	Id                    string              `db:"id" json:"id"`
	ReferrerAccountId     string              `db:"referrer_account_id" json:"referrerAccountId"`
	ReferredAccountId     string              `db:"referred_account_id" json:"referredAccountId"`
	EarningType           EarningType         `db:"earning_type" json:"earningType"`
	Amount                decimal.Decimal     `db:"amount" json:"amount"`
	Percentage            decimal.NullDecimal `db:"percentage" json:"percentage"`
	PurchaseAmount        decimal.NullDecimal `db:"purchase_amount" json:"purchaseAmount"`
	Status                EarningStatus       `db:"status" json:"status"`
	ReferrerIP            string              `db:"referrer_ip" json:"referrerIp"`
	ReferredIP            string              `db:"referred_ip" json:"referredIp"`
	UserAgent             string              `db:"user_agent" json:"userAgent"`
	ExternalTransactionId string              `db:"external_transaction_id" json:"externalTransactionId"`
	CreatedAt             time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updatedAt"`
}

// TransactionLog is the audit record of a purchase, subscription or balance movement
type TransactionLog struct {
	Id                string            `db:"id"`
	AccountId         string            `db:"account_id"`
	TransactionType   TransactionType   `db:"transaction_type"`
	ItemType          string            `db:"item_type"`
	PackageType       string            `db:"package_type"`
	Amount            int64             `db:"amount"`
	Price             decimal.Decimal   `db:"price"`
	GatewaySessionRef string            `db:"gateway_session_ref"`
	Status            TransactionStatus `db:"status"`
	FailureReason     string            `db:"failure_reason"`
	Metadata          map[string]string `db:"metadata"`
	CreatedAt         time.Time         `db:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at"`
	CompletedAt       *time.Time        `db:"completed_at"`
}

// BalanceEntry is one journal line for a coin or letter-credit movement
type BalanceEntry struct {
	Id           string      `db:"id"`
	AccountId    string      `db:"account_id"`
	Kind         BalanceKind `db:"kind"`
	Delta        int64       `db:"delta"`
	BalanceAfter int64       `db:"balance_after"`
	Reason       string      `db:"reason"`
	Reference    string      `db:"reference"`
	CreatedAt    time.Time   `db:"created_at"`
}
