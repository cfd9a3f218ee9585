package models

import "fmt"

// PlanType identifies a premium subscription plan
type PlanType string

const (
	PlanNone     PlanType = ""
	PlanMonthly  PlanType = "monthly"
	PlanHalfYear PlanType = "half-year"
	PlanYearly   PlanType = "yearly"
)

func (p PlanType) Valid() bool {
	switch p {
	case PlanMonthly, PlanHalfYear, PlanYearly:
		return true
	}
	return false
}

// ReferralProgram is the commission program a referrer is enrolled in
type ReferralProgram string

const (
	ProgramStandard ReferralProgram = "standard"
	ProgramOffer5   ReferralProgram = "offer_5"
	ProgramOffer10  ReferralProgram = "offer_10"
)

// ParseReferralProgram maps a stored value to a program; empty means standard.
func ParseReferralProgram(s string) (ReferralProgram, error) {
	switch p := ReferralProgram(s); p {
	case "":
		return ProgramStandard, nil
	case ProgramStandard, ProgramOffer5, ProgramOffer10:
		return p, nil
	}
	return "", fmt.Errorf("unknown referral program %q", s)
}

type EarningType string

const (
	EarningPercentage     EarningType = "percentage"
	EarningSignupBonus    EarningType = "signup_bonus"
	EarningRetentionBonus EarningType = "retention_bonus"
	EarningMixed          EarningType = "mixed"
)

type EarningStatus string

const (
	EarningPending   EarningStatus = "pending"
	EarningApproved  EarningStatus = "approved"
	EarningPaid      EarningStatus = "paid"
	EarningCancelled EarningStatus = "cancelled"
)

// CanTransitionTo reports whether an earning may move from s to next.
// Transitions only move forward: pending -> approved -> paid, pending/approved -> cancelled.
func (s EarningStatus) CanTransitionTo(next EarningStatus) bool {
	switch s {
	case EarningPending:
		return next == EarningApproved || next == EarningCancelled
	case EarningApproved:
		return next == EarningPaid || next == EarningCancelled
	}
	return false
}

type TransactionType string

const (
	TransactionPurchase     TransactionType = "purchase"
	TransactionSubscription TransactionType = "subscription"
	TransactionUpgrade      TransactionType = "upgrade"
	TransactionGift         TransactionType = "gift"
	TransactionMonthlyGrant TransactionType = "monthly_grant"
)

type TransactionStatus string

const (
	TxInitiated         TransactionStatus = "initiated"
	TxPending           TransactionStatus = "pending"
	TxProcessing        TransactionStatus = "processing"
	TxCompleted         TransactionStatus = "completed"
	TxFailed            TransactionStatus = "failed"
	TxCancelled         TransactionStatus = "cancelled"
	TxRefunded          TransactionStatus = "refunded"
	TxSecurityViolation TransactionStatus = "security_violation"
	TxTimeout           TransactionStatus = "timeout"
)

// IsTerminal reports whether no further status update is allowed.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxInitiated, TxPending, TxProcessing:
		return false
	}
	return true
}

// BalanceKind names a money-bearing account field
type BalanceKind string

const (
	BalanceCoins         BalanceKind = "coins"
	BalanceLetterCredits BalanceKind = "letter_credits"
)

// BalanceKindForItem maps a checkout item type ("coins", "credits") to a balance.
func BalanceKindForItem(itemType string) (BalanceKind, error) {
	switch itemType {
	case "coins":
		return BalanceCoins, nil
	case "credits", "letter_credits", "letter-credits":
		return BalanceLetterCredits, nil
	}
	return "", fmt.Errorf("unknown item type %q", itemType)
}
