package premium

import (
	"time"

	"premium-referral-go/internal/models"
)

// IsEntitled resolves the stored subscription fields to an effective entitlement at now.
// It takes the account by value and never modifies it.
func IsEntitled(account models.Account, now time.Time) bool {
	if !account.PremiumActive {
		return false
	}
	if end, ok := EffectiveEnd(account); ok {
		return now.Before(end)
	}
	// nothing to verify expiry against
	return account.PremiumActive
}

// EffectiveEnd returns premiumEnd when set, otherwise start plus the plan duration.
// ok is false when neither can be determined.
func EffectiveEnd(account models.Account) (end time.Time, ok bool) {
	if account.PremiumEnd != nil {
		return *account.PremiumEnd, true
	}
	if account.PremiumStart != nil && account.PremiumPlan != models.PlanNone {
		if d := Duration(account.PremiumPlan); d > 0 {
			return account.PremiumStart.Add(d), true
		}
	}
	return time.Time{}, false
}
