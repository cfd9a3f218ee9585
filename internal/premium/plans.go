package premium

import (
	"fmt"
	"strings"
	"time"

	"premium-referral-go/internal/models"
)

const day = 24 * time.Hour

// billingCycle is the 30-day month used to count subscription cycles.
const billingCycle = 30 * day

var planDurations = map[models.PlanType]time.Duration{
	models.PlanMonthly:  30 * day,
	models.PlanHalfYear: 180 * day,
	models.PlanYearly:   365 * day,
}

var planOrder = map[models.PlanType]int{
	models.PlanMonthly:  1,
	models.PlanHalfYear: 2,
	models.PlanYearly:   3,
}

// Plans lists every purchasable plan, shortest first.
func Plans() []models.PlanType {
	return []models.PlanType{models.PlanMonthly, models.PlanHalfYear, models.PlanYearly}
}

// Duration returns the entitlement length of plan, or zero for an unknown plan.
func Duration(plan models.PlanType) time.Duration {
	return planDurations[plan]
}

// IsUpgrade reports whether target ranks strictly above current.
func IsUpgrade(current, target models.PlanType) bool {
	return planOrder[target] > planOrder[current]
}

// ParsePlan accepts the stored plan names plus the "halfyear"/"half_year" spellings used in checkout metadata.
func ParsePlan(s string) (models.PlanType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month":
		return models.PlanMonthly, nil
	case "half-year", "halfyear", "half_year", "6months":
		return models.PlanHalfYear, nil
	case "yearly", "year", "annual":
		return models.PlanYearly, nil
	}
	return models.PlanNone, fmt.Errorf("unknown plan %q", s)
}

// IsSecondMonth reports whether paymentTime falls in the second 30-day cycle after start.
// Calendar months are not used, so payments near a cycle boundary can be misclassified.
func IsSecondMonth(start *time.Time, paymentTime time.Time) bool {
	if start == nil {
		return false
	}
	cycles := int(paymentTime.Sub(*start) / billingCycle)
	return cycles >= 1 && cycles < 2
}

// UpgradeWindow returns the entitlement window for switching account to plan at now.
// Paid time that has not been used yet is carried over, so the new end is never
// earlier than the current one.
func UpgradeWindow(account models.Account, plan models.PlanType, now time.Time) (start, end time.Time) {
	start = now
	base := now
	if current, ok := EffectiveEnd(account); ok && IsEntitled(account, now) && current.After(base) {
		base = current
	}
	return start, base.Add(Duration(plan))
}
