package referral

import (
	"fmt"
	"time"

	"premium-referral-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	standardRate = decimal.RequireFromString("0.05")
	offerRate    = decimal.RequireFromString("0.15")

	offer5Bonus  = decimal.NewFromInt(5)
	offer10Bonus = decimal.NewFromInt(10)

	hundred = decimal.NewFromInt(100)
)

// offerWindowMonths is how long after the referred account registers offer_5 pays out.
const offerWindowMonths = 6

// Input is everything a program needs to price one purchase.
type Input struct {
	Referred models.Account
	Purchase Purchase
	At       time.Time
	// SignupBonusPaid reports whether the referrer already earned a signup bonus for Referred.
	SignupBonusPaid bool
}

// Award is a program's decision. A nil *Award means nothing is owed.
type Award struct {
	Type       models.EarningType
	Amount     decimal.Decimal
	Percentage decimal.NullDecimal
}

// Program prices a purchase for one referral program.
type Program interface {
	Award(in Input) *Award
	// NeedsSignupBonusCheck reports whether Award reads Input.SignupBonusPaid for this purchase.
	NeedsSignupBonusCheck(p Purchase) bool
}

// ProgramFor returns the strategy of program. Every models.ReferralProgram has one.
func ProgramFor(program models.ReferralProgram) (Program, error) {
	switch program {
	case models.ProgramStandard, "":
		return standardProgram{}, nil
	case models.ProgramOffer5:
		return offer5Program{}, nil
	case models.ProgramOffer10:
		return offer10Program{}, nil
	}
	return nil, fmt.Errorf("unknown referral program %q", program)
}

func percentageAward(amount, rate decimal.Decimal) *Award {
	return &Award{
		Type:       models.EarningPercentage,
		Amount:     amount.Mul(rate),
		Percentage: decimal.NewNullDecimal(rate.Mul(hundred)),
	}
}

func bonusAward(amount decimal.Decimal) *Award {
	return &Award{Type: models.EarningSignupBonus, Amount: amount}
}

// standardProgram pays 5% of every purchase.
type standardProgram struct{}

func (standardProgram) NeedsSignupBonusCheck(Purchase) bool { return false }

func (standardProgram) Award(in Input) *Award {
	return percentageAward(in.Purchase.Amount, standardRate)
}

// offer5Program pays during the first six months after the referred account registers:
// a $5 signup bonus on the first subscription payment, 15% on everything else.
type offer5Program struct{}

func (offer5Program) NeedsSignupBonusCheck(p Purchase) bool {
	return p.IsSubscription && !p.IsSecondMonth
}

func (offer5Program) Award(in Input) *Award {
	windowEnd := in.Referred.CreatedAt.AddDate(0, offerWindowMonths, 0)
	if in.At.After(windowEnd) {
		return nil
	}

	p := in.Purchase
	if p.IsSubscription && !p.IsSecondMonth && !in.SignupBonusPaid {
		return bonusAward(offer5Bonus)
	}
	return percentageAward(p.Amount, offerRate)
}

// offer10Program pays a single $10 signup bonus on the first subscription payment.
type offer10Program struct{}

func (offer10Program) NeedsSignupBonusCheck(p Purchase) bool {
	return p.IsSubscription && !p.IsSecondMonth
}

func (offer10Program) Award(in Input) *Award {
	p := in.Purchase
	if !p.IsSubscription || p.IsSecondMonth || in.SignupBonusPaid {
		return nil
	}
	return bonusAward(offer10Bonus)
}
