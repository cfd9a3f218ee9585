package referral

import (
	"testing"
	"time"

	"premium-referral-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestProgramFor_Closed(t *testing.T) {
	for _, program := range []models.ReferralProgram{models.ProgramStandard, models.ProgramOffer5, models.ProgramOffer10, ""} {
		if _, err := ProgramFor(program); err != nil {
			t.Errorf("ProgramFor(%q) failed: %v", program, err)
		}
	}
	if _, err := ProgramFor("offer_99"); err == nil {
		t.Error("Expected error for unknown program")
	}
}

func TestPrograms_Award(t *testing.T) {
	registered := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	referred := models.Account{Id: "b", CreatedAt: registered}
	amount := decimal.RequireFromString("6.99")

	subscriptionFirst := Purchase{Amount: amount, IsSubscription: true}
	subscriptionSecond := Purchase{Amount: amount, IsSubscription: true, IsSecondMonth: true}
	oneTime := Purchase{Amount: amount}

	tests := []struct {
		name        string
		program     models.ReferralProgram
		purchase    Purchase
		at          time.Time
		bonusPaid   bool
		wantType    models.EarningType
		wantAmount  string
		wantNoAward bool
	}{
		{"standard subscription", models.ProgramStandard, subscriptionFirst, registered, false, models.EarningPercentage, "0.3495", false},
		{"standard one-time", models.ProgramStandard, oneTime, registered, false, models.EarningPercentage, "0.3495", false},
		{"offer_5 first subscription", models.ProgramOffer5, subscriptionFirst, registered, false, models.EarningSignupBonus, "5", false},
		{"offer_5 first subscription after bonus", models.ProgramOffer5, subscriptionFirst, registered, true, models.EarningPercentage, "1.0485", false},
		{"offer_5 second month", models.ProgramOffer5, subscriptionSecond, registered.AddDate(0, 1, 0), true, models.EarningPercentage, "1.0485", false},
		{"offer_5 one-time", models.ProgramOffer5, oneTime, registered, false, models.EarningPercentage, "1.0485", false},
		{"offer_5 at window end", models.ProgramOffer5, oneTime, registered.AddDate(0, 6, 0), false, models.EarningPercentage, "1.0485", false},
		{"offer_5 after window", models.ProgramOffer5, oneTime, registered.AddDate(0, 6, 0).Add(time.Second), false, "", "", true},
		{"offer_5 subscription after window", models.ProgramOffer5, subscriptionFirst, registered.AddDate(0, 7, 0), false, "", "", true},
		{"offer_10 first subscription", models.ProgramOffer10, subscriptionFirst, registered, false, models.EarningSignupBonus, "10", false},
		{"offer_10 after bonus", models.ProgramOffer10, subscriptionFirst, registered, true, "", "", true},
		{"offer_10 second month", models.ProgramOffer10, subscriptionSecond, registered, false, "", "", true},
		{"offer_10 one-time", models.ProgramOffer10, oneTime, registered, false, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, err := ProgramFor(tt.program)
			if err != nil {
				t.Fatalf("ProgramFor failed: %v", err)
			}
			award := program.Award(Input{Referred: referred, Purchase: tt.purchase, At: tt.at, SignupBonusPaid: tt.bonusPaid})
			if tt.wantNoAward {
				if award != nil {
					t.Fatalf("Expected no award, got %+v", award)
				}
				return
			}
			if award == nil {
				t.Fatal("Expected an award, got nil")
			}
			if award.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, award.Type)
			}
			if !award.Amount.Equal(decimal.RequireFromString(tt.wantAmount)) {
				t.Errorf("Expected amount %s, got %s", tt.wantAmount, award.Amount)
			}
			if award.Type == models.EarningSignupBonus && award.Percentage.Valid {
				t.Error("Signup bonus should carry no percentage")
			}
		})
	}
}
