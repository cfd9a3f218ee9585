package formance

import (
	"context"
	"fmt"
	"time"

	"premium-referral-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Numscript templates. All metadata is set inside the script via set_tx_meta()
// so each Formance transaction is self-describing.
//
// Accounts:
//   @platform:commissions            funding source, may go negative
//   @referrers:<id>:pending          earned, not yet paid out
//   @referrers:<id>:paid             paid out
// ---------------------------------------------------------------------------

const numscriptEarned = `vars {
  asset $asset
  number $amount
  account $referrer_id
  string $earning_id
  string $referred_id
  string $earning_type
  string $external_tx_id
  string $amount_human
}

send [$asset $amount] (
  source = @platform:commissions allowing unbounded overdraft
  destination = @referrers:$referrer_id:pending
)

set_tx_meta("event_type", "commission_earned")
set_tx_meta("earning_id", $earning_id)
set_tx_meta("referred_id", $referred_id)
set_tx_meta("earning_type", $earning_type)
set_tx_meta("external_tx_id", $external_tx_id)
set_tx_meta("amount_human", $amount_human)
`

const numscriptPaid = `vars {
  asset $asset
  number $amount
  account $referrer_id
  string $earning_id
  string $amount_human
}

send [$asset $amount] (
  source = @referrers:$referrer_id:pending
  destination = @referrers:$referrer_id:paid
)

set_tx_meta("event_type", "commission_paid")
set_tx_meta("earning_id", $earning_id)
set_tx_meta("amount_human", $amount_human)
`

const numscriptCancelled = `vars {
  asset $asset
  number $amount
  account $referrer_id
  string $earning_id
  string $amount_human
}

send [$asset $amount] (
  source = @referrers:$referrer_id:pending
  destination = @platform:commissions
)

set_tx_meta("event_type", "commission_cancelled")
set_tx_meta("earning_id", $earning_id)
set_tx_meta("amount_human", $amount_human)
`

const (
	stepEarned    = "earned"
	stepPaid      = "paid"
	stepCancelled = "cancelled"
)

// ---------------------------------------------------------------------------
// Transaction operations
// ---------------------------------------------------------------------------

// RecordEarning credits the referrer's pending account with a new earning.
func (j *Journal) RecordEarning(ctx context.Context, earning *models.ReferralEarning) error {
	vars := baseVars(earning)
	vars["referred_id"] = earning.ReferredAccountId
	vars["earning_type"] = string(earning.EarningType)
	vars["external_tx_id"] = earning.ExternalTransactionId

	return j.post(ctx, earning, stepEarned, numscriptEarned, vars, earning.CreatedAt)
}

// RecordPayout moves a paid earning out of the referrer's pending account.
func (j *Journal) RecordPayout(ctx context.Context, earning *models.ReferralEarning) error {
	return j.post(ctx, earning, stepPaid, numscriptPaid, baseVars(earning), earning.UpdatedAt)
}

// RecordCancellation returns a cancelled earning to the platform.
func (j *Journal) RecordCancellation(ctx context.Context, earning *models.ReferralEarning) error {
	return j.post(ctx, earning, stepCancelled, numscriptCancelled, baseVars(earning), earning.UpdatedAt)
}

func baseVars(earning *models.ReferralEarning) map[string]string {
	return map[string]string{
		"asset":        commissionAsset,
		"amount":       minorUnits(earning.Amount),
		"referrer_id":  earning.ReferrerAccountId,
		"earning_id":   earning.Id,
		"amount_human": earning.Amount.String(),
	}
}

func (j *Journal) post(ctx context.Context, earning *models.ReferralEarning, step, script string, vars map[string]string, at time.Time) error {
	if earning.Amount.Sign() <= 0 {
		return nil
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(transactionReference(earning.Id, step)),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
	}
	if !at.IsZero() {
		postTx.Timestamp = &at
	}

	_, err := j.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            j.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Commission step already journaled",
				zap.String("earning_id", earning.Id),
				zap.String("step", step))
			return nil // idempotent
		}
		return fmt.Errorf("error journaling commission %s: %w", step, err)
	}

	zap.L().Info("Commission journaled in Formance",
		zap.String("earning_id", earning.Id),
		zap.String("referrer_id", earning.ReferrerAccountId),
		zap.String("step", step),
		zap.String("amount", earning.Amount.String()))
	return nil
}
