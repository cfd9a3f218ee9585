package formance

import (
	"context"
	"errors"
	"fmt"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/referral"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Journal must satisfy referral.Journal.
var _ referral.Journal = (*Journal)(nil)

const (
	defaultLedgerName = "referral-commissions"

	// Commissions carry sub-cent precision (5% of 2.99 is 0.1495).
	commissionAsset     = "USD/4"
	commissionPrecision = 4
)

// Journal mirrors referral earnings to a Formance Stack ledger.
type Journal struct {
	client *v3.Formance
	ledger string
}

// NewJournal connects to the stack, creates the ledger if it doesn't already exist, and returns ready to use.
func NewJournal(ctx context.Context, cfg models.FormanceConfig) (*Journal, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = defaultLedgerName
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	j := &Journal{client: client, ledger: cfg.LedgerName}

	if err := j.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Commission journal initialized", zap.String("ledger", cfg.LedgerName))
	return j, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (j *Journal) ensureLedger(ctx context.Context) error {
	_, err := j.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: j.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "premium-referral",
			},
		},
	})
	if err != nil {
		if isLedgerExistsError(err) {
			zap.L().Info("Ledger already exists", zap.String("ledger", j.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", j.ledger))
	return nil
}

// Close is a no-op (HTTP client needs no teardown).
func (j *Journal) Close() {}

// ---------- helpers ----------

// minorUnits converts a dollar amount to the smallest unit of commissionAsset, rounding half away from zero.
func minorUnits(amount decimal.Decimal) string {
	return amount.Shift(commissionPrecision).Round(0).BigInt().String()
}

// transactionReference is the idempotency key of one lifecycle step of an earning.
func transactionReference(earningId, step string) string {
	return earningId + "-" + step
}

func strPtr(s string) *string { return &s }

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func isLedgerExistsError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists
}
