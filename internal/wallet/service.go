package wallet

import (
	"context"
	"errors"
	"fmt"

	"premium-referral-go/internal/catalog"
	"premium-referral-go/internal/clock"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
)

// ErrInvalidGift is returned for gifts that fail validation before touching storage.
var ErrInvalidGift = errors.New("invalid gift parameters")

// CheckoutGateway opens hosted payment pages for one-time purchases.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.GatewayCheckoutSession, error)
}

// Params wires a Service. Accounts is required; Ledger and Checkout are only
// needed to initiate purchases.
type Params struct {
	Accounts store.AccountRepository
	Ledger   store.LedgerRepository
	Catalog  *catalog.Catalog // defaults to the built-in packages
	Checkout CheckoutGateway
	Clock    clock.Clock
}

// Service opens purchases, moves coins and letter credits between accounts and
// audits balances.
type Service struct {
	accounts store.AccountRepository
	ledger   store.LedgerRepository
	catalog  *catalog.Catalog
	checkout CheckoutGateway
	clock    clock.Clock
}

func NewService(params Params) *Service {
	s := &Service{
		accounts: params.Accounts,
		ledger:   params.Ledger,
		catalog:  params.Catalog,
		checkout: params.Checkout,
		clock:    params.Clock,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	return s
}

// Gift transfers req.Amount of req.Kind from one account to another. The debit,
// the credit and both transaction logs commit together.
func (s *Service) Gift(ctx context.Context, req models.GiftRequest) (*models.GiftResult, error) {
	kind := req.Kind
	if kind == "" {
		kind = models.BalanceCoins
	}
	if req.FromAccountId == "" || req.ToAccountId == "" || req.Amount <= 0 {
		return nil, ErrInvalidGift
	}
	if kind != models.BalanceCoins && kind != models.BalanceLetterCredits {
		return nil, fmt.Errorf("%w: unknown balance kind %q", ErrInvalidGift, kind)
	}
	if req.FromAccountId == req.ToAccountId {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGift, store.ErrSelfTransfer)
	}

	// surface a missing recipient as not found rather than a failed transaction
	if _, err := s.accounts.GetAccount(ctx, req.ToAccountId); err != nil {
		return nil, err
	}

	zap.L().Info("Processing gift",
		zap.String("from_account", req.FromAccountId),
		zap.String("to_account", req.ToAccountId),
		zap.String("kind", string(kind)),
		zap.Int64("amount", req.Amount))

	err := s.accounts.TransferBalance(ctx, store.TransferParams{
		FromAccountId: req.FromAccountId,
		ToAccountId:   req.ToAccountId,
		Kind:          kind,
		Amount:        req.Amount,
		Reference:     req.Reference,
		At:            s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			zap.L().Info("Gift rejected for insufficient balance",
				zap.String("from_account", req.FromAccountId),
				zap.Int64("amount", req.Amount))
		} else {
			zap.L().Error("Gift failed",
				zap.String("from_account", req.FromAccountId),
				zap.String("to_account", req.ToAccountId),
				zap.Error(err))
		}
		return nil, err
	}

	sender, err := s.accounts.GetAccount(ctx, req.FromAccountId)
	if err != nil {
		return nil, fmt.Errorf("sender lookup failed after gift: %w", err)
	}
	recipient, err := s.accounts.GetAccount(ctx, req.ToAccountId)
	if err != nil {
		return nil, fmt.Errorf("recipient lookup failed after gift: %w", err)
	}

	result := &models.GiftResult{
		FromAccountId:    sender.Id,
		ToAccountId:      recipient.Id,
		Kind:             kind,
		Amount:           req.Amount,
		SenderBalance:    sender.Balance(kind),
		RecipientBalance: recipient.Balance(kind),
	}

	zap.L().Info("Gift processed successfully",
		zap.String("from_account", sender.Id),
		zap.String("to_account", recipient.Id),
		zap.Int64("sender_balance", result.SenderBalance),
		zap.Int64("recipient_balance", result.RecipientBalance))
	return result, nil
}

// Kinds lists the balances every account carries.
func Kinds() []models.BalanceKind {
	return []models.BalanceKind{models.BalanceCoins, models.BalanceLetterCredits}
}

// Audit reconciles every balance of one account against its journal entries.
func (s *Service) Audit(ctx context.Context, account models.Account) []models.BalanceAudit {
	audits := make([]models.BalanceAudit, 0, len(Kinds()))
	for _, kind := range Kinds() {
		audit := models.BalanceAudit{
			AccountId: account.Id,
			Email:     account.Email,
			Kind:      kind,
			Balance:   account.Balance(kind),
			Matches:   true,
		}
		if err := s.accounts.ReconcileBalance(ctx, account.Id, kind); err != nil {
			audit.Matches = false
			audit.Error = err.Error()
		}
		audits = append(audits, audit)
	}
	return audits
}

// ReconcileAll audits every account. Mismatches are reported in the result,
// only failures to list accounts are returned as errors.
func (s *Service) ReconcileAll(ctx context.Context) ([]models.BalanceAudit, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var (
		audits     []models.BalanceAudit
		mismatches int
	)
	for _, account := range accounts {
		for _, audit := range s.Audit(ctx, account) {
			if !audit.Matches {
				mismatches++
			}
			audits = append(audits, audit)
		}
	}

	zap.L().Info("Balance reconciliation completed",
		zap.Int("accounts", len(accounts)),
		zap.Int("mismatches", mismatches))
	return audits, nil
}
