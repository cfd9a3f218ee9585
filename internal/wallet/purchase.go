package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"premium-referral-go/internal/catalog"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/store"

	"go.uber.org/zap"
)

var (
	// ErrCheckoutUnavailable is returned when no gateway is configured to take payments.
	ErrCheckoutUnavailable = errors.New("checkout is not configured")
	// ErrCheckoutFailed wraps a gateway failure while opening a checkout session.
	ErrCheckoutFailed = errors.New("checkout creation failed")
	// ErrInvalidAdjustment is returned for adjustments that fail validation before touching storage.
	ErrInvalidAdjustment = errors.New("invalid balance adjustment")
)

// InitiatePurchase validates req against the catalog, opens a gateway checkout priced
// by the server and records an initiated transaction log keyed by the session. The
// checkout webhook later finalizes that same log. A request that does not match the
// catalog is recorded as a security violation and returned as a *catalog.ViolationError.
func (s *Service) InitiatePurchase(ctx context.Context, accountId string, req models.PurchaseRequest) (*models.PurchaseInitiation, error) {
	if s.ledger == nil || s.checkout == nil {
		return nil, ErrCheckoutUnavailable
	}

	account, err := s.accounts.GetAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}

	priceType := req.PriceType
	if priceType == "" {
		priceType = catalog.PriceRegular
	}
	entitled := premium.IsEntitled(*account, s.clock.Now())

	pkg, err := s.catalog.Validate(catalog.Request{
		PackageType: req.PackageType,
		ItemType:    req.ItemType,
		Amount:      req.Amount,
		Price:       req.Price,
		PriceType:   priceType,
	}, entitled)
	if err != nil {
		var violation *catalog.ViolationError
		if errors.As(err, &violation) {
			s.recordViolation(ctx, account.Id, req, priceType, violation)
		}
		return nil, fmt.Errorf("purchase rejected: %w", err)
	}

	metadata := map[string]string{
		"accountId":         account.Id,
		"packageType":       pkg.Name,
		"itemType":          pkg.ItemType,
		"amount":            strconv.FormatInt(pkg.Amount, 10),
		"price":             pkg.Price.StringFixed(2),
		"priceType":         priceType,
		"userPremiumStatus": strconv.FormatBool(entitled),
	}
	if req.UserAgent != "" {
		metadata["userAgent"] = req.UserAgent
	}
	email := req.CustomerEmail
	if email == "" {
		email = account.Email
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, models.CheckoutSessionRequest{
		AccountId:     account.Id,
		CustomerEmail: email,
		ProductName:   pkg.Name,
		UnitAmount:    pkg.Price.Shift(2).Round(0).IntPart(),
		Metadata:      metadata,
	})
	if err != nil {
		zap.L().Error("Checkout creation failed",
			zap.String("account_id", account.Id),
			zap.String("package", pkg.Name),
			zap.Error(err))
		failed := &models.TransactionLog{
			AccountId:       account.Id,
			TransactionType: models.TransactionPurchase,
			ItemType:        pkg.ItemType,
			PackageType:     pkg.Name,
			Amount:          pkg.Amount,
			Price:           pkg.Price,
			Status:          models.TxFailed,
			FailureReason:   "Checkout creation failed: " + err.Error(),
			Metadata:        map[string]string{"priceType": priceType},
		}
		if logErr := s.ledger.InsertTransactionLog(ctx, failed); logErr != nil {
			zap.L().Error("Failed to record checkout failure", zap.String("account_id", account.Id), zap.Error(logErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}

	log := &models.TransactionLog{
		AccountId:         account.Id,
		TransactionType:   models.TransactionPurchase,
		ItemType:          pkg.ItemType,
		PackageType:       pkg.Name,
		Amount:            pkg.Amount,
		Price:             pkg.Price,
		GatewaySessionRef: session.Id,
		Status:            models.TxInitiated,
		Metadata:          map[string]string{"priceType": priceType, "userPremiumStatus": strconv.FormatBool(entitled)},
	}
	if err := s.ledger.InsertTransactionLog(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to record initiated purchase %s: %w", session.Id, err)
	}

	zap.L().Info("Purchase initiated",
		zap.String("account_id", account.Id),
		zap.String("session", session.Id),
		zap.String("package", pkg.Name),
		zap.String("price", pkg.Price.StringFixed(2)),
		zap.String("price_type", priceType))

	return &models.PurchaseInitiation{
		TransactionId: log.Id,
		SessionId:     session.Id,
		CheckoutURL:   session.URL,
		PackageType:   pkg.Name,
		Amount:        pkg.Amount,
		Price:         pkg.Price,
		PriceType:     priceType,
	}, nil
}

// recordViolation logs a rejected initiation. It has no session, the client never
// reached the gateway.
func (s *Service) recordViolation(ctx context.Context, accountId string, req models.PurchaseRequest, priceType string, violation *catalog.ViolationError) {
	metadata := map[string]string{
		"securityViolationType": violation.Type,
		"priceType":             priceType,
	}
	if !violation.ExpectedPrice.IsZero() {
		metadata["expectedPrice"] = violation.ExpectedPrice.StringFixed(2)
	}

	err := s.ledger.InsertTransactionLog(ctx, &models.TransactionLog{
		AccountId:       accountId,
		TransactionType: models.TransactionPurchase,
		ItemType:        req.ItemType,
		PackageType:     req.PackageType,
		Amount:          req.Amount,
		Price:           req.Price,
		Status:          models.TxSecurityViolation,
		FailureReason:   violation.Reason,
		Metadata:        metadata,
	})
	if err != nil {
		zap.L().Error("Failed to record security violation", zap.String("account_id", accountId), zap.Error(err))
	}

	zap.L().Warn("Security violation: purchase initiation rejected",
		zap.String("account_id", accountId),
		zap.String("violation", violation.Type),
		zap.String("reason", violation.Reason),
		zap.String("claimed_price", req.Price.String()))
}

// Adjust credits or debits one balance outside of any purchase. A debit that would
// take the balance below zero fails with store.ErrInsufficientBalance.
func (s *Service) Adjust(ctx context.Context, accountId string, adj models.BalanceAdjustment) (*models.BalanceResult, error) {
	kind := adj.Kind
	if kind == "" {
		kind = models.BalanceCoins
	}
	if kind != models.BalanceCoins && kind != models.BalanceLetterCredits {
		return nil, fmt.Errorf("%w: unknown balance kind %q", ErrInvalidAdjustment, kind)
	}
	if accountId == "" || adj.Delta == 0 {
		return nil, fmt.Errorf("%w: account and non-zero delta are required", ErrInvalidAdjustment)
	}
	reason := adj.Reason
	if reason == "" {
		reason = "adjustment"
	}

	balance, err := s.accounts.IncrementBalance(ctx, store.BalanceChange{
		AccountId: accountId,
		Kind:      kind,
		Delta:     adj.Delta,
		Reason:    reason,
		Reference: adj.Reference,
	})
	if err != nil {
		return nil, err
	}
	return &models.BalanceResult{AccountId: accountId, Kind: kind, Balance: balance}, nil
}
