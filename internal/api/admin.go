package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"premium-referral-go/internal/catalog"
	"premium-referral-go/internal/fraud"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/store"
	"premium-referral-go/internal/wallet"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// respondError maps domain errors to HTTP statuses.
func respondError(c echo.Context, err error) error {
	var violation *catalog.ViolationError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrEarningNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidStatusTransition),
		errors.Is(err, store.ErrInsufficientBalance),
		errors.Is(err, store.ErrConcurrentModification),
		errors.Is(err, premium.ErrNotUpgrade),
		errors.Is(err, premium.ErrNotActive):
		status = http.StatusConflict
	case errors.Is(err, wallet.ErrInvalidGift),
		errors.Is(err, wallet.ErrInvalidAdjustment),
		errors.As(err, &violation):
		status = http.StatusBadRequest
	case errors.Is(err, wallet.ErrCheckoutFailed):
		status = http.StatusBadGateway
	case errors.Is(err, wallet.ErrCheckoutUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("Admin request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(status, models.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(status, models.ErrorResponse{Error: err.Error()})
}

func badRequest(c echo.Context, format string, args ...any) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

// earningFilter reads status, referrerId, since, until, limit and offset query parameters.
func earningFilter(c echo.Context) (store.EarningFilter, error) {
	filter := store.EarningFilter{
		Status:     models.EarningStatus(c.QueryParam("status")),
		ReferrerId: c.QueryParam("referrerId"),
	}
	switch filter.Status {
	case "", models.EarningPending, models.EarningApproved, models.EarningPaid, models.EarningCancelled:
	default:
		return filter, fmt.Errorf("unknown status %q", filter.Status)
	}

	for name, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		if raw := c.QueryParam(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return filter, fmt.Errorf("invalid %s: %v", name, err)
			}
			*dst = t
		}
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if raw := c.QueryParam(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return filter, fmt.Errorf("invalid %s %q", name, raw)
			}
			*dst = n
		}
	}
	return filter, nil
}

// -------- earnings --------

func (s *Server) listEarnings(c echo.Context) error {
	filter, err := earningFilter(c)
	if err != nil {
		return badRequest(c, "%v", err)
	}
	earnings, err := s.deps.Referrals.List(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if earnings == nil {
		earnings = []models.ReferralEarning{}
	}
	return c.JSON(http.StatusOK, earnings)
}

func (s *Server) approveEarning(c echo.Context) error {
	earning, err := s.deps.Referrals.Approve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, earning)
}

func (s *Server) payEarning(c echo.Context) error {
	earning, err := s.deps.Referrals.MarkPaid(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, earning)
}

func (s *Server) cancelEarning(c echo.Context) error {
	earning, err := s.deps.Referrals.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, earning)
}

func (s *Server) referrerSummary(c echo.Context) error {
	summary, err := s.deps.Referrals.Summary(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) payAllApproved(c echo.Context) error {
	referrerId := c.Param("id")
	paid, total, err := s.deps.Referrals.PayAllApproved(c.Request().Context(), referrerId)
	if err != nil {
		return respondError(c, err)
	}
	if paid == nil {
		paid = []models.ReferralEarning{}
	}
	return c.JSON(http.StatusOK, models.PayoutResult{ReferrerId: referrerId, Paid: paid, Total: total})
}

func (s *Server) fraudReport(c echo.Context) error {
	filter, err := earningFilter(c)
	if err != nil {
		return badRequest(c, "%v", err)
	}
	reports, err := s.deps.Fraud.Check(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if c.QueryParam("flagged") == "true" {
		reports = fraud.Flagged(reports)
	}
	if reports == nil {
		reports = []fraud.Report{}
	}
	return c.JSON(http.StatusOK, reports)
}

func (s *Server) runSweep(c echo.Context) error {
	result, err := s.deps.Sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// -------- accounts --------

func (s *Server) premiumStatus(c echo.Context) error {
	status, err := s.deps.Premium.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) changePlan(c echo.Context) error {
	var req models.PlanChangeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	plan, err := premium.ParsePlan(req.Plan)
	if err != nil {
		return badRequest(c, "%v", err)
	}

	ctx := c.Request().Context()
	if _, err := s.deps.Premium.ChangePlan(ctx, c.Param("id"), plan); err != nil {
		return respondError(c, err)
	}
	return s.premiumStatus(c)
}

func (s *Server) cancelPremium(c echo.Context) error {
	if _, err := s.deps.Premium.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return s.premiumStatus(c)
}

func (s *Server) reactivatePremium(c echo.Context) error {
	if _, err := s.deps.Premium.Reactivate(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return s.premiumStatus(c)
}

func (s *Server) gift(c echo.Context) error {
	var req models.GiftRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	result, err := s.deps.Wallet.Gift(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) auditBalances(c echo.Context) error {
	audits, err := s.deps.Wallet.ReconcileAll(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	if audits == nil {
		audits = []models.BalanceAudit{}
	}
	return c.JSON(http.StatusOK, audits)
}

// initiatePurchase opens a checkout for a catalog package; the user agent of the
// caller is carried to the gateway when the body does not name one.
func (s *Server) initiatePurchase(c echo.Context) error {
	var req models.PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request().UserAgent()
	}
	initiation, err := s.deps.Wallet.InitiatePurchase(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, initiation)
}

func (s *Server) adjustBalance(c echo.Context) error {
	var adj models.BalanceAdjustment
	if err := c.Bind(&adj); err != nil {
		return badRequest(c, "invalid request body")
	}
	result, err := s.deps.Wallet.Adjust(c.Request().Context(), c.Param("id"), adj)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
