/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"
	"net/http"

	"premium-referral-go/internal/fraud"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"
	"premium-referral-go/internal/referral"
	"premium-referral-go/internal/wallet"
	"premium-referral-go/internal/webhook"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

const defaultMaxBodyKB = 64

// WebhookHandler applies authenticated gateway events.
type WebhookHandler interface {
	HandleGatewayEvent(ctx context.Context, event stripe.Event) (webhook.Outcome, error)
}

// Sweeper runs one reconciliation pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (models.SweepResult, error)
}

// HealthChecker reports whether storage is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps wires the server. Webhooks, Verifier and Health are required; admin routes
// are registered only when AdminToken is set.
type Deps struct {
	Webhooks   WebhookHandler
	Verifier   *webhook.Verifier
	Health     HealthChecker
	Referrals  *referral.Service
	Premium    *premium.Service
	Wallet     *wallet.Service
	Fraud      *fraud.Checker
	Sweeper    Sweeper
	Metrics    http.Handler
	AdminToken string
	MaxBodyKB  int
}

// Server exposes the gateway webhook and the admin surface over HTTP.
type Server struct {
	echo *echo.Echo
	deps Deps
}

func NewServer(deps Deps) (*Server, error) {
	if deps.Webhooks == nil || deps.Health == nil {
		return nil, fmt.Errorf("server requires a webhook handler and a health checker")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("server requires a webhook verifier, set GATEWAY_WEBHOOK_SECRET")
	}
	if deps.MaxBodyKB <= 0 {
		deps.MaxBodyKB = defaultMaxBodyKB
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(requestContext())

	s := &Server{echo: e, deps: deps}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}

	s.echo.POST("/webhooks/gateway", s.handleGatewayWebhook)

	if s.deps.AdminToken == "" {
		zap.L().Warn("ADMIN_TOKEN not set, admin routes disabled")
		return
	}

	admin := s.echo.Group("/admin", adminAuth(s.deps.AdminToken))

	// -------- earnings --------
	if s.deps.Referrals != nil {
		admin.GET("/earnings", s.listEarnings)
		admin.POST("/earnings/:id/approve", s.approveEarning)
		admin.POST("/earnings/:id/pay", s.payEarning)
		admin.POST("/earnings/:id/cancel", s.cancelEarning)
		admin.GET("/referrers/:id/summary", s.referrerSummary)
		admin.POST("/referrers/:id/payout", s.payAllApproved)
	}
	if s.deps.Fraud != nil {
		admin.GET("/fraud", s.fraudReport)
	}
	if s.deps.Sweeper != nil {
		admin.POST("/sweep", s.runSweep)
	}

	// -------- accounts --------
	if s.deps.Premium != nil {
		admin.GET("/accounts/:id/premium", s.premiumStatus)
		admin.POST("/accounts/:id/premium/plan", s.changePlan)
		admin.POST("/accounts/:id/premium/cancel", s.cancelPremium)
		admin.POST("/accounts/:id/premium/reactivate", s.reactivatePremium)
	}
	if s.deps.Wallet != nil {
		admin.POST("/gifts", s.gift)
		admin.GET("/balances/audit", s.auditBalances)
		admin.POST("/accounts/:id/purchases", s.initiatePurchase)
		admin.POST("/accounts/:id/balance", s.adjustBalance)
	}
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on address until Shutdown. It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(address string) error {
	zap.L().Info("HTTP server listening", zap.String("address", address))
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.deps.Health.Ping(c.Request().Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
