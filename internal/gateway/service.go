package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"premium-referral-go/internal/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

var ErrNotFound = errors.New("gateway resource not found")

// Service wraps the Stripe API client for the subscription, customer, invoice and
// checkout resources this service reads and writes.
type Service struct {
	api        *client.API
	currency   string
	successURL string
	cancelURL  string
}

func NewService(cfg models.GatewayConfig) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("gateway secret key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}

	httpClient, err := createCustomHttpClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return newService(cfg, &httpClient), nil
}

func newService(cfg models.GatewayConfig, httpClient *http.Client) *Service {
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		URL:               stripe.String(cfg.BaseURL),
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
		LeveledLogger:     zap.L().Sugar(),
	})

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Service{
		api:        api,
		currency:   currency,
		successURL: cfg.CheckoutSuccessURL,
		cancelURL:  cfg.CheckoutCancelURL,
	}
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// isNotFound reports whether err is the gateway's missing-resource error.
func isNotFound(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
}

func wrap(err error, format string, args ...any) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w: %v", fmt.Sprintf(format, args...), ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func (s *Service) GetSubscription(ctx context.Context, subscriptionRef string) (*models.GatewaySubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Get(subscriptionRef, params)
	if err != nil {
		return nil, wrap(err, "unable to get subscription %s", subscriptionRef)
	}
	return subscriptionModel(sub, rawJSON(sub.LastResponse)), nil
}

// CancelSubscription cancels immediately; an already-gone subscription is not an error.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := s.api.Subscriptions.Cancel(subscriptionRef, params); err != nil {
		if isNotFound(err) {
			zap.L().Info("Subscription already gone", zap.String("subscription", subscriptionRef))
			return nil
		}
		return wrap(err, "unable to cancel subscription %s", subscriptionRef)
	}

	zap.L().Info("Subscription cancelled at gateway", zap.String("subscription", subscriptionRef))
	return nil
}

func (s *Service) SetCancelAtPeriodEnd(ctx context.Context, subscriptionRef string, cancel bool) error {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx
	if _, err := s.api.Subscriptions.Update(subscriptionRef, params); err != nil {
		return wrap(err, "unable to update subscription %s", subscriptionRef)
	}

	zap.L().Info("Subscription renewal updated",
		zap.String("subscription", subscriptionRef),
		zap.Bool("cancel_at_period_end", cancel))
	return nil
}

func (s *Service) GetCustomer(ctx context.Context, customerRef string) (*models.GatewayCustomer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := s.api.Customers.Get(customerRef, params)
	if err != nil {
		return nil, wrap(err, "unable to get customer %s", customerRef)
	}
	return &models.GatewayCustomer{Id: c.ID, Email: c.Email}, nil
}

func (s *Service) GetInvoice(ctx context.Context, invoiceRef string) (*models.GatewayInvoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	in, err := s.api.Invoices.Get(invoiceRef, params)
	if err != nil {
		return nil, wrap(err, "unable to get invoice %s", invoiceRef)
	}
	return invoiceModel(in, rawJSON(in.LastResponse)), nil
}

// CreateCheckoutSession opens a one-time payment checkout priced by the server.
func (s *Service) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.GatewayCheckoutSession, error) {
	if req.UnitAmount <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive, got %d", req.UnitAmount)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		ClientReferenceID:  stripe.String(req.AccountId),
		SuccessURL:         stripe.String(s.successURL),
		CancelURL:          stripe.String(s.cancelURL),
		Metadata:           req.Metadata,
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(req.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
			},
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrap(err, "unable to create checkout session for %s", req.AccountId)
	}

	result := &models.GatewayCheckoutSession{Id: session.ID, URL: session.URL}
	if session.Customer != nil {
		result.CustomerRef = session.Customer.ID
	}

	zap.L().Info("Checkout session created",
		zap.String("account_id", req.AccountId),
		zap.String("session", session.ID),
		zap.Int64("unit_amount", req.UnitAmount))
	return result, nil
}
