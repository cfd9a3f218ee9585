package models

import "time"

// GatewaySubscription represents a payment gateway subscription
type GatewaySubscription struct {
	Id                string
	CustomerRef       string
	Status            string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

// GatewayCustomer represents a payment gateway customer
type GatewayCustomer struct {
	Id    string
	Email string
}

// GatewayInvoice represents a payment gateway invoice
type GatewayInvoice struct {
	Id              string
	SubscriptionRef string
	CustomerRef     string
	CustomerEmail   string
	AmountPaid      int64 // minor units
	AmountDue       int64 // minor units
	AttemptCount    int
	BillingReason   string
	PeriodEnd       *time.Time
	Created         time.Time
}

// CheckoutSessionRequest describes a one-time payment checkout to open at the gateway
type CheckoutSessionRequest struct {
	AccountId     string
	CustomerEmail string
	ProductName   string
	UnitAmount    int64 // minor units
	Metadata      map[string]string
}

// GatewayCheckoutSession is a checkout opened at the gateway
type GatewayCheckoutSession struct {
	Id          string
	URL         string
	CustomerRef string
}
