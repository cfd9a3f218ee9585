package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"premium-referral-go/internal/catalog"
	"premium-referral-go/internal/gateway"
	"premium-referral-go/internal/models"
	"premium-referral-go/internal/premium"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
)

// ErrMalformedEvent marks a payload that can never be applied as delivered.
var ErrMalformedEvent = errors.New("malformed gateway event")

type Kind string

const (
	KindCheckoutCompleted    Kind = "checkout.session.completed"
	KindInvoicePaid          Kind = "invoice.payment_succeeded"
	KindInvoicePaymentPaid   Kind = "invoice_payment.paid"
	KindInvoicePaymentFailed Kind = "invoice.payment_failed"
	KindSubscriptionDeleted  Kind = "customer.subscription.deleted"
)

// Event is one decoded gateway notification. The set of implementations is closed.
type Event interface {
	Kind() Kind
	EventId() string
	isEvent()
}

type base struct {
	Id string
}

func (b base) EventId() string { return b.Id }
func (base) isEvent()          {}

// OneTimePurchase is the metadata of a coin or letter-credit checkout.
type OneTimePurchase struct {
	PackageType string
	ItemType    string
	Amount      int64
	Price       decimal.Decimal
	PriceType   string
}

// SubscriptionCheckout is the metadata of a premium checkout.
type SubscriptionCheckout struct {
	Plan      models.PlanType
	PlanName  string
	IsUpgrade bool
}

// CheckoutCompleted carries exactly one of Purchase and Subscription.
type CheckoutCompleted struct {
	base
	SessionId       string
	AccountId       string
	CustomerRef     string
	SubscriptionRef string
	AmountTotal     int64 // minor units
	UserAgent       string
	Purchase        *OneTimePurchase
	Subscription    *SubscriptionCheckout
}

func (*CheckoutCompleted) Kind() Kind { return KindCheckoutCompleted }

type InvoicePaid struct {
	base
	Invoice models.GatewayInvoice
}

func (*InvoicePaid) Kind() Kind { return KindInvoicePaid }

// InvoicePaymentPaid only references the invoice; the handler fetches it.
type InvoicePaymentPaid struct {
	base
	PaymentId  string
	InvoiceRef string
}

func (*InvoicePaymentPaid) Kind() Kind { return KindInvoicePaymentPaid }

type InvoicePaymentFailed struct {
	base
	Invoice models.GatewayInvoice
}

func (*InvoicePaymentFailed) Kind() Kind { return KindInvoicePaymentFailed }

type SubscriptionDeleted struct {
	base
	Subscription models.GatewaySubscription
}

func (*SubscriptionDeleted) Kind() Kind { return KindSubscriptionDeleted }

// Unrecognized is any event type this service does not act on.
type Unrecognized struct {
	base
	Type string
}

func (e *Unrecognized) Kind() Kind { return Kind(e.Type) }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}

// FromStripe maps a gateway event onto the closed set of events this service handles.
func FromStripe(evt stripe.Event) (Event, error) {
	if evt.Type == "" {
		return nil, malformed("missing event type")
	}

	b := base{Id: evt.ID}
	kind := Kind(evt.Type)
	switch kind {
	case KindCheckoutCompleted, KindInvoicePaid, KindInvoicePaymentPaid,
		KindInvoicePaymentFailed, KindSubscriptionDeleted:
		if evt.Data == nil || len(evt.Data.Raw) == 0 || string(evt.Data.Raw) == "null" {
			return nil, malformed("%s without data.object", evt.Type)
		}
	default:
		return &Unrecognized{base: b, Type: string(evt.Type)}, nil
	}

	object := evt.Data.Raw
	switch kind {
	case KindCheckoutCompleted:
		return decodeCheckout(b, object)
	case KindInvoicePaid, KindInvoicePaymentFailed:
		invoice, err := gateway.ParseInvoice(object)
		if err != nil {
			return nil, malformed("%v", err)
		}
		if kind == KindInvoicePaid {
			return &InvoicePaid{base: b, Invoice: *invoice}, nil
		}
		return &InvoicePaymentFailed{base: b, Invoice: *invoice}, nil
	case KindInvoicePaymentPaid:
		// the SDK has no type for invoice payments; read the two fields from the raw map
		paymentId := objectRef(evt.Data.Object["id"])
		invoiceRef := objectRef(evt.Data.Object["invoice"])
		if invoiceRef == "" {
			return nil, malformed("invoice payment %s without invoice", paymentId)
		}
		return &InvoicePaymentPaid{base: b, PaymentId: paymentId, InvoiceRef: invoiceRef}, nil
	default:
		subscription, err := gateway.ParseSubscription(object)
		if err != nil {
			return nil, malformed("%v", err)
		}
		return &SubscriptionDeleted{base: b, Subscription: *subscription}, nil
	}
}

// objectRef reads an id that may be delivered bare or as an expanded object.
func objectRef(v any) string {
	switch ref := v.(type) {
	case string:
		return ref
	case map[string]any:
		id, _ := ref["id"].(string)
		return id
	}
	return ""
}

func decodeCheckout(b base, object json.RawMessage) (*CheckoutCompleted, error) {
	var obj stripe.CheckoutSession
	if err := json.Unmarshal(object, &obj); err != nil {
		return nil, malformed("invalid checkout session: %v", err)
	}
	if obj.ID == "" {
		return nil, malformed("checkout session without id")
	}

	meta := obj.Metadata
	accountId := meta["accountId"]
	if accountId == "" {
		accountId = meta["userId"]
	}
	if accountId == "" {
		return nil, malformed("checkout session %s without account", obj.ID)
	}

	event := &CheckoutCompleted{
		base:        b,
		SessionId:   obj.ID,
		AccountId:   accountId,
		AmountTotal: obj.AmountTotal,
		UserAgent:   meta["userAgent"],
	}
	if obj.Customer != nil {
		event.CustomerRef = obj.Customer.ID
	}
	if obj.Subscription != nil {
		event.SubscriptionRef = obj.Subscription.ID
	}

	if itemType := meta["itemType"]; itemType != "" {
		amount, err := strconv.ParseInt(strings.TrimSpace(meta["amount"]), 10, 64)
		if err != nil {
			return nil, malformed("checkout session %s: invalid amount %q", obj.ID, meta["amount"])
		}
		price, err := decimal.NewFromString(strings.TrimSpace(meta["price"]))
		if err != nil {
			return nil, malformed("checkout session %s: invalid price %q", obj.ID, meta["price"])
		}
		priceType := meta["priceType"]
		if priceType == "" {
			priceType = catalog.PriceRegular
		}
		event.Purchase = &OneTimePurchase{
			PackageType: meta["packageType"],
			ItemType:    itemType,
			Amount:      amount,
			Price:       price,
			PriceType:   priceType,
		}
		return event, nil
	}

	plan, err := premium.ParsePlan(meta["planType"])
	if err != nil {
		return nil, malformed("checkout session %s: %v", obj.ID, err)
	}
	event.Subscription = &SubscriptionCheckout{
		Plan:      plan,
		PlanName:  meta["planName"],
		IsUpgrade: meta["isUpgrade"] == "true",
	}
	return event, nil
}
