package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"premium-referral-go/internal/models"

	"github.com/stripe/stripe-go/v76"
)

// laterFields are invoice and subscription fields added after the API version the
// SDK models (2023-10-16): invoice and line-item parents, item-level billing periods.
type laterFields struct {
	Parent *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Parent *struct {
				SubscriptionItemDetails *struct {
					Subscription string `json:"subscription"`
				} `json:"subscription_item_details"`
			} `json:"parent"`
		} `json:"data"`
	} `json:"lines"`
	Items struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// decodeLaterFields is lenient: a body without these fields yields zero values.
func decodeLaterFields(raw []byte) laterFields {
	var f laterFields
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &f)
	}
	return f
}

func rawJSON(resp *stripe.APIResponse) []byte {
	if resp == nil {
		return nil
	}
	return resp.RawJSON
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// invoiceSubscriptionRef finds the subscription an invoice bills: the top-level field,
// then the invoice parent, then the first line item.
func invoiceSubscriptionRef(in *stripe.Invoice, later laterFields) string {
	if in.Subscription != nil && in.Subscription.ID != "" {
		return in.Subscription.ID
	}
	if p := later.Parent; p != nil && p.SubscriptionDetails != nil && p.SubscriptionDetails.Subscription != "" {
		return p.SubscriptionDetails.Subscription
	}
	if in.Lines != nil && len(in.Lines.Data) > 0 {
		if line := in.Lines.Data[0]; line != nil && line.Subscription != nil && line.Subscription.ID != "" {
			return line.Subscription.ID
		}
	}
	if len(later.Lines.Data) > 0 {
		if p := later.Lines.Data[0].Parent; p != nil && p.SubscriptionItemDetails != nil {
			return p.SubscriptionItemDetails.Subscription
		}
	}
	return ""
}

func invoiceModel(in *stripe.Invoice, raw []byte) *models.GatewayInvoice {
	invoice := &models.GatewayInvoice{
		Id:              in.ID,
		SubscriptionRef: invoiceSubscriptionRef(in, decodeLaterFields(raw)),
		CustomerEmail:   in.CustomerEmail,
		AmountPaid:      in.AmountPaid,
		AmountDue:       in.AmountDue,
		AttemptCount:    int(in.AttemptCount),
		BillingReason:   string(in.BillingReason),
	}
	if in.Customer != nil {
		invoice.CustomerRef = in.Customer.ID
	}
	if created := unixTime(in.Created); created != nil {
		invoice.Created = *created
	}
	if in.Lines != nil && len(in.Lines.Data) > 0 {
		if line := in.Lines.Data[0]; line != nil && line.Period != nil {
			invoice.PeriodEnd = unixTime(line.Period.End)
		}
	}
	return invoice
}

func subscriptionModel(sub *stripe.Subscription, raw []byte) *models.GatewaySubscription {
	periodEnd := sub.CurrentPeriodEnd
	if periodEnd == 0 {
		if items := decodeLaterFields(raw).Items.Data; len(items) > 0 {
			periodEnd = items[0].CurrentPeriodEnd
		}
	}
	model := &models.GatewaySubscription{
		Id:                sub.ID,
		Status:            string(sub.Status),
		CurrentPeriodEnd:  unixTime(periodEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		model.CustomerRef = sub.Customer.ID
	}
	return model
}

// ParseInvoice decodes an invoice object as delivered in webhook payloads.
func ParseInvoice(data []byte) (*models.GatewayInvoice, error) {
	var in stripe.Invoice
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unable to decode invoice: %w", err)
	}
	if in.ID == "" {
		return nil, fmt.Errorf("invoice without id")
	}
	return invoiceModel(&in, data), nil
}

// ParseSubscription decodes a subscription object as delivered in webhook payloads.
func ParseSubscription(data []byte) (*models.GatewaySubscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("unable to decode subscription: %w", err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("subscription without id")
	}
	return subscriptionModel(&sub, data), nil
}
