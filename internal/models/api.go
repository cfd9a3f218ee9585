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

package models

import (
	"github.com/shopspring/decimal"
)

// WebhookAck is the body returned for every accepted gateway delivery
type WebhookAck struct {
	Received bool `json:"received"`
}

// ErrorResponse is the body of every non-2xx admin response
type ErrorResponse struct {
	Error string `json:"error"`
}

// GiftRequest moves a balance from one account to another
type GiftRequest struct {
	FromAccountId string      `json:"fromAccountId"`
	ToAccountId   string      `json:"toAccountId"`
	Kind          BalanceKind `json:"kind,omitempty"` // defaults to coins
	Amount        int64       `json:"amount"`
	Reference     string      `json:"reference,omitempty"`
}

// GiftResult represents the outcome of a committed gift
type GiftResult struct {
	FromAccountId    string      `json:"fromAccountId"`
	ToAccountId      string      `json:"toAccountId"`
	Kind             BalanceKind `json:"kind"`
	Amount           int64       `json:"amount"`
	SenderBalance    int64       `json:"senderBalance"`
	RecipientBalance int64       `json:"recipientBalance"`
}

// BalanceAudit is one balance checked against the sum of its journal entries
type BalanceAudit struct {
	AccountId string      `json:"accountId"`
	Email     string      `json:"email"`
	Kind      BalanceKind `json:"kind"`
	Balance   int64       `json:"balance"`
	Matches   bool        `json:"matches"`
	Error     string      `json:"error,omitempty"`
}

// PlanChangeRequest asks for an upgrade to a higher plan
type PlanChangeRequest struct {
	Plan string `json:"plan"`
}

// PayoutResult summarizes a pay-all run for one referrer
type PayoutResult struct {
	ReferrerId string            `json:"referrerId"`
	Paid       []ReferralEarning `json:"paid"`
	Total      decimal.Decimal   `json:"total"`
}

// PurchaseRequest is what a client asks to buy; every field is checked against the catalog
type PurchaseRequest struct {
	PackageType   string          `json:"packageType"`
	ItemType      string          `json:"itemType"`
	Amount        int64           `json:"amount"`
	Price         decimal.Decimal `json:"price"`
	PriceType     string          `json:"priceType,omitempty"` // defaults to regular
	CustomerEmail string          `json:"customerEmail,omitempty"`
	UserAgent     string          `json:"userAgent,omitempty"`
}

// PurchaseInitiation is an opened checkout waiting for the gateway to confirm payment
type PurchaseInitiation struct {
	TransactionId string          `json:"transactionId"`
	SessionId     string          `json:"sessionId"`
	CheckoutURL   string          `json:"checkoutUrl"`
	PackageType   string          `json:"packageType"`
	Amount        int64           `json:"amount"`
	Price         decimal.Decimal `json:"price"`
	PriceType     string          `json:"priceType"`
}

// BalanceAdjustment is a manual credit (positive delta) or debit (negative delta)
type BalanceAdjustment struct {
	Kind      BalanceKind `json:"kind,omitempty"` // defaults to coins
	Delta     int64       `json:"delta"`
	Reason    string      `json:"reason,omitempty"`
	Reference string      `json:"reference,omitempty"`
}

// BalanceResult is an account balance after an adjustment
type BalanceResult struct {
	AccountId string      `json:"accountId"`
	Kind      BalanceKind `json:"kind"`
	Balance   int64       `json:"balance"`
}
