// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NumberStatus is the lifecycle state of an owned phone number.
type NumberStatus string

const (
	// NumberPending is the state of a number between purchase request and
	// carrier confirmation.
	NumberPending NumberStatus = "pending"

	// NumberActive numbers can send and receive and accrue monthly charges.
	NumberActive NumberStatus = "active"

	// NumberSuspended numbers failed their last monthly charge. They cannot
	// send until reactivated by a sufficient wallet credit.
	NumberSuspended NumberStatus = "suspended"

	// NumberInactive is terminal: released numbers are never reactivated.
	NumberInactive NumberStatus = "inactive"
)

// NumberType classifies a phone number for pricing.
type NumberType string

const (
	NumberTypeLocal    NumberType = "local"
	NumberTypeTollFree NumberType = "toll-free"
)

// Monthly rates by number type.
var (
	rateLocal    = decimal.NewFromFloat(1.00)
	rateTollFree = decimal.NewFromFloat(2.00)
)

// MonthlyRateFor returns the monthly charge for a number type.
// Unknown types are billed at the local rate.
func MonthlyRateFor(t NumberType) decimal.Decimal {
	if t == NumberTypeTollFree {
		return rateTollFree
	}
	return rateLocal
}

// PhoneNumber is a carrier number owned by an admin account.
//
// ActiveForSending is a user-facing toggle distinct from lifecycle Status:
// it marks the preferred default sender and never blocks delivery.
type PhoneNumber struct {
	ID               string       `json:"id"`
	AccountID        string       `json:"accountId"`
	Number           string       `json:"number"`
	CarrierSID       string       `json:"carrierSid"`
	Type             NumberType   `json:"type"`
	Status           NumberStatus `json:"status"`
	ActiveForSending bool         `json:"activeForSending"`
	Location         string       `json:"location"`
	Country          string       `json:"country"`
	PurchasedAt      time.Time    `json:"purchasedAt"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// MonthlyRate returns the recurring charge for this number.
func (p *PhoneNumber) MonthlyRate() decimal.Decimal {
	return MonthlyRateFor(p.Type)
}

// Usable reports whether the number may originate messages right now.
// Suspended and inactive numbers can never send. The ActiveForSending
// toggle selects a default sending number in the client and does not gate
// delivery.
func (p *PhoneNumber) Usable() bool {
	return p.Status == NumberActive
}
