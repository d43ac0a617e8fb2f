// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleOutcome records what happened when a billing cycle processed a number.
type CycleOutcome string

const (
	// CycleCharged means the monthly rate was debited successfully.
	CycleCharged CycleOutcome = "charged"

	// CycleSuspended means the wallet could not cover the charge and the
	// number was moved to suspended.
	CycleSuspended CycleOutcome = "suspended"

	// CycleSkipped means the number was not billable in this cycle
	// (already suspended or inactive).
	CycleSkipped CycleOutcome = "skipped"
)

// BillingCycleRecord marks one (cycle, number) pair as processed. Its
// existence makes cycle runs idempotent: re-running a cycle never
// double-charges a number.
type BillingCycleRecord struct {
	CycleRef  string          `json:"cycleRef"`
	NumberID  string          `json:"numberId"`
	AccountID string          `json:"accountId"`
	Outcome   CycleOutcome    `json:"outcome"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}
