// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies ledger entries.
type TransactionKind string

const (
	// TxnCredit adds funds to the wallet balance.
	TxnCredit TransactionKind = "credit"

	// TxnDebit removes funds from the wallet balance.
	TxnDebit TransactionKind = "debit"

	// TxnAudit records a balance-neutral event in the transaction log,
	// such as a failed monthly charge. Audit entries never move money and
	// are excluded from balance computation.
	TxnAudit TransactionKind = "audit"
)

// Transaction is a single append-only ledger entry. Entries are never
// updated or deleted; the wallet balance is always derivable as
// sum(credits) - sum(debits).
type Transaction struct {
	ID          string          `json:"id"`
	Kind        TransactionKind `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Wallet holds one admin account's balance and transaction log. Wallets are
// created lazily with a zero balance on first access and are never deleted.
// Balance is mutated only through the wallet service's Credit/Debit
// operations, never by direct assignment.
type Wallet struct {
	AccountID    string          `json:"accountId"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	Transactions []Transaction   `json:"transactions"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NewWallet returns an empty active USD wallet for the given account.
func NewWallet(accountID string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		AccountID: accountID,
		Balance:   decimal.Zero,
		Currency:  "USD",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ComputedBalance derives the balance from the transaction log. Audit
// entries are skipped. Used by tests and consistency checks; the stored
// Balance field must always equal this value.
func (w *Wallet) ComputedBalance() decimal.Decimal {
	total := decimal.Zero
	for _, txn := range w.Transactions {
		switch txn.Kind {
		case TxnCredit:
			total = total.Add(txn.Amount)
		case TxnDebit:
			total = total.Sub(txn.Amount)
		}
	}
	return total
}

// WalletStats summarizes a wallet's lifetime and current-month activity.
type WalletStats struct {
	Balance          decimal.Decimal `json:"balance"`
	TotalCredited    decimal.Decimal `json:"totalCredited"`
	TotalDebited     decimal.Decimal `json:"totalDebited"`
	SpentThisMonth   decimal.Decimal `json:"spentThisMonth"`
	TransactionCount int             `json:"transactionCount"`
}
