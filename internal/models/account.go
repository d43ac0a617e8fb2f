// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package models defines the domain types shared across Connectlify:
// accounts, wallets, phone numbers, contacts, messages, and the API
// response envelope.
package models

import "time"

// Role distinguishes billing-responsible admin accounts from sub-accounts
// that send through numbers assigned to them by their admin.
type Role string

const (
	// RoleAdmin owns the wallet, purchases numbers, and pays for usage.
	RoleAdmin Role = "admin"

	// RoleSubAccount sends only through numbers assigned by its admin.
	// Sub-accounts carry no billing responsibility.
	RoleSubAccount Role = "sub-account"
)

// Account is a platform user. Sub-accounts reference their owning admin via
// AdminID and may only use numbers listed in AssignedNumbers.
//
// Invariant: AssignedNumbers must be a subset of the numbers owned by the
// account's admin. The assignment handler enforces this on write.
type Account struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"role"`
	AdminID         string    `json:"adminId,omitempty"`
	AssignedNumbers []string  `json:"assignedNumbers,omitempty"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// BillingAccountID returns the account that pays for this account's usage:
// the account itself for admins, the owning admin for sub-accounts.
func (a *Account) BillingAccountID() string {
	if a.Role == RoleSubAccount && a.AdminID != "" {
		return a.AdminID
	}
	return a.ID
}

// HasAssignedNumber reports whether the given number is assigned to this
// sub-account. Always false for numbers not present in AssignedNumbers,
// regardless of who owns them.
func (a *Account) HasAssignedNumber(number string) bool {
	for _, n := range a.AssignedNumbers {
		if n == number {
			return true
		}
	}
	return false
}
