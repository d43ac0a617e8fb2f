// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package store

import (
	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// PutWallet stores a wallet keyed by its owning account.
func (s *Store) PutWallet(w *models.Wallet) error {
	return s.put(walletKeyPrefix+w.AccountID, w)
}

// GetWallet loads an account's wallet. Returns ErrNotFound when the account
// has never been credited or debited; the wallet service creates wallets
// lazily on first use.
func (s *Store) GetWallet(accountID string) (*models.Wallet, error) {
	var w models.Wallet
	if err := s.get(walletKeyPrefix+accountID, &w); err != nil {
		return nil, err
	}
	return &w, nil
}
