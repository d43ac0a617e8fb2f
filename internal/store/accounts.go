// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package store

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// PutAccount stores an account and its email lookup index.
func (s *Store) PutAccount(a *models.Account) error {
	if err := s.put(accountKeyPrefix+a.ID, a); err != nil {
		return err
	}
	return s.putIndex(accountEmailKeyPrefix+strings.ToLower(a.Email), a.ID)
}

// GetAccount loads an account by ID.
func (s *Store) GetAccount(id string) (*models.Account, error) {
	var a models.Account
	if err := s.get(accountKeyPrefix+id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountByEmail loads an account by email, case-insensitively.
func (s *Store) GetAccountByEmail(email string) (*models.Account, error) {
	id, err := s.getIndexed(accountEmailKeyPrefix + strings.ToLower(email))
	if err != nil {
		return nil, err
	}
	return s.GetAccount(id)
}

// ListSubAccounts returns all sub-accounts owned by the given admin.
func (s *Store) ListSubAccounts(adminID string) ([]*models.Account, error) {
	var subs []*models.Account
	err := s.iteratePrefix(accountKeyPrefix, func(_ string, val []byte) error {
		var a models.Account
		if err := json.Unmarshal(val, &a); err != nil {
			return err
		}
		if a.Role == models.RoleSubAccount && a.AdminID == adminID {
			subs = append(subs, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}
