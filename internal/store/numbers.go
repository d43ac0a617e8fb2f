// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package store

import (
	"github.com/goccy/go-json"

	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// PutNumber stores a phone number and its E.164 lookup index.
func (s *Store) PutNumber(n *models.PhoneNumber) error {
	if err := s.put(numberKeyPrefix+n.ID, n); err != nil {
		return err
	}
	return s.putIndex(numberE164KeyPrefix+n.Number, n.ID)
}

// GetNumber loads a phone number by ID.
func (s *Store) GetNumber(id string) (*models.PhoneNumber, error) {
	var n models.PhoneNumber
	if err := s.get(numberKeyPrefix+id, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNumberByE164 loads a phone number by its E.164 string. Used by the
// inbound webhook to find the owner of a receiving number.
func (s *Store) GetNumberByE164(number string) (*models.PhoneNumber, error) {
	id, err := s.getIndexed(numberE164KeyPrefix + number)
	if err != nil {
		return nil, err
	}
	return s.GetNumber(id)
}

// ListNumbersByAccount returns all numbers owned by the given account.
func (s *Store) ListNumbersByAccount(accountID string) ([]*models.PhoneNumber, error) {
	return s.listNumbers(func(n *models.PhoneNumber) bool {
		return n.AccountID == accountID
	})
}

// ListNumbersByStatus returns all numbers in the given lifecycle state
// across every account. The billing controller uses this to enumerate
// billable and suspended numbers.
func (s *Store) ListNumbersByStatus(status models.NumberStatus) ([]*models.PhoneNumber, error) {
	return s.listNumbers(func(n *models.PhoneNumber) bool {
		return n.Status == status
	})
}

func (s *Store) listNumbers(keep func(*models.PhoneNumber) bool) ([]*models.PhoneNumber, error) {
	var numbers []*models.PhoneNumber
	err := s.iteratePrefix(numberKeyPrefix, func(_ string, val []byte) error {
		var n models.PhoneNumber
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if keep(&n) {
			numbers = append(numbers, &n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return numbers, nil
}
