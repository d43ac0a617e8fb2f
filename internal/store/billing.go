// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package store

import (
	"github.com/goccy/go-json"

	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// PutCycleRecord marks a (cycle, number) pair as processed.
func (s *Store) PutCycleRecord(r *models.BillingCycleRecord) error {
	return s.put(cycleKeyPrefix+r.CycleRef+":"+r.NumberID, r)
}

// GetCycleRecord loads the processing record for a (cycle, number) pair.
// ErrNotFound means the number has not been billed in this cycle yet.
func (s *Store) GetCycleRecord(cycleRef, numberID string) (*models.BillingCycleRecord, error) {
	var r models.BillingCycleRecord
	if err := s.get(cycleKeyPrefix+cycleRef+":"+numberID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListCycleRecords returns every processing record for one cycle.
func (s *Store) ListCycleRecords(cycleRef string) ([]*models.BillingCycleRecord, error) {
	var records []*models.BillingCycleRecord
	err := s.iteratePrefix(cycleKeyPrefix+cycleRef+":", func(_ string, val []byte) error {
		var r models.BillingCycleRecord
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		records = append(records, &r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
