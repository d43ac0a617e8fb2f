// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package store

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// messageStorageKey builds the conversation-ordered primary key. Keys sort
// lexicographically by creation time within a contact, so prefix iteration
// yields a conversation oldest-first.
func messageStorageKey(m *models.Message) string {
	return fmt.Sprintf("%s%s:%020d:%s", messageKeyPrefix, m.ContactID, m.CreatedAt.UnixNano(), m.ID)
}

// PutMessage stores a new message with its ID and carrier-SID indexes.
func (s *Store) PutMessage(m *models.Message) error {
	key := messageStorageKey(m)
	if err := s.put(key, m); err != nil {
		return err
	}
	if err := s.putIndex(messageIDKeyPrefix+m.ID, key); err != nil {
		return err
	}
	if m.CarrierSID != "" {
		return s.putIndex(messageSIDKeyPrefix+m.CarrierSID, key)
	}
	return nil
}

// UpdateMessage rewrites an existing message in place. The creation time
// must not change; the storage key is derived from it.
func (s *Store) UpdateMessage(m *models.Message) error {
	key, err := s.getIndexed(messageIDKeyPrefix + m.ID)
	if err != nil {
		return err
	}
	if err := s.put(key, m); err != nil {
		return err
	}
	// A carrier SID arrives after creation for outbound messages.
	if m.CarrierSID != "" {
		return s.putIndex(messageSIDKeyPrefix+m.CarrierSID, key)
	}
	return nil
}

// GetMessage loads a message by ID.
func (s *Store) GetMessage(id string) (*models.Message, error) {
	key, err := s.getIndexed(messageIDKeyPrefix + id)
	if err != nil {
		return nil, err
	}
	var m models.Message
	if err := s.get(key, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByCarrierSID loads a message by the carrier's message SID.
// Used by delivery status callbacks.
func (s *Store) GetMessageByCarrierSID(sid string) (*models.Message, error) {
	key, err := s.getIndexed(messageSIDKeyPrefix + sid)
	if err != nil {
		return nil, err
	}
	var m models.Message
	if err := s.get(key, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a contact's conversation oldest-first. A limit of 0
// returns everything; otherwise the newest limit messages are returned.
func (s *Store) ListMessages(contactID string, limit int) ([]*models.Message, error) {
	var messages []*models.Message
	err := s.iteratePrefix(messageKeyPrefix+contactID+":", func(_ string, val []byte) error {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		messages = append(messages, &m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
