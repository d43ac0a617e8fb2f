// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package store

import (
	"github.com/goccy/go-json"

	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// PutContact stores a contact and its phone lookup index. Contacts are
// scoped per account: two accounts may each have a contact for the same
// phone number.
func (s *Store) PutContact(c *models.Contact) error {
	if err := s.put(contactKeyPrefix+c.AccountID+":"+c.ID, c); err != nil {
		return err
	}
	return s.putIndex(contactPhoneKeyPrefix+c.AccountID+":"+c.PhoneNumber, c.ID)
}

// GetContact loads a contact by owner and ID.
func (s *Store) GetContact(accountID, id string) (*models.Contact, error) {
	var c models.Contact
	if err := s.get(contactKeyPrefix+accountID+":"+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindContactByPhone loads the account's contact for a phone number.
func (s *Store) FindContactByPhone(accountID, phone string) (*models.Contact, error) {
	id, err := s.getIndexed(contactPhoneKeyPrefix + accountID + ":" + phone)
	if err != nil {
		return nil, err
	}
	return s.GetContact(accountID, id)
}

// ListContacts returns all contacts owned by the given account.
func (s *Store) ListContacts(accountID string) ([]*models.Contact, error) {
	var contacts []*models.Contact
	err := s.iteratePrefix(contactKeyPrefix+accountID+":", func(_ string, val []byte) error {
		var c models.Contact
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		contacts = append(contacts, &c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

// DeleteContact removes a contact, its phone index, and every message in
// its conversation. Message history does not outlive the contact.
func (s *Store) DeleteContact(accountID, id string) error {
	c, err := s.GetContact(accountID, id)
	if err != nil {
		return err
	}

	keys := []string{
		contactKeyPrefix + accountID + ":" + id,
		contactPhoneKeyPrefix + accountID + ":" + c.PhoneNumber,
	}

	err = s.iteratePrefix(messageKeyPrefix+id+":", func(key string, val []byte) error {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		keys = append(keys, key, messageIDKeyPrefix+m.ID)
		if m.CarrierSID != "" {
			keys = append(keys, messageSIDKeyPrefix+m.CarrierSID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.delete(keys...)
}
