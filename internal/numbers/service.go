// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package numbers manages the phone number lifecycle. All status changes
// flow through SetStatus, which enforces the transition table and notifies
// the owning account's sockets.
package numbers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

// ErrInvalidTransition is returned for a status change the lifecycle does
// not allow, such as reactivating a released number.
var ErrInvalidTransition = errors.New("numbers: invalid status transition")

// validTransitions is the number lifecycle. inactive is terminal.
var validTransitions = map[models.NumberStatus][]models.NumberStatus{
	models.NumberPending:   {models.NumberActive},
	models.NumberActive:    {models.NumberSuspended, models.NumberInactive},
	models.NumberSuspended: {models.NumberActive, models.NumberInactive},
	models.NumberInactive:  {},
}

func transitionAllowed(from, to models.NumberStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Publisher pushes number events to an account's connected clients.
type Publisher interface {
	Publish(accountID, event string, payload interface{})
}

// Service owns phone number state. Mutations on one number are serialized
// through its owner's lock so concurrent billing and API calls cannot
// interleave a read-modify-write.
type Service struct {
	store *store.Store
	pub   Publisher

	mapMu sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a number service backed by the given store.
func New(st *store.Store) *Service {
	return &Service{
		store: st,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetPublisher wires the event fan-out. Safe to leave unset in tests.
func (s *Service) SetPublisher(p Publisher) {
	s.pub = p
}

func (s *Service) lockFor(accountID string) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	mu, ok := s.locks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[accountID] = mu
	}
	return mu
}

// Create stores a newly purchased number.
func (s *Service) Create(n *models.PhoneNumber) error {
	mu := s.lockFor(n.AccountID)
	mu.Lock()
	defer mu.Unlock()
	return s.store.PutNumber(n)
}

// Get loads a number by ID.
func (s *Service) Get(id string) (*models.PhoneNumber, error) {
	return s.store.GetNumber(id)
}

// ListByOwner returns all numbers owned by the given account.
func (s *Service) ListByOwner(accountID string) ([]*models.PhoneNumber, error) {
	return s.store.ListNumbersByAccount(accountID)
}

// ListByStatus returns all numbers in the given state across accounts.
func (s *Service) ListByStatus(status models.NumberStatus) ([]*models.PhoneNumber, error) {
	return s.store.ListNumbersByStatus(status)
}

// SetStatus moves a number through its lifecycle. Idempotent: setting the
// current status is a no-op. Invalid transitions return
// ErrInvalidTransition with the number unchanged.
func (s *Service) SetStatus(id string, to models.NumberStatus) (*models.PhoneNumber, error) {
	n, err := s.store.GetNumber(id)
	if err != nil {
		return nil, err
	}

	mu := s.lockFor(n.AccountID)
	mu.Lock()

	// Re-read under the lock; another caller may have moved it.
	n, err = s.store.GetNumber(id)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	if n.Status == to {
		mu.Unlock()
		return n, nil
	}
	if !transitionAllowed(n.Status, to) {
		mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.Status, to)
	}

	from := n.Status
	n.Status = to
	n.UpdatedAt = time.Now().UTC()
	if err := s.store.PutNumber(n); err != nil {
		mu.Unlock()
		return nil, err
	}
	mu.Unlock()

	logging.Info().
		Str("number_id", n.ID).
		Str("number", n.Number).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Number status changed")

	if s.pub != nil {
		s.pub.Publish(n.AccountID, models.EventNumberStatus, models.NumberStatusEvent{
			NumberID: n.ID,
			Number:   n.Number,
			Status:   n.Status,
		})
	}
	return n, nil
}

// ToggleSending flips the client-facing default-sender toggle. The toggle
// never affects lifecycle status or billing.
func (s *Service) ToggleSending(id string, active bool) (*models.PhoneNumber, error) {
	n, err := s.store.GetNumber(id)
	if err != nil {
		return nil, err
	}

	mu := s.lockFor(n.AccountID)
	mu.Lock()
	defer mu.Unlock()

	n, err = s.store.GetNumber(id)
	if err != nil {
		return nil, err
	}
	n.ActiveForSending = active
	n.UpdatedAt = time.Now().UTC()
	if err := s.store.PutNumber(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Release retires a number permanently. Released numbers keep their record
// for message history but never send, receive, or bill again.
func (s *Service) Release(id string) (*models.PhoneNumber, error) {
	return s.SetStatus(id, models.NumberInactive)
}
