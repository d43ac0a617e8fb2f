// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package wallet implements the append-only money ledger. Every balance
// change goes through Credit or Debit under a per-account lock, so the
// invariant balance == sum(credits) - sum(debits) holds at all times.
package wallet

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/metrics"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

// ErrInsufficientBalance is returned when a debit would overdraw the wallet.
// Debits are all-or-nothing; there are no partial debits or negative
// balances.
var ErrInsufficientBalance = errors.New("wallet: insufficient balance")

// ErrInvalidAmount is returned for zero or negative credit/debit amounts.
var ErrInvalidAmount = errors.New("wallet: amount must be positive")

// Publisher pushes wallet events to an account's connected clients.
// Implemented by the websocket hub; a nil publisher disables fan-out.
type Publisher interface {
	Publish(accountID, event string, payload interface{})
}

// Service serializes all ledger mutations per account. Distinct accounts
// proceed concurrently; operations on one account are strictly ordered.
type Service struct {
	store *store.Store
	pub   Publisher

	// onCredit runs after a successful credit, outside the account lock.
	// The billing controller registers its reactivation check here.
	onCredit func(accountID string)

	mapMu sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a wallet service backed by the given store.
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

// SetCreditHook registers a callback invoked after every successful credit,
// with the account lock released. Used for suspended-number reactivation.
func (s *Service) SetCreditHook(fn func(accountID string)) {
	s.onCredit = fn
}

// lockFor returns the mutex guarding one account's wallet, creating it on
// first use. Lock instances are never removed; the map grows with the
// account population, not with traffic.
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

// loadOrCreate fetches the account's wallet, creating an empty one on first
// access. Caller must hold the account lock.
func (s *Service) loadOrCreate(accountID string) (*models.Wallet, error) {
	w, err := s.store.GetWallet(accountID)
	if errors.Is(err, store.ErrNotFound) {
		w = models.NewWallet(accountID)
		if err := s.store.PutWallet(w); err != nil {
			return nil, err
		}
		return w, nil
	}
	if err != nil {
		return nil, err
	}

	if !w.Balance.Equal(w.ComputedBalance()) {
		logging.Warn().
			Str("account_id", accountID).
			Str("stored", w.Balance.String()).
			Str("computed", w.ComputedBalance().String()).
			Msg("Wallet balance diverged from transaction log")
	}
	return w, nil
}

// Snapshot returns the wallet's current state, creating an empty wallet for
// accounts that have never transacted. Transactions are ordered newest
// first by timestamp; array order in the stored log is not a contract.
func (s *Service) Snapshot(accountID string) (*models.Wallet, error) {
	mu := s.lockFor(accountID)
	mu.Lock()
	defer mu.Unlock()

	w, err := s.loadOrCreate(accountID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(w.Transactions, func(i, j int) bool {
		return w.Transactions[i].CreatedAt.After(w.Transactions[j].CreatedAt)
	})
	return w, nil
}

// HasBalance reports whether the wallet can cover the given amount.
// Advisory only: the answer can go stale before a following Debit, which
// re-checks under the lock.
func (s *Service) HasBalance(accountID string, amount decimal.Decimal) (bool, error) {
	w, err := s.Snapshot(accountID)
	if err != nil {
		return false, err
	}
	return w.Balance.GreaterThanOrEqual(amount), nil
}

// Stats aggregates the transaction log into lifetime credit/debit totals
// and the amount debited since the start of the current calendar month.
func (s *Service) Stats(accountID string) (*models.WalletStats, error) {
	w, err := s.Snapshot(accountID)
	if err != nil {
		return nil, err
	}

	monthStart := time.Now().UTC()
	monthStart = time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &models.WalletStats{
		Balance:          w.Balance,
		TotalCredited:    decimal.Zero,
		TotalDebited:     decimal.Zero,
		SpentThisMonth:   decimal.Zero,
		TransactionCount: len(w.Transactions),
	}
	for _, txn := range w.Transactions {
		switch txn.Kind {
		case models.TxnCredit:
			stats.TotalCredited = stats.TotalCredited.Add(txn.Amount)
		case models.TxnDebit:
			stats.TotalDebited = stats.TotalDebited.Add(txn.Amount)
			if !txn.CreatedAt.Before(monthStart) {
				stats.SpentThisMonth = stats.SpentThisMonth.Add(txn.Amount)
			}
		}
	}
	return stats, nil
}

// Credit adds funds and appends a credit transaction. On success the new
// balance is pushed to the account's sockets and the credit hook runs.
func (s *Service) Credit(accountID string, amount decimal.Decimal, description, reference string) (*models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	mu := s.lockFor(accountID)
	mu.Lock()
	w, err := s.loadOrCreate(accountID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}

	w.Balance = w.Balance.Add(amount)
	w.Transactions = append(w.Transactions, models.Transaction{
		ID:          uuid.New().String(),
		Kind:        models.TxnCredit,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		CreatedAt:   time.Now().UTC(),
	})
	w.UpdatedAt = time.Now().UTC()

	if err := s.store.PutWallet(w); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("persist credit: %w", err)
	}
	mu.Unlock()

	metrics.WalletCredits.Inc()
	logging.Info().
		Str("account_id", accountID).
		Str("amount", amount.String()).
		Str("balance", w.Balance.String()).
		Str("reference", reference).
		Msg("Wallet credited")

	s.publishBalance(accountID, w.Balance)
	if s.onCredit != nil {
		s.onCredit(accountID)
	}
	return w, nil
}

// Debit removes funds and appends a debit transaction. Fails atomically
// with ErrInsufficientBalance when the balance cannot cover the amount.
func (s *Service) Debit(accountID string, amount decimal.Decimal, description, reference string) (*models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	mu := s.lockFor(accountID)
	mu.Lock()
	w, err := s.loadOrCreate(accountID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}

	if w.Balance.LessThan(amount) {
		mu.Unlock()
		metrics.WalletInsufficientBalance.Inc()
		return nil, ErrInsufficientBalance
	}

	w.Balance = w.Balance.Sub(amount)
	w.Transactions = append(w.Transactions, models.Transaction{
		ID:          uuid.New().String(),
		Kind:        models.TxnDebit,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		CreatedAt:   time.Now().UTC(),
	})
	w.UpdatedAt = time.Now().UTC()

	if err := s.store.PutWallet(w); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("persist debit: %w", err)
	}
	mu.Unlock()

	metrics.WalletDebits.WithLabelValues(debitCategory(reference)).Inc()
	logging.Info().
		Str("account_id", accountID).
		Str("amount", amount.String()).
		Str("balance", w.Balance.String()).
		Str("reference", reference).
		Msg("Wallet debited")

	s.publishBalance(accountID, w.Balance)
	return w, nil
}

// RecordFailedCharge appends a balance-neutral audit entry documenting a
// charge that could not be collected. The balance does not move.
func (s *Service) RecordFailedCharge(accountID string, amount decimal.Decimal, description, reference string) error {
	mu := s.lockFor(accountID)
	mu.Lock()
	defer mu.Unlock()

	w, err := s.loadOrCreate(accountID)
	if err != nil {
		return err
	}

	w.Transactions = append(w.Transactions, models.Transaction{
		ID:          uuid.New().String(),
		Kind:        models.TxnAudit,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		CreatedAt:   time.Now().UTC(),
	})
	w.UpdatedAt = time.Now().UTC()

	return s.store.PutWallet(w)
}

func (s *Service) publishBalance(accountID string, balance decimal.Decimal) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(accountID, models.EventWalletUpdate, models.WalletUpdateEvent{Balance: balance})
}

// debitCategory buckets debit references for metrics.
func debitCategory(reference string) string {
	switch {
	case strings.HasPrefix(reference, "SMS_"):
		return "sms"
	case strings.HasPrefix(reference, "NUMBER_"):
		return "number_purchase"
	case strings.HasPrefix(reference, "MONTHLY_"):
		return "monthly_charge"
	default:
		return "other"
	}
}
