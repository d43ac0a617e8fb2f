// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package billing runs the monthly number-rental cycle: charging each
// active number's monthly rate, suspending numbers whose wallet cannot
// pay, and reactivating them when a top-up restores the balance.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/metrics"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/numbers"
	"github.com/Hammadsoomro/Connectlify/internal/store"
	"github.com/Hammadsoomro/Connectlify/internal/wallet"
)

// Controller owns the billing cycle state machine.
type Controller struct {
	store    *store.Store
	wallet   *wallet.Service
	numbers  *numbers.Service
	cycleDay int

	// now is swappable for tests.
	now func() time.Time
}

// New creates a billing controller. cycleDay is the day of month (1-28)
// the cycle runs on.
func New(st *store.Store, w *wallet.Service, n *numbers.Service, cycleDay int) *Controller {
	return &Controller{
		store:    st,
		wallet:   w,
		numbers:  n,
		cycleDay: cycleDay,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CycleRef identifies a billing cycle by year and month, e.g. "2026-03".
// One number is charged at most once per cycle ref.
func CycleRef(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NextBillingDate returns the next cycle date strictly after t.
func (c *Controller) NextBillingDate(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), c.cycleDay, 0, 0, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// RunAll settles every account owning active numbers for the current
// cycle. Safe to call repeatedly: numbers already settled in this cycle
// are excluded via their cycle record.
func (c *Controller) RunAll(ctx context.Context) error {
	cycleRef := CycleRef(c.now())

	active, err := c.numbers.ListByStatus(models.NumberActive)
	if err != nil {
		return fmt.Errorf("list active numbers: %w", err)
	}

	byAccount := make(map[string][]*models.PhoneNumber)
	for _, n := range active {
		byAccount[n.AccountID] = append(byAccount[n.AccountID], n)
	}

	// DETERMINISM: Settle accounts in a fixed order so partial runs and
	// retries bill the same way every time.
	accounts := make([]string, 0, len(byAccount))
	for id := range byAccount {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)

	logging.Info().
		Str("cycle", cycleRef).
		Int("accounts", len(accounts)).
		Int("numbers", len(active)).
		Msg("Billing cycle started")

	var firstErr error
	for _, accountID := range accounts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.runAccount(cycleRef, accountID, byAccount[accountID]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runAccount settles one account's cycle with a single debit covering all
// of its unbilled active numbers. The charge is all-or-nothing: either the
// wallet pays the full total, or no money moves and every active number
// suspends.
func (c *Controller) runAccount(cycleRef, accountID string, active []*models.PhoneNumber) error {
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	// A number settled earlier in this cycle, such as a mid-month purchase
	// whose setup cost stands in for the cycle charge, is excluded from
	// the total.
	var due []*models.PhoneNumber
	total := decimal.Zero
	for _, n := range active {
		if _, err := c.store.GetCycleRecord(cycleRef, n.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		due = append(due, n)
		total = total.Add(n.MonthlyRate())
	}
	if len(due) == 0 {
		return nil
	}

	reference := fmt.Sprintf("MONTHLY_%s", cycleRef)
	description := fmt.Sprintf("Monthly charge for %d number(s)", len(due))

	_, err := c.wallet.Debit(accountID, total, description, reference)
	if err == nil {
		for _, n := range due {
			metrics.BillingCyclesRun.WithLabelValues(string(models.CycleCharged)).Inc()
			if err := c.writeRecord(cycleRef, n, models.CycleCharged, n.MonthlyRate()); err != nil {
				return err
			}
		}
		return nil
	}
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		return fmt.Errorf("debit monthly charge for account %s: %w", accountID, err)
	}

	// The wallet cannot cover the account's total. No partial collection:
	// record one balance-neutral failed charge, then suspend every active
	// number the account owns, settled or not.
	failedRef := fmt.Sprintf("MONTHLY_FAILED_%s", cycleRef)
	if err := c.wallet.RecordFailedCharge(accountID, total,
		fmt.Sprintf("Failed monthly charge for %d number(s)", len(due)), failedRef); err != nil {
		return err
	}
	for _, n := range active {
		if _, err := c.numbers.SetStatus(n.ID, models.NumberSuspended); err != nil {
			return err
		}
	}
	for _, n := range due {
		metrics.BillingCyclesRun.WithLabelValues(string(models.CycleSuspended)).Inc()
		if err := c.writeRecord(cycleRef, n, models.CycleSuspended, n.MonthlyRate()); err != nil {
			return err
		}
	}

	logging.Warn().
		Str("account_id", accountID).
		Str("cycle", cycleRef).
		Str("total", total.String()).
		Int("suspended", len(active)).
		Msg("Account suspended, wallet could not cover monthly charge")
	return nil
}

func (c *Controller) writeRecord(cycleRef string, n *models.PhoneNumber, outcome models.CycleOutcome, amount decimal.Decimal) error {
	return c.store.PutCycleRecord(&models.BillingCycleRecord{
		CycleRef:  cycleRef,
		NumberID:  n.ID,
		AccountID: n.AccountID,
		Outcome:   outcome,
		Amount:    amount,
		CreatedAt: c.now(),
	})
}

// Reconcile reactivates the account's suspended numbers once the wallet
// covers the sum of their monthly rates. Registered as the wallet's credit
// hook, so every top-up triggers it.
//
// Reconciliation never moves money. Suspended numbers were already skipped
// for the current cycle; the next cycle run charges them normally. It is
// also all-or-nothing: either the balance covers every suspended number or
// none comes back, so funding order never decides which number returns.
func (c *Controller) Reconcile(accountID string) {
	suspended, err := c.numbers.ListByStatus(models.NumberSuspended)
	if err != nil {
		logging.Error().Err(err).Msg("Reconcile could not list suspended numbers")
		return
	}

	var owned []*models.PhoneNumber
	total := decimal.Zero
	for _, n := range suspended {
		if n.AccountID == accountID {
			owned = append(owned, n)
			total = total.Add(n.MonthlyRate())
		}
	}
	if len(owned) == 0 {
		return
	}

	ok, err := c.wallet.HasBalance(accountID, total)
	if err != nil || !ok {
		return
	}

	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })

	for _, n := range owned {
		if _, err := c.numbers.SetStatus(n.ID, models.NumberActive); err != nil {
			logging.Error().Err(err).Str("number", n.Number).Msg("Reactivation status change failed")
			return
		}
		metrics.BillingReactivations.Inc()
		logging.Info().
			Str("account_id", accountID).
			Str("number", n.Number).
			Msg("Number reactivated after top-up")
	}
}

// SummaryEntry describes one number's billing state.
type SummaryEntry struct {
	NumberID    string              `json:"numberId"`
	Number      string              `json:"number"`
	Type        models.NumberType   `json:"type"`
	Status      models.NumberStatus `json:"status"`
	MonthlyRate decimal.Decimal     `json:"monthlyRate"`
}

// Summary is an admin's billing overview.
type Summary struct {
	AccountID        string          `json:"accountId"`
	MonthlyTotal     decimal.Decimal `json:"monthlyTotal"`
	SuspendedOwed    decimal.Decimal `json:"suspendedOwed"`
	NextBillingDate  time.Time       `json:"nextBillingDate"`
	DaysUntilBilling int             `json:"daysUntilBilling"`
	CanCoverNext     bool            `json:"canCoverNext"`
	Numbers          []SummaryEntry  `json:"numbers"`
}

// BuildSummary computes the billing overview for one admin account.
func (c *Controller) BuildSummary(accountID string) (*Summary, error) {
	owned, err := c.numbers.ListByOwner(accountID)
	if err != nil {
		return nil, err
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })

	now := c.now()
	next := c.NextBillingDate(now)
	summary := &Summary{
		AccountID:        accountID,
		MonthlyTotal:     decimal.Zero,
		SuspendedOwed:    decimal.Zero,
		NextBillingDate:  next,
		DaysUntilBilling: int(next.Sub(now).Hours() / 24),
	}
	for _, n := range owned {
		rate := n.MonthlyRate()
		switch n.Status {
		case models.NumberActive:
			summary.MonthlyTotal = summary.MonthlyTotal.Add(rate)
		case models.NumberSuspended:
			summary.SuspendedOwed = summary.SuspendedOwed.Add(rate)
		}
		summary.Numbers = append(summary.Numbers, SummaryEntry{
			NumberID:    n.ID,
			Number:      n.Number,
			Type:        n.Type,
			Status:      n.Status,
			MonthlyRate: rate,
		})
	}

	// Suspended numbers come back on the next credit, so the next cycle
	// must cover active and suspended rates together.
	due := summary.MonthlyTotal.Add(summary.SuspendedOwed)
	if ok, err := c.wallet.HasBalance(accountID, due); err == nil {
		summary.CanCoverNext = ok
	}
	return summary, nil
}
