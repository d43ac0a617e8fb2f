// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package store

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestStore(t)

	a := &models.Account{
		ID:       "acc-1",
		Name:     "Admin",
		Email:    "Admin@Example.com",
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := s.PutAccount(a); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}

	got, err := s.GetAccount("acc-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Email != a.Email || got.Role != models.RoleAdmin {
		t.Errorf("got %+v, want stored account", got)
	}

	// Email lookup is case-insensitive.
	byEmail, err := s.GetAccountByEmail("admin@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	if byEmail.ID != "acc-1" {
		t.Errorf("email lookup returned %s, want acc-1", byEmail.ID)
	}

	if _, err := s.GetAccount("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing account error = %v, want ErrNotFound", err)
	}
}

func TestListSubAccounts(t *testing.T) {
	s := newTestStore(t)

	accounts := []*models.Account{
		{ID: "admin-1", Email: "a@x.com", Role: models.RoleAdmin},
		{ID: "sub-1", Email: "s1@x.com", Role: models.RoleSubAccount, AdminID: "admin-1"},
		{ID: "sub-2", Email: "s2@x.com", Role: models.RoleSubAccount, AdminID: "admin-1"},
		{ID: "sub-3", Email: "s3@x.com", Role: models.RoleSubAccount, AdminID: "admin-2"},
	}
	for _, a := range accounts {
		if err := s.PutAccount(a); err != nil {
			t.Fatal(err)
		}
	}

	subs, err := s.ListSubAccounts("admin-1")
	if err != nil {
		t.Fatalf("ListSubAccounts: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("got %d sub-accounts, want 2", len(subs))
	}
}

func TestWalletLazyAbsence(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetWallet("acc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unseeded wallet error = %v, want ErrNotFound", err)
	}

	w := models.NewWallet("acc-1")
	w.Balance = decimal.NewFromFloat(12.34)
	if err := s.PutWallet(w); err != nil {
		t.Fatalf("PutWallet: %v", err)
	}

	got, err := s.GetWallet("acc-1")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromFloat(12.34)) {
		t.Errorf("balance = %s, want 12.34", got.Balance)
	}
	if got.Currency != "USD" {
		t.Errorf("currency = %s, want USD", got.Currency)
	}
}

func TestNumberLookups(t *testing.T) {
	s := newTestStore(t)

	numbers := []*models.PhoneNumber{
		{ID: "num-1", AccountID: "admin-1", Number: "+15550001111", Type: models.NumberTypeLocal, Status: models.NumberActive},
		{ID: "num-2", AccountID: "admin-1", Number: "+18885552222", Type: models.NumberTypeTollFree, Status: models.NumberSuspended},
		{ID: "num-3", AccountID: "admin-2", Number: "+15550003333", Type: models.NumberTypeLocal, Status: models.NumberActive},
	}
	for _, n := range numbers {
		if err := s.PutNumber(n); err != nil {
			t.Fatal(err)
		}
	}

	byE164, err := s.GetNumberByE164("+18885552222")
	if err != nil {
		t.Fatalf("GetNumberByE164: %v", err)
	}
	if byE164.ID != "num-2" {
		t.Errorf("E.164 lookup returned %s, want num-2", byE164.ID)
	}

	owned, err := s.ListNumbersByAccount("admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(owned) != 2 {
		t.Errorf("admin-1 owns %d numbers, want 2", len(owned))
	}

	suspended, err := s.ListNumbersByStatus(models.NumberSuspended)
	if err != nil {
		t.Fatal(err)
	}
	if len(suspended) != 1 || suspended[0].ID != "num-2" {
		t.Errorf("suspended list = %v, want [num-2]", suspended)
	}
}

func TestContactPhoneLookupScopedByAccount(t *testing.T) {
	s := newTestStore(t)

	c1 := &models.Contact{ID: "c-1", AccountID: "acc-1", Name: "Alice", PhoneNumber: "+15551230000"}
	c2 := &models.Contact{ID: "c-2", AccountID: "acc-2", Name: "Same Person", PhoneNumber: "+15551230000"}
	for _, c := range []*models.Contact{c1, c2} {
		if err := s.PutContact(c); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.FindContactByPhone("acc-1", "+15551230000")
	if err != nil {
		t.Fatalf("FindContactByPhone: %v", err)
	}
	if got.ID != "c-1" {
		t.Errorf("acc-1 lookup returned %s, want c-1", got.ID)
	}

	got, err = s.FindContactByPhone("acc-2", "+15551230000")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "c-2" {
		t.Errorf("acc-2 lookup returned %s, want c-2", got.ID)
	}
}

func TestMessageOrderingAndLimit(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m := &models.Message{
			ID:        "msg-" + string(rune('a'+i)),
			AccountID: "acc-1",
			ContactID: "c-1",
			Content:   "hello",
			Status:    models.MessageSent,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.PutMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListMessages("c-1", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d messages, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Errorf("messages out of order at %d", i)
		}
	}

	// Limit keeps the newest messages.
	last2, err := s.ListMessages("c-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(last2) != 2 || last2[1].ID != all[4].ID {
		t.Errorf("limited list = %v, want newest two", last2)
	}
}

func TestMessageCarrierSIDLookup(t *testing.T) {
	s := newTestStore(t)

	m := &models.Message{
		ID:        "msg-1",
		ContactID: "c-1",
		Status:    models.MessageSending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.PutMessage(m); err != nil {
		t.Fatal(err)
	}

	// SID arrives after the carrier accepts the message.
	m.CarrierSID = "SM123"
	m.Status = models.MessageSent
	if err := s.UpdateMessage(m); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}

	got, err := s.GetMessageByCarrierSID("SM123")
	if err != nil {
		t.Fatalf("GetMessageByCarrierSID: %v", err)
	}
	if got.ID != "msg-1" || got.Status != models.MessageSent {
		t.Errorf("got %+v, want updated msg-1", got)
	}
}

func TestDeleteContactCascades(t *testing.T) {
	s := newTestStore(t)

	c := &models.Contact{ID: "c-1", AccountID: "acc-1", PhoneNumber: "+15551230000"}
	if err := s.PutContact(c); err != nil {
		t.Fatal(err)
	}
	m := &models.Message{ID: "msg-1", AccountID: "acc-1", ContactID: "c-1", CarrierSID: "SM1", CreatedAt: time.Now().UTC()}
	if err := s.PutMessage(m); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteContact("acc-1", "c-1"); err != nil {
		t.Fatalf("DeleteContact: %v", err)
	}

	if _, err := s.GetContact("acc-1", "c-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("contact still present: %v", err)
	}
	if _, err := s.GetMessage("msg-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("message survived cascade: %v", err)
	}
	if _, err := s.GetMessageByCarrierSID("SM1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SID index survived cascade: %v", err)
	}
}

func TestCycleRecords(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetCycleRecord("2026-03", "num-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unprocessed cycle error = %v, want ErrNotFound", err)
	}

	rec := &models.BillingCycleRecord{
		CycleRef:  "2026-03",
		NumberID:  "num-1",
		AccountID: "acc-1",
		Outcome:   models.CycleCharged,
		Amount:    decimal.NewFromFloat(1.00),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.PutCycleRecord(rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCycleRecord("2026-03", "num-1")
	if err != nil {
		t.Fatalf("GetCycleRecord: %v", err)
	}
	if got.Outcome != models.CycleCharged {
		t.Errorf("outcome = %s, want charged", got.Outcome)
	}

	records, err := s.ListCycleRecords("2026-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}
