// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package sms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hammadsoomro/Connectlify/internal/carrier"
	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/store"
	"github.com/Hammadsoomro/Connectlify/internal/wallet"
)

// fakeCarrier scripts carrier responses for pipeline tests.
type fakeCarrier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCarrier) SendMessage(ctx context.Context, from, to, body string) (*carrier.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &carrier.SendResult{SID: "SM_fake", Status: "queued"}, nil
}

func (f *fakeCarrier) ListAvailableNumbers(ctx context.Context, q carrier.AvailableNumberQuery) ([]carrier.AvailableNumber, error) {
	return nil, nil
}

func (f *fakeCarrier) PurchaseNumber(ctx context.Context, e164 string) (*carrier.PurchasedNumber, error) {
	return nil, errors.New("not implemented")
}

// fakePublisher records events per account.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	accountID string
	event     string
}

func (f *fakePublisher) Publish(accountID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{accountID, event})
}

func (f *fakePublisher) count(accountID, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.accountID == accountID && e.event == event {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *store.Store
	wallet   *wallet.Service
	carrier  *fakeCarrier
	pub      *fakePublisher
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	w := wallet.New(st)
	fc := &fakeCarrier{}
	pub := &fakePublisher{}

	p := New(st, w, fc, decimal.NewFromFloat(0.01))
	p.SetPublisher(pub)

	return &fixture{store: st, wallet: w, carrier: fc, pub: pub, pipeline: p}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	admin := &models.Account{ID: "admin-1", Email: "a@x.com", Role: models.RoleAdmin, IsActive: true}
	sub := &models.Account{
		ID: "sub-1", Email: "s@x.com", Role: models.RoleSubAccount,
		AdminID: "admin-1", AssignedNumbers: []string{"+15550001111"}, IsActive: true,
	}
	for _, a := range []*models.Account{admin, sub} {
		if err := f.store.PutAccount(a); err != nil {
			t.Fatal(err)
		}
	}

	numbers := []*models.PhoneNumber{
		{ID: "num-1", AccountID: "admin-1", Number: "+15550001111", Type: models.NumberTypeLocal, Status: models.NumberActive, ActiveForSending: true},
		{ID: "num-2", AccountID: "admin-1", Number: "+18880002222", Type: models.NumberTypeTollFree, Status: models.NumberActive},
		{ID: "num-3", AccountID: "admin-1", Number: "+15550003333", Type: models.NumberTypeLocal, Status: models.NumberSuspended},
	}
	for _, n := range numbers {
		if err := f.store.PutNumber(n); err != nil {
			t.Fatal(err)
		}
	}

	contact := &models.Contact{ID: "c-1", AccountID: "admin-1", Name: "Alice", PhoneNumber: "+15559998888"}
	if err := f.store.PutContact(contact); err != nil {
		t.Fatal(err)
	}

	if _, err := f.wallet.Credit("admin-1", decimal.NewFromFloat(5.00), "Seed", ""); err != nil {
		t.Fatal(err)
	}
}

func TestSendHappyPath(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	msg, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID:  "admin-1",
		ContactID: "c-1",
		Content:   "hello",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if msg.Status != models.MessageSent {
		t.Errorf("status = %s, want sent", msg.Status)
	}
	if msg.CarrierSID != "SM_fake" {
		t.Errorf("carrier SID = %s", msg.CarrierSID)
	}
	// Default sender prefers the toggled-on number.
	if msg.FromNumber != "+15550001111" {
		t.Errorf("from = %s, want the ActiveForSending number", msg.FromNumber)
	}

	w, _ := f.wallet.Snapshot("admin-1")
	if !w.Balance.Equal(decimal.NewFromFloat(4.99)) {
		t.Errorf("balance = %s, want 4.99 after one message", w.Balance)
	}

	stored, err := f.store.GetMessage(msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.MessageSent || !stored.Outgoing {
		t.Errorf("stored = %+v", stored)
	}

	if got := f.pub.count("admin-1", models.EventMessageStatus); got != 1 {
		t.Errorf("message_status events = %d, want 1", got)
	}
}

func TestSubAccountBillsAdmin(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	msg, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID:  "sub-1",
		ContactID: "c-1",
		NumberID:  "num-1",
		Content:   "from sub",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.AccountID != "admin-1" {
		t.Errorf("message account = %s, want billing admin", msg.AccountID)
	}

	// The admin's wallet paid.
	w, _ := f.wallet.Snapshot("admin-1")
	if !w.Balance.Equal(decimal.NewFromFloat(4.99)) {
		t.Errorf("admin balance = %s, want 4.99", w.Balance)
	}
	subWallet, _ := f.wallet.Snapshot("sub-1")
	if !subWallet.Balance.IsZero() || len(subWallet.Transactions) != 0 {
		t.Errorf("sub-account wallet touched: %+v", subWallet)
	}

	// Both sender and billing owner hear about it.
	if f.pub.count("admin-1", models.EventMessageStatus) != 1 {
		t.Error("admin missed status event")
	}
	if f.pub.count("sub-1", models.EventMessageStatus) != 1 {
		t.Error("sub-account missed status event")
	}
}

func TestSubAccountUnassignedNumberRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	// num-2 is owned by the admin but not assigned to sub-1.
	_, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID:  "sub-1",
		ContactID: "c-1",
		NumberID:  "num-2",
		Content:   "nope",
	})
	if !errors.Is(err, ErrNumberNotAllowed) {
		t.Errorf("error = %v, want ErrNumberNotAllowed", err)
	}
	if f.carrier.calls != 0 {
		t.Error("carrier called despite authorization failure")
	}
}

func TestSuspendedNumberCannotSend(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	_, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID:  "admin-1",
		ContactID: "c-1",
		NumberID:  "num-3",
		Content:   "blocked",
	})
	if !errors.Is(err, ErrNumberNotUsable) {
		t.Errorf("error = %v, want ErrNumberNotUsable", err)
	}
}

func TestNoUsableNumber(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	// Suspend everything the admin owns.
	for _, id := range []string{"num-1", "num-2"} {
		n, _ := f.store.GetNumber(id)
		n.Status = models.NumberSuspended
		if err := f.store.PutNumber(n); err != nil {
			t.Fatal(err)
		}
	}

	_, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID:  "admin-1",
		ContactID: "c-1",
		Content:   "no sender",
	})
	if !errors.Is(err, ErrNoSendingNumber) {
		t.Errorf("error = %v, want ErrNoSendingNumber", err)
	}
}

func TestInsufficientBalanceBlocksBeforeCarrier(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	// Drain the wallet.
	if _, err := f.wallet.Debit("admin-1", decimal.NewFromFloat(5.00), "Drain", ""); err != nil {
		t.Fatal(err)
	}

	_, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID:  "admin-1",
		ContactID: "c-1",
		Content:   "too poor",
	})
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Errorf("error = %v, want ErrInsufficientBalance", err)
	}
	if f.carrier.calls != 0 {
		t.Error("carrier called despite empty wallet")
	}
}

func TestCarrierRejectionMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.carrier.err = &carrier.CarrierError{Code: carrier.CodeInvalidTo, Message: "bad number"}

	msg, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID:  "admin-1",
		ContactID: "c-1",
		Content:   "doomed",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if msg == nil || msg.Status != models.MessageFailed {
		t.Fatalf("message = %+v, want failed record", msg)
	}

	// No charge for a message the carrier refused.
	w, _ := f.wallet.Snapshot("admin-1")
	if !w.Balance.Equal(decimal.NewFromFloat(5.00)) {
		t.Errorf("balance = %s, failed send was charged", w.Balance)
	}

	stored, err := f.store.GetMessage(msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.MessageFailed {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestHandleInboundKnownContact(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	msg, err := f.pipeline.HandleInbound(InboundMessage{
		From:       "+15559998888", // Alice
		To:         "+15550001111",
		Body:       "hi back",
		CarrierSID: "SM_in_1",
	})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	if msg.ContactID != "c-1" {
		t.Errorf("contact = %s, want existing c-1", msg.ContactID)
	}
	if msg.Outgoing || msg.Status != models.MessageDelivered {
		t.Errorf("message = %+v", msg)
	}

	if f.pub.count("admin-1", models.EventNewMessage) != 1 {
		t.Error("owner missed new_message event")
	}
	if f.pub.count("admin-1", models.EventUnreadUpdate) != 1 {
		t.Error("owner missed unread_update event")
	}
}

func TestHandleInboundCreatesContact(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	msg, err := f.pipeline.HandleInbound(InboundMessage{
		From:       "+15551230000",
		To:         "+15550001111",
		Body:       "who dis",
		CarrierSID: "SM_in_2",
	})
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	contact, err := f.store.FindContactByPhone("admin-1", "+15551230000")
	if err != nil {
		t.Fatalf("contact not created: %v", err)
	}
	if contact.Name != "+15551230000" {
		t.Errorf("contact name = %s, want the number", contact.Name)
	}
	if msg.ContactID != contact.ID {
		t.Errorf("message contact = %s", msg.ContactID)
	}
}

func TestHandleInboundSuspendedNumberStillReceives(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	// num-3 is suspended but not released.
	if _, err := f.pipeline.HandleInbound(InboundMessage{
		From: "+15559998888", To: "+15550003333", Body: "hi", CarrierSID: "SM_in_3",
	}); err != nil {
		t.Errorf("suspended number rejected inbound: %v", err)
	}
}

func TestHandleInboundRejectsUnknownAndReleased(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	if _, err := f.pipeline.HandleInbound(InboundMessage{
		From: "+15559998888", To: "+19990000000", Body: "?", CarrierSID: "SM_x",
	}); err == nil {
		t.Error("unknown receiving number accepted")
	}

	n, _ := f.store.GetNumber("num-1")
	n.Status = models.NumberInactive
	if err := f.store.PutNumber(n); err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.HandleInbound(InboundMessage{
		From: "+15559998888", To: "+15550001111", Body: "?", CarrierSID: "SM_y",
	}); err == nil {
		t.Error("released number accepted inbound")
	}
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	sent, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID: "admin-1", ContactID: "c-1", Content: "track me",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.pipeline.UpdateStatus(sent.CarrierSID, models.MessageDelivered); err != nil {
		t.Fatalf("sent -> delivered rejected: %v", err)
	}

	// Late callback repeating an earlier state.
	if _, err := f.pipeline.UpdateStatus(sent.CarrierSID, models.MessageSent); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("backwards transition error = %v", err)
	}

	// Skipping delivered straight to read is allowed.
	if _, err := f.pipeline.UpdateStatus(sent.CarrierSID, models.MessageRead); err != nil {
		t.Fatalf("delivered -> read rejected: %v", err)
	}

	// read is terminal.
	if _, err := f.pipeline.UpdateStatus(sent.CarrierSID, models.MessageDelivered); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("post-terminal transition error = %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	if _, err := f.pipeline.HandleInbound(InboundMessage{
		From: "+15559998888", To: "+15550001111", Body: "one", CarrierSID: "SM_1",
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond) // distinct storage keys
	if _, err := f.pipeline.HandleInbound(InboundMessage{
		From: "+15559998888", To: "+15550001111", Body: "two", CarrierSID: "SM_2",
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.pipeline.MarkRead("admin-1", "c-1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	msgs, err := f.store.ListMessages("c-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if !m.Outgoing && m.Status != models.MessageRead {
			t.Errorf("inbound message %s status = %s, want read", m.ID, m.Status)
		}
	}

	// Badge cleared exactly once.
	cleared := 0
	f.pub.mu.Lock()
	for _, e := range f.pub.events {
		if e.event == models.EventUnreadUpdate && e.accountID == "admin-1" {
			cleared++
		}
	}
	f.pub.mu.Unlock()
	// Two inbound set events plus one clear.
	if cleared != 3 {
		t.Errorf("unread_update events = %d, want 3", cleared)
	}
}

func TestListMessagesForSubAccount(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	if _, err := f.pipeline.Send(context.Background(), SendRequest{
		SenderID: "admin-1", ContactID: "c-1", Content: "visible to sub",
	}); err != nil {
		t.Fatal(err)
	}

	msgs, err := f.pipeline.ListMessages("sub-1", "c-1", 0)
	if err != nil {
		t.Fatalf("sub-account cannot list shared conversation: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1", len(msgs))
	}
}
