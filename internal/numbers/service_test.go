// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package numbers

import (
	"errors"
	"sync"
	"testing"

	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturingPublisher) Publish(accountID, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func newTestService(t *testing.T) (*Service, *capturingPublisher) {
	t.Helper()
	st, err := store.Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := New(st)
	pub := &capturingPublisher{}
	svc.SetPublisher(pub)
	return svc, pub
}

func seedNumber(t *testing.T, svc *Service, status models.NumberStatus) *models.PhoneNumber {
	t.Helper()
	n := &models.PhoneNumber{
		ID:        "num-1",
		AccountID: "acc-1",
		Number:    "+15550001111",
		Type:      models.NumberTypeLocal,
		Status:    status,
	}
	if err := svc.Create(n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  models.NumberStatus
		to    models.NumberStatus
		valid bool
	}{
		{"pending to active", models.NumberPending, models.NumberActive, true},
		{"active to suspended", models.NumberActive, models.NumberSuspended, true},
		{"suspended to active", models.NumberSuspended, models.NumberActive, true},
		{"active to inactive", models.NumberActive, models.NumberInactive, true},
		{"suspended to inactive", models.NumberSuspended, models.NumberInactive, true},
		{"pending to suspended", models.NumberPending, models.NumberSuspended, false},
		{"pending to inactive", models.NumberPending, models.NumberInactive, false},
		{"inactive to active", models.NumberInactive, models.NumberActive, false},
		{"inactive to suspended", models.NumberInactive, models.NumberSuspended, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			seedNumber(t, svc, tt.from)

			n, err := svc.SetStatus("num-1", tt.to)
			if tt.valid {
				if err != nil {
					t.Fatalf("SetStatus: %v", err)
				}
				if n.Status != tt.to {
					t.Errorf("status = %s, want %s", n.Status, tt.to)
				}
			} else {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("error = %v, want ErrInvalidTransition", err)
				}
				got, gerr := svc.Get("num-1")
				if gerr != nil {
					t.Fatal(gerr)
				}
				if got.Status != tt.from {
					t.Errorf("rejected transition changed status to %s", got.Status)
				}
			}
		})
	}
}

func TestSetStatusIdempotent(t *testing.T) {
	svc, pub := newTestService(t)
	seedNumber(t, svc, models.NumberActive)

	n, err := svc.SetStatus("num-1", models.NumberActive)
	if err != nil {
		t.Fatalf("same-status set rejected: %v", err)
	}
	if n.Status != models.NumberActive {
		t.Errorf("status = %s", n.Status)
	}
	// No event for a no-op.
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 0 {
		t.Errorf("no-op published %d events", len(pub.events))
	}
}

func TestSetStatusPublishesEvent(t *testing.T) {
	svc, pub := newTestService(t)
	seedNumber(t, svc, models.NumberActive)

	if _, err := svc.SetStatus("num-1", models.NumberSuspended); err != nil {
		t.Fatal(err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 || pub.events[0] != models.EventNumberStatus {
		t.Errorf("events = %v, want [number_status]", pub.events)
	}
}

func TestToggleSendingDoesNotTouchStatus(t *testing.T) {
	svc, _ := newTestService(t)
	seedNumber(t, svc, models.NumberSuspended)

	n, err := svc.ToggleSending("num-1", true)
	if err != nil {
		t.Fatal(err)
	}
	if !n.ActiveForSending {
		t.Error("toggle not applied")
	}
	if n.Status != models.NumberSuspended {
		t.Errorf("toggle changed status to %s", n.Status)
	}
	if n.Usable() {
		t.Error("suspended number reports usable after toggle")
	}
}

func TestReleaseIsTerminal(t *testing.T) {
	svc, _ := newTestService(t)
	seedNumber(t, svc, models.NumberActive)

	if _, err := svc.Release("num-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetStatus("num-1", models.NumberActive); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("released number reactivated: %v", err)
	}
}
