// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package carrier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.CarrierConfig{
		BaseURL:    srv.URL,
		AccountSID: "AC_test",
		AuthToken:  "secret",
		Timeout:    5 * time.Second,
	})
}

func TestSendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC_test" || pass != "secret" {
			t.Error("missing or wrong basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("From") != "+15550001111" || r.PostForm.Get("To") != "+15552223333" {
			t.Errorf("form = %v", r.PostForm)
		}
		if r.PostForm.Get("Body") != "hello" {
			t.Errorf("body = %q", r.PostForm.Get("Body"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	})

	result, err := client.SendMessage(context.Background(), "+15550001111", "+15552223333", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result.SID != "SM123" {
		t.Errorf("SID = %s, want SM123", result.SID)
	}
}

func TestSendMessageCarrierError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	})

	_, err := client.SendMessage(context.Background(), "+15550001111", "not-a-number", "hi")
	if err == nil {
		t.Fatal("expected error")
	}

	var cerr *CarrierError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T, want *CarrierError", err)
	}
	if cerr.Code != CodeInvalidTo {
		t.Errorf("code = %d, want %d", cerr.Code, CodeInvalidTo)
	}
	if !cerr.IsInvalidRecipient() {
		t.Error("21211 not classified as invalid recipient")
	}
	if cerr.IsInvalidSender() {
		t.Error("21211 misclassified as invalid sender")
	}
}

func TestCarrierErrorClassification(t *testing.T) {
	tests := []struct {
		code      int
		recipient bool
		sender    bool
	}{
		{CodeInvalidTo, true, false},
		{CodeInvalidFrom, false, true},
		{CodeUnsubscribed, true, false},
		{CodeNotMobileCapable, true, false},
		{30000, false, false},
	}

	for _, tt := range tests {
		e := &CarrierError{Code: tt.code}
		if e.IsInvalidRecipient() != tt.recipient {
			t.Errorf("code %d: IsInvalidRecipient = %v", tt.code, !tt.recipient)
		}
		if e.IsInvalidSender() != tt.sender {
			t.Errorf("code %d: IsInvalidSender = %v", tt.code, !tt.sender)
		}
	}
}

func TestListAvailableNumbers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/AvailablePhoneNumbers/US/TollFree.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"available_phone_numbers":[
			{"phone_number":"+18885550001","locality":"","region":"","iso_country":"US"},
			{"phone_number":"+18885550002","locality":"","region":"","iso_country":"US"}
		]}`))
	})

	available, err := client.ListAvailableNumbers(context.Background(), AvailableNumberQuery{
		Country: "US",
		Type:    models.NumberTypeTollFree,
	})
	if err != nil {
		t.Fatalf("ListAvailableNumbers: %v", err)
	}
	if len(available) != 2 {
		t.Fatalf("got %d numbers, want 2", len(available))
	}
	if available[0].PhoneNumber != "+18885550001" {
		t.Errorf("first number = %s", available[0].PhoneNumber)
	}
}

func TestPurchaseNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC_test/IncomingPhoneNumbers.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("PhoneNumber") != "+18885550001" {
			t.Errorf("PhoneNumber = %s", r.PostForm.Get("PhoneNumber"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"PN123","phone_number":"+18885550001"}`))
	})

	purchased, err := client.PurchaseNumber(context.Background(), "+18885550001")
	if err != nil {
		t.Fatalf("PurchaseNumber: %v", err)
	}
	if purchased.SID != "PN123" {
		t.Errorf("SID = %s, want PN123", purchased.SID)
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	})

	breaker := NewBreakerClient(client)
	result, err := breaker.SendMessage(context.Background(), "+15550001111", "+15552223333", "hi")
	if err != nil {
		t.Fatalf("SendMessage through breaker: %v", err)
	}
	if result.SID != "SM1" {
		t.Errorf("SID = %s", result.SID)
	}
}
