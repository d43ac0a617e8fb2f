// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package websocket

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// stubVerifier accepts tokens of the form "token:<accountID>".
type stubVerifier struct{}

func (stubVerifier) VerifyToken(token string) (string, error) {
	id, ok := strings.CutPrefix(token, "token:")
	if !ok {
		return "", errors.New("invalid token")
	}
	return id, nil
}

// wireMessage mirrors the frame shape with the payload left raw.
type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := newHubForTest(t)

	srv := httptest.NewServer(ServeWS(hub, stubVerifier{}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return msg
}

func authFrame(token string) map[string]interface{} {
	return map[string]interface{}{
		"type": MessageTypeAuth,
		"data": map[string]string{"token": token},
	}
}

func TestAuthenticatedSocketReceivesEvents(t *testing.T) {
	hub, conn := dialTestHub(t)

	if err := conn.WriteJSON(authFrame("token:acc-1")); err != nil {
		t.Fatal(err)
	}
	if msg := readFrame(t, conn); msg.Type != models.EventAuthSuccess {
		t.Fatalf("first frame = %s, want auth_success", msg.Type)
	}
	waitFor(t, func() bool { return hub.AccountOnline("acc-1") })

	hub.Publish("acc-1", models.EventWalletUpdate, map[string]string{"balance": "10.00"})
	if msg := readFrame(t, conn); msg.Type != models.EventWalletUpdate {
		t.Errorf("event type = %s, want wallet_update", msg.Type)
	}
}

func TestRejectedTokenNeverRegisters(t *testing.T) {
	hub, conn := dialTestHub(t)

	if err := conn.WriteJSON(authFrame("garbage")); err != nil {
		t.Fatal(err)
	}
	if msg := readFrame(t, conn); msg.Type != models.EventAuthError {
		t.Fatalf("first frame = %s, want auth_error", msg.Type)
	}

	// The socket was closed without ever touching the registry, so events
	// for any account cannot reach it.
	if hub.ClientCount() != 0 {
		t.Errorf("unauthenticated socket registered: %d clients", hub.ClientCount())
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if err := conn.ReadJSON(&wireMessage{}); err == nil {
		t.Error("connection still open after failed auth")
	}
}

func TestNonAuthFirstFrameRejected(t *testing.T) {
	hub, conn := dialTestHub(t)

	if err := conn.WriteJSON(map[string]string{"type": MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readFrame(t, conn); msg.Type != models.EventAuthError {
		t.Fatalf("first frame = %s, want auth_error", msg.Type)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("client registered despite missing auth frame")
	}
}

func TestTypingRelayBetweenSockets(t *testing.T) {
	hub := newHubForTest(t)
	srv := httptest.NewServer(ServeWS(hub, stubVerifier{}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		if err := conn.WriteJSON(authFrame("token:acc-1")); err != nil {
			t.Fatal(err)
		}
		if msg := readFrame(t, conn); msg.Type != models.EventAuthSuccess {
			t.Fatalf("auth failed: %s", msg.Type)
		}
		return conn
	}

	phone := dial()
	laptop := dial()
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	event := models.TypingEvent{ContactID: "contact-1", IsTyping: true}
	if err := phone.WriteJSON(map[string]interface{}{
		"type": models.EventTyping,
		"data": event,
	}); err != nil {
		t.Fatal(err)
	}

	// The other socket of the same account sees the indicator; the sender
	// must not get its own event echoed back.
	msg := readFrame(t, laptop)
	if msg.Type != models.EventTyping {
		t.Fatalf("relayed type = %s, want typing", msg.Type)
	}
	var got models.TypingEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ContactID != "contact-1" || !got.IsTyping {
		t.Errorf("relayed payload = %+v", got)
	}

	_ = phone.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if err := phone.ReadJSON(&wireMessage{}); err == nil {
		t.Error("sender received its own typing event")
	}
}
