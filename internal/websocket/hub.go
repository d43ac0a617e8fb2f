// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package websocket pushes real-time events to authenticated clients.
// Unlike a broadcast hub, every event targets exactly one account; the hub
// keeps an account-keyed registry and fans an event out to all of that
// account's live sockets.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Control message types exchanged with clients. Domain event names live in
// the models package.
const (
	MessageTypeAuth = "auth"
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Message is one WebSocket frame payload.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// envelope pairs a message with its target account.
type envelope struct {
	accountID string
	exclude   *Client // skip this socket, used for same-account relays
	message   Message
}

// PresenceHook is invoked when an account's first socket connects (online)
// or its last socket disconnects (offline). Runs on the hub goroutine;
// implementations must not block.
type PresenceHook func(accountID string, online bool)

// Hub maintains authenticated clients grouped by account and delivers
// targeted events to all sockets of one account.
type Hub struct {
	clients   map[*Client]bool
	byAccount map[string]map[*Client]bool
	publish   chan envelope

	Register   chan *Client
	Unregister chan *Client

	presenceHook PresenceHook

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byAccount:  make(map[string]map[*Client]bool),
		publish:    make(chan envelope, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// SetPresenceHook registers the presence callback. Must be called before
// RunWithContext starts.
func (h *Hub) SetPresenceHook(fn PresenceHook) {
	h.presenceHook = fn
}

// Publish queues an event for all sockets of one account. Delivery is
// at-most-once: if the hub's queue is full the event is dropped and
// counted, never blocked on.
func (h *Hub) Publish(accountID, event string, payload interface{}) {
	h.publishExcept(accountID, nil, event, payload)
}

func (h *Hub) publishExcept(accountID string, exclude *Client, event string, payload interface{}) {
	env := envelope{
		accountID: accountID,
		exclude:   exclude,
		message:   Message{Type: event, Data: payload},
	}
	select {
	case h.publish <- env:
		metrics.WSEventsPublished.WithLabelValues(event).Inc()
	default:
		metrics.WSEventsDropped.Inc()
		logging.Warn().
			Str("account_id", accountID).
			Str("event", event).
			Msg("Event queue full, dropping event")
	}
}

// RunWithContext runs the hub until the context is canceled. Designed for
// suture supervision: on cancellation all clients are closed and ctx.Err()
// is returned.
//
// DETERMINISM: Uses priority-based selection so client state is always
// consistent before events are delivered:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Event delivery
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: Deliver events or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case env := <-h.publish:
			h.deliver(env)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	sockets, ok := h.byAccount[c.accountID]
	if !ok {
		sockets = make(map[*Client]bool)
		h.byAccount[c.accountID] = sockets
	}
	first := len(sockets) == 0
	sockets[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().
		Str("account_id", c.accountID).
		Int("total_clients", total).
		Msg("WebSocket client connected")

	if first && h.presenceHook != nil {
		h.presenceHook(c.accountID, true)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)

	last := false
	if sockets, ok := h.byAccount[c.accountID]; ok {
		delete(sockets, c)
		if len(sockets) == 0 {
			delete(h.byAccount, c.accountID)
			last = true
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().
		Str("account_id", c.accountID).
		Int("total_clients", total).
		Msg("WebSocket client disconnected")

	if last && h.presenceHook != nil {
		h.presenceHook(c.accountID, false)
	}
}

// deliver sends a message to every socket of the target account in a
// deterministic order. Sockets with a full send buffer are dropped; a slow
// reader must not stall the hub.
func (h *Hub) deliver(env envelope) {
	h.mu.Lock()

	sockets, ok := h.byAccount[env.accountID]
	if !ok {
		h.mu.Unlock()
		return
	}

	// DETERMINISM: Sort sockets by ID for consistent delivery order.
	clients := make([]*Client, 0, len(sockets))
	for client := range sockets {
		if client != env.exclude {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var dropped []*Client
	for _, client := range clients {
		select {
		case client.send <- env.message:
		default:
			dropped = append(dropped, client)
		}
	}
	h.mu.Unlock()

	// A dropped socket leaves through the same bookkeeping as a normal
	// disconnect so presence state and the connection gauge stay truthful.
	for _, client := range dropped {
		metrics.WSEventsDropped.Inc()
		logging.Warn().
			Str("account_id", client.accountID).
			Str("event", env.message.Type).
			Msg("Send buffer full, dropping slow client")
		h.removeClient(client)
	}
}

// ClientCount returns the number of connected sockets across all accounts.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// AccountOnline reports whether an account has at least one live socket.
func (h *Hub) AccountOnline(accountID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byAccount[accountID]) > 0
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	count := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", count).
		Msg("WebSocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients closes every socket in ID order during shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.byAccount = make(map[string]map[*Client]bool)
}
