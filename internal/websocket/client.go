// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package websocket

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, control frames and typing events only

	// authWait bounds how long an unauthenticated socket may linger.
	authWait = 10 * time.Second
)

// TokenVerifier checks a bearer token and returns the authenticated
// account ID. Implemented by the auth package's JWT manager.
type TokenVerifier interface {
	VerifyToken(token string) (accountID string, err error)
}

// clientIDCounter generates unique, monotonically increasing client IDs.
// DETERMINISM: IDs give sockets a stable sort order for delivery.
var clientIDCounter atomic.Uint64

// Client is a middleman between one websocket connection and the hub.
// A client is not registered with the hub until it authenticates.
type Client struct {
	id        uint64
	hub       *Hub
	conn      *websocket.Conn
	verifier  TokenVerifier
	send      chan Message
	accountID string
}

// NewClient creates an unauthenticated client for a fresh connection.
func NewClient(hub *Hub, conn *websocket.Conn, verifier TokenVerifier) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		verifier: verifier,
		send:     make(chan Message, 256),
	}
}

// inboundMessage defers payload decoding until the type is known.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// authPayload is the expected payload of an auth message.
type authPayload struct {
	Token string `json:"token"`
}

// readPump authenticates the socket, registers it, and then relays client
// messages until the connection drops.
func (c *Client) readPump() {
	registered := false
	defer func() {
		if registered {
			c.hub.Unregister <- c
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// The first message must authenticate within authWait.
	if err := c.conn.SetReadDeadline(time.Now().Add(authWait)); err != nil {
		return
	}
	var first inboundMessage
	if err := c.conn.ReadJSON(&first); err != nil {
		return
	}
	if !c.authenticate(first) {
		c.writeDirect(Message{Type: models.EventAuthError, Data: map[string]string{"error": "authentication failed"}})
		return
	}

	c.hub.Register <- c
	registered = true
	c.send <- Message{Type: models.EventAuthSuccess, Data: map[string]string{"accountId": c.accountID}}

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("Unexpected websocket close error")
			}
			return
		}

		switch msg.Type {
		case MessageTypePing:
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}

		case models.EventTyping:
			// Relay typing indicators to the account's other sockets so
			// every open device shows the same conversation state.
			var payload models.TypingEvent
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				continue
			}
			c.hub.publishExcept(c.accountID, c, models.EventTyping, payload)
		}
	}
}

// authenticate validates the first frame of a new connection.
func (c *Client) authenticate(msg inboundMessage) bool {
	if msg.Type != MessageTypeAuth {
		return false
	}
	var payload authPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Token == "" {
		return false
	}

	accountID, err := c.verifier.VerifyToken(payload.Token)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket authentication rejected")
		return false
	}
	c.accountID = accountID
	return true
}

// writeDirect sends one frame outside the write pump. Only used before the
// client is registered, while the write pump drains an empty channel.
func (c *Client) writeDirect(msg Message) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteJSON(msg)
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers connect from the app's own origin; the reverse proxy
	// enforces the origin policy in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request and starts an unauthenticated client.
// The client must send an auth frame before any events flow.
func ServeWS(hub *Hub, verifier TokenVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		NewClient(hub, conn, verifier).Start()
	}
}
