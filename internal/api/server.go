// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package api exposes the HTTP surface: authentication, wallet and
// billing, contacts and messaging, number management, carrier webhooks,
// and the WebSocket upgrade endpoint.
package api

import (
	"net/http"

	"github.com/Hammadsoomro/Connectlify/internal/auth"
	"github.com/Hammadsoomro/Connectlify/internal/billing"
	"github.com/Hammadsoomro/Connectlify/internal/carrier"
	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/numbers"
	"github.com/Hammadsoomro/Connectlify/internal/payments"
	"github.com/Hammadsoomro/Connectlify/internal/sms"
	"github.com/Hammadsoomro/Connectlify/internal/store"
	"github.com/Hammadsoomro/Connectlify/internal/wallet"
	"github.com/Hammadsoomro/Connectlify/internal/websocket"
)

// Deps collects everything the HTTP layer serves.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Auth     *auth.Service
	JWT      *auth.JWTManager
	Wallet   *wallet.Service
	Numbers  *numbers.Service
	Billing  *billing.Controller
	Pipeline *sms.Pipeline
	Carrier  carrier.API
	Payments payments.API
	Hub      *websocket.Hub
}

// Server owns the HTTP handlers.
type Server struct {
	deps Deps
}

// NewServer creates the HTTP server layer.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// unauthorized writes the standard 401 envelope. Passed into the auth
// middleware so rejections share the API error format.
func unauthorized(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusUnauthorized, models.CodeAuthRequired, "Authentication required", nil)
}

// forbidden writes the standard 403 envelope for role gate failures.
func forbidden(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusForbidden, models.CodeForbidden, "Admin access required", nil)
}

// claims returns the authenticated claims; the auth middleware guarantees
// presence on protected routes.
func (s *Server) claims(r *http.Request) *auth.Claims {
	return auth.ClaimsFromContext(r.Context())
}

// billingAccountID resolves the wallet-owning account for the requester.
func (s *Server) billingAccountID(r *http.Request) (string, error) {
	c := s.claims(r)
	account, err := s.deps.Store.GetAccount(c.AccountID)
	if err != nil {
		return "", err
	}
	return account.BillingAccountID(), nil
}
