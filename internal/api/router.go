// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hammadsoomro/Connectlify/internal/auth"
	"github.com/Hammadsoomro/Connectlify/internal/middleware"
	"github.com/Hammadsoomro/Connectlify/internal/websocket"
)

// SetupChi configures all HTTP routes.
func (s *Server) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.deps.Config.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticated := auth.Middleware(s.deps.JWT, unauthorized)
	adminOnly := auth.RequireAdmin(forbidden)

	// Health and metrics: permissive rate limit for monitoring.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	// Authentication: strict rate limit against brute force.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(s.rateLimit(10, time.Minute))
		r.With(s.rateLimit(5, 5*time.Minute)).Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
	})

	// Core API: everything below requires a valid session.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit(s.deps.Config.Security.RateLimitReqs, s.deps.Config.Security.RateLimitWindow))
		r.Use(middleware.Metrics)
		r.Use(authenticated)

		// Wallet and billing: admin accounts only; sub-accounts carry no
		// billing responsibility.
		r.Route("/wallet", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", s.handleWalletGet)
			r.Get("/stats", s.handleWalletStats)
			r.Post("/topup/intent", s.handleTopUpIntent)
			r.Post("/topup/confirm", s.handleTopUpConfirm)
			r.Get("/billing/summary", s.handleBillingSummary)
			r.Post("/billing/run", s.handleBillingRun)
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", s.handleContactsList)
			r.Post("/", s.handleContactCreate)
			r.Delete("/{contactID}", s.handleContactDelete)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", s.handleMessageSend)
			r.Get("/{contactID}", s.handleMessagesList)
			r.Post("/{contactID}/read", s.handleMessagesMarkRead)
		})

		r.Route("/numbers", func(r chi.Router) {
			r.Get("/", s.handleNumbersList)
			r.With(adminOnly).Get("/available", s.handleNumbersAvailable)
			r.With(adminOnly).Post("/purchase", s.handleNumberPurchase)
			r.With(adminOnly).Post("/{numberID}/assign", s.handleNumberAssign)
			r.With(adminOnly).Post("/{numberID}/release", s.handleNumberRelease)
			r.With(adminOnly).Post("/{numberID}/toggle", s.handleNumberToggle)
		})

		r.Route("/sub-accounts", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", s.handleSubAccountsList)
			r.Post("/", s.handleSubAccountCreate)
		})
	})

	// WebSocket upgrade: browsers cannot set Authorization headers on
	// WS connections, so the socket authenticates via its first frame.
	r.Get("/ws", websocket.ServeWS(s.deps.Hub, s.deps.JWT))

	// Carrier webhooks: authenticated by carrier signature at the proxy,
	// never by user session.
	r.Route("/webhooks/sms", func(r chi.Router) {
		r.Use(s.rateLimit(300, time.Minute))
		r.Post("/inbound", s.handleInboundWebhook)
		r.Post("/status", s.handleStatusWebhook)
	})

	return r
}

// rateLimit builds an IP rate limiter, disabled entirely in test configs.
func (s *Server) rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if s.deps.Config.Security.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(requests, window)
}
