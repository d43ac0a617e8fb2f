// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package main is the entry point for the Connectlify server.
//
// Connectlify is a self-hosted SMS relay platform: admin accounts buy
// carrier numbers, fund a prepaid wallet, and exchange SMS conversations
// with contacts in real time. Sub-accounts work assigned numbers while
// the owning admin carries all billing.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and config file (Koanf v2)
//  2. Store: BadgerDB document store for accounts, wallets, numbers, messages
//  3. Services: wallet ledger, number lifecycle, billing controller, SMS pipeline
//  4. WebSocket hub: real-time event fan-out to connected clients
//  5. Supervisor tree: suture v4 supervision of hub, scheduler, HTTP server
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (PORT, JWT_SECRET, TWILIO_SID, STRIPE_SECRET_KEY, ...)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Closes WebSocket clients with a shutdown frame
//   - Flushes and closes the store
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hammadsoomro/Connectlify/internal/api"
	"github.com/Hammadsoomro/Connectlify/internal/auth"
	"github.com/Hammadsoomro/Connectlify/internal/backup"
	"github.com/Hammadsoomro/Connectlify/internal/billing"
	"github.com/Hammadsoomro/Connectlify/internal/carrier"
	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/numbers"
	"github.com/Hammadsoomro/Connectlify/internal/payments"
	"github.com/Hammadsoomro/Connectlify/internal/sms"
	"github.com/Hammadsoomro/Connectlify/internal/store"
	"github.com/Hammadsoomro/Connectlify/internal/supervisor"
	"github.com/Hammadsoomro/Connectlify/internal/supervisor/services"
	"github.com/Hammadsoomro/Connectlify/internal/wallet"
	ws "github.com/Hammadsoomro/Connectlify/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Connectlify with supervisor tree")

	if cfg.Security.JWTSecret == "" {
		logging.Fatal().Msg("JWT_SECRET is required (32+ characters)")
	}

	logging.Info().
		Str("store_path", cfg.Store.Path).
		Str("carrier_url", cfg.Carrier.BaseURL).
		Str("message_price", cfg.Billing.MessagePrice).
		Int("cycle_day", cfg.Billing.CycleDay).
		Msg("Configuration loaded")

	st, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	// Carrier client behind a circuit breaker so a carrier outage degrades
	// sending without hammering a dead API.
	carrierClient := carrier.NewBreakerClient(carrier.NewClient(cfg.Carrier))
	paymentsClient := payments.NewClient(cfg.Payments)

	jwtManager := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.SessionTimeout)
	authSvc := auth.NewService(st, jwtManager)

	walletSvc := wallet.New(st)
	numberSvc := numbers.New(st)
	controller := billing.New(st, walletSvc, numberSvc, cfg.Billing.CycleDay)
	pipeline := sms.New(st, walletSvc, carrierClient, cfg.Billing.MessagePriceDecimal())

	// Every wallet credit triggers reconciliation so suspended numbers
	// reactivate the moment funds cover their monthly rates.
	walletSvc.SetCreditHook(controller.Reconcile)

	hub := ws.NewHub()
	walletSvc.SetPublisher(hub)
	numberSvc.SetPublisher(hub)
	pipeline.SetPublisher(hub)

	// Presence changes notify the other side of the admin/sub-account
	// relationship so the client can render who is available.
	hub.SetPresenceHook(func(accountID string, online bool) {
		account, err := st.GetAccount(accountID)
		if err != nil {
			return
		}
		event := models.ContactStatusEvent{ContactID: accountID, IsOnline: online}
		if account.Role == models.RoleSubAccount {
			hub.Publish(account.AdminID, models.EventContactStatus, event)
			return
		}
		subs, err := st.ListSubAccounts(accountID)
		if err != nil {
			return
		}
		for _, sub := range subs {
			hub.Publish(sub.ID, models.EventContactStatus, event)
		}
	})

	server := api.NewServer(api.Deps{
		Config:   cfg,
		Store:    st,
		Auth:     authSvc,
		JWT:      jwtManager,
		Wallet:   walletSvc,
		Numbers:  numberSvc,
		Billing:  controller,
		Pipeline: pipeline,
		Carrier:  carrierClient,
		Payments: paymentsClient,
		Hub:      hub,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility.
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if cfg.Backup.Enabled {
		backupMgr, err := backup.NewManager(st, cfg.Backup)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize backup manager")
		}
		tree.AddDataService(backupMgr)
		logging.Info().
			Str("dir", cfg.Backup.Dir).
			Dur("interval", cfg.Backup.Interval).
			Int("retention", cfg.Backup.Retention).
			Msg("Backup manager added to supervisor tree")
	} else {
		logging.Info().Msg("Backup functionality disabled (BACKUP_ENABLED=false)")
	}

	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddBillingService(billing.NewScheduler(controller))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))
	logging.Info().Str("addr", httpServer.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
