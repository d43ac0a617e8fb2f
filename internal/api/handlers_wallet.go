// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package api

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/payments"
)

func (s *Server) handleWalletGet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.deps.Wallet.Snapshot(s.claims(r).AccountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not load wallet", err)
		return
	}
	respondData(w, http.StatusOK, wallet)
}

func (s *Server) handleWalletStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Wallet.Stats(s.claims(r).AccountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not compute wallet stats", err)
		return
	}
	respondData(w, http.StatusOK, stats)
}

type topUpIntentRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

type topUpIntentResponse struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

func (s *Server) handleTopUpIntent(w http.ResponseWriter, r *http.Request) {
	var req topUpIntentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	amount, _ := decimal.NewFromString(req.Amount)
	if !amount.IsPositive() {
		respondError(w, http.StatusBadRequest, models.CodeValidationError, "Amount must be positive", nil)
		return
	}

	intent, err := s.deps.Payments.CreateChargeIntent(r.Context(), s.claims(r).AccountID, amount)
	if err != nil {
		respondError(w, http.StatusBadGateway, models.CodePaymentError, "Could not start payment", err)
		return
	}

	respondData(w, http.StatusCreated, topUpIntentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	})
}

type topUpConfirmRequest struct {
	IntentID string `json:"intentId" validate:"required"`
}

func (s *Server) handleTopUpConfirm(w http.ResponseWriter, r *http.Request) {
	var req topUpConfirmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	accountID := s.claims(r).AccountID

	intent, err := s.deps.Payments.ConfirmCharge(r.Context(), req.IntentID, accountID)
	if errors.Is(err, payments.ErrWrongAccount) {
		respondError(w, http.StatusForbidden, models.CodeForbidden, "Payment belongs to a different account", nil)
		return
	}
	if errors.Is(err, payments.ErrNotSucceeded) {
		respondError(w, http.StatusBadRequest, models.CodePaymentError, "Payment has not completed", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, models.CodePaymentError, "Could not verify payment", err)
		return
	}

	// Confirm is retryable by clients; never credit the same intent twice.
	snapshot, err := s.deps.Wallet.Snapshot(accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not load wallet", err)
		return
	}
	for _, txn := range snapshot.Transactions {
		if txn.Kind == models.TxnCredit && txn.Reference == intent.ID {
			logging.Info().
				Str("account_id", accountID).
				Str("intent_id", intent.ID).
				Msg("Duplicate top-up confirmation ignored")
			respondData(w, http.StatusOK, snapshot)
			return
		}
	}

	wallet, err := s.deps.Wallet.Credit(accountID, intent.Amount, "Funds added", intent.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not credit wallet", err)
		return
	}
	respondData(w, http.StatusOK, wallet)
}

func (s *Server) handleBillingSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Billing.BuildSummary(s.claims(r).AccountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not build billing summary", err)
		return
	}
	respondData(w, http.StatusOK, summary)
}

func (s *Server) handleBillingRun(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Billing.RunAll(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Billing run failed", err)
		return
	}
	respondData(w, http.StatusAccepted, map[string]string{"status": "completed"})
}
