// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Hammadsoomro/Connectlify/internal/billing"
	"github.com/Hammadsoomro/Connectlify/internal/carrier"
	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/numbers"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

func (s *Server) handleNumbersList(w http.ResponseWriter, r *http.Request) {
	claims := s.claims(r)
	account, err := s.deps.Store.GetAccount(claims.AccountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not resolve account", err)
		return
	}

	owned, err := s.deps.Numbers.ListByOwner(account.BillingAccountID())
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not list numbers", err)
		return
	}

	// Sub-accounts only see the numbers assigned to them.
	if account.Role == models.RoleSubAccount {
		assigned := owned[:0]
		for _, n := range owned {
			if account.HasAssignedNumber(n.Number) {
				assigned = append(assigned, n)
			}
		}
		owned = assigned
	}
	respondData(w, http.StatusOK, owned)
}

func (s *Server) handleNumbersAvailable(w http.ResponseWriter, r *http.Request) {
	query := carrier.AvailableNumberQuery{
		Country:  r.URL.Query().Get("country"),
		AreaCode: r.URL.Query().Get("areaCode"),
	}
	if r.URL.Query().Get("type") == string(models.NumberTypeTollFree) {
		query.Type = models.NumberTypeTollFree
	} else {
		query.Type = models.NumberTypeLocal
	}

	available, err := s.deps.Carrier.ListAvailableNumbers(r.Context(), query)
	if err != nil {
		respondError(w, http.StatusBadGateway, models.CodeCarrierError, "Could not search available numbers", err)
		return
	}
	respondData(w, http.StatusOK, available)
}

type purchaseRequest struct {
	Number   string `json:"number" validate:"required,e164phone"`
	Type     string `json:"type" validate:"required,oneof=local toll-free"`
	Location string `json:"location" validate:"max=120"`
	Country  string `json:"country" validate:"max=2"`
}

// handleNumberPurchase buys a number from the carrier. The setup cost
// equals one monthly rate and doubles as the current cycle's charge, so a
// number bought mid-month is not billed again days later.
func (s *Server) handleNumberPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	accountID := s.claims(r).AccountID
	numberType := models.NumberType(req.Type)
	setupCost := models.MonthlyRateFor(numberType)

	if ok, err := s.deps.Wallet.HasBalance(accountID, setupCost); err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not check balance", err)
		return
	} else if !ok {
		respondError(w, http.StatusPaymentRequired, models.CodeInsufficientBalance,
			fmt.Sprintf("Purchasing this number requires a balance of %s", setupCost), nil)
		return
	}

	purchased, err := s.deps.Carrier.PurchaseNumber(r.Context(), req.Number)
	if err != nil {
		respondError(w, http.StatusBadGateway, models.CodeCarrierError, "Carrier could not complete the purchase", err)
		return
	}

	now := time.Now().UTC()
	number := &models.PhoneNumber{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Number:      purchased.PhoneNumber,
		CarrierSID:  purchased.SID,
		Type:        numberType,
		Status:      models.NumberActive,
		Location:    req.Location,
		Country:     req.Country,
		PurchasedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Numbers.Create(number); err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not store purchased number", err)
		return
	}

	description := fmt.Sprintf("Setup cost for %s (%s)", number.Number, number.Type)
	if _, err := s.deps.Wallet.Debit(accountID, setupCost, description, "NUMBER_"+number.ID); err != nil {
		// The carrier already completed the purchase; log the gap
		// instead of stranding the number.
		logging.Warn().
			Err(err).
			Str("number_id", number.ID).
			Str("account_id", accountID).
			Msg("Number purchased but setup debit failed")
	}

	cycleRef := billing.CycleRef(now)
	if err := s.deps.Store.PutCycleRecord(&models.BillingCycleRecord{
		CycleRef:  cycleRef,
		NumberID:  number.ID,
		AccountID: accountID,
		Outcome:   models.CycleCharged,
		Amount:    setupCost,
		CreatedAt: now,
	}); err != nil {
		logging.Error().Err(err).Str("number_id", number.ID).Msg("Could not record purchase cycle charge")
	}

	respondData(w, http.StatusCreated, number)
}

type assignRequest struct {
	AccountID string `json:"accountId" validate:"required"`
	Unassign  bool   `json:"unassign"`
}

func (s *Server) handleNumberAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	adminID := s.claims(r).AccountID
	numberID := chi.URLParam(r, "numberID")

	number, err := s.deps.Numbers.Get(numberID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Number not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not load number", err)
		return
	}
	if number.AccountID != adminID {
		respondError(w, http.StatusForbidden, models.CodeForbidden, "Number belongs to a different account", nil)
		return
	}

	sub, err := s.deps.Store.GetAccount(req.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Sub-account not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not load sub-account", err)
		return
	}
	if sub.Role != models.RoleSubAccount || sub.AdminID != adminID {
		respondError(w, http.StatusForbidden, models.CodeForbidden, "Account is not one of your sub-accounts", nil)
		return
	}

	if req.Unassign {
		kept := sub.AssignedNumbers[:0]
		for _, n := range sub.AssignedNumbers {
			if n != number.Number {
				kept = append(kept, n)
			}
		}
		sub.AssignedNumbers = kept
	} else if !sub.HasAssignedNumber(number.Number) {
		sub.AssignedNumbers = append(sub.AssignedNumbers, number.Number)
	}
	sub.UpdatedAt = time.Now().UTC()

	if err := s.deps.Store.PutAccount(sub); err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not update assignment", err)
		return
	}
	respondData(w, http.StatusOK, sub)
}

// handleNumberRelease retires a number permanently and withdraws it from
// every sub-account assignment.
func (s *Server) handleNumberRelease(w http.ResponseWriter, r *http.Request) {
	adminID := s.claims(r).AccountID
	numberID := chi.URLParam(r, "numberID")

	number, err := s.deps.Numbers.Get(numberID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Number not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not load number", err)
		return
	}
	if number.AccountID != adminID {
		respondError(w, http.StatusForbidden, models.CodeForbidden, "Number belongs to a different account", nil)
		return
	}

	released, err := s.deps.Numbers.Release(numberID)
	if errors.Is(err, numbers.ErrInvalidTransition) {
		respondError(w, http.StatusConflict, models.CodeValidationError, "Number is already released", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not release number", err)
		return
	}

	subs, err := s.deps.Store.ListSubAccounts(adminID)
	if err == nil {
		for _, sub := range subs {
			if !sub.HasAssignedNumber(number.Number) {
				continue
			}
			kept := sub.AssignedNumbers[:0]
			for _, n := range sub.AssignedNumbers {
				if n != number.Number {
					kept = append(kept, n)
				}
			}
			sub.AssignedNumbers = kept
			sub.UpdatedAt = time.Now().UTC()
			if err := s.deps.Store.PutAccount(sub); err != nil {
				logging.Error().Err(err).Str("sub_account", sub.ID).Msg("Could not withdraw released number assignment")
			}
		}
	}

	respondData(w, http.StatusOK, released)
}

type toggleRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleNumberToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	adminID := s.claims(r).AccountID
	numberID := chi.URLParam(r, "numberID")

	number, err := s.deps.Numbers.Get(numberID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Number not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not load number", err)
		return
	}
	if number.AccountID != adminID {
		respondError(w, http.StatusForbidden, models.CodeForbidden, "Number belongs to a different account", nil)
		return
	}

	updated, err := s.deps.Numbers.ToggleSending(numberID, req.Active)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not update number", err)
		return
	}
	respondData(w, http.StatusOK, updated)
}
