// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Hammadsoomro/Connectlify/internal/carrier"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/sms"
	"github.com/Hammadsoomro/Connectlify/internal/store"
	"github.com/Hammadsoomro/Connectlify/internal/wallet"
)

type sendMessageRequest struct {
	ContactID string `json:"contactId" validate:"required"`
	NumberID  string `json:"numberId"`
	Content   string `json:"content" validate:"required,max=1600"`
}

func (s *Server) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	msg, err := s.deps.Pipeline.Send(r.Context(), sms.SendRequest{
		SenderID:  s.claims(r).AccountID,
		ContactID: req.ContactID,
		NumberID:  req.NumberID,
		Content:   req.Content,
	})

	switch {
	case err == nil:
		respondData(w, http.StatusCreated, msg)

	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Contact or number not found", nil)

	case errors.Is(err, wallet.ErrInsufficientBalance):
		respondError(w, http.StatusPaymentRequired, models.CodeInsufficientBalance, "Wallet balance cannot cover this message", nil)

	case errors.Is(err, sms.ErrNoSendingNumber):
		respondError(w, http.StatusBadRequest, models.CodeNoPhoneNumber, "No usable sending number on this account", nil)

	case errors.Is(err, sms.ErrNumberNotUsable):
		respondError(w, http.StatusBadRequest, models.CodeNoPhoneNumber, "The selected number cannot send right now", nil)

	case errors.Is(err, sms.ErrNumberNotAllowed):
		respondError(w, http.StatusForbidden, models.CodeForbidden, "Number not assigned to this account", nil)

	default:
		var cerr *carrier.CarrierError
		if errors.As(err, &cerr) {
			if cerr.IsInvalidRecipient() || cerr.IsInvalidSender() {
				respondError(w, http.StatusBadRequest, models.CodeInvalidNumber, cerr.FriendlyMessage(), nil)
				return
			}
			respondError(w, http.StatusBadGateway, models.CodeCarrierError, cerr.FriendlyMessage(), err)
			return
		}
		respondError(w, http.StatusBadGateway, models.CodeCarrierError, "Message could not be delivered to the carrier", err)
	}
}

func (s *Server) handleMessagesList(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	limit := queryInt(r, "limit", 100)

	msgs, err := s.deps.Pipeline.ListMessages(s.claims(r).AccountID, contactID, limit)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Contact not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not list messages", err)
		return
	}
	respondData(w, http.StatusOK, msgs)
}

func (s *Server) handleMessagesMarkRead(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	billingID, err := s.billingAccountID(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not resolve account", err)
		return
	}

	err = s.deps.Pipeline.MarkRead(billingID, contactID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Contact not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not mark conversation read", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleContactsList(w http.ResponseWriter, r *http.Request) {
	billingID, err := s.billingAccountID(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not resolve account", err)
		return
	}

	contacts, err := s.deps.Store.ListContacts(billingID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not list contacts", err)
		return
	}
	respondData(w, http.StatusOK, contacts)
}

type contactCreateRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	PhoneNumber string `json:"phoneNumber" validate:"required,e164phone"`
}

func (s *Server) handleContactCreate(w http.ResponseWriter, r *http.Request) {
	var req contactCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	billingID, err := s.billingAccountID(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not resolve account", err)
		return
	}

	if existing, err := s.deps.Store.FindContactByPhone(billingID, req.PhoneNumber); err == nil {
		respondData(w, http.StatusOK, existing)
		return
	}

	now := time.Now().UTC()
	contact := &models.Contact{
		ID:          uuid.New().String(),
		AccountID:   billingID,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Store.PutContact(contact); err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not create contact", err)
		return
	}
	respondData(w, http.StatusCreated, contact)
}

func (s *Server) handleContactDelete(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	billingID, err := s.billingAccountID(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not resolve account", err)
		return
	}

	err = s.deps.Store.DeleteContact(billingID, contactID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Contact not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not delete contact", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deleted"})
}
