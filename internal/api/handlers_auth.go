// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Hammadsoomro/Connectlify/internal/auth"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	token, account, err := s.deps.Auth.Login(req.Email, req.Password)
	if errors.Is(err, auth.ErrBadCredentials) {
		respondError(w, http.StatusUnauthorized, models.CodeAuthRequired, "Invalid email or password", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Login failed", err)
		return
	}

	respondData(w, http.StatusOK, loginResponse{Token: token, Account: account})
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := s.deps.Auth.RegisterAdmin(req.Name, req.Email, req.Password)
	if errors.Is(err, auth.ErrEmailTaken) {
		respondError(w, http.StatusConflict, models.CodeValidationError, "Email already registered", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Registration failed", err)
		return
	}

	respondData(w, http.StatusCreated, account)
}

func (s *Server) handleSubAccountsList(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.Store.ListSubAccounts(s.claims(r).AccountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not list sub-accounts", err)
		return
	}
	respondData(w, http.StatusOK, subs)
}

type subAccountCreateRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (s *Server) handleSubAccountCreate(w http.ResponseWriter, r *http.Request) {
	var req subAccountCreateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := s.deps.Auth.RegisterSubAccount(s.claims(r).AccountID, req.Name, req.Email, req.Password)
	if errors.Is(err, auth.ErrEmailTaken) {
		respondError(w, http.StatusConflict, models.CodeValidationError, "Email already registered", nil)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, models.CodeNotFound, "Admin account not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not create sub-account", err)
		return
	}

	respondData(w, http.StatusCreated, account)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}
