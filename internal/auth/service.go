// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

// ErrBadCredentials is returned for any login failure. The cause (unknown
// email, wrong password, deactivated account) is deliberately not leaked.
var ErrBadCredentials = errors.New("auth: invalid email or password")

// ErrEmailTaken is returned when registering a duplicate email.
var ErrEmailTaken = errors.New("auth: email already registered")

// Service implements login and account registration.
type Service struct {
	store *store.Store
	jwt   *JWTManager
}

// NewService creates the auth service.
func NewService(st *store.Store, jwt *JWTManager) *Service {
	return &Service{store: st, jwt: jwt}
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(email, password string) (string, *models.Account, error) {
	account, err := s.store.GetAccountByEmail(email)
	if errors.Is(err, store.ErrNotFound) {
		// Burn comparable time so unknown emails are not distinguishable
		// from wrong passwords by response latency.
		CheckPassword("$2a$10$000000000000000000000uGZLKQvMdW1LsOXkcxevcKVHh7q0Hxpm", password)
		return "", nil, ErrBadCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if !CheckPassword(account.PasswordHash, password) {
		logging.Warn().Str("account_id", account.ID).Msg("Login rejected, wrong password")
		return "", nil, ErrBadCredentials
	}
	if !account.IsActive {
		logging.Warn().Str("account_id", account.ID).Msg("Login rejected, account deactivated")
		return "", nil, ErrBadCredentials
	}

	token, err := s.jwt.GenerateToken(account)
	if err != nil {
		return "", nil, err
	}

	logging.Info().Str("account_id", account.ID).Str("role", string(account.Role)).Msg("Account logged in")
	return token, account, nil
}

// RegisterAdmin creates a new admin account.
func (s *Service) RegisterAdmin(name, email, password string) (*models.Account, error) {
	return s.register(name, email, password, models.RoleAdmin, "")
}

// RegisterSubAccount creates a sub-account owned by the given admin.
func (s *Service) RegisterSubAccount(adminID, name, email, password string) (*models.Account, error) {
	admin, err := s.store.GetAccount(adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != models.RoleAdmin {
		return nil, fmt.Errorf("account %s is not an admin", adminID)
	}
	return s.register(name, email, password, models.RoleSubAccount, adminID)
}

func (s *Service) register(name, email, password string, role models.Role, adminID string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if _, err := s.store.GetAccountByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		AdminID:      adminID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.PutAccount(account); err != nil {
		return nil, err
	}

	logging.Info().Str("account_id", account.ID).Str("role", string(role)).Msg("Account registered")
	return account, nil
}
