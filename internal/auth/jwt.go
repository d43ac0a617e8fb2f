// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package auth handles credentials and request authentication: bcrypt
// password hashing, HS256 session tokens, and the HTTP middleware that
// binds an authenticated account to the request context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// ErrInvalidToken covers expired, malformed, and wrongly signed tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the JWT payload for a session token.
type Claims struct {
	AccountID string      `json:"accountId"`
	Role      models.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 session tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager creates a token manager with the given signing secret and
// session lifetime.
func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), ttl: ttl}
}

// GenerateToken issues a session token for the account.
func (m *JWTManager) GenerateToken(account *models.Account) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		AccountID: account.ID,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyClaims parses and validates a session token.
func (m *JWTManager) VerifyClaims(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Reject any algorithm other than the one we sign with.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyToken validates a token and returns the account ID. Satisfies the
// websocket package's TokenVerifier.
func (m *JWTManager) VerifyToken(tokenString string) (string, error) {
	claims, err := m.VerifyClaims(tokenString)
	if err != nil {
		return "", err
	}
	return claims.AccountID, nil
}
