// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package models

import "time"

// APIResponse is the envelope for all HTTP API responses.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing information.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is a machine-readable error with a stable code.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Stable API error codes. Handlers must surface the most specific code
// known; a generic SERVER_ERROR is a last resort.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeNoPhoneNumber       = "NO_PHONE_NUMBER"
	CodeInvalidNumber       = "INVALID_NUMBER"
	CodeCarrierError        = "CARRIER_ERROR"
	CodePaymentError        = "PAYMENT_ERROR"
	CodeServerError         = "SERVER_ERROR"
)
