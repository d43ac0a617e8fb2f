// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package payments integrates the card payment processor for wallet
// top-ups. The flow is two-phase: CreateChargeIntent hands the client a
// secret to complete the card payment, and ConfirmCharge verifies the
// processor's verdict server-side before any funds are credited.
package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/metrics"
)

// ErrNotSucceeded is returned when a confirmed intent has not actually
// been paid. The wallet must not be credited.
var ErrNotSucceeded = errors.New("payments: intent has not succeeded")

// ErrWrongAccount is returned when an intent's metadata names a different
// account than the caller. Blocks crediting someone else's payment.
var ErrWrongAccount = errors.New("payments: intent belongs to a different account")

// Intent is the processor's record of one charge attempt.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       decimal.Decimal
	Currency     string
	Status       string
	AccountID    string
}

// API is the payments surface the rest of the platform depends on.
type API interface {
	CreateChargeIntent(ctx context.Context, accountID string, amount decimal.Decimal) (*Intent, error)
	ConfirmCharge(ctx context.Context, intentID, accountID string) (*Intent, error)
}

// Client is the raw HTTP client for the payment processor.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a payments client from configuration.
func NewClient(cfg config.PaymentsConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// intentPayload is the processor's wire format. Amounts are integer cents.
type intentPayload struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

func (p *intentPayload) toIntent() *Intent {
	return &Intent{
		ID:           p.ID,
		ClientSecret: p.ClientSecret,
		Amount:       decimal.New(p.Amount, -2),
		Currency:     strings.ToUpper(p.Currency),
		Status:       p.Status,
		AccountID:    p.Metadata["accountId"],
	}
}

// CreateChargeIntent registers a pending charge with the processor. The
// amount is tagged with the paying account so confirmation can verify
// ownership.
func (c *Client) CreateChargeIntent(ctx context.Context, accountID string, amount decimal.Decimal) (*Intent, error) {
	form := url.Values{}
	// The processor wants integer cents.
	form.Set("amount", amount.Mul(decimal.New(100, 0)).Truncate(0).String())
	form.Set("currency", "usd")
	form.Set("metadata[accountId]", accountID)

	start := time.Now()
	var payload intentPayload
	err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", form, &payload)
	metrics.RecordPaymentRequest("create_intent", outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return payload.toIntent(), nil
}

// ConfirmCharge fetches the intent from the processor and verifies that the
// card payment succeeded and that the intent was created for the calling
// account. The client's claim is never trusted.
func (c *Client) ConfirmCharge(ctx context.Context, intentID, accountID string) (*Intent, error) {
	start := time.Now()
	var payload intentPayload
	err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+url.PathEscape(intentID), nil, &payload)
	metrics.RecordPaymentRequest("confirm", outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	intent := payload.toIntent()
	if intent.AccountID != accountID {
		return nil, ErrWrongAccount
	}
	if intent.Status != "succeeded" {
		return nil, fmt.Errorf("%w: status %q", ErrNotSucceeded, intent.Status)
	}
	return intent, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read payment response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errPayload struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &errPayload) == nil && errPayload.Error.Message != "" {
			return fmt.Errorf("payment processor: %s (%s)", errPayload.Error.Message, errPayload.Error.Type)
		}
		return fmt.Errorf("payment processor returned HTTP %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode payment response: %w", err)
		}
	}
	return nil
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
