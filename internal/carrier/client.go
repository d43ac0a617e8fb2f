// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package carrier talks to the SMS carrier's REST API: sending messages,
// searching available numbers, and purchasing them. Production traffic
// goes through BreakerClient, which adds circuit breaking on top of the
// raw Client.
package carrier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/metrics"
	"github.com/Hammadsoomro/Connectlify/internal/models"
)

// API is the carrier surface the rest of the platform depends on.
// Client implements it directly; BreakerClient wraps it.
type API interface {
	SendMessage(ctx context.Context, from, to, body string) (*SendResult, error)
	ListAvailableNumbers(ctx context.Context, query AvailableNumberQuery) ([]AvailableNumber, error)
	PurchaseNumber(ctx context.Context, e164 string) (*PurchasedNumber, error)
}

// SendResult is the carrier's acknowledgement of an outbound message.
type SendResult struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// AvailableNumberQuery filters the available-number search.
type AvailableNumberQuery struct {
	Country  string
	Type     models.NumberType
	AreaCode string
}

// AvailableNumber is one purchasable number from the carrier inventory.
type AvailableNumber struct {
	PhoneNumber string `json:"phone_number"`
	Locality    string `json:"locality"`
	Region      string `json:"region"`
	Country     string `json:"iso_country"`
}

// PurchasedNumber is the carrier's record of a completed purchase.
type PurchasedNumber struct {
	SID         string `json:"sid"`
	PhoneNumber string `json:"phone_number"`
}

// Client is the raw HTTP client for the carrier API.
type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a carrier client from configuration.
func NewClient(cfg config.CarrierConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// SendMessage submits an outbound SMS and returns the carrier's message SID.
func (c *Client) SendMessage(ctx context.Context, from, to, body string) (*SendResult, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	start := time.Now()
	var result SendResult
	err := c.doForm(ctx, endpoint, form, &result)
	metrics.RecordCarrierRequest("send", outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAvailableNumbers searches the carrier inventory for purchasable
// numbers in the given country.
func (c *Client) ListAvailableNumbers(ctx context.Context, query AvailableNumberQuery) ([]AvailableNumber, error) {
	country := query.Country
	if country == "" {
		country = "US"
	}
	kind := "Local"
	if query.Type == models.NumberTypeTollFree {
		kind = "TollFree"
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/AvailablePhoneNumbers/%s/%s.json",
		c.baseURL, c.accountSID, country, kind)
	if query.AreaCode != "" {
		endpoint += "?AreaCode=" + url.QueryEscape(query.AreaCode)
	}

	start := time.Now()
	var payload struct {
		AvailablePhoneNumbers []AvailableNumber `json:"available_phone_numbers"`
	}
	err := c.doGet(ctx, endpoint, &payload)
	metrics.RecordCarrierRequest("list_numbers", outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return payload.AvailablePhoneNumbers, nil
}

// PurchaseNumber buys a number from the carrier inventory.
func (c *Client) PurchaseNumber(ctx context.Context, e164 string) (*PurchasedNumber, error) {
	form := url.Values{}
	form.Set("PhoneNumber", e164)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/IncomingPhoneNumbers.json", c.baseURL, c.accountSID)

	start := time.Now()
	var result PurchasedNumber
	err := c.doForm(ctx, endpoint, form, &result)
	metrics.RecordCarrierRequest("purchase", outcomeLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) doForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build carrier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) doGet(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build carrier request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("carrier request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read carrier response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var cerr CarrierError
		if json.Unmarshal(data, &cerr) == nil && cerr.Code != 0 {
			cerr.Status = resp.StatusCode
			return &cerr
		}
		return fmt.Errorf("carrier returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode carrier response: %w", err)
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
