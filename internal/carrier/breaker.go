// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package carrier

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/metrics"
)

// BreakerClient wraps a carrier API with a circuit breaker so a degraded
// carrier cannot tie up every request-handling goroutine.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests exercise the wrapped client directly.
type BreakerClient struct {
	inner API
	cb    *gobreaker.CircuitBreaker[interface{}]
	name  string
}

var _ API = (*BreakerClient)(nil)

// NewBreakerClient wraps the given carrier API.
// Breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewBreakerClient(inner API) *BreakerClient {
	cbName := "carrier-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("Opening carrier circuit")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Carrier circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},

		// A CarrierError is the carrier telling us the request was bad,
		// not that the carrier is down. Only transport-level failures
		// count toward tripping the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var cerr *CarrierError
			return errors.As(err, &cerr)
		},
	})

	return &BreakerClient{inner: inner, cb: cb, name: cbName}
}

func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// SendMessage submits an outbound SMS through the breaker.
func (b *BreakerClient) SendMessage(ctx context.Context, from, to, body string) (*SendResult, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.inner.SendMessage(ctx, from, to, body)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SendResult), nil
}

// ListAvailableNumbers searches carrier inventory through the breaker.
func (b *BreakerClient) ListAvailableNumbers(ctx context.Context, query AvailableNumberQuery) ([]AvailableNumber, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.inner.ListAvailableNumbers(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result.([]AvailableNumber), nil
}

// PurchaseNumber buys a number through the breaker.
func (b *BreakerClient) PurchaseNumber(ctx context.Context, e164 string) (*PurchasedNumber, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.inner.PurchaseNumber(ctx, e164)
	})
	if err != nil {
		return nil, err
	}
	return result.(*PurchasedNumber), nil
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
