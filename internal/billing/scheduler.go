// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package billing

import (
	"context"
	"time"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
)

// checkInterval is how often the scheduler wakes to see whether the cycle
// day has arrived. Cycle records make redundant runs harmless, so waking
// hourly costs nothing beyond a few store reads.
const checkInterval = time.Hour

// Scheduler triggers the billing cycle on the configured day of month.
// Implements suture.Service via Serve.
type Scheduler struct {
	controller *Controller
}

// NewScheduler wraps a controller for supervised operation.
func NewScheduler(c *Controller) *Scheduler {
	return &Scheduler{controller: c}
}

// Serve runs until the context is canceled. One pass runs immediately on
// start so a restart on the cycle day never skips billing.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.runIfDue(ctx)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "billing-scheduler").Msg("Billing scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runIfDue(ctx)
		}
	}
}

func (s *Scheduler) runIfDue(ctx context.Context) {
	now := s.controller.now()
	if now.Day() != s.controller.cycleDay {
		return
	}
	if err := s.controller.RunAll(ctx); err != nil {
		logging.Error().Err(err).Msg("Billing cycle run failed")
	}
}

func (s *Scheduler) String() string { return "billing-scheduler" }
