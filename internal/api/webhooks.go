// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package api

import (
	"errors"
	"net/http"

	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/sms"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

// Carrier webhooks arrive as application/x-www-form-urlencoded posts. The
// carrier retries on non-2xx, so permanent failures still answer 200 to
// stop the retry loop.

func (s *Server) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, models.CodeValidationError, "Malformed webhook payload", err)
		return
	}

	in := sms.InboundMessage{
		From:       r.PostFormValue("From"),
		To:         r.PostFormValue("To"),
		Body:       r.PostFormValue("Body"),
		CarrierSID: r.PostFormValue("MessageSid"),
	}
	if in.From == "" || in.To == "" {
		respondError(w, http.StatusBadRequest, models.CodeValidationError, "Webhook missing From or To", nil)
		return
	}

	if _, err := s.deps.Pipeline.HandleInbound(in); err != nil {
		// Unroutable messages are final; retrying will not help.
		logging.Warn().
			Err(err).
			Str("to", sanitizeLogValue(in.To)).
			Msg("Inbound webhook could not be routed")
	}
	w.WriteHeader(http.StatusOK)
}

// carrierStatusMap translates carrier callback vocabulary to the internal
// delivery state machine. Unlisted statuses (queued, accepted) are
// acknowledged without a state change.
var carrierStatusMap = map[string]models.MessageStatus{
	"sent":        models.MessageSent,
	"delivered":   models.MessageDelivered,
	"read":        models.MessageRead,
	"failed":      models.MessageFailed,
	"undelivered": models.MessageFailed,
}

func (s *Server) handleStatusWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, models.CodeValidationError, "Malformed webhook payload", err)
		return
	}

	sid := r.PostFormValue("MessageSid")
	rawStatus := r.PostFormValue("MessageStatus")
	if sid == "" {
		respondError(w, http.StatusBadRequest, models.CodeValidationError, "Webhook missing MessageSid", nil)
		return
	}

	status, ok := carrierStatusMap[rawStatus]
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	_, err := s.deps.Pipeline.UpdateStatus(sid, status)
	switch {
	case err == nil:
	case errors.Is(err, sms.ErrInvalidTransition):
		// Out-of-order or duplicate callback. Already past this state.
		logging.Debug().
			Str("carrier_sid", sanitizeLogValue(sid)).
			Str("status", rawStatus).
			Msg("Ignoring stale status callback")
	case errors.Is(err, store.ErrNotFound):
		logging.Warn().
			Str("carrier_sid", sanitizeLogValue(sid)).
			Msg("Status callback for unknown message")
	default:
		respondError(w, http.StatusInternalServerError, models.CodeServerError, "Could not apply status update", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
