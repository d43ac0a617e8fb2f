// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package models

import "time"

// MessageStatus is a message's position in the delivery state machine.
//
// Happy path: sending -> sent -> delivered -> read.
// Alternate terminal path: sending -> failed.
// A message in read or failed state is immutable.
type MessageStatus string

const (
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// statusRank orders the happy-path states so transitions can be checked
// for forward motion. failed is excluded: it is reachable only from sending.
var statusRank = map[MessageStatus]int{
	MessageSending:   0,
	MessageSent:      1,
	MessageDelivered: 2,
	MessageRead:      3,
}

// CanTransition reports whether a message may move from one status to
// another. Transitions are forward-only (a carrier callback may skip
// delivered and report read directly), read and failed are terminal, and
// failed is reachable only from sending.
func CanTransition(from, to MessageStatus) bool {
	if from == MessageRead || from == MessageFailed {
		return false
	}
	if to == MessageFailed {
		return from == MessageSending
	}
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	if !okFrom || !okTo {
		return false
	}
	return toRank > fromRank
}

// Message is one SMS exchanged with a contact. Messages are created by the
// delivery pipeline (outgoing) or an inbound carrier event (incoming) and
// are deleted only by cascade with their contact.
type Message struct {
	ID         string        `json:"id"`
	AccountID  string        `json:"accountId"`
	ContactID  string        `json:"contactId"`
	Content    string        `json:"content"`
	Outgoing   bool          `json:"isOutgoing"`
	CarrierSID string        `json:"carrierSid,omitempty"`
	Status     MessageStatus `json:"status"`
	FromNumber string        `json:"fromNumber"`
	ToNumber   string        `json:"toNumber"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}
