// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package models

import "github.com/shopspring/decimal"

// Event types pushed to websocket clients. Every event targets a single
// account; there is no broadcast-to-all path for account data.
const (
	EventAuthSuccess   = "auth_success"
	EventAuthError     = "auth_error"
	EventNewMessage    = "new_message"
	EventUnreadUpdate  = "unread_update"
	EventMessageStatus = "message_status"
	EventTyping        = "typing"
	EventContactStatus = "contact_status"
	EventNumberStatus  = "number_status"
	EventWalletUpdate  = "wallet_update"
)

// NewMessageEvent announces an inbound message for a contact.
type NewMessageEvent struct {
	ContactID string   `json:"contactId"`
	Message   *Message `json:"message"`
}

// UnreadUpdateEvent updates a contact's unread badge.
type UnreadUpdateEvent struct {
	ContactID string `json:"contactId"`
	HasUnread bool   `json:"hasUnread"`
}

// MessageStatusEvent reports a message's state-machine progress.
type MessageStatusEvent struct {
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
}

// TypingEvent relays a typing indicator between accounts.
type TypingEvent struct {
	ContactID string `json:"contactId"`
	IsTyping  bool   `json:"isTyping"`
}

// ContactStatusEvent reports a contact's presence.
type ContactStatusEvent struct {
	ContactID string `json:"contactId"`
	IsOnline  bool   `json:"isOnline"`
}

// NumberStatusEvent reports a phone number lifecycle change, such as a
// billing suspension or reactivation.
type NumberStatusEvent struct {
	NumberID string       `json:"numberId"`
	Number   string       `json:"number"`
	Status   NumberStatus `json:"status"`
}

// WalletUpdateEvent reports the wallet balance after a credit or debit.
type WalletUpdateEvent struct {
	Balance decimal.Decimal `json:"balance"`
}
