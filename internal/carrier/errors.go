// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package carrier

import "fmt"

// Carrier API error codes that callers branch on.
const (
	CodeInvalidTo        = 21211 // recipient number is not a valid phone number
	CodeInvalidFrom      = 21212 // sender number is not owned or not SMS-capable
	CodeUnsubscribed     = 21608 // recipient has opted out of messages
	CodeNotMobileCapable = 21614 // recipient number cannot receive SMS
)

// CarrierError is a structured error returned by the carrier API.
type CarrierError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info,omitempty"`
}

func (e *CarrierError) Error() string {
	return fmt.Sprintf("carrier error %d: %s", e.Code, e.Message)
}

// IsInvalidRecipient reports whether the error blames the destination
// number. These failures are permanent for the given recipient; retrying
// will not help.
func (e *CarrierError) IsInvalidRecipient() bool {
	switch e.Code {
	case CodeInvalidTo, CodeUnsubscribed, CodeNotMobileCapable:
		return true
	}
	return false
}

// IsInvalidSender reports whether the error blames the originating number.
func (e *CarrierError) IsInvalidSender() bool {
	return e.Code == CodeInvalidFrom
}

// FriendlyMessage returns a user-facing explanation for well-known codes.
func (e *CarrierError) FriendlyMessage() string {
	switch e.Code {
	case CodeInvalidTo:
		return "The recipient number is not a valid phone number"
	case CodeInvalidFrom:
		return "The sending number is not valid or not SMS-capable"
	case CodeUnsubscribed:
		return "The recipient has unsubscribed from messages"
	case CodeNotMobileCapable:
		return "The recipient number cannot receive SMS messages"
	default:
		return e.Message
	}
}
