// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package sms implements the message pipeline: outbound sends with
// per-message billing, inbound webhook handling, and delivery status
// tracking.
package sms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Hammadsoomro/Connectlify/internal/carrier"
	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/metrics"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/store"
	"github.com/Hammadsoomro/Connectlify/internal/wallet"
)

var (
	// ErrNoSendingNumber means the account owns no number able to send.
	ErrNoSendingNumber = errors.New("sms: no usable sending number")

	// ErrNumberNotUsable means the chosen number is suspended or released.
	ErrNumberNotUsable = errors.New("sms: number is not usable")

	// ErrNumberNotAllowed means a sub-account picked a number outside its
	// assignment.
	ErrNumberNotAllowed = errors.New("sms: number not assigned to this account")

	// ErrInvalidTransition is returned for a backwards or post-terminal
	// delivery status change.
	ErrInvalidTransition = errors.New("sms: invalid status transition")
)

// Publisher pushes message events to an account's connected clients.
type Publisher interface {
	Publish(accountID, event string, payload interface{})
}

// Pipeline coordinates sends, receipts, and status updates.
type Pipeline struct {
	store   *store.Store
	wallet  *wallet.Service
	carrier carrier.API
	pub     Publisher
	price   decimal.Decimal
}

// New creates the pipeline. price is the per-message charge.
func New(st *store.Store, w *wallet.Service, c carrier.API, price decimal.Decimal) *Pipeline {
	return &Pipeline{store: st, wallet: w, carrier: c, price: price}
}

// SetPublisher wires the event fan-out. Safe to leave unset in tests.
func (p *Pipeline) SetPublisher(pub Publisher) {
	p.pub = pub
}

// SendRequest describes one outbound message.
type SendRequest struct {
	SenderID  string // authenticated account sending the message
	ContactID string
	NumberID  string // optional; empty picks the account's default sender
	Content   string
}

// Send runs the outbound flow:
//
//  1. Resolve the sender and its billing account.
//  2. Resolve and authorize the originating number.
//  3. Verify the wallet covers the message price.
//  4. Persist the message as "sending".
//  5. Submit to the carrier.
//  6. Mark "sent" and debit, or mark "failed".
//  7. Fan out the status to the interested accounts.
//
// The balance check happens before the carrier call, but the debit only
// after acceptance. If the debit then fails because a concurrent spender
// drained the wallet, the message stays sent: the carrier has it, and
// unsending is not an option. The gap is logged for reconciliation.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	sender, err := p.store.GetAccount(req.SenderID)
	if err != nil {
		return nil, err
	}
	billingID := sender.BillingAccountID()

	contact, err := p.store.GetContact(billingID, req.ContactID)
	if err != nil {
		return nil, err
	}

	from, err := p.resolveSendingNumber(sender, billingID, req.NumberID)
	if err != nil {
		metrics.MessagesFailed.WithLabelValues("no_number").Inc()
		return nil, err
	}

	if ok, err := p.wallet.HasBalance(billingID, p.price); err != nil {
		return nil, err
	} else if !ok {
		metrics.MessagesFailed.WithLabelValues("insufficient_balance").Inc()
		return nil, wallet.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ID:         uuid.New().String(),
		AccountID:  billingID,
		ContactID:  contact.ID,
		Content:    req.Content,
		Outgoing:   true,
		Status:     models.MessageSending,
		FromNumber: from.Number,
		ToNumber:   contact.PhoneNumber,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.store.PutMessage(msg); err != nil {
		return nil, err
	}

	result, err := p.carrier.SendMessage(ctx, from.Number, contact.PhoneNumber, req.Content)
	if err != nil {
		msg.Status = models.MessageFailed
		msg.UpdatedAt = time.Now().UTC()
		if uerr := p.store.UpdateMessage(msg); uerr != nil {
			logging.Error().Err(uerr).Str("message_id", msg.ID).Msg("Failed to persist failed message")
		}
		p.publishStatus(sender.ID, billingID, msg)

		var cerr *carrier.CarrierError
		if errors.As(err, &cerr) {
			metrics.MessagesFailed.WithLabelValues("invalid_number").Inc()
			return msg, fmt.Errorf("carrier rejected message: %w", err)
		}
		metrics.MessagesFailed.WithLabelValues("carrier_error").Inc()
		return msg, fmt.Errorf("carrier unavailable: %w", err)
	}

	msg.CarrierSID = result.SID
	msg.Status = models.MessageSent
	msg.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateMessage(msg); err != nil {
		return nil, err
	}

	description := fmt.Sprintf("SMS to %s", contact.PhoneNumber)
	if _, err := p.wallet.Debit(billingID, p.price, description, "SMS_"+msg.ID); err != nil {
		// Balance raced to zero after the pre-check. The message is
		// already with the carrier, so it stays sent and the miss is
		// logged instead of rolled back.
		logging.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Str("account_id", billingID).
			Msg("Message sent but debit failed")
	}

	metrics.MessagesSent.WithLabelValues(string(from.Type)).Inc()
	p.publishStatus(sender.ID, billingID, msg)
	return msg, nil
}

// resolveSendingNumber picks and authorizes the originating number.
func (p *Pipeline) resolveSendingNumber(sender *models.Account, billingID, numberID string) (*models.PhoneNumber, error) {
	if numberID != "" {
		n, err := p.store.GetNumber(numberID)
		if err != nil {
			return nil, err
		}
		if n.AccountID != billingID {
			return nil, ErrNumberNotAllowed
		}
		if sender.Role == models.RoleSubAccount && !sender.HasAssignedNumber(n.Number) {
			return nil, ErrNumberNotAllowed
		}
		if !n.Usable() {
			return nil, ErrNumberNotUsable
		}
		return n, nil
	}

	owned, err := p.store.ListNumbersByAccount(billingID)
	if err != nil {
		return nil, err
	}

	var candidates []*models.PhoneNumber
	for _, n := range owned {
		if !n.Usable() {
			continue
		}
		if sender.Role == models.RoleSubAccount && !sender.HasAssignedNumber(n.Number) {
			continue
		}
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return nil, ErrNoSendingNumber
	}

	// Prefer the numbers the user toggled on as default senders; break
	// ties by number for a stable choice.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ActiveForSending != candidates[j].ActiveForSending {
			return candidates[i].ActiveForSending
		}
		return candidates[i].Number < candidates[j].Number
	})
	return candidates[0], nil
}

// InboundMessage is the carrier's webhook payload for a received SMS.
type InboundMessage struct {
	From       string
	To         string
	Body       string
	CarrierSID string
}

// HandleInbound routes a received SMS to the owner of the receiving
// number, creating a contact for unknown senders. Suspended numbers still
// receive; only released numbers are dead.
func (p *Pipeline) HandleInbound(in InboundMessage) (*models.Message, error) {
	number, err := p.store.GetNumberByE164(in.To)
	if err != nil {
		return nil, fmt.Errorf("unknown receiving number %s: %w", in.To, err)
	}
	if number.Status == models.NumberInactive {
		return nil, fmt.Errorf("number %s is released", in.To)
	}
	ownerID := number.AccountID

	contact, err := p.store.FindContactByPhone(ownerID, in.From)
	if errors.Is(err, store.ErrNotFound) {
		now := time.Now().UTC()
		contact = &models.Contact{
			ID:          uuid.New().String(),
			AccountID:   ownerID,
			Name:        in.From, // unknown sender, named after the number
			PhoneNumber: in.From,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := p.store.PutContact(contact); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ID:         uuid.New().String(),
		AccountID:  ownerID,
		ContactID:  contact.ID,
		Content:    in.Body,
		Outgoing:   false,
		CarrierSID: in.CarrierSID,
		Status:     models.MessageDelivered,
		FromNumber: in.From,
		ToNumber:   in.To,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.store.PutMessage(msg); err != nil {
		return nil, err
	}

	metrics.MessagesInbound.Inc()
	logging.Info().
		Str("account_id", ownerID).
		Str("contact_id", contact.ID).
		Str("to", in.To).
		Msg("Inbound message stored")

	if p.pub != nil {
		p.pub.Publish(ownerID, models.EventNewMessage, models.NewMessageEvent{
			ContactID: contact.ID,
			Message:   msg,
		})
		p.pub.Publish(ownerID, models.EventUnreadUpdate, models.UnreadUpdateEvent{
			ContactID: contact.ID,
			HasUnread: true,
		})
	}
	return msg, nil
}

// UpdateStatus applies a carrier delivery callback. Transitions are
// forward-only; late or duplicate callbacks are rejected with
// ErrInvalidTransition and no state change.
func (p *Pipeline) UpdateStatus(carrierSID string, to models.MessageStatus) (*models.Message, error) {
	msg, err := p.store.GetMessageByCarrierSID(carrierSID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(msg.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, msg.Status, to)
	}

	msg.Status = to
	msg.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateMessage(msg); err != nil {
		return nil, err
	}

	if p.pub != nil {
		p.pub.Publish(msg.AccountID, models.EventMessageStatus, models.MessageStatusEvent{
			MessageID: msg.ID,
			Status:    msg.Status,
		})
	}
	return msg, nil
}

// MarkRead marks every unread inbound message of a conversation as read
// and clears the contact's unread badge.
func (p *Pipeline) MarkRead(accountID, contactID string) error {
	contact, err := p.store.GetContact(accountID, contactID)
	if err != nil {
		return err
	}

	msgs, err := p.store.ListMessages(contact.ID, 0)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.Outgoing || !models.CanTransition(m.Status, models.MessageRead) {
			continue
		}
		m.Status = models.MessageRead
		m.UpdatedAt = time.Now().UTC()
		if err := p.store.UpdateMessage(m); err != nil {
			return err
		}
	}

	if p.pub != nil {
		p.pub.Publish(accountID, models.EventUnreadUpdate, models.UnreadUpdateEvent{
			ContactID: contact.ID,
			HasUnread: false,
		})
	}
	return nil
}

// ListMessages returns a conversation for an account, newest `limit`
// messages oldest-first. The contact must belong to the account's billing
// scope.
func (p *Pipeline) ListMessages(accountID, contactID string, limit int) ([]*models.Message, error) {
	account, err := p.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	contact, err := p.store.GetContact(account.BillingAccountID(), contactID)
	if err != nil {
		return nil, err
	}
	return p.store.ListMessages(contact.ID, limit)
}

// publishStatus notifies the sender and, when distinct, the billing owner.
func (p *Pipeline) publishStatus(senderID, billingID string, msg *models.Message) {
	if p.pub == nil {
		return
	}
	event := models.MessageStatusEvent{MessageID: msg.ID, Status: msg.Status}
	p.pub.Publish(billingID, models.EventMessageStatus, event)
	if senderID != billingID {
		p.pub.Publish(senderID, models.EventMessageStatus, event)
	}
}
