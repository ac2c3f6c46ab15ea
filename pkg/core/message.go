// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the types shared by routing, sessions, scheduling and
// transports.
package core

import (
	"context"
	"slices"
)

// Peer kinds carried by MessageContext.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// DefaultAccountID is the account assigned to messages from transports that
// have no notion of accounts.
const DefaultAccountID = "default"

// MessageContext is the routing metadata of one inbound message.
type MessageContext struct {
	Channel   string   `json:"channel"`
	AccountID string   `json:"accountId,omitempty"`
	PeerID    string   `json:"peerId,omitempty"`
	PeerKind  string   `json:"peerKind,omitempty"`
	GuildID   string   `json:"guildId,omitempty"`
	TeamID    string   `json:"teamId,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	SenderID  string   `json:"senderId,omitempty"`
}

// HasRole reports whether role is one of the message roles.
func (m MessageContext) HasRole(role string) bool {
	return slices.Contains(m.Roles, role)
}

// Inbound is a message handed to the gateway by a transport.
// Context fields left empty are filled with transport defaults.
type Inbound struct {
	Text     string
	SenderID string
	Context  MessageContext
}

// Handler processes one inbound message and returns the reply text.
// A non-nil error is already rendered for humans by the gateway.
type Handler func(ctx context.Context, msg Inbound) (string, error)

// Transport is an inbound message surface.
type Transport interface {
	// ID names the channel, e.g. "cli" or "webchat".
	ID() string
	// Start begins delivering messages to h. It returns once the transport
	// is accepting messages; delivery continues until ctx is done or Stop.
	Start(ctx context.Context, h Handler) error
	// Stop releases the transport.
	Stop(ctx context.Context) error
}
