// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package routing maps inbound message metadata to an agent id.
//
// Bindings are evaluated in six priority tiers, most specific first:
//
//  1. peer        binding.PeerID equals the message peer (PeerKind checked when set)
//  2. guild+roles binding.GuildID matches and the role sets intersect
//  3. guild       binding.GuildID matches and the binding has no roles
//  4. team        binding.TeamID matches
//  5. account     binding.AccountID is "*" or matches, with no peer, guild or team
//  6. channel     binding.Channel matches, with no account, peer, guild or team
//
// Within a tier bindings are scanned in declaration order and the first match
// wins. Every tier except 6 also requires the binding channel to be unset or
// equal to the message channel. When nothing matches the default agent is
// returned.
package routing

import (
	"log/slog"
	"slices"

	"github.com/jllopis/switchboard/pkg/config"
	"github.com/jllopis/switchboard/pkg/core"
)

// Tier identifies the binding tier that produced a routing decision.
type Tier int

const (
	TierDefault Tier = iota
	TierPeer
	TierGuildRoles
	TierGuild
	TierTeam
	TierAccount
	TierChannel
)

func (t Tier) String() string {
	switch t {
	case TierPeer:
		return "peer"
	case TierGuildRoles:
		return "guild+roles"
	case TierGuild:
		return "guild"
	case TierTeam:
		return "team"
	case TierAccount:
		return "account"
	case TierChannel:
		return "channel"
	default:
		return "default"
	}
}

// Match holds the conditions of a binding. Empty fields are unset.
type Match struct {
	Channel   string
	AccountID string
	PeerID    string
	PeerKind  string
	GuildID   string
	TeamID    string
	Roles     []string
}

// Binding maps a match condition to an agent.
type Binding struct {
	ID      string
	AgentID string
	Match   Match
}

// Decision is the outcome of a resolution, for diagnostics.
type Decision struct {
	AgentID string
	Tier    Tier
	// BindingID is empty when the default agent was used.
	BindingID string
	// Index is the declaration index of the binding, -1 for the default.
	Index int
}

// Resolver evaluates bindings. It is immutable and safe for concurrent use.
type Resolver struct {
	bindings     []Binding
	defaultAgent string
	channelOnly  bool
	logger       *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithChannelOnly restricts resolution to channel-level bindings.
func WithChannelOnly() Option {
	return func(r *Resolver) { r.channelOnly = true }
}

// WithLogger sets the logger used for debug traces of decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a resolver over a copy of bindings.
func New(bindings []Binding, defaultAgent string, opts ...Option) *Resolver {
	r := &Resolver{
		bindings:     slices.Clone(bindings),
		defaultAgent: defaultAgent,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromConfig builds a resolver from the bindings and routing mode in cfg.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Resolver {
	bindings := make([]Binding, 0, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		bindings = append(bindings, Binding{
			ID:      b.ID,
			AgentID: b.AgentID,
			Match: Match{
				Channel:   b.Match.Channel,
				AccountID: b.Match.AccountID,
				PeerID:    b.Match.PeerID,
				PeerKind:  b.Match.PeerKind,
				GuildID:   b.Match.GuildID,
				TeamID:    b.Match.TeamID,
				Roles:     slices.Clone(b.Match.Roles),
			},
		})
	}
	opts := []Option{WithLogger(logger)}
	if cfg.Routing.Mode == config.RoutingChannel {
		opts = append(opts, WithChannelOnly())
	}
	return New(bindings, cfg.Agents.Default, opts...)
}

// DefaultAgent returns the agent used when no binding matches.
func (r *Resolver) DefaultAgent() string {
	return r.defaultAgent
}

// Bindings returns a copy of the configured bindings.
func (r *Resolver) Bindings() []Binding {
	return slices.Clone(r.bindings)
}

// Resolve returns the agent id for msg. It never fails.
func (r *Resolver) Resolve(msg core.MessageContext) string {
	return r.Explain(msg).AgentID
}

// Explain resolves msg and reports which tier and binding decided.
func (r *Resolver) Explain(msg core.MessageContext) Decision {
	tiers := []struct {
		tier  Tier
		match func(Match, core.MessageContext) bool
	}{
		{TierPeer, matchPeer},
		{TierGuildRoles, matchGuildRoles},
		{TierGuild, matchGuild},
		{TierTeam, matchTeam},
		{TierAccount, matchAccount},
		{TierChannel, matchChannel},
	}
	if r.channelOnly {
		tiers = tiers[len(tiers)-1:]
	}
	for _, t := range tiers {
		for i, b := range r.bindings {
			if t.match(b.Match, msg) {
				d := Decision{AgentID: b.AgentID, Tier: t.tier, BindingID: b.ID, Index: i}
				r.logger.Debug("routing.resolved",
					slog.String("channel", msg.Channel),
					slog.String("agent_id", d.AgentID),
					slog.String("tier", d.Tier.String()),
					slog.Int("binding", i),
				)
				return d
			}
		}
	}
	r.logger.Debug("routing.default",
		slog.String("channel", msg.Channel),
		slog.String("agent_id", r.defaultAgent),
	)
	return Decision{AgentID: r.defaultAgent, Tier: TierDefault, Index: -1}
}

func channelCompatible(m Match, msg core.MessageContext) bool {
	return m.Channel == "" || m.Channel == msg.Channel
}

func matchPeer(m Match, msg core.MessageContext) bool {
	if m.PeerID == "" || m.PeerID != msg.PeerID {
		return false
	}
	if m.PeerKind != "" && m.PeerKind != msg.PeerKind {
		return false
	}
	return channelCompatible(m, msg)
}

func matchGuildRoles(m Match, msg core.MessageContext) bool {
	if m.GuildID == "" || m.GuildID != msg.GuildID || len(m.Roles) == 0 {
		return false
	}
	if !slices.ContainsFunc(m.Roles, msg.HasRole) {
		return false
	}
	return channelCompatible(m, msg)
}

func matchGuild(m Match, msg core.MessageContext) bool {
	if m.GuildID == "" || m.GuildID != msg.GuildID || len(m.Roles) != 0 {
		return false
	}
	return channelCompatible(m, msg)
}

func matchTeam(m Match, msg core.MessageContext) bool {
	if m.TeamID == "" || m.TeamID != msg.TeamID {
		return false
	}
	return channelCompatible(m, msg)
}

func matchAccount(m Match, msg core.MessageContext) bool {
	if m.AccountID == "" || (m.AccountID != "*" && m.AccountID != msg.AccountID) {
		return false
	}
	if m.PeerID != "" || m.GuildID != "" || m.TeamID != "" {
		return false
	}
	return channelCompatible(m, msg)
}

func matchChannel(m Match, msg core.MessageContext) bool {
	if m.Channel == "" || m.Channel != msg.Channel {
		return false
	}
	return m.AccountID == "" && m.PeerID == "" && m.GuildID == "" && m.TeamID == ""
}
