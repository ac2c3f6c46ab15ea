// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/switchboard/pkg/core"
	"github.com/jllopis/switchboard/pkg/gateway"
	"github.com/jllopis/switchboard/pkg/routing"
	"github.com/jllopis/switchboard/pkg/session"
)

func newRouteCmd(root *rootOptions) *cobra.Command {
	var msg core.MessageContext
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Show which agent and session a message would reach",
		Example: `  switchboard route --channel webchat --peer alice
  switchboard route --channel discord --guild g1 --role admin --peer-kind group --peer room-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.loadValid()
			if err != nil {
				return err
			}
			if msg.PeerKind != "" && msg.PeerKind != core.PeerDirect && msg.PeerKind != core.PeerGroup {
				return NewInvalidArgumentError("peer-kind", fmt.Sprintf("must be %s or %s", core.PeerDirect, core.PeerGroup))
			}
			if msg.SenderID == "" {
				msg.SenderID = msg.PeerID
			}
			msg = gateway.ApplyDefaults(msg)

			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			decision := routing.FromConfig(cfg, quiet).Explain(msg)
			agentID := decision.AgentID
			fallback := ""
			if _, ok := cfg.Agent(agentID); !ok {
				fallback = agentID
				agentID = cfg.Agents.Default
			}
			key := session.ResolveSessionKey(agentID, msg.Channel, msg.PeerKind, msg.PeerID, cfg.Session.DMScope)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "agent\t%s\n", agentID)
			fmt.Fprintf(w, "tier\t%s\n", decision.Tier)
			if decision.BindingID != "" {
				fmt.Fprintf(w, "binding\t%s\n", decision.BindingID)
			} else if decision.Index >= 0 {
				fmt.Fprintf(w, "binding\t#%d\n", decision.Index)
			}
			if fallback != "" {
				fmt.Fprintf(w, "note\tagent %q is not declared, using the default\n", fallback)
			}
			fmt.Fprintf(w, "session\t%s\n", key)
			return w.Flush()
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&msg.Channel, "channel", "", "channel name (required)")
	flags.StringVar(&msg.AccountID, "account", "", "account id (default \"default\")")
	flags.StringVar(&msg.PeerID, "peer", "", "peer id")
	flags.StringVar(&msg.PeerKind, "peer-kind", "", "direct or group (default direct)")
	flags.StringVar(&msg.GuildID, "guild", "", "guild id")
	flags.StringVar(&msg.TeamID, "team", "", "team id")
	flags.StringSliceVar(&msg.Roles, "role", nil, "member role (repeatable)")
	flags.StringVar(&msg.SenderID, "sender", "", "sender id (defaults to the peer)")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}
