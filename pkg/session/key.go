// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "strings"

// Direct message scopes.
const (
	ScopeMain           = "main"
	ScopePerChannelPeer = "per-channel-peer"
)

// ResolveSessionKey derives the conversation key for a message. It is a pure
// function of its inputs:
//
//	group peer                         agent:{agent}:{channel}:group:{peer}
//	direct peer, scope per-channel-peer agent:{agent}:{channel}:direct:{peer}
//	anything else                      agent:{agent}:main
func ResolveSessionKey(agentID, channel, peerKind, peerID, dmScope string) string {
	var b strings.Builder
	b.WriteString("agent:")
	b.WriteString(agentID)
	switch {
	case peerKind == "group" && peerID != "":
		b.WriteString(":" + channel + ":group:" + peerID)
	case dmScope == ScopePerChannelPeer && peerID != "":
		b.WriteString(":" + channel + ":direct:" + peerID)
	default:
		b.WriteString(":main")
	}
	return b.String()
}

// FileName maps a session key to a file-system safe name. Characters other
// than letters, digits, '.', '-' and '_' become '_'.
func FileName(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	if strings.Trim(safe, ".") == "" {
		return "_"
	}
	return safe
}
