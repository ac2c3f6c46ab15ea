// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"

	"github.com/google/uuid"
)

type turnIDKey struct{}
type sessionKeyKey struct{}

// WithTurnID attaches a turn id to the context.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

// TurnID returns the turn id if present.
func TurnID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(turnIDKey{}).(string)
	return id, ok && id != ""
}

// EnsureTurnID ensures a turn id exists in the context.
func EnsureTurnID(ctx context.Context) (context.Context, string) {
	if id, ok := TurnID(ctx); ok {
		return ctx, id
	}
	id := "turn-" + uuid.NewString()
	return WithTurnID(ctx, id), id
}

// WithSessionKey attaches the session key of the running turn.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyKey{}, key)
}

// SessionKey returns the session key of the running turn if present.
func SessionKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyKey{}).(string)
	return key, ok && key != ""
}
