// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	e := New(CodePersistence, "persist session", cause)

	assert.Equal(t, CodePersistence, e.Code)
	assert.Equal(t, "persist session", e.Message)
	assert.True(t, stderrors.Is(e, cause))
	assert.Equal(t, "[PERSISTENCE_ERROR] persist session: disk full", e.Error())
}

func TestErrorWithoutCause(t *testing.T) {
	e := Newf(CodeUnknownAgent, "unknown agent %q", "ghost")
	assert.Equal(t, `[UNKNOWN_AGENT] unknown agent "ghost"`, e.Error())
	assert.Nil(t, e.Unwrap())
}

func TestChaining(t *testing.T) {
	e := New(CodeTimeout, "turn timed out", nil).
		WithContext("agent_id", "support").
		WithContext("timeout_seconds", 60).
		WithAttribute("session_key", "agent:support:main").
		WithRecoverable(true)

	assert.Equal(t, "support", e.Context["agent_id"])
	assert.Equal(t, 60, e.Context["timeout_seconds"])
	assert.Equal(t, "agent:support:main", e.Attributes["session_key"])
	assert.Equal(t, "true", e.RecoverableString())
}

func TestStatusCodes(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeInvalidInput: http.StatusBadRequest,
		CodeUnauthorized: http.StatusForbidden,
		CodeUnknownAgent: http.StatusNotFound,
		CodeTimeout:      http.StatusGatewayTimeout,
		CodeShuttingDown: http.StatusServiceUnavailable,
		CodeAgentFailure: http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, New(code, "x", nil).StatusCode, code)
	}
}

func TestAsFindsWrappedError(t *testing.T) {
	inner := New(CodeAgentFailure, "runtime failed", nil)
	wrapped := fmt.Errorf("dispatch: %w", inner)

	got := As(wrapped)
	require.NotNil(t, got)
	assert.Same(t, inner, got)

	plain := As(stderrors.New("boom"))
	assert.Equal(t, CodeInternal, plain.Code)
	assert.Nil(t, As(nil))
}

func TestIsWalksNestedCodes(t *testing.T) {
	inner := New(CodeTimeout, "timed out", nil)
	outer := New(CodeAgentFailure, "turn failed", inner)

	assert.True(t, Is(outer, CodeAgentFailure))
	assert.True(t, Is(outer, CodeTimeout))
	assert.False(t, Is(outer, CodeConfig))
	assert.Equal(t, CodeAgentFailure, CodeOf(outer))
	assert.Equal(t, ErrorCode(""), CodeOf(stderrors.New("plain")))
}

func TestMarshalJSON(t *testing.T) {
	e := New(CodeConfig, "bad config", stderrors.New("missing model")).
		WithContext("field", "agents.list[0].model")

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "CONFIG_ERROR", out["code"])
	assert.Equal(t, "bad config", out["message"])
	assert.Equal(t, "missing model", out["error"])
	assert.Equal(t, float64(http.StatusInternalServerError), out["status_code"])
}
