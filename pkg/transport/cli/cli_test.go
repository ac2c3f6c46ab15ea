// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/switchboard/pkg/core"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func wait(t *testing.T, tr *Transport) {
	t.Helper()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cli loop did not finish")
	}
}

func TestLoopRepliesAndQuits(t *testing.T) {
	var got []core.Inbound
	handler := func(_ context.Context, in core.Inbound) (string, error) {
		got = append(got, in)
		return "echo " + in.Text, nil
	}
	out := &syncBuffer{}
	exited := make(chan struct{})
	tr := New(
		WithInput(strings.NewReader("hello\n\n   \nsecond\nquit\nignored\n")),
		WithOutput(out),
		WithPrompt(""),
		WithOnExit(func() { close(exited) }),
	)
	require.NoError(t, tr.Start(context.Background(), handler))
	wait(t, tr)
	<-exited

	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, SenderID, got[0].SenderID)
	assert.Equal(t, ChannelID, got[0].Context.Channel)
	assert.Contains(t, out.String(), "Agent > echo hello\n")
	assert.Contains(t, out.String(), "Agent > echo second\n")
	assert.NotContains(t, out.String(), "ignored")
	assert.Equal(t, "cli", tr.ID())
}

func TestLoopEOFAndErrors(t *testing.T) {
	handler := func(context.Context, core.Inbound) (string, error) {
		return "", fmt.Errorf("boom")
	}
	out := &syncBuffer{}
	tr := New(WithInput(strings.NewReader("hi")), WithOutput(out))
	require.NoError(t, tr.Start(context.Background(), handler))
	wait(t, tr)

	assert.Contains(t, out.String(), "You > ")
	assert.Contains(t, out.String(), "Agent > [error] boom")
	assert.Error(t, tr.Start(context.Background(), handler))
	assert.NoError(t, tr.Stop(context.Background()))
}

func TestStopLetsInFlightTurnFinish(t *testing.T) {
	started := make(chan struct{})
	result := make(chan error, 1)
	handler := func(ctx context.Context, _ core.Inbound) (string, error) {
		close(started)
		select {
		case <-time.After(100 * time.Millisecond):
			result <- nil
			return "finished", nil
		case <-ctx.Done():
			result <- ctx.Err()
			return "", ctx.Err()
		}
	}
	out := &syncBuffer{}
	tr := New(WithInput(strings.NewReader("slow\nnever\n")), WithOutput(out), WithPrompt(""))
	require.NoError(t, tr.Start(context.Background(), handler))

	<-started
	require.NoError(t, tr.Stop(context.Background()))
	assert.NoError(t, <-result)
	wait(t, tr)
	assert.Contains(t, out.String(), "Agent > finished\n")
}
