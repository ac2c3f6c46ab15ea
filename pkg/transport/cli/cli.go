// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the terminal transport: one line in, one reply out.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/jllopis/switchboard/pkg/core"
)

const (
	// ChannelID is the channel name used for routing.
	ChannelID = "cli"
	// SenderID identifies the local terminal user.
	SenderID = "cli-user"
)

// Transport reads messages from an input stream and writes replies to an
// output stream. Lines are handled one at a time.
type Transport struct {
	in     io.Reader
	out    io.Writer
	prompt string
	onExit func()
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures the CLI transport.
type Option func(*Transport)

// WithInput replaces stdin.
func WithInput(r io.Reader) Option {
	return func(t *Transport) { t.in = r }
}

// WithOutput replaces stdout.
func WithOutput(w io.Writer) Option {
	return func(t *Transport) { t.out = w }
}

// WithPrompt sets the input prompt; empty disables it.
func WithPrompt(p string) Option {
	return func(t *Transport) { t.prompt = p }
}

// WithOnExit is called when the user quits or input ends.
func WithOnExit(fn func()) Option {
	return func(t *Transport) { t.onExit = fn }
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a CLI transport bound to stdin and stdout.
func New(opts ...Option) *Transport {
	t := &Transport{
		in:     os.Stdin,
		out:    os.Stdout,
		prompt: "You > ",
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID implements core.Transport.
func (t *Transport) ID() string { return ChannelID }

// Done is closed when the read loop ends.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Start implements core.Transport. The read loop runs in its own goroutine.
func (t *Transport) Start(ctx context.Context, h core.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return fmt.Errorf("cli transport already started")
	}
	ctx, t.cancel = context.WithCancel(ctx)

	fmt.Fprintln(t.out, "Type a message and press enter. 'quit' or 'exit' to leave.")
	go t.loop(ctx, h)
	return nil
}

func (t *Transport) loop(ctx context.Context, h core.Handler) {
	defer close(t.done)
	defer func() {
		if t.onExit != nil && ctx.Err() == nil {
			t.onExit()
		}
	}()

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if t.prompt != "" {
			fmt.Fprint(t.out, t.prompt)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				t.logger.Warn("cli.read_failed", slog.String("error", err.Error()))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(t.out, "Bye.")
			return
		}

		// Stop ends the read loop only; a turn already dispatched drains.
		reply, err := h(context.WithoutCancel(ctx), core.Inbound{
			Text:     line,
			SenderID: SenderID,
			Context:  core.MessageContext{Channel: ChannelID, SenderID: SenderID},
		})
		if err != nil {
			reply = "[error] " + err.Error()
		}
		fmt.Fprintf(t.out, "Agent > %s\n", reply)
	}
}

// Stop implements core.Transport. A read blocked on the terminal is
// abandoned rather than waited for.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
