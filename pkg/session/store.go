// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package session derives conversation keys and keeps the append-only
// transcript of every conversation.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jllopis/switchboard/pkg/errors"
)

// Role of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Entry is one immutable transcript record.
type Entry struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	ToolCallID string    `json:"toolCallId,omitempty"`
	ToolName   string    `json:"toolName,omitempty"`
}

// NewEntry stamps an entry with the current UTC time.
func NewEntry(role Role, content string) Entry {
	return Entry{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Persister exports a transcript snapshot. Implementations replace whatever
// was previously exported for the key.
type Persister interface {
	Export(ctx context.Context, key string, entries []Entry) error
}

// Loader reads back what a Persister exported.
type Loader interface {
	Load(ctx context.Context, key string) ([]Entry, error)
	Keys(ctx context.Context) ([]string, error)
}

// transcript is the ordered log of one key. A cleared transcript is retired
// under its lock and never written again.
type transcript struct {
	mu      sync.RWMutex
	entries []Entry
	retired bool
}

// Store holds transcripts in memory. Each key has its own lock, so appends to
// unrelated conversations never contend.
type Store struct {
	logs      sync.Map // string -> *transcript
	persister Persister
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersister sets the backend used by Persist.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) log(key string) *transcript {
	if t, ok := s.logs.Load(key); ok {
		return t.(*transcript)
	}
	t, _ := s.logs.LoadOrStore(key, &transcript{})
	return t.(*transcript)
}

// Append adds entry to the log of key, creating the log on first use.
func (s *Store) Append(key string, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	for {
		t := s.log(key)
		t.mu.Lock()
		if !t.retired {
			t.entries = append(t.entries, entry)
			t.mu.Unlock()
			return
		}
		// Lost a race with Clear; the next lookup creates a fresh log.
		t.mu.Unlock()
	}
}

// History returns a snapshot of the log of key. The slice is owned by the
// caller; later appends are not reflected in it.
func (s *Store) History(key string) []Entry {
	v, ok := s.logs.Load(key)
	if !ok {
		return nil
	}
	t := v.(*transcript)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.retired {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries recorded for key.
func (s *Store) Len(key string) int {
	v, ok := s.logs.Load(key)
	if !ok {
		return 0
	}
	t := v.(*transcript)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Keys returns the keys that currently have a log, sorted.
func (s *Store) Keys() []string {
	var keys []string
	s.logs.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

// Clear drops the in-memory log of key. An Append racing with Clear lands
// either in the dropped log before it is retired or in a fresh one after.
func (s *Store) Clear(key string) {
	v, ok := s.logs.Load(key)
	if !ok {
		return
	}
	t := v.(*transcript)
	t.mu.Lock()
	t.retired = true
	t.entries = nil
	s.logs.CompareAndDelete(key, t)
	t.mu.Unlock()
}

// Persist exports the current log of key through the configured persister.
// A store without persister accepts the call and does nothing.
func (s *Store) Persist(ctx context.Context, key string) error {
	if s.persister == nil {
		return nil
	}
	entries := s.History(key)
	if err := s.persister.Export(ctx, key, entries); err != nil {
		return errors.New(errors.CodePersistence, "persist session", err).
			WithContext("session_key", key).
			WithRecoverable(true)
	}
	s.logger.DebugContext(ctx, "session.persisted",
		slog.String("session_key", key),
		slog.Int("entries", len(entries)),
	)
	return nil
}

// PersistAll exports every known log. It keeps going after a failure and
// returns the first error.
func (s *Store) PersistAll(ctx context.Context) error {
	var first error
	for _, key := range s.Keys() {
		if err := s.Persist(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "session.persist.failed",
				slog.String("session_key", key),
				slog.String("error", err.Error()),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// OpenPersister opens the persistence backend named by backend ("jsonl" or
// "sqlite") rooted at dir. The returned close function is never nil when err
// is nil.
func OpenPersister(backend, dir string) (Persister, func() error, error) {
	switch backend {
	case "", "jsonl":
		p, err := NewJSONLPersister(dir)
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { return nil }, nil
	case "sqlite":
		p, err := OpenSQLitePersister(dir)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return nil, nil, errors.Newf(errors.CodeConfig, "unknown session backend %q", backend)
	}
}
