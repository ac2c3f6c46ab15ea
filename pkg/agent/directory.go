// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent maps agent identifiers to executable handles and runs the
// LLM-backed turn body for them.
package agent

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jllopis/switchboard/pkg/config"
	"github.com/jllopis/switchboard/pkg/errors"
	"github.com/jllopis/switchboard/pkg/llm"
	"github.com/jllopis/switchboard/pkg/skills"
)

// SkillSource is the view of the skill catalog the directory depends on.
type SkillSource interface {
	Version() uint64
	ResolveSkills(selection []string) []skills.Skill
}

// Handle is an immutable snapshot of an executable agent. A rebuild produces
// new handles; turns already running keep the one they started with.
type Handle struct {
	ID            string
	ProviderName  string
	Provider      llm.Provider
	Model         string
	MaxTokens     int
	Instruction   string
	Skills        []skills.Skill
	Workspace     string
	SkillsVersion uint64
}

// Directory holds one Handle per configured agent.
type Directory struct {
	defs      []config.AgentConfig
	providers map[string]llm.Provider
	catalog   SkillSource
	factory   ProviderFactory
	logger    *slog.Logger

	rebuildMu sync.Mutex
	handles   atomic.Pointer[map[string]*Handle]
	observed  atomic.Uint64
	rebuilds  atomic.Uint64
}

// Option configures a Directory.
type Option func(*Directory)

// WithSkillSource attaches the skill catalog whose version drives rebuilds.
func WithSkillSource(src SkillSource) Option {
	return func(d *Directory) { d.catalog = src }
}

// WithProviderFactory replaces NewProvider, mostly for tests.
func WithProviderFactory(f ProviderFactory) Option {
	return func(d *Directory) {
		if f != nil {
			d.factory = f
		}
	}
}

// WithLogger sets the directory logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDirectory builds providers for every agent definition and the first set
// of handles. Provider construction errors are configuration errors.
func NewDirectory(ctx context.Context, defs []config.AgentConfig, opts ...Option) (*Directory, error) {
	d := &Directory{
		defs:      append([]config.AgentConfig(nil), defs...),
		providers: make(map[string]llm.Provider, len(defs)),
		factory:   NewProvider,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, def := range d.defs {
		if _, dup := d.providers[def.ID]; dup {
			return nil, errors.Newf(errors.CodeConfig, "agent %q declared twice", def.ID)
		}
		p, err := d.factory(ctx, def)
		if err != nil {
			return nil, err
		}
		d.providers[def.ID] = p
	}

	d.rebuild(d.skillsVersion())
	return d, nil
}

// HasAgent reports whether id names a configured agent.
func (d *Directory) HasAgent(id string) bool {
	_, ok := d.providers[id]
	return ok
}

// Agent returns the handle for id. When the skill catalog has advanced since
// the last build, all handles are rebuilt before returning.
func (d *Directory) Agent(id string) (*Handle, bool) {
	d.Refresh()
	h, ok := (*d.handles.Load())[id]
	return h, ok
}

// IDs returns the configured agent identifiers, sorted.
func (d *Directory) IDs() []string {
	ids := make([]string, 0, len(d.providers))
	for id := range d.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rebuilds returns how many times handles have been built.
func (d *Directory) Rebuilds() uint64 {
	return d.rebuilds.Load()
}

// Refresh rebuilds handles if the skill catalog version changed and reports
// whether it did.
func (d *Directory) Refresh() bool {
	v := d.skillsVersion()
	if v == d.observed.Load() {
		return false
	}

	d.rebuildMu.Lock()
	defer d.rebuildMu.Unlock()
	if v == d.observed.Load() {
		return false
	}
	d.rebuild(v)
	return true
}

func (d *Directory) skillsVersion() uint64 {
	if d.catalog == nil {
		return 0
	}
	return d.catalog.Version()
}

func (d *Directory) rebuild(version uint64) {
	next := make(map[string]*Handle, len(d.defs))
	for _, def := range d.defs {
		var selected []skills.Skill
		if d.catalog != nil {
			selected = d.catalog.ResolveSkills(def.Skills)
		}
		next[def.ID] = &Handle{
			ID:            def.ID,
			ProviderName:  def.Provider,
			Provider:      d.providers[def.ID],
			Model:         def.Model,
			MaxTokens:     def.MaxTokens,
			Instruction:   BuildInstruction(def.Instruction, selected),
			Skills:        selected,
			Workspace:     def.Workspace,
			SkillsVersion: version,
		}
	}
	d.handles.Store(&next)
	d.observed.Store(version)
	n := d.rebuilds.Add(1)
	d.logger.Debug("agent.directory.rebuild",
		slog.Uint64("skills_version", version),
		slog.Int("agents", len(next)),
		slog.Uint64("rebuilds", n),
	)
}
