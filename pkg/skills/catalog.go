// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills indexes the SKILL.md manifests under a directory and keeps
// the index current as files change.
package skills

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/switchboard/pkg/telemetry"
)

// SelectAll selects every known skill.
const SelectAll = "all"

// snapshot is one immutable scan result.
type snapshot struct {
	skills map[string]Skill
	names  []string
	digest string
}

// Catalog is a versioned index of skills. Readers always see the result of
// one complete scan.
type Catalog struct {
	dir     string
	current atomic.Pointer[snapshot]
	version atomic.Uint64
	scanMu  sync.Mutex
	logger  *slog.Logger
	tracer  trace.Tracer
	onScan  []func(version uint64, count int)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnScan registers fn to run after every scan with the new version.
func WithOnScan(fn func(version uint64, count int)) Option {
	return func(c *Catalog) { c.onScan = append(c.onScan, fn) }
}

// NewCatalog creates a catalog over dir and performs the initial scan.
func NewCatalog(ctx context.Context, dir string, opts ...Option) *Catalog {
	c := &Catalog{
		dir:    dir,
		logger: slog.Default(),
		tracer: otel.Tracer("switchboard/skills"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(&snapshot{skills: map[string]Skill{}})
	c.Scan(ctx)
	return c
}

// Dir returns the scanned root directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Version returns the number of completed scans.
func (c *Catalog) Version() uint64 {
	return c.version.Load()
}

// Digest identifies the content of the current index. Two scans that found
// the same skills have the same digest.
func (c *Catalog) Digest() string {
	return c.current.Load().digest
}

// Len returns the number of indexed skills.
func (c *Catalog) Len() int {
	return len(c.current.Load().names)
}

// Get returns the skill with the given name.
func (c *Catalog) Get(name string) (Skill, bool) {
	s, ok := c.current.Load().skills[name]
	return s, ok
}

// Skills returns every indexed skill sorted by name.
func (c *Catalog) Skills() []Skill {
	snap := c.current.Load()
	out := make([]Skill, 0, len(snap.names))
	for _, name := range snap.names {
		out = append(out, snap.skills[name])
	}
	return out
}

// ResolveSkills returns the skills named in selection, skipping unknown
// names. An empty selection, or one containing "all", returns every skill.
func (c *Catalog) ResolveSkills(selection []string) []Skill {
	if len(selection) == 0 || slices.Contains(selection, SelectAll) {
		return c.Skills()
	}
	snap := c.current.Load()
	out := make([]Skill, 0, len(selection))
	seen := make(map[string]bool, len(selection))
	for _, name := range selection {
		if seen[name] {
			continue
		}
		seen[name] = true
		if s, ok := snap.skills[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// LoadBody returns the instructions of skill.
func (c *Catalog) LoadBody(skill Skill) (string, error) {
	return LoadBody(skill)
}

// Scan rebuilds the index from disk, swaps it in and bumps the version once.
// Manifests that fail to parse are skipped with a warning. A missing root
// directory yields an empty index.
func (c *Catalog) Scan(ctx context.Context) uint64 {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	ctx, span := c.tracer.Start(ctx, "Catalog.Scan")
	defer span.End()

	snap, err := c.scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.current.Store(snap)
	version := c.version.Add(1)

	span.SetAttributes(telemetry.CatalogAttributes(c.dir, version, len(snap.names))...)
	c.logger.InfoContext(ctx, "skills.scan.complete",
		slog.String("dir", c.dir),
		slog.Uint64("version", version),
		slog.Int("skills", len(snap.names)),
	)
	for _, fn := range c.onScan {
		fn(version, len(snap.names))
	}
	return version
}

func (c *Catalog) scan(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{skills: map[string]Skill{}}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.WarnContext(ctx, "skills.dir.missing", slog.String("dir", c.dir))
			snap.digest = digest(snap)
			return snap, nil
		}
		c.logger.ErrorContext(ctx, "skills.dir.unreadable", slog.String("dir", c.dir), slog.String("error", err.Error()))
		snap.digest = digest(snap)
		return snap, err
	}

	// os.ReadDir sorts by name, so a duplicate name resolves to the
	// lexically last directory.
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name(), ManifestFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		skill, err := ParseManifest(path)
		if err != nil {
			c.logger.WarnContext(ctx, "skills.manifest.skipped",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if prev, dup := snap.skills[skill.Name]; dup {
			c.logger.WarnContext(ctx, "skills.manifest.duplicate",
				slog.String("name", skill.Name),
				slog.String("kept", skill.Dir),
				slog.String("dropped", prev.Dir),
			)
		}
		snap.skills[skill.Name] = skill
	}

	snap.names = make([]string, 0, len(snap.skills))
	for name := range snap.skills {
		snap.names = append(snap.names, name)
	}
	sort.Strings(snap.names)
	snap.digest = digest(snap)
	return snap, nil
}

func digest(snap *snapshot) string {
	h := sha256.New()
	for _, name := range snap.names {
		s := snap.skills[name]
		h.Write([]byte(s.Name))
		h.Write([]byte{0})
		h.Write([]byte(s.Description))
		h.Write([]byte{0})
		h.Write([]byte(s.Dir))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
