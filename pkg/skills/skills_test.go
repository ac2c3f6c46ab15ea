// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/switchboard/pkg/errors"
)

func writeSkill(t *testing.T, root, dir, content string) string {
	t.Helper()
	skillDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	path := filepath.Join(skillDir, ManifestFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func names(skills []Skill) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		out = append(out, s.Name)
	}
	return out
}

func TestResolveSkills(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo", "---\nname: foo\ndescription: bar\n---\nbody\n")
	c := NewCatalog(context.Background(), root)

	assert.Contains(t, names(c.ResolveSkills([]string{"all"})), "foo")
	assert.Empty(t, c.ResolveSkills([]string{"other"}))
	assert.Contains(t, names(c.ResolveSkills([]string{})), "foo")
	assert.Contains(t, names(c.ResolveSkills(nil)), "foo")
	assert.Equal(t, []string{"foo"}, names(c.ResolveSkills([]string{"foo", "other", "foo"})))
}

func TestScanSkipsInvalidManifests(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "good", "---\nname: good\ndescription: works\n---\n")
	writeSkill(t, root, "no-desc", "---\nname: no-desc\n---\n")
	writeSkill(t, root, "blank-name", "---\nname: \"  \"\ndescription: x\n---\n")
	writeSkill(t, root, "no-frontmatter", "just text\n")
	writeSkill(t, root, "unclosed", "---\nname: unclosed\ndescription: x\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty-dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))

	c := NewCatalog(context.Background(), root)
	assert.Equal(t, []string{"good"}, names(c.Skills()))
	assert.Equal(t, 1, c.Len())
}

func TestParseManifestRejectsWithSkillInvalid(t *testing.T) {
	root := t.TempDir()
	cases := map[string]struct {
		content string
		cause   string
	}{
		"no front-matter": {"just text\n", "missing front-matter"},
		"unclosed":        {"---\nname: x\ndescription: y\n", "not closed"},
		"no name":         {"---\ndescription: y\n---\n", "name is required"},
		"no description":  {"---\nname: x\n---\n", "description is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeSkill(t, root, strings.ReplaceAll(name, " ", "-"), tc.content)
			_, err := ParseManifest(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.CodeSkillInvalid))
			assert.Equal(t, errors.CodeSkillInvalid, errors.CodeOf(err))
			assert.ErrorContains(t, err, tc.cause)
		})
	}

	_, err := ParseManifest(filepath.Join(root, "missing", ManifestFile))
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.CodeSkillInvalid))
}

func TestParseManifestQuotedValues(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "quoted", "---\nname: \"quoted\"\ndescription: 'Use it: when needed'\nlicense: MIT\nallowed-tools: Bash(git:*) Read Read\n---\n# Title\n")
	s, err := ParseManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "quoted", s.Name)
	assert.Equal(t, "Use it: when needed", s.Description)
	assert.Equal(t, "MIT", s.License)
	assert.Equal(t, []string{"Bash(git:*)", "Read"}, s.AllowedTools)
	assert.Equal(t, filepath.Join(root, "quoted"), s.Dir)
}

func TestParseManifestLineFallback(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "loose", "---\nname: loose\ndescription: Summarise: pages, tables: and more\n---\n")
	s, err := ParseManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "loose", s.Name)
	assert.Equal(t, "Summarise: pages, tables: and more", s.Description)
}

func TestLoadBody(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "pdf", "\n---\nname: pdf\ndescription: PDF tools\n---\n\n  Use pdftotext.\n---\nStill body.\n\n")
	c := NewCatalog(context.Background(), root)
	s, ok := c.Get("pdf")
	require.True(t, ok)

	body, err := c.LoadBody(s)
	require.NoError(t, err)
	assert.Equal(t, "Use pdftotext.\n---\nStill body.", body)

	require.NoError(t, os.Remove(s.Path))
	_, err = c.LoadBody(s)
	assert.Error(t, err)
}

func TestDelimiterMustBeExact(t *testing.T) {
	_, _, err := splitFrontmatter("----\nname: x\n----\n")
	assert.ErrorIs(t, err, errNoFrontmatter)

	fm, body, err := splitFrontmatter("---\r\nname: x\r\n---\r\nbody")
	require.NoError(t, err)
	assert.Contains(t, fm, "name: x")
	assert.Equal(t, "body", body)
}

func TestVersionIncrementsOnEveryScan(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo", "---\nname: foo\ndescription: bar\n---\n")
	c := NewCatalog(context.Background(), root)
	require.Equal(t, uint64(1), c.Version())

	before := names(c.ResolveSkills(nil))
	digest := c.Digest()
	assert.Equal(t, uint64(2), c.Scan(context.Background()))
	assert.Equal(t, before, names(c.ResolveSkills(nil)))
	assert.Equal(t, digest, c.Digest())

	writeSkill(t, root, "baz", "---\nname: baz\ndescription: qux\n---\n")
	assert.Equal(t, uint64(3), c.Scan(context.Background()))
	assert.NotEqual(t, digest, c.Digest())
	assert.Equal(t, []string{"baz", "foo"}, names(c.Skills()))
}

func TestDuplicateNamesLastDirectoryWins(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "a-first", "---\nname: shared\ndescription: first\n---\n")
	writeSkill(t, root, "b-second", "---\nname: shared\ndescription: second\n---\n")
	c := NewCatalog(context.Background(), root)

	s, ok := c.Get("shared")
	require.True(t, ok)
	assert.Equal(t, "second", s.Description)
	assert.Equal(t, 1, c.Len())
}

func TestMissingDirectory(t *testing.T) {
	var scans atomic.Int32
	c := NewCatalog(context.Background(), filepath.Join(t.TempDir(), "absent"),
		WithOnScan(func(uint64, int) { scans.Add(1) }))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(1), c.Version())
	assert.Equal(t, int32(1), scans.Load())
	assert.Empty(t, c.ResolveSkills([]string{"all"}))
}

func runWatcher(t *testing.T, w *Watcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}

func TestWatcherRescansOnChange(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo", "---\nname: foo\ndescription: bar\n---\n")
	c := NewCatalog(context.Background(), root)
	stop := runWatcher(t, NewWatcher(c, WithDebounce(20*time.Millisecond)))
	defer stop()

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	writeSkill(t, root, "fresh", "---\nname: fresh\ndescription: new\n---\n")

	require.Eventually(t, func() bool {
		_, ok := c.Get("fresh")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "foo", "---\nname: foo\ndescription: bar\n---\n")
	c := NewCatalog(context.Background(), root)
	stop := runWatcher(t, NewWatcher(c, WithDebounce(300*time.Millisecond)))
	defer stop()

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		writeSkill(t, root, "foo", "---\nname: foo\ndescription: burst\n---\n")
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return c.Version() >= 2 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, uint64(2), c.Version())
	s, _ := c.Get("foo")
	assert.Equal(t, "burst", s.Description)
}

func TestPollingWatcher(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(context.Background(), root)
	stop := runWatcher(t, NewWatcher(c, WithPolling(), WithPollInterval(20*time.Millisecond)))
	defer stop()

	writeSkill(t, root, "polled", "---\nname: polled\ndescription: seen\n---\n")
	require.Eventually(t, func() bool {
		_, ok := c.Get("polled")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherFallsBackWhenDirMissing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "later")
	c := NewCatalog(context.Background(), root)
	stop := runWatcher(t, NewWatcher(c, WithPollInterval(20*time.Millisecond)))
	defer stop()

	writeSkill(t, root, "late", "---\nname: late\ndescription: arrives\n---\n")
	require.Eventually(t, func() bool {
		_, ok := c.Get("late")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
}
