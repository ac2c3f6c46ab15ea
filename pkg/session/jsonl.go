// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// jsonlRecord is the on-disk form of one entry.
type jsonlRecord struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// JSONLPersister writes one <dir>/<key>.jsonl file per session, one JSON
// object per line.
type JSONLPersister struct {
	dir string
}

// NewJSONLPersister creates dir if needed.
func NewJSONLPersister(dir string) (*JSONLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &JSONLPersister{dir: dir}, nil
}

// Path returns the file used for key.
func (p *JSONLPersister) Path(key string) string {
	return filepath.Join(p.dir, FileName(key)+".jsonl")
}

// Export rewrites the file of key with entries. The file is replaced
// atomically through a temporary file in the same directory.
func (p *JSONLPersister) Export(ctx context.Context, key string, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(p.dir, ".session-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, e := range entries {
		rec := jsonlRecord{Role: e.Role, Content: e.Content, Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano)}
		if err := enc.Encode(rec); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.Path(key))
}

// Load reads back the entries exported for key. A missing file yields no
// entries and no error.
func (p *JSONLPersister) Load(ctx context.Context, key string) ([]Entry, error) {
	f, err := os.Open(p.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", p.Path(key), line, err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, rec.Timestamp)
		entries = append(entries, Entry{Role: rec.Role, Content: rec.Content, Timestamp: ts})
	}
	return entries, scanner.Err()
}

// Keys lists the exported sessions by file name. Keys are stored in their
// file-system safe form, which Load and Path accept unchanged.
func (p *JSONLPersister) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(keys)
	return keys, nil
}
