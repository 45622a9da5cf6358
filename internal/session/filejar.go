// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jeranaias/parley/internal/util"
)

// fileJarVersion is bumped when the document layout changes.
const fileJarVersion = 1

type fileJarDoc struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// FileJar stores entries in a single JSON document.
type FileJar struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// NewFileJar returns a jar backed by path. The file is created on first Save.
func NewFileJar(path string) *FileJar {
	return &FileJar{path: path}
}

// Path implements Jar.
func (j *FileJar) Path() string {
	return j.path
}

// Load implements Jar. A missing file is an empty jar.
func (j *FileJar) Load() (map[string]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrJarClosed
	}

	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return map[string]Entry{}, nil
	}

	var doc fileJarDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]Entry{}
	}
	return doc.Entries, nil
}

// Save implements Jar.
func (j *FileJar) Save(entries map[string]Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJarClosed
	}

	data, err := json.MarshalIndent(fileJarDoc{Version: fileJarVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	// SECURITY: tokens are credentials; owner read/write only.
	if err := util.AtomicWriteFile(j.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Clear implements Jar.
func (j *FileJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJarClosed
	}
	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Close implements Jar.
func (j *FileJar) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}
