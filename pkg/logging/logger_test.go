// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLevelFiltering verifies the minimum level suppresses lower records.
func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelWarn, Writer: &buf})
	require.NoError(t, err)

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("visible warn")
	l.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
	assert.Contains(t, out, "visible error")
}

// TestJSONOutput verifies the JSON handler emits parseable records with
// attributes.
func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelInfo, JSON: true, Writer: &buf})
	require.NoError(t, err)

	l.Info("section saved", "section", "personal_details")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "section saved", record["msg"])
	assert.Equal(t, "personal_details", record["section"])
}

// TestFileLogging verifies log-file creation and that records land in it.
func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Level: LevelInfo, LogDir: dir, Service: "test", Quiet: true})
	require.NoError(t, err)

	l.Info("persisted record", "case_id", "C-1")
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "test_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "persisted record")
	assert.Contains(t, string(data), "C-1")
}

// TestQuietWithoutFile verifies a silent logger still works.
func TestQuietWithoutFile(t *testing.T) {
	l, err := New(Config{Quiet: true})
	require.NoError(t, err)
	l.Info("goes nowhere")
	require.NoError(t, l.Close())
}

// TestWithAttributes verifies derived loggers carry their attributes.
func TestWithAttributes(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: LevelInfo, JSON: true, Writer: &buf})
	require.NoError(t, err)

	l.With("case_id", "C-9").Info("loaded")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "C-9", record["case_id"])
}

// TestCloseTwice verifies Close is idempotent.
func TestCloseTwice(t *testing.T) {
	l, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

// TestParseLevel covers the accepted spellings.
func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}
