// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeContextFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestInit_FullMode_ComposesAndPersistsState(t *testing.T) {
	cacheRoot := t.TempDir()
	contextRoot := t.TempDir()
	writeContextFile(t, contextRoot, "main.go", "package main\n")
	writeContextFile(t, contextRoot, "node_modules/dep.js", "ignored\n")

	m, err := NewManager(cacheRoot, nil)
	require.NoError(t, err)

	cfg := DefaultConfiguration()
	state, hash, err := m.Init(InitOptions{ContextPath: contextRoot, Query: "find bugs", Config: cfg})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Equal(t, PhaseInitialized, state.Phase)

	loaded, err := m.Load(hash)
	require.NoError(t, err)
	assert.Equal(t, "find bugs", loaded.Query)

	current, err := m.CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, hash, current)
}

func TestSave_MaterializesChunkFilesUnderSessionDir(t *testing.T) {
	cacheRoot := t.TempDir()
	m, err := NewManager(cacheRoot, nil)
	require.NoError(t, err)

	state := &State{
		SessionID: "abc123",
		Chunks: []Chunk{
			{ID: "c0", Content: "first chunk"},
			{ID: "c1", Content: "second chunk"},
		},
	}
	require.NoError(t, m.Save(state))

	dir, err := m.SessionDir("abc123")
	require.NoError(t, err)

	got0, err := os.ReadFile(filepath.Join(dir, "chunks", "chunk_0000.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first chunk", string(got0))

	got1, err := os.ReadFile(filepath.Join(dir, "chunks", "chunk_0001.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second chunk", string(got1))
}

func TestInit_RejectsMissingContextPath(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	_, _, err = m.Init(InitOptions{ContextPath: "/does/not/exist", Config: DefaultConfiguration()})
	assert.ErrorIs(t, err, ErrContextPathNotFound)
}

func TestInit_RejectsInvalidConfiguration(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	contextRoot := t.TempDir()

	cfg := DefaultConfiguration()
	cfg.ChunkSize = 10
	_, _, err = m.Init(InitOptions{ContextPath: contextRoot, Config: cfg})
	assert.Error(t, err)
}

func TestAbort_ClearsCurrentSessionMarker(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	contextRoot := t.TempDir()
	writeContextFile(t, contextRoot, "a.go", "package a\n")

	_, hash, err := m.Init(InitOptions{ContextPath: contextRoot, Config: DefaultConfiguration()})
	require.NoError(t, err)

	require.NoError(t, m.Abort(hash))
	assert.False(t, m.Exists(hash))
	_, err = m.CurrentSession()
	assert.Error(t, err)
}

func TestList_OrdersMostRecentFirst(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	var hashes []string
	for i := 0; i < 3; i++ {
		contextRoot := t.TempDir()
		writeContextFile(t, contextRoot, "a.go", "package a\n")
		_, hash, err := m.Init(InitOptions{ContextPath: contextRoot, Config: DefaultConfiguration()})
		require.NoError(t, err)
		hashes = append(hashes, hash)
		time.Sleep(time.Millisecond)
	}

	summaries, err := m.List()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, hashes[2], summaries[0].Hash)
}

func TestValidateSessionHash_RejectsTraversal(t *testing.T) {
	assert.ErrorIs(t, ValidateSessionHash("../etc"), ErrInvalidSessionHash)
	assert.ErrorIs(t, ValidateSessionHash("has spaces"), ErrInvalidSessionHash)
	assert.NoError(t, ValidateSessionHash("abc123_-"))
}

func TestComposeFull_PrunesDefaultDirectories(t *testing.T) {
	root := t.TempDir()
	writeContextFile(t, root, "keep.go", "package keep\n")
	writeContextFile(t, root, "node_modules/skip.js", "skip\n")

	prune := CombinedPrune(map[string]bool{"node_modules": true}, IgnoreRules{})
	composed, err := ComposeFull(root, prune)
	require.NoError(t, err)
	assert.Equal(t, 1, composed.FileCount)
	assert.Contains(t, composed.Text, "keep.go")
	assert.NotContains(t, composed.Text, "skip.js")
}

func TestParseIgnoreFile_ClassifiesGlobsAndDirNames(t *testing.T) {
	root := t.TempDir()
	writeContextFile(t, root, ".deepscanignore", "# comment\nbuild/\n*.log\n\n")

	rules, err := ParseIgnoreFile(root)
	require.NoError(t, err)
	assert.True(t, rules.Matches("build", "build", true))
	assert.True(t, rules.Matches("debug.log", "debug.log", false))
	assert.False(t, rules.Matches("main.go", "main.go", false))
}
