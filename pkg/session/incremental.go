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
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/deepscan/internal/atomicfile"
	dserrors "github.com/kraklabs/deepscan/internal/errors"
	"github.com/kraklabs/deepscan/pkg/hashmanifest"
)

func (m *Manager) fileHashesPath(hash string) (string, error) {
	dir, err := m.SessionDir(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "file_hashes.json"), nil
}

// SaveManifest persists a freshly-computed file manifest for hash.
func (m *Manager) SaveManifest(hash string, manifest hashmanifest.Manifest) error {
	path, err := m.fileHashesPath(hash)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data, 3, 100*time.Millisecond, m.cancel)
}

// LoadManifest reads the file manifest for hash, if any.
func (m *Manager) LoadManifest(hash string) (hashmanifest.Manifest, error) {
	path, err := m.fileHashesPath(hash)
	if err != nil {
		return hashmanifest.Manifest{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return hashmanifest.Manifest{}, err
	}
	var manifest hashmanifest.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return hashmanifest.Manifest{}, err
	}
	return manifest, nil
}

// ApplyIncremental computes the current context manifest, diffs it against
// the previous session's manifest (if configured), and carries forward
// chunk results for files the delta reports unchanged — so the map phase
// only re-dispatches chunks belonging to added/changed files, per spec.md
// §4.8.
func (m *Manager) ApplyIncremental(state *State, contextPath string, prune func(relPath, name string, isDir bool) bool) (hashmanifest.FileDelta, error) {
	curr, err := hashmanifest.ComputeManifest(contextPath, hashmanifest.DefaultHashAlgorithm, prune, nil)
	if err != nil {
		return hashmanifest.FileDelta{}, err
	}
	if err := m.SaveManifest(state.SessionID, curr); err != nil {
		return hashmanifest.FileDelta{}, err
	}

	if !state.Config.Incremental || state.Config.PreviousSession == "" {
		return hashmanifest.FileDelta{}, nil
	}

	prev, err := m.LoadManifest(state.Config.PreviousSession)
	if err != nil {
		return hashmanifest.FileDelta{}, newResourceErr(
			dserrors.SessionNotFound,
			"Previous Session Manifest Missing",
			err.Error(),
			"Run a full (non-incremental) scan to establish a baseline manifest",
		)
	}
	delta := hashmanifest.Delta(prev, curr)

	prevState, err := m.Load(state.Config.PreviousSession)
	if err != nil {
		return delta, nil
	}
	state.Results = carryForwardResults(prevState, delta)
	return delta, nil
}

// carryForwardResults keeps every previous chunk result whose source file
// was neither changed nor deleted, so only chunks touching added/changed
// files are re-dispatched during the map phase.
func carryForwardResults(prevState *State, delta hashmanifest.FileDelta) []ChunkResult {
	stale := make(map[string]bool, len(delta.Changed)+len(delta.Deleted))
	for _, f := range delta.Changed {
		stale[f] = true
	}
	for _, f := range delta.Deleted {
		stale[f] = true
	}
	chunkFile := make(map[string]string, len(prevState.Chunks))
	for _, c := range prevState.Chunks {
		chunkFile[c.ID] = c.RelativePath
	}

	var carried []ChunkResult
	for _, r := range prevState.Results {
		file, ok := chunkFile[r.ChunkID]
		if !ok || stale[file] {
			continue
		}
		carried = append(carried, r)
	}
	return carried
}
