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
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/deepscan/internal/atomicfile"
	dserrors "github.com/kraklabs/deepscan/internal/errors"
	"github.com/kraklabs/deepscan/pkg/walker"
)

var sessionHashPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const stateVersion = 1

// CancelChecker reports whether a forced cancellation is in progress,
// satisfied by *cancel.Manager.
type CancelChecker interface {
	IsForced() bool
}

// Manager owns the cache root directory: session creation, persistence,
// listing, resumption, and garbage collection.
type Manager struct {
	cacheRoot string
	cancel    CancelChecker
}

// NewManager resolves cacheRoot to an absolute path and ensures it exists.
func NewManager(cacheRoot string, cancelChecker CancelChecker) (*Manager, error) {
	abs, err := filepath.Abs(cacheRoot)
	if err != nil {
		return nil, newResourceErr(dserrors.CacheDirFailure, "Cache Directory Failure", err.Error(), "")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, newResourceErr(dserrors.CacheDirFailure, "Cache Directory Failure", err.Error(), "")
	}
	return &Manager{cacheRoot: abs, cancel: cancelChecker}, nil
}

// ValidateSessionHash rejects anything not matching the session-hash
// grammar before it ever touches the filesystem.
func ValidateSessionHash(hash string) error {
	if !sessionHashPattern.MatchString(hash) || strings.Contains(hash, "..") {
		return ErrInvalidSessionHash
	}
	return nil
}

// SessionDir resolves hash to its directory under the cache root, rejecting
// any path that would escape it.
func (m *Manager) SessionDir(hash string) (string, error) {
	if err := ValidateSessionHash(hash); err != nil {
		return "", err
	}
	dir := filepath.Join(m.cacheRoot, hash)
	rel, err := filepath.Rel(m.cacheRoot, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidSessionHash
	}
	return dir, nil
}

func newSessionHash() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// InitOptions configures session creation.
type InitOptions struct {
	ContextPath string
	Query       string
	Config      Configuration
}

// Init validates the context path and configuration, composes the initial
// context for the requested scan mode, and persists a freshly-created
// session directory. It returns the new state and its session hash.
func (m *Manager) Init(opts InitOptions) (*State, string, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, "", err
	}
	info, err := os.Stat(opts.ContextPath)
	if err != nil || !info.IsDir() {
		return nil, "", ErrContextPathNotFound
	}

	rules, err := ParseIgnoreFile(opts.ContextPath)
	if err != nil {
		return nil, "", newResourceErr(dserrors.PathNotFound, "Ignore File Unreadable", err.Error(), "")
	}
	prune := CombinedPrune(walker.DefaultPruneDirs, rules)

	var composed ComposedContext
	switch opts.Config.ScanMode {
	case ScanModeLazy:
		composed, err = ComposeLazy(opts.ContextPath, opts.Config.LazyDepth, opts.Config.LazyFileLimit)
	case ScanModeTargeted:
		composed, err = ComposeTargeted(opts.ContextPath, opts.Config.Targets, prune)
	default:
		composed, err = ComposeFull(opts.ContextPath, prune)
	}
	if err != nil {
		return nil, "", err
	}

	hash, err := newSessionHash()
	if err != nil {
		return nil, "", newResourceErr(dserrors.CacheDirFailure, "Session Hash Generation Failed", err.Error(), "")
	}

	now := time.Now().UTC()
	state := &State{
		Version:   stateVersion,
		SessionID: hash,
		CreatedAt: now,
		UpdatedAt: now,
		Config:    opts.Config,
		ContextMetadata: map[string]any{
			"context_path": opts.ContextPath,
			"file_count":   composed.FileCount,
			"total_size":   composed.TotalSize,
			"scan_mode":    string(opts.Config.ScanMode),
		},
		Query: opts.Query,
		Phase: PhaseInitialized,
	}

	if err := m.Save(state); err != nil {
		return nil, "", err
	}
	if err := m.writeContextBlob(hash, composed.Text); err != nil {
		return nil, "", err
	}

	if opts.Config.Incremental && opts.Config.PreviousSession != "" {
		delta, err := m.ApplyIncremental(state, opts.ContextPath, prune)
		if err != nil {
			return nil, "", err
		}
		state.ContextMetadata["incremental_delta"] = delta
		if err := m.Save(state); err != nil {
			return nil, "", err
		}
	}

	if err := m.SetCurrentSession(hash); err != nil {
		return nil, "", err
	}
	return state, hash, nil
}

func (m *Manager) statePath(hash string) (string, error) {
	dir, err := m.SessionDir(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}

func (m *Manager) writeContextBlob(hash, text string) error {
	dir, err := m.SessionDir(hash)
	if err != nil {
		return err
	}
	return atomicfile.Write(filepath.Join(dir, "context.txt"), []byte(text), 3, 100*time.Millisecond, m.cancel)
}

// Save writes state to its session directory atomically, bumping
// UpdatedAt and recomputing progress_percent first.
func (m *Manager) Save(state *State) error {
	dir, err := m.SessionDir(state.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newResourceErr(dserrors.CacheDirFailure, "Cache Directory Failure", err.Error(), "")
	}
	state.UpdatedAt = time.Now().UTC()
	state.RecomputeProgress()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return dserrors.New(dserrors.InternalError, "State Marshal Failed", err.Error(), "", err)
	}
	path, err := m.statePath(state.SessionID)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(path, data, 3, 100*time.Millisecond, m.cancel); err != nil {
		return err
	}
	return m.writeChunkFiles(state.SessionID, state.Chunks)
}

// writeChunkFiles materialises each chunk's content under chunks/chunk_NNNN.txt,
// the on-disk counterpart to the Content already carried inline in
// state.Chunks, kept in sync on every Save the same way writeContextBlob
// keeps context.txt in sync on Init.
func (m *Manager) writeChunkFiles(hash string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dir, err := m.SessionDir(hash)
	if err != nil {
		return err
	}
	chunksDir := filepath.Join(dir, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return newResourceErr(dserrors.CacheDirFailure, "Cache Directory Failure", err.Error(), "")
	}
	for i, c := range chunks {
		path := filepath.Join(chunksDir, fmt.Sprintf("chunk_%04d.txt", i))
		if err := atomicfile.Write(path, []byte(c.Content), 3, 100*time.Millisecond, m.cancel); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a session's state.json.
func (m *Manager) Load(hash string) (*State, error) {
	path, err := m.statePath(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, dserrors.New(dserrors.CheckpointCorrupted, "State Corrupted", err.Error(), "The session may need to be aborted and recreated", err)
	}
	return &state, nil
}

// Exists reports whether a session directory exists for hash.
func (m *Manager) Exists(hash string) bool {
	dir, err := m.SessionDir(hash)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, "state.json"))
	return err == nil
}

// SessionSummary is the lightweight record returned by List.
type SessionSummary struct {
	Hash       string
	Phase      Phase
	Progress   float64
	UpdatedAt  time.Time
	Query      string
}

// List enumerates every session under the cache root, most recently
// updated first.
func (m *Manager) List() ([]SessionSummary, error) {
	entries, err := os.ReadDir(m.cacheRoot)
	if err != nil {
		return nil, err
	}
	var out []SessionSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ValidateSessionHash(e.Name()); err != nil {
			continue
		}
		state, err := m.Load(e.Name())
		if err != nil {
			continue
		}
		out = append(out, SessionSummary{
			Hash:      state.SessionID,
			Phase:     state.Phase,
			Progress:  state.ProgressPercent,
			UpdatedAt: state.UpdatedAt,
			Query:     state.Query,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Abort deletes a session directory outright and clears the current-session
// marker if it pointed at the removed session.
func (m *Manager) Abort(hash string) error {
	dir, err := m.SessionDir(hash)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrSessionNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return newResourceErr(dserrors.CacheDirFailure, "Session Removal Failed", err.Error(), "")
	}
	current, err := m.CurrentSession()
	if err == nil && current == hash {
		_ = os.Remove(m.currentSessionMarkerPath())
	}
	return nil
}

// Clean removes sessions older than maxAge (an LRU-by-age sweep), returning
// the hashes it removed.
func (m *Manager) Clean(maxAge time.Duration) ([]string, error) {
	summaries, err := m.List()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, s := range summaries {
		if s.UpdatedAt.Before(cutoff) {
			if err := m.Abort(s.Hash); err != nil {
				continue
			}
			removed = append(removed, s.Hash)
		}
	}
	return removed, nil
}

func (m *Manager) currentSessionMarkerPath() string {
	return filepath.Join(m.cacheRoot, ".current_session")
}

// SetCurrentSession atomically updates the cross-invocation "current
// session" marker file (temp-file-then-rename), so concurrent readers
// never observe a half-written hash.
func (m *Manager) SetCurrentSession(hash string) error {
	if err := ValidateSessionHash(hash); err != nil {
		return err
	}
	return atomicfile.Write(m.currentSessionMarkerPath(), []byte(hash), 3, 100*time.Millisecond, m.cancel)
}

// CurrentSession reads the current-session marker, if any.
func (m *Manager) CurrentSession() (string, error) {
	data, err := os.ReadFile(m.currentSessionMarkerPath())
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(string(data))
	if err := ValidateSessionHash(hash); err != nil {
		return "", err
	}
	return hash, nil
}
