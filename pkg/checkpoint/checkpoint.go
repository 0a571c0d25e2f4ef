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

// Package checkpoint implements atomic, size-bounded persistence of map
// phase progress, so a session can resume from the last completed batch
// after a crash or a cancellation.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kraklabs/deepscan/internal/atomicfile"
	dserrors "github.com/kraklabs/deepscan/internal/errors"
	"github.com/kraklabs/deepscan/pkg/session"
)

// MaxCheckpointWriteSize is the write-limit: above this, saves succeed but
// log a warning (asymmetric to preserve backward compatibility with
// checkpoints written before a size reduction).
const MaxCheckpointWriteSize = 20 * 1024 * 1024

// MaxCheckpointReadSize is the absolute read-limit: loading a checkpoint
// above this size fails with ErrCheckpointTooLarge.
const MaxCheckpointReadSize = 100 * 1024 * 1024

// CancelledSaveBatchIndex is the sentinel batch index written when a
// checkpoint is saved during graceful cancellation ("cancelled save").
const CancelledSaveBatchIndex = -1

var sessionHashPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrCheckpointTooLarge is returned by Load when the on-disk checkpoint
// exceeds MaxCheckpointReadSize.
type ErrCheckpointTooLarge struct {
	Size  int64
	Limit int64
}

func (e *ErrCheckpointTooLarge) Error() string {
	return fmt.Sprintf("checkpoint file is %d bytes, exceeding the %d byte read limit", e.Size, e.Limit)
}

// Checkpoint is the persisted snapshot of map-phase progress.
type Checkpoint struct {
	CheckpointID     string                `json:"checkpoint_id"`
	SessionID        string                `json:"session_id"`
	Phase            session.Phase         `json:"phase"`
	BatchIndex       int                   `json:"batch_index"`
	CompletedChunks  []string              `json:"completed_chunks"`
	PendingChunks    []string              `json:"pending_chunks"`
	PartialResults   []session.ChunkResult `json:"partial_results"`
	CreatedAt        time.Time             `json:"created_at"`
}

// CancelChecker reports whether a forced cancellation is in progress,
// satisfied by *cancel.Manager.
type CancelChecker interface {
	IsForced() bool
}

// Manager saves and loads checkpoints for a single session, under a
// cache-root-relative directory whose path is validated against
// path-traversal on every construction.
type Manager struct {
	sessionHash string
	cacheRoot   string
	sessionDir  string
	maxRetries  int
	retryDelay  time.Duration
	cancel      CancelChecker
}

// New validates sessionHash against the session-hash grammar and resolves
// the session directory under cacheRoot, rejecting any path that would
// escape it. No directory is created if validation fails.
func New(sessionHash, cacheRoot string, cancelChecker CancelChecker) (*Manager, error) {
	if !sessionHashPattern.MatchString(sessionHash) || strings.Contains(sessionHash, "..") {
		return nil, session.ErrInvalidSessionHash
	}

	absRoot, err := filepath.Abs(cacheRoot)
	if err != nil {
		return nil, dserrors.New(dserrors.CacheDirFailure, "Cache Directory Failure", err.Error(), "", err)
	}
	sessionDir := filepath.Join(absRoot, sessionHash)
	rel, err := filepath.Rel(absRoot, sessionDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, session.ErrInvalidSessionHash
	}

	return &Manager{
		sessionHash: sessionHash,
		cacheRoot:   absRoot,
		sessionDir:  sessionDir,
		maxRetries:  3,
		retryDelay:  100 * time.Millisecond,
		cancel:      cancelChecker,
	}, nil
}

func (m *Manager) path() string {
	return filepath.Join(m.sessionDir, "checkpoint.json")
}

// Save writes the checkpoint atomically, retrying the final rename on
// permission errors while the cancellation manager has not yet reached the
// forced stage (a forced cancel aborts and removes the temp file; a
// graceful cancel continues, since flushing progress is the entire point
// of a cancelled-save checkpoint).
func (m *Manager) Save(cp Checkpoint) error {
	if err := os.MkdirAll(m.sessionDir, 0o755); err != nil {
		return dserrors.New(dserrors.CacheDirFailure, "Cache Directory Failure", err.Error(), "", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return dserrors.New(dserrors.InternalError, "Checkpoint Marshal Failed", err.Error(), "", err)
	}
	if len(data) > MaxCheckpointWriteSize {
		// Warning-only: the write-limit is exceeded, but writes still succeed.
		fmt.Fprintf(os.Stderr, "[WARN] checkpoint size %d exceeds the %d byte write limit\n", len(data), MaxCheckpointWriteSize)
	}

	return atomicfile.Write(m.path(), data, m.maxRetries, m.retryDelay, m.cancel)
}

// Load reads and validates the checkpoint, enforcing the asymmetric size
// policy: anything above MaxCheckpointReadSize is rejected outright.
func (m *Manager) Load() (*Checkpoint, error) {
	info, err := os.Stat(m.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if info.Size() > MaxCheckpointReadSize {
		return nil, &ErrCheckpointTooLarge{Size: info.Size(), Limit: MaxCheckpointReadSize}
	}
	if info.Size() > MaxCheckpointWriteSize {
		fmt.Fprintf(os.Stderr, "[WARN] loaded checkpoint of size %d exceeds the %d byte write limit\n", info.Size(), MaxCheckpointWriteSize)
	}

	data, err := os.ReadFile(m.path())
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, dserrors.New(dserrors.CheckpointCorrupted, "Checkpoint Corrupted", err.Error(), "Re-run 'deepscan map' without resuming", err)
	}
	return &cp, nil
}

// HasCheckpoint reports whether a checkpoint file exists without loading it.
func (m *Manager) HasCheckpoint() bool {
	_, err := os.Stat(m.path())
	return err == nil
}

// Info is the checkpoint summary shown by 'deepscan status'.
// GetCheckpointInfo fills it through a full Load, so a checkpoint that Load
// rejects (too large or corrupted) reports only Exists and SizeBytes.
type Info struct {
	Exists     bool
	SizeBytes  int64
	BatchIndex int
	Phase      session.Phase
}

func (m *Manager) GetCheckpointInfo() Info {
	info, err := os.Stat(m.path())
	if err != nil {
		return Info{}
	}
	cp, err := m.Load()
	if err != nil || cp == nil {
		return Info{Exists: true, SizeBytes: info.Size()}
	}
	return Info{Exists: true, SizeBytes: info.Size(), BatchIndex: cp.BatchIndex, Phase: cp.Phase}
}

// Clear removes the checkpoint file, if any.
func (m *Manager) Clear() error {
	err := os.Remove(m.path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RestoreStateFromCheckpoint mutates state in place: chunks named in
// CompletedChunks are marked completed (via PartialResults, when present),
// the phase is restored, and progress_percent is recomputed.
func RestoreStateFromCheckpoint(state *session.State, cp *Checkpoint) {
	if cp == nil {
		return
	}
	state.Phase = cp.Phase

	byID := make(map[string]session.ChunkResult, len(state.Results))
	for _, r := range state.Results {
		byID[r.ChunkID] = r
	}
	for _, r := range cp.PartialResults {
		byID[r.ChunkID] = r
	}

	results := make([]session.ChunkResult, 0, len(byID))
	for _, r := range byID {
		results = append(results, r)
	}
	state.Results = results
	state.RecomputeProgress()
}
