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

package checkpoint

import (
	"testing"
	"time"

	"github.com/kraklabs/deepscan/pkg/session"
	"github.com/stretchr/testify/assert"
)

func TestNew_RejectsInvalidSessionHash(t *testing.T) {
	root := t.TempDir()
	_, err := New("../etc/passwd", root, nil)
	assert.ErrorIs(t, err, session.ErrInvalidSessionHash)

	_, err = New("has spaces", root, nil)
	assert.ErrorIs(t, err, session.ErrInvalidSessionHash)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	root := t.TempDir()
	m, err := New("abc123", root, nil)
	assert.NoError(t, err)

	cp := Checkpoint{
		CheckpointID:    "cp-1",
		SessionID:       "abc123",
		Phase:           session.PhaseMap,
		BatchIndex:      2,
		CompletedChunks: []string{"aaaaaaaa", "bbbbbbbb"},
		PendingChunks:   []string{"cccccccc"},
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	assert.NoError(t, m.Save(cp))
	assert.True(t, m.HasCheckpoint())

	loaded, err := m.Load()
	assert.NoError(t, err)
	assert.Equal(t, cp.BatchIndex, loaded.BatchIndex)
	assert.Equal(t, cp.CompletedChunks, loaded.CompletedChunks)
}

func TestLoad_MissingReturnsNilNoError(t *testing.T) {
	root := t.TempDir()
	m, err := New("abc123", root, nil)
	assert.NoError(t, err)

	cp, err := m.Load()
	assert.NoError(t, err)
	assert.Nil(t, cp)
}

func TestClear_RemovesCheckpoint(t *testing.T) {
	root := t.TempDir()
	m, err := New("abc123", root, nil)
	assert.NoError(t, err)
	assert.NoError(t, m.Save(Checkpoint{SessionID: "abc123", BatchIndex: 1}))
	assert.True(t, m.HasCheckpoint())
	assert.NoError(t, m.Clear())
	assert.False(t, m.HasCheckpoint())
}

func TestRestoreStateFromCheckpoint_RecomputesProgress(t *testing.T) {
	state := &session.State{
		Chunks: []session.Chunk{{ID: "c1"}, {ID: "c2"}},
		Phase:  session.PhaseMap,
	}
	cp := &Checkpoint{
		Phase: session.PhaseMap,
		PartialResults: []session.ChunkResult{
			{ChunkID: "c1", Status: session.StatusCompleted},
		},
	}
	RestoreStateFromCheckpoint(state, cp)
	assert.Equal(t, 0.5, state.ProgressPercent)
}
