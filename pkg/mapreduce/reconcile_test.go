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

package mapreduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/deepscan/pkg/session"
)

func TestReconcileResults_RealResultReplacesPlaceholder(t *testing.T) {
	existing := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusPlaceholder},
	}
	incoming := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusCompleted},
	}
	out := ReconcileResults(existing, incoming)

	require.Len(t, out, 1)
	assert.Equal(t, session.StatusCompleted, out[0].Status)
}

func TestReconcileResults_EscalationRetryReplacesFailedWithSuccess(t *testing.T) {
	existing := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusFailed, Attempt: 2},
	}
	incoming := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusCompleted, Attempt: 3},
	}
	out := ReconcileResults(existing, incoming)

	require.Len(t, out, 1)
	assert.Equal(t, session.StatusCompleted, out[0].Status)
}

func TestReconcileResults_PlaceholderNeverRegressesRealResult(t *testing.T) {
	existing := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusCompleted},
	}
	incoming := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusPlaceholder},
	}
	out := ReconcileResults(existing, incoming)

	require.Len(t, out, 1)
	assert.Equal(t, session.StatusCompleted, out[0].Status, "a placeholder must never overwrite a real result")
}

func TestReconcileResults_PendingOnlyReplacesOtherProvisionalEntries(t *testing.T) {
	existing := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusPending},
		{ChunkID: "c2", Status: session.StatusFailed},
	}
	incoming := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusPlaceholder},
	}
	out := ReconcileResults(existing, incoming)

	require.Len(t, out, 2)
	var byID = map[string]session.ChunkResult{}
	for _, r := range out {
		byID[r.ChunkID] = r
	}
	assert.Equal(t, session.StatusPlaceholder, byID["c1"].Status)
	assert.Equal(t, session.StatusFailed, byID["c2"].Status)
}

func TestReconcileResults_UnrelatedChunksUntouched(t *testing.T) {
	existing := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusCompleted},
		{ChunkID: "c2", Status: session.StatusPending},
	}
	incoming := []session.ChunkResult{
		{ChunkID: "c2", Status: session.StatusCompleted},
	}
	out := ReconcileResults(existing, incoming)

	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, session.StatusCompleted, r.Status)
	}
}
