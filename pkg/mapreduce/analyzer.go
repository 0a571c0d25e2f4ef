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

// Package mapreduce drives the batched map phase (dispatching chunks to an
// analyser, reconciling results, tracking the escalation budget) and the
// reduce phase (handing surviving results to the aggregator).
package mapreduce

import (
	"context"

	"github.com/kraklabs/deepscan/pkg/session"
)

// Analyzer produces a ChunkResult for one chunk against the session query.
// The external model dispatch lives behind this interface; the core ships
// only PlaceholderAnalyzer, which never calls out anywhere.
type Analyzer interface {
	Analyze(ctx context.Context, chunk session.Chunk, query string, agentType session.AgentType) (session.ChunkResult, error)
}

// PlaceholderAnalyzer produces a deterministic pending result for every
// chunk, standing in for an external model driver. This is what `deepscan
// map` without `--instructions` actually dispatches: a CLI run that expects
// a human or a separate tool to supply real findings later, with the
// pending placeholders superseded on the next real map pass.
type PlaceholderAnalyzer struct{}

// Analyze returns a StatusPending result carrying no findings.
func (PlaceholderAnalyzer) Analyze(_ context.Context, chunk session.Chunk, _ string, _ session.AgentType) (session.ChunkResult, error) {
	return session.ChunkResult{
		ChunkID: chunk.ID,
		Status:  session.StatusPending,
	}, nil
}

// needsMap reports whether a chunk still needs a real map pass: it isn't
// already completed, partial, or failed. Placeholder and pending never
// block re-dispatch.
func needsMap(chunkID string, results []session.ChunkResult) bool {
	for _, r := range results {
		if r.ChunkID != chunkID {
			continue
		}
		switch r.Status {
		case session.StatusCompleted, session.StatusPartial, session.StatusFailed:
			return false
		}
	}
	return true
}

// pendingChunks returns the chunks from all that still need a map pass,
// in original order.
func pendingChunks(all []session.Chunk, results []session.ChunkResult) []session.Chunk {
	var out []session.Chunk
	for _, c := range all {
		if needsMap(c.ID, results) {
			out = append(out, c)
		}
	}
	return out
}

// batches splits chunks into groups of at most size, preserving order.
func batches(chunks []session.Chunk, size int) [][]session.Chunk {
	if size <= 0 {
		size = 1
	}
	var out [][]session.Chunk
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[i:end])
	}
	return out
}
