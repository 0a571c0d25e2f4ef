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

package main

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/deepscan/internal/ui"
	"github.com/kraklabs/deepscan/pkg/aggregator"
	"github.com/kraklabs/deepscan/pkg/hashmanifest"
	"github.com/kraklabs/deepscan/pkg/session"
)

func runReduce(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("reduce", flag.ExitOnError)
	maxFindings := fs.Int("max-findings", 10, "Findings to list in the text summary")
	_ = fs.Parse(args)

	mgr, cancelMgr, err := newSessionManager(cacheRoot)
	if err != nil {
		fail(err)
		return
	}
	defer cancelMgr.Reset()

	hash, err := resolveHash(mgr, "")
	if err != nil {
		fail(err)
		return
	}
	state, err := mgr.Load(hash)
	if err != nil {
		fail(err)
		return
	}

	if allPlaceholders(state.Results) {
		fail(fmt.Errorf("reduce found no real results: every chunk is still placeholder or pending; run 'deepscan map' first"))
		return
	}

	deletedFiles := deletedFilesSince(mgr, state)

	result := aggregator.Aggregate(state.Results, state.Query, deletedFiles, aggregator.DefaultOptions())

	state.Phase = session.PhaseCompleted
	if len(result.AggregatedFindings) > 0 {
		answer := result.AggregatedFindings[0].Finding.Point
		state.FinalAnswer = &answer
	}
	if err := mgr.Save(state); err != nil {
		fail(err)
		return
	}

	if globals.JSON {
		fmt.Printf(
			"{\"session_id\":%q,\"total_findings\":%d,\"unique_findings\":%d,\"deduplication_ratio\":%.4f,\"needs_manual_review\":%v}\n",
			hash, result.TotalFindings, result.UniqueFindings, result.DeduplicationRatio, result.NeedsManualReview,
		)
		return
	}

	ui.Header("Reduce: " + hash)
	ui.Info(aggregator.FormatSummary(result, *maxFindings))
}

// allPlaceholders reports whether no chunk has yet received a real result —
// the reduce phase refuses to aggregate pure placeholders, per the "never
// retries; if no real results exist it fails loudly" rule.
func allPlaceholders(results []session.ChunkResult) bool {
	for _, r := range results {
		if r.Status != session.StatusPlaceholder && r.Status != session.StatusPending {
			return false
		}
	}
	return true
}

// deletedFilesSince recomputes the incremental-mode delete list from the
// saved manifests so the aggregator can filter ghost findings; sessions
// that were not run incrementally have no previous manifest to diff
// against, so they report no deletions.
func deletedFilesSince(mgr *session.Manager, state *session.State) []string {
	if !state.Config.Incremental || state.Config.PreviousSession == "" {
		return nil
	}
	curr, err := mgr.LoadManifest(state.SessionID)
	if err != nil {
		return nil
	}
	prev, err := mgr.LoadManifest(state.Config.PreviousSession)
	if err != nil {
		return nil
	}
	delta := hashmanifest.Delta(prev, curr)
	return delta.Deleted
}
