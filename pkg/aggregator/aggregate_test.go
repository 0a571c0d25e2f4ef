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

package aggregator

import (
	"testing"

	"github.com/kraklabs/deepscan/pkg/session"
)

func TestAggregate_DeduplicatesNearIdenticalFindings(t *testing.T) {
	results := []session.ChunkResult{
		{ChunkID: "c1", Status: session.StatusCompleted, Findings: []session.Finding{
			{Point: "SQL injection in login handler", Evidence: "db.Query(userInput)", Confidence: session.ConfidenceMedium},
		}},
		{ChunkID: "c2", Status: session.StatusCompleted, Findings: []session.Finding{
			{Point: "SQL injection in the login handler", Evidence: "db.Query(userInput)", Confidence: session.ConfidenceHigh},
		}},
	}

	result := Aggregate(results, "SQL injection login", nil, DefaultOptions())

	if result.TotalFindings != 2 {
		t.Fatalf("TotalFindings = %d, want 2", result.TotalFindings)
	}
	if result.UniqueFindings != 1 {
		t.Fatalf("UniqueFindings = %d, want 1 (should have merged the near-duplicate pair)", result.UniqueFindings)
	}
	if result.AggregatedFindings[0].Confidence != session.ConfidenceHigh {
		t.Fatalf("merged finding should keep the higher-confidence variant, got %v", result.AggregatedFindings[0].Confidence)
	}
	if result.AggregatedFindings[0].SupportCount != 2 {
		t.Fatalf("SupportCount = %d, want 2", result.AggregatedFindings[0].SupportCount)
	}
}

func TestAggregate_UniqueNeverExceedsTotal(t *testing.T) {
	results := []session.ChunkResult{
		{ChunkID: "c1", Findings: []session.Finding{
			{Point: "unrelated finding about caching", Confidence: session.ConfidenceLow},
			{Point: "a completely different memory leak issue", Confidence: session.ConfidenceMedium},
		}},
	}
	result := Aggregate(results, "memory", nil, DefaultOptions())
	if result.UniqueFindings > result.TotalFindings {
		t.Fatalf("unique (%d) must never exceed total (%d)", result.UniqueFindings, result.TotalFindings)
	}
	if result.DeduplicationRatio < 0 || result.DeduplicationRatio > 1 {
		t.Fatalf("deduplication_ratio out of [0,1]: %v", result.DeduplicationRatio)
	}
}

func TestAggregate_FiltersGhostFindingsFromDeletedFiles(t *testing.T) {
	results := []session.ChunkResult{
		{ChunkID: "chunk_at_old/legacy.go_0001", Findings: []session.Finding{
			{Point: "dead code path", Location: map[string]string{"file": "old/legacy.go"}},
		}},
		{ChunkID: "chunk_at_main.go_0001", Findings: []session.Finding{
			{Point: "still relevant finding"},
		}},
	}
	result := Aggregate(results, "", []string{"old/legacy.go"}, DefaultOptions())
	if result.FilteredDeletedFiles != 1 {
		t.Fatalf("FilteredDeletedFiles = %d, want 1", result.FilteredDeletedFiles)
	}
	if result.TotalFindings != 1 {
		t.Fatalf("TotalFindings = %d, want 1 after ghost filtering", result.TotalFindings)
	}
}

func TestAggregate_ParsesNeedsVerificationPrefix(t *testing.T) {
	results := []session.ChunkResult{
		{ChunkID: "c1", Findings: []session.Finding{
			{Point: "NEEDS_VERIFICATION: this claim is uncertain", Confidence: session.ConfidenceLow},
		}},
	}
	result := Aggregate(results, "", nil, DefaultOptions())
	if result.VerificationRequiredCount != 1 {
		t.Fatalf("VerificationRequiredCount = %d, want 1", result.VerificationRequiredCount)
	}
	if result.AggregatedFindings[0].PointClean != "this claim is uncertain" {
		t.Fatalf("PointClean = %q, want prefix stripped", result.AggregatedFindings[0].PointClean)
	}
}

func TestAggregate_DetectsNegationContradiction(t *testing.T) {
	// The pair's similarity ratio (~0.48) sits between the 0.4 contradiction
	// threshold and the 0.7 merge threshold, so the two findings survive
	// deduplication as separate merged findings and reach the scan.
	results := []session.ChunkResult{
		{ChunkID: "c1", Findings: []session.Finding{
			{Point: "the handler validates user input before use", Confidence: session.ConfidenceHigh},
		}},
		{ChunkID: "c2", Findings: []session.Finding{
			{Point: "input reaches the handler without validation", Confidence: session.ConfidenceHigh},
		}},
	}
	result := Aggregate(results, "", nil, DefaultOptions())
	if len(result.Contradictions) == 0 {
		t.Fatalf("expected at least one contradiction between negated/non-negated findings")
	}
	if !result.NeedsManualReview {
		t.Fatalf("NeedsManualReview should be true when contradictions exist")
	}
}

func TestAggregate_EmptyInputReturnsZeroedResult(t *testing.T) {
	result := Aggregate(nil, "query", nil, DefaultOptions())
	if result.TotalFindings != 0 || result.UniqueFindings != 0 || result.DeduplicationRatio != 0 {
		t.Fatalf("expected zeroed result for empty input, got %+v", result)
	}
}
