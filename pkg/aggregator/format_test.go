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
	"strings"
	"testing"

	"github.com/kraklabs/deepscan/pkg/session"
)

func TestFormatSummary_IncludesCountsAndTopFindings(t *testing.T) {
	result := Result{
		TotalFindings:      3,
		UniqueFindings:     2,
		DeduplicationRatio: 1.0 / 3.0,
		AggregatedFindings: []MergedFinding{
			{Finding: session.Finding{Point: "race condition in worker pool"}, Confidence: session.ConfidenceHigh, SupportCount: 2, PointClean: "race condition in worker pool"},
			{Finding: session.Finding{Point: "unused import"}, Confidence: session.ConfidenceLow, SupportCount: 1, PointClean: "unused import"},
		},
	}
	summary := FormatSummary(result, 10)

	if !strings.Contains(summary, "Total findings: 3") {
		t.Fatalf("summary missing total findings line:\n%s", summary)
	}
	if !strings.Contains(summary, "race condition in worker pool") {
		t.Fatalf("summary missing top finding text:\n%s", summary)
	}
	if !strings.Contains(summary, "supported by 2 chunks") {
		t.Fatalf("summary missing support count annotation:\n%s", summary)
	}
}

func TestFormatSummary_ReportsContradictionsAndVerification(t *testing.T) {
	result := Result{
		Contradictions:            []Contradiction{{Finding1: "a", Finding2: "b"}},
		VerificationRequiredCount: 1,
		VerificationRequiredFindings: []MergedFinding{
			{Finding: session.Finding{Point: "uncertain claim"}, PointClean: "uncertain claim", Confidence: session.ConfidenceLow},
		},
	}
	summary := FormatSummary(result, 10)
	if !strings.Contains(summary, "1 contradictions detected") {
		t.Fatalf("summary missing contradiction count:\n%s", summary)
	}
	if !strings.Contains(summary, "findings need verification") {
		t.Fatalf("summary missing verification section:\n%s", summary)
	}
}

func TestFormatSummary_RespectsMaxFindingsLimit(t *testing.T) {
	result := Result{
		AggregatedFindings: []MergedFinding{
			{Finding: session.Finding{Point: "first"}, PointClean: "first"},
			{Finding: session.Finding{Point: "second"}, PointClean: "second"},
			{Finding: session.Finding{Point: "third"}, PointClean: "third"},
		},
	}
	summary := FormatSummary(result, 2)
	if strings.Contains(summary, "third") {
		t.Fatalf("summary should stop after max_findings:\n%s", summary)
	}
}
