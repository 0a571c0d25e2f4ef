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

// Package aggregator merges per-chunk findings into a deduplicated,
// relevance-sorted result set for the reduce phase: ghost-finding removal,
// token-blocked similarity grouping, confidence-weighted merge, and a
// contradiction scan.
package aggregator

import "github.com/kraklabs/deepscan/pkg/session"

// Options tunes the aggregation pipeline.
type Options struct {
	SimilarityThreshold float64 // default 0.7
}

// DefaultOptions returns the REQ_02 FR-006 default threshold.
func DefaultOptions() Options {
	return Options{SimilarityThreshold: 0.7}
}

const contradictionSimilarityThreshold = 0.4

// findingRecord is one finding annotated with its source chunk and the
// point text cleaned of any NEEDS_VERIFICATION prefix.
type findingRecord struct {
	finding              session.Finding
	sourceChunk          string
	pointClean           string
	verificationRequired bool
}

// MergedFinding is one deduplicated, support-counted finding.
type MergedFinding struct {
	Finding               session.Finding `json:"finding"`
	Sources               []string        `json:"sources"`
	SupportCount          int             `json:"support_count"`
	Confidence            session.Confidence `json:"confidence"`
	VerificationRequired  bool            `json:"verification_required"`
	PointClean            string          `json:"point_clean"`
}

// Contradiction records two merged findings whose negation usage disagrees
// despite otherwise-similar text.
type Contradiction struct {
	Finding1 string   `json:"finding_1"`
	Finding2 string   `json:"finding_2"`
	Sources1 []string `json:"sources_1"`
	Sources2 []string `json:"sources_2"`
	Severity string   `json:"severity"`
}

// Result is the full output of Aggregate.
type Result struct {
	AggregatedFindings           []MergedFinding `json:"aggregated_findings"`
	TotalFindings                int             `json:"total_findings"`
	UniqueFindings                int             `json:"unique_findings"`
	DeduplicationRatio           float64         `json:"deduplication_ratio"`
	Contradictions                []Contradiction `json:"contradictions"`
	NeedsManualReview             bool            `json:"needs_manual_review"`
	FilteredDeletedFiles          int             `json:"filtered_deleted_files"`
	VerificationRequiredCount     int             `json:"verification_required_count"`
	VerificationRequiredFindings  []MergedFinding `json:"verification_required_findings"`
}
