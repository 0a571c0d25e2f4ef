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
	"sort"
	"strings"

	"github.com/kraklabs/deepscan/pkg/session"
)

const needsVerificationPrefix = "NEEDS_VERIFICATION"

// Aggregate merges findings from every chunk result into a deduplicated,
// relevance-sorted result set, filtering ghost findings that reference a
// deleted file and flagging pairs of findings whose negation usage
// disagrees despite otherwise-similar text.
func Aggregate(results []session.ChunkResult, query string, deletedFiles []string, opts Options) Result {
	if opts.SimilarityThreshold == 0 {
		opts = DefaultOptions()
	}
	deletedSet := normalizeDeletedPaths(deletedFiles)

	var all []findingRecord
	filtered := 0
	for _, r := range results {
		for _, f := range r.Findings {
			if len(deletedSet) > 0 && isGhostFinding(f, r.ChunkID, deletedSet) {
				filtered++
				continue
			}
			point := f.Point
			verification := f.VerificationRequired
			if strings.HasPrefix(point, needsVerificationPrefix) {
				verification = true
				point = strings.TrimLeft(point[len(needsVerificationPrefix):], ": ")
				point = strings.TrimSpace(point)
			}
			all = append(all, findingRecord{
				finding:              f,
				sourceChunk:          r.ChunkID,
				pointClean:           point,
				verificationRequired: verification,
			})
		}
	}

	if len(all) == 0 {
		return Result{FilteredDeletedFiles: filtered}
	}

	groups := groupBySimilarity(all, opts.SimilarityThreshold)

	merged := make([]MergedFinding, 0, len(groups))
	for _, group := range groups {
		best := group[0]
		for _, f := range group[1:] {
			if f.finding.Confidence.Score() > best.finding.Confidence.Score() {
				best = f
			}
		}
		verification := false
		sources := make([]string, 0, len(group))
		for _, f := range group {
			sources = append(sources, f.sourceChunk)
			if f.verificationRequired {
				verification = true
			}
		}
		merged = append(merged, MergedFinding{
			Finding:              best.finding,
			Sources:              sources,
			SupportCount:         len(group),
			Confidence:           best.finding.Confidence,
			VerificationRequired: verification,
			PointClean:           best.pointClean,
		})
	}

	queryTokens := strings.Fields(strings.ToLower(query))
	sort.SliceStable(merged, func(i, j int) bool {
		return relevanceScore(merged[i].Finding, queryTokens) > relevanceScore(merged[j].Finding, queryTokens)
	})

	contradictions := detectContradictions(merged)

	var verificationFindings []MergedFinding
	for _, f := range merged {
		if f.VerificationRequired {
			verificationFindings = append(verificationFindings, f)
		}
	}

	return Result{
		AggregatedFindings:          merged,
		TotalFindings:               len(all),
		UniqueFindings:              len(merged),
		DeduplicationRatio:          1 - float64(len(merged))/float64(maxInt(len(all), 1)),
		Contradictions:              contradictions,
		NeedsManualReview:           len(contradictions) > 0,
		FilteredDeletedFiles:        filtered,
		VerificationRequiredCount:   len(verificationFindings),
		VerificationRequiredFindings: verificationFindings,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// normalizeDeletedPaths lower-cases and forward-slashes every deleted path
// for substring comparison against chunk ids, locations, and evidence text.
func normalizeDeletedPaths(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[normalizePath(p)] = true
	}
	return set
}

func normalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}

// isGhostFinding reports whether a finding references a deleted file via
// its chunk id, its location.file, or a path mentioned in its evidence.
func isGhostFinding(f session.Finding, chunkID string, deleted map[string]bool) bool {
	chunkNorm := normalizePath(chunkID)
	for d := range deleted {
		if strings.Contains(chunkNorm, d) {
			return true
		}
	}
	if f.Location != nil {
		if file, ok := f.Location["file"]; ok {
			locNorm := normalizePath(file)
			for d := range deleted {
				if strings.Contains(locNorm, d) {
					return true
				}
			}
		}
	}
	if f.Evidence != "" {
		evNorm := normalizePath(f.Evidence)
		for d := range deleted {
			if strings.Contains(evNorm, d) {
				return true
			}
		}
	}
	return false
}

// relevanceScore is query/finding keyword overlap divided by query token
// count; an empty query scores every finding equally relevant.
func relevanceScore(f session.Finding, queryTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 1.0
	}
	findingWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(f.Point)) {
		findingWords[w] = true
	}
	queried := make(map[string]bool, len(queryTokens))
	overlap := 0
	for _, w := range queryTokens {
		if queried[w] {
			continue
		}
		queried[w] = true
		if findingWords[w] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queried))
}

// detectContradictions flags every pair of merged findings whose points
// differ in negation-word usage (one has it, the other doesn't) and whose
// text similarity still clears the lower contradiction threshold.
func detectContradictions(merged []MergedFinding) []Contradiction {
	negationWords := []string{"no ", "not ", "never ", "without ", "n't "}
	var out []Contradiction

	for i := 0; i < len(merged); i++ {
		text1 := strings.ToLower(merged[i].Finding.Point)
		for j := i + 1; j < len(merged); j++ {
			text2 := strings.ToLower(merged[j].Finding.Point)

			len1, len2 := len(text1), len(text2)
			if len1 > 0 && len2 > 0 {
				lo, hi := len1, len2
				if lo > hi {
					lo, hi = hi, lo
				}
				if float64(lo)/float64(hi) < contradictionSimilarityThreshold {
					continue
				}
			}

			diff := false
			for _, neg := range negationWords {
				if strings.Contains(text1, neg) != strings.Contains(text2, neg) {
					diff = true
					break
				}
			}
			if !diff {
				continue
			}

			if ratio(text1, text2) > contradictionSimilarityThreshold {
				out = append(out, Contradiction{
					Finding1: merged[i].Finding.Point,
					Finding2: merged[j].Finding.Point,
					Sources1: merged[i].Sources,
					Sources2: merged[j].Sources,
					Severity: "medium",
				})
			}
		}
	}
	return out
}
