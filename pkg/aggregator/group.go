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

import "strings"

// buildTokenIndex maps each significant token (lower-cased, length ≥ 3,
// taken from the first five whitespace-separated words of point_clean) to
// the indices of findings that carry it, enabling O(n) blocking instead of
// an O(n^2) all-pairs comparison.
func buildTokenIndex(findings []findingRecord) map[string][]int {
	index := make(map[string][]int)
	for i, f := range findings {
		for _, tok := range leadingTokens(f.pointClean) {
			index[tok] = append(index[tok], i)
		}
	}
	return index
}

// leadingTokens lower-cases and splits s on whitespace, keeping at most the
// first five tokens of length ≥ 3.
func leadingTokens(s string) []string {
	words := strings.Fields(strings.ToLower(s))
	if len(words) > 5 {
		words = words[:5]
	}
	var out []string
	for _, w := range words {
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

// canBeSimilar is the cheap pre-filter run before the expensive ratio
// computation: a length-ratio floor and a shared-token requirement.
func canBeSimilar(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return la == lb
	}
	lo, hi := la, lb
	if lo > hi {
		lo, hi = hi, lo
	}
	if float64(lo)/float64(hi) < 0.5 {
		return false
	}

	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) > 0 && len(tb) > 0 && !setsOverlap(ta, tb) {
		return false
	}
	return true
}

func tokenSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	if len(words) > 5 {
		words = words[:5]
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func setsOverlap(a, b map[string]bool) bool {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if big[k] {
			return true
		}
	}
	return false
}

// groupBySimilarity forms near-duplicate clusters using token-blocked
// candidate generation followed by the length-ratio/token-overlap gate and
// finally the full Ratcliff/Obershelp ratio, greedily consuming each
// finding into at most one group.
func groupBySimilarity(findings []findingRecord, threshold float64) [][]findingRecord {
	if len(findings) <= 1 {
		groups := make([][]findingRecord, len(findings))
		for i, f := range findings {
			groups[i] = []findingRecord{f}
		}
		return groups
	}

	index := buildTokenIndex(findings)
	used := make(map[int]bool, len(findings))
	var groups [][]findingRecord

	for i, f1 := range findings {
		if used[i] {
			continue
		}
		group := []findingRecord{f1}
		used[i] = true
		text1 := f1.pointClean

		candidates := make(map[int]bool)
		for _, tok := range leadingTokens(text1) {
			for _, j := range index[tok] {
				candidates[j] = true
			}
		}
		delete(candidates, i)

		for j := range candidates {
			if used[j] {
				continue
			}
			f2 := findings[j]
			text2 := f2.pointClean
			if !canBeSimilar(text1, text2) {
				continue
			}
			if ratio(strings.ToLower(text1), strings.ToLower(text2)) >= threshold {
				group = append(group, f2)
				used[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}
