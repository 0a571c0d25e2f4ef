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

import "github.com/kraklabs/deepscan/pkg/session"

// perEscalationCostUSD estimates the marginal cost of escalating one chunk
// to the higher-tier model, used only to gate the budget — not a billing
// record.
const perEscalationCostUSD = 0.08

// EscalationBudget tracks how much of the escalation allowance a run has
// spent, gating further escalation once either limit is reached.
type EscalationBudget struct {
	MaxRatio   float64
	MaxCostUSD float64

	totalChunks int
	escalated   int
	spentUSD    float64
}

// NewEscalationBudget builds a budget from a session's configured limits.
func NewEscalationBudget(maxRatio, maxCostUSD float64) *EscalationBudget {
	return &EscalationBudget{MaxRatio: maxRatio, MaxCostUSD: maxCostUSD}
}

// SetTotalChunks records the denominator used by the ratio check.
func (b *EscalationBudget) SetTotalChunks(n int) {
	b.totalChunks = n
}

// CanEscalate reports whether result is eligible to retry at a higher model
// tier: its failure classification must be escalation-eligible, it must
// already be on at least its second attempt, and both the escalated-fraction
// and estimated-cost limits must still have headroom.
func (b *EscalationBudget) CanEscalate(result session.ChunkResult) bool {
	if result.Status != session.StatusFailed {
		return false
	}
	if !result.FailureType.EscalationEligible() {
		return false
	}
	if result.Attempt < 2 {
		return false
	}
	if b.totalChunks > 0 && float64(b.escalated+1)/float64(b.totalChunks) > b.MaxRatio {
		return false
	}
	if b.spentUSD+perEscalationCostUSD > b.MaxCostUSD {
		return false
	}
	return true
}

// RecordEscalation charges one chunk's estimated cost against the budget.
func (b *EscalationBudget) RecordEscalation() {
	b.escalated++
	b.spentUSD += perEscalationCostUSD
}

// EscalatedCount returns how many chunks have been escalated so far.
func (b *EscalationBudget) EscalatedCount() int {
	return b.escalated
}

// SpentUSD returns the estimated cost spent on escalations so far.
func (b *EscalationBudget) SpentUSD() float64 {
	return b.spentUSD
}
