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

	"github.com/kraklabs/deepscan/pkg/session"
)

func TestEscalationBudget_RejectsIneligibleFailureTypes(t *testing.T) {
	b := NewEscalationBudget(0.5, 10.0)
	b.SetTotalChunks(10)

	result := session.ChunkResult{Status: session.StatusFailed, FailureType: session.FailureTimeout, Attempt: 3}
	if b.CanEscalate(result) {
		t.Fatal("timeout failures must never be escalation-eligible")
	}
}

func TestEscalationBudget_RejectsFirstAttempt(t *testing.T) {
	b := NewEscalationBudget(0.5, 10.0)
	b.SetTotalChunks(10)

	result := session.ChunkResult{Status: session.StatusFailed, FailureType: session.FailureQualityLow, Attempt: 1}
	if b.CanEscalate(result) {
		t.Fatal("a chunk on its first attempt must not be escalation-eligible")
	}
}

func TestEscalationBudget_AllowsEligibleSecondAttempt(t *testing.T) {
	b := NewEscalationBudget(0.5, 10.0)
	b.SetTotalChunks(10)

	result := session.ChunkResult{Status: session.StatusFailed, FailureType: session.FailureComplexity, Attempt: 2}
	if !b.CanEscalate(result) {
		t.Fatal("a complexity failure on its second attempt with budget headroom should be eligible")
	}
}

func TestEscalationBudget_StopsAtRatioLimit(t *testing.T) {
	b := NewEscalationBudget(0.1, 100.0)
	b.SetTotalChunks(10)
	result := session.ChunkResult{Status: session.StatusFailed, FailureType: session.FailureQualityLow, Attempt: 2}

	if !b.CanEscalate(result) {
		t.Fatal("first escalation should fit within a 10% ratio of 10 chunks")
	}
	b.RecordEscalation()

	if b.CanEscalate(result) {
		t.Fatal("a second escalation would exceed the 10% ratio limit and must be rejected")
	}
}

func TestEscalationBudget_StopsAtCostLimit(t *testing.T) {
	b := NewEscalationBudget(1.0, perEscalationCostUSD)
	b.SetTotalChunks(10)
	result := session.ChunkResult{Status: session.StatusFailed, FailureType: session.FailureQualityLow, Attempt: 2}

	if !b.CanEscalate(result) {
		t.Fatal("first escalation should fit exactly within the cost cap")
	}
	b.RecordEscalation()

	if b.CanEscalate(result) {
		t.Fatal("a second escalation would exceed the cost cap and must be rejected")
	}
}
