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
	"fmt"
	"strings"
)

// FormatSummary renders a human-readable aggregation summary for non-JSON
// CLI output (used by the reduce command), including a
// verification-required section when any findings were flagged.
func FormatSummary(result Result, maxFindings int) string {
	var b strings.Builder

	fmt.Fprintln(&b, "=== DeepScan Results Summary ===")
	fmt.Fprintf(&b, "Total findings: %d\n", result.TotalFindings)
	fmt.Fprintf(&b, "Unique findings: %d\n", result.UniqueFindings)
	fmt.Fprintf(&b, "Deduplication: %.1f%%\n", result.DeduplicationRatio*100)
	b.WriteString("\n")

	if len(result.Contradictions) > 0 {
		fmt.Fprintf(&b, "%d contradictions detected\n\n", len(result.Contradictions))
	}

	if result.VerificationRequiredCount > 0 {
		fmt.Fprintf(&b, "%d findings need verification:\n", result.VerificationRequiredCount)
		b.WriteString(strings.Repeat("-", 40) + "\n")
		writeFindingList(&b, result.VerificationRequiredFindings, maxFindings)
		b.WriteString("\n")
	}

	b.WriteString("Top Findings:\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	writeFindingList(&b, result.AggregatedFindings, maxFindings)

	return b.String()
}

func writeFindingList(b *strings.Builder, findings []MergedFinding, limit int) {
	if limit > 0 && limit < len(findings) {
		findings = findings[:limit]
	}
	for i, f := range findings {
		point := f.PointClean
		if point == "" {
			point = f.Finding.Point
		}
		fmt.Fprintf(b, "%d. [%s] %s\n", i+1, f.Confidence, point)
		if f.SupportCount > 1 {
			fmt.Fprintf(b, "   (supported by %d chunks)\n", f.SupportCount)
		}
		b.WriteString("\n")
	}
}
