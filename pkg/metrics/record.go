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

package metrics

import "github.com/kraklabs/deepscan/pkg/session"

// RecordChunkResult increments ChunksProcessed for a terminal chunk status.
// Placeholder and pending statuses are not terminal and are not recorded.
func RecordChunkResult(status session.ChunkStatus) {
	switch status {
	case session.StatusCompleted, session.StatusPartial, session.StatusFailed:
		ChunksProcessed.WithLabelValues(string(status)).Inc()
	}
}

// RecordBatch increments Batches for a batch whose failure rate classifies
// it as a success or a failure (>50% failed chunks).
func RecordBatch(succeeded, failed int) {
	result := "success"
	total := succeeded + failed
	if total > 0 && float64(failed)/float64(total) > 0.5 {
		result = "failure"
	}
	Batches.WithLabelValues(result).Inc()
}

// RecordEscalation increments Escalations by one.
func RecordEscalation() {
	Escalations.Inc()
}

// RecordCancellation increments Cancellations for "graceful" or "forced".
func RecordCancellation(kind string) {
	Cancellations.WithLabelValues(kind).Inc()
}
