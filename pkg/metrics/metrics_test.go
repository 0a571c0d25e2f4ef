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

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kraklabs/deepscan/pkg/session"
)

func TestRecordChunkResult_IgnoresProvisionalStatuses(t *testing.T) {
	before := testutil.ToFloat64(ChunksProcessed.WithLabelValues(string(session.StatusPlaceholder)))
	RecordChunkResult(session.StatusPlaceholder)
	RecordChunkResult(session.StatusPending)
	after := testutil.ToFloat64(ChunksProcessed.WithLabelValues(string(session.StatusPlaceholder)))

	if before != after {
		t.Fatalf("placeholder/pending statuses should not be recorded as processed chunks")
	}
}

func TestRecordChunkResult_CountsTerminalStatuses(t *testing.T) {
	before := testutil.ToFloat64(ChunksProcessed.WithLabelValues(string(session.StatusCompleted)))
	RecordChunkResult(session.StatusCompleted)
	after := testutil.ToFloat64(ChunksProcessed.WithLabelValues(string(session.StatusCompleted)))

	if after != before+1 {
		t.Fatalf("completed count = %f, want %f", after, before+1)
	}
}

func TestRecordBatch_ClassifiesByFailureRate(t *testing.T) {
	successBefore := testutil.ToFloat64(Batches.WithLabelValues("success"))
	failureBefore := testutil.ToFloat64(Batches.WithLabelValues("failure"))

	RecordBatch(8, 2) // 20% failure -> success
	RecordBatch(2, 8) // 80% failure -> failure

	successAfter := testutil.ToFloat64(Batches.WithLabelValues("success"))
	failureAfter := testutil.ToFloat64(Batches.WithLabelValues("failure"))

	if successAfter != successBefore+1 {
		t.Fatalf("success count = %f, want %f", successAfter, successBefore+1)
	}
	if failureAfter != failureBefore+1 {
		t.Fatalf("failure count = %f, want %f", failureAfter, failureBefore+1)
	}
}

func TestNewServer_ExposesMetricsRoute(t *testing.T) {
	s := NewServer(":0")
	if s.httpServer.Handler == nil {
		t.Fatal("expected a configured handler")
	}
}
