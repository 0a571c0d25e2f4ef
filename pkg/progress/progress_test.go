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

package progress

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriter_EmitAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.jsonl")
	w, err := NewWriter(path, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Emit(Event{Type: EventBatchStart, BatchIndex: 0}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := w.Emit(Event{Type: EventChunkComplete, ChunkID: "abc123"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	events, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Type != EventBatchStart || events[1].Type != EventChunkComplete {
		t.Fatalf("unexpected event types: %+v", events)
	}
}

func TestWriter_RotatesPastSizeCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.jsonl")
	w, err := NewWriter(path, 64)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	for i := 0; i < 10; i++ {
		if err := w.Emit(Event{Type: EventChunkComplete, ChunkID: "some-long-chunk-identifier-to-pad-bytes"}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected a rotated .1 file to exist: %v", err)
	}
}

func TestReadAll_MissingFileReturnsEmpty(t *testing.T) {
	events, err := ReadAll(filepath.Join(t.TempDir(), "does-not-exist.jsonl"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestReadAll_SkipsMalformedTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.jsonl")
	content := `{"type":"batch_start","ts":"2026-01-01T00:00:00Z"}` + "\n" + `{not json` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	events, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1 (malformed line skipped)", len(events))
	}
}

func TestSummarize_CountsEventKinds(t *testing.T) {
	events := []Event{
		{Type: EventBatchStart},
		{Type: EventBatchEnd, Succeeded: 3, Failed: 1},
		{Type: EventChunkComplete},
		{Type: EventChunkComplete},
		{Type: EventFinding},
		{Type: EventEscalation},
	}
	s := Summarize(events)
	if s.BatchesStarted != 1 || s.BatchesCompleted != 1 {
		t.Fatalf("batch counts wrong: %+v", s)
	}
	if s.ChunksCompleted != 2 {
		t.Fatalf("ChunksCompleted = %d, want 2", s.ChunksCompleted)
	}
	if s.FindingsEmitted != 1 || s.Escalations != 1 {
		t.Fatalf("finding/escalation counts wrong: %+v", s)
	}
	if s.LastBatchSucceeded != 3 || s.LastBatchFailed != 1 {
		t.Fatalf("last batch counts wrong: %+v", s)
	}
}
