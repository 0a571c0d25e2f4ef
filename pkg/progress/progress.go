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

// Package progress implements the append-only JSONL event log written
// during the map phase: one line per event, flushed immediately for
// `tail -f` visibility, rotated to a ".1" file once it exceeds a size cap.
package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType names one of the five event kinds the map/reduce driver emits.
type EventType string

const (
	EventBatchStart    EventType = "batch_start"
	EventBatchEnd      EventType = "batch_end"
	EventChunkComplete EventType = "chunk_complete"
	EventFinding       EventType = "finding"
	EventEscalation    EventType = "escalation"
)

// Event is one JSONL line. Fields not relevant to a given Type are omitted.
type Event struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"ts"`
	BatchIndex int       `json:"batch_index,omitempty"`
	BatchSize  int       `json:"batch_size,omitempty"`
	Mode       string    `json:"mode,omitempty"` // "parallel" | "sequential"
	ChunkID    string    `json:"chunk_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Point      string    `json:"point,omitempty"`
	Confidence string    `json:"confidence,omitempty"`
	FromModel  string    `json:"from_model,omitempty"`
	ToModel    string    `json:"to_model,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Succeeded  int       `json:"succeeded,omitempty"`
	Failed     int       `json:"failed,omitempty"`
}

// DefaultMaxSizeBytes is the rotation threshold.
const DefaultMaxSizeBytes = 10 << 20 // 10 MiB

// Writer appends events to a JSONL file, rotating it to "<path>.1"
// (overwriting any previous rotation) once it grows past MaxSizeBytes.
type Writer struct {
	mu          sync.Mutex
	path        string
	maxSize     int64
	f           *os.File
	currentSize int64
}

// NewWriter opens path in append mode, creating it and any parent
// directory if necessary.
func NewWriter(path string, maxSizeBytes int64) (*Writer, error) {
	if maxSizeBytes <= 0 {
		maxSizeBytes = DefaultMaxSizeBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{path: path, maxSize: maxSizeBytes, f: f, currentSize: info.Size()}, nil
}

// Emit appends ev as one JSON line, flushing immediately, and rotates the
// file first if it has already grown past the size cap.
func (w *Writer) Emit(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if w.currentSize >= w.maxSize {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	n, err := w.f.Write(line)
	if err != nil {
		return err
	}
	w.currentSize += int64(n)
	return w.f.Sync()
}

// rotateLocked renames the current file to "<path>.1" (clobbering any
// existing rotation) and reopens a fresh, empty file at path.
func (w *Writer) rotateLocked() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	rotated := w.path + ".1"
	if err := os.Rename(w.path, rotated); err != nil && !os.IsNotExist(err) {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.currentSize = 0
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
