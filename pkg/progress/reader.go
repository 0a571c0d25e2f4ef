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
	"bufio"
	"encoding/json"
	"os"
)

// ReadAll reads every well-formed event from path, skipping any trailing
// malformed line rather than failing the whole read (a progress log may be
// read while a concurrent writer is mid-line).
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// Summary aggregates the batch/chunk/finding/escalation counts in events,
// used by `deepscan status` and the one-shot `deepscan progress` form.
type Summary struct {
	BatchesStarted    int
	BatchesCompleted  int
	ChunksCompleted   int
	FindingsEmitted   int
	Escalations       int
	LastBatchSucceeded int
	LastBatchFailed    int
}

// Summarize folds events into a Summary.
func Summarize(events []Event) Summary {
	var s Summary
	for _, ev := range events {
		switch ev.Type {
		case EventBatchStart:
			s.BatchesStarted++
		case EventBatchEnd:
			s.BatchesCompleted++
			s.LastBatchSucceeded = ev.Succeeded
			s.LastBatchFailed = ev.Failed
		case EventChunkComplete:
			s.ChunksCompleted++
		case EventFinding:
			s.FindingsEmitted++
		case EventEscalation:
			s.Escalations++
		}
	}
	return s
}
