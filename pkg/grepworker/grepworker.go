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

// Package grepworker runs pattern search over in-memory content with a
// ReDoS heuristic pre-filter, a content size cap, and a process-isolated
// worker enforcing a hard wall-clock timeout.
package grepworker

import (
	"fmt"
	"regexp"
	"time"
)

// MaxContentBytes rejects content before any pattern is compiled.
const MaxContentBytes = 5 << 20 // 5 MiB

// DefaultMatchCap bounds the number of matches returned per call.
const DefaultMatchCap = 20

// DefaultContextChars is the snippet window on either side of a match.
const DefaultContextChars = 100

// DefaultTimeout bounds how long the worker subprocess may run.
const DefaultTimeout = 10 * time.Second

// Options configures one SafeGrep call.
type Options struct {
	MatchCap     int
	ContextChars int
	Timeout      time.Duration
}

// WithDefaults fills unset fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.MatchCap <= 0 {
		o.MatchCap = DefaultMatchCap
	}
	if o.ContextChars <= 0 {
		o.ContextChars = DefaultContextChars
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Match is one pattern hit, with a surrounding snippet for display.
type Match struct {
	Text    string `json:"match"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Snippet string `json:"snippet"`
}

// ErrContentTooLarge names alternatives, per spec.md §4.4 step 2.
type ErrContentTooLarge struct {
	Size int
}

func (e *ErrContentTooLarge) Error() string {
	return fmt.Sprintf(
		"content (%d bytes) exceeds the %d byte grep limit; narrow the search with a file-scoped grep, lazy mode, or targeted mode",
		e.Size, MaxContentBytes,
	)
}

// searchInProcess compiles pattern (already screened) and collects up to
// opts.MatchCap matches with surrounding context. It is called both
// directly by tests and from inside the worker subprocess.
func searchInProcess(pattern, content string, opts Options) ([]Match, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	var matches []Match
	for _, loc := range re.FindAllStringIndex(content, -1) {
		if len(matches) >= opts.MatchCap {
			break
		}
		start, end := loc[0], loc[1]
		ctxStart := start - opts.ContextChars
		if ctxStart < 0 {
			ctxStart = 0
		}
		ctxEnd := end + opts.ContextChars
		if ctxEnd > len(content) {
			ctxEnd = len(content)
		}
		matches = append(matches, Match{
			Text:    content[start:end],
			Start:   start,
			End:     end,
			Snippet: content[ctxStart:ctxEnd],
		})
	}
	return matches, nil
}
