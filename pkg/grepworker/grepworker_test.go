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

package grepworker

import (
	"strings"
	"testing"
)

func TestScreenPattern_RejectsKnownRedosShapes(t *testing.T) {
	bad := []string{
		`(a+)+`,
		`(a*)*`,
		`(?:abc)+`,
	}
	for _, p := range bad {
		if err := ScreenPattern(p); err == nil {
			t.Errorf("expected ScreenPattern(%q) to reject", p)
		}
	}
}

func TestScreenPattern_AllowsOrdinaryPatterns(t *testing.T) {
	good := []string{`foo.*bar`, `^TODO:`, `[a-z]+\d{2,4}`}
	for _, p := range good {
		if err := ScreenPattern(p); err != nil {
			t.Errorf("expected ScreenPattern(%q) to pass, got %v", p, err)
		}
	}
}

func TestSearchInProcess_FindsMatchesWithContext(t *testing.T) {
	content := "alpha beta TODO: fix this gamma delta"
	matches, err := searchInProcess(`TODO:\s*\w+`, content, Options{}.WithDefaults())
	if err != nil {
		t.Fatalf("searchInProcess: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if !strings.Contains(matches[0].Snippet, "beta") {
		t.Errorf("expected snippet to include surrounding context, got %q", matches[0].Snippet)
	}
}

func TestSearchInProcess_RespectsMatchCap(t *testing.T) {
	content := strings.Repeat("x ", 100)
	opts := Options{MatchCap: 3}.WithDefaults()
	matches, err := searchInProcess(`x`, content, opts)
	if err != nil {
		t.Fatalf("searchInProcess: %v", err)
	}
	if len(matches) != 3 {
		t.Errorf("expected match cap of 3, got %d", len(matches))
	}
}

func TestSafeGrep_RejectsOversizedContent(t *testing.T) {
	huge := strings.Repeat("a", MaxContentBytes+1)
	_, err := SafeGrep(nil, "a", huge, Options{}) //nolint:staticcheck // nil ctx acceptable: rejected before any ctx use
	if _, ok := err.(*ErrContentTooLarge); !ok {
		t.Errorf("expected *ErrContentTooLarge, got %T: %v", err, err)
	}
}

func TestSafeGrep_RejectsSuspiciousPatternBeforeContentCheck(t *testing.T) {
	_, err := SafeGrep(nil, `(a+)+`, "anything", Options{}) //nolint:staticcheck
	if _, ok := err.(*ErrSuspiciousPattern); !ok {
		t.Errorf("expected *ErrSuspiciousPattern, got %T: %v", err, err)
	}
}
