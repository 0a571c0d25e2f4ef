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

package main

import (
	"context"
	"testing"
)

func TestGrepHelper_RejectsWrongArgCount(t *testing.T) {
	if _, err := grepHelper(context.Background(), []any{"pattern"}); err == nil {
		t.Fatal("expected an error for a single argument")
	}
}

func TestGrepHelper_RejectsNonStringArgs(t *testing.T) {
	if _, err := grepHelper(context.Background(), []any{1, "content"}); err == nil {
		t.Fatal("expected an error for a non-string pattern")
	}
}

func TestGrepHelper_FindsMatchInContent(t *testing.T) {
	result, err := grepHelper(context.Background(), []any{"hello", "hello world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, ok := result.([]any)
	if !ok || len(matches) != 1 {
		t.Fatalf("expected one match, got %#v", result)
	}
}

func TestGrepHelper_ReturnsEmptyForNoMatch(t *testing.T) {
	result, err := grepHelper(context.Background(), []any{"xyz", "hello world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, ok := result.([]any)
	if !ok || len(matches) != 0 {
		t.Fatalf("expected zero matches, got %#v", result)
	}
}
