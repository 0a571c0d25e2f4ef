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
	"path/filepath"
	"reflect"
	"testing"
)

func TestExpandShortcut_QuestionMarkBecomesStatus(t *testing.T) {
	got := expandShortcut([]string{"deepscan", "?"})
	want := []string{"deepscan", "status"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandShortcut() = %v, want %v", got, want)
	}
}

func TestExpandShortcut_BangExpandsToExecDashC(t *testing.T) {
	got := expandShortcut([]string{"deepscan", "!", "1 + 1"})
	want := []string{"deepscan", "exec", "-c", "1 + 1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandShortcut() = %v, want %v", got, want)
	}
}

func TestExpandShortcut_PlusExpandsToResumeWithOptionalHash(t *testing.T) {
	got := expandShortcut([]string{"deepscan", "+", "abc123"})
	want := []string{"deepscan", "resume", "abc123"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandShortcut() = %v, want %v", got, want)
	}

	got = expandShortcut([]string{"deepscan", "+"})
	want = []string{"deepscan", "resume"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandShortcut() = %v, want %v", got, want)
	}
}

func TestExpandShortcut_XExpandsToAbort(t *testing.T) {
	got := expandShortcut([]string{"deepscan", "x", "abc123"})
	want := []string{"deepscan", "abort", "abc123"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandShortcut() = %v, want %v", got, want)
	}
}

func TestExpandShortcut_ExistingPathBecomesInit(t *testing.T) {
	dir := t.TempDir()
	got := expandShortcut([]string{"deepscan", dir, "-q", "find bugs"})
	want := []string{"deepscan", "init", dir, "-q", "find bugs"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandShortcut() = %v, want %v", got, want)
	}
}

func TestExpandShortcut_OrdinaryCommandIsUntouched(t *testing.T) {
	got := expandShortcut([]string{"deepscan", "status", "--json"})
	want := []string{"deepscan", "status", "--json"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandShortcut() = %v, want %v", got, want)
	}
}

func TestDefaultCacheRoot_AppendsDotDeepscanToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got := defaultCacheRoot()
	want := filepath.Join(home, ".deepscan")
	if got != want {
		t.Fatalf("defaultCacheRoot() = %q, want %q", got, want)
	}
}
