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

package walker

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mustWrite := func(rel, content string) {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	mustWrite("a.txt", "a")
	mustWrite("b/c.txt", "c")
	mustWrite("node_modules/skip.js", "skip")
	return root
}

func TestWalk_SkipsPrunedDirectories(t *testing.T) {
	root := setupTree(t)
	var paths []string
	err := Walk(root, Options{Prune: DefaultShouldPrune(nil, nil)}, func(e Entry) bool {
		paths = append(paths, e.Path)
		return true
	})
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	for _, p := range paths {
		if p == "node_modules" {
			t.Errorf("expected node_modules to be pruned, got it in results: %v", paths)
		}
	}
	if len(paths) != 3 {
		t.Errorf("expected 3 entries (a.txt, b, b/c.txt), got %d: %v", len(paths), paths)
	}
}

func TestWalk_DirsBeforeFiles(t *testing.T) {
	root := setupTree(t)
	var first Entry
	seen := false
	_ = Walk(root, Options{Prune: DefaultShouldPrune(nil, nil)}, func(e Entry) bool {
		if !seen {
			first = e
			seen = true
		}
		return true
	})
	if !first.IsDir {
		t.Errorf("expected first entry to be a directory, got %q (dir=%v)", first.Path, first.IsDir)
	}
}

func TestWalk_RespectsMaxEntries(t *testing.T) {
	root := setupTree(t)
	count := 0
	_ = Walk(root, Options{MaxEntries: 1, Prune: DefaultShouldPrune(nil, nil)}, func(e Entry) bool {
		count++
		return true
	})
	if count != 1 {
		t.Errorf("expected exactly 1 entry with MaxEntries=1, got %d", count)
	}
}

func TestDefaultShouldPrune_Globs(t *testing.T) {
	prune := DefaultShouldPrune(nil, []string{"*.min.js"})
	if !prune("dist/app.min.js", "app.min.js", false) {
		t.Errorf("expected app.min.js to be pruned by glob")
	}
	if prune("dist/app.js", "app.js", false) {
		t.Errorf("did not expect app.js to be pruned")
	}
}
