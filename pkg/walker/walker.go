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

// Package walker provides a lazy, symlink-safe directory traversal with a
// prune predicate, used by the session manager and the incremental hash
// manifest to enumerate context files.
package walker

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultPruneDirs are directory names skipped by default during traversal,
// unioned with any user-supplied ignore rules.
var DefaultPruneDirs = map[string]bool{
	"node_modules": true, ".git": true, ".svn": true, ".hg": true,
	"__pycache__": true, ".venv": true, "venv": true, ".env": true,
	"env": true, ".tox": true, ".pytest_cache": true, ".mypy_cache": true,
	".ruff_cache": true, "dist": true, "build": true, ".next": true,
	".nuxt": true, "target": true, "vendor": true,
}

// Entry describes one filesystem object encountered during a walk.
type Entry struct {
	Path    string // path relative to the walk root
	Name    string // base name
	IsDir   bool
	Size    int64
	ModTime time.Time // UTC
	Depth   int
}

// Options configures a walk.
type Options struct {
	MaxDepth   int // 0 = unlimited
	MaxEntries int // 0 = unlimited
	Prune      func(relPath string, name string, isDir bool) bool
	Logger     *slog.Logger
}

// Walk traverses root depth-first, yielding Entry values to fn. It stops
// early (without error) if fn returns false or the entry limit is reached.
// Symlinks are never followed; a symlink to a directory is reported as a
// leaf entry. Permission and other OS errors on a subtree are logged and
// that subtree is skipped — they never abort the walk.
func Walk(root string, opts Options, fn func(Entry) bool) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	count := 0
	var rec func(dir string, relDir string, depth int) bool
	rec = func(dir, relDir string, depth int) bool {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Debug("walker.skip_subtree", "path", dir, "error", err)
			return true
		}

		type candidate struct {
			de   fs.DirEntry
			name string
		}
		kept := make([]candidate, 0, len(entries))
		for _, de := range entries {
			name := de.Name()
			relPath := name
			if relDir != "" {
				relPath = relDir + "/" + name
			}
			isDir := de.IsDir()
			if opts.Prune != nil && opts.Prune(relPath, name, isDir) {
				continue
			}
			kept = append(kept, candidate{de, relPath})
		}

		sort.Slice(kept, func(i, j int) bool {
			di, dj := kept[i].de.IsDir(), kept[j].de.IsDir()
			if di != dj {
				return di // directories first
			}
			return strings.ToLower(kept[i].de.Name()) < strings.ToLower(kept[j].de.Name())
		})

		for _, c := range kept {
			info, err := c.de.Info()
			if err != nil {
				logger.Debug("walker.stat_failed", "path", c.name, "error", err)
				continue
			}
			isSymlink := info.Mode()&os.ModeSymlink != 0
			isDir := c.de.IsDir() && !isSymlink

			e := Entry{
				Path:    c.name,
				Name:    c.de.Name(),
				IsDir:   isDir,
				Size:    info.Size(),
				ModTime: info.ModTime().UTC(),
				Depth:   depth,
			}
			if !fn(e) {
				return false
			}
			count++
			if opts.MaxEntries > 0 && count >= opts.MaxEntries {
				return false
			}

			if isDir && (opts.MaxDepth <= 0 || depth < opts.MaxDepth) {
				if !rec(filepath.Join(dir, c.de.Name()), c.name, depth+1) {
					return false
				}
			}
		}
		return true
	}
	rec(root, "", 0)
	return nil
}

// DefaultShouldPrune builds a Prune predicate from the default prune set
// unioned with custom directory names and glob patterns.
func DefaultShouldPrune(customDirs map[string]bool, customGlobs []string) func(relPath, name string, isDir bool) bool {
	return func(relPath, name string, isDir bool) bool {
		if isDir {
			if DefaultPruneDirs[name] || customDirs[name] {
				return true
			}
		}
		for _, g := range customGlobs {
			if ok, _ := filepath.Match(g, relPath); ok {
				return true
			}
			if ok, _ := filepath.Match(g, name); ok {
				return true
			}
		}
		return false
	}
}

const (
	treeBranch  = "├── "
	treeLast    = "└── "
	treeVertical = "│   "
	treeEmpty   = "    "
	// DefaultTreeViewLimit caps the number of rendered lines to keep the
	// ASCII renderer usable on very large trees.
	DefaultTreeViewLimit = 10000
)

// RenderTree produces an ASCII tree rendering of root, honoring opts.Prune,
// and appends a summary line. Rendering stops after DefaultTreeViewLimit
// lines as a safety cap, or after opts.MaxEntries lines when that is set.
func RenderTree(root string, opts Options) string {
	var b strings.Builder
	fileCount, dirCount, lines := 0, 0, 0

	var rec func(dir, relDir, prefix string, depth int)
	atLimit := func() bool {
		return lines >= DefaultTreeViewLimit || (opts.MaxEntries > 0 && lines >= opts.MaxEntries)
	}
	rec = func(dir, relDir, prefix string, depth int) {
		if atLimit() {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		type candidate struct {
			de   fs.DirEntry
			name string
		}
		kept := make([]candidate, 0, len(entries))
		for _, de := range entries {
			name := de.Name()
			relPath := name
			if relDir != "" {
				relPath = relDir + "/" + name
			}
			if opts.Prune != nil && opts.Prune(relPath, name, de.IsDir()) {
				continue
			}
			kept = append(kept, candidate{de, relPath})
		}
		sort.Slice(kept, func(i, j int) bool {
			di, dj := kept[i].de.IsDir(), kept[j].de.IsDir()
			if di != dj {
				return di
			}
			return strings.ToLower(kept[i].de.Name()) < strings.ToLower(kept[j].de.Name())
		})

		for i, c := range kept {
			if atLimit() {
				return
			}
			isLast := i == len(kept)-1
			connector := treeBranch
			nextPrefix := prefix + treeVertical
			if isLast {
				connector = treeLast
				nextPrefix = prefix + treeEmpty
			}
			b.WriteString(prefix)
			b.WriteString(connector)
			b.WriteString(c.de.Name())
			if c.de.IsDir() {
				b.WriteString("/")
				dirCount++
			} else {
				fileCount++
			}
			b.WriteString("\n")
			lines++

			if c.de.IsDir() && (opts.MaxDepth <= 0 || depth < opts.MaxDepth) {
				rec(filepath.Join(dir, c.de.Name()), c.name, nextPrefix, depth+1)
			}
		}
	}
	rec(root, "", "", 0)
	b.WriteString("\n")
	b.WriteString(formatTreeSummary(dirCount, fileCount))
	return b.String()
}

func formatTreeSummary(dirCount, fileCount int) string {
	return pluralize(dirCount, "directory", "directories") + ", " + pluralize(fileCount, "file", "files")
}

func pluralize(n int, singular, plural string) string {
	word := plural
	if n == 1 {
		word = singular
	}
	return strconv.Itoa(n) + " " + word
}

// FormatSize renders a byte count in human-readable form (KB, MB, GB).
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.1f%s", float64(bytes)/float64(div), units[exp])
}
