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

package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	dserrors "github.com/kraklabs/deepscan/internal/errors"
	"github.com/kraklabs/deepscan/pkg/walker"
)

// MaxFileBytes is the per-file size cap enforced when composing context.
const MaxFileBytes = 10 << 20 // 10 MiB

// MaxTotalContextBytes bounds the sum of every entry (headers, footers,
// and file content alike) composed into one context string.
const MaxTotalContextBytes = 50 << 20 // 50 MiB

// ComposedContext is the result of composing a session's source material,
// shaped differently depending on ScanMode.
type ComposedContext struct {
	Text      string   // full/targeted: concatenated file entries; lazy: tree view
	FileCount int
	TotalSize int
	Files     []string // relative paths actually included (empty for lazy)
}

// ErrLazyModeRequiresContext is raised by any helper that needs loaded file
// content while the session is in lazy mode.
var ErrLazyModeRequiresContext = newValidationErr(
	dserrors.InvalidScanMode,
	"Lazy Mode Has No Loaded Content",
	"this operation requires file content, but the session was started in lazy mode",
	"Re-run 'deepscan init' with --scan-mode full or --scan-mode targeted, or use the grep/read helpers that fetch content on demand",
)

// entrySize computes the header/footer wrapping used by full and targeted
// mode and the total byte count they contribute, so the size cap is
// accounted identically regardless of mode.
func entrySize(relPath, content string) (header, footer string, total int) {
	header = fmt.Sprintf("=== FILE: %s ===\n", relPath)
	footer = "\n\n"
	return header, footer, len(header) + len(content) + len(footer)
}

// ComposeFull concatenates every non-pruned, non-symlink file under root,
// each wrapped in a header/footer, subject to the per-file and
// total-context caps.
func ComposeFull(root string, prune func(relPath, name string, isDir bool) bool) (ComposedContext, error) {
	var out ComposedContext
	var b strings.Builder

	err := walker.Walk(root, walker.Options{Prune: prune}, func(e walker.Entry) bool {
		if e.IsDir {
			return true
		}
		full := filepath.Join(root, e.Path)
		if isSymlink(full) {
			return true
		}
		content, size, err := readCapped(full)
		if err != nil {
			return true
		}
		if size > MaxFileBytes {
			return true // skip oversized files rather than fail the whole scan
		}
		header, footer, entryTotal := entrySize(e.Path, content)
		if out.TotalSize+entryTotal > MaxTotalContextBytes {
			return false // stop walking once the total cap would be exceeded
		}
		b.WriteString(header)
		b.WriteString(content)
		b.WriteString(footer)
		out.TotalSize += entryTotal
		out.FileCount++
		out.Files = append(out.Files, e.Path)
		return true
	})
	out.Text = b.String()
	return out, err
}

// ComposeLazy renders a tree view and loads no file content; any helper
// that subsequently needs content must surface ErrLazyModeRequiresContext.
func ComposeLazy(root string, depth, fileLimit int) (ComposedContext, error) {
	opts := walker.Options{MaxDepth: depth, MaxEntries: fileLimit}
	tree := walker.RenderTree(root, opts)
	return ComposedContext{Text: tree}, nil
}

// ComposeTargeted loads only the listed paths (files or directories),
// de-duplicating overlapping targets and refusing symlinks outright.
func ComposeTargeted(root string, targets []string, prune func(relPath, name string, isDir bool) bool) (ComposedContext, error) {
	var out ComposedContext
	var b strings.Builder
	seen := make(map[string]bool)

	ordered := append([]string{}, targets...)
	sort.Strings(ordered)

	addFile := func(relPath string) error {
		if seen[relPath] {
			return nil
		}
		full := filepath.Join(root, relPath)
		if isSymlink(full) {
			return newValidationErr(dserrors.InvalidContextPath, "Symlink Target Refused", fmt.Sprintf("target %q is a symlink", relPath), "Point to the real file instead of a symlink")
		}
		content, size, err := readCapped(full)
		if err != nil {
			return err
		}
		if size > MaxFileBytes {
			return newResourceErr(dserrors.ContentTooLarge, "File Too Large", fmt.Sprintf("%q is %d bytes, exceeding the %d byte per-file limit", relPath, size, MaxFileBytes), "Target a smaller file or use lazy mode")
		}
		header, footer, entryTotal := entrySize(relPath, content)
		if out.TotalSize+entryTotal > MaxTotalContextBytes {
			return newResourceErr(dserrors.ContentTooLarge, "Context Too Large", "the targeted set exceeds the total context size limit", "Target fewer files")
		}
		b.WriteString(header)
		b.WriteString(content)
		b.WriteString(footer)
		out.TotalSize += entryTotal
		out.FileCount++
		out.Files = append(out.Files, relPath)
		seen[relPath] = true
		return nil
	}

	for _, target := range ordered {
		full := filepath.Join(root, target)
		info, err := os.Lstat(full)
		if err != nil {
			return out, newValidationErr(dserrors.InvalidContextPath, "Invalid Target", fmt.Sprintf("target %q does not exist", target), "Check the path and try again")
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return out, newValidationErr(dserrors.InvalidContextPath, "Symlink Target Refused", fmt.Sprintf("target %q is a symlink", target), "Point to the real file or directory instead of a symlink")
		}
		if !info.IsDir() {
			if err := addFile(target); err != nil {
				return out, err
			}
			continue
		}
		var addErr error
		err = walker.Walk(full, walker.Options{Prune: prune}, func(e walker.Entry) bool {
			if e.IsDir {
				return true
			}
			rel := filepath.Join(target, e.Path)
			if err := addFile(rel); err != nil {
				addErr = err
				return false
			}
			return true
		})
		if err == nil {
			err = addErr
		}
		if err != nil {
			return out, err
		}
	}
	out.Text = b.String()
	return out, nil
}

func readCapped(path string) (string, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	return string(data), int(info.Size()), nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}
