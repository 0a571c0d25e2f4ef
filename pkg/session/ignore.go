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
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreRules holds the parsed contents of a .deepscanignore file: bare
// directory names are matched against any path component, everything else
// is treated as a filepath.Match glob against the relative path.
type IgnoreRules struct {
	dirNames []string
	globs    []string
}

// ParseIgnoreFile reads .deepscanignore from contextRoot, if present.
// Blank lines and lines starting with '#' are skipped; a trailing slash is
// stripped before classification. A missing file yields empty, non-nil
// rules rather than an error.
func ParseIgnoreFile(contextRoot string) (IgnoreRules, error) {
	rules := IgnoreRules{}
	f, err := os.Open(filepath.Join(contextRoot, ".deepscanignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return rules, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSuffix(line, "/")
		if isGlobPattern(line) {
			rules.globs = append(rules.globs, line)
		} else {
			rules.dirNames = append(rules.dirNames, line)
		}
	}
	return rules, scanner.Err()
}

func isGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// Matches reports whether relPath or name should be pruned under these
// ignore rules. name is the base name being evaluated (a directory name
// for a pruned subtree, a file name for a single-file skip).
func (r IgnoreRules) Matches(relPath, name string, isDir bool) bool {
	for _, d := range r.dirNames {
		if name == d {
			return true
		}
	}
	slashPath := filepath.ToSlash(relPath)
	for _, g := range r.globs {
		if ok, _ := path.Match(g, slashPath); ok {
			return true
		}
		if ok, _ := path.Match(g, name); ok {
			return true
		}
	}
	return false
}

// CombinedPrune unions the default prune-directory set with user ignore
// rules into a single predicate suitable for walker.Options.Prune.
func CombinedPrune(defaultDirs map[string]bool, rules IgnoreRules) func(relPath, name string, isDir bool) bool {
	return func(relPath, name string, isDir bool) bool {
		if isDir && defaultDirs[name] {
			return true
		}
		return rules.Matches(relPath, name, isDir)
	}
}
