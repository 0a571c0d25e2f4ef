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
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/deepscan/internal/ui"
)

// defaultCleanMaxAgeDays is the --older-than default: sessions untouched
// for 30 days are treated as abandoned.
const defaultCleanMaxAgeDays = 30

func runClean(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	olderThan := fs.Int("older-than", defaultCleanMaxAgeDays, "Delete sessions untouched for this many days")
	_ = fs.Parse(args)

	mgr, cancelMgr, err := newSessionManager(cacheRoot)
	if err != nil {
		fail(err)
		return
	}
	defer cancelMgr.Reset()

	removed, err := mgr.Clean(time.Duration(*olderThan) * 24 * time.Hour)
	if err != nil {
		fail(err)
		return
	}

	if globals.JSON {
		fmt.Print("{\"removed\":[")
		for i, hash := range removed {
			if i > 0 {
				fmt.Print(",")
			}
			fmt.Printf("%q", hash)
		}
		fmt.Println("]}")
		return
	}

	if len(removed) == 0 {
		ui.Info("No stale sessions to remove")
		return
	}
	ui.Success(fmt.Sprintf("Removed %d stale session(s)", len(removed)))
	for _, hash := range removed {
		ui.Info("  " + hash)
	}
}
