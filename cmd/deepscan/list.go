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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/deepscan/internal/ui"
)

func runList(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	_ = fs.Parse(args)

	mgr, cancelMgr, err := newSessionManager(cacheRoot)
	if err != nil {
		fail(err)
		return
	}
	defer cancelMgr.Reset()

	summaries, err := mgr.List()
	if err != nil {
		fail(err)
		return
	}

	if globals.JSON {
		fmt.Print("[")
		for i, s := range summaries {
			if i > 0 {
				fmt.Print(",")
			}
			fmt.Printf("{\"session_id\":%q,\"phase\":%q,\"progress\":%.4f,\"query\":%q}", s.Hash, s.Phase, s.Progress, s.Query)
		}
		fmt.Println("]")
		return
	}

	if len(summaries) == 0 {
		ui.Info("No sessions found")
		return
	}
	ui.Header("Sessions")
	for _, s := range summaries {
		ui.Info(fmt.Sprintf("%s  %-12s %5.1f%%  %s", s.Hash, s.Phase, s.Progress*100, s.Query))
	}
}
