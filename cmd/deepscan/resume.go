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

// runResume sets the current-session marker, defaulting to the most
// recently updated session when no hash is given.
func runResume(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	_ = fs.Parse(args)
	rest := fs.Args()

	mgr, cancelMgr, err := newSessionManager(cacheRoot)
	if err != nil {
		fail(err)
		return
	}
	defer cancelMgr.Reset()

	hash := ""
	if len(rest) > 0 {
		hash = rest[0]
	} else {
		summaries, err := mgr.List()
		if err != nil {
			fail(err)
			return
		}
		if len(summaries) == 0 {
			fail(fmt.Errorf("no sessions exist to resume"))
			return
		}
		hash = summaries[0].Hash
	}

	if !mgr.Exists(hash) {
		fail(fmt.Errorf("session %s does not exist", hash))
		return
	}
	if err := mgr.SetCurrentSession(hash); err != nil {
		fail(err)
		return
	}

	if globals.JSON {
		fmt.Printf("{\"session_id\":%q}\n", hash)
		return
	}
	ui.Success("Resumed session " + hash)
}
