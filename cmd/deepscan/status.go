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

func runStatus(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	mgr, cancelMgr, err := newSessionManager(cacheRoot)
	if err != nil {
		fail(err)
		return
	}
	defer cancelMgr.Reset()

	hash, err := resolveHash(mgr, "")
	if err != nil {
		fail(err)
		return
	}
	state, err := mgr.Load(hash)
	if err != nil {
		fail(err)
		return
	}

	cp, err := newCheckpointManager(cacheRoot, hash, cancelMgr)
	var info string
	if err == nil && cp.HasCheckpoint() {
		ci := cp.GetCheckpointInfo()
		info = fmt.Sprintf(", checkpoint batch %d", ci.BatchIndex)
	}

	if globals.JSON {
		fmt.Printf(
			"{\"session_id\":%q,\"phase\":%q,\"progress\":%.4f,\"chunks\":%d,\"query\":%q}\n",
			hash, state.Phase, state.ProgressPercent, len(state.Chunks), state.Query,
		)
		return
	}

	ui.Header("Session " + hash)
	ui.Info(fmt.Sprintf("Phase: %s%s", state.Phase, info))
	ui.Info(fmt.Sprintf("Progress: %s (%d chunks)", ui.CountText(int(state.ProgressPercent*100)), len(state.Chunks)))
	if state.Query != "" {
		ui.Info("Query: " + state.Query)
	}
}
