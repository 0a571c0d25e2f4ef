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
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	dserrors "github.com/kraklabs/deepscan/internal/errors"
	"github.com/kraklabs/deepscan/internal/ui"
)

func runExportResults(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("export-results", flag.ExitOnError)
	_ = fs.Parse(args)
	rest := fs.Args()
	if len(rest) == 0 {
		fail(fmt.Errorf("export-results requires a destination path argument"))
		return
	}
	destPath := rest[0]

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

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		fail(dserrors.New(dserrors.InternalError, "Export Failed", err.Error(), "", err))
		return
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		code := dserrors.PathNotFound
		if os.IsPermission(err) {
			code = dserrors.PermissionDenied
		}
		fail(dserrors.New(code, "Export Failed", err.Error(), "Check that the destination directory exists and is writable", err))
		return
	}

	if globals.JSON {
		fmt.Printf("{\"session_id\":%q,\"path\":%q}\n", hash, destPath)
		return
	}
	ui.Success(fmt.Sprintf("Exported session %s to %s", hash, destPath))
}
