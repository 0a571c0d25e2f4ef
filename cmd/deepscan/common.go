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

	dserrors "github.com/kraklabs/deepscan/internal/errors"
	"github.com/kraklabs/deepscan/pkg/cancel"
	"github.com/kraklabs/deepscan/pkg/checkpoint"
	"github.com/kraklabs/deepscan/pkg/session"
)

// newSessionManager wires a cancellation manager and a session manager
// against the same cache root, the pairing every command handler needs.
func newSessionManager(cacheRoot string) (*session.Manager, *cancel.Manager, error) {
	cm := cancel.New()
	mgr, err := session.NewManager(cacheRoot, cm)
	if err != nil {
		return nil, nil, err
	}
	return mgr, cm, nil
}

// resolveHash returns explicit if non-empty, otherwise the session
// manager's current-session marker; every command accepting an optional
// trailing hash argument goes through this.
func resolveHash(mgr *session.Manager, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	hash, err := mgr.CurrentSession()
	if err != nil {
		return "", dserrors.New(
			dserrors.SessionNotFound,
			"No Current Session",
			"no session hash was given and no current session is set",
			"Run 'deepscan init <path>' or pass a session hash explicitly",
			err,
		)
	}
	return hash, nil
}

func checkpointPath(cacheRoot, hash string) string {
	return filepath.Join(cacheRoot, hash)
}

func newCheckpointManager(cacheRoot, hash string, cm *cancel.Manager) (*checkpoint.Manager, error) {
	return checkpoint.New(hash, cacheRoot, cm)
}

func fail(err error) {
	if err == nil {
		return
	}
	dserrors.FatalError(err, globalJSON)
}

// globalJSON lets fail() report errors in the right format without every
// command handler threading GlobalFlags through error paths explicitly;
// it is set once at the top of each run* function.
var globalJSON bool
