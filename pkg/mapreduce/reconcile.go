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

package mapreduce

import "github.com/kraklabs/deepscan/pkg/session"

// isProvisional reports whether a status is placeholder or pending — the
// only statuses a later placeholder/pending result is allowed to replace.
func isProvisional(s session.ChunkStatus) bool {
	return s == session.StatusPlaceholder || s == session.StatusPending
}

// ReconcileResults folds incoming results into existing, one chunk id at a
// time: a real result (completed, partial, or failed) replaces every prior
// entry for that chunk id unconditionally — this is what lets an escalation
// retry overwrite a previous failed with a later success. A placeholder or
// pending result only replaces prior placeholder/pending entries, so it can
// never regress an already-real result back to provisional.
func ReconcileResults(existing []session.ChunkResult, incoming []session.ChunkResult) []session.ChunkResult {
	out := make([]session.ChunkResult, 0, len(existing)+len(incoming))
	out = append(out, existing...)

	for _, in := range incoming {
		if isProvisional(in.Status) {
			filtered := out[:0]
			for _, e := range out {
				if e.ChunkID == in.ChunkID && isProvisional(e.Status) {
					continue
				}
				filtered = append(filtered, e)
			}
			out = filtered
		} else {
			filtered := out[:0]
			for _, e := range out {
				if e.ChunkID == in.ChunkID {
					continue
				}
				filtered = append(filtered, e)
			}
			out = filtered
		}
		out = append(out, in)
	}
	return out
}
