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

import dserrors "github.com/kraklabs/deepscan/internal/errors"

var (
	errInvalidChunkSize = dserrors.New(
		dserrors.InvalidChunkSize,
		"Invalid Chunk Size",
		"chunk_size must be between 50000 and 300000",
		"Choose a chunk size within the supported range",
		nil,
	)
	// errInvalidChunkOverlap reuses InvalidChunkSize: the taxonomy has no
	// dedicated overlap code, and an overlap outside [0, chunk_size) is a
	// chunk-sizing validation failure in the same family.
	errInvalidChunkOverlap = dserrors.New(
		dserrors.InvalidChunkSize,
		"Invalid Chunk Overlap",
		"chunk_overlap must be non-negative and strictly less than chunk_size",
		"Lower the overlap or raise the chunk size",
		nil,
	)
	// ErrInvalidSessionHash is returned when a session hash fails the
	// ^[A-Za-z0-9_-]+$ grammar or contains a path-traversal sequence.
	ErrInvalidSessionHash = dserrors.New(
		dserrors.InvalidSessionHash,
		"Invalid Session Hash",
		"session hash must match ^[A-Za-z0-9_-]+$ and must not contain '..'",
		"Use a session hash produced by 'deepscan init'",
		nil,
	)
	// ErrSessionNotFound is returned when a named session does not exist.
	ErrSessionNotFound = dserrors.New(
		dserrors.SessionNotFound,
		"Session Not Found",
		"no session directory exists for that hash",
		"Run 'deepscan list' to see available sessions",
		nil,
	)
	// ErrContextPathNotFound is returned when the init context path does not exist.
	ErrContextPathNotFound = dserrors.New(
		dserrors.InvalidContextPath,
		"Invalid Context Path",
		"the given context path does not exist",
		"Check the path and try again",
		nil,
	)
)

// newValidationErr and newResourceErr shorten the common case of a
// one-off structured error with no wrapped cause, used throughout context
// composition and the state manager. Each call site names its own specific
// Code rather than sharing one default per category.
func newValidationErr(code dserrors.Code, title, detail, suggestion string) *dserrors.UserError {
	return dserrors.New(code, title, detail, suggestion, nil)
}

func newResourceErr(code dserrors.Code, title, detail, suggestion string) *dserrors.UserError {
	return dserrors.New(code, title, detail, suggestion, nil)
}
