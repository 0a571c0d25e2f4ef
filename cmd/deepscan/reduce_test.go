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
	"testing"

	"github.com/kraklabs/deepscan/pkg/session"
)

func TestAllPlaceholders_TrueWhenEveryResultIsProvisional(t *testing.T) {
	results := []session.ChunkResult{
		{ChunkID: "a", Status: session.StatusPlaceholder},
		{ChunkID: "b", Status: session.StatusPending},
	}
	if !allPlaceholders(results) {
		t.Fatal("expected true for all-provisional results")
	}
}

func TestAllPlaceholders_FalseWhenOneResultIsReal(t *testing.T) {
	results := []session.ChunkResult{
		{ChunkID: "a", Status: session.StatusPlaceholder},
		{ChunkID: "b", Status: session.StatusCompleted},
	}
	if allPlaceholders(results) {
		t.Fatal("expected false once a real result is present")
	}
}

func TestAllPlaceholders_TrueForEmptyResults(t *testing.T) {
	if !allPlaceholders(nil) {
		t.Fatal("expected true for an empty result set")
	}
}

func TestDeletedFilesSince_EmptyWhenNotIncremental(t *testing.T) {
	state := &session.State{
		SessionID: "abc123",
		Config:    session.Configuration{Incremental: false},
	}
	if got := deletedFilesSince(nil, state); got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}
}
