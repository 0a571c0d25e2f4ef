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

package ui

import (
	"testing"

	"github.com/fatih/color"
)

func TestInitColors_ExplicitNoColorDisablesColor(t *testing.T) {
	defer func() { color.NoColor = false }()
	InitColors(true)
	if !color.NoColor {
		t.Fatal("explicit --no-color should force color.NoColor = true")
	}
}

func TestCountText_RendersPlainDigitsWithColorDisabled(t *testing.T) {
	defer func() { color.NoColor = false }()
	color.NoColor = true

	if got := CountText(5); got != "5" {
		t.Fatalf("CountText(5) = %q, want \"5\"", got)
	}
	if got := CountText(0); got != "0" {
		t.Fatalf("CountText(0) = %q, want \"0\"", got)
	}
}

func TestLabel_ReturnsNonEmptyString(t *testing.T) {
	if Label("Status") == "" {
		t.Fatal("Label should return non-empty rendered text")
	}
}
