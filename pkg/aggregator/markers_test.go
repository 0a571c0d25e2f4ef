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

package aggregator

import "testing"

func TestParseFinalMarkers_RecognizesEachKind(t *testing.T) {
	cases := []struct {
		body string
		want MarkerType
	}{
		{`FINAL({"answer": 42})`, MarkerFinal},
		{`FINAL_VAR(summary)`, MarkerFinalVar},
		{`NEEDS_MORE("need the caller's context")`, MarkerNeedsMore},
		{`UNABLE("query is out of scope")`, MarkerUnable},
		{`just some prose with no marker`, MarkerNone},
	}
	for _, c := range cases {
		got := ParseFinalMarkers(c.body).Type
		if got != c.want {
			t.Errorf("ParseFinalMarkers(%q).Type = %v, want %v", c.body, got, c.want)
		}
	}
}

func TestParseFinalMarkers_OnlyFirstMarkerWins(t *testing.T) {
	body := `some reasoning text NEEDS_MORE("context needed") then later FINAL({"x":1})`
	got := ParseFinalMarkers(body)
	if got.Type != MarkerNeedsMore {
		t.Fatalf("first marker should win, got %v", got.Type)
	}
	if got.Reason != "context needed" {
		t.Fatalf("Reason = %q, want %q", got.Reason, "context needed")
	}
}

func TestHasFinalMarker_TrueForEveryMarkerKind(t *testing.T) {
	bodies := []string{
		`FINAL({})`,
		`FINAL_VAR(x)`,
		`NEEDS_MORE("r")`,
		`UNABLE("r")`,
	}
	for _, b := range bodies {
		if !HasFinalMarker(b) {
			t.Errorf("HasFinalMarker(%q) = false, want true", b)
		}
	}
}

func TestExtractFinalAnswer_FinalVarLooksUpVariable(t *testing.T) {
	marker := ParseFinalMarkers(`FINAL_VAR(result)`)
	vars := map[string]string{"result": `{"ok":true}`}
	got, err := ExtractFinalAnswer(marker, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("got %q, want the looked-up variable value", got)
	}
}

func TestExtractFinalAnswer_UnknownVariableErrors(t *testing.T) {
	marker := ParseFinalMarkers(`FINAL_VAR(missing)`)
	_, err := ExtractFinalAnswer(marker, map[string]string{})
	if err == nil {
		t.Fatalf("expected an error for an unknown FINAL_VAR name")
	}
}
