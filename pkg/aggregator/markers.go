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

import (
	"regexp"

	dserrors "github.com/kraklabs/deepscan/internal/errors"
)

// MarkerType identifies which termination marker a model response carried.
type MarkerType string

const (
	MarkerNone     MarkerType = "none"
	MarkerFinal    MarkerType = "final"
	MarkerFinalVar MarkerType = "final_var"
	MarkerNeedsMore MarkerType = "needs_more"
	MarkerUnable   MarkerType = "unable"
)

// ParsedMarker is the result of scanning a response body for a termination
// marker.
type ParsedMarker struct {
	Type    MarkerType
	JSON    string // FINAL(json) payload, verbatim
	VarName string // FINAL_VAR(name) variable name
	Reason  string // NEEDS_MORE("reason") / UNABLE("reason") text
}

var (
	finalPattern     = regexp.MustCompile(`FINAL\(([\s\S]*?)\)`)
	finalVarPattern  = regexp.MustCompile(`FINAL_VAR\(([A-Za-z_][A-Za-z0-9_]*)\)`)
	needsMorePattern = regexp.MustCompile(`NEEDS_MORE\("([^"]*)"\)`)
	unablePattern    = regexp.MustCompile(`UNABLE\("([^"]*)"\)`)
)

// ParseFinalMarkers scans body for the first occurrence (left-to-right) of
// any of the four termination markers. Only the earliest match counts, per
// spec.md §6's "Only the first marker in a response is considered."
func ParseFinalMarkers(body string) ParsedMarker {
	type candidate struct {
		start int
		kind  MarkerType
		loc   []int
	}
	var best *candidate

	consider := func(kind MarkerType, loc []int) {
		if loc == nil {
			return
		}
		if best == nil || loc[0] < best.start {
			best = &candidate{start: loc[0], kind: kind, loc: loc}
		}
	}

	consider(MarkerFinal, finalPattern.FindStringSubmatchIndex(body))
	consider(MarkerFinalVar, finalVarPattern.FindStringSubmatchIndex(body))
	consider(MarkerNeedsMore, needsMorePattern.FindStringSubmatchIndex(body))
	consider(MarkerUnable, unablePattern.FindStringSubmatchIndex(body))

	if best == nil {
		return ParsedMarker{Type: MarkerNone}
	}

	switch best.kind {
	case MarkerFinal:
		return ParsedMarker{Type: MarkerFinal, JSON: body[best.loc[2]:best.loc[3]]}
	case MarkerFinalVar:
		return ParsedMarker{Type: MarkerFinalVar, VarName: body[best.loc[2]:best.loc[3]]}
	case MarkerNeedsMore:
		return ParsedMarker{Type: MarkerNeedsMore, Reason: body[best.loc[2]:best.loc[3]]}
	default:
		return ParsedMarker{Type: MarkerUnable, Reason: body[best.loc[2]:best.loc[3]]}
	}
}

// HasFinalMarker reports whether body carries any of the four termination
// markers, satisfying testable property 7.
func HasFinalMarker(body string) bool {
	return ParseFinalMarkers(body).Type != MarkerNone
}

// ExtractFinalAnswer resolves a parsed marker to its final-answer text:
// FINAL carries its JSON payload directly; FINAL_VAR looks its name up in
// vars, returning a *dserrors.UserError with code UnknownFinalVariable on
// a miss.
func ExtractFinalAnswer(marker ParsedMarker, vars map[string]string) (string, error) {
	switch marker.Type {
	case MarkerFinal:
		return marker.JSON, nil
	case MarkerFinalVar:
		val, ok := vars[marker.VarName]
		if !ok {
			return "", &dserrors.UserError{
				Code:       dserrors.UnknownFinalVariable,
				Title:      dserrors.UnknownFinalVariable.Title,
				Detail:     "FINAL_VAR referenced an undefined variable name: " + marker.VarName,
				Suggestion: "Ensure the model only references variables it has previously defined",
			}
		}
		return val, nil
	default:
		return "", nil
	}
}
