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

package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNew_CarriesTheExplicitCodeNotACategoryDefault(t *testing.T) {
	ue := New(InvalidChunkSize, "Invalid Chunk Size", "chunk_size too small", "raise it", nil)
	if ue.Code != InvalidChunkSize {
		t.Fatalf("expected code %v, got %v", InvalidChunkSize, ue.Code)
	}
	if ue.Code.String() != "DS-003" {
		t.Errorf("expected DS-003, got %s", ue.Code.String())
	}
}

func TestCode_StringAndDocURL(t *testing.T) {
	if got := MissingQuery.String(); got != "DS-004" {
		t.Errorf("expected DS-004, got %s", got)
	}
	if !strings.HasSuffix(MissingQuery.DocURL(), "DS-004") {
		t.Errorf("expected doc URL to end in DS-004, got %s", MissingQuery.DocURL())
	}
}

func TestCategory_ExitCodeMapping(t *testing.T) {
	cases := []struct {
		cat  Category
		want int
	}{
		{CategoryValidation, 2},
		{CategoryParsing, 3},
		{CategoryChunking, 4},
		{CategoryResource, 5},
		{CategoryConfig, 6},
		{CategorySystem, 1},
	}
	for _, c := range cases {
		if got := c.cat.ExitCode(); got != c.want {
			t.Errorf("%s: expected exit code %d, got %d", c.cat, c.want, got)
		}
	}
}

func TestUserError_Unwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	ue := New(InternalError, "Internal Error", "wrapped", "", cause)
	if !errors.Is(ue, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestUserError_FormatMessageIncludesContext(t *testing.T) {
	ue := &UserError{
		Code:   PathNotFound,
		Title:  "Path Not Found",
		Detail: "no such file",
		Ctx:    Context{FilePath: "/tmp/missing.go"},
	}
	msg := ue.FormatMessage()
	if !strings.Contains(msg, "[DS-301]") || !strings.Contains(msg, "/tmp/missing.go") {
		t.Errorf("expected formatted message to carry code and file path, got %q", msg)
	}
}

func TestUserError_ToDictOmitsEmptyContext(t *testing.T) {
	ue := New(MissingQuery, "Missing Query", "no query given", "", nil)
	d := ue.ToDict()
	if _, ok := d["context"]; ok {
		t.Error("expected no context key when Ctx is the zero value")
	}
	if d["code"] != "DS-004" {
		t.Errorf("expected code DS-004, got %v", d["code"])
	}
}

func TestUserError_ToDictIncludesNonEmptyContext(t *testing.T) {
	ue := &UserError{Code: SessionNotFound, Title: "Session Not Found", Ctx: Context{SessionID: "abc123"}}
	d := ue.ToDict()
	if _, ok := d["context"]; !ok {
		t.Error("expected context key when SessionID is set")
	}
}

func TestNewCancelledError_UsesCancelledByUserCode(t *testing.T) {
	ue := NewCancelledError("user pressed ctrl-c")
	if ue.Code != CancelledByUser {
		t.Errorf("expected CancelledByUser code, got %v", ue.Code)
	}
}
