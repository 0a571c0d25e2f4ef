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

package sandbox

import (
	"context"
	"strings"
	"testing"
)

// noop is registered so test snippets take the in-process execution path
// deterministically, without spawning the self-reexec worker subprocess
// (which requires a compiled deepscan binary to respond on the other end).
func noopHelper(ctx context.Context, args []any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

func newTestEvaluator() *Evaluator {
	return New(WithHelper("noop", noopHelper))
}

func TestExecute_NamespacePersistsAcrossCalls(t *testing.T) {
	e := newTestEvaluator()
	ctx := context.Background()

	if _, err := e.Execute(ctx, "x = 42\nnoop(0)"); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	res, err := e.Execute(ctx, "noop(0)\nx")
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	v, ok := res.Value.(float64)
	if !ok || v != 42 {
		t.Errorf("expected persisted x == 42, got %#v", res.Value)
	}
}

func TestExecute_ArithmeticAndComparison(t *testing.T) {
	e := newTestEvaluator()
	res, err := e.Execute(context.Background(), "noop(0)\n(2 + 3) * 4 >= 20")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if b, ok := res.Value.(bool); !ok || !b {
		t.Errorf("expected true, got %#v", res.Value)
	}
}

func TestExecute_ForLoopAccumulates(t *testing.T) {
	e := newTestEvaluator()
	code := `
noop(0)
total = 0
for i := 0; i < 5; i++ {
	total = total + i
}
total`
	res, err := e.Execute(context.Background(), code)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v, ok := res.Value.(float64); !ok || v != 10 {
		t.Errorf("expected total == 10, got %#v", res.Value)
	}
}

func TestExecute_SelectorExprResolvesMapField(t *testing.T) {
	e := newTestEvaluator()
	res, err := e.Execute(context.Background(), `noop(0)
record = map[string]any{"name": "chunk_0001", "size": 4096}
record.name`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, ok := res.Value.(string); !ok || got != "chunk_0001" {
		t.Errorf("expected record.name == %q, got %#v", "chunk_0001", res.Value)
	}
}

func TestExecute_SelectorExprOnNonRecordFails(t *testing.T) {
	e := newTestEvaluator()
	if _, err := e.Execute(context.Background(), "noop(0)\nx = 1\nx.name"); err == nil {
		t.Fatal("expected an error accessing an attribute on a non-record value")
	}
}

func TestExecute_RejectsForbiddenPatternBeforeParsing(t *testing.T) {
	e := newTestEvaluator()
	_, err := e.Execute(context.Background(), `result = syscall.whatever()`)
	if err == nil {
		t.Fatal("expected error for forbidden pattern")
	}
	if _, ok := err.(*ErrForbiddenPattern); !ok {
		t.Errorf("expected *ErrForbiddenPattern, got %T: %v", err, err)
	}
}

func TestExecute_RejectsDeniedNodeKinds(t *testing.T) {
	deniedSnippets := []string{
		"var y = 1",
		"go noop(0)",
		"defer noop(0)",
	}
	for _, code := range deniedSnippets {
		e := newTestEvaluator()
		_, err := e.Execute(context.Background(), code)
		if err == nil {
			t.Errorf("expected rejection for %q", code)
			continue
		}
		if _, ok := err.(*ErrDeniedNode); !ok {
			t.Errorf("expected *ErrDeniedNode for %q, got %T: %v", code, err, err)
		}
	}
}

func TestExecute_RejectsOversizedSource(t *testing.T) {
	e := newTestEvaluator()
	huge := strings.Repeat("x", MaxSourceBytes+1)
	_, err := e.Execute(context.Background(), huge)
	if _, ok := err.(*ErrSourceTooLarge); !ok {
		t.Errorf("expected *ErrSourceTooLarge, got %T: %v", err, err)
	}
}

func TestValidateTree_RejectsDunderAttribute(t *testing.T) {
	stmts, err := parseStatements("x = noop.__globals__")
	if err != nil {
		t.Fatalf("parseStatements: %v", err)
	}
	if err := ValidateTree(stmts); err == nil {
		t.Error("expected denied-attribute error for __globals__ access")
	}
}

func TestPreScan_AllowsOrdinarySnippet(t *testing.T) {
	if err := PreScan("x = 1 + 2\nx"); err != nil {
		t.Errorf("expected ordinary snippet to pass pre-scan, got %v", err)
	}
}
