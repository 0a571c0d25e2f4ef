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
	"fmt"
	"go/ast"
	"regexp"
	"strings"
)

// MaxSourceBytes rejects code before any parsing is attempted.
const MaxSourceBytes = 100_000

// forbiddenPatterns is the fast pre-filter that runs before the source is
// ever handed to go/parser — it exists so that an attempt like
// `import "os/exec"` is rejected on a string scan, not on a tree walk.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bos/exec\b`),
	regexp.MustCompile(`\bunsafe\b`),
	regexp.MustCompile(`\breflect\b`),
	regexp.MustCompile(`\bsyscall\b`),
	regexp.MustCompile(`\bplugin\b`),
	regexp.MustCompile(`\bnet\b`),
	regexp.MustCompile(`\bimport\b`),
	regexp.MustCompile(`__[A-Za-z0-9_]*__`),
}

// dunderDenylist rejects field/selector names used for reflective escape,
// mirroring the source interpreter's __globals__/__class__/__bases__ list.
var dunderDenylist = map[string]bool{
	"globals": true, "class": true, "bases": true,
	"closure": true, "subclasses": true, "dict": true, "mro": true,
}

// ErrForbiddenPattern is returned by the pre-scan, before any parse is
// attempted (spec scenario E: rejection happens before tree parsing).
type ErrForbiddenPattern struct {
	Pattern string
}

func (e *ErrForbiddenPattern) Error() string {
	return fmt.Sprintf("forbidden pattern detected: %s", e.Pattern)
}

// ErrSourceTooLarge is the length pre-filter's rejection.
type ErrSourceTooLarge struct {
	Size int
}

func (e *ErrSourceTooLarge) Error() string {
	return fmt.Sprintf("source exceeds %d byte limit (got %d)", MaxSourceBytes, e.Size)
}

// ErrDeniedNode is returned when the syntax tree contains a node kind that
// is not on the allow-list, before any statement is evaluated.
type ErrDeniedNode struct {
	Kind string
}

func (e *ErrDeniedNode) Error() string {
	return fmt.Sprintf("denied syntax element: %s", e.Kind)
}

// ErrDeniedAttribute is the rejection for underscore/dunder attribute
// access, found in the same tree walk as the node-kind check.
type ErrDeniedAttribute struct {
	Name string
}

func (e *ErrDeniedAttribute) Error() string {
	return fmt.Sprintf("denied attribute access: %s", e.Name)
}

// PreScan runs the length and forbidden-pattern checks (spec.md §4.3 steps
// 1-2), which must both pass before the code is ever parsed.
func PreScan(code string) error {
	if len(code) > MaxSourceBytes {
		return &ErrSourceTooLarge{Size: len(code)}
	}
	for _, p := range forbiddenPatterns {
		if p.MatchString(code) {
			return &ErrForbiddenPattern{Pattern: p.String()}
		}
	}
	return nil
}

// ValidateTree walks every node in stmts in a single pass and returns the
// first violation it meets: a node kind not on the allow-list (step 3) or
// a disallowed attribute access (step 4), whichever comes first in the
// walk. It returns before any statement executes.
func ValidateTree(stmts []ast.Stmt) error {
	var walkErr error
	visit := func(n ast.Node) bool {
		if walkErr != nil {
			return false
		}
		switch node := n.(type) {
		case nil:
			return true
		// allowed expression/statement kinds
		case *ast.BasicLit, *ast.Ident, *ast.BinaryExpr, *ast.UnaryExpr,
			*ast.ParenExpr, *ast.IndexExpr, *ast.CompositeLit, *ast.KeyValueExpr,
			*ast.AssignStmt, *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt,
			*ast.ExprStmt, *ast.BlockStmt, *ast.FuncLit, *ast.FuncType,
			*ast.FieldList, *ast.Field, *ast.IncDecStmt, *ast.BranchStmt,
			*ast.ArrayType, *ast.MapType, *ast.InterfaceType, *ast.Ellipsis,
			*ast.ReturnStmt:
			return true
		case *ast.CallExpr:
			return true
		case *ast.SelectorExpr:
			if isDeniedAttribute(node.Sel.Name) {
				walkErr = &ErrDeniedAttribute{Name: node.Sel.Name}
				return false
			}
			return true
		// explicitly denied kinds (function/class-like, control flow escape,
		// concurrency, imports) — named here so the default branch below
		// doesn't have to be trusted alone for the security-critical cases.
		case *ast.FuncDecl, *ast.GoStmt, *ast.DeferStmt, *ast.SelectStmt,
			*ast.TypeSwitchStmt, *ast.ImportSpec, *ast.GenDecl,
			*ast.LabeledStmt, *ast.SendStmt:
			walkErr = &ErrDeniedNode{Kind: fmt.Sprintf("%T", node)}
			return false
		default:
			walkErr = &ErrDeniedNode{Kind: fmt.Sprintf("%T", node)}
			return false
		}
	}
	for _, s := range stmts {
		ast.Inspect(s, visit)
		if walkErr != nil {
			return walkErr
		}
	}
	return nil
}

func isDeniedAttribute(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	return dunderDenylist[strings.ToLower(name)]
}
