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
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
	"strings"
)

// Helper is a capability function injected into a namespace by name —
// the enumerated "capability table" the map/reduce driver exposes to
// sandboxed expressions (e.g. reading a prior finding, fetching a chunk).
type Helper func(ctx context.Context, args []any) (any, error)

// loopSignal carries break/continue out of statement evaluation without
// allocating on every iteration of a hot loop.
type loopSignal int

const (
	signalNone loopSignal = iota
	signalBreak
	signalContinue
	signalReturn
)

// interpreter walks a validated statement list against a persistent
// namespace and an immutable helper table.
type interpreter struct {
	ctx       context.Context
	namespace map[string]any
	helpers   map[string]Helper
	lastValue any
	returnVal any
}

func newInterpreter(ctx context.Context, namespace map[string]any, helpers map[string]Helper) *interpreter {
	return &interpreter{ctx: ctx, namespace: namespace, helpers: helpers}
}

// run evaluates stmts in order against the persistent namespace, returning
// the value of the final bare expression statement (mirroring a REPL: `x
// = 42; x` yields 42) or nil if the block ends in a non-expression
// statement.
func (in *interpreter) run(stmts []ast.Stmt) (any, error) {
	for _, s := range stmts {
		sig, err := in.execStmt(s)
		if err != nil {
			return nil, err
		}
		if sig == signalReturn {
			return in.returnVal, nil
		}
		if err := in.ctx.Err(); err != nil {
			return nil, err
		}
	}
	return in.lastValue, nil
}

func (in *interpreter) execBlock(b *ast.BlockStmt) (loopSignal, error) {
	for _, s := range b.List {
		sig, err := in.execStmt(s)
		if err != nil || sig != signalNone {
			return sig, err
		}
	}
	return signalNone, nil
}

func (in *interpreter) execStmt(s ast.Stmt) (loopSignal, error) {
	switch st := s.(type) {
	case *ast.ExprStmt:
		v, err := in.eval(st.X)
		if err != nil {
			return signalNone, err
		}
		in.lastValue = v
		return signalNone, nil

	case *ast.AssignStmt:
		return signalNone, in.execAssign(st)

	case *ast.IncDecStmt:
		ident, ok := st.X.(*ast.Ident)
		if !ok {
			return signalNone, fmt.Errorf("unsupported increment target")
		}
		cur, err := in.eval(ident)
		if err != nil {
			return signalNone, err
		}
		n, ok := toFloat(cur)
		if !ok {
			return signalNone, fmt.Errorf("cannot increment non-numeric %v", cur)
		}
		if st.Tok == token.INC {
			n++
		} else {
			n--
		}
		in.namespace[ident.Name] = normalizeNumber(n, cur)
		return signalNone, nil

	case *ast.IfStmt:
		return in.execIf(st)

	case *ast.ForStmt:
		return in.execFor(st)

	case *ast.RangeStmt:
		return in.execRange(st)

	case *ast.BlockStmt:
		return in.execBlock(st)

	case *ast.BranchStmt:
		switch st.Tok {
		case token.BREAK:
			return signalBreak, nil
		case token.CONTINUE:
			return signalContinue, nil
		}
		return signalNone, fmt.Errorf("unsupported branch %v", st.Tok)

	case *ast.ReturnStmt:
		if len(st.Results) == 1 {
			v, err := in.eval(st.Results[0])
			if err != nil {
				return signalNone, err
			}
			in.returnVal = v
		}
		return signalReturn, nil

	default:
		return signalNone, fmt.Errorf("unsupported statement %T", s)
	}
}

func (in *interpreter) execAssign(st *ast.AssignStmt) error {
	if len(st.Lhs) != 1 || len(st.Rhs) != 1 {
		return fmt.Errorf("only single-target assignment is supported")
	}
	rhs, err := in.eval(st.Rhs[0])
	if err != nil {
		return err
	}

	switch lhs := st.Lhs[0].(type) {
	case *ast.Ident:
		if st.Tok != token.DEFINE && st.Tok != token.ASSIGN {
			cur, ok := in.namespace[lhs.Name]
			if !ok {
				return fmt.Errorf("undefined: %s", lhs.Name)
			}
			rhs, err = applyCompoundOp(st.Tok, cur, rhs)
			if err != nil {
				return err
			}
		}
		in.namespace[lhs.Name] = rhs
		return nil

	case *ast.IndexExpr:
		container, err := in.eval(lhs.X)
		if err != nil {
			return err
		}
		idx, err := in.eval(lhs.Index)
		if err != nil {
			return err
		}
		switch c := container.(type) {
		case map[any]any:
			c[idx] = rhs
			return nil
		case []any:
			i, ok := toFloat(idx)
			if !ok || int(i) < 0 || int(i) >= len(c) {
				return fmt.Errorf("index out of range")
			}
			c[int(i)] = rhs
			return nil
		default:
			return fmt.Errorf("cannot index-assign into %T", container)
		}

	default:
		return fmt.Errorf("unsupported assignment target %T", st.Lhs[0])
	}
}

func applyCompoundOp(tok token.Token, cur, rhs any) (any, error) {
	base := tok
	switch tok {
	case token.ADD_ASSIGN:
		base = token.ADD
	case token.SUB_ASSIGN:
		base = token.SUB
	case token.MUL_ASSIGN:
		base = token.MUL
	case token.QUO_ASSIGN:
		base = token.QUO
	case token.REM_ASSIGN:
		base = token.REM
	default:
		return nil, fmt.Errorf("unsupported assignment operator %v", tok)
	}
	return applyBinaryOp(base, cur, rhs)
}

func (in *interpreter) execIf(st *ast.IfStmt) (loopSignal, error) {
	cond, err := in.eval(st.Cond)
	if err != nil {
		return signalNone, err
	}
	b, ok := cond.(bool)
	if !ok {
		return signalNone, fmt.Errorf("if condition must be boolean, got %T", cond)
	}
	if b {
		return in.execBlock(st.Body)
	}
	switch e := st.Else.(type) {
	case *ast.BlockStmt:
		return in.execBlock(e)
	case *ast.IfStmt:
		return in.execIf(e)
	}
	return signalNone, nil
}

func (in *interpreter) execFor(st *ast.ForStmt) (loopSignal, error) {
	if st.Init != nil {
		if _, err := in.execStmt(st.Init); err != nil {
			return signalNone, err
		}
	}
	for {
		if err := in.ctx.Err(); err != nil {
			return signalNone, err
		}
		if st.Cond != nil {
			cond, err := in.eval(st.Cond)
			if err != nil {
				return signalNone, err
			}
			b, ok := cond.(bool)
			if !ok {
				return signalNone, fmt.Errorf("for condition must be boolean, got %T", cond)
			}
			if !b {
				return signalNone, nil
			}
		}
		sig, err := in.execBlock(st.Body)
		if err != nil {
			return signalNone, err
		}
		if sig == signalReturn || sig == signalBreak {
			if sig == signalReturn {
				return sig, nil
			}
			return signalNone, nil
		}
		if st.Post != nil {
			if _, err := in.execStmt(st.Post); err != nil {
				return signalNone, err
			}
		}
	}
}

func (in *interpreter) execRange(st *ast.RangeStmt) (loopSignal, error) {
	coll, err := in.eval(st.X)
	if err != nil {
		return signalNone, err
	}

	assign := func(key, val any) error {
		if st.Key != nil {
			if ident, ok := st.Key.(*ast.Ident); ok && ident.Name != "_" {
				in.namespace[ident.Name] = key
			}
		}
		if st.Value != nil {
			if ident, ok := st.Value.(*ast.Ident); ok && ident.Name != "_" {
				in.namespace[ident.Name] = val
			}
		}
		return nil
	}

	iterate := func(key, val any) (loopSignal, bool, error) {
		if err := assign(key, val); err != nil {
			return signalNone, false, err
		}
		sig, err := in.execBlock(st.Body)
		if err != nil {
			return signalNone, false, err
		}
		if sig == signalBreak {
			return signalNone, true, nil
		}
		if sig == signalReturn {
			return signalReturn, true, nil
		}
		return signalNone, false, nil
	}

	switch c := coll.(type) {
	case []any:
		for i, v := range c {
			sig, stop, err := iterate(float64(i), v)
			if err != nil {
				return signalNone, err
			}
			if sig == signalReturn {
				return sig, nil
			}
			if stop {
				break
			}
		}
	case map[any]any:
		for k, v := range c {
			sig, stop, err := iterate(k, v)
			if err != nil {
				return signalNone, err
			}
			if sig == signalReturn {
				return sig, nil
			}
			if stop {
				break
			}
		}
	case string:
		for _, r := range c {
			sig, stop, err := iterate(nil, string(r))
			if err != nil {
				return signalNone, err
			}
			if sig == signalReturn {
				return sig, nil
			}
			if stop {
				break
			}
		}
	default:
		return signalNone, fmt.Errorf("cannot range over %T", coll)
	}
	return signalNone, nil
}

func (in *interpreter) eval(e ast.Expr) (any, error) {
	switch ex := e.(type) {
	case *ast.BasicLit:
		return evalBasicLit(ex)

	case *ast.Ident:
		switch ex.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		v, ok := in.namespace[ex.Name]
		if !ok {
			return nil, fmt.Errorf("undefined: %s", ex.Name)
		}
		return v, nil

	case *ast.ParenExpr:
		return in.eval(ex.X)

	case *ast.UnaryExpr:
		v, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		return applyUnaryOp(ex.Op, v)

	case *ast.BinaryExpr:
		left, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		if ex.Op == token.LAND || ex.Op == token.LOR {
			lb, ok := left.(bool)
			if !ok {
				return nil, fmt.Errorf("boolean operator requires bool operand, got %T", left)
			}
			if ex.Op == token.LAND && !lb {
				return false, nil
			}
			if ex.Op == token.LOR && lb {
				return true, nil
			}
			right, err := in.eval(ex.Y)
			if err != nil {
				return nil, err
			}
			rb, ok := right.(bool)
			if !ok {
				return nil, fmt.Errorf("boolean operator requires bool operand, got %T", right)
			}
			return rb, nil
		}
		right, err := in.eval(ex.Y)
		if err != nil {
			return nil, err
		}
		return applyBinaryOp(ex.Op, left, right)

	case *ast.IndexExpr:
		container, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(ex.Index)
		if err != nil {
			return nil, err
		}
		return indexInto(container, idx)

	case *ast.CompositeLit:
		return in.evalComposite(ex)

	case *ast.SelectorExpr:
		x, err := in.eval(ex.X)
		if err != nil {
			return nil, err
		}
		return resolveSelector(x, ex.Sel.Name)

	case *ast.CallExpr:
		return in.evalCall(ex)

	case *ast.FuncLit:
		captured := in.namespace
		body := ex.Body
		return Helper(func(ctx context.Context, args []any) (any, error) {
			child := newInterpreter(ctx, captured, in.helpers)
			names := paramNames(ex.Type)
			for i, n := range names {
				if i < len(args) {
					child.namespace[n] = args[i]
				}
			}
			_, err := child.execBlock(body)
			return child.returnVal, err
		}), nil

	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}

func paramNames(ft *ast.FuncType) []string {
	var names []string
	if ft == nil || ft.Params == nil {
		return names
	}
	for _, f := range ft.Params.List {
		for _, n := range f.Names {
			names = append(names, n.Name)
		}
	}
	return names
}

func (in *interpreter) evalComposite(lit *ast.CompositeLit) (any, error) {
	switch lit.Type.(type) {
	case *ast.MapType:
		m := make(map[any]any, len(lit.Elts))
		for _, elt := range lit.Elts {
			kv, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				return nil, fmt.Errorf("map literal requires key: value pairs")
			}
			k, err := in.eval(kv.Key)
			if err != nil {
				return nil, err
			}
			v, err := in.eval(kv.Value)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	default:
		s := make([]any, 0, len(lit.Elts))
		for _, elt := range lit.Elts {
			v, err := in.eval(elt)
			if err != nil {
				return nil, err
			}
			s = append(s, v)
		}
		return s, nil
	}
}

func (in *interpreter) evalCall(call *ast.CallExpr) (any, error) {
	args := make([]any, 0, len(call.Args))
	for _, a := range call.Args {
		v, err := in.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	if ident, ok := call.Fun.(*ast.Ident); ok {
		if builtin, ok := builtinFuncs[ident.Name]; ok {
			return builtin(args)
		}
		if h, ok := in.helpers[ident.Name]; ok {
			return h(in.ctx, args)
		}
		if v, ok := in.namespace[ident.Name]; ok {
			if h, ok := v.(Helper); ok {
				return h(in.ctx, args)
			}
		}
		return nil, fmt.Errorf("call to unregistered function: %s", ident.Name)
	}
	return nil, fmt.Errorf("unsupported call target %T", call.Fun)
}

var builtinFuncs = map[string]func([]any) (any, error){
	"len": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len takes exactly one argument")
		}
		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[any]any:
			return float64(len(v)), nil
		default:
			return nil, fmt.Errorf("len: unsupported type %T", v)
		}
	},
}

func indexInto(container, idx any) (any, error) {
	switch c := container.(type) {
	case []any:
		i, ok := toFloat(idx)
		if !ok || int(i) < 0 || int(i) >= len(c) {
			return nil, fmt.Errorf("index out of range")
		}
		return c[int(i)], nil
	case map[any]any:
		return c[idx], nil
	case string:
		i, ok := toFloat(idx)
		if !ok || int(i) < 0 || int(i) >= len(c) {
			return nil, fmt.Errorf("index out of range")
		}
		return string(c[int(i)]), nil
	default:
		return nil, fmt.Errorf("cannot index %T", container)
	}
}

// resolveSelector performs the field/map-key lookup behind attribute access
// (e.g. foo.bar), the dynamic half of the check allowlist.go already
// enforces statically via isDeniedAttribute. Map literals evaluate to
// map[any]any internally; values handed in from a Helper (grep's match
// records, for instance) come back as map[string]any, so both are
// supported here.
func resolveSelector(x any, name string) (any, error) {
	switch v := x.(type) {
	case map[any]any:
		return v[name], nil
	case map[string]any:
		return v[name], nil
	default:
		return nil, fmt.Errorf("cannot access attribute %q on %T", name, x)
	}
}

func evalBasicLit(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, err
		}
		return float64(n), nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, err
		}
		return s, nil
	case token.CHAR:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, err
		}
		return []rune(s)[0], nil
	default:
		return nil, fmt.Errorf("unsupported literal kind %v", lit.Kind)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case rune:
		return float64(n), true
	}
	return 0, false
}

func normalizeNumber(f float64, like any) any {
	if _, ok := like.(rune); ok {
		return rune(f)
	}
	return f
}

func applyUnaryOp(op token.Token, v any) (any, error) {
	switch op {
	case token.SUB:
		n, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("unary - requires numeric operand")
		}
		return -n, nil
	case token.NOT:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("unary ! requires boolean operand")
		}
		return !b, nil
	default:
		return nil, fmt.Errorf("unsupported unary operator %v", op)
	}
}

func applyBinaryOp(op token.Token, left, right any) (any, error) {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return applyStringOp(op, ls, rs)
		}
	}
	ln, lok := toFloat(left)
	rn, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %v requires numeric operands, got %T and %T", op, left, right)
	}
	switch op {
	case token.ADD:
		return ln + rn, nil
	case token.SUB:
		return ln - rn, nil
	case token.MUL:
		return ln * rn, nil
	case token.QUO:
		if rn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return ln / rn, nil
	case token.REM:
		if rn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return float64(int64(ln) % int64(rn)), nil
	case token.EQL:
		return ln == rn, nil
	case token.NEQ:
		return ln != rn, nil
	case token.LSS:
		return ln < rn, nil
	case token.LEQ:
		return ln <= rn, nil
	case token.GTR:
		return ln > rn, nil
	case token.GEQ:
		return ln >= rn, nil
	default:
		return nil, fmt.Errorf("unsupported operator %v", op)
	}
}

func applyStringOp(op token.Token, left, right string) (any, error) {
	switch op {
	case token.ADD:
		var b strings.Builder
		b.WriteString(left)
		b.WriteString(right)
		return b.String(), nil
	case token.EQL:
		return left == right, nil
	case token.NEQ:
		return left != right, nil
	case token.LSS:
		return left < right, nil
	case token.LEQ:
		return left <= right, nil
	case token.GTR:
		return left > right, nil
	case token.GEQ:
		return left >= right, nil
	default:
		return nil, fmt.Errorf("unsupported string operator %v", op)
	}
}
