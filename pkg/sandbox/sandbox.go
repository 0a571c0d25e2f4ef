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

// Package sandbox evaluates untrusted expressions from the map/reduce
// driver's REPL without permitting escape to the host: a length and
// forbidden-pattern pre-filter, an AST allow-list, an attribute
// post-filter, and a choice of execution path (killable worker process for
// helper-free code, time-bounded in-process evaluation otherwise).
package sandbox

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"time"
)

// ErrTimeout is returned when an evaluation exceeds its deadline — the
// caller receives a distinct failure from a normal evaluation error, per
// spec.md §4.3 step 7.
type ErrTimeout struct {
	Elapsed time.Duration
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("sandbox evaluation timed out after %s", e.Elapsed)
}

// Evaluator holds the persistent namespace shared across calls — `x = 42`
// in one call and `x` in the next call against the same Evaluator returns
// 42, matching the source REPL's namespace-persistence contract.
type Evaluator struct {
	namespace map[string]any
	helpers   map[string]Helper
	worker    *Worker
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithHelper registers a named capability callable from sandboxed code.
func WithHelper(name string, h Helper) Option {
	return func(e *Evaluator) { e.helpers[name] = h }
}

// WithTimeout overrides the default 60 second soft evaluation timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.timeout = d }
}

// WithLogger overrides the package default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithWorkerBinary configures the self-reexec path used to spawn the
// helper-free worker process (defaults to the running executable with the
// hidden __sandbox_worker__ subcommand appended).
func WithWorkerBinary(path string, args ...string) Option {
	return func(e *Evaluator) {
		e.worker = newWorker(path, args)
	}
}

// New constructs an Evaluator with an empty namespace.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		namespace: make(map[string]any),
		helpers:   make(map[string]Helper),
		timeout:   60 * time.Second,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.worker == nil {
		e.worker = newWorker(selfExecutablePath(), nil)
	}
	return e
}

// Result is the outcome of one Execute call.
type Result struct {
	Value    any
	Elapsed  time.Duration
	UsedProc bool // true if dispatched to the subprocess worker
}

// Execute validates and evaluates code against the evaluator's namespace.
// Validation (length, forbidden pattern, tree allow-list, attribute
// post-filter) always runs on the calling goroutine and always completes
// before any statement executes, per spec.md §4.3 steps 1-4.
func (e *Evaluator) Execute(ctx context.Context, code string) (Result, error) {
	start := time.Now()

	if err := PreScan(code); err != nil {
		return Result{}, err
	}

	stmts, err := parseStatements(code)
	if err != nil {
		return Result{}, fmt.Errorf("syntax error: %w", err)
	}
	if err := ValidateTree(stmts); err != nil {
		return Result{}, err
	}

	if referencesHelper(stmts, e.helpers) {
		v, err := e.runInProcess(ctx, stmts)
		return Result{Value: v, Elapsed: time.Since(start), UsedProc: false}, err
	}

	v, err := e.runInWorker(ctx, code)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Elapsed: time.Since(start), UsedProc: true}, nil
}

// runInProcess is the path for code that calls a registered helper:
// thread cancellation is cooperative in Go as much as in the source
// language, so this path relies on the interpreter checking ctx.Err()
// between statements rather than a hard kill.
func (e *Evaluator) runInProcess(ctx context.Context, stmts []ast.Stmt) (any, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)
	go func() {
		in := newInterpreter(timeoutCtx, e.namespace, e.helpers)
		v, err := in.run(stmts)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	select {
	case v := <-resultCh:
		return v, nil
	case err := <-errCh:
		return nil, err
	case <-timeoutCtx.Done():
		return nil, &ErrTimeout{Elapsed: e.timeout}
	}
}

// runInWorker dispatches helper-free code to the persistent subprocess,
// which is killable outright (spec.md §4.3 step 5's rationale for
// preferring a process over a thread when no cooperative helper callback
// is needed).
func (e *Evaluator) runInWorker(ctx context.Context, code string) (any, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.worker.Eval(timeoutCtx, code)
}

// referencesHelper reports whether stmts call any identifier present in
// helpers, determining the execution path per spec.md §4.3 step 5.
func referencesHelper(stmts []ast.Stmt, helpers map[string]Helper) bool {
	if len(helpers) == 0 {
		return false
	}
	found := false
	for _, s := range stmts {
		ast.Inspect(s, func(n ast.Node) bool {
			if found {
				return false
			}
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			if ident, ok := call.Fun.(*ast.Ident); ok {
				if _, ok := helpers[ident.Name]; ok {
					found = true
					return false
				}
			}
			return true
		})
		if found {
			break
		}
	}
	return found
}

// parseStatements wraps code in a synthetic function body so it can be fed
// to go/parser as a normal statement list, then unwraps the result.
func parseStatements(code string) ([]ast.Stmt, error) {
	src := "package sandbox\nfunc __eval__() {\n" + code + "\n}\n"
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "sandbox_eval.go", src, 0)
	if err != nil {
		return nil, err
	}
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if ok && fn.Name.Name == "__eval__" {
			return fn.Body.List, nil
		}
	}
	return nil, fmt.Errorf("failed to locate evaluated body")
}

// Reset clears the persistent in-process namespace. The worker
// subprocess keeps its own namespace and is not affected.
func (e *Evaluator) Reset() {
	e.namespace = make(map[string]any)
}

// Close releases the worker subprocess, if one has been started.
func (e *Evaluator) Close() error {
	if e.worker != nil {
		return e.worker.Close()
	}
	return nil
}
