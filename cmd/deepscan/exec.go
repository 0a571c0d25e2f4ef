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
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/deepscan/internal/ui"
	"github.com/kraklabs/deepscan/pkg/grepworker"
	"github.com/kraklabs/deepscan/pkg/sandbox"
)

// grepHelper exposes grepworker.SafeGrep as a sandbox.Helper callable from
// evaluated code as grep(pattern, content): a ReDoS-guarded, size-capped
// search the REPL can run directly over chunk content.
func grepHelper(ctx context.Context, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("grep expects (pattern, content)")
	}
	pattern, ok1 := args[0].(string)
	content, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("grep expects string arguments")
	}
	matches, err := grepworker.SafeGrep(ctx, pattern, content, grepworker.Options{}.WithDefaults())
	if err != nil {
		return nil, err
	}
	out := make([]any, len(matches))
	for i, m := range matches {
		out[i] = map[string]any{"match": m.Text, "start": m.Start, "end": m.End, "snippet": m.Snippet}
	}
	return out, nil
}

// runExec evaluates one expression in the sandbox. Timeouts and
// forbidden-pattern rejections both exit 1, matching the source REPL's
// "any sandbox failure is exit 1" contract rather than the DS-NNN
// category taxonomy used elsewhere.
func runExec(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	code := fs.StringP("code", "c", "", "Expression to evaluate")
	timeoutSeconds := fs.Int("timeout", 60, "Evaluation timeout in seconds")
	_ = fs.Parse(args)

	if *code == "" {
		fmt.Fprintln(os.Stderr, "exec requires -c CODE")
		os.Exit(1)
	}

	evaluator := sandbox.New(
		sandbox.WithTimeout(time.Duration(*timeoutSeconds)*time.Second),
		sandbox.WithHelper("grep", grepHelper),
	)
	defer evaluator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutSeconds)*time.Second)
	defer cancel()

	result, err := evaluator.Execute(ctx, *code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if globals.JSON {
		fmt.Printf("{\"value\":%q,\"elapsed_ms\":%d}\n", fmt.Sprint(result.Value), result.Elapsed.Milliseconds())
		return
	}
	ui.Info(fmt.Sprint(result.Value))
}
