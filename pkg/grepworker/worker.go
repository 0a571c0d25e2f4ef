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

package grepworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// WorkerSubcommand is the hidden argument main() checks for to decide
// whether the process should become a grep worker instead of running the
// ordinary CLI.
const WorkerSubcommand = "__grep_worker__"

// ErrTimeout is returned when the worker subprocess is still alive at the
// deadline and has to be terminated, per spec.md §4.4 step 3.
type ErrTimeout struct {
	Elapsed time.Duration
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("grep search timed out after %s", e.Elapsed)
}

type workerRequest struct {
	Pattern string  `json:"pattern"`
	Content string  `json:"content"`
	Options Options `json:"options"`
}

type workerResponse struct {
	Matches []Match `json:"matches,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// SafeGrep screens pattern, caps content size, and dispatches the actual
// search to a short-lived subprocess so a hung regex can be killed
// outright rather than blocking the driver. One subprocess is spawned per
// call: unlike the sandbox, grep search carries no state worth keeping
// alive between calls.
func SafeGrep(ctx context.Context, pattern, content string, opts Options) ([]Match, error) {
	if err := ScreenPattern(pattern); err != nil {
		return nil, err
	}
	if len(content) > MaxContentBytes {
		return nil, &ErrContentTooLarge{Size: len(content)}
	}
	opts = opts.WithDefaults()

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, exe, WorkerSubcommand)
	reqBody, err := json.Marshal(workerRequest{Pattern: pattern, Content: content, Options: opts})
	if err != nil {
		return nil, err
	}
	cmd.Stdin = bytes.NewReader(reqBody)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()
	if timeoutCtx.Err() != nil {
		terminateThenKill(cmd)
		return nil, &ErrTimeout{Elapsed: opts.Timeout}
	}
	if runErr != nil {
		return nil, fmt.Errorf("grep worker failed: %w", runErr)
	}

	var resp workerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("malformed grep worker response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Matches, nil
}

// terminateThenKill sends an interrupt and escalates to Kill if the
// process doesn't exit quickly, matching the sandbox worker's
// terminate -> kill discipline.
func terminateThenKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
	}
}

// RunWorkerMain is the entry point cmd/deepscan's main() delegates to when
// invoked as `deepscan __grep_worker__` — it reads one JSON request from
// stdin, runs the search, and writes one JSON response to stdout.
func RunWorkerMain() {
	var req workerRequest
	dec := json.NewDecoder(os.Stdin)
	if err := dec.Decode(&req); err != nil {
		writeResponse(workerResponse{Error: err.Error()})
		return
	}
	matches, err := searchInProcess(req.Pattern, req.Content, req.Options.WithDefaults())
	if err != nil {
		writeResponse(workerResponse{Error: err.Error()})
		return
	}
	writeResponse(workerResponse{Matches: matches})
}

func writeResponse(resp workerResponse) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(resp)
}
