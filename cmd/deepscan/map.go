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
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"

	dserrors "github.com/kraklabs/deepscan/internal/errors"
	"github.com/kraklabs/deepscan/internal/ui"
	"github.com/kraklabs/deepscan/pkg/cancel"
	"github.com/kraklabs/deepscan/pkg/checkpoint"
	"github.com/kraklabs/deepscan/pkg/mapreduce"
	"github.com/kraklabs/deepscan/pkg/progress"
	"github.com/kraklabs/deepscan/pkg/session"
)

// watchSkipDirs lists directory names a --watch run never descends into.
// It is a subset of walker.DefaultPruneDirs; the other default-pruned
// directories are still watched.
var watchSkipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true, "build": true,
}

const watchDebounce = 2 * time.Second

func runMap(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("map", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "Print the generated prompt for every pending chunk instead of dispatching")
	escalate := fs.Bool("escalate", false, "Re-queue only failed, escalation-eligible chunks at a higher tier")
	batchSize := fs.Int("batch", 0, "Override the session's configured batch size (0 = use max_parallel_agents)")
	limit := fs.Int("limit", 0, "With --instructions, print at most this many prompts (0 = no limit); not applied when dispatching")
	watch := fs.Bool("watch", false, "Re-chunk and re-dispatch whenever the context path changes")
	_ = fs.Parse(args)

	cm := cancel.New()
	mgr, err := session.NewManager(cacheRoot, cm)
	if err != nil {
		fail(err)
		return
	}

	hash, err := resolveHash(mgr, "")
	if err != nil {
		fail(err)
		return
	}
	state, err := mgr.Load(hash)
	if err != nil {
		fail(err)
		return
	}

	if *instructions {
		printPendingPrompts(state, *limit)
		return
	}

	if *batchSize > 0 {
		state.Config.MaxParallelAgents = *batchSize
	}

	runOneMapPass(mgr, cm, hash, state, *escalate, globals)

	if !*watch {
		return
	}

	contextPath, _ := state.ContextMetadata["context_path"].(string)
	if contextPath == "" {
		fail(dserrors.New(dserrors.MissingSetting, "Watch Unavailable", "session has no recorded context path", "Re-run init against a directory", nil))
		return
	}
	watchContextPath(mgr, cm, hash, contextPath, *escalate, globals)
}

// runOneMapPass wires a fresh progress writer, checkpoint manager, and
// escalation budget for one dispatch of the current session state, then
// drives the batch loop to completion or cancellation.
func runOneMapPass(mgr *session.Manager, cm *cancel.Manager, hash string, state *session.State, escalate bool, globals GlobalFlags) {
	sessionDir, err := mgr.SessionDir(hash)
	if err != nil {
		fail(err)
		return
	}
	progressWriter, err := progress.NewWriter(progressLogPath(sessionDir), 10*1024*1024)
	if err != nil {
		fail(err)
		return
	}
	defer progressWriter.Close()

	checkpointMgr, err := checkpoint.New(hash, filepath.Dir(sessionDir), cm)
	if err != nil {
		fail(err)
		return
	}

	budget := mapreduce.NewEscalationBudget(state.Config.MaxEscalationRatio, state.Config.MaxSonnetCostUSD)
	budget.SetTotalChunks(len(state.Chunks))

	driver := &mapreduce.Driver{
		Analyzer:   mapreduce.PlaceholderAnalyzer{},
		Progress:   progressWriter,
		Checkpoint: checkpointMgr,
		Sessions:   mgr,
		Cancel:     cm,
		Budget:     budget,
	}

	cm.Setup()

	ctx := context.Background()
	var runErr error
	if escalate {
		runErr = driver.Escalate(ctx, state, state.Config.AgentType)
	} else {
		runErr = driver.Run(ctx, state)
	}
	cm.MarkCompleted()

	if runErr != nil {
		fail(runErr)
		return
	}

	if cm.IsCancelled() {
		if globals.JSON {
			fmt.Printf("{\"session_id\":%q,\"cancelled\":true}\n", hash)
		} else {
			ui.Warning(fmt.Sprintf("Cancelled; resume with 'deepscan map' against session %s", hash))
		}
		os.Exit(cancel.ExitCodeForceQuit)
	}

	if globals.JSON {
		fmt.Printf("{\"session_id\":%q,\"progress\":%.4f}\n", hash, state.ProgressPercent)
		return
	}
	ui.Success(fmt.Sprintf("Map phase progress: %s", ui.CountText(int(state.ProgressPercent*100))))
}

// watchContextPath re-chunks and re-dispatches whenever the context
// directory changes, debounced the way the source fsnotify loop coalesces
// a burst of saves into a single reindex.
func watchContextPath(mgr *session.Manager, cm *cancel.Manager, hash, contextPath string, escalate bool, globals GlobalFlags) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fail(err)
		return
	}
	defer watcher.Close()

	addDirs(watcher, contextPath)
	ui.Info(fmt.Sprintf("Watching %s for changes", contextPath))

	var debounceTimer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(watchDebounce)
			timerCh = debounceTimer.C
			_ = event
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ui.Warning("watch error: " + err.Error())
		case <-timerCh:
			timerCh = nil
			state, err := mgr.Load(hash)
			if err != nil {
				fail(err)
				return
			}
			chunks, err := chunkContext(contextPath, state.Config)
			if err != nil {
				ui.Warning("re-chunk failed: " + err.Error())
				continue
			}
			state.Chunks = chunks
			if err := mgr.Save(state); err != nil {
				fail(err)
				return
			}
			runOneMapPass(mgr, cm, hash, state, escalate, globals)
		}
	}
}

func addDirs(watcher *fsnotify.Watcher, root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if watchSkipDirs[base] || (strings.HasPrefix(base, ".") && base != filepath.Base(root)) {
			return filepath.SkipDir
		}
		_ = watcher.Add(path)
		return nil
	})
}

// printPendingPrompts renders the prompt that would be sent for every
// chunk lacking a real result, without dispatching anything — the
// --instructions inspection path.
func printPendingPrompts(state *session.State, limit int) {
	resolved := make(map[string]bool, len(state.Results))
	for _, r := range state.Results {
		if r.Status == session.StatusCompleted || r.Status == session.StatusPartial || r.Status == session.StatusFailed {
			resolved[r.ChunkID] = true
		}
	}

	printed := 0
	for _, chunk := range state.Chunks {
		if resolved[chunk.ID] {
			continue
		}
		if limit > 0 && printed >= limit {
			break
		}
		fmt.Println(mapreduce.GeneratePrompt(chunk, state.Query, state.Config.AgentType))
		fmt.Println("---")
		printed++
	}
	if printed == 0 {
		fail(dserrors.New(dserrors.NoChunksCreated, "No Pending Chunks", "every chunk already has a real result", "Run 'deepscan reduce' instead", nil))
	}
}
