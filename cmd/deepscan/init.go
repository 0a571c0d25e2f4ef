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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/deepscan/internal/ui"
	"github.com/kraklabs/deepscan/pkg/chunker"
	"github.com/kraklabs/deepscan/pkg/session"
	"github.com/kraklabs/deepscan/pkg/walker"
)

func runInit(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON

	fs := flag.NewFlagSet("init", flag.ExitOnError)
	query := fs.StringP("query", "q", "", "The question to answer about this context")
	adaptive := fs.Bool("adaptive", false, "Size chunks adaptively by dominant file extension")
	incremental := fs.Bool("incremental", false, "Carry forward results for files unchanged since --previous-session")
	previousSession := fs.String("previous-session", "", "Session hash to diff against for incremental re-analysis")
	lazy := fs.Bool("lazy", false, "Render a tree view only; load no file content")
	targets := fs.StringArray("target", nil, "Limit context to this file or directory (repeatable)")
	depth := fs.Int("depth", 0, "Lazy mode tree depth (0 = package default)")
	agentType := fs.String("agent-type", string(session.AgentGeneral), "Prompt persona: general|security|architecture|performance")
	force := fs.Bool("force", false, "Overwrite an in-progress current session")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) == 0 {
		fail(fmt.Errorf("init requires a context path argument"))
		return
	}
	contextPath := rest[0]

	mgr, cancelMgr, err := newSessionManager(cacheRoot)
	if err != nil {
		fail(err)
		return
	}
	defer cancelMgr.Reset()

	if !*force {
		if current, err := mgr.CurrentSession(); err == nil {
			if prev, err := mgr.Load(current); err == nil && prev.Phase != session.PhaseCompleted {
				fmt.Fprintln(os.Stderr, "A session is already in progress; pass --force to start a new one anyway")
				os.Exit(1)
			}
		}
	}

	cfg := session.DefaultConfiguration()
	cfg.AdaptiveChunking = *adaptive
	cfg.Incremental = *incremental
	cfg.PreviousSession = *previousSession
	cfg.AgentType = session.AgentType(*agentType)
	cfg.Targets = *targets

	switch {
	case *lazy:
		cfg.ScanMode = session.ScanModeLazy
		if *depth > 0 {
			cfg.LazyDepth = *depth
		}
	case len(*targets) > 0:
		cfg.ScanMode = session.ScanModeTargeted
	default:
		cfg.ScanMode = session.ScanModeFull
	}

	state, hash, err := mgr.Init(session.InitOptions{
		ContextPath: contextPath,
		Query:       *query,
		Config:      cfg,
	})
	if err != nil {
		fail(err)
		return
	}

	if cfg.ScanMode != session.ScanModeLazy {
		chunks, err := chunkContext(contextPath, cfg)
		if err != nil {
			fail(err)
			return
		}
		state.Chunks = chunks
		if err := mgr.Save(state); err != nil {
			fail(err)
			return
		}
	}

	if globals.JSON {
		fmt.Printf("{\"session_id\":%q,\"chunks\":%d}\n", hash, len(state.Chunks))
		return
	}
	ui.Success(fmt.Sprintf("Session %s created with %d chunks", hash, len(state.Chunks)))
}

// chunkContext re-derives the same file set the session manager composed
// into context text and feeds each file's content through the chunker.
// pkg/chunker imports pkg/session for session.Chunk, so the reverse walk
// has to live here rather than inside pkg/session itself.
func chunkContext(contextPath string, cfg session.Configuration) ([]session.Chunk, error) {
	rules, err := session.ParseIgnoreFile(contextPath)
	if err != nil {
		return nil, err
	}
	prune := session.CombinedPrune(walker.DefaultPruneDirs, rules)

	files, err := filesForScanMode(contextPath, cfg, prune)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var chunks []session.Chunk
	for _, rel := range files {
		full := filepath.Join(contextPath, rel)
		content, err := os.ReadFile(full)
		if err != nil {
			continue // unreadable/oversized files were already skipped by context composition
		}

		opts := chunker.DefaultOptions()
		if cfg.AdaptiveChunking {
			opts.MaxChars = chunker.SizeForExtension(filepath.Ext(rel))
			opts.AdaptiveSizing = true
		}

		fileChunks, err := chunker.Chunk(ctx, rel, content, opts)
		if err != nil {
			continue // a single file's chunk failure does not abort the whole scan
		}
		chunks = append(chunks, fileChunks...)
	}
	return chunks, nil
}

func filesForScanMode(contextPath string, cfg session.Configuration, prune func(relPath, name string, isDir bool) bool) ([]string, error) {
	var files []string

	if cfg.ScanMode == session.ScanModeTargeted {
		for _, target := range cfg.Targets {
			full := filepath.Join(contextPath, target)
			info, err := os.Stat(full)
			if err != nil {
				continue
			}
			if !info.IsDir() {
				files = append(files, target)
				continue
			}
			err = walker.Walk(full, walker.Options{Prune: prune}, func(e walker.Entry) bool {
				if !e.IsDir {
					files = append(files, filepath.Join(target, e.Path))
				}
				return true
			})
			if err != nil {
				return nil, err
			}
		}
		return files, nil
	}

	err := walker.Walk(contextPath, walker.Options{Prune: prune}, func(e walker.Entry) bool {
		if !e.IsDir {
			files = append(files, e.Path)
		}
		return true
	})
	return files, err
}
