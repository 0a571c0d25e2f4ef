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
	"os/signal"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/deepscan/internal/ui"
	"github.com/kraklabs/deepscan/pkg/metrics"
	"github.com/kraklabs/deepscan/pkg/progress"
)

// progressLogName is the fixed filename a session's event log is written
// under inside its session directory; pkg/mapreduce's driver writes here
// through a progress.Writer built with this same path.
const progressLogName = "progress.jsonl"

func progressLogPath(sessionDir string) string {
	return filepath.Join(sessionDir, progressLogName)
}

func runProgress(args []string, cacheRoot string, globals GlobalFlags) {
	globalJSON = globals.JSON
	fs := flag.NewFlagSet("progress", flag.ExitOnError)
	watch := fs.Bool("watch", false, "Poll the progress log until the session completes")
	serveMetrics := fs.String("serve-metrics", "", "Expose Prometheus metrics on this address (e.g. :9090) while watching")
	_ = fs.Parse(args)

	mgr, cancelMgr, err := newSessionManager(cacheRoot)
	if err != nil {
		fail(err)
		return
	}
	defer cancelMgr.Reset()

	hash, err := resolveHash(mgr, "")
	if err != nil {
		fail(err)
		return
	}
	sessionDir, err := mgr.SessionDir(hash)
	if err != nil {
		fail(err)
		return
	}
	logPath := progressLogPath(sessionDir)

	var metricsServer *metrics.Server
	if *serveMetrics != "" {
		metricsServer = metrics.NewServer(*serveMetrics)
		metricsServer.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(ctx)
		}()
	}

	if !*watch {
		printProgressSummary(hash, logPath, globals)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			return
		case <-ticker.C:
			printProgressSummary(hash, logPath, globals)
			state, err := mgr.Load(hash)
			if err == nil && state.ProgressPercent >= 1.0 {
				return
			}
		}
	}
}

func printProgressSummary(hash, logPath string, globals GlobalFlags) {
	events, err := progress.ReadAll(logPath)
	if err != nil {
		fail(err)
		return
	}
	summary := progress.Summarize(events)

	if globals.JSON {
		fmt.Printf(
			"{\"session_id\":%q,\"batches_completed\":%d,\"chunks_completed\":%d,\"findings\":%d,\"escalations\":%d}\n",
			hash, summary.BatchesCompleted, summary.ChunksCompleted, summary.FindingsEmitted, summary.Escalations,
		)
		return
	}

	ui.Header("Progress: " + hash)
	ui.Info(fmt.Sprintf("Batches: %d started, %d completed", summary.BatchesStarted, summary.BatchesCompleted))
	ui.Info(fmt.Sprintf("Chunks completed: %d", summary.ChunksCompleted))
	ui.Info(fmt.Sprintf("Findings: %d", summary.FindingsEmitted))
	if summary.Escalations > 0 {
		ui.Info(fmt.Sprintf("Escalations: %d", summary.Escalations))
	}
}
