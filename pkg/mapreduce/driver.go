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

package mapreduce

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/deepscan/pkg/checkpoint"
	"github.com/kraklabs/deepscan/pkg/metrics"
	"github.com/kraklabs/deepscan/pkg/progress"
	"github.com/kraklabs/deepscan/pkg/session"
)

// dispatchMode names which path a batch was processed with.
type dispatchMode string

const (
	modeParallel   dispatchMode = "parallel"
	modeSequential dispatchMode = "sequential"
)

// CancelChecker reports whether the run has been asked to stop. Satisfied
// structurally by *cancel.Manager; redeclared here so this package never
// imports pkg/cancel directly.
type CancelChecker interface {
	IsCancelled() bool
}

// StateSaver persists a session.State. Satisfied by *session.Manager.
type StateSaver interface {
	Save(state *session.State) error
}

// CheckpointSaver persists map-phase progress for crash recovery.
// Satisfied by *checkpoint.Manager.
type CheckpointSaver interface {
	Save(cp checkpoint.Checkpoint) error
}

// Driver runs the map phase: batching unresolved chunks, dispatching them
// through an Analyzer, reconciling results, checkpointing, and tripping a
// circuit breaker into sequential mode when a batch is failing too hard.
type Driver struct {
	Analyzer   Analyzer
	Progress   *progress.Writer
	Checkpoint CheckpointSaver
	Sessions   StateSaver
	Cancel     CancelChecker
	Budget     *EscalationBudget

	// consecutiveBadBatches counts batches in a row whose failure rate
	// exceeded 50%; two in a row trips the circuit breaker.
	consecutiveBadBatches int
	forcedSequential      bool
}

// Run dispatches every chunk that lacks a real result once, in batches,
// stopping early when cancellation is observed. It mutates state.Results
// and state.Phase in place and persists after every batch.
func (d *Driver) Run(ctx context.Context, state *session.State) error {
	state.Phase = session.PhaseMap
	if d.Budget != nil {
		d.Budget.SetTotalChunks(len(state.Chunks))
	}

	pending := pendingChunks(state.Chunks, state.Results)
	groups := batches(pending, state.Config.MaxParallelAgents)

	for batchIndex, batch := range groups {
		if d.Cancel != nil && d.Cancel.IsCancelled() {
			break
		}

		mode := modeParallel
		if d.forcedSequential {
			mode = modeSequential
		}
		d.emit(progress.Event{
			Type:       progress.EventBatchStart,
			BatchIndex: batchIndex,
			BatchSize:  len(batch),
			Mode:       string(mode),
		})

		var results []session.ChunkResult
		var err error
		if mode == modeParallel {
			results, err = d.runParallel(ctx, batch, state.Query, state.Config.AgentType)
		} else {
			results = d.runSequential(ctx, batch, state.Query, state.Config.AgentType)
		}
		if err != nil {
			return err
		}

		state.Results = ReconcileResults(state.Results, results)
		state.RecomputeProgress()

		succeeded, failed := countOutcomes(results)
		for _, r := range results {
			metrics.RecordChunkResult(r.Status)
		}
		metrics.RecordBatch(succeeded, failed)
		if err := d.checkpointBatch(state, batchIndex); err != nil {
			return err
		}
		if d.Sessions != nil {
			if err := d.Sessions.Save(state); err != nil {
				return err
			}
		}

		d.emit(progress.Event{
			Type:       progress.EventBatchEnd,
			BatchIndex: batchIndex,
			Succeeded:  succeeded,
			Failed:     failed,
		})
		for _, r := range results {
			switch r.Status {
			case session.StatusCompleted, session.StatusPartial, session.StatusFailed:
				d.emit(progress.Event{Type: progress.EventChunkComplete, ChunkID: r.ChunkID, Status: string(r.Status)})
			}
			d.emitFindings(r)
		}

		d.updateCircuitBreaker(succeeded, failed)
	}

	return nil
}

// runParallel dispatches a batch concurrently, bounded by the batch's own
// size (which already equals MaxParallelAgents for all but the last batch).
func (d *Driver) runParallel(ctx context.Context, batch []session.Chunk, query string, agentType session.AgentType) ([]session.ChunkResult, error) {
	results := make([]session.ChunkResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, chunk := range batch {
		i, chunk := i, chunk
		g.Go(func() error {
			res, err := d.Analyzer.Analyze(gctx, chunk, query, agentType)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res = session.ChunkResult{
					ChunkID:     chunk.ID,
					Status:      session.StatusFailed,
					Error:       err.Error(),
					FailureType: session.FailureUnknown,
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runSequential processes a batch one chunk at a time through the same
// Analyzer.Analyze call as the parallel path; it does not switch to
// CreateSequentialPrompt or any other prompt form. It never fails the whole
// batch on one chunk's error, matching the parallel path's per-chunk error
// containment.
func (d *Driver) runSequential(ctx context.Context, batch []session.Chunk, query string, agentType session.AgentType) []session.ChunkResult {
	results := make([]session.ChunkResult, 0, len(batch))
	for _, chunk := range batch {
		res, err := d.Analyzer.Analyze(ctx, chunk, query, agentType)
		if err != nil {
			res = session.ChunkResult{
				ChunkID:     chunk.ID,
				Status:      session.StatusFailed,
				Error:       err.Error(),
				FailureType: session.FailureUnknown,
			}
		}
		results = append(results, res)
	}
	return results
}

// updateCircuitBreaker switches remaining batches to sequential mode once
// two batches in a row exceed a 50% failure rate.
func (d *Driver) updateCircuitBreaker(succeeded, failed int) {
	total := succeeded + failed
	if total == 0 {
		return
	}
	if float64(failed)/float64(total) > 0.5 {
		d.consecutiveBadBatches++
	} else {
		d.consecutiveBadBatches = 0
	}
	if d.consecutiveBadBatches >= 2 {
		d.forcedSequential = true
	}
}

func countOutcomes(results []session.ChunkResult) (succeeded, failed int) {
	for _, r := range results {
		switch r.Status {
		case session.StatusCompleted, session.StatusPartial:
			succeeded++
		case session.StatusFailed:
			failed++
		}
	}
	return
}

func (d *Driver) checkpointBatch(state *session.State, batchIndex int) error {
	if d.Checkpoint == nil {
		return nil
	}
	completed := make([]string, 0, len(state.Results))
	for _, r := range state.Results {
		if r.Status == session.StatusCompleted || r.Status == session.StatusPartial || r.Status == session.StatusFailed {
			completed = append(completed, r.ChunkID)
		}
	}
	var pending []string
	for _, c := range state.Chunks {
		if needsMap(c.ID, state.Results) {
			pending = append(pending, c.ID)
		}
	}
	return d.Checkpoint.Save(checkpoint.Checkpoint{
		SessionID:       state.SessionID,
		Phase:           state.Phase,
		BatchIndex:      batchIndex,
		CompletedChunks: completed,
		PendingChunks:   pending,
		PartialResults:  state.Results,
	})
}

func (d *Driver) emit(ev progress.Event) {
	if d.Progress == nil {
		return
	}
	_ = d.Progress.Emit(ev)
}

func (d *Driver) emitFindings(result session.ChunkResult) {
	for _, f := range result.Findings {
		d.emit(progress.Event{
			Type:       progress.EventFinding,
			ChunkID:    result.ChunkID,
			Point:      f.Point,
			Confidence: string(f.Confidence),
		})
	}
}

// Escalate re-dispatches every failed, escalation-eligible chunk still
// within budget at the agent type requested by the caller (typically a
// more capable tier than the original pass), emitting an escalation event
// per chunk whose retry returns a result. A retry that returns an error is
// skipped: no event, no budget charge, and the failed result stays.
func (d *Driver) Escalate(ctx context.Context, state *session.State, agentType session.AgentType) error {
	if d.Budget != nil {
		d.Budget.SetTotalChunks(len(state.Chunks))
	}

	var toEscalate []session.Chunk
	for _, r := range state.Results {
		if r.Status != session.StatusFailed {
			continue
		}
		if d.Budget != nil && !d.Budget.CanEscalate(r) {
			continue
		}
		for _, c := range state.Chunks {
			if c.ID == r.ChunkID {
				toEscalate = append(toEscalate, c)
				break
			}
		}
	}
	if len(toEscalate) == 0 {
		return nil
	}

	for _, chunk := range toEscalate {
		if d.Cancel != nil && d.Cancel.IsCancelled() {
			break
		}
		res, err := d.Analyzer.Analyze(ctx, chunk, state.Query, agentType)
		if err != nil {
			continue
		}
		res.Attempt++
		state.Results = ReconcileResults(state.Results, []session.ChunkResult{res})
		if d.Budget != nil {
			d.Budget.RecordEscalation()
		}
		metrics.RecordEscalation()
		d.emit(progress.Event{
			Type:      progress.EventEscalation,
			ChunkID:   chunk.ID,
			FromModel: "default",
			ToModel:   string(agentType),
		})
	}
	state.RecomputeProgress()
	if d.Sessions != nil {
		return d.Sessions.Save(state)
	}
	return nil
}
