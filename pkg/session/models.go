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

// Package session owns the on-disk session directory and the in-memory
// state record: the serialised record of one analysis run, its
// configuration, its chunk index, and the accumulated per-chunk results.
package session

import "time"

// Phase is the session lifecycle label.
type Phase string

const (
	PhaseInitialized Phase = "initialized"
	PhaseChunking    Phase = "chunking"
	PhaseMap         Phase = "map"
	PhaseReduce      Phase = "reduce"
	PhaseCompleted   Phase = "completed"
)

// ScanMode selects how context is composed for a session.
type ScanMode string

const (
	ScanModeFull     ScanMode = "full"
	ScanModeLazy     ScanMode = "lazy"
	ScanModeTargeted ScanMode = "targeted"
)

// AgentType selects the prompt persona dispatched during the map phase.
type AgentType string

const (
	AgentGeneral      AgentType = "general"
	AgentSecurity     AgentType = "security"
	AgentArchitecture AgentType = "architecture"
	AgentPerformance  AgentType = "performance"
)

// Confidence is a finding's self-reported confidence label.
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceLow     Confidence = "low"
	ConfidenceUnknown Confidence = "unknown"
)

// Score maps a confidence label to the numeric weight used by the
// aggregator's group-merge step (high=3, medium=2, low=1, unknown=1).
func (c Confidence) Score() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 1
	}
}

// ChunkStatus is the per-chunk outcome of a map attempt.
type ChunkStatus string

const (
	StatusCompleted  ChunkStatus = "completed"
	StatusPartial    ChunkStatus = "partial"
	StatusFailed     ChunkStatus = "failed"
	StatusPlaceholder ChunkStatus = "placeholder"
	StatusPending    ChunkStatus = "pending"
)

// FailureType classifies why a chunk result failed, gating escalation
// eligibility: only quality_low and complexity chunks may ever escalate.
type FailureType string

const (
	FailureQualityLow  FailureType = "quality_low"
	FailureComplexity  FailureType = "complexity"
	FailureTimeout     FailureType = "timeout"
	FailureParseError  FailureType = "parse_error"
	FailureRateLimit   FailureType = "rate_limit"
	FailureUnknown     FailureType = "unknown"
)

// EscalationEligible reports whether this failure classification is ever
// allowed to escalate — never for timeout, parse_error, rate_limit, unknown.
func (f FailureType) EscalationEligible() bool {
	return f == FailureQualityLow || f == FailureComplexity
}

// Configuration is the per-session tunable parameter set (spec "Configuration").
type Configuration struct {
	ChunkSize           int       `json:"chunk_size"`
	ChunkOverlap        int       `json:"chunk_overlap"`
	MaxParallelAgents   int       `json:"max_parallel_agents"`
	RetryCount          int       `json:"retry_count"`
	TimeoutSeconds      int       `json:"timeout_seconds"`
	AdaptiveChunking    bool      `json:"adaptive_chunking"`
	Escalate            bool      `json:"escalate"`
	MaxEscalationRatio  float64   `json:"max_escalation_ratio"`
	MaxSonnetCostUSD    float64   `json:"max_sonnet_cost_usd"`
	Incremental         bool      `json:"incremental"`
	PreviousSession     string    `json:"previous_session,omitempty"`
	ScanMode            ScanMode  `json:"scan_mode"`
	LazyDepth           int       `json:"lazy_depth"`
	LazyFileLimit       int       `json:"lazy_file_limit"`
	Targets             []string  `json:"targets,omitempty"`
	AgentType           AgentType `json:"agent_type"`
}

// DefaultConfiguration mirrors the boundary values called out in the
// testable-properties section: chunk size 50_000-300_000, overlap strictly
// less than size, a conservative escalation budget.
func DefaultConfiguration() Configuration {
	return Configuration{
		ChunkSize:          100_000,
		ChunkOverlap:       5_000,
		MaxParallelAgents:  4,
		RetryCount:         2,
		TimeoutSeconds:     120,
		AdaptiveChunking:   true,
		Escalate:           false,
		MaxEscalationRatio: 0.15,
		MaxSonnetCostUSD:   5.00,
		Incremental:        false,
		ScanMode:           ScanModeFull,
		LazyDepth:          3,
		LazyFileLimit:      200,
		AgentType:          AgentGeneral,
	}
}

// Validate enforces the configuration boundary invariants from §3/§8:
// chunk size in [50_000, 300_000], overlap in [0, size) strictly.
func (c Configuration) Validate() error {
	if c.ChunkSize < 50_000 || c.ChunkSize > 300_000 {
		return errInvalidChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return errInvalidChunkOverlap
	}
	return nil
}

// Chunk is a contiguous, semantically-delimited slice of source text.
type Chunk struct {
	ID           string `json:"id"`
	RelativePath string `json:"relative_path"`
	StartLine    int    `json:"start_line"`
	EndLine      int    `json:"end_line"`
	StartByte    int    `json:"start_byte"`
	EndByte      int    `json:"end_byte"`
	Content      string `json:"content"`
	Size         int    `json:"size"`
	NodeLabel    string `json:"node_label"` // e.g. "function", "class", "gap_content", "syntax_error_block"
	Language     string `json:"language"`
	IsFallback   bool   `json:"is_fallback"`
}

// Finding is a single point of evidence reported by the external analyser.
type Finding struct {
	Point                string            `json:"point"`
	Evidence             string            `json:"evidence"`
	Confidence           Confidence        `json:"confidence"`
	Location             map[string]string `json:"location,omitempty"`
	VerificationRequired bool              `json:"verification_required"`
}

// ChunkResult is the outcome of analysing one chunk.
type ChunkResult struct {
	ChunkID          string       `json:"chunk_id"`
	Status           ChunkStatus  `json:"status"`
	Findings         []Finding    `json:"findings,omitempty"`
	MissingInfo      []string     `json:"missing_info,omitempty"`
	SuggestedQueries []string     `json:"suggested_queries,omitempty"`
	PartialAnswer    string       `json:"partial_answer,omitempty"`
	Error            string       `json:"error,omitempty"`
	FailureType      FailureType  `json:"failure_type,omitempty"`
	Attempt          int          `json:"attempt,omitempty"`
}

// State is the full serialised session record.
type State struct {
	Version         int                    `json:"version"`
	SessionID       string                 `json:"session_id"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Config          Configuration          `json:"config"`
	ContextMetadata map[string]any         `json:"context_metadata,omitempty"`
	Query           string                 `json:"query"`
	Chunks          []Chunk                `json:"chunks"`
	Results         []ChunkResult          `json:"results"`
	Phase           Phase                  `json:"phase"`
	ProgressPercent float64                `json:"progress_percent"`
	FinalAnswer     *string                `json:"final_answer,omitempty"`
}

// RecomputeProgress restores the invariant progress_percent =
// |completed_chunks| / |chunks|, where completed means a result present
// with status completed, partial, or failed (not placeholder/pending).
func (s *State) RecomputeProgress() {
	if len(s.Chunks) == 0 {
		s.ProgressPercent = 0
		return
	}
	completed := 0
	for _, r := range s.Results {
		if r.Status == StatusCompleted || r.Status == StatusPartial || r.Status == StatusFailed {
			completed++
		}
	}
	s.ProgressPercent = float64(completed) / float64(len(s.Chunks))
}
