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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kraklabs/deepscan/pkg/session"
)

// personaInstructions holds the persona framing injected per agent type.
// The core never calls a model itself; these strings exist only so a
// real Analyzer implementation has a consistent, testable prompt shape.
var personaInstructions = map[session.AgentType]string{
	session.AgentGeneral:      "Review this chunk for any notable issue, risk, or design decision.",
	session.AgentSecurity:     "Review this chunk specifically for security vulnerabilities: injection, auth bypass, unsafe deserialization, secret handling.",
	session.AgentArchitecture: "Review this chunk specifically for architectural concerns: coupling, layering violations, missing abstractions.",
	session.AgentPerformance:  "Review this chunk specifically for performance concerns: unnecessary allocation, quadratic behavior, blocking calls on hot paths.",
}

// GeneratePrompt builds the XML-bounded prompt for one chunk dispatched in
// the parallel map path. The chunk content is wrapped in a <chunk> element
// so the model can distinguish analysed source from instruction text even
// when the source itself contains prompt-like strings.
func GeneratePrompt(chunk session.Chunk, query string, agentType session.AgentType) string {
	persona := personaInstructions[agentType]
	if persona == "" {
		persona = personaInstructions[session.AgentGeneral]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<task>\n%s\n</task>\n", persona)
	fmt.Fprintf(&b, "<query>\n%s\n</query>\n", query)
	fmt.Fprintf(&b, "<chunk id=%q file=%q start_line=\"%d\" end_line=\"%d\">\n%s\n</chunk>\n",
		chunk.ID, chunk.RelativePath, chunk.StartLine, chunk.EndLine, chunk.Content)
	b.WriteString("<response_format>\n")
	b.WriteString("Return a JSON object with keys findings, missing_info, suggested_queries, partial_answer.\n")
	b.WriteString("Each finding has point, evidence, confidence (high|medium|low), and optionally a location map.\n")
	b.WriteString("Prefix a finding's point with \"NEEDS_VERIFICATION: \" when you are not confident it holds.\n")
	b.WriteString("If this chunk alone answers the query, end your response with FINAL(<json>). Otherwise emit NEEDS_MORE(\"reason\") or UNABLE(\"reason\").\n")
	b.WriteString("</response_format>\n")
	return b.String()
}

// CreateSequentialPrompt builds the simpler prompt form: no persona
// framing, no structured-response contract, just the chunk and the query.
// Driver.runSequential does not call it; the sequential path dispatches
// through the same Analyzer as the parallel path.
func CreateSequentialPrompt(chunk session.Chunk, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyse this code in relation to: %s\n\n", query)
	fmt.Fprintf(&b, "File: %s (lines %d-%d)\n%s\n", chunk.RelativePath, chunk.StartLine, chunk.EndLine, chunk.Content)
	return b.String()
}

// structuredResponse mirrors the JSON object GeneratePrompt asks for.
type structuredResponse struct {
	Findings         []session.Finding `json:"findings"`
	MissingInfo      []string          `json:"missing_info"`
	SuggestedQueries []string          `json:"suggested_queries"`
	PartialAnswer    string            `json:"partial_answer"`
}

// ParseResponse turns a model's raw response body into a ChunkResult. A
// body that fails to parse as the structured JSON contract is treated as a
// partial result carrying the raw text as its partial answer rather than a
// hard failure, since a model occasionally answers in prose despite the
// instructions.
func ParseResponse(chunkID string, body string) session.ChunkResult {
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start == -1 || end == -1 || end < start {
		return session.ChunkResult{
			ChunkID:       chunkID,
			Status:        session.StatusPartial,
			PartialAnswer: strings.TrimSpace(body),
		}
	}

	var parsed structuredResponse
	if err := json.Unmarshal([]byte(body[start:end+1]), &parsed); err != nil {
		return session.ChunkResult{
			ChunkID:       chunkID,
			Status:        session.StatusPartial,
			PartialAnswer: strings.TrimSpace(body),
		}
	}

	status := session.StatusCompleted
	if len(parsed.Findings) == 0 && parsed.PartialAnswer != "" {
		status = session.StatusPartial
	}
	return session.ChunkResult{
		ChunkID:          chunkID,
		Status:           status,
		Findings:         parsed.Findings,
		MissingInfo:      parsed.MissingInfo,
		SuggestedQueries: parsed.SuggestedQueries,
		PartialAnswer:    parsed.PartialAnswer,
	}
}
