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

// Package chunker splits source files into semantically meaningful chunks
// via an AST-coalescing walk, falling back to line-aware text splitting
// when the language is unsupported or the parse fails.
package chunker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/kraklabs/deepscan/pkg/session"
)

// Options bounds the chunker's output sizes and recursion.
type Options struct {
	MaxChars        int // character budget per chunk
	MaxTokens       int // token budget per chunk (tokens estimated at chars/4)
	MaxDepth        int // recursion depth before falling back to depth_limit_fallback
	OverlapLines    int // text-fallback overlap window, default 5
	AdaptiveSizing  bool
	Logger          *slog.Logger
}

// DefaultOptions mirrors the adaptive sizing table: code 100_000, config
// 80_000, documentation 200_000 — callers select the per-extension default
// via SizeForExtension before constructing Options.
func DefaultOptions() Options {
	return Options{
		MaxChars:     100_000,
		MaxTokens:    25_000,
		MaxDepth:     64,
		OverlapLines: 5,
	}
}

// SizeForExtension returns the adaptive chunk-size default for the
// dominant file extension across a context, per the chunker's adaptive
// sizing table.
func SizeForExtension(ext string) int {
	switch strings.ToLower(ext) {
	case ".md", ".rst", ".txt", ".adoc":
		return 200_000
	case ".yaml", ".yml", ".json", ".toml", ".ini", ".cfg", ".conf":
		return 80_000
	default:
		return 100_000
	}
}

var extToLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
}

// DetectLanguage maps a file extension to a chunker language tag, or ""
// for unsupported/unknown extensions (callers fall through to text mode).
func DetectLanguage(path string) string {
	return extToLanguage[strings.ToLower(filepath.Ext(path))]
}

// ChunkID computes the deterministic 8-hex chunk identifier from
// (relative_path, start_line, content) — the same triple always yields the
// same id, which is required for checkpoint/cache reuse across runs.
func ChunkID(relativePath string, startLine int, content string) string {
	h := sha256.New()
	h.Write([]byte(relativePath))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startLine)))
	h.Write([]byte{0})
	h.Write([]byte(content))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:8]
}

// estimateTokens applies the spec's heuristic: one token per four
// characters, reduced by 20% when whitespace density exceeds 30%.
func estimateTokens(content string) int {
	if len(content) == 0 {
		return 0
	}
	whitespace := 0
	for _, r := range content {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			whitespace++
		}
	}
	density := float64(whitespace) / float64(len(content))
	tokens := float64(len(content)) / 4.0
	if density > 0.30 {
		tokens *= 0.80
	}
	return int(tokens)
}

// chunker accumulates chunks for a single file during one coalescing walk.
type chunker struct {
	relPath  string
	content  []byte
	language string
	opts     Options
	logger   *slog.Logger
	out      []session.Chunk
}

// lineOf converts a byte offset to a 1-based line number by counting the
// newlines before it. emitChunk uses it for the start and end lines of
// every AST-path chunk; textFallback tracks line numbers itself.
func lineOf(content []byte, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return 1 + bytes.Count(content[:offset], []byte("\n"))
}

// Chunk splits content into an ordered, gap-free sequence of chunks.
// relPath is the path recorded on each chunk (for deterministic IDs and
// display) and selects the language; the caller supplies the file content.
func Chunk(ctx context.Context, relPath string, content []byte, opts Options) ([]session.Chunk, error) {
	if opts.MaxChars == 0 {
		opts = DefaultOptions()
	}
	if opts.OverlapLines == 0 {
		opts.OverlapLines = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	language := DetectLanguage(relPath)
	if language == "" {
		return textFallback(relPath, content, opts), nil
	}

	pools := newParserPools(logger)
	tree, release, err := pools.parse(ctx, language, content)
	if err != nil {
		logger.Debug("chunker.fallback", "path", relPath, "reason", "parse_failed", "error", err)
		return textFallback(relPath, content, opts), nil
	}
	defer release()
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return textFallback(relPath, content, opts), nil
	}

	c := &chunker{relPath: relPath, content: content, language: language, opts: opts, logger: logger}
	cursor := c.walk(root, 0)
	c.emitGap(cursor, len(content), "gap_content")
	return c.out, nil
}

// walk performs the coalescing descent described in the component design:
// gaps before each child are emitted verbatim, scope/compound nodes that
// fit the budget are emitted whole, oversized or depth-exhausted nodes
// recurse or fall back to line-splitting. It returns the last processed
// byte offset ("cursor").
func (c *chunker) walk(node *sitter.Node, depth int) int {
	cursor := int(node.StartByte())

	if depth >= c.opts.MaxDepth {
		c.emitGap(cursor, int(node.EndByte()), "depth_limit_fallback")
		return int(node.EndByte())
	}

	childCount := int(node.ChildCount())
	for i := 0; i < childCount; i++ {
		child := node.Child(i)
		start := int(child.StartByte())
		end := int(child.EndByte())

		if start > cursor {
			c.emitGap(cursor, start, "gap_content")
		}

		switch classify(child.Type(), c.language) {
		case nodeError:
			c.emitNodeOrSplit(child, "syntax_error_block")
		case nodeScope, nodeCompound:
			text := c.content[start:end]
			if c.fitsBudget(text) {
				c.emitChunk(start, end, classify(child.Type(), c.language).label(), false)
			} else {
				cursor = c.walk(child, depth+1)
				if end > cursor {
					c.emitGap(cursor, end, "gap_content")
				}
				cursor = end
				continue
			}
		default:
			c.emitNodeOrSplit(child, "other")
		}
		cursor = end
	}
	return cursor
}

func (c *chunker) fitsBudget(text []byte) bool {
	if len(text) > c.opts.MaxChars {
		return false
	}
	effectiveTokenBudget := int(float64(c.opts.MaxTokens) * 0.8)
	return estimateTokens(string(text)) <= effectiveTokenBudget
}

func (c *chunker) emitNodeOrSplit(node *sitter.Node, label string) {
	start, end := int(node.StartByte()), int(node.EndByte())
	text := c.content[start:end]
	if c.fitsBudget(text) {
		c.emitChunk(start, end, label, false)
		return
	}
	c.emitGap(start, end, label)
}

// emitGap splits a byte range into one or more chunks by line, labeling
// them with label (used both for true AST gaps and for any node whose
// content exceeds the budget).
func (c *chunker) emitGap(start, end int, label string) {
	if start >= end {
		return
	}
	segment := c.content[start:end]
	if c.fitsBudget(segment) {
		c.emitChunk(start, end, label, label != "gap_content")
		return
	}

	lineStart := start
	for lineStart < end {
		lineEnd := lineStart
		budget := c.opts.MaxChars
		limit := lineStart + budget
		if limit > end {
			limit = end
		}
		// extend to the next newline at-or-after limit, or to end.
		idx := bytes.IndexByte(c.content[limit:end], '\n')
		if idx == -1 {
			lineEnd = end
		} else {
			lineEnd = limit + idx + 1
		}
		if lineEnd <= lineStart {
			lineEnd = end
		}
		c.emitChunk(lineStart, lineEnd, label, true)
		lineStart = lineEnd
	}
}

func (c *chunker) emitChunk(start, end int, label string, isFallback bool) {
	if start >= end {
		return
	}
	content := string(c.content[start:end])
	startLine := lineOf(c.content, start)
	endLine := lineOf(c.content, end-1)
	if endLine < startLine {
		endLine = startLine
	}
	c.out = append(c.out, session.Chunk{
		ID:           ChunkID(c.relPath, startLine, content),
		RelativePath: c.relPath,
		StartLine:    startLine,
		EndLine:      endLine,
		StartByte:    start,
		EndByte:      end,
		Content:      content,
		Size:         len(content),
		NodeLabel:    label,
		Language:     c.language,
		IsFallback:   isFallback,
	})
}

type nodeKind int

const (
	nodeOther nodeKind = iota
	nodeScope
	nodeCompound
	nodeError
)

func (k nodeKind) label() string {
	switch k {
	case nodeScope:
		return "scope"
	case nodeCompound:
		return "compound"
	case nodeError:
		return "syntax_error_block"
	default:
		return "other"
	}
}

var scopeNodeTypes = map[string]bool{
	// Go
	"function_declaration": true, "method_declaration": true,
	"type_declaration": true, "source_file": true,
	// Python
	"function_definition": true, "class_definition": true, "decorated_definition": true,
	// JS/TS
	"function_declaration_": true, "class_declaration": true, "method_definition": true,
	"arrow_function": true, "interface_declaration": true, "program": true,
}

var compoundNodeTypes = map[string]bool{
	"if_statement": true, "for_statement": true, "while_statement": true,
	"try_statement": true, "with_statement": true, "match_statement": true,
	"switch_statement": true, "select_statement": true, "for_in_statement": true,
	"for_range_clause": true, "switch_expression": true,
}

func classify(nodeType, _language string) nodeKind {
	if nodeType == "ERROR" {
		return nodeError
	}
	if scopeNodeTypes[nodeType] {
		return nodeScope
	}
	if compoundNodeTypes[nodeType] {
		return nodeCompound
	}
	return nodeOther
}

// textFallback line-splits content with a configurable overlap window,
// used for unsupported languages and untrusted/failed parses. Chunk
// boundaries align to line starts so no line is ever split mid-content.
func textFallback(relPath string, content []byte, opts Options) []session.Chunk {
	var out []session.Chunk
	lines := bytes.SplitAfter(content, []byte("\n"))

	lineStart := 0 // byte offset of the first line in the current window
	startLineNo := 1
	i := 0
	for i < len(lines) {
		var buf bytes.Buffer
		startIdx := i
		for i < len(lines) && buf.Len() < opts.MaxChars {
			buf.Write(lines[i])
			i++
		}
		chunkContent := buf.String()
		if chunkContent == "" {
			break
		}
		endLineNo := startLineNo + (i - startIdx) - 1
		out = append(out, session.Chunk{
			ID:           ChunkID(relPath, startLineNo, chunkContent),
			RelativePath: relPath,
			StartLine:    startLineNo,
			EndLine:      endLineNo,
			StartByte:    lineStart,
			EndByte:      lineStart + len(chunkContent),
			Content:      chunkContent,
			Size:         len(chunkContent),
			NodeLabel:    "text_fallback",
			Language:     "",
			IsFallback:   true,
		})
		lineStart += len(chunkContent)

		overlap := opts.OverlapLines
		if overlap > 0 && i < len(lines) {
			i -= overlap
			if i < startIdx {
				i = startIdx + 1 // always make forward progress
			}
			// recompute lineStart/startLineNo for the overlapping window
			back := 0
			recomputed := 0
			for j := startIdx; j < i; j++ {
				recomputed += len(lines[j])
				back++
			}
			lineStart -= (len(chunkContent) - recomputed)
			startLineNo += back
		} else {
			startLineNo = endLineNo + 1
		}
	}
	return out
}
