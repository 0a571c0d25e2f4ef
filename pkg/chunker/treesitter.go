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

package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// parserPools lazily constructs one sync.Pool of *sitter.Parser per
// supported language, so concurrent chunking never shares a parser
// instance (tree-sitter parsers are not safe for concurrent use).
type parserPools struct {
	logger *slog.Logger

	goPool sync.Pool
	pyPool sync.Pool
	jsPool sync.Pool
	tsPool sync.Pool
	init   sync.Once
}

func newParserPools(logger *slog.Logger) *parserPools {
	if logger == nil {
		logger = slog.Default()
	}
	return &parserPools{logger: logger}
}

func (p *parserPools) ensureInit() {
	p.init.Do(func() {
		p.goPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(golang.GetLanguage())
			return parser
		}
		p.pyPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(python.GetLanguage())
			return parser
		}
		p.jsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(javascript.GetLanguage())
			return parser
		}
		p.tsPool.New = func() any {
			parser := sitter.NewParser()
			parser.SetLanguage(typescript.GetLanguage())
			return parser
		}
	})
}

// poolFor maps a chunker language tag to the pool holding that
// language's parser, or nil if the language has no tree-sitter grammar
// bundled (the caller falls through to text mode in that case).
func (p *parserPools) poolFor(language string) *sync.Pool {
	switch language {
	case "go":
		return &p.goPool
	case "python":
		return &p.pyPool
	case "javascript":
		return &p.jsPool
	case "typescript":
		return &p.tsPool
	default:
		return nil
	}
}

// parse parses content with the pooled parser for language, returning the
// resulting tree. The caller must call tree.Close() and return the parser
// to its pool when done via the returned release func.
func (p *parserPools) parse(ctx context.Context, language string, content []byte) (*sitter.Tree, func(), error) {
	p.ensureInit()
	pool := p.poolFor(language)
	if pool == nil {
		return nil, func() {}, fmt.Errorf("no tree-sitter grammar bundled for language %q", language)
	}
	parserObj := pool.Get()
	parser, ok := parserObj.(*sitter.Parser)
	if !ok {
		return nil, func() {}, fmt.Errorf("invalid parser type from %q pool", language)
	}
	release := func() { pool.Put(parser) }

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		release()
		return nil, func() {}, err
	}
	return tree, release, nil
}

// countErrorNodes counts ERROR nodes in the parsed tree. Chunk does not
// call it: a tree with ERROR nodes still drives chunking, and each such
// node becomes a syntax_error_block chunk.
func countErrorNodes(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	count := 0
	if node.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrorNodes(node.Child(i))
	}
	return count
}
