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

// Package main implements the DeepScan CLI: session lifecycle commands,
// the sandboxed exec REPL, the map/reduce driver, and the aggregator.
//
// Usage:
//
//	deepscan init <path> [-q query]   Create a session over a directory
//	deepscan map                      Dispatch pending chunks
//	deepscan reduce                   Aggregate findings into a final answer
//	deepscan status                   Show the current session
package main

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/deepscan/internal/ui"
	"github.com/kraklabs/deepscan/pkg/grepworker"
	"github.com/kraklabs/deepscan/pkg/sandbox"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the flags that apply regardless of which command runs.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func logInfo(globals GlobalFlags, format string, args ...interface{}) {
	if !globals.Quiet && globals.Verbose >= 1 {
		fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
	}
}

func logDebug(globals GlobalFlags, format string, args ...interface{}) {
	if globals.Verbose >= 2 {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// main is the entry point. Before any flag parsing happens it checks for
// the two hidden worker subcommands a self-reexec'd sandbox/grep call
// would invoke, since those must never be confused with ordinary CLI use.
func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "__sandbox_worker__":
			sandbox.RunWorkerMain()
			return
		case grepworker.WorkerSubcommand:
			grepworker.RunWorkerMain()
			return
		}
	}

	os.Args = expandShortcut(os.Args)

	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to the cache root (default: ~/.deepscan)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `DeepScan - chunked source analysis over an external model

Usage:
  deepscan <command> [options]

Commands:
  init <path>          Create a session over a directory
  status                Summarise the current session
  list                  Summarise every session, newest first
  resume [hash]         Set the current session
  abort <hash>          Delete a session
  clean                 Remove sessions past their TTL
  exec -c CODE          Evaluate an expression in the sandbox
  map                    Dispatch pending chunks through the map phase
  progress               Summarise or watch the progress log
  reduce                 Aggregate findings into a final answer
  export-results PATH    Dump the current results as JSON
  reset                  Destroy the current session

Shortcuts:
  ?            status
  ! CODE       exec -c CODE
  + [hash]     resume [hash]
  x [hash]     abort [hash]
  <path>       init <path>, when <path> exists on disk

Global Options:
  --json            Output in JSON format
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to the cache root
  -V, --version     Show version and exit

For detailed command help: deepscan <command> --help
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("deepscan version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	cacheRoot := *configPath
	if cacheRoot == "" {
		cacheRoot = defaultCacheRoot()
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, cacheRoot, globals)
	case "status":
		runStatus(cmdArgs, cacheRoot, globals)
	case "list":
		runList(cmdArgs, cacheRoot, globals)
	case "resume":
		runResume(cmdArgs, cacheRoot, globals)
	case "abort":
		runAbort(cmdArgs, cacheRoot, globals)
	case "clean":
		runClean(cmdArgs, cacheRoot, globals)
	case "exec":
		runExec(cmdArgs, cacheRoot, globals)
	case "map":
		runMap(cmdArgs, cacheRoot, globals)
	case "progress":
		runProgress(cmdArgs, cacheRoot, globals)
	case "reduce":
		runReduce(cmdArgs, cacheRoot, globals)
	case "export-results":
		runExportResults(cmdArgs, cacheRoot, globals)
	case "reset":
		runReset(cmdArgs, cacheRoot, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// defaultCacheRoot mirrors the source CLI's "~/.deepscan" default.
func defaultCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deepscan"
	}
	return filepath.Join(home, ".deepscan")
}

// expandShortcut rewrites the single-character and path shortcuts into
// their full command form before pflag ever sees argv, per spec.md §6:
// "?" -> status, "! CODE" -> exec -c CODE, "+ [hash]" -> resume [hash],
// "x [hash]" -> abort [hash], and an existing path as the first argument
// -> init <path>.
func expandShortcut(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}
	prog, rest := argv[0], argv[1:]

	switch rest[0] {
	case "?":
		return append([]string{prog, "status"}, rest[1:]...)
	case "!":
		if len(rest) < 2 {
			return argv
		}
		return append([]string{prog, "exec", "-c"}, rest[1:]...)
	case "+":
		return append([]string{prog, "resume"}, rest[1:]...)
	case "x":
		return append([]string{prog, "abort"}, rest[1:]...)
	}

	if _, err := os.Stat(rest[0]); err == nil {
		return append([]string{prog, "init"}, rest...)
	}
	return argv
}
