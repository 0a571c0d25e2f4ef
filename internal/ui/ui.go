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

// Package ui provides colorized terminal output helpers shared by every
// deepscan CLI command.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Green = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Cyan = color.New(color.FgCyan)
	Dim = color.New(color.Faint)
	red = color.New(color.FgRed)
	bold = color.New(color.Bold)
)

// InitColors wires color.NoColor to the resolved color policy: explicit
// --no-color, NO_COLOR env var (checked by callers before this runs), or
// stdout not being a terminal.
func InitColors(noColor bool) {
	if noColor {
		color.NoColor = true
		return
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section header.
func Header(text string) {
	bold.Println(text)
}

// SubHeader prints a bold, unindented sub-header; it renders the same way
// as Header.
func SubHeader(text string) {
	bold.Println(text)
}

// Label renders a field label in bold, for "Label: value" lines.
func Label(text string) string {
	return bold.Sprint(text)
}

// Info prints an informational line in the default color.
func Info(text string) {
	fmt.Println(text)
}

// Infof prints a formatted informational line.
func Infof(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// Success prints a green success line.
func Success(text string) {
	Green.Println(text)
}

// Successf prints a formatted green success line.
func Successf(format string, args ...interface{}) {
	Green.Printf(format+"\n", args...)
}

// Warning prints a yellow warning line to stderr.
func Warning(text string) {
	Yellow.Fprintln(os.Stderr, text)
}

// Warningf prints a formatted yellow warning line to stderr.
func Warningf(format string, args ...interface{}) {
	Yellow.Fprintf(os.Stderr, format+"\n", args...)
}

// Error prints a red error line to stderr.
func Error(text string) {
	red.Fprintln(os.Stderr, text)
}

// DimText renders text in a dim/faint style, for secondary detail.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText renders a numeric count, dimmed when zero to de-emphasize it.
func CountText(n int) string {
	if n == 0 {
		return Dim.Sprint("0")
	}
	return fmt.Sprintf("%d", n)
}
