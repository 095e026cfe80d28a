// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal provides small helpers for interactive terminal output.
package terminal

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const defaultWidth = 80

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Interactive reports whether both stdin and stdout are terminals.
func Interactive() bool {
	return IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}

// Width returns the width of stdout, or 80 when it is not a terminal.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

// LinesFor returns how many terminal rows textLength characters occupy at width.
func LinesFor(textLength, width int) int {
	if width <= 0 {
		width = defaultWidth
	}
	lines := (textLength + width - 1) / width
	if lines < 1 {
		lines = 1
	}
	return lines
}

// ClearPreviousLines erases text that was just echoed, such as a prompt and the
// user's answer. The extra line is the one created when the user pressed Enter.
func ClearPreviousLines(textLength int) {
	clearLines(os.Stdout, LinesFor(textLength, Width())+1)
}

func clearLines(w io.Writer, n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K")
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A")
		}
	}
}
