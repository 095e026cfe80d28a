// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// ParseLevel maps a config value to a pterm log level. Unknown values yield warn.
func ParseLevel(s string) pterm.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "info":
		return pterm.LogLevelInfo
	case "error":
		return pterm.LogLevelError
	case "off", "disabled", "none":
		return pterm.LogLevelDisabled
	default:
		return pterm.LogLevelWarn
	}
}

// New builds a structured logger writing to w (stderr when nil).
func New(level pterm.LogLevel, w io.Writer) *pterm.Logger {
	if w == nil {
		w = os.Stderr
	}
	return pterm.DefaultLogger.
		WithLevel(level).
		WithWriter(w).
		WithTime(level <= pterm.LogLevelDebug)
}

// Disabled returns a logger that drops everything.
func Disabled() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled).WithWriter(io.Discard)
}

// OrDisabled returns l, or a disabled logger when l is nil.
func OrDisabled(l *pterm.Logger) *pterm.Logger {
	if l == nil {
		return Disabled()
	}
	return l
}
