// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sqlwb/cli/internal/xdg"
)

// History appends executed statements to a log.
type History struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewHistory writes entries to w.
func NewHistory(w io.Writer) *History {
	return &History{w: w, now: time.Now}
}

// OpenHistory opens history.log in the state directory for appending.
// The caller closes the returned file.
func OpenHistory() (*History, *os.File, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "history.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewHistory(f), f, nil
}

// Record appends one entry: a header line with time, status and duration, then the
// statement followed by a line holding only ";".
func (h *History) Record(sql string, res *Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.w, "-- %s %s %s\n%s\n;\n",
		h.now().Format(time.RFC3339),
		res.Status,
		res.Duration.Round(time.Millisecond),
		strings.TrimSpace(sql),
	)
	return err
}
