// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"sync"
	"time"

	"sqlwb/cli/internal/terminal"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

var spinnerFrames = []string{"-", "\\", "|", "/"}

// startSpinner shows an animated status line until the returned function is called.
// Without a terminal it does nothing. text is called on every frame so the caller can
// report progress.
func startSpinner(text func() string) func() {
	if !terminal.Interactive() {
		return func() {}
	}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return func() {}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		i := 0
		for {
			select {
			case <-t.C:
				i++
				area.Update(fmt.Sprintf("%s %s", spinnerFrames[i%len(spinnerFrames)], text()))
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			_ = area.Stop()
			cursor.Show()
		})
	}
}

// staticText adapts a fixed label for startSpinner.
func staticText(s string) func() string {
	return func() string { return s }
}
