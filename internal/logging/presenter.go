// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"errors"
	"strings"

	apperr "sqlwb/cli/internal/errors"
)

// PresentError renders err for the terminal, prefixed with what was being done.
// Typed errors show their message and cause without the kind label. Secrets are masked.
func PresentError(action string, err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	var e *apperr.E
	if errors.As(err, &e) {
		text = e.Message
		if e.Err != nil {
			text += ": " + e.Err.Error()
		}
	}
	text = Mask(strings.TrimSpace(text))
	if action == "" {
		return text
	}
	return action + ": " + text
}
