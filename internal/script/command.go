// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import "unicode/utf8"

// CommandDefinition is one statement found in a script together with its position.
// Offsets count characters (runes) from the beginning of the script.
type CommandDefinition struct {
	text            string
	hasText         bool
	start           int
	end             int
	whitespaceStart int
	index           int
	delimiter       Delimiter
}

// NewCommandDefinition creates a definition for text found at [start, end).
func NewCommandDefinition(text string, start, end int) *CommandDefinition {
	if end < start {
		end = start
	}
	return &CommandDefinition{
		text:            text,
		hasText:         true,
		start:           start,
		end:             end,
		whitespaceStart: start,
	}
}

// Text returns the statement text without the delimiter, or "" when text was not stored.
func (c *CommandDefinition) Text() string { return c.text }

// HasText reports whether the statement text was retained.
func (c *CommandDefinition) HasText() bool { return c.hasText }

// StartOffset is the offset of the first character that is neither whitespace nor part of
// a leading comment.
func (c *CommandDefinition) StartOffset() int { return c.start }

// EndOffset is the offset where the delimiter starts (or end of input).
func (c *CommandDefinition) EndOffset() int { return c.end }

// WhitespaceStart is the offset where the statement region begins, including leading
// whitespace and comments.
func (c *CommandDefinition) WhitespaceStart() int { return c.whitespaceStart }

// Index is the ordinal of the statement in its script.
func (c *CommandDefinition) Index() int { return c.index }

// Delimiter returns the delimiter that terminated the statement.
// It is empty when the statement ended at end of input, at an empty line or at the end of
// a single line command.
func (c *CommandDefinition) Delimiter() Delimiter { return c.delimiter }

// Length returns the number of characters in the stored text.
func (c *CommandDefinition) Length() int { return utf8.RuneCountInString(c.text) }

func (c *CommandDefinition) withoutText() *CommandDefinition {
	c.text = ""
	c.hasText = false
	return c
}
