// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import (
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	apperr "sqlwb/cli/internal/errors"
	"sqlwb/cli/internal/logging"

	"github.com/pterm/pterm"
)

// Iterator produces the statements of a script one at a time.
type Iterator interface {
	// HasMoreCommands reports whether unconsumed input remains.
	HasMoreCommands() bool
	// NextCommand returns the next statement or nil when the input is exhausted.
	NextCommand() *CommandDefinition
	// Reset rewinds to the beginning of the configured source.
	Reset() error
	// Done releases file handles. It may be called more than once.
	Done()
}

// defaultSingleLineCommands are SQL*Plus style commands that end at the line break.
var defaultSingleLineCommands = []*regexp.Regexp{
	regexp.MustCompile(`(?is)^SET\s+\S+.*\s(ON|OFF)$`),
	regexp.MustCompile(`(?is)^ECHO\s+(ON|OFF)$`),
	regexp.MustCompile(`(?is)^(SPOOL|PROMPT|WHENEVER|DEFINE|UNDEFINE)(\s.*)?$`),
}

// Splitter is the lexer based Iterator. All dialects share its quote and comment handling;
// dialect differences live in the LexerOptions and the optional DelimiterTester.
type Splitter struct {
	open   func() (io.RuneReader, io.Closer, error)
	closer io.Closer
	lexer  *Lexer
	logger *pterm.Logger

	lexOpts              LexerOptions
	delimiter            Delimiter
	tester               DelimiterTester
	emptyLineIsDelimiter bool
	singleLineCommands   bool
	oracleInclude        bool
	storeText            bool
	singleLinePatterns   []*regexp.Regexp

	index        int
	pendingStart int
	exhausted    bool
	err          error
}

// NewSplitter creates a splitter using the standard delimiter.
func NewSplitter(opts LexerOptions, logger *pterm.Logger) *Splitter {
	return &Splitter{
		lexOpts:            opts,
		delimiter:          Standard,
		storeText:          true,
		singleLinePatterns: defaultSingleLineCommands,
		logger:             logging.OrDisabled(logger),
	}
}

// SetScript configures an in-memory source and resets the scan state.
func (s *Splitter) SetScript(text string) {
	s.Done()
	s.open = func() (io.RuneReader, io.Closer, error) {
		return strings.NewReader(text), nil, nil
	}
	if err := s.Reset(); err != nil {
		s.logger.Warn("cannot start script", s.logger.Args("error", err))
	}
}

// SetFile configures a streamed file source and resets the scan state.
func (s *Splitter) SetFile(path, encoding string) error {
	if strings.TrimSpace(path) == "" {
		return apperr.New(apperr.InvalidArgument, "no script file given")
	}
	s.Done()
	s.open = func() (io.RuneReader, io.Closer, error) {
		return openFile(path, encoding)
	}
	return s.Reset()
}

// SetDelimiter sets the statement delimiter. An empty delimiter falls back to ";".
func (s *Splitter) SetDelimiter(d Delimiter) {
	s.delimiter = d.OrStandard()
	if s.tester != nil {
		s.tester.SetDelimiter(s.delimiter)
	}
}

// SetAlternateDelimiter hands the alternate delimiter to the DelimiterTester, which
// decides when it applies. Without a tester the alternate is not used.
func (s *Splitter) SetAlternateDelimiter(d Delimiter) {
	if s.tester != nil {
		s.tester.SetAlternateDelimiter(d)
	}
}

// SetDelimiterTester installs a per-statement delimiter policy.
func (s *Splitter) SetDelimiterTester(t DelimiterTester) {
	s.tester = t
	if t != nil {
		t.SetDelimiter(s.delimiter)
	}
}

// SetCheckEscapedQuotes makes the lexer treat a backslash-escaped quote as part of the string.
func (s *Splitter) SetCheckEscapedQuotes(flag bool) { s.lexOpts.CheckEscapedQuotes = flag }

// SetEmptyLineIsDelimiter ends a statement at a blank line.
func (s *Splitter) SetEmptyLineIsDelimiter(flag bool) { s.emptyLineIsDelimiter = flag }

// SetCheckForSingleLineCommands ends client commands such as SET ... ON or PROMPT at the line break.
func (s *Splitter) SetCheckForSingleLineCommands(flag bool) { s.singleLineCommands = flag }

// SetSupportOracleInclude treats a line starting with @ as a complete include command.
func (s *Splitter) SetSupportOracleInclude(flag bool) { s.oracleInclude = flag }

// SetAlternateLineComment adds a second line comment marker, such as #.
func (s *Splitter) SetAlternateLineComment(marker string) { s.lexOpts.AlternateLineComment = marker }

// SetStoreText controls whether statement text is retained in the definitions.
func (s *Splitter) SetStoreText(flag bool) { s.storeText = flag }

// Err returns the read error that ended the scan early, if any.
func (s *Splitter) Err() error { return s.err }

// Reset rewinds to the beginning of the source.
func (s *Splitter) Reset() error {
	if s.open == nil {
		return apperr.New(apperr.InvalidArgument, "no script configured")
	}
	s.Done()
	r, c, err := s.open()
	if err != nil {
		s.exhausted = true
		s.err = err
		return err
	}
	s.closer = c
	s.lexer = NewLexer(r, s.lexOpts)
	s.index = 0
	s.pendingStart = 0
	s.exhausted = false
	s.err = nil
	if s.tester != nil {
		s.tester.StatementFinished()
	}
	return nil
}

// Done closes the underlying file, if any.
func (s *Splitter) Done() {
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			s.logger.Debug("closing script source failed", s.logger.Args("error", err))
		}
		s.closer = nil
	}
}

// HasMoreCommands reports whether input remains.
func (s *Splitter) HasMoreCommands() bool {
	if s.lexer == nil || s.exhausted {
		return false
	}
	_, ok := s.lexer.Peek(0)
	return ok
}

// NextCommand returns the next non-empty statement.
func (s *Splitter) NextCommand() *CommandDefinition {
	if s.lexer == nil || s.exhausted {
		return nil
	}
	cmd, more := s.scanCommand()
	if !more {
		s.exhausted = true
		if err := s.lexer.Err(); err != nil {
			s.err = err
			s.logger.Warn("script could not be read completely", s.logger.Args("error", err))
		}
		s.Done()
	}
	return cmd
}

func (s *Splitter) currentDelimiter() Delimiter {
	if s.tester != nil {
		return s.tester.CurrentDelimiter()
	}
	return s.delimiter
}

// statementState collects one statement while scanning.
type statementState struct {
	text          strings.Builder
	start         int
	firstLine     bool
	singleLine    bool
	lineHasTokens bool
	newlines      int
}

// scanCommand reads tokens until a statement boundary. It returns false as second
// value when the input is exhausted.
func (s *Splitter) scanCommand() (*CommandDefinition, bool) {
	st := &statementState{start: -1, firstLine: true}
	for {
		tok, ok := s.lexer.Next()
		if !ok {
			cmd := s.finish(st, s.lexer.Offset(), Delimiter{})
			s.pendingStart = s.lexer.Offset()
			return cmd, false
		}

		switch {
		case tok.Kind == TokenNewline:
			st.lineHasTokens = false
			if st.start < 0 {
				continue
			}
			if st.singleLine || (st.firstLine && s.isSingleLineCommand(st.text.String())) {
				if cmd := s.emit(st, tok.Start, Delimiter{}, tok.End); cmd != nil {
					return cmd, true
				}
				st = &statementState{start: -1, firstLine: true}
				continue
			}
			st.firstLine = false
			st.newlines++
			if s.emptyLineIsDelimiter && st.newlines >= 2 {
				if cmd := s.emit(st, tok.Start, Delimiter{}, tok.End); cmd != nil {
					return cmd, true
				}
				st = &statementState{start: -1, firstLine: true}
				continue
			}
			st.text.WriteString(tok.Text)

		case tok.Kind == TokenWhitespace:
			if st.start >= 0 {
				st.text.WriteString(tok.Text)
			}

		case tok.IsComment():
			if st.start >= 0 {
				st.newlines = 0
				st.text.WriteString(tok.Text)
			}

		default:
			isStartOfLine := !st.lineHasTokens
			if tok.Kind != TokenString {
				if d := s.currentDelimiter(); !st.singleLine {
					if next, matched := s.matchDelimiter(tok, d, isStartOfLine); matched {
						if st.start < 0 {
							// empty statement such as ";;"
							if s.tester != nil {
								s.tester.StatementFinished()
							}
							st = &statementState{start: -1, firstLine: true}
							continue
						}
						return s.emit(st, tok.Start, d, next), true
					}
				}
			}
			if st.start < 0 {
				st.start = tok.Start
				if s.tester != nil && s.tester.IsSingleLineStatement(tok, isStartOfLine) {
					st.singleLine = true
				} else if s.oracleInclude && isStartOfLine && tok.Kind == TokenSymbol && tok.Text == "@" {
					st.singleLine = true
				}
			}
			if s.tester != nil {
				s.tester.CurrentToken(tok, isStartOfLine)
			}
			st.lineHasTokens = true
			st.newlines = 0
			st.text.WriteString(tok.Text)
		}
	}
}

// matchDelimiter checks whether d starts at tok. On success the delimiter tokens are
// consumed and the offset where the next statement region begins is returned.
func (s *Splitter) matchDelimiter(tok Token, d Delimiter, isStartOfLine bool) (int, bool) {
	if d.IsEmpty() || (d.IsSingleLine() && !isStartOfLine) {
		return 0, false
	}
	want := d.Text()
	wantLen := utf8.RuneCountInString(want)
	combined := tok.Text
	extra := 0
	for utf8.RuneCountInString(combined) < wantLen {
		p, ok := s.lexer.Peek(extra)
		if !ok || !p.Significant() || p.Kind == TokenString {
			return 0, false
		}
		combined += p.Text
		extra++
	}
	if !strings.EqualFold(combined, want) {
		return 0, false
	}

	rest := extra
	if d.IsSingleLine() {
		for {
			p, ok := s.lexer.Peek(rest)
			if !ok || p.Kind == TokenNewline {
				break
			}
			if p.Kind != TokenWhitespace && p.Kind != TokenLineComment {
				return 0, false
			}
			rest++
		}
		// the line break belongs to the delimiter line
		if p, ok := s.lexer.Peek(rest); ok && p.Kind == TokenNewline {
			rest++
		}
	}
	end := tok.End
	for i := 0; i < rest; i++ {
		t, _ := s.lexer.Next()
		end = t.End
	}
	return end, true
}

func (s *Splitter) isSingleLineCommand(line string) bool {
	if !s.singleLineCommands {
		return false
	}
	line = strings.TrimSpace(line)
	for _, re := range s.singleLinePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// emit finishes the statement and records where the next one begins.
func (s *Splitter) emit(st *statementState, end int, d Delimiter, next int) *CommandDefinition {
	cmd := s.finish(st, end, d)
	if cmd != nil {
		s.pendingStart = next
	}
	return cmd
}

func (s *Splitter) finish(st *statementState, end int, d Delimiter) *CommandDefinition {
	if s.tester != nil {
		s.tester.StatementFinished()
	}
	if st.start < 0 {
		return nil
	}
	text := strings.TrimRightFunc(st.text.String(), unicode.IsSpace)
	if text == "" {
		return nil
	}
	cmd := NewCommandDefinition(text, st.start, end)
	cmd.whitespaceStart = s.pendingStart
	cmd.index = s.index
	cmd.delimiter = d
	s.index++
	if !s.storeText {
		cmd.withoutText()
	}
	return cmd
}

// listIterator iterates over statements that were already parsed.
type listIterator struct {
	commands []*CommandDefinition
	pos      int
}

func (it *listIterator) HasMoreCommands() bool { return it.pos < len(it.commands) }

func (it *listIterator) NextCommand() *CommandDefinition {
	if it.pos >= len(it.commands) {
		return nil
	}
	c := it.commands[it.pos]
	it.pos++
	return c
}

func (it *listIterator) Reset() error {
	it.pos = 0
	return nil
}

func (it *listIterator) Done() {}
