// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import (
	"io"
	"strings"
	"unicode"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	// TokenWord is a keyword, identifier or number.
	TokenWord TokenKind = iota
	// TokenSymbol is a single punctuation or operator character.
	TokenSymbol
	// TokenWhitespace is a run of blanks without line breaks.
	TokenWhitespace
	// TokenNewline is one line break ("\n", "\r\n" or "\r").
	TokenNewline
	// TokenString is a quoted literal or quoted identifier, including dollar quoted bodies.
	TokenString
	// TokenLineComment is a "--" (or alternate marker) comment up to the end of the line.
	TokenLineComment
	// TokenBlockComment is a "/* */" comment.
	TokenBlockComment
)

// Token is one lexical element with its rune offsets in the source.
type Token struct {
	Kind         TokenKind
	Text         string
	Start        int
	End          int
	Unterminated bool
}

// IsComment reports whether the token is a line or block comment.
func (t Token) IsComment() bool {
	return t.Kind == TokenLineComment || t.Kind == TokenBlockComment
}

// IsWhitespace reports whether the token is blank space or a line break.
func (t Token) IsWhitespace() bool {
	return t.Kind == TokenWhitespace || t.Kind == TokenNewline
}

// Significant reports whether the token is neither whitespace nor comment.
func (t Token) Significant() bool {
	return !t.IsComment() && !t.IsWhitespace()
}

// LexerOptions selects the dialect specific quoting and comment rules.
type LexerOptions struct {
	Dialect ParserType
	// CheckEscapedQuotes makes a backslash escape the following character inside quotes.
	CheckEscapedQuotes bool
	// AlternateLineComment is an extra line comment marker such as "#".
	AlternateLineComment string
}

// quoteRule recognizes a dialect specific quoted region starting at the current rune.
// It returns the closing sequence and the number of runes that form the opener.
type quoteRule func(l *Lexer, r rune) (closer string, openLen int, ok bool)

// Lexer splits SQL text into tokens. Quotes and comments are tracked as mutually
// exclusive modes so a delimiter inside either never surfaces as a symbol.
type Lexer struct {
	src    *runeSource
	opts   LexerOptions
	rules  []quoteRule
	pos    int
	peeked []Token
}

// NewLexer creates a lexer reading from r.
func NewLexer(r io.RuneReader, opts LexerOptions) *Lexer {
	l := &Lexer{src: newRuneSource(r), opts: opts}
	switch opts.Dialect {
	case ParserPostgres:
		l.rules = append(l.rules, dollarQuote)
	case ParserSQLServer:
		l.rules = append(l.rules, bracketQuote)
	}
	return l
}

// NewStringLexer creates a lexer over an in-memory string.
func NewStringLexer(s string, opts LexerOptions) *Lexer {
	return NewLexer(strings.NewReader(s), opts)
}

// Err returns a read error other than io.EOF, if one occurred.
func (l *Lexer) Err() error { return l.src.err }

// Offset returns the offset just after the last token returned by Next.
func (l *Lexer) Offset() int {
	if len(l.peeked) > 0 {
		return l.peeked[0].Start
	}
	return l.pos
}

// Next returns the next token, or false at end of input.
func (l *Lexer) Next() (Token, bool) {
	if len(l.peeked) > 0 {
		t := l.peeked[0]
		l.peeked = l.peeked[1:]
		return t, true
	}
	return l.scan()
}

// Peek returns the n-th upcoming token (0 is the next one) without consuming it.
func (l *Lexer) Peek(n int) (Token, bool) {
	for len(l.peeked) <= n {
		t, ok := l.scan()
		if !ok {
			return Token{}, false
		}
		l.peeked = append(l.peeked, t)
	}
	return l.peeked[n], true
}

// take consumes the current rune into sb.
func (l *Lexer) take(sb *strings.Builder) (rune, bool) {
	r, ok := l.src.next()
	if ok {
		sb.WriteRune(r)
		l.pos++
	}
	return r, ok
}

func (l *Lexer) scan() (Token, bool) {
	r, ok := l.src.peek(0)
	if !ok {
		return Token{}, false
	}
	start := l.pos
	var sb strings.Builder
	tok := func(kind TokenKind, unterminated bool) (Token, bool) {
		return Token{Kind: kind, Text: sb.String(), Start: start, End: l.pos, Unterminated: unterminated}, true
	}

	switch {
	case r == '\n':
		l.take(&sb)
		return tok(TokenNewline, false)
	case r == '\r':
		l.take(&sb)
		if n, ok := l.src.peek(0); ok && n == '\n' {
			l.take(&sb)
		}
		return tok(TokenNewline, false)
	case unicode.IsSpace(r):
		for {
			n, ok := l.src.peek(0)
			if !ok || n == '\n' || n == '\r' || !unicode.IsSpace(n) {
				break
			}
			l.take(&sb)
		}
		return tok(TokenWhitespace, false)
	case r == '-' && l.lookingAt(1, "-"):
		l.readLine(&sb)
		return tok(TokenLineComment, false)
	case l.opts.AlternateLineComment != "" && l.lookingAt(0, l.opts.AlternateLineComment):
		l.readLine(&sb)
		return tok(TokenLineComment, false)
	case r == '/' && l.lookingAt(1, "*"):
		closed := l.readBlockComment(&sb)
		return tok(TokenBlockComment, !closed)
	case r == '\'' || r == '"' || r == '`':
		l.take(&sb)
		closed := l.readQuoted(&sb, string(r), l.opts.CheckEscapedQuotes)
		return tok(TokenString, !closed)
	}

	for _, rule := range l.rules {
		if closer, n, ok := rule(l, r); ok {
			for i := 0; i < n; i++ {
				l.take(&sb)
			}
			closed := l.readUntil(&sb, closer)
			return tok(TokenString, !closed)
		}
	}

	if isWordStart(r) || unicode.IsDigit(r) || (r == '$' && l.opts.Dialect == ParserPostgres) {
		l.take(&sb)
		for {
			n, ok := l.src.peek(0)
			if !ok || !l.isWordPart(n) {
				break
			}
			l.take(&sb)
		}
		// E'...' strings in Postgres accept backslash escapes.
		if l.opts.Dialect == ParserPostgres && strings.EqualFold(sb.String(), "e") {
			if n, ok := l.src.peek(0); ok && n == '\'' {
				l.take(&sb)
				closed := l.readQuoted(&sb, "'", true)
				return tok(TokenString, !closed)
			}
		}
		return tok(TokenWord, false)
	}

	l.take(&sb)
	return tok(TokenSymbol, false)
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func (l *Lexer) isWordPart(r rune) bool {
	if r == '#' && l.opts.AlternateLineComment == "#" {
		return false
	}
	return r == '_' || r == '$' || r == '#' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// lookingAt reports whether s follows at lookahead position i.
func (l *Lexer) lookingAt(i int, s string) bool {
	for _, want := range s {
		got, ok := l.src.peek(i)
		if !ok || got != want {
			return false
		}
		i++
	}
	return true
}

func (l *Lexer) readLine(sb *strings.Builder) {
	for {
		r, ok := l.src.peek(0)
		if !ok || r == '\n' || r == '\r' {
			return
		}
		l.take(sb)
	}
}

// readBlockComment consumes a block comment. Postgres allows nesting.
func (l *Lexer) readBlockComment(sb *strings.Builder) bool {
	l.take(sb)
	l.take(sb)
	depth := 1
	for {
		r, ok := l.src.peek(0)
		if !ok {
			return false
		}
		switch {
		case r == '*' && l.lookingAt(1, "/"):
			l.take(sb)
			l.take(sb)
			depth--
			if depth == 0 {
				return true
			}
		case r == '/' && l.lookingAt(1, "*") && l.opts.Dialect == ParserPostgres:
			l.take(sb)
			l.take(sb)
			depth++
		default:
			l.take(sb)
		}
	}
}

// readQuoted consumes up to and including the closing quote. A doubled quote is an
// escaped quote; with escapes enabled a backslash protects the next character.
func (l *Lexer) readQuoted(sb *strings.Builder, quote string, escapes bool) bool {
	q := []rune(quote)[0]
	for {
		r, ok := l.take(sb)
		if !ok {
			return false
		}
		if escapes && r == '\\' {
			if _, ok := l.take(sb); !ok {
				return false
			}
			continue
		}
		if r == q {
			if n, ok := l.src.peek(0); ok && n == q {
				l.take(sb)
				continue
			}
			return true
		}
	}
}

// readUntil consumes up to and including closer.
func (l *Lexer) readUntil(sb *strings.Builder, closer string) bool {
	for {
		if l.lookingAt(0, closer) {
			for range closer {
				l.take(sb)
			}
			return true
		}
		if _, ok := l.take(sb); !ok {
			return false
		}
	}
}

// dollarQuote recognizes $$ and $tag$ openers.
func dollarQuote(l *Lexer, r rune) (string, int, bool) {
	if r != '$' {
		return "", 0, false
	}
	i := 1
	for {
		n, ok := l.src.peek(i)
		if !ok {
			return "", 0, false
		}
		if n == '$' {
			break
		}
		if !(n == '_' || unicode.IsLetter(n) || (i > 1 && unicode.IsDigit(n))) {
			return "", 0, false
		}
		i++
	}
	var tag strings.Builder
	for j := 0; j <= i; j++ {
		n, _ := l.src.peek(j)
		tag.WriteRune(n)
	}
	return tag.String(), i + 1, true
}

// bracketQuote recognizes SQL Server [quoted identifiers].
func bracketQuote(_ *Lexer, r rune) (string, int, bool) {
	if r != '[' {
		return "", 0, false
	}
	return "]", 1, true
}

// Tokens returns all tokens of sql.
func Tokens(sql string, opts LexerOptions) []Token {
	l := NewStringLexer(sql, opts)
	var out []Token
	for {
		t, ok := l.Next()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// SignificantWords returns up to n leading words of sql, skipping whitespace and comments.
// It stops at the first token that is not a word.
func SignificantWords(sql string, n int, opts LexerOptions) []string {
	l := NewStringLexer(sql, opts)
	var words []string
	for len(words) < n {
		t, ok := l.Next()
		if !ok {
			break
		}
		if !t.Significant() {
			continue
		}
		if t.Kind != TokenWord {
			if len(words) == 0 && t.Kind == TokenSymbol {
				words = append(words, t.Text)
			}
			break
		}
		words = append(words, t.Text)
	}
	return words
}
