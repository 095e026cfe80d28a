// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Kind)
	}
	return out
}

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		opts     LexerOptions
		expected []TokenKind
	}{
		{
			name:     "words symbols and whitespace",
			sql:      "SELECT a.b",
			expected: []TokenKind{TokenWord, TokenWhitespace, TokenWord, TokenSymbol, TokenWord},
		},
		{
			name:     "crlf is one newline",
			sql:      "a\r\nb\rc",
			expected: []TokenKind{TokenWord, TokenNewline, TokenWord, TokenNewline, TokenWord},
		},
		{
			name:     "line comment stops at newline",
			sql:      "-- x\ny",
			expected: []TokenKind{TokenLineComment, TokenNewline, TokenWord},
		},
		{
			name:     "minus is a symbol",
			sql:      "1-2",
			expected: []TokenKind{TokenWord, TokenSymbol, TokenWord},
		},
		{
			name:     "leading hash is a symbol without alternate comment",
			sql:      "#tmp",
			expected: []TokenKind{TokenSymbol, TokenWord},
		},
		{
			name:     "hash comment",
			sql:      "a #tmp",
			opts:     LexerOptions{AlternateLineComment: "#"},
			expected: []TokenKind{TokenWord, TokenWhitespace, TokenLineComment},
		},
		{
			name:     "standard dialect does not nest comments",
			sql:      "/* /* */ x */",
			expected: []TokenKind{TokenBlockComment, TokenWhitespace, TokenWord, TokenWhitespace, TokenSymbol, TokenSymbol},
		},
		{
			name:     "dollar is not a quote in standard dialect",
			sql:      "$$",
			expected: []TokenKind{TokenSymbol, TokenSymbol},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kinds(Tokens(tt.sql, tt.opts))
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Tokens(%q) kinds = %v, want %v", tt.sql, got, tt.expected)
			}
		})
	}
}

func TestLexerOffsetsAndUnterminated(t *testing.T) {
	tokens := Tokens("é 'open", LexerOptions{})
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}
	str := tokens[2]
	if str.Start != 2 || str.End != 7 {
		t.Errorf("string token at [%d,%d), want [2,7)", str.Start, str.End)
	}
	if !str.Unterminated {
		t.Error("string should be marked unterminated")
	}
}

func TestLexerPeek(t *testing.T) {
	l := NewStringLexer("a b", LexerOptions{})
	p, ok := l.Peek(2)
	if !ok || p.Text != "b" {
		t.Fatalf("Peek(2) = %v, %v", p, ok)
	}
	if l.Offset() != 0 {
		t.Errorf("Offset() after peek = %d, want 0", l.Offset())
	}
	first, _ := l.Next()
	if first.Text != "a" {
		t.Errorf("Next() = %q, want a", first.Text)
	}
	if _, ok := l.Peek(5); ok {
		t.Error("Peek past end should fail")
	}
}

type failingReader struct {
	data []rune
}

func (f *failingReader) ReadRune() (rune, int, error) {
	if len(f.data) == 0 {
		return 0, 0, errors.New("disk gone")
	}
	r := f.data[0]
	f.data = f.data[1:]
	return r, 1, nil
}

func TestLexerReadError(t *testing.T) {
	l := NewLexer(&failingReader{data: []rune("SELECT")}, LexerOptions{})
	tok, ok := l.Next()
	if !ok || tok.Text != "SELECT" {
		t.Fatalf("Next() = %v, %v", tok, ok)
	}
	if _, ok := l.Next(); ok {
		t.Error("Next() after read error should report end of input")
	}
	if l.Err() == nil {
		t.Error("Err() should report the read error")
	}
}

func TestSplitterStopsAtReadError(t *testing.T) {
	s := NewSplitter(LexerOptions{}, nil)
	s.open = func() (io.RuneReader, io.Closer, error) {
		return &failingReader{data: []rune("SELECT 1; SEL")}, nil, nil
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	var got []string
	for s.HasMoreCommands() {
		if c := s.NextCommand(); c != nil {
			got = append(got, c.Text())
		}
	}
	if strings.Join(got, "|") != "SELECT 1|SEL" {
		t.Errorf("commands = %q, want the parseable prefix", got)
	}
	if s.Err() == nil {
		t.Error("Err() should keep the read error")
	}
}

func TestSignificantWords(t *testing.T) {
	tests := []struct {
		sql      string
		n        int
		expected []string
	}{
		{"  -- c\n /* d */ select * from t", 3, []string{"select"}},
		{"CREATE OR REPLACE VIEW v", 3, []string{"CREATE", "OR", "REPLACE"}},
		{"@file.sql", 2, []string{"@"}},
		{"", 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			got := SignificantWords(tt.sql, tt.n, LexerOptions{})
			if strings.Join(got, " ") != strings.Join(tt.expected, " ") {
				t.Errorf("SignificantWords(%q) = %v, want %v", tt.sql, got, tt.expected)
			}
		})
	}
}
