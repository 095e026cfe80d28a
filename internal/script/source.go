// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	apperr "sqlwb/cli/internal/errors"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// runeSource is a rune reader with unbounded lookahead.
type runeSource struct {
	r   io.RuneReader
	buf []rune
	eof bool
	err error
}

func newRuneSource(r io.RuneReader) *runeSource {
	return &runeSource{r: r}
}

// fill makes sure at least n runes are buffered unless input ends first.
func (s *runeSource) fill(n int) {
	for len(s.buf) < n && !s.eof {
		r, _, err := s.r.ReadRune()
		if err != nil {
			s.eof = true
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return
		}
		s.buf = append(s.buf, r)
	}
}

func (s *runeSource) peek(i int) (rune, bool) {
	s.fill(i + 1)
	if i < len(s.buf) {
		return s.buf[i], true
	}
	return 0, false
}

func (s *runeSource) next() (rune, bool) {
	s.fill(1)
	if len(s.buf) == 0 {
		return 0, false
	}
	r := s.buf[0]
	s.buf = s.buf[1:]
	return r, true
}

// lookupEncoding resolves an IANA encoding name. Empty names and UTF-8 use a decoder
// that drops a leading byte order mark.
func lookupEncoding(name string) (encoding.Encoding, error) {
	n := strings.TrimSpace(name)
	if n == "" || strings.EqualFold(n, "utf-8") || strings.EqualFold(n, "utf8") {
		return unicode.UTF8BOM, nil
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, "unknown encoding "+n, err)
	}
	if enc == nil {
		return nil, apperr.New(apperr.InvalidArgument, "unsupported encoding "+n)
	}
	return enc, nil
}

// openFile opens path as a decoded rune stream.
func openFile(path, encodingName string) (io.RuneReader, io.Closer, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.IOFailed, "open "+path, err)
	}
	return bufio.NewReader(transform.NewReader(f, enc.NewDecoder())), f, nil
}

// ReadFile reads a whole file and decodes it from the named IANA encoding (UTF-8 when empty).
func ReadFile(path, encodingName string) (string, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Wrap(apperr.IOFailed, "read "+path, err)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", apperr.Wrap(apperr.IOFailed, "decode "+path, err)
	}
	return string(decoded), nil
}

// readTail decodes the last size bytes of a file. A character cut in half at the start of
// the window is irrelevant because callers only inspect the end.
func readTail(path, encodingName string, size int64) (string, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.Wrap(apperr.IOFailed, "open "+path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", apperr.Wrap(apperr.IOFailed, "stat "+path, err)
	}
	offset := st.Size() - size
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, st.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
		return "", apperr.Wrap(apperr.IOFailed, "read "+path, err)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), bytes.TrimLeft(buf, "\x00"))
	if err != nil {
		return string(buf), nil
	}
	return string(decoded), nil
}
