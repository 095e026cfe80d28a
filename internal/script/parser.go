// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package script

import (
	"os"
	"sort"
	"strings"

	apperr "sqlwb/cli/internal/errors"
	"sqlwb/cli/internal/logging"

	"github.com/pterm/pterm"
)

// ParserType selects the dialect rules used while splitting.
type ParserType int

const (
	ParserStandard ParserType = iota
	ParserPostgres
	ParserSQLServer
)

// String returns the settings name of the parser type.
func (p ParserType) String() string {
	switch p {
	case ParserPostgres:
		return "postgres"
	case ParserSQLServer:
		return "sqlserver"
	default:
		return "standard"
	}
}

// ParseParserType maps a settings value to a ParserType. An empty value is standard.
func ParseParserType(s string) (ParserType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "default":
		return ParserStandard, nil
	case "postgres", "postgresql", "pg":
		return ParserPostgres, nil
	case "sqlserver", "mssql", "tsql":
		return ParserSQLServer, nil
	}
	return ParserStandard, apperr.Newf(apperr.InvalidArgument, "unknown parser type %q", s)
}

// DefaultInMemoryThreshold is the file size below which scripts are parsed up front.
const DefaultInMemoryThreshold int64 = 4 << 20

// tailWindow is how many bytes of a file are inspected when inferring the delimiter.
const tailWindow = 4096

// Config holds the parser options that are fixed for one script.
type Config struct {
	Type                    ParserType
	CheckEscapedQuotes      bool
	EmptyLineIsDelimiter    bool
	CheckSingleLineCommands bool
	SupportOracleInclude    bool
	AlternateLineComment    string
	InMemoryThreshold       int64
	// UseOracleTester switches delimiters per statement instead of once per script.
	UseOracleTester bool
	Logger          *pterm.Logger
}

// Parser hides the splitting strategy and offers both list and iterator access to the
// statements of a script, plus cursor position mapping for editors.
type Parser struct {
	cfg       Config
	logger    *pterm.Logger
	delimiter Delimiter
	alternate Delimiter

	script   string
	file     string
	encoding string
	stream   bool

	commands []*CommandDefinition
	parsed   bool
	iter     Iterator
}

// NewParser creates a parser with the standard delimiter.
func NewParser(cfg Config) *Parser {
	if cfg.InMemoryThreshold <= 0 {
		cfg.InMemoryThreshold = DefaultInMemoryThreshold
	}
	p := &Parser{
		cfg:       cfg,
		logger:    logging.OrDisabled(cfg.Logger),
		delimiter: Standard,
	}
	if cfg.Type == ParserSQLServer {
		p.alternate = SQLServerGo
	}
	return p
}

// SetDelimiters configures the default and the alternate delimiter. An empty default
// falls back to ";"; an empty alternate disables inference.
func (p *Parser) SetDelimiters(def, alt Delimiter) {
	p.delimiter = def.OrStandard()
	p.alternate = alt
	if alt.IsEmpty() && p.cfg.Type == ParserSQLServer {
		p.alternate = SQLServerGo
	}
	p.invalidate()
}

// SetScript parses text held in memory.
func (p *Parser) SetScript(text string) {
	p.Done()
	p.script = text
	p.file = ""
	p.stream = false
	p.invalidate()
}

// SetFile parses a file. Files below the in-memory threshold are read completely,
// larger ones are streamed and only available through the iterator.
func (p *Parser) SetFile(path, encoding string) error {
	if strings.TrimSpace(path) == "" {
		return apperr.New(apperr.InvalidArgument, "no script file given")
	}
	st, err := os.Stat(path)
	if err != nil {
		return apperr.Wrap(apperr.IOFailed, "stat "+path, err)
	}
	if _, err := lookupEncoding(encoding); err != nil {
		return err
	}
	p.Done()
	p.invalidate()
	if st.Size() < p.cfg.InMemoryThreshold {
		text, err := ReadFile(path, encoding)
		if err != nil {
			return err
		}
		p.script = text
		p.file = ""
		p.stream = false
		return nil
	}
	p.logger.Debug("streaming script file", p.logger.Args("file", path, "size", st.Size()))
	p.script = ""
	p.file = path
	p.encoding = encoding
	p.stream = true
	return nil
}

// Delimiter returns the delimiter that is effective for the current script.
func (p *Parser) Delimiter() Delimiter {
	if p.cfg.UseOracleTester || p.alternate.IsEmpty() {
		return p.delimiter
	}
	tail := p.script
	if p.stream {
		t, err := readTail(p.file, p.encoding, tailWindow)
		if err != nil {
			p.logger.Warn("cannot inspect script end", p.logger.Args("file", p.file, "error", err))
			return p.delimiter
		}
		tail = t
	}
	if p.alternate.TerminatesScript(tail) {
		return p.alternate
	}
	return p.delimiter
}

func (p *Parser) invalidate() {
	p.commands = nil
	p.parsed = false
}

func (p *Parser) newSplitter() *Splitter {
	s := NewSplitter(p.lexerOptions(), p.logger)
	s.SetDelimiter(p.Delimiter())
	if p.cfg.UseOracleTester {
		s.SetDelimiterTester(NewOracleDelimiterTester())
		alt := p.alternate
		if alt.IsEmpty() {
			alt = OracleSlash
		}
		s.SetAlternateDelimiter(alt)
	}
	s.SetEmptyLineIsDelimiter(p.cfg.EmptyLineIsDelimiter)
	s.SetCheckForSingleLineCommands(p.cfg.CheckSingleLineCommands)
	s.SetSupportOracleInclude(p.cfg.SupportOracleInclude)
	return s
}

func (p *Parser) openIterator() (Iterator, error) {
	s := p.newSplitter()
	if p.stream {
		if err := s.SetFile(p.file, p.encoding); err != nil {
			return nil, err
		}
		return s, nil
	}
	s.SetScript(p.script)
	return s, nil
}

// parse materializes all statements. Streamed sources are never materialized.
func (p *Parser) parse() {
	if p.parsed || p.stream {
		return
	}
	it, err := p.openIterator()
	p.parsed = true
	if err != nil {
		p.logger.Warn("cannot parse script", p.logger.Args("error", err))
		return
	}
	defer it.Done()
	for it.HasMoreCommands() {
		cmd := it.NextCommand()
		if cmd == nil {
			break
		}
		p.commands = append(p.commands, cmd)
	}
}

// Size returns the number of statements, or -1 for streamed scripts.
func (p *Parser) Size() int {
	if p.stream {
		return -1
	}
	p.parse()
	return len(p.commands)
}

// StatementCount is an alias for Size.
func (p *Parser) StatementCount() int { return p.Size() }

// Commands returns all statements of an in-memory script.
func (p *Parser) Commands() []*CommandDefinition {
	p.parse()
	return p.commands
}

// Command returns the statement at index i, or nil.
func (p *Parser) Command(i int) *CommandDefinition {
	p.parse()
	if i < 0 || i >= len(p.commands) {
		return nil
	}
	return p.commands[i]
}

// CommandText returns the text of statement i, or "".
func (p *Parser) CommandText(i int) string {
	if c := p.Command(i); c != nil {
		return c.Text()
	}
	return ""
}

// CommandIndexAtCursorPos returns the statement containing pos. Each statement owns the
// range from its leading whitespace up to the leading whitespace of the next one, so a
// position on a boundary belongs to the later statement. It returns -1 for an empty script.
func (p *Parser) CommandIndexAtCursorPos(pos int) int {
	p.parse()
	n := len(p.commands)
	if n == 0 || pos < 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool {
		return p.commands[i].WhitespaceStart() > pos
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// StartPosForCommand returns the start offset of statement i, or -1.
func (p *Parser) StartPosForCommand(i int) int {
	if c := p.Command(i); c != nil {
		return c.StartOffset()
	}
	return -1
}

// EndPosForCommand returns the end offset of statement i, or -1.
func (p *Parser) EndPosForCommand(i int) int {
	if c := p.Command(i); c != nil {
		return c.EndOffset()
	}
	return -1
}

// IndexInCommand converts a script position into a position inside statement i.
// The result is clamped to the statement text.
func (p *Parser) IndexInCommand(i, scriptPos int) int {
	c := p.Command(i)
	if c == nil {
		return -1
	}
	idx := scriptPos - c.StartOffset()
	if idx < 0 {
		return 0
	}
	if l := c.Length(); idx > l {
		return l
	}
	return idx
}

// StartIterator begins pull based iteration. In-memory scripts that were already parsed
// iterate over the cached list.
func (p *Parser) StartIterator() error {
	p.Done()
	if p.parsed && !p.stream {
		p.iter = &listIterator{commands: p.commands}
		return nil
	}
	it, err := p.openIterator()
	if err != nil {
		return err
	}
	p.iter = it
	return nil
}

// HasNext reports whether the iterator has unconsumed input.
func (p *Parser) HasNext() bool {
	return p.iter != nil && p.iter.HasMoreCommands()
}

// Next returns the next statement from the iterator, or nil.
func (p *Parser) Next() *CommandDefinition {
	if p.iter == nil {
		return nil
	}
	return p.iter.NextCommand()
}

// Done releases the iterator.
func (p *Parser) Done() {
	if p.iter != nil {
		p.iter.Done()
		p.iter = nil
	}
}

// lexerOptions returns the tokenizer settings of the parser's dialect.
func (p *Parser) lexerOptions() LexerOptions {
	return LexerOptions{
		Dialect:              p.cfg.Type,
		CheckEscapedQuotes:   p.cfg.CheckEscapedQuotes,
		AlternateLineComment: p.cfg.AlternateLineComment,
	}
}

// IsComplete reports whether text ends with the default or the alternate delimiter
// outside of quotes and comments. Interactive input is buffered until this is true.
func (p *Parser) IsComplete(text string) bool {
	var sb strings.Builder
	for _, tok := range Tokens(text, p.lexerOptions()) {
		if tok.Unterminated {
			return false
		}
		if !tok.IsComment() {
			sb.WriteString(tok.Text)
		}
	}
	code := sb.String()
	if p.delimiter.TerminatesScript(code) {
		return true
	}
	return !p.alternate.IsEmpty() && p.alternate.TerminatesScript(code)
}
