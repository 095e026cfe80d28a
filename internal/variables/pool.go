// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package variables implements the process-wide variable pool used to substitute
// placeholders such as ${name}$ in SQL text before it is executed.
//
// A reference may carry a sigil: ${?name}$ asks the user for a value every time the
// statement runs, ${&name}$ asks only while the variable is still empty. The pool is
// created once by the caller and shared by every runner, so all methods are safe for
// concurrent use.
package variables

import (
	"bufio"
	"regexp"
	"sort"
	"strings"
	"sync"

	apperr "sqlwb/cli/internal/errors"
	"sqlwb/cli/internal/logging"
	"sqlwb/cli/internal/script"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

const (
	DefaultPrefix        = "${"
	DefaultSuffix        = "}$"
	DefaultMaxIterations = 20
)

var validName = regexp.MustCompile(`^[\w.]+$`)

// patterns is the compiled form of one prefix/suffix pair. It is replaced as a whole
// whenever the prefix or suffix changes.
type patterns struct {
	prefix string
	suffix string
	// any matches every reference; group 1 is the optional sigil, group 2 the name.
	any *regexp.Regexp
	// prompt matches only references with a ? or & sigil.
	prompt *regexp.Regexp
}

func compilePatterns(prefix, suffix string) *patterns {
	p, s := regexp.QuoteMeta(prefix), regexp.QuoteMeta(suffix)
	return &patterns{
		prefix: prefix,
		suffix: suffix,
		any:    regexp.MustCompile(p + `([?&]?)([\w.]+)` + s),
		prompt: regexp.MustCompile(p + `([?&])([\w.]+)` + s),
	}
}

// Pool stores named variables.
type Pool struct {
	mu            sync.RWMutex
	values        map[string]string
	pat           *patterns
	maxIterations int
	logger        *pterm.Logger
}

// Options configures a new Pool. Zero values select the defaults.
type Options struct {
	Prefix        string
	Suffix        string
	MaxIterations int
	Logger        *pterm.Logger
}

// NewPool creates an empty pool.
func NewPool(opts Options) (*Pool, error) {
	p := &Pool{
		values:        make(map[string]string),
		maxIterations: opts.MaxIterations,
		logger:        logging.OrDisabled(opts.Logger),
	}
	if p.maxIterations <= 0 {
		p.maxIterations = DefaultMaxIterations
	}
	prefix := lo.Ternary(opts.Prefix == "", DefaultPrefix, opts.Prefix)
	suffix := lo.Ternary(opts.Suffix == "", DefaultSuffix, opts.Suffix)
	if err := p.SetPrefixSuffix(prefix, suffix); err != nil {
		return nil, err
	}
	return p, nil
}

// SetPrefixSuffix changes the placeholder markers and rebuilds the compiled patterns.
func (p *Pool) SetPrefixSuffix(prefix, suffix string) error {
	if strings.TrimSpace(prefix) == "" {
		return apperr.New(apperr.InvalidArgument, "variable prefix must not be empty")
	}
	compiled := compilePatterns(prefix, suffix)
	p.mu.Lock()
	p.pat = compiled
	p.mu.Unlock()
	return nil
}

// Prefix returns the current placeholder prefix.
func (p *Pool) Prefix() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pat.prefix
}

// Suffix returns the current placeholder suffix.
func (p *Pool) Suffix() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pat.suffix
}

// Reference builds the placeholder text for name, e.g. ${name}$.
func (p *Pool) Reference(name string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pat.prefix + name + p.pat.suffix
}

// IsValidName reports whether name may be used as a variable name.
func IsValidName(name string) bool {
	return validName.MatchString(name)
}

// SetParameterValue defines or replaces a variable.
func (p *Pool) SetParameterValue(name, value string) error {
	if !IsValidName(name) {
		return apperr.Newf(apperr.InvalidArgument, "illegal variable name %q", name)
	}
	p.mu.Lock()
	p.values[name] = value
	p.mu.Unlock()
	return nil
}

// ParameterValue returns the value of a variable.
func (p *Pool) ParameterValue(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[name]
	return v, ok
}

// Remove deletes a variable and reports whether it existed.
func (p *Pool) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.values[name]
	delete(p.values, name)
	return ok
}

// Names returns the defined variable names in sorted order.
func (p *Pool) Names() []string {
	p.mu.RLock()
	names := lo.Keys(p.values)
	p.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all variables.
func (p *Pool) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Assign(p.values)
}

// VariablesNeedingPrompt returns the names referenced with a prompt sigil that need a
// value from the user. Names seen for the first time are registered with an empty value.
// A ? reference always needs a prompt, a & reference only while its value is empty.
func (p *Pool) VariablesNeedingPrompt(sql string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !strings.Contains(sql, p.pat.prefix) {
		return nil
	}
	var names []string
	for _, m := range p.pat.prompt.FindAllStringSubmatch(sql, -1) {
		sigil, name := m[1], m[2]
		value, known := p.values[name]
		if !known {
			p.values[name] = ""
		}
		if sigil == "?" || value == "" {
			names = append(names, name)
		}
	}
	names = lo.Uniq(names)
	sort.Strings(names)
	return names
}

// References returns the sorted names referenced in sql, with or without a sigil.
func (p *Pool) References(sql string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !strings.Contains(sql, p.pat.prefix) {
		return nil
	}
	names := lo.Uniq(lo.Map(p.pat.any.FindAllStringSubmatch(sql, -1), func(m []string, _ int) string { return m[2] }))
	sort.Strings(names)
	return names
}

// ContainsVariables reports whether sql holds at least one reference.
func (p *Pool) ContainsVariables(sql string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return strings.Contains(sql, p.pat.prefix) && p.pat.any.MatchString(sql)
}

// ReplaceAllParameters substitutes every known variable, repeating while values contain
// further references. Unknown references are left untouched. Input without references is
// returned unchanged. When the text still changes after the configured number of passes
// the partially replaced text is returned together with a cyclic_variable error.
func (p *Pool) ReplaceAllParameters(sql string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !strings.Contains(sql, p.pat.prefix) {
		return sql, nil
	}
	current := sql
	for pass := 0; pass < p.maxIterations; pass++ {
		next := p.pat.any.ReplaceAllStringFunc(current, func(ref string) string {
			m := p.pat.any.FindStringSubmatch(ref)
			if v, ok := p.values[m[2]]; ok {
				return v
			}
			return ref
		})
		if next == current {
			return current, nil
		}
		current = next
	}
	p.logger.Warn("variable substitution did not converge", p.logger.Args("passes", p.maxIterations))
	return current, apperr.Newf(apperr.CyclicVariable,
		"variables still unresolved after %d passes, check for definitions that reference each other", p.maxIterations)
}

// ReadFromFile loads name=value lines. Blank lines and lines starting with # are skipped.
// It returns the number of variables defined.
func (p *Pool) ReadFromFile(path, encoding string) (int, error) {
	text, err := script.ReadFile(path, encoding)
	if err != nil {
		return 0, err
	}
	count := 0
	sc := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			p.logger.Warn("ignoring variable line without '='", p.logger.Args("file", path, "line", lineNo))
			continue
		}
		if err := p.SetParameterValue(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			return count, apperr.Wrap(apperr.InvalidArgument, path, err)
		}
		count++
	}
	if err := sc.Err(); err != nil {
		return count, apperr.Wrap(apperr.IOFailed, "read "+path, err)
	}
	return count, nil
}
