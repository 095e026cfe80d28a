// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
)

// KeyValueResolver handles libpq keyword/value connection strings such as
// "host=db.internal port=5433 dbname=app user=bob password='p w'".
type KeyValueResolver struct{}

// NewKeyValueResolver creates a new keyword/value resolver
func NewKeyValueResolver() *KeyValueResolver {
	return &KeyValueResolver{}
}

// Parse splits the connection string into keywords. Values may be single quoted; a
// backslash escapes the next character.
func (r *KeyValueResolver) Parse(dsn string) (*Info, error) {
	pairs, err := splitKeyValues(dsn)
	if err != nil {
		return nil, err
	}
	info := &Info{
		Format:   FormatKeyValue,
		Params:   make(map[string]string),
		Original: dsn,
	}
	for k, v := range pairs {
		switch k {
		case "host":
			info.Host = v
		case "port":
			info.Port = v
		case "user":
			info.User = v
		case "password":
			info.Password = v
		case "dbname":
			info.Database = v
		default:
			info.Params[k] = v
		}
	}
	return info, nil
}

// Normalize renders the keywords in a fixed order, quoting values where needed.
func (r *KeyValueResolver) Normalize(info *Info) (string, error) {
	if info == nil {
		return "", NewParseError("", "nil DSN info", "")
	}
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+quoteValue(v))
		}
	}
	add("host", info.Host)
	add("port", info.Port)
	add("dbname", info.Database)
	add("user", info.User)
	add("password", info.Password)
	keys := lo.Keys(info.Params)
	sort.Strings(keys)
	for _, k := range keys {
		add(k, info.Params[k])
	}
	return strings.Join(parts, " "), nil
}

// Validate parses the string and lets pgx check it.
func (r *KeyValueResolver) Validate(dsn string) error {
	if _, err := r.Parse(dsn); err != nil {
		return err
	}
	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return NewParseError(dsn, err.Error(), formatHint)
	}
	return nil
}

func splitKeyValues(dsn string) (map[string]string, error) {
	pairs := make(map[string]string)
	s := []rune(dsn)
	i := 0
	skipSpace := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
			i++
		}
	}
	for {
		skipSpace()
		if i >= len(s) {
			return pairs, nil
		}
		start := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		key := strings.ToLower(string(s[start:i]))
		skipSpace()
		if i >= len(s) || s[i] != '=' || key == "" {
			return nil, NewParseError(dsn, "expected key=value near \""+string(s[start:])+"\"", formatHint)
		}
		i++
		skipSpace()

		var val strings.Builder
		if i < len(s) && s[i] == '\'' {
			i++
			closed := false
			for i < len(s) {
				if s[i] == '\\' && i+1 < len(s) {
					val.WriteRune(s[i+1])
					i += 2
					continue
				}
				if s[i] == '\'' {
					closed = true
					i++
					break
				}
				val.WriteRune(s[i])
				i++
			}
			if !closed {
				return nil, NewParseError(dsn, "unterminated quoted value for "+key, "close the value with a single quote")
			}
		} else {
			for i < len(s) && s[i] != ' ' && s[i] != '\t' && s[i] != '\n' && s[i] != '\r' {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				val.WriteRune(s[i])
				i++
			}
		}
		pairs[key] = val.String()
	}
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n\r'\\") {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}
