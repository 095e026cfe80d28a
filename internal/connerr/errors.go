// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package connerr turns database connection failures into user-friendly messages.
package connerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"sqlwb/cli/internal/logging"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pterm/pterm"
)

// Kind classifies why a connection attempt failed.
type Kind int

const (
	KindOther Kind = iota
	KindTimeout
	KindDNS
	KindRefused
	KindTLS
	KindAuth
	KindUnknownDatabase
	KindTooManyConnections
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindDNS:
		return "dns"
	case KindRefused:
		return "refused"
	case KindTLS:
		return "tls"
	case KindAuth:
		return "auth"
	case KindUnknownDatabase:
		return "unknown_database"
	case KindTooManyConnections:
		return "too_many_connections"
	default:
		return "other"
	}
}

// Classify inspects err. Server errors are matched by SQLSTATE before any network check.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "28P01" || pgErr.Code == "28000":
			return KindAuth
		case pgErr.Code == "3D000":
			return KindUnknownDatabase
		case pgErr.Code == "53300":
			return KindTooManyConnections
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	if isRefused(err) {
		return KindRefused
	}
	if isTimeout(err) {
		return KindTimeout
	}
	if isTLS(err) {
		return KindTLS
	}
	return KindOther
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

func isRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isTLS(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tls") ||
		strings.Contains(msg, "ssl") ||
		strings.Contains(msg, "certificate") ||
		strings.Contains(msg, "handshake")
}

// Hints returns the headline and the troubleshooting points for kind.
func Hints(kind Kind, host string) (string, []string) {
	if host == "" {
		host = "the database server"
	}
	switch kind {
	case KindTimeout:
		return "Connection to " + host + " timed out", []string{
			"The server is slow to respond or unreachable",
			"A firewall may be dropping the connection",
			"Check the host and port in the connection string",
		}
	case KindDNS:
		return "Cannot resolve " + host, []string{
			"Check the host name for typos",
			"Check your network and DNS settings",
		}
	case KindRefused:
		return "Connection to " + host + " refused", []string{
			"The database is not running or listens on another port",
			"Check the port in the connection string",
		}
	case KindTLS:
		return "Secure connection to " + host + " failed", []string{
			"Check the sslmode parameter (disable, require, verify-full)",
			"Check that the server certificate is trusted",
		}
	case KindAuth:
		return "Authentication failed", []string{
			"Check the user name and password",
			"Check that pg_hba.conf allows this client",
		}
	case KindUnknownDatabase:
		return "The database does not exist", []string{
			"Check the database name in the connection string",
		}
	case KindTooManyConnections:
		return "The server has no free connection slots", []string{
			"Close idle sessions or lower --parallel / concurrency",
		}
	default:
		return "Cannot connect to " + host, []string{
			"Check the connection string and your network",
		}
	}
}

// Format renders err with hints as text.
func Format(err error, host string) string {
	if err == nil {
		return ""
	}
	headline, hints := Hints(Classify(err), host)
	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\n")
	for _, h := range hints {
		b.WriteString("  • " + h + "\n")
	}
	return b.String()
}

// Present prints err with troubleshooting hints and returns it wrapped. Secrets in the
// error text are masked.
func Present(err error, host string) error {
	if err == nil {
		return nil
	}
	headline, hints := Hints(Classify(err), host)
	pterm.Error.Println(headline)
	for _, h := range hints {
		pterm.Println("  • " + h)
	}
	pterm.Println()
	pterm.Debug.Printfln("Technical details: %s", logging.Mask(err.Error()))
	return fmt.Errorf("connection failed: %w", err)
}
