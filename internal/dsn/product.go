// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"regexp"
	"strings"
)

// Product identifies the server behind a PostgreSQL-protocol connection.
type Product struct {
	// ID is the lower-case key used in settings, e.g. "db.cockroachdb.use_savepoint".
	ID string
	// Name is the display name.
	Name string
	// Version is the server version number, if it could be extracted.
	Version string
}

// Known product IDs.
const (
	ProductPostgreSQL  = "postgresql"
	ProductCockroachDB = "cockroachdb"
	ProductRedshift    = "redshift"
	ProductGreenplum   = "greenplum"
	ProductYugabyteDB  = "yugabytedb"
)

var (
	reCockroach = regexp.MustCompile(`CockroachDB \S+ v?(\d+(?:\.\d+)*)`)
	reRedshift  = regexp.MustCompile(`Redshift (\d+(?:\.\d+)*)`)
	reGreenplum = regexp.MustCompile(`Greenplum Database (\d+(?:\.\d+)*)`)
	reYugabyte  = regexp.MustCompile(`-YB-(\d+(?:\.\d+)*)`)
	rePostgres  = regexp.MustCompile(`PostgreSQL (\d+(?:\.\d+)*)`)
)

// DetectProduct classifies the output of SELECT version().
// Anything unrecognized is reported as PostgreSQL.
func DetectProduct(version string) Product {
	match := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(version); len(m) > 1 {
			return m[1]
		}
		return ""
	}

	switch {
	case strings.Contains(version, "CockroachDB"):
		return Product{ID: ProductCockroachDB, Name: "CockroachDB", Version: match(reCockroach)}
	case strings.Contains(version, "Redshift"):
		return Product{ID: ProductRedshift, Name: "Amazon Redshift", Version: match(reRedshift)}
	case strings.Contains(version, "Greenplum"):
		return Product{ID: ProductGreenplum, Name: "Greenplum", Version: match(reGreenplum)}
	case strings.Contains(version, "-YB-"):
		return Product{ID: ProductYugabyteDB, Name: "YugabyteDB", Version: match(reYugabyte)}
	default:
		return Product{ID: ProductPostgreSQL, Name: "PostgreSQL", Version: match(rePostgres)}
	}
}
