package sqldb

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported stores
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

// ParseDialect maps a database driver name onto its dialect
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case SQLite, "":
		return SQLite, nil
	case Postgres:
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported database driver: %s", driver)
}

// Rebind rewrites "?" placeholders into the dialect's bind syntax.
// Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// LockClause returns the suffix that takes a row lock inside a transaction.
// SQLite transactions already hold the write lock (BEGIN IMMEDIATE).
func (d Dialect) LockClause() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}
