package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation = "23505"
	sqliteUniqueFail  = "UNIQUE constraint failed: "
)

// UniqueIndex names a unique index. Postgres reports violations by index
// name while sqlite reports the indexed columns, so both are kept.
type UniqueIndex struct {
	Name    string
	Table   string
	Columns []string
}

// sqliteTarget renders the column list the way sqlite prints it:
// "offers.mission_id, offers.runner_id".
func (u UniqueIndex) sqliteTarget() string {
	cols := make([]string, len(u.Columns))
	for i, c := range u.Columns {
		cols[i] = u.Table + "." + c
	}
	return strings.Join(cols, ", ")
}

// IsUniqueViolation reports whether err is a unique constraint violation. A
// zero index matches any violation; otherwise only that index matches.
func IsUniqueViolation(err error, index UniqueIndex) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return index.Name == "" || pgErr.ConstraintName == index.Name
	}

	msg := err.Error()
	if strings.Contains(msg, "duplicate key value") {
		return index.Name == "" || strings.Contains(msg, `"`+index.Name+`"`)
	}
	at := strings.Index(msg, sqliteUniqueFail)
	if at < 0 {
		return false
	}
	if index.Name == "" {
		return true
	}
	if len(index.Columns) == 0 {
		return false
	}
	return sameColumnList(msg[at+len(sqliteUniqueFail):], index.sqliteTarget())
}

// sameColumnList reports whether reported starts with exactly target, so
// "offers.mission_id" does not match "offers.mission_id, offers.runner_id".
func sameColumnList(reported, target string) bool {
	if !strings.HasPrefix(reported, target) {
		return false
	}
	rest := reported[len(target):]
	if rest == "" {
		return true
	}
	switch c := rest[0]; {
	case c == ',' || c == '.' || c == '_':
		return false
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	}
	return true
}
