package store

import (
	"context"
	"regexp"
	"strings"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

// forbiddenKeyword matches DDL/DML keywords that must never appear in a
// query_sql statement, even inside a single SELECT (spec §8 property 8:
// "query_sql rejects non-SELECT statements"). Enforcement mechanism is a
// parser-free prefix + keyword + table-membership check, per SPEC_FULL.md
// §12 (spec.md names the restriction but not the mechanism).
var forbiddenKeyword = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|ATTACH|PRAGMA|REPLACE|TRUNCATE|VACUUM)\b`)

// tableNamePattern extracts bare identifiers following FROM/JOIN so they can
// be checked against AllowedTables.
var tableNamePattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

// QuerySQL executes a read-only SELECT statement restricted to the
// AllowedTables whitelist (spec §4.7: "query_sql restricted to SELECT on a
// whitelist of tables/views"). Exactly one statement is permitted.
func (s *Store) QuerySQL(ctx context.Context, sql string, limit int) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(sql)
	bodyNoTrailingSemi := strings.TrimSuffix(trimmed, ";")
	if strings.Contains(bodyNoTrailingSemi, ";") {
		return nil, errors.InvalidArgumentError("query_sql accepts exactly one statement")
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return nil, errors.InvalidArgumentError("query_sql only accepts SELECT statements")
	}
	if forbiddenKeyword.MatchString(trimmed) {
		return nil, errors.InvalidArgumentError("query_sql statement contains a disallowed keyword")
	}
	if limit <= 0 {
		return nil, errors.InvalidArgumentError("limit is required and must be > 0")
	}

	for _, match := range tableNamePattern.FindAllStringSubmatch(trimmed, -1) {
		name := strings.ToLower(match[1])
		if !AllowedTables[name] {
			return nil, errors.InvalidArgumentErrorf("table/view %q is not on the query_sql whitelist", name)
		}
	}

	rows, err := s.db.QueryxContext(ctx, bodyNoTrailingSemi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		if len(results) >= limit {
			break
		}
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
