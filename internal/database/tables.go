package database

import (
	"regexp"
	"strings"

	"querygate/internal/catalog"
)

// tablePattern pulls the identifier following FROM or JOIN. Best-effort:
// identifiers inside comments, string literals or dynamic SQL are
// misreported; the validator surfaces the extractor's output verbatim.
var tablePattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?)`)

// ExtractTables returns the distinct table identifiers referenced by the
// statement, in first-seen order. A schema.table reference is collapsed to
// its table part.
func ExtractTables(sqlText string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range tablePattern.FindAllStringSubmatch(sqlText, -1) {
		table := m[1]
		if i := strings.LastIndex(table, "."); i >= 0 {
			table = table[i+1:]
		}
		key := strings.ToLower(table)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, table)
	}
	return out
}

// TablesForDatabase collects the table set referenced by any query of the
// named database.
func TablesForDatabase(snap *catalog.Snapshot, database string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, q := range snap.QueriesForDatabase(database) {
		for _, t := range ExtractTables(q.SQL) {
			key := strings.ToLower(t)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
