package validation

import (
	"regexp"
	"strings"
)

// Column extraction is best-effort regex work over the SELECT list and the
// WHERE predicates. Expressions, functions and dynamic SQL may produce
// spurious or missing identifiers; Phase B reports what was extracted.

var (
	selectListPattern = regexp.MustCompile(`(?is)\bSELECT\s+(.*?)\s+FROM\b`)
	wherePattern      = regexp.MustCompile(`(?is)\bWHERE\s+(.*?)(?:\bGROUP\s+BY\b|\bORDER\s+BY\b|\bLIMIT\b|\bOFFSET\b|$)`)
	predicatePattern  = regexp.MustCompile(`(?i)([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?)\s*(?:=|<>|!=|<=|>=|<|>|\bLIKE\b|\bIN\b|\bIS\b|\bBETWEEN\b)`)
	identifierOnly    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// sqlKeywords are predicate-side tokens that are not column references.
var sqlKeywords = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "null": {}, "true": {}, "false": {},
	"case": {}, "when": {}, "then": {}, "else": {}, "end": {},
}

// ExtractColumns returns the distinct column identifiers referenced by the
// SELECT list and the WHERE predicates, lower-cased, in first-seen order.
// A wildcard SELECT list contributes nothing.
func ExtractColumns(sqlText string) []string {
	seen := map[string]struct{}{}
	var out []string

	add := func(ident string) {
		if i := strings.LastIndex(ident, "."); i >= 0 {
			ident = ident[i+1:]
		}
		key := strings.ToLower(ident)
		if _, kw := sqlKeywords[key]; kw {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}

	if m := selectListPattern.FindStringSubmatch(sqlText); m != nil {
		for _, item := range strings.Split(m[1], ",") {
			item = strings.TrimSpace(item)
			if item == "*" || item == "" {
				continue
			}
			// Strip a trailing alias; skip expressions and functions.
			if i := strings.LastIndex(strings.ToUpper(item), " AS "); i >= 0 {
				item = strings.TrimSpace(item[:i])
			}
			if i := strings.LastIndex(item, "."); i >= 0 {
				item = item[i+1:]
			}
			if identifierOnly.MatchString(item) {
				add(item)
			}
		}
	}

	if m := wherePattern.FindStringSubmatch(sqlText); m != nil {
		for _, pm := range predicatePattern.FindAllStringSubmatch(m[1], -1) {
			add(pm[1])
		}
	}

	return out
}
