package storage

import (
	"fmt"
	"strings"
)

// foldFuncName is the SQL function registered with both SQLite drivers. It
// lowercases with strings.ToLower, matching how bind parameters are folded;
// the built-in LOWER only folds ASCII.
const foldFuncName = "fold_case"

// foldValue implements foldFuncName over a single SQLite value
func foldValue(v interface{}) interface{} {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	}
	return v
}

// dialect captures the SQL differences between the SQLite and Postgres stores
type dialect struct {
	// placeholder renders the n-th (1-based) bind parameter
	placeholder func(n int) string
	// contains renders a case-insensitive substring test of column against a
	// lowercased bind parameter
	contains func(column, param string) string
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	contains: func(column, param string) string {
		return fmt.Sprintf("instr(%s(%s), %s) > 0", foldFuncName, column, param)
	},
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	contains: func(column, param string) string {
		return fmt.Sprintf("strpos(lower(%s), %s) > 0", column, param)
	},
}

// listingColumns is the projection shared by every listing query
const listingColumns = `id, title, description, category, listing_type, price, user_id, created_at, updated_at`

// buildListingQuery renders a SELECT over listings narrowed by filter.
// ok is false when the filter can never match.
func buildListingQuery(d dialect, filter ListingFilter) (query string, args []interface{}, ok bool) {
	if filter.OwnerIDs != nil && len(filter.OwnerIDs) == 0 {
		return "", nil, false
	}

	var conditions []string
	next := func(v interface{}) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}

	if filter.TitleContains != "" {
		conditions = append(conditions, d.contains("title", next(strings.ToLower(filter.TitleContains))))
	}
	if filter.DescriptionContains != "" {
		conditions = append(conditions, d.contains("description", next(strings.ToLower(filter.DescriptionContains))))
	}
	if filter.CategoryContains != "" {
		conditions = append(conditions, d.contains("category", next(strings.ToLower(filter.CategoryContains))))
	}
	if filter.ListingType != "" {
		conditions = append(conditions, "listing_type = "+next(filter.ListingType))
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = "+next(filter.Category))
	}
	if len(filter.OwnerIDs) > 0 {
		holders := make([]string, len(filter.OwnerIDs))
		for i, id := range filter.OwnerIDs {
			holders[i] = next(id)
		}
		conditions = append(conditions, "user_id IN ("+strings.Join(holders, ",")+")")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(listingColumns)
	b.WriteString(" FROM listings")
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(next(filter.Limit))
	}
	return b.String(), args, true
}

// inClause renders "(p1,p2,...)" for n bind parameters starting at offset+1
func inClause(d dialect, offset, n int) string {
	holders := make([]string, n)
	for i := range holders {
		holders[i] = d.placeholder(offset + i + 1)
	}
	return "(" + strings.Join(holders, ",") + ")"
}
