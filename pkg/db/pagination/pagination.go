// Package pagination implements offset pagination with whitelisted sorting.
package pagination

import (
	"fmt"
	"strings"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Page is an offset window over a sorted listing. Rows may shift between
// calls when the underlying data changes.
type Page struct {
	Limit         int    `form:"limit" json:"limit"`
	Skip          int    `form:"skip" json:"skip"`
	SortBy        string `form:"sortBy" json:"sort_by"`
	SortDirection string `form:"sortDirection" json:"sort_direction"`
}

// Normalize clamps Limit to [1, maxLimit], floors Skip at zero and lowercases
// the direction, defaulting to desc.
func (p Page) Normalize(defaultLimit, maxLimit int) Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	p.SortBy = strings.TrimSpace(p.SortBy)
	switch strings.ToLower(strings.TrimSpace(p.SortDirection)) {
	case SortAsc:
		p.SortDirection = SortAsc
	default:
		p.SortDirection = SortDesc
	}
	return p
}

// OrderClause resolves SortBy against the allowed column map and appends
// tieBreaker so every page has a total order. Unknown keys fall back to
// defaultKey, so callers never interpolate client input into SQL.
func (p Page) OrderClause(allowed map[string]string, defaultKey, tieBreaker string) string {
	column, ok := allowed[p.SortBy]
	if !ok {
		column = allowed[defaultKey]
	}
	direction := SortDesc
	if p.SortDirection == SortAsc {
		direction = SortAsc
	}
	clause := fmt.Sprintf("%s %s", column, strings.ToUpper(direction))
	if tieBreaker != "" && tieBreaker != column {
		clause += fmt.Sprintf(", %s %s", tieBreaker, strings.ToUpper(direction))
	}
	return clause
}

// Result is one page of rows plus the total number of matching rows.
type Result[T any] struct {
	Rows  []T   `json:"rows"`
	Total int64 `json:"total"`
}
