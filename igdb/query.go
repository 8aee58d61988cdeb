package igdb

import (
	"fmt"
	"strings"
)

// Query builds an IGDB APIcalypse request body, e.g.
//
//	fields name,cover.image_id; search "zelda"; where version_parent = null; limit 10;
type Query struct {
	fields []string
	search string
	where  []string
	sort   string
	limit  int
	offset int
}

func NewQuery(fields ...string) *Query {
	return &Query{fields: fields}
}

func (q *Query) Search(term string) *Query {
	q.search = term
	return q
}

// Where adds a condition, conditions are joined with "&".
func (q *Query) Where(format string, args ...interface{}) *Query {
	q.where = append(q.where, fmt.Sprintf(format, args...))
	return q
}

func (q *Query) Sort(field string, desc bool) *Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	q.sort = field + " " + dir
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

func (q *Query) String() string {
	var sb strings.Builder
	fields := "*"
	if len(q.fields) > 0 {
		fields = strings.Join(q.fields, ",")
	}
	fmt.Fprintf(&sb, "fields %s;", fields)
	if q.search != "" {
		fmt.Fprintf(&sb, " search %s;", quote(q.search))
	}
	if len(q.where) > 0 {
		fmt.Fprintf(&sb, " where %s;", strings.Join(q.where, " & "))
	}
	// IGDB refuses sort together with search
	if q.sort != "" && q.search == "" {
		fmt.Fprintf(&sb, " sort %s;", q.sort)
	}
	if q.limit > 0 {
		fmt.Fprintf(&sb, " limit %d;", q.limit)
	}
	if q.offset > 0 {
		fmt.Fprintf(&sb, " offset %d;", q.offset)
	}
	return sb.String()
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// idList renders ids as an APIcalypse tuple, e.g. (1,2,3).
func idList(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return "(" + strings.Join(parts, ",") + ")"
}
