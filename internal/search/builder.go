package search

import (
	"fmt"
	"strings"

	"github.com/tasklattice/tasklattice/internal/storage"
)

// clause is a SQL fragment with its parameters.
type clause struct {
	sql  string
	args []any
}

// builder accumulates the parts of one SELECT and assembles it once. Join
// arguments precede where arguments in the final parameter list, matching
// their position in the statement.
type builder struct {
	from    string
	joins   []clause
	wheres  []clause
	groupBy string
	orders  []string
	limit   int
	aliases int
}

func newBuilder(from string) *builder {
	return &builder{from: from}
}

func (b *builder) join(sql string, args ...any) {
	b.joins = append(b.joins, clause{sql: sql, args: args})
}

func (b *builder) where(sql string, args ...any) {
	b.wheres = append(b.wheres, clause{sql: sql, args: args})
}

// whereAny adds one parenthesized OR group.
func (b *builder) whereAny(terms []string, args []any) {
	if len(terms) == 0 {
		return
	}
	b.where("("+strings.Join(terms, " OR ")+")", args...)
}

// whereIn adds column = ? for one value and column IN (...) for several.
func (b *builder) whereIn(column string, values []any) {
	switch len(values) {
	case 0:
	case 1:
		b.where(column+" = ?", values[0])
	default:
		b.where(column+" IN ("+storage.Placeholders(len(values))+")", values...)
	}
}

func (b *builder) order(terms ...string) {
	b.orders = append(b.orders, terms...)
}

// alias returns a fresh table alias for repeated joins.
func (b *builder) alias(prefix string) string {
	b.aliases++
	return fmt.Sprintf("%s%d", prefix, b.aliases)
}

func (b *builder) build(columns string) (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j.sql)
		args = append(args, j.args...)
	}
	if len(b.wheres) > 0 {
		parts := make([]string, len(b.wheres))
		for i, w := range b.wheres {
			parts[i] = w.sql
			args = append(args, w.args...)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}
	if b.groupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(b.groupBy)
	}
	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orders, ", "))
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	return sb.String(), args
}
