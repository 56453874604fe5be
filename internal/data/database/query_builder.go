package database

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

const defaultLimit = -1

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Condition is a raw SQL fragment and its parameters.
type Condition struct {
	sql  string
	args []any
}

// WhereRawCond adds a raw SQL fragment. Placeholders are numbered from $1 within the fragment and
// renumbered when the query is built; a placeholder may repeat.
func WhereRawCond(rawQuery string, params ...any) Condition {
	return Condition{sql: rawQuery, args: params}
}

type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    string
	OrderDir   string
	Limit      int
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table: table,
		Limit: defaultLimit,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithOrderBy sets the ordering column and direction.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = column
		o.OrderDir = direction
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithCountOnly sets the query to count only.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// sanitizeQualifiedIdentifier quotes each part of "table.column".
func sanitizeQualifiedIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

func buildSelectClause(options *ListQueryOptions) string {
	if options.CountOnly {
		return "SELECT COUNT(*) "
	}
	if len(options.Columns) == 0 {
		return "SELECT * "
	}
	cols := make([]string, len(options.Columns))
	for i, col := range options.Columns {
		cols[i] = sanitizeQualifiedIdentifier(col)
	}
	return fmt.Sprintf("SELECT %s ", strings.Join(cols, ", "))
}

func buildOrderAndLimitClause(options *ListQueryOptions, paramCount int, args []any) (string, []any) {
	var clause strings.Builder

	if options.OrderBy != "" {
		clause.WriteString(" ORDER BY ")
		clause.WriteString(sanitizeQualifiedIdentifier(options.OrderBy))
		if dir := strings.ToUpper(options.OrderDir); dir == "ASC" || dir == "DESC" {
			clause.WriteString(" ")
			clause.WriteString(dir)
		}
	}
	if options.Limit != defaultLimit {
		fmt.Fprintf(&clause, " LIMIT $%d", paramCount)
		args = append(args, options.Limit)
	}
	return clause.String(), args
}

// BuildListQuery constructs a SQL query string and arguments from options, sanitizing identifiers.
//
//	query, args := BuildListQuery(NewListQueryOptions("shortlists",
//		WithColumns("id", "nid"),
//		WithCondition(WhereRawCond("(nid ILIKE $1 OR name ILIKE $1)", "%doe%")),
//		WithOrderBy("id", "ASC"),
//		WithLimit(10),
//	))
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var query strings.Builder
	query.WriteString(buildSelectClause(options))
	query.WriteString("FROM ")
	query.WriteString(sanitizeIdentifier(options.Table))

	whereClause, whereArgs, next := buildWhereClause(options.Conditions, 1)
	if whereClause != "" {
		query.WriteString(" ")
		query.WriteString(whereClause)
	}
	if options.CountOnly {
		return query.String(), whereArgs
	}

	tail, args := buildOrderAndLimitClause(options, next, whereArgs)
	query.WriteString(tail)
	return query.String(), args
}

// renderCondition renumbers $n placeholders so they follow the ones already emitted.
// The raw SQL itself is not sanitized.
func renderCondition(cond Condition, paramCount int) (string, []any, int) {
	if cond.sql == "" {
		return "", nil, paramCount
	}

	var args []any
	idxMap := make(map[int]int)
	out := placeholderRe.ReplaceAllStringFunc(cond.sql, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(cond.args) {
			return m
		}
		if _, ok := idxMap[n]; !ok {
			idxMap[n] = paramCount
			args = append(args, cond.args[n-1])
			paramCount++
		}
		return fmt.Sprintf("$%d", idxMap[n])
	})
	return out, args, paramCount
}

func buildWhereClause(inputConditions []Condition, paramCount int) (string, []any, int) {
	conditions := make([]string, 0, len(inputConditions))
	args := []any{}

	for _, cond := range inputConditions {
		sqlStr, condArgs, next := renderCondition(cond, paramCount)
		if sqlStr == "" {
			continue
		}
		conditions = append(conditions, sqlStr)
		args = append(args, condArgs...)
		paramCount = next
	}

	if len(conditions) == 0 {
		return "", args, paramCount
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, paramCount
}
