// Package database builds parameterised list queries with sanitized identifiers.
package database

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType is a comparison operator supported by WhereCond.
type ConditionType string

const (
	Equal    ConditionType = "="
	NotEqual ConditionType = "!="
	ILike    ConditionType = "ILIKE"
	In       ConditionType = "IN"

	unset = -1
)

// Condition is a single WHERE predicate.
type Condition struct {
	Field string
	Type  ConditionType
	Value any
}

// WhereCond builds a Condition on field.
func WhereCond(field string, condType ConditionType, value any) Condition {
	return Condition{Field: field, Type: condType, Value: value}
}

// ListQueryOptions describes a SELECT over one table or view.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    []string
	OrderDir   string
	Limit      int
	Offset     int
}

// ListQueryOption mutates ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions returns options for table with opts applied.
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	o := &ListQueryOptions{Table: table, Limit: unset, Offset: unset}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithColumns sets the selected columns.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition adds a predicate. Conditions are ANDed.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithOrderBy sets the ordering columns and a direction applied to each.
func WithOrderBy(direction string, columns ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = columns
		o.OrderDir = direction
	}
}

// WithLimit sets LIMIT. Non-positive values are ignored.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit > 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets OFFSET. Non-positive values are ignored.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset > 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly selects COUNT(*) instead of columns.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// BuildListQuery renders options into SQL and positional arguments.
//
//	q, args := BuildListQuery(NewListQueryOptions("role_assignments",
//		WithColumns("user_id", "role"),
//		WithCondition(WhereCond("user_id", Equal, id)),
//		WithOrderBy("ASC", "user_id", "role"),
//		WithLimit(50),
//	))
func BuildListQuery(o *ListQueryOptions) (string, []any) {
	if o == nil {
		return "", nil
	}

	var b strings.Builder
	switch {
	case o.CountOnly:
		b.WriteString("SELECT COUNT(*)")
	case len(o.Columns) == 0:
		b.WriteString("SELECT *")
	default:
		cols := make([]string, len(o.Columns))
		for i, c := range o.Columns {
			cols[i] = ident(c)
		}
		b.WriteString("SELECT " + strings.Join(cols, ", "))
	}
	b.WriteString(" FROM " + ident(o.Table))

	where, args := buildWhere(o.Conditions)
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	if o.CountOnly {
		return b.String(), args
	}

	if len(o.OrderBy) > 0 {
		dir := strings.ToUpper(o.OrderDir)
		if dir != "ASC" && dir != "DESC" {
			dir = ""
		}
		parts := make([]string, len(o.OrderBy))
		for i, c := range o.OrderBy {
			parts[i] = strings.TrimSpace(ident(c) + " " + dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if o.Limit != unset {
		args = append(args, o.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if o.Offset != unset {
		args = append(args, o.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

func buildWhere(conds []Condition) (string, []any) {
	var parts []string
	var args []any
	for _, c := range conds {
		if c.Field == "" {
			continue
		}
		switch c.Type {
		case Equal, NotEqual, ILike:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("%s %s $%d", ident(c.Field), c.Type, len(args)))
		case In:
			rv := reflect.ValueOf(c.Value)
			if rv.Kind() != reflect.Slice || rv.Len() == 0 {
				continue
			}
			ph := make([]string, rv.Len())
			for i := range rv.Len() {
				args = append(args, rv.Index(i).Interface())
				ph[i] = fmt.Sprintf("$%d", len(args))
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", ident(c.Field), strings.Join(ph, ", ")))
		}
	}
	return strings.Join(parts, " AND "), args
}
