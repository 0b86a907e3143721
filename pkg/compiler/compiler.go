// Package compiler turns structured requests into SQL. Every public function
// is pure: identical inputs produce identical Query values. Statements are
// wrapped in a one-row aggregation envelope so the executor always scans the
// same columns (row count, body, optional insert location).
package compiler

import (
	"fmt"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// Query is a compiled SQL statement with positional arguments.
type Query struct {
	SQL  string
	Args []any

	// HasLocation marks an envelope carrying a third column with the
	// created row's primary-key values.
	HasLocation bool
}

// BodyShape selects how the envelope serializes result rows.
type BodyShape int

const (
	// ShapeJSONArray: a JSON array of row objects (also the base for CSV,
	// which the engine renders from the array).
	ShapeJSONArray BodyShape = iota

	// ShapeJSONSingular: the first row as a bare JSON object.
	ShapeJSONSingular

	// ShapeRaw: the values of a single field concatenated verbatim.
	ShapeRaw

	// ShapeNone: no body, count only.
	ShapeNone
)

// ReadQuery is the compiled form of a read: the aggregation envelope to
// execute, plus a bare filtered select used for exact counts and planner
// estimates (no limit/offset, so totals cover the whole filtered set).
type ReadQuery struct {
	Envelope Query
	Count    Query
}

const sourceCTE = "pgbridge_source"

// quoteIdent renders a SQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualify renders a schema-qualified identifier.
func qualify(schemaName, name string) string {
	return quoteIdent(schemaName) + "." + quoteIdent(name)
}

// bodyExpr renders the envelope's body column for a shape.
func bodyExpr(shape BodyShape, rawField string) string {
	switch shape {
	case ShapeJSONSingular:
		return fmt.Sprintf("coalesce((json_agg(%s) -> 0)::text, '')", sourceCTE)
	case ShapeRaw:
		return fmt.Sprintf("coalesce(string_agg(%s.%s::text, ''), '')", sourceCTE, quoteIdent(rawField))
	case ShapeNone:
		return "''::text"
	default:
		return fmt.Sprintf("coalesce(json_agg(%s), '[]')::text", sourceCTE)
	}
}

// envelope wraps an inner row-producing statement in the standard one-row
// aggregation.
func envelope(inner string, args []any, shape BodyShape, rawField string, locationCols []string) Query {
	var b strings.Builder
	fmt.Fprintf(&b, "WITH %s AS (%s) SELECT count(*)::bigint AS row_count, %s AS body",
		sourceCTE, inner, bodyExpr(shape, rawField))

	q := Query{Args: args}
	if len(locationCols) > 0 {
		pairs := make([]string, 0, len(locationCols))
		for _, c := range locationCols {
			pairs = append(pairs, fmt.Sprintf("'%s', %s.%s", strings.ReplaceAll(c, "'", "''"), sourceCTE, quoteIdent(c)))
		}
		fmt.Fprintf(&b, ", coalesce((json_agg(json_build_object(%s)) -> 0)::text, '') AS location",
			strings.Join(pairs, ", "))
		q.HasLocation = true
	}

	fmt.Fprintf(&b, " FROM %s", sourceCTE)
	q.SQL = b.String()
	return q
}

// selectList renders the projection for a read.
func selectList(cols []string) string {
	if len(cols) == 0 {
		return "*"
	}
	quoted := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "*" {
			quoted = append(quoted, "*")
			continue
		}
		quoted = append(quoted, quoteIdent(c))
	}
	return strings.Join(quoted, ", ")
}

// columnCast returns the parameter cast for a column, so text-typed
// parameters compare cleanly against any column type. format_type output is
// trusted; it comes from the catalog, not the client.
func columnCast(rel *schema.Relation, field string) (string, error) {
	col, ok := rel.Column(field)
	if !ok {
		return "", api.NewInvalidRequest("column %q of relation %q does not exist", field, rel.Name)
	}
	if col.DataType == "" {
		return "::text", nil
	}
	return "::" + col.DataType, nil
}

// whereClause renders the filter predicates. argIndex is the 1-based index
// of the next placeholder; the returned int is the index after the last one
// used.
func whereClause(rel *schema.Relation, filters []api.Filter, args []any, argIndex int) (string, []any, int, error) {
	if len(filters) == 0 {
		return "", args, argIndex, nil
	}

	preds := make([]string, 0, len(filters))
	for _, f := range filters {
		col := quoteIdent(f.Field)

		switch f.Op {
		case api.OpIs:
			pred, err := isPredicate(col, f.Value)
			if err != nil {
				return "", nil, 0, err
			}
			preds = append(preds, pred)

		case api.OpIn:
			cast, err := columnCast(rel, f.Field)
			if err != nil {
				return "", nil, 0, err
			}
			if len(f.Values) == 0 {
				preds = append(preds, "false")
				continue
			}
			holes := make([]string, 0, len(f.Values))
			for _, v := range f.Values {
				holes = append(holes, fmt.Sprintf("$%d%s", argIndex, cast))
				args = append(args, v)
				argIndex++
			}
			preds = append(preds, fmt.Sprintf("%s IN (%s)", col, strings.Join(holes, ", ")))

		case api.OpLike, api.OpILike:
			op := "LIKE"
			if f.Op == api.OpILike {
				op = "ILIKE"
			}
			// PostgREST-style wildcard: * in the query string means %.
			pattern := strings.ReplaceAll(f.Value, "*", "%")
			preds = append(preds, fmt.Sprintf("%s::text %s $%d", col, op, argIndex))
			args = append(args, pattern)
			argIndex++

		default:
			sqlOp, ok := comparisonOp(f.Op)
			if !ok {
				return "", nil, 0, api.NewInvalidRequest("unknown filter operator %q", f.Op)
			}
			cast, err := columnCast(rel, f.Field)
			if err != nil {
				return "", nil, 0, err
			}
			preds = append(preds, fmt.Sprintf("%s %s $%d%s", col, sqlOp, argIndex, cast))
			args = append(args, f.Value)
			argIndex++
		}
	}

	return " WHERE " + strings.Join(preds, " AND "), args, argIndex, nil
}

func comparisonOp(op api.FilterOp) (string, bool) {
	switch op {
	case api.OpEq:
		return "=", true
	case api.OpNeq:
		return "<>", true
	case api.OpGt:
		return ">", true
	case api.OpGte:
		return ">=", true
	case api.OpLt:
		return "<", true
	case api.OpLte:
		return "<=", true
	}
	return "", false
}

func isPredicate(col, value string) (string, error) {
	switch value {
	case "null":
		return col + " IS NULL", nil
	case "not.null":
		return col + " IS NOT NULL", nil
	case "true":
		return col + " IS TRUE", nil
	case "false":
		return col + " IS FALSE", nil
	}
	return "", api.NewInvalidRequest("is filter accepts null, not.null, true, or false, got %q", value)
}

// orderClause renders the ORDER BY terms.
func orderClause(order []api.OrderTerm) string {
	if len(order) == 0 {
		return ""
	}
	terms := make([]string, 0, len(order))
	for _, o := range order {
		t := quoteIdent(o.Field)
		if o.Descending {
			t += " DESC"
		} else {
			t += " ASC"
		}
		if o.NullsFirst != nil {
			if *o.NullsFirst {
				t += " NULLS FIRST"
			} else {
				t += " NULLS LAST"
			}
		}
		terms = append(terms, t)
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

// rangeClause renders LIMIT/OFFSET from the request range.
func rangeClause(r api.RangeSpec) string {
	var b strings.Builder
	if !r.Unbounded() {
		fmt.Fprintf(&b, " LIMIT %d", r.Limit)
	}
	if r.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", r.Offset)
	}
	return b.String()
}
