package compiler

import (
	"fmt"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// ReadOptions shape a compiled read.
type ReadOptions struct {
	// Columns is the resolved select list; empty means every column.
	Columns []string

	Shape    BodyShape
	RawField string
}

// CompileRead builds the envelope query for a relation read plus the bare
// count query used for totals.
func CompileRead(rel *schema.Relation, req *api.Request, opts ReadOptions) (ReadQuery, error) {
	where, args, _, err := whereClause(rel, req.Filters, nil, 1)
	if err != nil {
		return ReadQuery{}, err
	}

	inner := fmt.Sprintf("SELECT %s FROM %s%s%s%s",
		selectList(opts.Columns),
		qualify(rel.Schema, rel.Name),
		where,
		orderClause(req.Order),
		rangeClause(req.Range),
	)

	countArgs := make([]any, len(args))
	copy(countArgs, args)
	count := Query{
		SQL:  fmt.Sprintf("SELECT 1 FROM %s%s", qualify(rel.Schema, rel.Name), where),
		Args: countArgs,
	}

	return ReadQuery{
		Envelope: envelope(inner, args, opts.Shape, opts.RawField, nil),
		Count:    count,
	}, nil
}

// CompileExactCount wraps a bare filtered select in count(*).
func CompileExactCount(count Query) Query {
	return Query{
		SQL:  fmt.Sprintf("SELECT count(*)::bigint FROM (%s) pgbridge_count", count.SQL),
		Args: count.Args,
	}
}

// CompilePrivilegeFilter lists the relations of a schema the current role
// may select from, shaped like a standard envelope so the executor can run
// it unchanged.
func CompilePrivilegeFilter(schemaName string) Query {
	inner := "SELECT c.relname AS name" +
		" FROM pg_catalog.pg_class c" +
		" JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace" +
		" WHERE n.nspname = $1" +
		" AND c.relkind IN ('r', 'p', 'v', 'm')" +
		" AND pg_catalog.has_table_privilege(current_user, c.oid, 'SELECT')"
	return envelope(inner, []any{schemaName}, ShapeJSONArray, "", nil)
}
