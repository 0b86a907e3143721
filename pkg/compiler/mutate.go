package compiler

import (
	"fmt"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// MutateOptions shape a compiled write.
type MutateOptions struct {
	Shape    BodyShape
	RawField string

	// PKCols, when set with WithLocation, adds the envelope's location
	// column built from the created row's key values.
	PKCols       []string
	WithLocation bool

	// Resolution applies ON CONFLICT handling to inserts and upserts.
	Resolution api.Resolution
}

// CompileCreate builds an INSERT envelope. payload must be a JSON array of
// row objects; columns is the set of keys the payload carries.
func CompileCreate(rel *schema.Relation, columns []string, payload []byte, opts MutateOptions) (Query, error) {
	if err := checkColumns(rel, columns); err != nil {
		return Query{}, err
	}

	target := qualify(rel.Schema, rel.Name)
	var inner string

	if len(columns) == 0 {
		inner = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", target)
		conflict, err := conflictClause(rel, columns, opts.Resolution)
		if err != nil {
			return Query{}, err
		}
		if conflict != "" {
			return Query{}, api.NewInvalidRequest("conflict resolution requires a payload with columns")
		}
		return envelopeWithLocation(inner, nil, opts), nil
	}

	cols := quotedList(columns)
	conflict, err := conflictClause(rel, columns, opts.Resolution)
	if err != nil {
		return Query{}, err
	}

	inner = fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM json_populate_recordset(null::%s, $1::json)%s RETURNING *",
		target, cols, cols, target, conflict,
	)

	return envelopeWithLocation(inner, []any{string(payload)}, opts), nil
}

// CompileUpsert builds the single-row PUT statement: an insert that updates
// on primary-key conflict, constrained by the request filters so only the
// addressed row can be touched.
func CompileUpsert(rel *schema.Relation, req *api.Request, columns []string, payload []byte, opts MutateOptions) (Query, error) {
	if !rel.HasPrimaryKey() {
		return Query{}, api.NewInvalidRequest("cannot PUT into %q: no primary key", rel.Name)
	}
	if err := checkColumns(rel, columns); err != nil {
		return Query{}, err
	}

	target := qualify(rel.Schema, rel.Name)
	cols := quotedList(columns)

	setClauses := make([]string, 0, len(columns))
	for _, c := range columns {
		if contains(rel.PrimaryKey, c) {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
	}

	conflict := fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quotedList(rel.PrimaryKey))
	if len(setClauses) > 0 {
		conflict = fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
			quotedList(rel.PrimaryKey), strings.Join(setClauses, ", "))
	}

	inner := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM json_populate_recordset(null::%s, $1::json)%s RETURNING *",
		target, cols, cols, target, conflict,
	)

	return envelopeWithLocation(inner, []any{string(payload)}, opts), nil
}

// CompileUpdate builds an UPDATE envelope. payload must be a single JSON
// object; columns are its keys. An empty column set is the caller's no-op
// case and never reaches the compiler.
func CompileUpdate(rel *schema.Relation, req *api.Request, columns []string, payload []byte, opts MutateOptions) (Query, error) {
	if len(columns) == 0 {
		return Query{}, api.NewInvalidRequest("update requires at least one column")
	}
	if err := checkColumns(rel, columns); err != nil {
		return Query{}, err
	}

	target := qualify(rel.Schema, rel.Name)

	setClauses := make([]string, 0, len(columns))
	for _, c := range columns {
		setClauses = append(setClauses, fmt.Sprintf("%s = pgbridge_body.%s", quoteIdent(c), quoteIdent(c)))
	}

	where, args, _, err := whereClause(rel, req.Filters, []any{string(payload)}, 2)
	if err != nil {
		return Query{}, err
	}

	inner := fmt.Sprintf(
		"UPDATE %s AS pgbridge_target SET %s FROM json_populate_record(null::%s, $1::json) AS pgbridge_body%s RETURNING pgbridge_target.*",
		target, strings.Join(setClauses, ", "), target, where,
	)

	return envelope(inner, args, opts.Shape, opts.RawField, nil), nil
}

// CompileDelete builds a DELETE envelope.
func CompileDelete(rel *schema.Relation, req *api.Request, opts MutateOptions) (Query, error) {
	where, args, _, err := whereClause(rel, req.Filters, nil, 1)
	if err != nil {
		return Query{}, err
	}

	inner := fmt.Sprintf("DELETE FROM %s%s RETURNING *", qualify(rel.Schema, rel.Name), where)
	return envelope(inner, args, opts.Shape, opts.RawField, nil), nil
}

func envelopeWithLocation(inner string, args []any, opts MutateOptions) Query {
	var loc []string
	if opts.WithLocation && len(opts.PKCols) > 0 {
		loc = opts.PKCols
	}
	return envelope(inner, args, opts.Shape, opts.RawField, loc)
}

// conflictClause renders ON CONFLICT handling for inserts.
func conflictClause(rel *schema.Relation, columns []string, res api.Resolution) (string, error) {
	if res == api.ResolutionNone {
		return "", nil
	}
	if !rel.HasPrimaryKey() {
		return "", api.NewInvalidRequest("conflict resolution requires a primary key on %q", rel.Name)
	}

	if res == api.ResolutionIgnoreDuplicates {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quotedList(rel.PrimaryKey)), nil
	}

	setClauses := make([]string, 0, len(columns))
	for _, c := range columns {
		if contains(rel.PrimaryKey, c) {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
	}
	if len(setClauses) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quotedList(rel.PrimaryKey)), nil
	}

	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		quotedList(rel.PrimaryKey), strings.Join(setClauses, ", ")), nil
}

// checkColumns validates payload keys against the relation.
func checkColumns(rel *schema.Relation, columns []string) error {
	for _, c := range columns {
		if _, ok := rel.Column(c); !ok {
			return api.NewInvalidRequest("column %q of relation %q does not exist", c, rel.Name)
		}
	}
	return nil
}

func quotedList(names []string) string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, quoteIdent(n))
	}
	return strings.Join(out, ", ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
