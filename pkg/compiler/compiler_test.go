package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

func filmsRelation() *schema.Relation {
	return &schema.Relation{
		Schema:     "api",
		Name:       "films",
		Kind:       schema.KindTable,
		PrimaryKey: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", DataType: "integer"},
			{Name: "title", DataType: "text"},
			{Name: "year", DataType: "integer"},
			{Name: "poster", DataType: "bytea"},
		},
	}
}

func TestCompileReadBasic(t *testing.T) {
	rel := filmsRelation()
	req := &api.Request{
		Filters: []api.Filter{{Field: "year", Op: api.OpGte, Value: "1990"}},
		Order:   []api.OrderTerm{{Field: "title"}},
		Range:   api.RangeSpec{Offset: 5, Limit: 10},
	}

	rq, err := CompileRead(rel, req, ReadOptions{Columns: []string{"id", "title"}})
	require.NoError(t, err)

	assert.Equal(t,
		`WITH pgbridge_source AS (SELECT "id", "title" FROM "api"."films" WHERE "year" >= $1::integer ORDER BY "title" ASC LIMIT 10 OFFSET 5) `+
			`SELECT count(*)::bigint AS row_count, coalesce(json_agg(pgbridge_source), '[]')::text AS body FROM pgbridge_source`,
		rq.Envelope.SQL)
	assert.Equal(t, []any{"1990"}, rq.Envelope.Args)

	// The count query drops projection, order, and range but keeps filters.
	assert.Equal(t, `SELECT 1 FROM "api"."films" WHERE "year" >= $1::integer`, rq.Count.SQL)
	assert.Equal(t, []any{"1990"}, rq.Count.Args)
}

func TestCompileReadSingularAndRawShapes(t *testing.T) {
	rel := filmsRelation()

	rq, err := CompileRead(rel, &api.Request{}, ReadOptions{Shape: ShapeJSONSingular})
	require.NoError(t, err)
	assert.Contains(t, rq.Envelope.SQL, "(json_agg(pgbridge_source) -> 0)::text")

	rq, err = CompileRead(rel, &api.Request{}, ReadOptions{Shape: ShapeRaw, RawField: "poster"})
	require.NoError(t, err)
	assert.Contains(t, rq.Envelope.SQL, `string_agg(pgbridge_source."poster"::text, '')`)
}

func TestCompileReadFilterOperators(t *testing.T) {
	rel := filmsRelation()

	tests := []struct {
		name    string
		filter  api.Filter
		wantSQL string
		wantArg any
	}{
		{"eq", api.Filter{Field: "id", Op: api.OpEq, Value: "7"}, `"id" = $1::integer`, "7"},
		{"neq", api.Filter{Field: "id", Op: api.OpNeq, Value: "7"}, `"id" <> $1::integer`, "7"},
		{"like maps star", api.Filter{Field: "title", Op: api.OpLike, Value: "Jaws*"}, `"title"::text LIKE $1`, "Jaws%"},
		{"ilike", api.Filter{Field: "title", Op: api.OpILike, Value: "*jaws*"}, `"title"::text ILIKE $1`, "%jaws%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rq, err := CompileRead(rel, &api.Request{Filters: []api.Filter{tt.filter}}, ReadOptions{})
			require.NoError(t, err)
			assert.Contains(t, rq.Envelope.SQL, tt.wantSQL)
			require.Len(t, rq.Envelope.Args, 1)
			assert.Equal(t, tt.wantArg, rq.Envelope.Args[0])
		})
	}
}

func TestCompileReadIsFilter(t *testing.T) {
	rel := filmsRelation()

	rq, err := CompileRead(rel, &api.Request{
		Filters: []api.Filter{{Field: "year", Op: api.OpIs, Value: "null"}},
	}, ReadOptions{})
	require.NoError(t, err)
	assert.Contains(t, rq.Envelope.SQL, `"year" IS NULL`)
	assert.Empty(t, rq.Envelope.Args)

	_, err = CompileRead(rel, &api.Request{
		Filters: []api.Filter{{Field: "year", Op: api.OpIs, Value: "banana"}},
	}, ReadOptions{})
	require.Error(t, err)
}

func TestCompileReadInFilter(t *testing.T) {
	rel := filmsRelation()
	rq, err := CompileRead(rel, &api.Request{
		Filters: []api.Filter{{Field: "id", Op: api.OpIn, Values: []string{"1", "2", "3"}}},
	}, ReadOptions{})
	require.NoError(t, err)
	assert.Contains(t, rq.Envelope.SQL, `"id" IN ($1::integer, $2::integer, $3::integer)`)
	assert.Equal(t, []any{"1", "2", "3"}, rq.Envelope.Args)
}

func TestCompileReadUnknownColumn(t *testing.T) {
	rel := filmsRelation()
	_, err := CompileRead(rel, &api.Request{
		Filters: []api.Filter{{Field: "ghost", Op: api.OpEq, Value: "x"}},
	}, ReadOptions{})
	require.Error(t, err)
	apiErr, ok := err.(*api.Error)
	require.True(t, ok)
	assert.Equal(t, api.KindInvalidRequest, apiErr.Kind)
}

func TestCompileReadOrderNulls(t *testing.T) {
	rel := filmsRelation()
	nf := true
	rq, err := CompileRead(rel, &api.Request{
		Order: []api.OrderTerm{{Field: "year", Descending: true, NullsFirst: &nf}},
	}, ReadOptions{})
	require.NoError(t, err)
	assert.Contains(t, rq.Envelope.SQL, `ORDER BY "year" DESC NULLS FIRST`)
}

func TestCompileExactCount(t *testing.T) {
	q := CompileExactCount(Query{SQL: `SELECT 1 FROM "api"."films"`, Args: nil})
	assert.Equal(t, `SELECT count(*)::bigint FROM (SELECT 1 FROM "api"."films") pgbridge_count`, q.SQL)
}

func TestCompileCreate(t *testing.T) {
	rel := filmsRelation()
	q, err := CompileCreate(rel, []string{"title", "year"}, []byte(`[{"title":"Jaws","year":1975}]`), MutateOptions{
		Shape:        ShapeJSONArray,
		PKCols:       []string{"id"},
		WithLocation: true,
	})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `INSERT INTO "api"."films" ("title", "year") SELECT "title", "year" FROM json_populate_recordset(null::"api"."films", $1::json) RETURNING *`)
	assert.Contains(t, q.SQL, `json_build_object('id', pgbridge_source."id")`)
	assert.True(t, q.HasLocation)
	assert.Equal(t, []any{`[{"title":"Jaws","year":1975}]`}, q.Args)
}

func TestCompileCreateResolution(t *testing.T) {
	rel := filmsRelation()

	q, err := CompileCreate(rel, []string{"id", "title"}, []byte(`[]`), MutateOptions{
		Resolution: api.ResolutionIgnoreDuplicates,
	})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `ON CONFLICT ("id") DO NOTHING`)

	q, err = CompileCreate(rel, []string{"id", "title"}, []byte(`[]`), MutateOptions{
		Resolution: api.ResolutionMergeDuplicates,
	})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `ON CONFLICT ("id") DO UPDATE SET "title" = EXCLUDED."title"`)
}

func TestCompileCreateUnknownColumn(t *testing.T) {
	_, err := CompileCreate(filmsRelation(), []string{"ghost"}, []byte(`[]`), MutateOptions{})
	require.Error(t, err)
}

func TestCompileUpsert(t *testing.T) {
	rel := filmsRelation()
	req := &api.Request{Filters: []api.Filter{{Field: "id", Op: api.OpEq, Value: "7"}}}

	q, err := CompileUpsert(rel, req, []string{"id", "title"}, []byte(`[{"id":7,"title":"Jaws"}]`), MutateOptions{})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `ON CONFLICT ("id") DO UPDATE SET "title" = EXCLUDED."title"`)
}

func TestCompileUpsertRequiresPrimaryKey(t *testing.T) {
	rel := filmsRelation()
	rel.PrimaryKey = nil
	_, err := CompileUpsert(rel, &api.Request{}, []string{"title"}, []byte(`[]`), MutateOptions{})
	require.Error(t, err)
}

func TestCompileUpdate(t *testing.T) {
	rel := filmsRelation()
	req := &api.Request{Filters: []api.Filter{{Field: "id", Op: api.OpEq, Value: "7"}}}

	q, err := CompileUpdate(rel, req, []string{"title"}, []byte(`{"title":"Jaws 2"}`), MutateOptions{Shape: ShapeNone})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `UPDATE "api"."films" AS pgbridge_target SET "title" = pgbridge_body."title"`)
	assert.Contains(t, q.SQL, `FROM json_populate_record(null::"api"."films", $1::json) AS pgbridge_body WHERE "id" = $2::integer`)
	assert.Contains(t, q.SQL, `RETURNING pgbridge_target.*`)
	assert.Equal(t, []any{`{"title":"Jaws 2"}`, "7"}, q.Args)
}

func TestCompileUpdateNoColumns(t *testing.T) {
	_, err := CompileUpdate(filmsRelation(), &api.Request{}, nil, []byte(`{}`), MutateOptions{})
	require.Error(t, err)
}

func TestCompileDelete(t *testing.T) {
	rel := filmsRelation()
	req := &api.Request{Filters: []api.Filter{{Field: "year", Op: api.OpLt, Value: "1950"}}}

	q, err := CompileDelete(rel, req, MutateOptions{Shape: ShapeNone})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `DELETE FROM "api"."films" WHERE "year" < $1::integer RETURNING *`)
}

func TestDeterminism(t *testing.T) {
	rel := filmsRelation()
	req := &api.Request{
		Filters: []api.Filter{{Field: "id", Op: api.OpIn, Values: []string{"1", "2"}}},
		Order:   []api.OrderTerm{{Field: "title"}},
	}

	a, err := CompileRead(rel, req, ReadOptions{Columns: []string{"id"}})
	require.NoError(t, err)
	b, err := CompileRead(rel, req, ReadOptions{Columns: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
