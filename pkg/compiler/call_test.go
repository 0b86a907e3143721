package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

func searchProcedure() *schema.Procedure {
	return &schema.Procedure{
		Schema:     "api",
		Name:       "search",
		ReturnsSet: true,
		Args: []schema.ProcArg{
			{Name: "term", DataType: "text", Required: true},
			{Name: "max_hits", DataType: "integer"},
		},
	}
}

func TestCompileCallGet(t *testing.T) {
	proc := searchProcedure()
	req := &api.Request{
		Method:   "GET",
		ProcArgs: map[string]string{"term": "jaws", "max_hits": "5"},
	}

	q, err := CompileCall(proc, req, nil, CallOptions{})
	require.NoError(t, err)
	// Arguments render sorted by name so the statement is stable.
	assert.Contains(t, q.SQL, `"api"."search"("max_hits" := $1::integer, "term" := $2::text)`)
	assert.Equal(t, []any{"5", "jaws"}, q.Args)
}

func TestCompileCallGetMissingRequired(t *testing.T) {
	proc := searchProcedure()
	req := &api.Request{Method: "GET", ProcArgs: map[string]string{"max_hits": "5"}}

	_, err := CompileCall(proc, req, nil, CallOptions{})
	require.Error(t, err)
	apiErr, ok := err.(*api.Error)
	require.True(t, ok)
	assert.Equal(t, api.KindInvalidRequest, apiErr.Kind)
}

func TestCompileCallGetUnknownArgument(t *testing.T) {
	proc := searchProcedure()
	req := &api.Request{Method: "GET", ProcArgs: map[string]string{"term": "x", "ghost": "y"}}

	_, err := CompileCall(proc, req, nil, CallOptions{})
	require.Error(t, err)
}

func TestCompileCallPost(t *testing.T) {
	proc := searchProcedure()
	req := &api.Request{Method: "POST", PayloadColumns: []string{"term"}}
	payload := []byte(`{"term":"jaws"}`)

	q, err := CompileCall(proc, req, payload, CallOptions{})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `"term" := (($1::json) ->> 'term')::text`)
	assert.Equal(t, []any{`{"term":"jaws"}`}, q.Args)
}

func TestCompileCallMultiple(t *testing.T) {
	proc := searchProcedure()
	req := &api.Request{Method: "POST", PayloadColumns: []string{"term"}, PayloadIsArray: true}
	payload := []byte(`[{"term":"a"},{"term":"b"}]`)

	q, err := CompileCall(proc, req, payload, CallOptions{Multiple: true})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "json_array_elements($1::json) AS pgbridge_params")
	assert.Contains(t, q.SQL, "LATERAL (")
	assert.Contains(t, q.SQL, `"term" := ((pgbridge_params.value) ->> 'term')::text`)
}

func TestCompileCallPostNoArguments(t *testing.T) {
	proc := &schema.Procedure{Schema: "api", Name: "reindex", ReturnsVoid: true}
	req := &api.Request{Method: "POST"}

	q, err := CompileCall(proc, req, []byte(`{}`), CallOptions{Shape: ShapeNone})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `"api"."reindex"()`)
	assert.Empty(t, q.Args)
}

func TestCompileCallScalar(t *testing.T) {
	proc := &schema.Procedure{
		Schema:        "api",
		Name:          "version",
		ReturnsScalar: true,
	}
	req := &api.Request{Method: "GET", ProcArgs: map[string]string{}}

	q, err := CompileCall(proc, req, nil, CallOptions{Shape: ShapeRaw, RawField: ScalarField})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `SELECT "api"."version"() AS pgbridge_scalar`)
	assert.Contains(t, q.SQL, `string_agg(pgbridge_source."pgbridge_scalar"::text, '')`)
}
