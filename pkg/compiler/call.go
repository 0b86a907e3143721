package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// ScalarField is the synthetic column name given to a scalar procedure
// result, so raw media types have a field to select.
const ScalarField = "pgbridge_scalar"

// CallOptions shape a compiled procedure call.
type CallOptions struct {
	Shape    BodyShape
	RawField string

	// Multiple flattens a JSON array payload into one call per element.
	Multiple bool

	// ScalarJSON wraps a scalar result in to_json so JSON media types get a
	// valid document instead of the bare value text.
	ScalarJSON bool
}

// CompileCall builds the envelope for a stored procedure invocation. For
// GET/HEAD the arguments come from req.ProcArgs; for POST from the JSON
// payload. Declared argument types drive the parameter casts.
func CompileCall(proc *schema.Procedure, req *api.Request, payload []byte, opts CallOptions) (Query, error) {
	fn := qualify(proc.Schema, proc.Name)

	call := func(argList string) string {
		if proc.ReturnsScalar || proc.ReturnsVoid {
			if opts.ScalarJSON {
				return fmt.Sprintf("SELECT to_json(%s(%s)) AS %s", fn, argList, ScalarField)
			}
			return fmt.Sprintf("SELECT %s(%s) AS %s", fn, argList, ScalarField)
		}
		return fmt.Sprintf("SELECT * FROM %s(%s)", fn, argList)
	}

	switch {
	case req.Method == "GET" || req.Method == "HEAD":
		argList, args, err := queryArgs(proc, req.ProcArgs)
		if err != nil {
			return Query{}, err
		}
		return envelope(call(argList), args, opts.Shape, opts.RawField, nil), nil

	case opts.Multiple:
		argList, err := jsonArgs(proc, req.PayloadColumns, "pgbridge_params.value")
		if err != nil {
			return Query{}, err
		}
		inner := fmt.Sprintf(
			"SELECT pgbridge_call.* FROM json_array_elements($1::json) AS pgbridge_params, LATERAL (%s) AS pgbridge_call",
			call(argList),
		)
		return envelope(inner, []any{string(payload)}, opts.Shape, opts.RawField, nil), nil

	default:
		argList, err := jsonArgs(proc, req.PayloadColumns, "$1::json")
		if err != nil {
			return Query{}, err
		}
		// A call taking no arguments must not bind the unused payload.
		var args []any
		if len(req.PayloadColumns) > 0 {
			args = []any{string(payload)}
		}
		return envelope(call(argList), args, opts.Shape, opts.RawField, nil), nil
	}
}

// queryArgs renders name := $n casts for query-string arguments.
func queryArgs(proc *schema.Procedure, given map[string]string) (string, []any, error) {
	names := make([]string, 0, len(given))
	for name := range given {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for i, name := range names {
		arg, err := declaredArg(proc, name)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, fmt.Sprintf("%s := $%d%s", quoteIdent(name), i+1, castFor(arg)))
		args = append(args, given[name])
	}

	if err := checkRequiredArgs(proc, names); err != nil {
		return "", nil, err
	}
	return strings.Join(parts, ", "), args, nil
}

// jsonArgs renders name := (source ->> 'name') casts for JSON payloads.
// source is either the positional payload parameter or the per-element
// column of a flattened array call.
func jsonArgs(proc *schema.Procedure, keys []string, source string) (string, error) {
	parts := make([]string, 0, len(keys))
	for _, name := range keys {
		arg, err := declaredArg(proc, name)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s := ((%s) ->> '%s')%s",
			quoteIdent(name), source, strings.ReplaceAll(name, "'", "''"), castFor(arg)))
	}

	if err := checkRequiredArgs(proc, keys); err != nil {
		return "", err
	}
	return strings.Join(parts, ", "), nil
}

func declaredArg(proc *schema.Procedure, name string) (*schema.ProcArg, error) {
	for i := range proc.Args {
		if proc.Args[i].Name == name {
			return &proc.Args[i], nil
		}
	}
	return nil, api.NewInvalidRequest("function %s.%s has no argument %q", proc.Schema, proc.Name, name)
}

func checkRequiredArgs(proc *schema.Procedure, given []string) error {
	for _, arg := range proc.Args {
		if !arg.Required {
			continue
		}
		if !contains(given, arg.Name) {
			return api.NewInvalidRequest("missing required argument %q of function %s.%s",
				arg.Name, proc.Schema, proc.Name)
		}
	}
	return nil
}

// castFor renders the declared-type cast; the type name comes from
// format_type on the catalog side.
func castFor(arg *schema.ProcArg) string {
	if arg.DataType == "" {
		return "::text"
	}
	return "::" + arg.DataType
}
