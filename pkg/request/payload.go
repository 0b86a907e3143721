package request

import (
	"encoding/json"
	"sort"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
)

// parsePayload validates the request body for payload-carrying actions and
// records the column set it addresses. Row-set payloads are normalized to a
// JSON array so downstream SQL generation has one shape to deal with.
func parsePayload(req *api.Request, body []byte) error {
	switch req.Action {
	case api.ActionCreate, api.ActionUpdate, api.ActionUpsert:
	case api.ActionInvoke:
		if req.Method != "POST" {
			return nil
		}
	default:
		return nil
	}

	if len(body) == 0 {
		if req.Action == api.ActionInvoke {
			req.Payload = []byte("{}")
			return nil
		}
		return api.NewInvalidRequest("request body is required for %s", req.Action)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return api.NewInvalidRequest("request body is not valid JSON: %v", err)
	}

	switch v := doc.(type) {
	case map[string]any:
		req.Payload = body
		req.PayloadColumns = sortedKeys(v)
		if req.Action == api.ActionCreate || req.Action == api.ActionUpsert {
			// Row-set actions always work on arrays.
			wrapped := make([]byte, 0, len(body)+2)
			wrapped = append(wrapped, '[')
			wrapped = append(wrapped, body...)
			wrapped = append(wrapped, ']')
			req.Payload = wrapped
		}
		return nil

	case []any:
		if req.Action == api.ActionUpdate {
			return api.NewInvalidRequest("update requires a single JSON object body")
		}
		if req.Action == api.ActionInvoke && req.Prefer.Params != api.ParamsMultipleObjects {
			return api.NewInvalidRequest("array bodies on procedure calls require Prefer: params=multiple-objects")
		}
		columns, err := uniformColumns(v)
		if err != nil {
			return err
		}
		req.Payload = body
		req.PayloadColumns = columns
		req.PayloadIsArray = true
		return nil
	}

	return api.NewInvalidRequest("request body must be a JSON object or array of objects")
}

// uniformColumns checks that every array element is an object carrying the
// same keys, and returns those keys sorted.
func uniformColumns(rows []any) ([]string, error) {
	var columns []string
	for i, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			return nil, api.NewInvalidRequest("array body element %d is not a JSON object", i)
		}
		keys := sortedKeys(obj)
		if i == 0 {
			columns = keys
			continue
		}
		if !equalStrings(columns, keys) {
			return nil, api.NewInvalidRequest("all array body elements must have the same keys")
		}
	}
	return columns, nil
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
