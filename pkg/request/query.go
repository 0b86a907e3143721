package request

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
)

// reservedParams are query keys with structural meaning; everything else is a
// filter (relations) or a named argument (GET procedure calls).
var reservedParams = map[string]bool{
	"select": true,
	"order":  true,
	"limit":  true,
	"offset": true,
}

var filterOps = map[string]api.FilterOp{
	"eq":    api.OpEq,
	"neq":   api.OpNeq,
	"gt":    api.OpGt,
	"gte":   api.OpGte,
	"lt":    api.OpLt,
	"lte":   api.OpLte,
	"like":  api.OpLike,
	"ilike": api.OpILike,
	"is":    api.OpIs,
	"in":    api.OpIn,
}

// parseQuery consumes the URL query string into select list, ordering, range,
// and per-column filters or procedure arguments.
func parseQuery(r *http.Request, req *api.Request) error {
	query := r.URL.Query()

	procCall := req.Action == api.ActionInvoke &&
		(r.Method == http.MethodGet || r.Method == http.MethodHead)
	if procCall {
		req.ProcArgs = map[string]string{}
	}

	for key, values := range query {
		value := values[len(values)-1]

		switch key {
		case "select":
			req.Select = splitList(value)

		case "order":
			order, err := parseOrder(value)
			if err != nil {
				return err
			}
			req.Order = order

		case "limit":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return api.NewInvalidRequest("limit must be a non-negative integer, got %q", value)
			}
			req.Range.Limit = n

		case "offset":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return api.NewInvalidRequest("offset must be a non-negative integer, got %q", value)
			}
			req.Range.Offset = n

		default:
			if procCall {
				req.ProcArgs[key] = value
				continue
			}
			// A column may carry several filters (year=gte.1990&year=lt.2000).
			for _, v := range values {
				filter, err := parseFilter(key, v)
				if err != nil {
					return err
				}
				req.Filters = append(req.Filters, filter)
			}
		}
	}

	sortFilters(req.Filters)
	return nil
}

// parseFilter reads the op.value grammar of one filter parameter.
func parseFilter(field, raw string) (api.Filter, error) {
	opText, rest, found := strings.Cut(raw, ".")
	if !found {
		return api.Filter{}, api.NewInvalidRequest(
			"filter on %q must have the form operator.value, got %q", field, raw)
	}

	// is filters take dotted values (not.null), so resolve them before the
	// generic cut applies.
	if opText == "is" {
		return api.Filter{Field: field, Op: api.OpIs, Value: rest}, nil
	}

	op, ok := filterOps[opText]
	if !ok {
		return api.Filter{}, api.NewInvalidRequest("unknown filter operator %q on %q", opText, field)
	}

	if op == api.OpIn {
		values, err := parseInList(field, rest)
		if err != nil {
			return api.Filter{}, err
		}
		return api.Filter{Field: field, Op: op, Values: values}, nil
	}
	return api.Filter{Field: field, Op: op, Value: rest}, nil
}

// parseInList reads the (a,b,c) list form. Quoted items keep embedded commas.
func parseInList(field, raw string) ([]string, error) {
	if !strings.HasPrefix(raw, "(") || !strings.HasSuffix(raw, ")") {
		return nil, api.NewInvalidRequest("in filter on %q must list values as (a,b,c)", field)
	}
	inner := raw[1 : len(raw)-1]
	if inner == "" {
		return []string{}, nil
	}

	var values []string
	for _, item := range splitQuoted(inner) {
		item = strings.TrimSpace(item)
		if len(item) >= 2 && item[0] == '"' && item[len(item)-1] == '"' {
			item = item[1 : len(item)-1]
		}
		values = append(values, item)
	}
	return values, nil
}

// splitQuoted splits on commas outside double quotes.
func splitQuoted(s string) []string {
	var parts []string
	var b strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == ',' && !inQuote:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	parts = append(parts, b.String())
	return parts
}

// parseOrder reads comma-separated order terms: col, col.desc,
// col.asc.nullslast, and so on.
func parseOrder(raw string) ([]api.OrderTerm, error) {
	var order []api.OrderTerm
	for _, termText := range splitList(raw) {
		parts := strings.Split(termText, ".")
		term := api.OrderTerm{Field: parts[0]}
		if term.Field == "" {
			return nil, api.NewInvalidRequest("empty order term in %q", raw)
		}

		for _, mod := range parts[1:] {
			switch mod {
			case "asc":
				term.Descending = false
			case "desc":
				term.Descending = true
			case "nullsfirst":
				v := true
				term.NullsFirst = &v
			case "nullslast":
				v := false
				term.NullsFirst = &v
			default:
				return nil, api.NewInvalidRequest("unknown order modifier %q in %q", mod, raw)
			}
		}
		order = append(order, term)
	}
	return order, nil
}

// parseRangeHeader reads the legacy Range: 0-9 form. Query parameters win
// when both are present.
func parseRangeHeader(r *http.Request, req *api.Request) error {
	raw := strings.TrimSpace(r.Header.Get("Range"))
	if raw == "" || req.Range.Limit > 0 || req.Range.Offset > 0 {
		return nil
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return nil
	}

	raw = strings.TrimPrefix(raw, "items=")
	first, last, found := strings.Cut(raw, "-")
	if !found {
		return api.NewInvalidRequest("malformed Range header %q", raw)
	}

	lo, err := strconv.ParseInt(first, 10, 64)
	if err != nil || lo < 0 {
		return api.NewInvalidRequest("malformed Range header %q", raw)
	}
	req.Range.Offset = lo

	if last != "" {
		hi, err := strconv.ParseInt(last, 10, 64)
		if err != nil || hi < lo {
			return api.NewInvalidRequest("malformed Range header %q", raw)
		}
		req.Range.Limit = hi - lo + 1
	}
	return nil
}

// sortFilters orders filters by field then operator so compiled SQL is stable
// regardless of query-string ordering.
func sortFilters(filters []api.Filter) {
	for i := 1; i < len(filters); i++ {
		for j := i; j > 0 && filterLess(filters[j], filters[j-1]); j-- {
			filters[j], filters[j-1] = filters[j-1], filters[j]
		}
	}
}

func filterLess(a, b api.Filter) bool {
	if a.Field != b.Field {
		return a.Field < b.Field
	}
	return a.Op < b.Op
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
