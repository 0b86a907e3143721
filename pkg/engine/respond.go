package engine

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/compiler"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// response is the handler-produced result before it is written to the wire.
type response struct {
	status      int
	headers     http.Header
	body        []byte
	contentType string

	// err is set on failure responses only; body and contentType are then
	// derived from it at write time.
	err *api.Error
}

func newResponse(status int) *response {
	return &response{status: status, headers: http.Header{}}
}

// applyOverrides folds database-asserted status and headers into the
// response. The asserted status always wins; asserted headers only fill
// names the gateway has not set itself, first assertion winning.
func (resp *response) applyOverrides(res *api.StandardResult) {
	if res.GucStatus != nil {
		resp.status = *res.GucStatus
	}
	for _, h := range res.GucHeaders {
		if resp.headers.Get(h.Name) == "" {
			resp.headers.Set(h.Name, h.Value)
		}
	}
}

// shapeForMedia picks the SQL body aggregation for a negotiated media type.
// CSV reads as a JSON array and is rendered client-side of the database.
func shapeForMedia(media api.MediaType) compiler.BodyShape {
	switch {
	case media.IsSingular():
		return compiler.ShapeJSONSingular
	case media.IsRaw():
		return compiler.ShapeRaw
	default:
		return compiler.ShapeJSONArray
	}
}

// resolveRawField checks that a raw media type addresses exactly one
// concrete column and returns it.
func resolveRawField(req *api.Request) (string, error) {
	if len(req.Select) != 1 || req.Select[0] == "*" {
		return "", api.NewBinaryFieldError(req.Accept)
	}
	return req.Select[0], nil
}

// renderBody converts the SQL-produced body into the negotiated
// representation and returns it with its content type.
func renderBody(media api.MediaType, body []byte) ([]byte, string, error) {
	switch media {
	case api.MediaCSV:
		out, err := csvFromJSON(body)
		if err != nil {
			return nil, "", err
		}
		return out, string(api.MediaCSV), nil
	case api.MediaSingularJSON, api.MediaJSON:
		return body, string(media), nil
	default:
		return body, string(media), nil
	}
}

// csvFromJSON renders a JSON array of row objects as CSV. The header row
// follows the first object's key order; later objects may omit keys, which
// render empty.
func csvFromJSON(doc []byte) ([]byte, error) {
	columns, err := firstObjectKeys(doc)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(doc, &rows); err != nil {
		return nil, api.NewDatabaseError("unreadable result document", err.Error(), "", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = csvCell(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// firstObjectKeys reads the keys of the first object in a JSON array in
// their textual order, which map decoding would not preserve.
func firstObjectKeys(doc []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return nil, api.NewDatabaseError("unreadable result document", err.Error(), "", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, api.NewDatabaseError("result document is not an array", "", "", nil)
	}
	if !dec.More() {
		return nil, nil
	}

	tok, err = dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, api.NewDatabaseError("result rows are not objects", "", "", nil)
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, api.NewDatabaseError("result rows are not objects", "", "", nil)
		}
		keys = append(keys, key)

		var skip any
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func csvCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		out, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(out)
	}
}

// contentRange renders the Content-Range value for a row window. total is
// nil when no count was requested, rendering as "*".
func contentRange(offset, rowCount int64, total *int64) string {
	totalText := "*"
	if total != nil {
		totalText = fmt.Sprintf("%d", *total)
	}
	if rowCount == 0 {
		return "*/" + totalText
	}
	return fmt.Sprintf("%d-%d/%s", offset, offset+rowCount-1, totalText)
}

// rangeStatus picks 200 or 206 for a read: partial content when a total is
// known and the window does not cover it.
func rangeStatus(offset, rowCount int64, total *int64) int {
	if total != nil && (offset > 0 || rowCount < *total) {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

// locationHeader renders the Location of a created row from its returned
// primary-key values.
func locationHeader(rel *schema.Relation, pairs []api.GucHeader) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=eq.%s", p.Name, p.Value))
	}
	return "/" + rel.Name + "?" + strings.Join(parts, "&")
}
