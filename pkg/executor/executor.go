// Package executor runs compiled statements inside a request transaction and
// folds the database's response overrides into the result. All statements go
// through the envelope contract: one row with a count, a body, and optionally
// an insert location, so scanning is uniform across actions.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/compiler"
	"github.com/pgbridge-dev/pgbridge/pkg/db"
)

// Executor executes compiled queries on a transaction.
type Executor struct{}

func New() *Executor { return &Executor{} }

// SetLocalGUCs installs the per-request settings SQL code can observe:
// the role the transaction runs as, the caller's JWT claims, and the
// request method and path. All are transaction-local.
func (e *Executor) SetLocalGUCs(ctx context.Context, tx *db.Tx, role string, claims []byte, method, path string) error {
	claimsText := ""
	if len(claims) > 0 {
		claimsText = string(claims)
	}
	_, err := tx.Exec(ctx,
		"SELECT set_config('role', $1, true),"+
			" set_config('request.jwt.claims', $2, true),"+
			" set_config('request.method', $3, true),"+
			" set_config('request.path', $4, true)",
		role, claimsText, method, path)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

// Execute runs an envelope statement and reads back the response overrides
// the statement may have asserted through response.status / response.headers.
func (e *Executor) Execute(ctx context.Context, tx *db.Tx, q compiler.Query) (*api.StandardResult, error) {
	var (
		rowCount int64
		body     string
		location string
	)

	row := tx.QueryRow(ctx, q.SQL, q.Args...)
	var err error
	if q.HasLocation {
		err = row.Scan(&rowCount, &body, &location)
	} else {
		err = row.Scan(&rowCount, &body)
	}
	if err != nil {
		return nil, wrapDBError(err)
	}

	res := &api.StandardResult{
		Body:     []byte(body),
		RowCount: rowCount,
	}

	if location != "" {
		pairs, err := orderedPairs(json.NewDecoder(strings.NewReader(location)))
		if err != nil {
			return nil, api.NewDatabaseError("invalid location payload", err.Error(), "", err)
		}
		res.Location = pairs
	}

	status, headers, err := e.readOverrides(ctx, tx)
	if err != nil {
		return nil, err
	}
	res.GucStatus = status
	res.GucHeaders = headers
	return res, nil
}

// ExactCount runs a count statement and returns the total.
func (e *Executor) ExactCount(ctx context.Context, tx *db.Tx, q compiler.Query) (int64, error) {
	var n int64
	if err := tx.QueryRow(ctx, q.SQL, q.Args...).Scan(&n); err != nil {
		return 0, wrapDBError(err)
	}
	return n, nil
}

// PlannedCount asks the planner for its row estimate of the filtered set.
func (e *Executor) PlannedCount(ctx context.Context, tx *db.Tx, q compiler.Query) (int64, error) {
	var plan []byte
	sql := "EXPLAIN (FORMAT JSON) " + q.SQL
	if err := tx.QueryRow(ctx, sql, q.Args...).Scan(&plan); err != nil {
		return 0, wrapDBError(err)
	}
	return planRows(plan)
}

// ExplainPlan renders the execution plan of a statement for plan-typed
// responses.
func (e *Executor) ExplainPlan(ctx context.Context, tx *db.Tx, q compiler.Query) ([]byte, error) {
	var plan []byte
	sql := "EXPLAIN (FORMAT JSON) " + q.SQL
	if err := tx.QueryRow(ctx, sql, q.Args...).Scan(&plan); err != nil {
		return nil, wrapDBError(err)
	}
	return plan, nil
}

// readOverrides fetches response.status and response.headers. Both settings
// are read with missing_ok so requests that never touch them cost nothing
// beyond one cheap select.
func (e *Executor) readOverrides(ctx context.Context, tx *db.Tx) (*int, []api.GucHeader, error) {
	var statusText, headersText *string
	err := tx.QueryRow(ctx,
		"SELECT nullif(current_setting('response.status', true), ''),"+
			" nullif(current_setting('response.headers', true), '')").
		Scan(&statusText, &headersText)
	if err != nil {
		return nil, nil, wrapDBError(err)
	}

	var status *int
	if statusText != nil {
		n, err := strconv.Atoi(strings.TrimSpace(*statusText))
		if err != nil || n < 100 || n > 599 {
			return nil, nil, api.NewDatabaseError(
				"invalid response.status", fmt.Sprintf("%q is not an HTTP status", *statusText), "", nil)
		}
		status = &n
	}

	var headers []api.GucHeader
	if headersText != nil {
		headers, err = parseHeaderList(*headersText)
		if err != nil {
			return nil, nil, api.NewDatabaseError("invalid response.headers", err.Error(), "", err)
		}
	}
	return status, headers, nil
}

// parseHeaderList decodes the response.headers format: a JSON array of
// objects, each pair asserted in array order.
func parseHeaderList(raw string) ([]api.GucHeader, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errors.New("expected a JSON array of header objects")
	}

	var headers []api.GucHeader
	for dec.More() {
		pairs, err := orderedPairs(dec)
		if err != nil {
			return nil, err
		}
		headers = append(headers, pairs...)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return headers, nil
}

// orderedPairs decodes one JSON object into name/value pairs preserving key
// order, which map decoding would lose.
func orderedPairs(dec *json.Decoder) ([]api.GucHeader, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var pairs []api.GucHeader
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("expected a string key")
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		pairs = append(pairs, api.GucHeader{Name: key, Value: scalarText(value)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// scalarText renders a decoded JSON value the way it would appear in a
// header: strings verbatim, everything else re-marshaled.
func scalarText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

// planRows extracts the top-level row estimate from EXPLAIN (FORMAT JSON)
// output.
func planRows(plan []byte) (int64, error) {
	var doc []struct {
		Plan struct {
			Rows float64 `json:"Plan Rows"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal(plan, &doc); err != nil {
		return 0, api.NewDatabaseError("unreadable plan output", err.Error(), "", err)
	}
	if len(doc) == 0 {
		return 0, api.NewDatabaseError("empty plan output", "", "", nil)
	}
	return int64(doc[0].Plan.Rows), nil
}

// wrapDBError converts a pgx error into the gateway's error type, keeping the
// cause in the chain so availability classification still sees it.
func wrapDBError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return api.NewDatabaseError(pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
	return api.NewDatabaseError(err.Error(), "", "", err)
}
