package engine

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/compiler"
	"github.com/pgbridge-dev/pgbridge/pkg/db"
	"github.com/pgbridge-dev/pgbridge/pkg/request"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

func (e *Engine) handleCreate(ctx context.Context, tx *db.Tx, snap *schema.Snapshot, req *api.Request) (*response, error) {
	rel, ok := snap.Relation(req.Target.Schema, req.Target.Name)
	if !ok {
		return nil, api.NewNotFound("relation %q does not exist", req.Target.Name)
	}
	if !rel.Insertable {
		return nil, api.NewMethodNotAllowed(req.Method, rel.Name)
	}

	opts, err := mutationOptions(req, rel)
	if err != nil {
		return nil, err
	}
	opts.PKCols = rel.PrimaryKey
	opts.WithLocation = rel.HasPrimaryKey() && req.Prefer.Return != api.ReturnMinimal
	opts.Resolution = req.Prefer.Resolution

	q, err := compiler.CompileCreate(rel, req.PayloadColumns, req.Payload, opts)
	if err != nil {
		return nil, err
	}

	result, err := e.exec.Execute(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	if err := e.checkSingular(tx, req, result); err != nil {
		return nil, err
	}

	resp := newResponse(http.StatusCreated)
	resp.headers.Set("Content-Range", "*/*")
	if loc := locationHeader(rel, result.Location); loc != "" {
		resp.headers.Set("Location", loc)
	}
	e.finishMutation(resp, req, result, http.StatusCreated)
	resp.applyOverrides(result)
	return resp, nil
}

func (e *Engine) handleUpdate(ctx context.Context, tx *db.Tx, snap *schema.Snapshot, req *api.Request) (*response, error) {
	rel, ok := snap.Relation(req.Target.Schema, req.Target.Name)
	if !ok {
		return nil, api.NewNotFound("relation %q does not exist", req.Target.Name)
	}
	if !rel.Updatable {
		return nil, api.NewMethodNotAllowed(req.Method, rel.Name)
	}

	// An empty object body updates nothing and succeeds without touching
	// the database, whatever the filters would have matched.
	if len(req.PayloadColumns) == 0 {
		resp := newResponse(http.StatusNoContent)
		resp.headers.Set("Content-Range", "*/*")
		return resp, nil
	}

	opts, err := mutationOptions(req, rel)
	if err != nil {
		return nil, err
	}

	q, err := compiler.CompileUpdate(rel, req, req.PayloadColumns, req.Payload, opts)
	if err != nil {
		return nil, err
	}

	result, err := e.exec.Execute(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	// Columns were changed, so matching nothing is a miss. Only the no-op
	// body above gets the success-on-zero-rows treatment.
	if result.RowCount == 0 {
		return nil, api.NewNotFound("no rows satisfied the update filters")
	}
	if err := e.checkChangeLimit(tx, result.RowCount); err != nil {
		return nil, err
	}
	if err := e.checkSingular(tx, req, result); err != nil {
		return nil, err
	}

	resp := newResponse(http.StatusNoContent)
	resp.headers.Set("Content-Range", "*/*")
	e.finishMutation(resp, req, result, http.StatusOK)
	resp.applyOverrides(result)
	return resp, nil
}

func (e *Engine) handleUpsert(ctx context.Context, tx *db.Tx, snap *schema.Snapshot, req *api.Request) (*response, error) {
	rel, ok := snap.Relation(req.Target.Schema, req.Target.Name)
	if !ok {
		return nil, api.NewNotFound("relation %q does not exist", req.Target.Name)
	}
	if !rel.Insertable || !rel.Updatable {
		return nil, api.NewMethodNotAllowed(req.Method, rel.Name)
	}
	if req.PayloadIsArray {
		return nil, api.NewInvalidRequest("PUT accepts a single JSON object body")
	}

	if err := checkPutAddressing(rel, req); err != nil {
		return nil, err
	}

	opts, err := mutationOptions(req, rel)
	if err != nil {
		return nil, err
	}

	q, err := compiler.CompileUpsert(rel, req, req.PayloadColumns, req.Payload, opts)
	if err != nil {
		return nil, err
	}

	result, err := e.exec.Execute(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	if result.RowCount != 1 {
		tx.DoNotCommit()
		return nil, api.NewPutMatchingPkError()
	}

	resp := newResponse(http.StatusNoContent)
	resp.headers.Set("Content-Range", "*/*")
	e.finishMutation(resp, req, result, http.StatusOK)
	resp.applyOverrides(result)
	return resp, nil
}

func (e *Engine) handleDelete(ctx context.Context, tx *db.Tx, snap *schema.Snapshot, req *api.Request) (*response, error) {
	rel, ok := snap.Relation(req.Target.Schema, req.Target.Name)
	if !ok {
		return nil, api.NewNotFound("relation %q does not exist", req.Target.Name)
	}
	if !rel.Deletable {
		return nil, api.NewMethodNotAllowed(req.Method, rel.Name)
	}

	opts, err := mutationOptions(req, rel)
	if err != nil {
		return nil, err
	}

	q, err := compiler.CompileDelete(rel, req, opts)
	if err != nil {
		return nil, err
	}

	result, err := e.exec.Execute(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	if err := e.checkChangeLimit(tx, result.RowCount); err != nil {
		return nil, err
	}
	if err := e.checkSingular(tx, req, result); err != nil {
		return nil, err
	}

	resp := newResponse(http.StatusNoContent)
	resp.headers.Set("Content-Range", "*/*")
	e.finishMutation(resp, req, result, http.StatusOK)
	resp.applyOverrides(result)
	return resp, nil
}

// mutationOptions picks the body shape for a write: representation requests
// serialize through the negotiated media type, everything else skips the
// body entirely.
func mutationOptions(req *api.Request, rel *schema.Relation) (compiler.MutateOptions, error) {
	if req.Prefer.Return != api.ReturnRepresentation {
		return compiler.MutateOptions{Shape: compiler.ShapeNone}, nil
	}

	opts := compiler.MutateOptions{Shape: shapeForMedia(req.Accept)}
	if req.Accept.IsRaw() {
		field, err := resolveRawField(req)
		if err != nil {
			return compiler.MutateOptions{}, err
		}
		if _, ok := rel.Column(field); !ok {
			return compiler.MutateOptions{}, api.NewInvalidRequest(
				"column %q of relation %q does not exist", field, rel.Name)
		}
		opts.RawField = field
	}
	return opts, nil
}

// finishMutation applies the representation body and Preference-Applied to a
// write response. okStatus is the status used when a body is returned.
func (e *Engine) finishMutation(resp *response, req *api.Request, result *api.StandardResult, okStatus int) {
	if applied := request.AppliedPreferences(req.Prefer); applied != "" {
		resp.headers.Set("Preference-Applied", applied)
	}

	if req.Prefer.Return != api.ReturnRepresentation {
		return
	}

	body, contentType, err := renderBody(req.Accept, result.Body)
	if err != nil {
		return
	}
	resp.status = okStatus
	if resp.status == http.StatusNoContent {
		resp.status = http.StatusOK
	}
	resp.body = body
	resp.contentType = contentType

	resp.headers.Set("Content-Location", contentLocation(req))
}

// checkChangeLimit annuls the transaction when a write touched more rows
// than the deployment allows.
func (e *Engine) checkChangeLimit(tx *db.Tx, rows int64) error {
	limit := e.cfg.Database.MaxChanges
	if limit > 0 && rows > limit {
		tx.DoNotCommit()
		return api.NewChangeLimitError(rows, limit)
	}
	return nil
}

// checkSingular annuls the transaction when a singular media type saw a
// cardinality other than one.
func (e *Engine) checkSingular(tx *db.Tx, req *api.Request, result *api.StandardResult) error {
	if req.Prefer.Return == api.ReturnRepresentation && req.Accept.IsSingular() && result.RowCount != 1 {
		tx.DoNotCommit()
		return api.NewSingularityError(result.RowCount)
	}
	return nil
}

// checkPutAddressing verifies the PUT invariant: every primary-key column is
// pinned by an eq filter, and the payload carries the same key values.
func checkPutAddressing(rel *schema.Relation, req *api.Request) error {
	// The parser normalizes the object body into a one-element array.
	var rows []map[string]any
	if err := json.Unmarshal(req.Payload, &rows); err != nil || len(rows) != 1 {
		return api.NewInvalidRequest("PUT accepts a single JSON object body")
	}
	payload := rows[0]

	for _, pk := range rel.PrimaryKey {
		filterValue, ok := eqFilterValue(req.Filters, pk)
		if !ok {
			return api.NewInvalidRequest("PUT requires an eq filter on primary-key column %q", pk)
		}
		payloadValue, ok := payload[pk]
		if !ok || jsonText(payloadValue) != filterValue {
			return api.NewPutMatchingPkError()
		}
	}
	return nil
}

func eqFilterValue(filters []api.Filter, field string) (string, bool) {
	for _, f := range filters {
		if f.Field == field && f.Op == api.OpEq {
			return f.Value, true
		}
	}
	return "", false
}

func jsonText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}
