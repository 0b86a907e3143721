package engine

import (
	"context"
	"net/http"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/compiler"
	"github.com/pgbridge-dev/pgbridge/pkg/db"
	"github.com/pgbridge-dev/pgbridge/pkg/request"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

func (e *Engine) handleInvoke(ctx context.Context, tx *db.Tx, snap *schema.Snapshot, req *api.Request) (*response, error) {
	proc, ok := snap.Procedure(req.Target.Schema, req.Target.Name)
	if !ok {
		return nil, api.NewNotFound("function %q does not exist", req.Target.Name)
	}
	if (req.Method == http.MethodGet || req.Method == http.MethodHead) && !proc.Volatility.ReadOnly() {
		return nil, api.NewMethodNotAllowed(req.Method, proc.Name)
	}

	opts, err := callOptions(proc, req)
	if err != nil {
		return nil, err
	}

	q, err := compiler.CompileCall(proc, req, req.Payload, opts)
	if err != nil {
		return nil, err
	}

	if req.Accept == api.MediaPlanJSON {
		plan, err := e.exec.ExplainPlan(ctx, tx, q)
		if err != nil {
			return nil, err
		}
		resp := newResponse(http.StatusOK)
		resp.body = plan
		resp.contentType = string(api.MediaPlanJSON)
		return resp, nil
	}

	result, err := e.exec.Execute(ctx, tx, q)
	if err != nil {
		return nil, err
	}

	if req.Accept.IsSingular() && result.RowCount != 1 {
		tx.DoNotCommit()
		return nil, api.NewSingularityError(result.RowCount)
	}

	if proc.ReturnsVoid {
		resp := newResponse(http.StatusNoContent)
		resp.applyOverrides(result)
		return resp, nil
	}

	body, contentType := result.Body, string(req.Accept)
	switch {
	case opts.ScalarJSON:
		contentType = string(api.MediaJSON)
	case !req.Accept.IsRaw():
		body, contentType, err = renderBody(req.Accept, result.Body)
		if err != nil {
			return nil, err
		}
	}

	resp := newResponse(http.StatusOK)
	resp.headers.Set("Content-Range", contentRange(0, result.RowCount, nil))
	if applied := request.AppliedPreferences(req.Prefer); applied != "" {
		resp.headers.Set("Preference-Applied", applied)
	}
	resp.body = body
	resp.contentType = contentType
	resp.applyOverrides(result)
	return resp, nil
}

// callOptions resolves how a procedure result is serialized. Scalar results
// under JSON media types pass through to_json so the response is a valid
// document; raw media types get the bare value.
func callOptions(proc *schema.Procedure, req *api.Request) (compiler.CallOptions, error) {
	opts := compiler.CallOptions{
		Multiple: req.PayloadIsArray && req.Prefer.Params == api.ParamsMultipleObjects,
	}

	switch {
	case proc.ReturnsVoid:
		opts.Shape = compiler.ShapeNone

	case proc.ReturnsScalar:
		if opts.Multiple && !req.Accept.IsRaw() {
			// One scalar per payload element: serialize the whole row set.
			opts.Shape = compiler.ShapeJSONArray
			break
		}
		opts.Shape = compiler.ShapeRaw
		opts.RawField = compiler.ScalarField
		if !req.Accept.IsRaw() {
			opts.ScalarJSON = true
		}

	default:
		opts.Shape = shapeForMedia(req.Accept)
		if req.Accept.IsRaw() {
			field, err := resolveRawField(req)
			if err != nil {
				return compiler.CallOptions{}, err
			}
			opts.RawField = field
		}
	}
	return opts, nil
}
