package engine

import (
	"context"
	"net/http"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/compiler"
	"github.com/pgbridge-dev/pgbridge/pkg/db"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

func (e *Engine) handleRead(ctx context.Context, tx *db.Tx, snap *schema.Snapshot, req *api.Request) (*response, error) {
	rel, ok := snap.Relation(req.Target.Schema, req.Target.Name)
	if !ok {
		return nil, api.NewNotFound("relation %q does not exist", req.Target.Name)
	}

	effective := *req
	effective.Range = e.clampRange(req.Range)

	shape := shapeForMedia(req.Accept)
	columns := req.Select
	if req.WildcardSelect() {
		columns = nil
	}

	var raw string
	if req.Accept.IsRaw() {
		field, err := resolveRawField(req)
		if err != nil {
			return nil, err
		}
		if _, ok := rel.Column(field); !ok {
			return nil, api.NewInvalidRequest("column %q of relation %q does not exist", field, rel.Name)
		}
		raw = field
		columns = []string{field}
	}

	rq, err := compiler.CompileRead(rel, &effective, compiler.ReadOptions{
		Columns:  columns,
		Shape:    shape,
		RawField: raw,
	})
	if err != nil {
		return nil, err
	}

	if req.Accept == api.MediaPlanJSON {
		plan, err := e.exec.ExplainPlan(ctx, tx, rq.Envelope)
		if err != nil {
			return nil, err
		}
		resp := newResponse(http.StatusOK)
		resp.body = plan
		resp.contentType = string(api.MediaPlanJSON)
		return resp, nil
	}

	result, err := e.exec.Execute(ctx, tx, rq.Envelope)
	if err != nil {
		return nil, err
	}

	if req.Accept.IsSingular() && result.RowCount != 1 {
		tx.DoNotCommit()
		return nil, api.NewSingularityError(result.RowCount)
	}

	total, err := e.readTotal(ctx, tx, rel, req.Prefer.Count, rq.Count)
	if err != nil {
		return nil, err
	}

	body, contentType, err := renderBody(req.Accept, result.Body)
	if err != nil {
		return nil, err
	}

	resp := newResponse(rangeStatus(effective.Range.Offset, result.RowCount, total))
	resp.headers.Set("Content-Range", contentRange(effective.Range.Offset, result.RowCount, total))
	resp.headers.Set("Content-Location", contentLocation(req))
	resp.body = body
	resp.contentType = contentType
	resp.applyOverrides(result)
	return resp, nil
}

// contentLocation renders the canonical address of the returned content.
func contentLocation(req *api.Request) string {
	if req.RawQuery == "" {
		return req.Path
	}
	return req.Path + "?" + req.RawQuery
}

// clampRange caps the requested window at the configured row limit.
func (e *Engine) clampRange(r api.RangeSpec) api.RangeSpec {
	maxRows := e.cfg.Database.MaxRows
	if maxRows <= 0 {
		return r
	}
	if r.Unbounded() || r.Limit > maxRows {
		r.Limit = maxRows
	}
	return r
}

// readTotal resolves the table total for Content-Range per the count
// preference. Estimated counts upgrade to exact when the planner's row
// estimate says the table is small enough to afford it.
func (e *Engine) readTotal(ctx context.Context, tx *db.Tx, rel *schema.Relation, mode api.CountMode, count compiler.Query) (*int64, error) {
	switch mode {
	case api.CountNone:
		return nil, nil

	case api.CountExact:
		n, err := e.exec.ExactCount(ctx, tx, compiler.CompileExactCount(count))
		if err != nil {
			return nil, err
		}
		return &n, nil

	case api.CountPlanned:
		n, err := e.exec.PlannedCount(ctx, tx, count)
		if err != nil {
			return nil, err
		}
		return &n, nil

	case api.CountEstimated:
		maxRows := e.cfg.Database.MaxRows
		if maxRows > 0 && rel.ApproxRows <= maxRows {
			return e.readTotal(ctx, tx, rel, api.CountExact, count)
		}
		return e.readTotal(ctx, tx, rel, api.CountPlanned, count)
	}
	return nil, nil
}
