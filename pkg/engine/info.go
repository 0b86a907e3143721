package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/compiler"
	"github.com/pgbridge-dev/pgbridge/pkg/config"
	"github.com/pgbridge-dev/pgbridge/pkg/db"
	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// handleInfo answers OPTIONS from the snapshot alone: the Allow header is
// computed from the target's capability flags, no transaction needed.
func (e *Engine) handleInfo(snap *schema.Snapshot, req *api.Request) (*response, error) {
	var allow []string

	switch req.Target.Kind {
	case api.TargetRelation:
		rel, ok := snap.Relation(req.Target.Schema, req.Target.Name)
		if !ok {
			return nil, api.NewNotFound("relation %q does not exist", req.Target.Name)
		}
		allow = []string{"OPTIONS", "GET", "HEAD"}
		if rel.Insertable {
			allow = append(allow, "POST")
		}
		if rel.Insertable && rel.Updatable && rel.HasPrimaryKey() {
			allow = append(allow, "PUT")
		}
		if rel.Updatable {
			allow = append(allow, "PATCH")
		}
		if rel.Deletable {
			allow = append(allow, "DELETE")
		}

	case api.TargetProcedure:
		proc, ok := snap.Procedure(req.Target.Schema, req.Target.Name)
		if !ok {
			return nil, api.NewNotFound("function %q does not exist", req.Target.Name)
		}
		allow = []string{"OPTIONS", "POST"}
		if proc.Volatility.ReadOnly() {
			allow = []string{"OPTIONS", "GET", "HEAD", "POST"}
		}

	default:
		return nil, api.NewNotFound("no such endpoint: %s", req.Path)
	}

	resp := newResponse(http.StatusOK)
	resp.headers.Set("Allow", strings.Join(allow, ", "))
	return resp, nil
}

// handleInspect serves the schema document for the root path. In
// follow-privileges mode the document is restricted to relations the
// transaction's role can actually select from.
func (e *Engine) handleInspect(ctx context.Context, tx *db.Tx, snap *schema.Snapshot, req *api.Request) (*response, error) {
	mode := e.cfg.OpenAPI.Mode
	if mode == config.OpenAPIDisabled || e.docs == nil {
		// Disabled mode keeps the endpoint but empties the document.
		resp := newResponse(http.StatusOK)
		resp.contentType = "application/openapi+json"
		return resp, nil
	}

	var visible []string
	if mode == config.OpenAPIFollowPrivileges {
		names, err := e.visibleRelations(ctx, tx, req.Target.Schema)
		if err != nil {
			return nil, err
		}
		visible = names
	}

	doc, err := e.docs.Generate(snap, req.Target.Schema, visible)
	if err != nil {
		return nil, err
	}

	resp := newResponse(http.StatusOK)
	resp.body = doc
	resp.contentType = "application/openapi+json"
	return resp, nil
}

// visibleRelations asks the database which relations the current role may
// read, honoring the role GUC set earlier in the transaction.
func (e *Engine) visibleRelations(ctx context.Context, tx *db.Tx, schemaName string) ([]string, error) {
	result, err := e.exec.Execute(ctx, tx, compiler.CompilePrivilegeFilter(schemaName))
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(result.Body, &rows); err != nil {
		return nil, api.NewDatabaseError("unreadable privilege listing", err.Error(), "", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	return names, nil
}
