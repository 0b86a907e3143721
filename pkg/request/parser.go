// Package request turns inbound HTTP requests into the structured form the
// dispatch engine consumes. Parsing is strict where the database would be
// strict (identifiers, operators, ranges) and lenient where HTTP is lenient
// (unknown Prefer directives are ignored).
package request

import (
	"net/http"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/api"
	"github.com/pgbridge-dev/pgbridge/pkg/config"
)

// Parser holds the schema exposure rules needed to resolve targets.
type Parser struct {
	schemas []string
}

func NewParser(cfg config.DatabaseConfig) *Parser {
	schemas := cfg.Schemas
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	return &Parser{schemas: schemas}
}

// Parse builds the structured request. body is the already-read request body;
// it is nil for bodyless methods.
func (p *Parser) Parse(r *http.Request, body []byte) (*api.Request, error) {
	req := &api.Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	schemaName, err := p.resolveSchema(r)
	if err != nil {
		return nil, err
	}

	if err := p.resolveTarget(r, req, schemaName); err != nil {
		return nil, err
	}

	if err := parseQuery(r, req); err != nil {
		return nil, err
	}
	if err := parseRangeHeader(r, req); err != nil {
		return nil, err
	}

	req.Prefer = parsePrefer(r.Header.Values("Prefer"))

	media, err := negotiateAccept(r.Header.Get("Accept"))
	if err != nil {
		return nil, err
	}
	req.Accept = media

	if err := parsePayload(req, body); err != nil {
		return nil, err
	}
	return req, nil
}

// resolveSchema picks the exposed schema the request addresses. Reads send
// Accept-Profile, writes send Content-Profile; absent either, the first
// configured schema applies.
func (p *Parser) resolveSchema(r *http.Request) (string, error) {
	header := "Content-Profile"
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		header = "Accept-Profile"
	}

	profile := strings.TrimSpace(r.Header.Get(header))
	if profile == "" {
		return p.schemas[0], nil
	}
	for _, s := range p.schemas {
		if s == profile {
			return s, nil
		}
	}
	return "", api.NewInvalidRequest("schema %q is not exposed", profile)
}

// resolveTarget maps the path and method onto an action and target.
func (p *Parser) resolveTarget(r *http.Request, req *api.Request, schemaName string) error {
	segments := splitPath(r.URL.Path)

	switch {
	case len(segments) == 0:
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			return api.NewMethodNotAllowed(r.Method, "/")
		}
		req.Action = api.ActionInspect
		req.Target = api.Target{Kind: api.TargetDefaultSchema, Schema: schemaName}
		return nil

	case segments[0] == "rpc":
		if len(segments) != 2 {
			return api.NewNotFound("no such endpoint: %s", r.URL.Path)
		}
		req.Target = api.Target{Kind: api.TargetProcedure, Schema: schemaName, Name: segments[1]}
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			req.Action = api.ActionInvoke
		case http.MethodOptions:
			req.Action = api.ActionInfo
		default:
			return api.NewMethodNotAllowed(r.Method, r.URL.Path)
		}
		return nil

	case len(segments) == 1:
		req.Target = api.Target{Kind: api.TargetRelation, Schema: schemaName, Name: segments[0]}
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			req.Action = api.ActionRead
		case http.MethodPost:
			req.Action = api.ActionCreate
		case http.MethodPatch:
			req.Action = api.ActionUpdate
		case http.MethodPut:
			req.Action = api.ActionUpsert
		case http.MethodDelete:
			req.Action = api.ActionDelete
		case http.MethodOptions:
			req.Action = api.ActionInfo
		default:
			return api.NewMethodNotAllowed(r.Method, r.URL.Path)
		}
		return nil
	}

	return api.NewNotFound("no such endpoint: %s", r.URL.Path)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
