// Package openapi renders an OpenAPI 3 document describing the exposed
// schema, served from the API root. The document is rebuilt per request from
// the current snapshot so it always matches what dispatch would accept.
package openapi

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pgbridge-dev/pgbridge/pkg/schema"
)

// Generator builds schema documents.
type Generator struct {
	title   string
	version string
}

func NewGenerator(title, version string) *Generator {
	if title == "" {
		title = "pgbridge API"
	}
	return &Generator{title: title, version: version}
}

type document struct {
	OpenAPI    string              `json:"openapi"`
	Info       info                `json:"info"`
	Paths      map[string]pathItem `json:"paths"`
	Components components          `json:"components"`
}

type info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

type pathItem map[string]operation

type operation struct {
	Summary     string              `json:"summary,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Parameters  []parameter         `json:"parameters,omitempty"`
	RequestBody *requestBody        `json:"requestBody,omitempty"`
	Responses   map[string]response `json:"responses"`
}

type parameter struct {
	Name     string     `json:"name"`
	In       string     `json:"in"`
	Required bool       `json:"required,omitempty"`
	Schema   typeSchema `json:"schema"`
}

type requestBody struct {
	Content map[string]mediaObject `json:"content"`
}

type response struct {
	Description string                 `json:"description"`
	Content     map[string]mediaObject `json:"content,omitempty"`
}

type mediaObject struct {
	Schema typeSchema `json:"schema"`
}

type typeSchema struct {
	Type       string                `json:"type,omitempty"`
	Format     string                `json:"format,omitempty"`
	Items      *typeSchema           `json:"items,omitempty"`
	Properties map[string]typeSchema `json:"properties,omitempty"`
	Ref        string                `json:"$ref,omitempty"`
}

type components struct {
	Schemas map[string]typeSchema `json:"schemas"`
}

// Generate renders the document for one exposed schema. visible, when
// non-nil, restricts relations to the named set; procedures are always
// listed since their privileges are checked at call time.
func (g *Generator) Generate(snap *schema.Snapshot, schemaName string, visible []string) ([]byte, error) {
	doc := document{
		OpenAPI: "3.0.3",
		Info: info{
			Title:       g.title,
			Version:     g.version,
			Description: "Relational schema " + schemaName + " exposed over HTTP",
		},
		Paths:      map[string]pathItem{},
		Components: components{Schemas: map[string]typeSchema{}},
	}

	allowed := map[string]bool{}
	for _, name := range visible {
		allowed[name] = true
	}

	for _, rel := range sortedRelations(snap, schemaName) {
		if visible != nil && !allowed[rel.Name] {
			continue
		}
		doc.Paths["/"+rel.Name] = relationPath(rel)
		doc.Components.Schemas[rel.Name] = relationSchema(rel)
	}

	for _, proc := range sortedProcedures(snap, schemaName) {
		doc.Paths["/rpc/"+proc.Name] = procedurePath(proc)
	}

	return json.Marshal(doc)
}

func relationPath(rel *schema.Relation) pathItem {
	item := pathItem{}
	rowRef := typeSchema{Ref: "#/components/schemas/" + rel.Name}

	item["get"] = operation{
		Summary:    rel.Description,
		Tags:       []string{rel.Name},
		Parameters: filterParameters(rel),
		Responses: map[string]response{
			"200": {
				Description: "rows",
				Content: map[string]mediaObject{
					"application/json": {Schema: typeSchema{Type: "array", Items: &rowRef}},
					"text/csv":         {Schema: typeSchema{Type: "string"}},
				},
			},
			"206": {Description: "partial content"},
		},
	}

	if rel.Insertable {
		item["post"] = operation{
			Tags:        []string{rel.Name},
			RequestBody: &requestBody{Content: map[string]mediaObject{"application/json": {Schema: rowRef}}},
			Responses:   map[string]response{"201": {Description: "created"}},
		}
	}
	if rel.Insertable && rel.Updatable && rel.HasPrimaryKey() {
		item["put"] = operation{
			Tags:        []string{rel.Name},
			RequestBody: &requestBody{Content: map[string]mediaObject{"application/json": {Schema: rowRef}}},
			Responses:   map[string]response{"204": {Description: "upserted"}},
		}
	}
	if rel.Updatable {
		item["patch"] = operation{
			Tags:        []string{rel.Name},
			Parameters:  filterParameters(rel),
			RequestBody: &requestBody{Content: map[string]mediaObject{"application/json": {Schema: rowRef}}},
			Responses:   map[string]response{"204": {Description: "updated"}},
		}
	}
	if rel.Deletable {
		item["delete"] = operation{
			Tags:       []string{rel.Name},
			Parameters: filterParameters(rel),
			Responses:  map[string]response{"204": {Description: "deleted"}},
		}
	}
	return item
}

func procedurePath(proc *schema.Procedure) pathItem {
	properties := map[string]typeSchema{}
	for _, arg := range proc.Args {
		properties[arg.Name] = columnType(arg.DataType)
	}

	post := operation{
		Summary: proc.Description,
		Tags:    []string{"rpc"},
		RequestBody: &requestBody{Content: map[string]mediaObject{
			"application/json": {Schema: typeSchema{Type: "object", Properties: properties}},
		}},
		Responses: map[string]response{"200": {Description: "result"}},
	}

	item := pathItem{"post": post}
	if proc.Volatility.ReadOnly() {
		params := make([]parameter, 0, len(proc.Args))
		for _, arg := range proc.Args {
			params = append(params, parameter{
				Name: arg.Name, In: "query", Required: arg.Required,
				Schema: columnType(arg.DataType),
			})
		}
		item["get"] = operation{
			Summary:    proc.Description,
			Tags:       []string{"rpc"},
			Parameters: params,
			Responses:  map[string]response{"200": {Description: "result"}},
		}
	}
	return item
}

func relationSchema(rel *schema.Relation) typeSchema {
	properties := map[string]typeSchema{}
	for _, col := range rel.Columns {
		properties[col.Name] = columnType(col.DataType)
	}
	return typeSchema{Type: "object", Properties: properties}
}

func filterParameters(rel *schema.Relation) []parameter {
	params := make([]parameter, 0, len(rel.Columns)+3)
	for _, col := range rel.Columns {
		params = append(params, parameter{
			Name: col.Name, In: "query",
			Schema: typeSchema{Type: "string"},
		})
	}
	params = append(params,
		parameter{Name: "select", In: "query", Schema: typeSchema{Type: "string"}},
		parameter{Name: "order", In: "query", Schema: typeSchema{Type: "string"}},
		parameter{Name: "limit", In: "query", Schema: typeSchema{Type: "integer"}},
	)
	return params
}

// columnType maps a Postgres format_type name onto an OpenAPI type.
func columnType(dataType string) typeSchema {
	switch {
	case dataType == "smallint", dataType == "integer", dataType == "bigint":
		return typeSchema{Type: "integer"}
	case dataType == "real", dataType == "double precision",
		strings.HasPrefix(dataType, "numeric"):
		return typeSchema{Type: "number"}
	case dataType == "boolean":
		return typeSchema{Type: "boolean"}
	case dataType == "json", dataType == "jsonb":
		return typeSchema{Type: "object"}
	case strings.HasSuffix(dataType, "[]"):
		item := typeSchema{Type: "string"}
		return typeSchema{Type: "array", Items: &item}
	case strings.HasPrefix(dataType, "timestamp"):
		return typeSchema{Type: "string", Format: "date-time"}
	case dataType == "date":
		return typeSchema{Type: "string", Format: "date"}
	case dataType == "uuid":
		return typeSchema{Type: "string", Format: "uuid"}
	case dataType == "bytea":
		return typeSchema{Type: "string", Format: "byte"}
	default:
		return typeSchema{Type: "string"}
	}
}

func sortedRelations(snap *schema.Snapshot, schemaName string) []*schema.Relation {
	var rels []*schema.Relation
	for _, rel := range snap.Relations {
		if rel.Schema == schemaName {
			rels = append(rels, rel)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })
	return rels
}

func sortedProcedures(snap *schema.Snapshot, schemaName string) []*schema.Procedure {
	var procs []*schema.Procedure
	for _, proc := range snap.Procedures {
		if proc.Schema == schemaName {
			procs = append(procs, proc)
		}
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].Name < procs[j].Name })
	return procs
}
