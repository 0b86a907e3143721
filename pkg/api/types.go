package api

// Action is the database-facing semantic of a request, derived from the HTTP
// method and path by the request parser.
type Action int

const (
	ActionRead Action = iota
	ActionCreate
	ActionUpdate
	ActionUpsert
	ActionDelete
	ActionInvoke
	ActionInfo
	ActionInspect
)

// String returns the lowercase action name used in logs and metrics labels.
func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionUpsert:
		return "upsert"
	case ActionDelete:
		return "delete"
	case ActionInvoke:
		return "invoke"
	case ActionInfo:
		return "info"
	case ActionInspect:
		return "inspect"
	default:
		return "unknown"
	}
}

// TargetKind discriminates what a request addresses.
type TargetKind int

const (
	TargetRelation TargetKind = iota
	TargetProcedure
	TargetDefaultSchema
)

// Target identifies the addressed database object. Schema and Name are empty
// for TargetDefaultSchema.
type Target struct {
	Kind   TargetKind
	Schema string
	Name   string
}

// CountMode is the client's Prefer: count= choice for read totals.
type CountMode int

const (
	CountNone CountMode = iota
	CountExact
	CountPlanned
	CountEstimated
)

// ReturnMode is the client's Prefer: return= choice for mutation bodies.
type ReturnMode int

const (
	ReturnMinimal ReturnMode = iota
	ReturnHeadersOnly
	ReturnRepresentation
)

// Resolution is the client's Prefer: resolution= choice for insert conflicts.
type Resolution int

const (
	ResolutionNone Resolution = iota
	ResolutionMergeDuplicates
	ResolutionIgnoreDuplicates
)

// ParamsMode is the client's Prefer: params= choice for procedure payloads.
type ParamsMode int

const (
	ParamsSingleObject ParamsMode = iota
	ParamsMultipleObjects
)

// TxPrefer is the client's Prefer: tx= choice. TxRollback forces annulment of
// an otherwise successful transaction.
type TxPrefer int

const (
	TxDefault TxPrefer = iota
	TxCommit
	TxRollback
)

// Preferences collects the parsed Prefer header directives.
type Preferences struct {
	Count      CountMode
	Return     ReturnMode
	Resolution Resolution
	Params     ParamsMode
	Tx         TxPrefer
}

// MediaType is a negotiated response content type.
type MediaType string

const (
	MediaJSON         MediaType = "application/json"
	MediaSingularJSON MediaType = "application/vnd.pgbridge.object+json"
	MediaPlanJSON     MediaType = "application/vnd.pgbridge.plan+json"
	MediaCSV          MediaType = "text/csv"
	MediaOctetStream  MediaType = "application/octet-stream"
	MediaTextPlain    MediaType = "text/plain"
	MediaTextXML      MediaType = "text/xml"
)

// IsRaw reports whether the media type serializes a single field verbatim
// instead of a JSON document.
func (m MediaType) IsRaw() bool {
	switch m {
	case MediaOctetStream, MediaTextPlain, MediaTextXML:
		return true
	}
	return false
}

// IsSingular reports whether the media type demands exactly one JSON object.
func (m MediaType) IsSingular() bool {
	return m == MediaSingularJSON
}

// RangeSpec is a row window requested via limit/offset parameters or the
// Range header. Limit <= 0 means no upper bound.
type RangeSpec struct {
	Offset int64
	Limit  int64
}

// Unbounded reports whether the range places no upper bound on row count.
func (r RangeSpec) Unbounded() bool { return r.Limit <= 0 }

// FilterOp is a comparison operator in a query-string filter.
type FilterOp string

const (
	OpEq    FilterOp = "eq"
	OpNeq   FilterOp = "neq"
	OpGt    FilterOp = "gt"
	OpGte   FilterOp = "gte"
	OpLt    FilterOp = "lt"
	OpLte   FilterOp = "lte"
	OpLike  FilterOp = "like"
	OpILike FilterOp = "ilike"
	OpIs    FilterOp = "is"
	OpIn    FilterOp = "in"
)

// Filter is one column predicate from the query string. For OpIn, Values
// holds the list; Value is used by every other operator.
type Filter struct {
	Field  string
	Op     FilterOp
	Value  string
	Values []string
}

// OrderTerm is one ordering clause. NullsFirst is nil when the client did not
// specify nulls placement.
type OrderTerm struct {
	Field      string
	Descending bool
	NullsFirst *bool
}

// Request is the structured form of an inbound HTTP request, produced by the
// request parser and consumed by the dispatch engine. It is immutable once
// built.
type Request struct {
	Action Action
	Target Target

	Method string
	Path   string
	// RawQuery preserves the original query string for Content-Location.
	RawQuery string

	Select  []string
	Filters []Filter
	Order   []OrderTerm
	Range   RangeSpec

	Prefer Preferences
	Accept MediaType

	// ProcArgs holds named procedure arguments for GET/HEAD invocations,
	// taken from the query string.
	ProcArgs map[string]string

	// Payload is the raw request body (JSON unless Accept negotiation says
	// otherwise); PayloadColumns are the object keys it carries, used for
	// column-restricted mutations and the no-op update check.
	Payload        []byte
	PayloadColumns []string

	// PayloadIsArray marks an array-of-objects body (bulk insert, or a
	// multi-call invoke under ParamsMultipleObjects).
	PayloadIsArray bool
}

// IsHead reports whether the response body must be discarded.
func (r *Request) IsHead() bool { return r.Method == "HEAD" }

// WildcardSelect reports whether the select list is absent or "*" only.
func (r *Request) WildcardSelect() bool {
	if len(r.Select) == 0 {
		return true
	}
	return len(r.Select) == 1 && r.Select[0] == "*"
}

// AuthResult is the resolved caller identity: the database role the
// transaction runs as and the raw claims JSON exposed to SQL via
// request.jwt.claims. Resolved once per request, immutable thereafter.
type AuthResult struct {
	Role   string
	Claims []byte
}
