package api

// GucHeader is a header name/value pair asserted by the database through the
// response.headers setting. Order is significant; merging never overwrites a
// header the gateway already computed locally.
type GucHeader struct {
	Name  string
	Value string
}

// StandardResult is the outcome of executing a compiled statement envelope.
type StandardResult struct {
	// Body is the serialized result (JSON document, CSV lines, or the raw
	// value of a single field, depending on the negotiated shape).
	Body []byte

	// RowCount is the number of rows the statement returned or affected.
	RowCount int64

	// TableTotal is the full table count for Content-Range, when a count
	// preference asked for one.
	TableTotal *int64

	// GucStatus is the database-asserted HTTP status override, if any.
	GucStatus *int

	// GucHeaders are database-asserted headers, in assertion order.
	GucHeaders []GucHeader

	// Location holds the primary-key name/value pairs of a created row,
	// used to build the Location header on inserts.
	Location []GucHeader
}
