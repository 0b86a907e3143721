// Package schema maintains the cached description of the database: relations,
// procedures, and their capability flags. The snapshot is replaced atomically
// by a background reloader; requests read whichever complete snapshot was
// current when they began.
package schema

import "time"

// RelationKind distinguishes tables from views.
type RelationKind string

const (
	KindTable RelationKind = "table"
	KindView  RelationKind = "view"
)

// Column describes one column of a relation.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Default  string
	Position int
}

// Relation describes a table or view exposed over HTTP.
type Relation struct {
	Schema      string
	Name        string
	Kind        RelationKind
	Description string

	Columns    []Column
	PrimaryKey []string

	Insertable bool
	Updatable  bool
	Deletable  bool

	// ApproxRows is the planner's reltuples estimate, used to decide
	// whether count=estimated can afford an exact count.
	ApproxRows int64
}

// HasPrimaryKey reports whether the relation has at least one key column.
func (r *Relation) HasPrimaryKey() bool { return len(r.PrimaryKey) > 0 }

// Column returns the named column, if present.
func (r *Relation) Column(name string) (*Column, bool) {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i], true
		}
	}
	return nil, false
}

// Volatility is a procedure's declared read/write behavior.
type Volatility byte

const (
	Volatile  Volatility = 'v'
	Stable    Volatility = 's'
	Immutable Volatility = 'i'
)

// ReadOnly reports whether the procedure is guaranteed not to write.
func (v Volatility) ReadOnly() bool { return v == Stable || v == Immutable }

// ProcArg describes one declared procedure argument.
type ProcArg struct {
	Name     string
	DataType string
	Required bool
}

// Procedure describes a stored function exposed under /rpc/.
type Procedure struct {
	Schema      string
	Name        string
	Description string

	Volatility Volatility
	Args       []ProcArg

	ReturnsVoid   bool
	ReturnsScalar bool
	ReturnsSet    bool

	// ReturnRelation is the backing relation name when the function returns
	// SETOF some-table, used for read-request composition.
	ReturnRelation string
}

// Snapshot is a complete, immutable description of the exposed schemas.
type Snapshot struct {
	Relations  map[string]*Relation
	Procedures map[string]*Procedure
	LoadedAt   time.Time
}

func key(schema, name string) string { return schema + "." + name }

// Relation looks up a relation by schema and name.
func (s *Snapshot) Relation(schema, name string) (*Relation, bool) {
	r, ok := s.Relations[key(schema, name)]
	return r, ok
}

// Procedure looks up a procedure by schema and name.
func (s *Snapshot) Procedure(schema, name string) (*Procedure, bool) {
	p, ok := s.Procedures[key(schema, name)]
	return p, ok
}

// AddRelation registers a relation; used by loaders and tests.
func (s *Snapshot) AddRelation(r *Relation) {
	if s.Relations == nil {
		s.Relations = make(map[string]*Relation)
	}
	s.Relations[key(r.Schema, r.Name)] = r
}

// AddProcedure registers a procedure; used by loaders and tests.
func (s *Snapshot) AddProcedure(p *Procedure) {
	if s.Procedures == nil {
		s.Procedures = make(map[string]*Procedure)
	}
	s.Procedures[key(p.Schema, p.Name)] = p
}
