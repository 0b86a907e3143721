package schema

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Loader produces a fresh snapshot from some source of truth.
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// CatalogLoader introspects pg_catalog to build snapshots for the configured
// schemas.
type CatalogLoader struct {
	pool    *pgxpool.Pool
	schemas []string
}

// NewCatalogLoader returns a loader limited to the given schemas.
func NewCatalogLoader(pool *pgxpool.Pool, schemas []string) *CatalogLoader {
	return &CatalogLoader{pool: pool, schemas: schemas}
}

var _ Loader = (*CatalogLoader)(nil)

const relationQuery = `
SELECT n.nspname,
       c.relname,
       c.relkind,
       greatest(c.reltuples, 0)::bigint,
       coalesce(obj_description(c.oid, 'pg_class'), ''),
       CASE WHEN c.relkind IN ('v', 'm')
            THEN (pg_relation_is_updatable(c.oid, true) & 8) = 8
            ELSE true END,
       CASE WHEN c.relkind IN ('v', 'm')
            THEN (pg_relation_is_updatable(c.oid, true) & 4) = 4
            ELSE true END,
       CASE WHEN c.relkind IN ('v', 'm')
            THEN (pg_relation_is_updatable(c.oid, true) & 16) = 16
            ELSE true END
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = ANY($1)
  AND c.relkind IN ('r', 'p', 'v', 'm')
ORDER BY n.nspname, c.relname`

const columnQuery = `
SELECT n.nspname,
       c.relname,
       a.attname,
       pg_catalog.format_type(a.atttypid, a.atttypmod),
       NOT a.attnotnull,
       coalesce(pg_catalog.pg_get_expr(d.adbin, d.adrelid), ''),
       a.attnum
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE n.nspname = ANY($1)
  AND c.relkind IN ('r', 'p', 'v', 'm')
  AND a.attnum > 0
  AND NOT a.attisdropped
ORDER BY n.nspname, c.relname, a.attnum`

const primaryKeyQuery = `
SELECT n.nspname,
       c.relname,
       a.attname
FROM pg_catalog.pg_index i
JOIN pg_catalog.pg_class c ON c.oid = i.indrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
WHERE i.indisprimary
  AND n.nspname = ANY($1)
ORDER BY n.nspname, c.relname, a.attnum`

const procedureQuery = `
SELECT n.nspname,
       p.proname,
       coalesce(obj_description(p.oid, 'pg_proc'), ''),
       p.provolatile,
       p.prorettype = 'void'::pg_catalog.regtype::oid,
       p.proretset,
       t.typtype = 'b',
       coalesce(rc.relname, ''),
       coalesce(p.proargnames, '{}'::text[]),
       (SELECT coalesce(array_agg(pg_catalog.format_type(u.t, NULL)), '{}'::text[])
          FROM unnest(p.proargtypes) WITH ORDINALITY AS u(t, ord)),
       p.pronargs - p.pronargdefaults
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
JOIN pg_catalog.pg_type t ON t.oid = p.prorettype
LEFT JOIN pg_catalog.pg_class rc ON rc.oid = t.typrelid
WHERE n.nspname = ANY($1)
  AND p.prokind = 'f'
ORDER BY n.nspname, p.proname`

// Load builds a complete snapshot in four catalog queries. The queries run
// outside any request transaction; a failure leaves the previous snapshot in
// place.
func (l *CatalogLoader) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Relations:  make(map[string]*Relation),
		Procedures: make(map[string]*Procedure),
		LoadedAt:   time.Now(),
	}

	if err := l.loadRelations(ctx, snap); err != nil {
		return nil, fmt.Errorf("loading relations: %w", err)
	}
	if err := l.loadColumns(ctx, snap); err != nil {
		return nil, fmt.Errorf("loading columns: %w", err)
	}
	if err := l.loadPrimaryKeys(ctx, snap); err != nil {
		return nil, fmt.Errorf("loading primary keys: %w", err)
	}
	if err := l.loadProcedures(ctx, snap); err != nil {
		return nil, fmt.Errorf("loading procedures: %w", err)
	}

	return snap, nil
}

func (l *CatalogLoader) loadRelations(ctx context.Context, snap *Snapshot) error {
	rows, err := l.pool.Query(ctx, relationQuery, l.schemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rel     Relation
			relkind string
		)
		if err := rows.Scan(&rel.Schema, &rel.Name, &relkind, &rel.ApproxRows,
			&rel.Description, &rel.Insertable, &rel.Updatable, &rel.Deletable); err != nil {
			return err
		}
		if relkind == "v" || relkind == "m" {
			rel.Kind = KindView
		} else {
			rel.Kind = KindTable
		}
		snap.AddRelation(&rel)
	}
	return rows.Err()
}

func (l *CatalogLoader) loadColumns(ctx context.Context, snap *Snapshot) error {
	rows, err := l.pool.Query(ctx, columnQuery, l.schemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schemaName, relName string
			col                 Column
		)
		if err := rows.Scan(&schemaName, &relName, &col.Name, &col.DataType,
			&col.Nullable, &col.Default, &col.Position); err != nil {
			return err
		}
		if rel, ok := snap.Relation(schemaName, relName); ok {
			rel.Columns = append(rel.Columns, col)
		}
	}
	return rows.Err()
}

func (l *CatalogLoader) loadPrimaryKeys(ctx context.Context, snap *Snapshot) error {
	rows, err := l.pool.Query(ctx, primaryKeyQuery, l.schemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var schemaName, relName, colName string
		if err := rows.Scan(&schemaName, &relName, &colName); err != nil {
			return err
		}
		if rel, ok := snap.Relation(schemaName, relName); ok {
			rel.PrimaryKey = append(rel.PrimaryKey, colName)
		}
	}
	return rows.Err()
}

func (l *CatalogLoader) loadProcedures(ctx context.Context, snap *Snapshot) error {
	rows, err := l.pool.Query(ctx, procedureQuery, l.schemas)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			proc       Procedure
			volatility string
			argNames   []string
			argTypes   []string
			required   int
		)
		if err := rows.Scan(&proc.Schema, &proc.Name, &proc.Description,
			&volatility, &proc.ReturnsVoid, &proc.ReturnsSet, &proc.ReturnsScalar,
			&proc.ReturnRelation, &argNames, &argTypes, &required); err != nil {
			return err
		}
		if len(volatility) == 1 {
			proc.Volatility = Volatility(volatility[0])
		} else {
			proc.Volatility = Volatile
		}
		for i, name := range argNames {
			arg := ProcArg{Name: name, Required: i < required}
			if i < len(argTypes) {
				arg.DataType = argTypes[i]
			}
			proc.Args = append(proc.Args, arg)
		}
		snap.AddProcedure(&proc)
	}
	return rows.Err()
}
