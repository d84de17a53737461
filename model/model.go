// Package model provides the runtime-configured data-access layer: a
// Model configured from a schema definition behaves like a hand-written
// repository for that table, including relationship traversal, pivot
// lifecycle actions and cascade deletes.
package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dyntab/dyntab"
	"github.com/dyntab/dyntab/dialect"
	"github.com/dyntab/dyntab/dialect/sql"
	"github.com/dyntab/dyntab/schema"
)

// ActorFunc supplies the acting identity for "current_user" pivot-data
// placeholders. A nil func (or a nil return) substitutes null.
type ActorFunc func(ctx context.Context) any

// Model is a data-access object configured at runtime from a schema
// definition. One Model serves one table; Configure it once, then use
// it like a statically-defined repository.
type Model struct {
	drv   dialect.Driver
	svc   *schema.Service
	log   *slog.Logger
	actor ActorFunc

	def        *schema.Definition
	table      string
	pk         string
	pkType     string
	timestamps bool
	softDelete bool
	columns    []string
	rels       map[string]*schema.Relationship
	connection string
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(m *Model) { m.log = log }
}

// WithActor sets the current-user provider used for the
// "current_user" placeholder.
func WithActor(fn ActorFunc) Option {
	return func(m *Model) { m.actor = fn }
}

// New returns an unconfigured Model bound to a driver and a schema
// service. Call ConfigureFromSchema (or For) before use.
func New(drv dialect.Driver, svc *schema.Service, opts ...Option) *Model {
	m := &Model{drv: drv, svc: svc, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConfigureFromSchema binds the model to a normalized definition:
// table, primary key, timestamp maintenance, soft-delete support, the
// writable column set and the relationship descriptors.
func (m *Model) ConfigureFromSchema(def *schema.Definition) *Model {
	m.def = def
	m.table = def.Table
	m.pk = def.PrimaryKey
	m.pkType = def.PrimaryKeyType
	m.timestamps = def.HasTimestamps()
	m.softDelete = def.SoftDelete
	m.connection = def.Connection
	m.columns = def.Fields.Names()
	m.rels = make(map[string]*schema.Relationship, len(def.Relationships))
	for _, r := range def.Relationships {
		m.rels[r.Name] = r
	}
	return m
}

// For resolves the schema for model and returns a configured Model
// sharing this one's driver, service, logger and actor.
func (m *Model) For(ctx context.Context, model string, opts ...schema.Option) (*Model, error) {
	def, err := m.svc.GetSchema(ctx, model, opts...)
	if err != nil {
		return nil, err
	}
	c := New(m.drv, m.svc, WithLogger(m.log), WithActor(m.actor))
	return c.ConfigureFromSchema(def), nil
}

// Definition returns the definition the model was configured from.
func (m *Model) Definition() *schema.Definition { return m.def }

// Table returns the configured table name.
func (m *Model) Table() string { return m.table }

// Relationship returns a query builder scoped to the named
// relationship. Unknown names are an error; there is no runtime
// method synthesis.
func (m *Model) Relationship(name string) (*RelationshipQuery, error) {
	r, ok := m.rels[name]
	if !ok {
		return nil, fmt.Errorf("model: %s has no relationship %q", m.def.Model, name)
	}
	return &RelationshipQuery{model: m, rel: r}, nil
}

// Find returns the row with the given primary key, excluding
// soft-deleted rows. Missing rows yield a NotFoundError.
func (m *Model) Find(ctx context.Context, id any) (map[string]any, error) {
	return m.findRow(ctx, m.drv, id, false)
}

// FindWithDeleted is Find without the soft-delete exclusion.
func (m *Model) FindWithDeleted(ctx context.Context, id any) (map[string]any, error) {
	return m.findRow(ctx, m.drv, id, true)
}

func (m *Model) findRow(ctx context.Context, conn dialect.ExecQuerier, id any, withDeleted bool) (map[string]any, error) {
	sel := sql.Dialect(m.drv.Dialect()).Select(m.table + ".*").From(m.table).
		Where(sql.EQ(m.col(m.pk), id))
	if m.softDelete && !withDeleted {
		sel.Where(sql.IsNull(m.col("deleted_at")))
	}
	rows, err := m.queryRows(ctx, conn, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &dyntab.NotFoundError{Model: m.def.Model, ID: id}
	}
	return rows[0], nil
}

// List returns every live row, ordered by the schema's default sort
// when one is declared.
func (m *Model) List(ctx context.Context) ([]map[string]any, error) {
	sel := sql.Dialect(m.drv.Dialect()).Select(m.table + ".*").From(m.table)
	if m.softDelete {
		sel.Where(sql.IsNull(m.col("deleted_at")))
	}
	if m.def.DefaultSort != "" {
		sel.OrderBy(sql.Asc(m.col(m.def.DefaultSort)))
	}
	return m.queryRows(ctx, m.drv, sel)
}

// Create inserts input as a new row and runs the on_create
// relationship actions inside the same transaction. It returns the
// stored record including the generated primary key and timestamps.
func (m *Model) Create(ctx context.Context, input map[string]any) (map[string]any, error) {
	record := m.writable(input)
	if m.pkType == schema.PKUUID {
		if _, ok := record[m.pk]; !ok {
			record[m.pk] = uuid.New().String()
		}
	}
	if m.timestamps {
		now := time.Now()
		record["created_at"] = now
		record["updated_at"] = now
	}
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return nil, err
	}
	id, err := m.insertRow(ctx, tx, record)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	record[m.pk] = id
	if err := m.ProcessActions(ctx, tx, schema.OnCreate, record, input); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

// Update applies input to the row with the given primary key and runs
// the on_update relationship actions inside the same transaction.
func (m *Model) Update(ctx context.Context, id any, input map[string]any) (map[string]any, error) {
	record, err := m.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	changes := m.writable(input)
	delete(changes, m.pk)
	if m.timestamps {
		changes["updated_at"] = time.Now()
	}
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return nil, err
	}
	// An input carrying only relationship id lists has no column
	// changes; the row is left untouched and only the actions run.
	if len(changes) > 0 {
		upd := sql.Dialect(m.drv.Dialect()).Update(m.table)
		for _, col := range m.orderedKeys(changes) {
			upd.Set(col, changes[col])
		}
		upd.Where(sql.EQ(m.pk, id))
		query, args := upd.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	for k, v := range changes {
		record[k] = v
	}
	if err := m.ProcessActions(ctx, tx, schema.OnUpdate, record, input); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete physically removes the row, its cascading children and its
// on_delete relationship actions, all in one transaction.
func (m *Model) Delete(ctx context.Context, id any) error {
	return m.delete(ctx, id, false)
}

// SoftDelete marks the row deleted instead of removing it. Children
// cascade per their declared mode; children without soft-delete
// support are removed physically.
func (m *Model) SoftDelete(ctx context.Context, id any) error {
	if !m.softDelete {
		return fmt.Errorf("model: %s does not support soft delete", m.def.Model)
	}
	return m.delete(ctx, id, true)
}

func (m *Model) delete(ctx context.Context, id any, soft bool) error {
	record, err := m.Find(ctx, id)
	if err != nil {
		return err
	}
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return err
	}
	if err := m.ProcessActions(ctx, tx, schema.OnDelete, record, nil); err != nil {
		tx.Rollback()
		return err
	}
	if err := m.performDelete(ctx, tx, id, soft); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// performDelete cascades to the children first, then mutates the row
// itself.
func (m *Model) performDelete(ctx context.Context, tx dialect.Tx, id any, soft bool) error {
	return m.deleteRow(ctx, tx, id, soft, map[string]bool{
		cascadeKey(m.def.Model, id): true,
	})
}

// deleteRow is performDelete with the cascade's visited set threaded
// through, so cyclic detail declarations terminate.
func (m *Model) deleteRow(ctx context.Context, tx dialect.Tx, id any, soft bool, seen map[string]bool) error {
	if err := m.cascade(ctx, tx, id, soft, seen); err != nil {
		return err
	}
	if soft {
		upd := sql.Dialect(m.drv.Dialect()).Update(m.table).
			Set("deleted_at", time.Now()).
			Where(sql.EQ(m.pk, id))
		if m.timestamps {
			upd.Set("updated_at", time.Now())
		}
		query, args := upd.Query()
		return tx.Exec(ctx, query, args, nil)
	}
	del := sql.Dialect(m.drv.Dialect()).Delete(m.table).Where(sql.EQ(m.pk, id))
	query, args := del.Query()
	return tx.Exec(ctx, query, args, nil)
}

// insertRow writes record and returns its primary key value. Postgres
// reads the key back via RETURNING; the other dialects use the
// driver-reported last insert id for integer keys.
func (m *Model) insertRow(ctx context.Context, conn dialect.ExecQuerier, record map[string]any) (any, error) {
	cols := m.orderedKeys(record)
	ins := sql.Dialect(m.drv.Dialect()).Insert(m.table).Columns(cols...)
	vals := make([]any, len(cols))
	for i, col := range cols {
		vals[i] = record[col]
	}
	ins.Values(vals...)
	if m.drv.Dialect() == dialect.Postgres && m.pkType != schema.PKUUID {
		ins.Returning(m.pk)
		query, args := ins.Query()
		var rows sql.Rows
		if err := conn.Query(ctx, query, args, &rows); err != nil {
			return nil, err
		}
		defer rows.Close()
		var id int64
		if !rows.Next() {
			return nil, fmt.Errorf("model: insert into %s returned no id", m.table)
		}
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		return id, rows.Err()
	}
	query, args := ins.Query()
	var res sql.Result
	if err := conn.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	if m.pkType == schema.PKUUID {
		return record[m.pk], nil
	}
	return res.LastInsertId()
}

// writable filters input down to the schema's declared columns.
func (m *Model) writable(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for _, col := range m.columns {
		if v, ok := input[col]; ok {
			out[col] = v
		}
	}
	return out
}

// orderedKeys returns the record's columns in the schema's field
// order, so generated statements are deterministic.
func (m *Model) orderedKeys(record map[string]any) []string {
	out := make([]string, 0, len(record))
	for _, col := range m.columns {
		if _, ok := record[col]; ok {
			out = append(out, col)
		}
	}
	for _, extra := range []string{"created_at", "updated_at", "deleted_at"} {
		if _, ok := record[extra]; ok && !contains(out, extra) {
			out = append(out, extra)
		}
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func (m *Model) col(name string) string {
	return m.table + "." + name
}

// queryRows runs sel and scans every row into a generic map.
func (m *Model) queryRows(ctx context.Context, conn dialect.ExecQuerier, sel *sql.Selector) ([]map[string]any, error) {
	query, args := sel.Query()
	var rows sql.Rows
	if err := conn.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMaps(&rows)
}

// scanMaps drains rows into column-keyed maps. Byte slices become
// strings so drivers returning raw bytes for text columns stay
// comparable.
func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		out = append(out, record)
	}
	return out, rows.Err()
}
