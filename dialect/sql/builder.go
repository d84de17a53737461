package sql

import (
	"fmt"
	"strings"

	"github.com/dyntab/dyntab/dialect"
)

// Builder is the base statement writer shared by all builders. It
// accumulates the statement text and its bound arguments, emitting
// dialect-specific placeholders ($N for postgres, ? otherwise).
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
}

// NewBuilder returns a statement writer for the given dialect.
func NewBuilder(dialect string) *Builder {
	return &Builder{dialect: dialect}
}

// WriteString appends the given string to the statement.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Ident appends a validated identifier to the statement. Invalid
// identifiers are written as-is; they will fail at the database,
// never silently alter the statement.
func (b *Builder) Ident(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Arg appends an argument placeholder and records the value.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		fmt.Fprintf(&b.sb, "$%d", len(b.args))
	} else {
		b.sb.WriteByte('?')
	}
	return b
}

// Args appends a comma-separated list of argument placeholders.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// String returns the accumulated statement.
func (b *Builder) String() string { return b.sb.String() }

// DialectBuilder is the entry point for building dialect-aware
// statements.
//
//	sql.Dialect(dialect.Postgres).
//		Select("id", "name").
//		From("users").
//		Where(sql.EQ("active", true))
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder for the given dialect.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select returns a Selector for the given columns.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: columns}
}

// Insert returns an InsertBuilder for the given table.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d.dialect, table: table}
}

// Update returns an UpdateBuilder for the given table.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d.dialect, table: table}
}

// Delete returns a DeleteBuilder for the given table.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d.dialect, table: table}
}

// Predicate is a serializable WHERE condition.
type Predicate struct {
	fn func(*Builder)
}

// P wraps a raw builder function as a predicate.
func P(fn func(*Builder)) *Predicate {
	return &Predicate{fn: fn}
}

func compareOp(col, op string, v any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" " + op + " ").Arg(v)
	})
}

// EQ returns a column = value predicate.
func EQ(col string, v any) *Predicate { return compareOp(col, "=", v) }

// NEQ returns a column <> value predicate.
func NEQ(col string, v any) *Predicate { return compareOp(col, "<>", v) }

// GT returns a column > value predicate.
func GT(col string, v any) *Predicate { return compareOp(col, ">", v) }

// GTE returns a column >= value predicate.
func GTE(col string, v any) *Predicate { return compareOp(col, ">=", v) }

// LT returns a column < value predicate.
func LT(col string, v any) *Predicate { return compareOp(col, "<", v) }

// LTE returns a column <= value predicate.
func LTE(col string, v any) *Predicate { return compareOp(col, "<=", v) }

// ColumnsEQ returns a col1 = col2 predicate (no arguments bound).
func ColumnsEQ(col1, col2 string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col1).WriteString(" = ").Ident(col2)
	})
}

// In returns a column IN (...) predicate. An empty value list
// serializes to FALSE so the statement stays valid.
func In(col string, vs ...any) *Predicate {
	return P(func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("FALSE")
			return
		}
		b.Ident(col).WriteString(" IN (").Args(vs...).WriteString(")")
	})
}

// NotIn returns a column NOT IN (...) predicate.
func NotIn(col string, vs ...any) *Predicate {
	return P(func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("TRUE")
			return
		}
		b.Ident(col).WriteString(" NOT IN (").Args(vs...).WriteString(")")
	})
}

// Like returns a column LIKE pattern predicate.
func Like(col, pattern string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" LIKE ").Arg(pattern)
	})
}

// ContainsFold returns a case-insensitive substring-match predicate.
func ContainsFold(col, substr string) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("LOWER(").Ident(col).WriteString(") LIKE ").Arg("%" + strings.ToLower(substr) + "%")
	})
}

// IsNull returns a column IS NULL predicate.
func IsNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// NotNull returns a column IS NOT NULL predicate.
func NotNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NOT NULL")
	})
}

// And joins the given predicates with AND.
func And(ps ...*Predicate) *Predicate {
	if len(ps) == 1 {
		return ps[0]
	}
	return P(func(b *Builder) {
		for i, p := range ps {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString("(")
			p.fn(b)
			b.WriteString(")")
		}
	})
}

// Or joins the given predicates with OR.
func Or(ps ...*Predicate) *Predicate {
	if len(ps) == 1 {
		return ps[0]
	}
	return P(func(b *Builder) {
		for i, p := range ps {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString("(")
			p.fn(b)
			b.WriteString(")")
		}
	})
}

// Not negates the given predicate.
func Not(p *Predicate) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT (")
		p.fn(b)
		b.WriteString(")")
	})
}

// Asc returns an ascending ORDER BY term for the column.
func Asc(col string) string { return col + " ASC" }

// Desc returns a descending ORDER BY term for the column.
func Desc(col string) string { return col + " DESC" }

type join struct {
	kind  string // JOIN or LEFT JOIN
	table string
	left  string
	right string
}

// Selector builds SELECT statements.
type Selector struct {
	dialect  string
	columns  []string
	distinct bool
	from     string
	joins    []join
	where    *Predicate
	order    []string
	limit    *int
	offset   *int
}

// Select returns a dialect-less Selector. Used in tests; production
// code goes through Dialect().
func Select(columns ...string) *Selector {
	return &Selector{columns: columns}
}

// From sets the table of the selection.
func (s *Selector) From(table string) *Selector {
	s.from = table
	return s
}

// Distinct marks the selection as DISTINCT.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// Join appends an INNER JOIN on leftCol = rightCol.
func (s *Selector) Join(table, leftCol, rightCol string) *Selector {
	s.joins = append(s.joins, join{kind: "JOIN", table: table, left: leftCol, right: rightCol})
	return s
}

// LeftJoin appends a LEFT JOIN on leftCol = rightCol.
func (s *Selector) LeftJoin(table, leftCol, rightCol string) *Selector {
	s.joins = append(s.joins, join{kind: "LEFT JOIN", table: table, left: leftCol, right: rightCol})
	return s
}

// Where sets or conjoins the selection predicate.
func (s *Selector) Where(p *Predicate) *Selector {
	if p == nil {
		return s
	}
	if s.where != nil {
		s.where = And(s.where, p)
	} else {
		s.where = p
	}
	return s
}

// OrderBy appends ORDER BY terms (see Asc/Desc).
func (s *Selector) OrderBy(terms ...string) *Selector {
	s.order = append(s.order, terms...)
	return s
}

// Limit sets the LIMIT clause.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// Clone returns an independent copy of the selector.
func (s *Selector) Clone() *Selector {
	c := *s
	c.columns = append([]string(nil), s.columns...)
	c.joins = append([]join(nil), s.joins...)
	c.order = append([]string(nil), s.order...)
	if s.limit != nil {
		n := *s.limit
		c.limit = &n
	}
	if s.offset != nil {
		n := *s.offset
		c.offset = &n
	}
	return &c
}

// Count returns a copy of the selector that selects COUNT(*) (or
// COUNT(DISTINCT col) when the selection is distinct over a single
// column) with ordering and pagination stripped.
func (s *Selector) Count() *Selector {
	c := s.Clone()
	switch {
	case s.distinct && len(s.columns) == 1:
		c.columns = []string{"COUNT(DISTINCT " + s.columns[0] + ")"}
		c.distinct = false
	default:
		c.columns = []string{"COUNT(*)"}
	}
	c.order = nil
	c.limit = nil
	c.offset = nil
	return c
}

// Query returns the SELECT statement and its bound arguments.
func (s *Selector) Query() (string, []any) {
	b := NewBuilder(s.dialect)
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(s.columns, ", "))
	}
	b.WriteString(" FROM ").Ident(s.from)
	for _, j := range s.joins {
		b.WriteString(" " + j.kind + " ").Ident(j.table).
			WriteString(" ON ").Ident(j.left).WriteString(" = ").Ident(j.right)
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.fn(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(s.order, ", "))
	}
	if s.limit != nil {
		b.WriteString(" LIMIT ").Arg(*s.limit)
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ").Arg(*s.offset)
	}
	return b.String(), b.args
}

// InsertBuilder builds INSERT statements.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    [][]any
	returning string
}

// Columns sets the insertion columns.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = columns
	return i
}

// Values appends one row of values. May be called repeatedly for a
// multi-row insert.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Returning sets a RETURNING column (postgres).
func (i *InsertBuilder) Returning(col string) *InsertBuilder {
	i.returning = col
	return i
}

// Query returns the INSERT statement and its bound arguments.
func (i *InsertBuilder) Query() (string, []any) {
	b := NewBuilder(i.dialect)
	b.WriteString("INSERT INTO ").Ident(i.table).
		WriteString(" (" + strings.Join(i.columns, ", ") + ") VALUES ")
	for ri, row := range i.values {
		if ri > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(").Args(row...).WriteString(")")
	}
	if i.returning != "" && i.dialect == dialect.Postgres {
		b.WriteString(" RETURNING ").Ident(i.returning)
	}
	return b.String(), b.args
}

// UpdateBuilder builds UPDATE statements.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	where   *Predicate
}

// Set assigns a column value.
func (u *UpdateBuilder) Set(col string, v any) *UpdateBuilder {
	u.columns = append(u.columns, col)
	u.values = append(u.values, v)
	return u
}

// SetNull assigns NULL to a column.
func (u *UpdateBuilder) SetNull(col string) *UpdateBuilder {
	return u.Set(col, nil)
}

// Where sets or conjoins the update predicate.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if p == nil {
		return u
	}
	if u.where != nil {
		u.where = And(u.where, p)
	} else {
		u.where = p
	}
	return u
}

// Query returns the UPDATE statement and its bound arguments.
func (u *UpdateBuilder) Query() (string, []any) {
	b := NewBuilder(u.dialect)
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for ci, col := range u.columns {
		if ci > 0 {
			b.WriteString(", ")
		}
		b.Ident(col).WriteString(" = ").Arg(u.values[ci])
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.fn(b)
	}
	return b.String(), b.args
}

// DeleteBuilder builds DELETE statements.
type DeleteBuilder struct {
	dialect string
	table   string
	where   *Predicate
}

// Where sets or conjoins the deletion predicate.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if p == nil {
		return d
	}
	if d.where != nil {
		d.where = And(d.where, p)
	} else {
		d.where = p
	}
	return d
}

// Query returns the DELETE statement and its bound arguments.
func (d *DeleteBuilder) Query() (string, []any) {
	b := NewBuilder(d.dialect)
	b.WriteString("DELETE FROM ").Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.fn(b)
	}
	return b.String(), b.args
}
