package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/dyntab/dyntab"
	"github.com/dyntab/dyntab/dialect"
	"github.com/dyntab/dyntab/dialect/sql"
	"github.com/dyntab/dyntab/schema"
)

// Listing is the relationship listing response shape. Count is the
// total related-row count before any search predicate; CountFiltered
// is the count after search predicates but before pagination; Rows is
// always the post-pagination slice.
type Listing struct {
	Rows          []map[string]any `json:"rows"`
	Count         int              `json:"count"`
	CountFiltered int              `json:"count_filtered"`
}

// RelationshipQuery builds and runs queries over one relationship of
// a configured model: one pivot join for many-to-many, two chained
// joins for two-hop relationships. Obtain one via Model.Relationship.
type RelationshipQuery struct {
	model *Model
	rel   *schema.Relationship
	conn  dialect.ExecQuerier

	parentID any
	preds    []*sql.Predicate
	search   *sql.Predicate
	order    []string
	limit    int
	offset   int

	relatedTable string
	relatedPK    string
}

// Of scopes the query to the given parent primary key.
func (q *RelationshipQuery) Of(parentID any) *RelationshipQuery {
	q.parentID = parentID
	return q
}

// WithTx runs the query's statements on tx instead of the driver.
// The action processor uses this to keep pivot mutations inside the
// ambient write transaction.
func (q *RelationshipQuery) WithTx(tx dialect.Tx) *RelationshipQuery {
	q.conn = tx
	return q
}

// Where adds a filter predicate. Filter predicates count toward
// CountFiltered, not Count.
func (q *RelationshipQuery) Where(p *sql.Predicate) *RelationshipQuery {
	q.preds = append(q.preds, p)
	return q
}

// Search adds a case-insensitive substring match over the given
// related columns.
func (q *RelationshipQuery) Search(term string, columns ...string) *RelationshipQuery {
	if term == "" || len(columns) == 0 {
		return q
	}
	ps := make([]*sql.Predicate, len(columns))
	for i, col := range columns {
		ps[i] = sql.ContainsFold(col, term)
	}
	q.search = sql.Or(ps...)
	return q
}

// OrderBy appends ORDER BY terms (see sql.Asc / sql.Desc).
func (q *RelationshipQuery) OrderBy(terms ...string) *RelationshipQuery {
	q.order = append(q.order, terms...)
	return q
}

// Paginate sets the page slice. A non-positive limit disables
// pagination.
func (q *RelationshipQuery) Paginate(limit, offset int) *RelationshipQuery {
	q.limit = limit
	q.offset = offset
	return q
}

// All runs the query and returns the listing. Count is computed on
// the bare join before filters, CountFiltered after filters but
// before pagination, and Rows after pagination.
func (q *RelationshipQuery) All(ctx context.Context) (*Listing, error) {
	if err := q.resolveRelated(ctx); err != nil {
		return nil, err
	}
	conn := q.connOrDriver()

	count, err := q.count(ctx, conn, q.countSelector())
	if err != nil {
		return nil, err
	}
	filtered := q.countSelector()
	q.applyFilters(filtered)
	countFiltered, err := q.count(ctx, conn, filtered)
	if err != nil {
		return nil, err
	}

	sel := q.rowSelector()
	q.applyFilters(sel)
	if len(q.order) > 0 {
		sel.OrderBy(q.order...)
	}
	if q.limit > 0 {
		sel.Limit(q.limit).Offset(q.offset)
	}
	query, args := sel.Query()
	var rows sql.Rows
	if err := conn.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	records, err := scanMaps(&rows)
	if err != nil {
		return nil, err
	}
	return &Listing{Rows: records, Count: count, CountFiltered: countFiltered}, nil
}

// IDs returns the related primary keys currently attached to the
// parent. Only valid for many-to-many relationships.
func (q *RelationshipQuery) IDs(ctx context.Context) ([]any, error) {
	if err := q.pivotOnly("ids"); err != nil {
		return nil, err
	}
	sel := sql.Dialect(q.model.drv.Dialect()).
		Select(q.rel.RelatedKey).From(q.rel.PivotTable).
		Where(sql.EQ(q.rel.ForeignKey, q.parentID))
	query, args := sel.Query()
	var rows sql.Rows
	if err := q.connOrDriver().Query(ctx, query, args, &rows); err != nil {
		return nil, q.wrap("sync", err)
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, q.wrap("sync", err)
		}
		if b, ok := id.([]byte); ok {
			id = string(b)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Attach inserts one pivot row linking the parent to relatedID, with
// optional extra pivot columns.
func (q *RelationshipQuery) Attach(ctx context.Context, relatedID any, pivotData map[string]any) error {
	if err := q.pivotOnly("attach"); err != nil {
		return err
	}
	cols := []string{q.rel.ForeignKey, q.rel.RelatedKey}
	vals := []any{q.parentID, relatedID}
	for _, k := range sortedKeys(pivotData) {
		cols = append(cols, k)
		vals = append(vals, pivotData[k])
	}
	ins := sql.Dialect(q.model.drv.Dialect()).Insert(q.rel.PivotTable).
		Columns(cols...).Values(vals...)
	query, args := ins.Query()
	if err := q.connOrDriver().Exec(ctx, query, args, nil); err != nil {
		return q.wrap("attach", err)
	}
	return nil
}

// Detach removes the pivot rows linking the parent to the given
// related ids.
func (q *RelationshipQuery) Detach(ctx context.Context, ids ...any) error {
	if err := q.pivotOnly("detach"); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	del := sql.Dialect(q.model.drv.Dialect()).Delete(q.rel.PivotTable).
		Where(sql.And(
			sql.EQ(q.rel.ForeignKey, q.parentID),
			sql.In(q.rel.RelatedKey, ids...),
		))
	query, args := del.Query()
	if err := q.connOrDriver().Exec(ctx, query, args, nil); err != nil {
		return q.wrap("detach", err)
	}
	return nil
}

// DetachAll removes every pivot row of the parent.
func (q *RelationshipQuery) DetachAll(ctx context.Context) error {
	if err := q.pivotOnly("detach"); err != nil {
		return err
	}
	del := sql.Dialect(q.model.drv.Dialect()).Delete(q.rel.PivotTable).
		Where(sql.EQ(q.rel.ForeignKey, q.parentID))
	query, args := del.Query()
	if err := q.connOrDriver().Exec(ctx, query, args, nil); err != nil {
		return q.wrap("detach", err)
	}
	return nil
}

/// Sync replaces the full pivot set with exactly ids: missing ones are
// attached, absent ones detached, overlapping ones left untouched.
func (q *RelationshipQuery) Sync(ctx context.Context, ids []any) error {
	if err := q.pivotOnly("sync"); err != nil {
		return err
	}
	current, err := q.IDs(ctx)
	if err != nil {
		return err
	}
	want := make(map[string]any, len(ids))
	for _, id := range ids {
		want[idKey(id)] = id
	}
	have := make(map[string]bool, len(current))
	var stale []any
	for _, id := range current {
		key := idKey(id)
		have[key] = true
		if _, ok := want[key]; !ok {
			stale = append(stale, id)
		}
	}
	if err := q.Detach(ctx, stale...); err != nil {
		return err
	}
	for _, id := range ids {
		if have[idKey(id)] {
			continue
		}
		if err := q.Attach(ctx, id, nil); err != nil {
			return err
		}
	}
	return nil
}

// rowSelector builds the join chain selecting the related columns.
func (q *RelationshipQuery) rowSelector() *sql.Selector {
	sel := q.join(sql.Dialect(q.model.drv.Dialect()).Select(q.relatedTable + ".*"))
	if q.rel.Type == schema.ManyToManyThrough {
		sel.Distinct()
	}
	return sel
}

// countSelector builds the join chain counting related rows. Two-hop
// traversals can reach the same related row via several intermediate
// rows, so they count distinct primary keys.
func (q *RelationshipQuery) countSelector() *sql.Selector {
	if q.rel.Type == schema.ManyToManyThrough {
		return q.join(sql.Dialect(q.model.drv.Dialect()).
			Select(q.relatedTable + "." + q.relatedPK)).Distinct().Count()
	}
	return q.join(sql.Dialect(q.model.drv.Dialect()).Select()).Count()
}

// join appends the pivot join(s) and the parent filter to sel.
func (q *RelationshipQuery) join(sel *sql.Selector) *sql.Selector {
	sel.From(q.relatedTable)
	switch q.rel.Type {
	case schema.ManyToManyThrough:
		sel.Join(q.rel.SecondPivotTable,
			q.relatedTable+"."+q.relatedPK,
			q.rel.SecondPivotTable+"."+q.rel.SecondRelatedKey).
			Join(q.rel.FirstPivotTable,
				q.rel.SecondPivotTable+"."+q.rel.SecondForeignKey,
				q.rel.FirstPivotTable+"."+q.rel.FirstRelatedKey).
			Where(sql.EQ(q.rel.FirstPivotTable+"."+q.rel.FirstForeignKey, q.parentID))
	default:
		sel.Join(q.rel.PivotTable,
			q.relatedTable+"."+q.relatedPK,
			q.rel.PivotTable+"."+q.rel.RelatedKey).
			Where(sql.EQ(q.rel.PivotTable+"."+q.rel.ForeignKey, q.parentID))
	}
	return sel
}

func (q *RelationshipQuery) applyFilters(sel *sql.Selector) {
	for _, p := range q.preds {
		sel.Where(p)
	}
	if q.search != nil {
		sel.Where(q.search)
	}
}

func (q *RelationshipQuery) count(ctx context.Context, conn dialect.ExecQuerier, sel *sql.Selector) (int, error) {
	query, args := sel.Query()
	var rows sql.Rows
	if err := conn.Query(ctx, query, args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// resolveRelated loads the related model's schema for its table and
// primary key names.
func (q *RelationshipQuery) resolveRelated(ctx context.Context) error {
	if q.relatedTable != "" {
		return nil
	}
	var opts []schema.Option
	if q.model.connection != "" {
		opts = append(opts, schema.WithConnection(q.model.connection))
	}
	def, err := q.model.svc.GetSchema(ctx, q.rel.Model, opts...)
	if err != nil {
		return err
	}
	q.relatedTable = def.Table
	q.relatedPK = def.PrimaryKey
	return nil
}

// pivotOnly rejects pivot mutations on relationship kinds without a
// directly owned pivot table.
func (q *RelationshipQuery) pivotOnly(op string) error {
	if q.rel.Type != schema.ManyToMany {
		return q.wrap(op, fmt.Errorf("relationship type %q has no direct pivot", q.rel.Type))
	}
	return nil
}

func (q *RelationshipQuery) connOrDriver() dialect.ExecQuerier {
	if q.conn != nil {
		return q.conn
	}
	return q.model.drv
}

func (q *RelationshipQuery) wrap(op string, err error) error {
	return &dyntab.RelationshipError{
		Model:        q.model.def.Model,
		Relationship: q.rel.Name,
		Op:           op,
		ID:           q.parentID,
		Err:          err,
	}
}

// idKey normalizes an id for set comparison, so 2 and int64(2) and
// "2" from different drivers compare equal.
func idKey(id any) string {
	return fmt.Sprintf("%v", id)
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
