package model

import (
	"context"

	"github.com/dyntab/dyntab"
	"github.com/dyntab/dyntab/dialect"
	"github.com/dyntab/dyntab/dialect/sql"
	"github.com/dyntab/dyntab/schema"
)

// Cascade deletes the child rows declared under details, on the given
// transaction, before the parent row itself is mutated. soft reports
// how the parent is being deleted: a child is soft-deleted only when
// the parent delete is soft, the child schema supports it and the
// detail's mode does not force hard; otherwise it is removed
// physically. Failures wrap in a CascadeError and propagate so the
// whole delete rolls back.
func (m *Model) Cascade(ctx context.Context, tx dialect.Tx, parentID any, soft bool) error {
	return m.cascade(ctx, tx, parentID, soft, map[string]bool{
		cascadeKey(m.def.Model, parentID): true,
	})
}

// cascade walks the details tree. seen holds every model/id pair
// already scheduled for deletion, so cyclic detail declarations
// terminate instead of recursing forever.
func (m *Model) cascade(ctx context.Context, tx dialect.Tx, parentID any, soft bool, seen map[string]bool) error {
	for _, d := range m.def.Details {
		if !d.Cascades() {
			continue
		}
		if err := m.cascadeDetail(ctx, tx, d, parentID, soft, seen); err != nil {
			return &dyntab.CascadeError{
				Model:    m.def.Model,
				Child:    d.Model,
				ParentID: parentID,
				Err:      err,
			}
		}
	}
	return nil
}

func (m *Model) cascadeDetail(ctx context.Context, tx dialect.Tx, d *schema.Detail, parentID any, soft bool, seen map[string]bool) error {
	var opts []schema.Option
	if m.connection != "" {
		opts = append(opts, schema.WithConnection(m.connection))
	}
	child, err := m.For(ctx, d.Model, opts...)
	if err != nil {
		return err
	}
	childSoft := soft && child.softDelete && d.Mode() != schema.CascadeHard

	sel := sql.Dialect(m.drv.Dialect()).
		Select(child.col(child.pk)).From(child.table).
		Where(sql.EQ(child.col(d.ForeignKey), parentID))
	if child.softDelete {
		sel.Where(sql.IsNull(child.col("deleted_at")))
	}
	rows, err := child.queryRows(ctx, tx, sel)
	if err != nil {
		return err
	}
	for _, row := range rows {
		id := row[child.pk]
		key := cascadeKey(d.Model, id)
		if seen[key] {
			continue
		}
		seen[key] = true
		m.log.Debug("cascading delete",
			"parent", m.def.Model, "child", d.Model,
			"child_id", id, "soft", childSoft)
		if err := child.deleteRow(ctx, tx, id, childSoft, seen); err != nil {
			return err
		}
	}
	return nil
}

func cascadeKey(model string, id any) string {
	return model + "/" + idKey(id)
}
