package model

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyntab/dyntab"
)

// TestListingCountInvariant is the pagination regression: the total
// count is taken before the search predicate, the filtered count
// after it but before the page slice, and the rows after everything.
func TestListingCountInvariant(t *testing.T) {
	t.Parallel()
	m, mock := newMockModel(t, "orders", map[string]string{
		"orders.yaml": ordersYAML,
		"items.yaml":  itemsYAML,
	})

	mock.ExpectQuery("SELECT COUNT(*) FROM items JOIN order_items ON items.id = order_items.item_id WHERE order_items.order_id = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery("SELECT COUNT(*) FROM items JOIN order_items ON items.id = order_items.item_id WHERE (order_items.order_id = ?) AND (LOWER(items.name) LIKE ?)").
		WithArgs(1, "%red%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT items.* FROM items JOIN order_items ON items.id = order_items.item_id WHERE (order_items.order_id = ?) AND (LOWER(items.name) LIKE ?) LIMIT ? OFFSET ?").
		WithArgs(1, "%red%", 2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(4, "red shirt").AddRow(9, "red hat"))

	q, err := m.Relationship("items")
	require.NoError(t, err)
	listing, err := q.Of(1).Search("red", "items.name").Paginate(2, 0).All(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, listing.Count)
	assert.Equal(t, 3, listing.CountFiltered)
	require.Len(t, listing.Rows, 2)
	assert.Equal(t, "red shirt", listing.Rows[0]["name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

const companiesYAML = `
model: companies
table: companies
timestamps: false
fields:
  id:
    type: integer
  name: string
relationships:
  - name: projects
    type: belongs_to_many_through
    model: projects
    through: users
    first_pivot_table: company_user
    first_foreign_key: company_id
    first_related_key: user_id
    second_pivot_table: project_user
    second_foreign_key: user_id
    second_related_key: project_id
`

const projectsYAML = `
model: projects
table: projects
timestamps: false
fields:
  id:
    type: integer
  name: string
`

// Two-hop traversal: two chained pivot joins, distinct rows, and a
// distinct count so shared intermediates never inflate it.
func TestThroughRelationship(t *testing.T) {
	t.Parallel()
	m, mock := newMockModel(t, "companies", map[string]string{
		"companies.yaml": companiesYAML,
		"projects.yaml":  projectsYAML,
	})

	const joins = "FROM projects" +
		" JOIN project_user ON projects.id = project_user.project_id" +
		" JOIN company_user ON project_user.user_id = company_user.user_id" +
		" WHERE company_user.company_id = ?"

	mock.ExpectQuery("SELECT COUNT(DISTINCT projects.id) " + joins).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT(DISTINCT projects.id) " + joins).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT DISTINCT projects.* " + joins).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "atlas").AddRow(2, "hermes"))

	q, err := m.Relationship("projects")
	require.NoError(t, err)
	listing, err := q.Of(3).All(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, listing.Count)
	assert.Equal(t, 2, listing.CountFiltered)
	assert.Len(t, listing.Rows, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Through relationships have no directly owned pivot, so pivot
// mutations are rejected.
func TestThroughRejectsPivotMutations(t *testing.T) {
	t.Parallel()
	m, _ := newMockModel(t, "companies", map[string]string{
		"companies.yaml": companiesYAML,
		"projects.yaml":  projectsYAML,
	})

	q, err := m.Relationship("projects")
	require.NoError(t, err)
	q.Of(3)

	err = q.Attach(context.Background(), 7, nil)
	require.Error(t, err)
	assert.True(t, dyntab.IsRelationship(err))

	err = q.Sync(context.Background(), []any{1})
	require.Error(t, err)
	_, err = q.IDs(context.Background())
	require.Error(t, err)
}

func TestUnknownRelationship(t *testing.T) {
	t.Parallel()
	m, _ := newMockModel(t, "orders", map[string]string{
		"orders.yaml": ordersYAML,
		"items.yaml":  itemsYAML,
	})

	_, err := m.Relationship("payments")
	require.Error(t, err)
	assert.EqualError(t, err, `model: orders has no relationship "payments"`)
}
