package model

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyntab/dyntab"
)

const softOrdersYAML = `
model: orders
table: orders
timestamps: false
soft_delete: true
fields:
  id:
    type: integer
  status: string
details:
  - model: order_notes
    foreign_key: order_id
`

const orderNotesYAML = `
model: order_notes
table: order_notes
timestamps: false
fields:
  id:
    type: integer
  body: text
`

// TestSoftDeleteCascadesHard is the cascade atomicity property's happy
// path: a soft parent delete hard-deletes children that do not support
// soft deletion, then soft-deletes the parent.
func TestSoftDeleteCascadesHard(t *testing.T) {
	t.Parallel()
	m, mock := newMockModel(t, "orders", map[string]string{
		"orders.yaml":      softOrdersYAML,
		"order_notes.yaml": orderNotesYAML,
	})

	mock.ExpectQuery("SELECT orders.* FROM orders WHERE (orders.id = ?) AND (orders.deleted_at IS NULL)").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(42, "open"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_notes.id FROM order_notes WHERE order_notes.order_id = ?").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3))
	for _, id := range []int{1, 2, 3} {
		mock.ExpectExec("DELETE FROM order_notes WHERE id = ?").
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("UPDATE orders SET deleted_at = ? WHERE id = ?").
		WithArgs(sqlmock.AnyArg(), 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.SoftDelete(context.Background(), 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

// The other half of the atomicity property: a failure on any child
// rolls the whole delete back, parent included.
func TestCascadeFailureRollsBack(t *testing.T) {
	t.Parallel()
	m, mock := newMockModel(t, "orders", map[string]string{
		"orders.yaml":      softOrdersYAML,
		"order_notes.yaml": orderNotesYAML,
	})

	mock.ExpectQuery("SELECT orders.* FROM orders WHERE (orders.id = ?) AND (orders.deleted_at IS NULL)").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(42, "open"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_notes.id FROM order_notes WHERE order_notes.order_id = ?").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectExec("DELETE FROM order_notes WHERE id = ?").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM order_notes WHERE id = ?").
		WithArgs(2).
		WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err := m.SoftDelete(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, dyntab.IsCascade(err))

	var ce *dyntab.CascadeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "orders", ce.Model)
	assert.Equal(t, "order_notes", ce.Child)
	require.NoError(t, mock.ExpectationsWereMet())
}

// cascade_delete: false opts a detail out entirely.
func TestCascadeOptOut(t *testing.T) {
	t.Parallel()
	m, mock := newMockModel(t, "orders", map[string]string{
		"orders.yaml": `
model: orders
table: orders
timestamps: false
fields:
  id:
    type: integer
details:
  - model: order_notes
    foreign_key: order_id
    cascade_delete: false
`,
		"order_notes.yaml": orderNotesYAML,
	})

	mock.ExpectQuery("SELECT orders.* FROM orders WHERE orders.id = ?").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM orders WHERE id = ?").
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Delete(context.Background(), 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

// Two models declaring each other as details must not recurse
// forever: a row already scheduled for deletion is skipped when the
// cycle comes back around.
func TestCascadeCycleTerminates(t *testing.T) {
	t.Parallel()
	m, mock := newMockModel(t, "threads", map[string]string{
		"threads.yaml": `
model: threads
table: threads
timestamps: false
fields:
  id:
    type: integer
  post_id: integer
details:
  - model: posts
    foreign_key: thread_id
`,
		"posts.yaml": `
model: posts
table: posts
timestamps: false
fields:
  id:
    type: integer
  thread_id: integer
details:
  - model: threads
    foreign_key: post_id
`,
	})

	mock.ExpectQuery("SELECT threads.* FROM threads WHERE threads.id = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT posts.id FROM posts WHERE posts.thread_id = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	// The post's own details point back at threads; thread 1 is
	// already scheduled, so the walk stops here.
	mock.ExpectQuery("SELECT threads.id FROM threads WHERE threads.post_id = ?").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("DELETE FROM posts WHERE id = ?").
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM threads WHERE id = ?").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Delete(context.Background(), 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

// cascade_delete_mode: hard forces physical child deletion even when
// the child supports soft delete and the parent delete is soft.
func TestCascadeModeHard(t *testing.T) {
	t.Parallel()
	m, mock := newMockModel(t, "orders", map[string]string{
		"orders.yaml": `
model: orders
table: orders
timestamps: false
soft_delete: true
fields:
  id:
    type: integer
details:
  - model: order_notes
    foreign_key: order_id
    cascade_delete_mode: hard
`,
		"order_notes.yaml": `
model: order_notes
table: order_notes
timestamps: false
soft_delete: true
fields:
  id:
    type: integer
`,
	})

	mock.ExpectQuery("SELECT orders.* FROM orders WHERE (orders.id = ?) AND (orders.deleted_at IS NULL)").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_notes.id FROM order_notes WHERE (order_notes.order_id = ?) AND (order_notes.deleted_at IS NULL)").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("DELETE FROM order_notes WHERE id = ?").
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE orders SET deleted_at = ? WHERE id = ?").
		WithArgs(sqlmock.AnyArg(), 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.SoftDelete(context.Background(), 42))
	require.NoError(t, mock.ExpectationsWereMet())
}
