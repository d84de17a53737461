package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueConstraintError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "postgres",
			err:  &pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "order_items_pkey"`},
			want: true,
		},
		{
			name: "mysql",
			err:  &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-7' for key 'PRIMARY'"},
			want: true,
		},
		{
			name: "sqlite",
			err:  errors.New("constraint failed: UNIQUE constraint failed: order_items.order_id, order_items.item_id"),
			want: true,
		},
		{
			name: "wrapped",
			err:  fmt.Errorf("attach: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}),
			want: true,
		},
		{
			name: "unrelated",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueConstraintError(tt.err))
			if tt.want {
				assert.True(t, IsConstraintError(tt.err))
			}
		})
	}
}

func TestIsForeignKeyConstraintError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "postgres",
			err:  &pq.Error{Code: "23503", Message: `insert or update on table "order_items" violates foreign key constraint "order_items_item_id_fkey"`},
			want: true,
		},
		{
			name: "mysql parent",
			err:  &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"},
			want: true,
		},
		{
			name: "mysql child",
			err:  &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"},
			want: true,
		},
		{
			name: "sqlite",
			err:  errors.New("constraint failed: FOREIGN KEY constraint failed"),
			want: true,
		},
		{
			name: "unique is not fk",
			err:  &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsForeignKeyConstraintError(tt.err))
		})
	}
}

func TestIsCheckConstraintError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCheckConstraintError(&pq.Error{Code: "23514", Message: `new row for relation "orders" violates check constraint "orders_qty_check"`}))
	assert.True(t, IsCheckConstraintError(&mysql.MySQLError{Number: 3819, Message: "Check constraint 'orders_chk_1' is violated."}))
	assert.True(t, IsCheckConstraintError(errors.New("CHECK constraint failed: qty > 0")))
	assert.False(t, IsCheckConstraintError(errors.New("syntax error")))
	assert.False(t, IsCheckConstraintError(nil))
}
