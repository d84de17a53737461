package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyntab/dyntab"
)

// validDef returns a minimal definition that passes validation.
func validDef() *Definition {
	on := true
	return &Definition{
		Model:          "orders",
		Table:          "orders",
		PrimaryKey:     "id",
		PrimaryKeyType: PKInt,
		Timestamps:     &on,
		Fields: Fields{
			{Name: "id", Type: TypeInteger},
			{Name: "status", Type: TypeString},
		},
	}
}

func TestValidatorAccepts(t *testing.T) {
	t.Parallel()
	require.NoError(t, NewValidator().Validate(validDef(), "orders"))
}

func TestValidatorModelMatch(t *testing.T) {
	t.Parallel()
	v := NewValidator()

	def := validDef()
	err := v.Validate(def, "invoices")
	require.Error(t, err)
	assert.True(t, dyntab.IsSchemaValidation(err))

	var ve *dyntab.SchemaValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "model", ve.Field)

	def.Model = ""
	err = v.Validate(def, "orders")
	assert.True(t, dyntab.IsSchemaValidation(err))
}

func TestValidatorStructure(t *testing.T) {
	t.Parallel()
	v := NewValidator()

	tests := []struct {
		name   string
		mutate func(*Definition)
		field  string
	}{
		{"missing table", func(d *Definition) { d.Table = "" }, "table"},
		{"injection in table", func(d *Definition) { d.Table = "orders; DROP TABLE orders" }, "table"},
		{"empty fields", func(d *Definition) { d.Fields = nil }, "fields"},
		{"field missing type", func(d *Definition) { d.Fields[1].Type = "" }, "status"},
		{"field unknown type", func(d *Definition) { d.Fields[1].Type = "blob" }, "status"},
		{"bad primary key kind", func(d *Definition) { d.PrimaryKeyType = "guid" }, "primary_key_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDef()
			tt.mutate(def)
			err := v.Validate(def, "orders")
			require.Error(t, err)
			var ve *dyntab.SchemaValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidatorRelationships(t *testing.T) {
	t.Parallel()
	v := NewValidator()

	m2m := func() *Relationship {
		return &Relationship{
			Name:       "items",
			Type:       ManyToMany,
			Model:      "items",
			PivotTable: "order_items",
			ForeignKey: "order_id",
			RelatedKey: "item_id",
		}
	}

	t.Run("valid many_to_many", func(t *testing.T) {
		def := validDef()
		def.Relationships = []*Relationship{m2m()}
		require.NoError(t, v.Validate(def, "orders"))
	})

	t.Run("missing pivot key", func(t *testing.T) {
		def := validDef()
		r := m2m()
		r.RelatedKey = ""
		def.Relationships = []*Relationship{r}
		assert.True(t, dyntab.IsSchemaValidation(v.Validate(def, "orders")))
	})

	t.Run("duplicate names", func(t *testing.T) {
		def := validDef()
		def.Relationships = []*Relationship{m2m(), m2m()}
		assert.True(t, dyntab.IsSchemaValidation(v.Validate(def, "orders")))
	})

	t.Run("unknown type", func(t *testing.T) {
		def := validDef()
		r := m2m()
		r.Type = "has_many"
		def.Relationships = []*Relationship{r}
		assert.True(t, dyntab.IsSchemaValidation(v.Validate(def, "orders")))
	})

	t.Run("valid through", func(t *testing.T) {
		def := validDef()
		def.Relationships = []*Relationship{{
			Name:             "permissions",
			Type:             ManyToManyThrough,
			Model:            "permissions",
			Through:          "roles",
			FirstPivotTable:  "user_roles",
			FirstForeignKey:  "user_id",
			FirstRelatedKey:  "role_id",
			SecondPivotTable: "role_permissions",
			SecondForeignKey: "role_id",
			SecondRelatedKey: "permission_id",
		}}
		require.NoError(t, v.Validate(def, "orders"))
	})

	t.Run("through missing second pivot", func(t *testing.T) {
		def := validDef()
		def.Relationships = []*Relationship{{
			Name:            "permissions",
			Type:            ManyToManyThrough,
			Model:           "permissions",
			Through:         "roles",
			FirstPivotTable: "user_roles",
			FirstForeignKey: "user_id",
			FirstRelatedKey: "role_id",
		}}
		assert.True(t, dyntab.IsSchemaValidation(v.Validate(def, "orders")))
	})

	t.Run("unknown lifecycle event", func(t *testing.T) {
		def := validDef()
		r := m2m()
		r.Actions = map[string]*RelationshipActions{"on_destroy": {}}
		def.Relationships = []*Relationship{r}
		assert.True(t, dyntab.IsSchemaValidation(v.Validate(def, "orders")))
	})
}

func TestValidatorDetails(t *testing.T) {
	t.Parallel()
	v := NewValidator()

	def := validDef()
	def.Details = []*Detail{{Model: "order_notes", ForeignKey: "order_id"}}
	require.NoError(t, v.Validate(def, "orders"))

	def.Details[0].ForeignKey = ""
	assert.True(t, dyntab.IsSchemaValidation(v.Validate(def, "orders")))

	def.Details[0].ForeignKey = "order_id"
	def.Details[0].CascadeDeleteMode = "soft-ish"
	assert.True(t, dyntab.IsSchemaValidation(v.Validate(def, "orders")))
}
