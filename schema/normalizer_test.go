package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decode(t *testing.T, doc string) *Definition {
	t.Helper()
	def := &Definition{}
	require.NoError(t, yaml.Unmarshal([]byte(doc), def))
	return def
}

func TestNormalizeVisibility(t *testing.T) {
	t.Parallel()
	n := NewNormalizer()

	def := decode(t, `
model: users
table: users
fields:
  id:
    type: integer
    readonly: true
    visibility: list
  name: string
  password:
    type: password
    visibility: form
  secret:
    type: string
    visibility: hidden
  bio:
    type: text
    visibility: form,detail
`)
	n.Normalize(def)

	id := def.Fields.Get("id")
	assert.Equal(t, []string{ContextList}, id.ShowIn)
	assert.True(t, id.IsListable())
	assert.False(t, id.IsEditable())
	assert.False(t, id.IsViewable())

	// No visibility means visible everywhere; readonly false so editable.
	name := def.Fields.Get("name")
	assert.ElementsMatch(t, []string{ContextList, ContextForm, ContextDetail}, name.ShowIn)
	assert.True(t, name.IsListable())
	assert.True(t, name.IsEditable())
	assert.True(t, name.IsViewable())

	password := def.Fields.Get("password")
	assert.False(t, password.IsListable())
	assert.True(t, password.IsEditable())

	secret := def.Fields.Get("secret")
	assert.False(t, secret.IsListable())
	assert.False(t, secret.IsEditable())
	assert.False(t, secret.IsViewable())

	bio := def.Fields.Get("bio")
	assert.Equal(t, []string{ContextForm, ContextDetail}, bio.ShowIn)
	assert.True(t, bio.IsEditable())
	assert.True(t, bio.IsViewable())
	assert.False(t, bio.IsListable())
}

func TestNormalizeReadonlyNeverEditable(t *testing.T) {
	t.Parallel()
	def := decode(t, `
model: users
table: users
fields:
  created_at:
    type: datetime
    readonly: true
`)
	NewNormalizer().Normalize(def)
	f := def.Fields.Get("created_at")
	assert.False(t, f.IsEditable())
	assert.True(t, f.IsListable())
}

func TestNormalizeExplicitBooleansWin(t *testing.T) {
	t.Parallel()
	def := decode(t, `
model: users
table: users
fields:
  name:
    type: string
    visibility: hidden
    listable: true
`)
	NewNormalizer().Normalize(def)
	f := def.Fields.Get("name")
	assert.True(t, f.IsListable(), "explicit listable beats the visibility shorthand")
	assert.False(t, f.IsEditable())
}

func TestNormalizeLabels(t *testing.T) {
	t.Parallel()
	def := decode(t, `
model: sales_orders
table: sales_orders
fields:
  customer_name: string
  total:
    type: decimal
    label: Grand total
`)
	NewNormalizer().Normalize(def)

	assert.Equal(t, "Sales orders", def.Title)
	assert.Equal(t, "Customer name", def.Fields.Get("customer_name").Label)
	assert.Equal(t, "Grand total", def.Fields.Get("total").Label)
}

func TestNormalizeLookup(t *testing.T) {
	t.Parallel()
	def := decode(t, `
model: orders
table: orders
fields:
  customer_id:
    type: integer
    lookup: customers.name
  agent_id:
    type: integer
    lookup:
      model: agents
      key_field: agent_code
      display_field: full_name
`)
	NewNormalizer().Normalize(def)

	customer := def.Fields.Get("customer_id").Lookup
	require.NotNil(t, customer)
	assert.Equal(t, "customers", customer.Model)
	assert.Equal(t, "id", customer.KeyField, "shorthand defaults the key field")
	assert.Equal(t, "name", customer.DisplayField)

	agent := def.Fields.Get("agent_id").Lookup
	require.NotNil(t, agent)
	assert.Equal(t, "agent_code", agent.KeyField)
}

func TestNormalizeToggle(t *testing.T) {
	t.Parallel()
	def := decode(t, `
model: users
table: users
fields:
  active:
    type: boolean
    toggle: true
  verified:
    type: boolean
    toggle:
      on: {label: Verified, icon: check}
      off: {label: Unverified}
`)
	NewNormalizer().Normalize(def)

	active := def.Fields.Get("active").Toggle
	require.NotNil(t, active)
	assert.Equal(t, ToggleState{Label: "On", Icon: "toggle-on"}, active.On)
	assert.Equal(t, ToggleState{Label: "Off", Icon: "toggle-off"}, active.Off)

	verified := def.Fields.Get("verified").Toggle
	assert.Equal(t, ToggleState{Label: "Verified", Icon: "check"}, verified.On)
	assert.Equal(t, ToggleState{Label: "Unverified", Icon: "toggle-off"}, verified.Off)
}

func TestNormalizeToggleFalseDropped(t *testing.T) {
	t.Parallel()
	def := decode(t, `
model: users
table: users
fields:
  active:
    type: boolean
    toggle: false
`)
	NewNormalizer().Normalize(def)
	assert.Nil(t, def.Fields.Get("active").Toggle)
}

func TestNormalizeSyncFalseDropped(t *testing.T) {
	t.Parallel()
	def := decode(t, `
model: orders
table: orders
fields:
  id: integer
relationships:
  - name: items
    type: many_to_many
    model: items
    pivot_table: order_items
    foreign_key: order_id
    related_key: item_id
    actions:
      on_update:
        sync: false
`)
	NewNormalizer().Normalize(def)
	assert.Nil(t, def.Relationships[0].Actions[OnUpdate].Sync)
}

func TestNormalizeSyncFieldDefault(t *testing.T) {
	t.Parallel()
	def := decode(t, `
model: orders
table: orders
fields:
  id: integer
relationships:
  - name: items
    type: many_to_many
    model: items
    pivot_table: order_items
    foreign_key: order_id
    related_key: item_id
    actions:
      on_update:
        sync: true
  - name: tags
    type: many_to_many
    model: tags
    pivot_table: order_tags
    foreign_key: order_id
    related_key: tag_id
    actions:
      on_update:
        sync:
          field: tag_list
`)
	NewNormalizer().Normalize(def)

	assert.Equal(t, "items_ids", def.Relationships[0].Actions[OnUpdate].Sync.Field)
	assert.Equal(t, "tag_list", def.Relationships[1].Actions[OnUpdate].Sync.Field)
}

// TestNormalizeIdempotent is the round-trip property: normalizing an
// already-normalized definition is a no-op.
func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()
	n := NewNormalizer()

	docs := []string{
		usersYAML,
		`
model: orders
table: orders
soft_delete: true
fields:
  id:
    type: integer
    visibility: list
  status:
    type: string
    lookup: statuses.label
  active:
    type: boolean
    toggle: true
  notes:
    type: text
    visibility: hidden
relationships:
  - name: items
    type: many_to_many
    model: items
    pivot_table: order_items
    foreign_key: order_id
    related_key: item_id
    actions:
      on_update:
        sync: true
details:
  - model: order_notes
    foreign_key: order_id
`,
	}
	for _, doc := range docs {
		def := decode(t, doc)
		once := n.Normalize(def).Clone()
		twice := n.Normalize(def.Clone())
		assert.Equal(t, once, twice)
	}
}
