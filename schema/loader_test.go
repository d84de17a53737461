package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyntab/dyntab"
)

// writeSchema drops a document into dir, creating connection
// subdirectories as needed.
func writeSchema(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const usersYAML = `
model: users
table: users
fields:
  id:
    type: integer
    readonly: true
    visibility: list
  name:
    type: string
    required: true
  email: string
`

func TestLoaderLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSchema(t, dir, "users.yaml", usersYAML)

	def, err := NewLoader(dir).Load("users", "")
	require.NoError(t, err)

	assert.Equal(t, "users", def.Model)
	assert.Equal(t, "users", def.Table)
	assert.Equal(t, []string{"id", "name", "email"}, def.Fields.Names(), "document order preserved")

	// Attribute shorthand decodes into a full field definition.
	email := def.Fields.Get("email")
	require.NotNil(t, email)
	assert.Equal(t, TypeString, email.Type)
}

func TestLoaderDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSchema(t, dir, "users.yaml", usersYAML)

	def, err := NewLoader(dir).Load("users", "")
	require.NoError(t, err)

	assert.Equal(t, "id", def.PrimaryKey)
	assert.Equal(t, PKInt, def.PrimaryKeyType)
	assert.True(t, def.HasTimestamps())
	assert.False(t, def.SoftDelete)
}

func TestLoaderExplicitFlagsWin(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSchema(t, dir, "notes.yml", `
model: notes
table: notes
primary_key: note_id
timestamps: false
soft_delete: true
fields:
  body: text
`)

	def, err := NewLoader(dir).Load("notes", "")
	require.NoError(t, err)
	assert.Equal(t, "note_id", def.PrimaryKey)
	assert.False(t, def.HasTimestamps())
	assert.True(t, def.SoftDelete)
}

func TestLoaderConnectionResolution(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSchema(t, dir, "users.yaml", usersYAML)
	writeSchema(t, dir, filepath.Join("tenant_a", "users.yaml"), `
model: users
table: tenant_users
fields:
  id: integer
`)

	l := NewLoader(dir)

	// The connection subdirectory shadows the default document.
	def, err := l.Load("users", "tenant_a")
	require.NoError(t, err)
	assert.Equal(t, "tenant_users", def.Table)

	// Unknown connections fall back to the default document.
	def, err = l.Load("users", "tenant_b")
	require.NoError(t, err)
	assert.Equal(t, "users", def.Table)
}

func TestLoaderJSONDocument(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSchema(t, dir, "items.json", `{
  "model": "items",
  "table": "items",
  "fields": {"id": {"type": "integer"}, "sku": {"type": "string"}}
}`)

	def, err := NewLoader(dir).Load("items", "")
	require.NoError(t, err)
	assert.Equal(t, "items", def.Model)
	assert.Equal(t, []string{"id", "sku"}, def.Fields.Names())
}

func TestLoaderNotFound(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := NewLoader(dir).Load("ghosts", "tenant_a")
	require.Error(t, err)
	assert.True(t, dyntab.IsSchemaNotFound(err))

	var nf *dyntab.SchemaNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghosts", nf.Model)
	assert.Equal(t, "tenant_a", nf.Connection)
	// Connection paths are probed before default ones.
	assert.Len(t, nf.Paths, 6)
	assert.Contains(t, nf.Paths[0], filepath.Join("tenant_a", "ghosts.yaml"))
}

func TestLoaderRejectsMalformedDocument(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeSchema(t, dir, "bad.yaml", `
model: bad
table: bad
fields:
  - not
  - a
  - mapping
`)

	_, err := NewLoader(dir).Load("bad", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields must be a mapping")
}
