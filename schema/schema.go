// Package schema loads, validates, normalizes and projects the
// declarative table documents the engine runs on. Service is the only
// entry point callers are expected to use; the loader, validator,
// normalizer, filter, action manager and translator it composes are
// exported for testing and advanced embedding.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field type enum. Unknown types are rejected by the validator.
const (
	TypeString   = "string"
	TypeInteger  = "integer"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeDateTime = "datetime"
	TypeText     = "text"
	TypeJSON     = "json"
	TypeFloat    = "float"
	TypeDecimal  = "decimal"
	TypeEmail    = "email"
	TypePassword = "password"
)

// fieldTypes is the set of accepted field types.
var fieldTypes = map[string]bool{
	TypeString: true, TypeInteger: true, TypeBoolean: true,
	TypeDate: true, TypeDateTime: true, TypeText: true,
	TypeJSON: true, TypeFloat: true, TypeDecimal: true,
	TypeEmail: true, TypePassword: true,
}

// Primary key value kinds.
const (
	PKInt  = "int"
	PKUUID = "uuid"
)

// Display contexts a schema can be projected into.
const (
	ContextFull   = "full"
	ContextList   = "list"
	ContextForm   = "form"
	ContextDetail = "detail"
	ContextMeta   = "meta"
)

// Definition is the root schema document describing one table: its
// columns, relationships to other tables and presentation rules.
type Definition struct {
	Model          string            `yaml:"model" msgpack:"model"`
	Table          string            `yaml:"table" msgpack:"table"`
	Title          string            `yaml:"title,omitempty" msgpack:"title"`
	PrimaryKey     string            `yaml:"primary_key,omitempty" msgpack:"primary_key"`
	PrimaryKeyType string            `yaml:"primary_key_type,omitempty" msgpack:"primary_key_type"`
	Timestamps     *bool             `yaml:"timestamps,omitempty" msgpack:"timestamps"`
	SoftDelete     bool              `yaml:"soft_delete,omitempty" msgpack:"soft_delete"`
	Connection     string            `yaml:"connection,omitempty" msgpack:"connection"`
	Permissions    map[string]string `yaml:"permissions,omitempty" msgpack:"permissions"`
	DefaultSort    string            `yaml:"default_sort,omitempty" msgpack:"default_sort"`
	Fields         Fields            `yaml:"fields" msgpack:"fields"`
	Relationships  []*Relationship   `yaml:"relationships,omitempty" msgpack:"relationships"`
	Details        []*Detail         `yaml:"details,omitempty" msgpack:"details"`
	Actions        []*Action         `yaml:"actions,omitempty" msgpack:"actions"`
}

// HasTimestamps reports whether created_at/updated_at columns are
// maintained. Defaults to true when the document omits the flag.
func (d *Definition) HasTimestamps() bool {
	return d.Timestamps == nil || *d.Timestamps
}

// Clone returns a deep copy of the definition. Callers mutating a
// definition handed out by the cache (e.g. for translation) must work
// on a clone.
func (d *Definition) Clone() *Definition {
	c := *d
	c.Timestamps = cloneBool(d.Timestamps)
	if d.Permissions != nil {
		c.Permissions = make(map[string]string, len(d.Permissions))
		for k, v := range d.Permissions {
			c.Permissions[k] = v
		}
	}
	c.Fields = make(Fields, len(d.Fields))
	for i, f := range d.Fields {
		c.Fields[i] = f.Clone()
	}
	c.Relationships = make([]*Relationship, len(d.Relationships))
	for i, r := range d.Relationships {
		c.Relationships[i] = r.Clone()
	}
	c.Details = make([]*Detail, len(d.Details))
	for i, dt := range d.Details {
		dc := *dt
		dc.CascadeDelete = cloneBool(dt.CascadeDelete)
		c.Details[i] = &dc
	}
	c.Actions = make([]*Action, len(d.Actions))
	for i, a := range d.Actions {
		ac := *a
		ac.Scope = append([]string(nil), a.Scope...)
		if a.Confirm != nil {
			cf := *a.Confirm
			ac.Confirm = &cf
		}
		c.Actions[i] = &ac
	}
	return &c
}

// Relationship returns the named relationship, or nil.
func (d *Definition) Relationship(name string) *Relationship {
	for _, r := range d.Relationships {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Field is one column definition, keyed by name in the document's
// fields mapping.
type Field struct {
	Name       string   `yaml:"-" msgpack:"name"`
	Type       string   `yaml:"type" msgpack:"type"`
	Label      string   `yaml:"label,omitempty" msgpack:"label"`
	Required   bool     `yaml:"required,omitempty" msgpack:"required"`
	ReadOnly   bool     `yaml:"readonly,omitempty" msgpack:"readonly"`
	Sortable   bool     `yaml:"sortable,omitempty" msgpack:"sortable"`
	Default    any      `yaml:"default,omitempty" msgpack:"default"`
	Validation []string `yaml:"validation,omitempty" msgpack:"validation"`

	// Visibility is the author-facing shorthand; ShowIn is its
	// canonical expansion. The per-context booleans are explicit
	// after normalization.
	Visibility string   `yaml:"visibility,omitempty" msgpack:"visibility"`
	ShowIn     []string `yaml:"show_in,omitempty,flow" msgpack:"show_in"`
	Listable   *bool    `yaml:"listable,omitempty" msgpack:"listable"`
	Editable   *bool    `yaml:"editable,omitempty" msgpack:"editable"`
	Viewable   *bool    `yaml:"viewable,omitempty" msgpack:"viewable"`
	Filterable *bool    `yaml:"filterable,omitempty" msgpack:"filterable"`

	Lookup *Lookup `yaml:"lookup,omitempty" msgpack:"lookup"`
	Toggle *Toggle `yaml:"toggle,omitempty" msgpack:"toggle"`
}

// IsListable reports the normalized listable flag.
func (f *Field) IsListable() bool { return f.Listable != nil && *f.Listable }

// IsEditable reports the normalized editable flag.
func (f *Field) IsEditable() bool { return f.Editable != nil && *f.Editable }

// IsViewable reports the normalized viewable flag.
func (f *Field) IsViewable() bool { return f.Viewable != nil && *f.Viewable }

// IsFilterable reports the normalized filterable flag.
func (f *Field) IsFilterable() bool { return f.Filterable != nil && *f.Filterable }

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	c := *f
	c.Validation = append([]string(nil), f.Validation...)
	c.ShowIn = append([]string(nil), f.ShowIn...)
	c.Listable = cloneBool(f.Listable)
	c.Editable = cloneBool(f.Editable)
	c.Viewable = cloneBool(f.Viewable)
	c.Filterable = cloneBool(f.Filterable)
	if f.Lookup != nil {
		l := *f.Lookup
		c.Lookup = &l
	}
	if f.Toggle != nil {
		tg := *f.Toggle
		c.Toggle = &tg
	}
	return &c
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Fields is the ordered set of field definitions. Document order is
// preserved across decode, normalization and projection.
type Fields []*Field

// Get returns the named field, or nil.
func (fs Fields) Get(name string) *Field {
	for _, f := range fs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Names returns the field names in document order.
func (fs Fields) Names() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// UnmarshalYAML decodes the fields mapping preserving document order.
// Two input shapes are accepted per entry: a full field mapping, or
// the attribute shorthand `name: type`.
func (fs *Fields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("schema: fields must be a mapping, got %s", nodeKind(node))
	}
	out := make(Fields, 0, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		f := &Field{Name: keyNode.Value}
		switch valNode.Kind {
		case yaml.ScalarNode:
			// Attribute shorthand: `title: string`.
			f.Type = valNode.Value
		case yaml.MappingNode:
			if err := valNode.Decode(f); err != nil {
				return fmt.Errorf("schema: field %q: %w", f.Name, err)
			}
		default:
			return fmt.Errorf("schema: field %q: unsupported shape %s", f.Name, nodeKind(valNode))
		}
		out = append(out, f)
	}
	*fs = out
	return nil
}

// MarshalYAML encodes the fields back into a mapping in order.
func (fs Fields) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fs {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: f.Name}
		valNode := &yaml.Node{}
		if err := valNode.Encode(f); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

// Lookup marks a field as a reference to another model's display
// value. Authors may use the shorthand `lookup: model.display_field`
// or the full mapping form.
type Lookup struct {
	Model        string `yaml:"model" msgpack:"model"`
	KeyField     string `yaml:"key_field,omitempty" msgpack:"key_field"`
	DisplayField string `yaml:"display_field" msgpack:"display_field"`
}

// UnmarshalYAML accepts both the scalar shorthand and the mapping form.
func (l *Lookup) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		model, display, ok := cutDot(node.Value)
		if !ok {
			return fmt.Errorf("schema: lookup shorthand %q must be model.display_field", node.Value)
		}
		l.Model, l.DisplayField = model, display
		return nil
	}
	type plain Lookup
	return node.Decode((*plain)(l))
}

func cutDot(s string) (before, after string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], s[:i] != "" && s[i+1:] != ""
		}
	}
	return "", "", false
}

// Toggle is the on/off presentation of a boolean field. Authors may
// write `toggle: true` and let normalization fill labels and icons.
type Toggle struct {
	On  ToggleState `yaml:"on" msgpack:"on"`
	Off ToggleState `yaml:"off" msgpack:"off"`

	// Disabled records `toggle: false`; the normalizer drops the
	// toggle entirely.
	Disabled bool `yaml:"-" msgpack:"-"`
}

// ToggleState is one side of a boolean toggle.
type ToggleState struct {
	Label string `yaml:"label" msgpack:"label"`
	Icon  string `yaml:"icon" msgpack:"icon"`
}

// UnmarshalYAML accepts `toggle: true` as an empty specification.
func (t *Toggle) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return fmt.Errorf("schema: toggle must be a boolean or a mapping: %w", err)
		}
		t.Disabled = !enabled
		return nil
	}
	type plain Toggle
	return node.Decode((*plain)(t))
}

// Relationship kinds.
const (
	ManyToMany        = "many_to_many"
	ManyToManyThrough = "belongs_to_many_through"
)

// Lifecycle events that can carry relationship actions.
const (
	OnCreate = "on_create"
	OnUpdate = "on_update"
	OnDelete = "on_delete"
)

// Relationship declares a traversal from this table to another,
// either through one pivot table (many-to-many) or through two pivot
// tables via an intermediate model (two-hop).
type Relationship struct {
	Name  string `yaml:"name" msgpack:"name"`
	Type  string `yaml:"type" msgpack:"type"`
	Model string `yaml:"model" msgpack:"model"` // related model name

	// Many-to-many keys.
	PivotTable string `yaml:"pivot_table,omitempty" msgpack:"pivot_table"`
	ForeignKey string `yaml:"foreign_key,omitempty" msgpack:"foreign_key"`
	RelatedKey string `yaml:"related_key,omitempty" msgpack:"related_key"`

	// Two-hop keys. The first pivot links this table to the
	// intermediate model, the second links the intermediate model to
	// the related one.
	Through          string `yaml:"through,omitempty" msgpack:"through"`
	FirstPivotTable  string `yaml:"first_pivot_table,omitempty" msgpack:"first_pivot_table"`
	FirstForeignKey  string `yaml:"first_foreign_key,omitempty" msgpack:"first_foreign_key"`
	FirstRelatedKey  string `yaml:"first_related_key,omitempty" msgpack:"first_related_key"`
	SecondPivotTable string `yaml:"second_pivot_table,omitempty" msgpack:"second_pivot_table"`
	SecondForeignKey string `yaml:"second_foreign_key,omitempty" msgpack:"second_foreign_key"`
	SecondRelatedKey string `yaml:"second_related_key,omitempty" msgpack:"second_related_key"`

	// Actions maps a lifecycle event (on_create, on_update,
	// on_delete) to the pivot mutations it triggers.
	Actions map[string]*RelationshipActions `yaml:"actions,omitempty" msgpack:"actions"`
}

// Clone returns a deep copy of the relationship.
func (r *Relationship) Clone() *Relationship {
	c := *r
	if r.Actions != nil {
		c.Actions = make(map[string]*RelationshipActions, len(r.Actions))
		for event, acts := range r.Actions {
			if acts == nil {
				c.Actions[event] = nil
				continue
			}
			ac := &RelationshipActions{}
			for _, at := range acts.Attach {
				atc := *at
				if at.PivotData != nil {
					atc.PivotData = make(map[string]any, len(at.PivotData))
					for k, v := range at.PivotData {
						atc.PivotData[k] = v
					}
				}
				ac.Attach = append(ac.Attach, &atc)
			}
			if acts.Sync != nil {
				sc := *acts.Sync
				ac.Sync = &sc
			}
			if acts.Detach != nil {
				dc := *acts.Detach
				dc.IDs = append([]any(nil), acts.Detach.IDs...)
				ac.Detach = &dc
			}
			c.Actions[event] = ac
		}
	}
	return &c
}

// RelationshipActions holds the pivot mutations for one lifecycle event.
type RelationshipActions struct {
	Attach []*AttachInstruction `yaml:"attach,omitempty" msgpack:"attach"`
	Sync   *SyncInstruction     `yaml:"sync,omitempty" msgpack:"sync"`
	Detach *DetachInstruction   `yaml:"detach,omitempty" msgpack:"detach"`
}

// AttachInstruction attaches one related row with optional pivot data.
// Pivot data values may be the placeholders "now", "current_date" and
// "current_user", substituted at execution time.
type AttachInstruction struct {
	RelatedID any            `yaml:"related_id" msgpack:"related_id"`
	PivotData map[string]any `yaml:"pivot_data,omitempty" msgpack:"pivot_data"`
}

// SyncInstruction replaces the full pivot set from a field of the
// operation's input data. Field defaults to "<relationship>_ids".
type SyncInstruction struct {
	Field string `yaml:"field,omitempty" msgpack:"field"`

	// Disabled records `sync: false`; the normalizer drops the
	// instruction.
	Disabled bool `yaml:"-" msgpack:"-"`
}

// UnmarshalYAML accepts `sync: true` as "sync from the default field".
func (s *SyncInstruction) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var enabled bool
		if err := node.Decode(&enabled); err == nil {
			s.Disabled = !enabled
			return nil
		}
		// A scalar that is not a boolean is the field name.
		s.Field = node.Value
		return nil
	}
	type plain SyncInstruction
	return node.Decode((*plain)(s))
}

// DetachInstruction detaches either every related row ("all") or an
// explicit id list. Anything else is flagged invalid; the processor
// logs a warning and skips it rather than failing the operation.
type DetachInstruction struct {
	All     bool  `msgpack:"all"`
	IDs     []any `msgpack:"ids"`
	Invalid bool  `msgpack:"invalid"`
}

// UnmarshalYAML accepts "all" or a sequence of ids.
func (d *DetachInstruction) UnmarshalYAML(node *yaml.Node) error {
	switch {
	case node.Kind == yaml.ScalarNode && node.Value == "all":
		d.All = true
	case node.Kind == yaml.SequenceNode:
		return node.Decode(&d.IDs)
	default:
		d.Invalid = true
	}
	return nil
}

// MarshalYAML encodes the instruction back into its document form.
func (d DetachInstruction) MarshalYAML() (any, error) {
	if d.All {
		return "all", nil
	}
	return d.IDs, nil
}

// Detail declares a child table whose rows follow this table's
// lifecycle: they are deleted (soft or hard) whenever the parent row
// is deleted, unless cascade_delete is false.
type Detail struct {
	Model      string `yaml:"model" msgpack:"model"`
	ForeignKey string `yaml:"foreign_key" msgpack:"foreign_key"`
	// CascadeDelete defaults to true when omitted.
	CascadeDelete *bool `yaml:"cascade_delete,omitempty" msgpack:"cascade_delete"`
	// CascadeDeleteMode is "auto" (follow the parent's soft/hard
	// choice when the child supports it) or "hard" (always physical).
	CascadeDeleteMode string `yaml:"cascade_delete_mode,omitempty" msgpack:"cascade_delete_mode"`
}

// Cascade delete modes.
const (
	CascadeAuto = "auto"
	CascadeHard = "hard"
)

// Cascades reports whether the child follows the parent's deletion.
func (d *Detail) Cascades() bool {
	return d.CascadeDelete == nil || *d.CascadeDelete
}

// Mode returns the cascade mode, defaulting to auto.
func (d *Detail) Mode() string {
	if d.CascadeDeleteMode == "" {
		return CascadeAuto
	}
	return d.CascadeDeleteMode
}

// Action is one operation offered on the model: the create/edit/delete
// defaults, toggles on boolean fields, or custom operations.
type Action struct {
	Name    string   `yaml:"name" msgpack:"name"`
	Type    string   `yaml:"type,omitempty" msgpack:"type"`
	Label   string   `yaml:"label,omitempty" msgpack:"label"`
	Field   string   `yaml:"field,omitempty" msgpack:"field"` // toggled field, for toggle actions
	Scope   []string `yaml:"scope,omitempty,flow" msgpack:"scope"`
	Confirm *Confirm `yaml:"confirm,omitempty" msgpack:"confirm"`
}

// Action types.
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionToggle = "toggle"
)

// Confirm is a confirmation prompt shown before a destructive or
// toggling action runs.
type Confirm struct {
	Title   string `yaml:"title,omitempty" msgpack:"title"`
	Message string `yaml:"message,omitempty" msgpack:"message"`
}

// InScope reports whether the action applies to the given scope.
// An action with no explicit scope applies everywhere.
func (a *Action) InScope(scope string) bool {
	if len(a.Scope) == 0 {
		return true
	}
	for _, s := range a.Scope {
		if s == scope {
			return true
		}
	}
	return false
}
