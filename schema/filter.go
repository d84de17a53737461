package schema

import (
	"fmt"
	"strings"
)

// View is a context-specific projection of a normalized definition.
// Base metadata (model, title, permissions, sort, primary key) appears
// exactly once at the top level; for multi-context projections the
// per-context field sets live under Contexts and Fields stays nil.
type View struct {
	Model       string            `yaml:"model" msgpack:"model"`
	Title       string            `yaml:"title" msgpack:"title"`
	Table       string            `yaml:"table,omitempty" msgpack:"table"`
	PrimaryKey  string            `yaml:"primary_key" msgpack:"primary_key"`
	Permissions map[string]string `yaml:"permissions,omitempty" msgpack:"permissions"`
	DefaultSort string            `yaml:"default_sort,omitempty" msgpack:"default_sort"`
	SoftDelete  bool              `yaml:"soft_delete,omitempty" msgpack:"soft_delete"`

	Fields        Fields          `yaml:"fields,omitempty" msgpack:"fields"`
	Actions       []*Action       `yaml:"actions,omitempty" msgpack:"actions"`
	Relationships []*Relationship `yaml:"relationships,omitempty" msgpack:"relationships"`

	Contexts map[string]*ContextView `yaml:"contexts,omitempty" msgpack:"contexts"`
}

// ContextView is one entry of a multi-context projection: only the
// data that varies per context, never the base metadata.
type ContextView struct {
	Fields  Fields    `yaml:"fields" msgpack:"fields"`
	Actions []*Action `yaml:"actions,omitempty" msgpack:"actions"`
}

// Filter projects normalized definitions into context-specific views.
type Filter struct {
	actions *ActionManager
}

// NewFilter returns a Filter using the given action manager for
// per-scope action sets.
func NewFilter(actions *ActionManager) *Filter {
	return &Filter{actions: actions}
}

// ForContext projects def into the named context. An empty context or
// "full" returns everything; a comma-separated list returns the base
// metadata once plus one Contexts entry per named context.
func (fl *Filter) ForContext(def *Definition, context string) (*View, error) {
	context = strings.TrimSpace(context)
	if context == "" || context == ContextFull {
		v := fl.base(def)
		v.Table = def.Table
		v.Fields = cloneFields(def.Fields, keepAll, true)
		v.Actions = fl.actions.For(def, "")
		v.Relationships = def.Relationships
		return v, nil
	}
	if strings.Contains(context, ",") {
		v := fl.base(def)
		v.Contexts = make(map[string]*ContextView)
		for _, name := range strings.Split(context, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cv, err := fl.contextView(def, name)
			if err != nil {
				return nil, err
			}
			v.Contexts[name] = cv
		}
		return v, nil
	}
	cv, err := fl.contextView(def, context)
	if err != nil {
		return nil, err
	}
	v := fl.base(def)
	v.Fields = cv.Fields
	v.Actions = cv.Actions
	if context == ContextDetail {
		v.Relationships = def.Relationships
	}
	return v, nil
}

// contextView builds the field/action projection of one named context.
func (fl *Filter) contextView(def *Definition, context string) (*ContextView, error) {
	switch context {
	case ContextList:
		// Listings never need validation rules; strip them.
		return &ContextView{
			Fields:  cloneFields(def.Fields, (*Field).IsListable, false),
			Actions: fl.actions.For(def, ContextList),
		}, nil
	case ContextForm:
		return &ContextView{
			Fields:  cloneFields(def.Fields, (*Field).IsEditable, true),
			Actions: fl.actions.For(def, ContextForm),
		}, nil
	case ContextDetail:
		return &ContextView{
			Fields:  cloneFields(def.Fields, (*Field).IsViewable, true),
			Actions: fl.actions.For(def, ContextDetail),
		}, nil
	case ContextMeta:
		// Meta is base metadata only.
		return &ContextView{}, nil
	default:
		return nil, fmt.Errorf("schema: unknown context %q", context)
	}
}

func (fl *Filter) base(def *Definition) *View {
	return &View{
		Model:       def.Model,
		Title:       def.Title,
		PrimaryKey:  def.PrimaryKey,
		Permissions: def.Permissions,
		DefaultSort: def.DefaultSort,
		SoftDelete:  def.SoftDelete,
	}
}

func keepAll(*Field) bool { return true }

// cloneFields copies the fields passing keep, optionally retaining
// their validation rules.
func cloneFields(fs Fields, keep func(*Field) bool, withValidation bool) Fields {
	out := make(Fields, 0, len(fs))
	for _, f := range fs {
		if !keep(f) {
			continue
		}
		c := f.Clone()
		if !withValidation {
			c.Validation = nil
		}
		out = append(out, c)
	}
	return out
}

// RelatedModels returns the models a projection of def under the given
// context can reference: relationship targets and, for form/detail
// contexts, lookup sources of the projected fields.
func (fl *Filter) RelatedModels(def *Definition, context string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(model string) {
		if model != "" && model != def.Model && !seen[model] {
			seen[model] = true
			out = append(out, model)
		}
	}
	for _, r := range def.Relationships {
		add(r.Model)
	}
	for _, f := range def.Fields {
		if f.Lookup == nil {
			continue
		}
		switch context {
		case "", ContextFull, ContextForm, ContextDetail:
			add(f.Lookup.Model)
		default:
			if strings.Contains(context, ContextForm) || strings.Contains(context, ContextDetail) {
				add(f.Lookup.Model)
			}
		}
	}
	return out
}
