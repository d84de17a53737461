package schema

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// Normalizer rewrites the accepted shorthand input styles into the one
// canonical internal shape the rest of the engine consumes. It is
// idempotent: normalizing an already-normalized definition changes
// nothing.
type Normalizer struct{}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer { return &Normalizer{} }

// Normalize canonicalizes def in place and returns it.
func (n *Normalizer) Normalize(def *Definition) *Definition {
	if def.Title == "" {
		def.Title = inflect.Humanize(def.Model)
	}
	for _, f := range def.Fields {
		n.normalizeField(f)
	}
	for _, r := range def.Relationships {
		n.normalizeRelationship(r)
	}
	for _, d := range def.Details {
		if d.CascadeDeleteMode == "" {
			d.CascadeDeleteMode = CascadeAuto
		}
	}
	return def
}

func (n *Normalizer) normalizeField(f *Field) {
	if f.Label == "" {
		f.Label = inflect.Humanize(f.Name)
	}
	n.expandVisibility(f)
	n.expandLookup(f)
	n.expandToggle(f)
}

// expandVisibility turns the single visibility flag into an explicit
// show_in set, then derives the per-context booleans from it. Booleans
// the author set explicitly win over the derived values.
func (n *Normalizer) expandVisibility(f *Field) {
	if len(f.ShowIn) == 0 {
		switch f.Visibility {
		case "", "all":
			f.ShowIn = []string{ContextList, ContextForm, ContextDetail}
		case "hidden":
			f.ShowIn = []string{}
		default:
			// A single context name or a comma-separated list.
			for _, c := range strings.Split(f.Visibility, ",") {
				if c = strings.TrimSpace(c); c != "" {
					f.ShowIn = append(f.ShowIn, c)
				}
			}
		}
	}
	shown := make(map[string]bool, len(f.ShowIn))
	for _, c := range f.ShowIn {
		shown[c] = true
	}
	if f.Listable == nil {
		v := shown[ContextList]
		f.Listable = &v
	}
	if f.Editable == nil {
		v := shown[ContextForm] && !f.ReadOnly
		f.Editable = &v
	}
	if f.Viewable == nil {
		v := shown[ContextDetail]
		f.Viewable = &v
	}
	if f.Filterable == nil {
		// Filtering defaults to the listable columns of textual types.
		v := *f.Listable && isTextual(f.Type)
		f.Filterable = &v
	}
}

func isTextual(typ string) bool {
	switch typ {
	case TypeString, TypeText, TypeEmail:
		return true
	}
	return false
}

// expandLookup fills the structured lookup descriptor the shorthand
// form leaves implicit.
func (n *Normalizer) expandLookup(f *Field) {
	if f.Lookup == nil {
		return
	}
	if f.Lookup.KeyField == "" {
		f.Lookup.KeyField = "id"
	}
}

// expandToggle fills the on/off labels and icons of boolean toggles.
func (n *Normalizer) expandToggle(f *Field) {
	if f.Toggle != nil && f.Toggle.Disabled {
		f.Toggle = nil
	}
	if f.Toggle == nil || f.Type != TypeBoolean {
		return
	}
	if f.Toggle.On.Label == "" {
		f.Toggle.On.Label = "On"
	}
	if f.Toggle.On.Icon == "" {
		f.Toggle.On.Icon = "toggle-on"
	}
	if f.Toggle.Off.Label == "" {
		f.Toggle.Off.Label = "Off"
	}
	if f.Toggle.Off.Icon == "" {
		f.Toggle.Off.Icon = "toggle-off"
	}
}

func (n *Normalizer) normalizeRelationship(r *Relationship) {
	for _, acts := range r.Actions {
		if acts == nil {
			continue
		}
		if acts.Sync != nil && acts.Sync.Disabled {
			acts.Sync = nil
		}
		if acts.Sync != nil && acts.Sync.Field == "" {
			acts.Sync.Field = r.Name + "_ids"
		}
	}
}
