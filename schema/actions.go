package schema

import "github.com/go-openapi/inflect"

// ActionManager computes the operations available on a model: the
// create/edit/delete defaults when the document declares none,
// normalized toggle actions, and per-scope filtering so list and
// detail views only see what applies to them.
type ActionManager struct{}

// NewActionManager returns an ActionManager.
func NewActionManager() *ActionManager { return &ActionManager{} }

// Defaults fills def.Actions with the standard CRUD set when the
// document declares no actions, and normalizes the declared ones
// otherwise. Called by the service after normalization.
func (m *ActionManager) Defaults(def *Definition) {
	if len(def.Actions) == 0 {
		def.Actions = m.defaultActions(def)
	}
	for _, a := range def.Actions {
		m.normalize(def, a)
	}
}

func (m *ActionManager) defaultActions(def *Definition) []*Action {
	singular := inflect.Humanize(inflect.Singularize(def.Model))
	return []*Action{
		{
			Name:  ActionCreate,
			Type:  ActionCreate,
			Label: "New " + singular,
			Scope: []string{ContextList},
		},
		{
			Name:  ActionEdit,
			Type:  ActionEdit,
			Label: "Edit",
			Scope: []string{ContextList, ContextDetail},
		},
		{
			Name:  ActionDelete,
			Type:  ActionDelete,
			Label: "Delete",
			Scope: []string{ContextList, ContextDetail},
			Confirm: &Confirm{
				Title:   "Delete " + singular + "?",
				Message: "This cannot be undone.",
			},
		},
	}
}

// normalize fills the gaps of a declared action: label from its name,
// a confirmation prompt on toggles and deletes.
func (m *ActionManager) normalize(def *Definition, a *Action) {
	if a.Label == "" {
		a.Label = inflect.Humanize(a.Name)
	}
	switch a.Type {
	case ActionToggle:
		if a.Confirm == nil {
			a.Confirm = &Confirm{
				Title:   a.Label + "?",
				Message: "Toggle " + inflect.Humanize(a.Field) + " for this " + inflect.Humanize(inflect.Singularize(def.Model)) + "?",
			}
		}
	case ActionDelete:
		if a.Confirm == nil {
			a.Confirm = &Confirm{
				Title:   a.Label + "?",
				Message: "This cannot be undone.",
			}
		}
	}
}

// For returns the actions applying to the given scope. An empty scope
// returns every action. Form views carry no actions.
func (m *ActionManager) For(def *Definition, scope string) []*Action {
	switch scope {
	case "":
		return def.Actions
	case ContextForm, ContextMeta:
		return nil
	}
	var out []*Action
	for _, a := range def.Actions {
		if a.InScope(scope) {
			out = append(out, a)
		}
	}
	return out
}
