package model

import (
	"context"
	"time"

	"github.com/dyntab/dyntab/dialect"
	"github.com/dyntab/dyntab/schema"
)

// ProcessActions runs the pivot mutations declared for one lifecycle
// event against every relationship of the model, on the given
// transaction. record is the primary row after the write; input is
// the raw operation input (sync reads its id list from there). Store
// errors propagate so the caller rolls back; malformed instructions
// are logged and skipped.
func (m *Model) ProcessActions(ctx context.Context, tx dialect.Tx, event string, record, input map[string]any) error {
	parentID := record[m.pk]
	for _, rel := range m.def.Relationships {
		acts := rel.Actions[event]
		if acts == nil {
			continue
		}
		q, err := m.Relationship(rel.Name)
		if err != nil {
			return err
		}
		q.Of(parentID).WithTx(tx)
		for _, attach := range acts.Attach {
			if attach.RelatedID == nil {
				m.log.Warn("attach instruction without related_id skipped",
					"model", m.def.Model, "relationship", rel.Name, "event", event)
				continue
			}
			if err := q.Attach(ctx, attach.RelatedID, m.substitute(ctx, attach.PivotData)); err != nil {
				return err
			}
		}
		if acts.Sync != nil && event == schema.OnUpdate {
			if err := m.processSync(ctx, q, rel, acts.Sync, input); err != nil {
				return err
			}
		}
		if acts.Detach != nil {
			if err := m.processDetach(ctx, q, rel, acts.Detach, event); err != nil {
				return err
			}
		}
	}
	return nil
}

// processSync replaces the pivot set from the configured input field.
// An absent field skips the sync; a present field that is not an id
// list is a warning.
func (m *Model) processSync(ctx context.Context, q *RelationshipQuery, rel *schema.Relationship, s *schema.SyncInstruction, input map[string]any) error {
	field := s.Field
	if field == "" {
		field = rel.Name + "_ids"
	}
	raw, ok := input[field]
	if !ok {
		return nil
	}
	ids, ok := coerceIDs(raw)
	if !ok {
		m.log.Warn("sync field is not an id list, skipped",
			"model", m.def.Model, "relationship", rel.Name, "field", field)
		return nil
	}
	return q.Sync(ctx, ids)
}

func (m *Model) processDetach(ctx context.Context, q *RelationshipQuery, rel *schema.Relationship, d *schema.DetachInstruction, event string) error {
	switch {
	case d.Invalid:
		m.log.Warn("detach instruction is neither \"all\" nor an id list, skipped",
			"model", m.def.Model, "relationship", rel.Name, "event", event)
		return nil
	case d.All:
		return q.DetachAll(ctx)
	default:
		return q.Detach(ctx, d.IDs...)
	}
}

// substitute resolves pivot-data placeholders at execution time:
// "now" becomes the current timestamp, "current_date" the current
// date, "current_user" the acting identity (or nil without an actor).
func (m *Model) substitute(ctx context.Context, pivot map[string]any) map[string]any {
	if len(pivot) == 0 {
		return nil
	}
	out := make(map[string]any, len(pivot))
	for k, v := range pivot {
		switch v {
		case "now":
			out[k] = time.Now()
		case "current_date":
			out[k] = time.Now().Format("2006-01-02")
		case "current_user":
			if m.actor != nil {
				out[k] = m.actor(ctx)
			} else {
				out[k] = nil
			}
		default:
			out[k] = v
		}
	}
	return out
}

// coerceIDs converts the id list shapes decoders produce into []any.
func coerceIDs(v any) ([]any, bool) {
	switch vs := v.(type) {
	case []any:
		return vs, true
	case []int:
		out := make([]any, len(vs))
		for i, id := range vs {
			out[i] = id
		}
		return out, true
	case []int64:
		out := make([]any, len(vs))
		for i, id := range vs {
			out[i] = id
		}
		return out, true
	case []float64:
		out := make([]any, len(vs))
		for i, id := range vs {
			out[i] = id
		}
		return out, true
	case []string:
		out := make([]any, len(vs))
		for i, id := range vs {
			out[i] = id
		}
		return out, true
	}
	return nil, false
}
