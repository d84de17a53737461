package schema

import (
	"fmt"

	"github.com/dyntab/dyntab"
	"github.com/dyntab/dyntab/dialect/sql"
)

// Validator enforces the required document structure before any other
// component trusts a definition. It runs before normalization and
// caching so malformed documents are never cached.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator { return &Validator{} }

// Validate checks def against the structural rules and the model name
// it was requested under. Any violation is a SchemaValidationError.
func (v *Validator) Validate(def *Definition, requestedModel string) error {
	if def.Model == "" {
		return dyntab.NewSchemaValidationError(requestedModel, "model", "is required")
	}
	if def.Model != requestedModel {
		return dyntab.NewSchemaValidationError(requestedModel, "model",
			fmt.Sprintf("document declares %q, loaded as %q", def.Model, requestedModel))
	}
	if def.Table == "" {
		return dyntab.NewSchemaValidationError(def.Model, "table", "is required")
	}
	if !sql.IsValidIdentifier(def.Table) {
		return dyntab.NewSchemaValidationError(def.Model, "table",
			fmt.Sprintf("%q is not a valid identifier", def.Table))
	}
	if !sql.IsValidIdentifier(def.PrimaryKey) {
		return dyntab.NewSchemaValidationError(def.Model, "primary_key",
			fmt.Sprintf("%q is not a valid identifier", def.PrimaryKey))
	}
	if def.PrimaryKeyType != PKInt && def.PrimaryKeyType != PKUUID {
		return dyntab.NewSchemaValidationError(def.Model, "primary_key_type",
			fmt.Sprintf("unknown kind %q", def.PrimaryKeyType))
	}
	if len(def.Fields) == 0 {
		return dyntab.NewSchemaValidationError(def.Model, "fields", "must not be empty")
	}
	for _, f := range def.Fields {
		if err := v.validateField(def.Model, f); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(def.Relationships))
	for _, r := range def.Relationships {
		if err := v.validateRelationship(def.Model, r); err != nil {
			return err
		}
		if seen[r.Name] {
			return dyntab.NewSchemaValidationError(def.Model, r.Name, "duplicate relationship name")
		}
		seen[r.Name] = true
	}
	for _, d := range def.Details {
		if d.Model == "" {
			return dyntab.NewSchemaValidationError(def.Model, "details", "entry missing model")
		}
		if d.ForeignKey == "" || !sql.IsValidIdentifier(d.ForeignKey) {
			return dyntab.NewSchemaValidationError(def.Model, d.Model, "detail foreign_key missing or invalid")
		}
		if mode := d.Mode(); mode != CascadeAuto && mode != CascadeHard {
			return dyntab.NewSchemaValidationError(def.Model, d.Model,
				fmt.Sprintf("unknown cascade_delete_mode %q", mode))
		}
	}
	return nil
}

func (v *Validator) validateField(model string, f *Field) error {
	if f.Type == "" {
		return dyntab.NewSchemaValidationError(model, f.Name, "missing type")
	}
	if !fieldTypes[f.Type] {
		return dyntab.NewSchemaValidationError(model, f.Name,
			fmt.Sprintf("unknown type %q", f.Type))
	}
	if !sql.IsValidIdentifier(f.Name) {
		return dyntab.NewSchemaValidationError(model, f.Name, "not a valid column identifier")
	}
	return nil
}

func (v *Validator) validateRelationship(model string, r *Relationship) error {
	if r.Name == "" {
		return dyntab.NewSchemaValidationError(model, "relationships", "entry missing name")
	}
	if r.Model == "" {
		return dyntab.NewSchemaValidationError(model, r.Name, "missing related model")
	}
	switch r.Type {
	case ManyToMany:
		for col, val := range map[string]string{
			"pivot_table": r.PivotTable,
			"foreign_key": r.ForeignKey,
			"related_key": r.RelatedKey,
		} {
			if val == "" || !sql.IsValidIdentifier(val) {
				return dyntab.NewSchemaValidationError(model, r.Name,
					fmt.Sprintf("%s missing or invalid", col))
			}
		}
	case ManyToManyThrough:
		for col, val := range map[string]string{
			"through":            r.Through,
			"first_pivot_table":  r.FirstPivotTable,
			"first_foreign_key":  r.FirstForeignKey,
			"first_related_key":  r.FirstRelatedKey,
			"second_pivot_table": r.SecondPivotTable,
			"second_foreign_key": r.SecondForeignKey,
			"second_related_key": r.SecondRelatedKey,
		} {
			if val == "" || !sql.IsValidIdentifier(val) {
				return dyntab.NewSchemaValidationError(model, r.Name,
					fmt.Sprintf("%s missing or invalid", col))
			}
		}
	default:
		return dyntab.NewSchemaValidationError(model, r.Name,
			fmt.Sprintf("unknown relationship type %q", r.Type))
	}
	for event := range r.Actions {
		switch event {
		case OnCreate, OnUpdate, OnDelete:
		default:
			return dyntab.NewSchemaValidationError(model, r.Name,
				fmt.Sprintf("unknown lifecycle event %q", event))
		}
	}
	return nil
}
