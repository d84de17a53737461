package dyntab

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common failure classes.
var (
	// ErrSchemaNotFound is returned when no schema document resolves for a model.
	ErrSchemaNotFound = errors.New("dyntab: schema not found")

	// ErrSchemaInvalid is returned when a schema document violates the
	// required structure (missing fields, model mismatch, malformed fields).
	ErrSchemaInvalid = errors.New("dyntab: schema invalid")

	// ErrRelationship is returned when a relationship mutation
	// (attach/sync/detach) fails against the store.
	ErrRelationship = errors.New("dyntab: relationship processing failed")

	// ErrCascade is returned when a child deletion fails mid-cascade.
	ErrCascade = errors.New("dyntab: cascade delete failed")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("dyntab: row not found")
)

// SchemaNotFoundError reports that no schema document resolved for a
// model under the requested connection.
type SchemaNotFoundError struct {
	Model      string
	Connection string
	// Paths lists every location probed while resolving the document.
	Paths []string
}

// Error returns the error string.
func (e *SchemaNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dyntab: schema %q not found", e.Model)
	if e.Connection != "" {
		fmt.Fprintf(&b, " (connection=%s)", e.Connection)
	}
	if len(e.Paths) > 0 {
		fmt.Fprintf(&b, ": tried %s", strings.Join(e.Paths, ", "))
	}
	return b.String()
}

// Is reports whether the target error matches SchemaNotFoundError.
// This allows errors.Is(err, ErrSchemaNotFound) to return true.
func (e *SchemaNotFoundError) Is(err error) bool {
	return err == ErrSchemaNotFound
}

// NewSchemaNotFoundError returns a new SchemaNotFoundError for the given model.
func NewSchemaNotFoundError(model, connection string, paths ...string) *SchemaNotFoundError {
	return &SchemaNotFoundError{Model: model, Connection: connection, Paths: paths}
}

// IsSchemaNotFound returns true if the error is a SchemaNotFoundError.
func IsSchemaNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaNotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrSchemaNotFound)
}

// SchemaValidationError reports a structural violation in a schema
// document. Field names the offending field when one is identifiable.
type SchemaValidationError struct {
	Model  string
	Field  string
	Reason string
}

// Error returns the error string.
func (e *SchemaValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("dyntab: schema %q invalid: field %q: %s", e.Model, e.Field, e.Reason)
	}
	return fmt.Sprintf("dyntab: schema %q invalid: %s", e.Model, e.Reason)
}

// Is reports whether the target error matches SchemaValidationError.
// This allows errors.Is(err, ErrSchemaInvalid) to return true.
func (e *SchemaValidationError) Is(err error) bool {
	return err == ErrSchemaInvalid
}

// NewSchemaValidationError returns a new SchemaValidationError for the given model.
func NewSchemaValidationError(model, field, reason string) *SchemaValidationError {
	return &SchemaValidationError{Model: model, Field: field, Reason: reason}
}

// IsSchemaValidation returns true if the error is a SchemaValidationError.
func IsSchemaValidation(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaValidationError
	return errors.As(err, &e) || errors.Is(err, ErrSchemaInvalid)
}

// RelationshipError reports a failed attach/sync/detach mutation.
// It wraps the underlying store error so driver-level classification
// (unique/foreign-key violations) still works through the chain.
type RelationshipError struct {
	Model        string
	Relationship string
	Op           string // attach, sync or detach
	ID           any    // parent record id, if known
	Err          error
}

// Error returns the error string.
func (e *RelationshipError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dyntab: %s %s.%s failed", e.Op, e.Model, e.Relationship)
	if e.ID != nil {
		fmt.Fprintf(&b, " (id=%v)", e.ID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports whether the target error matches RelationshipError.
func (e *RelationshipError) Is(err error) bool {
	return err == ErrRelationship
}

// Unwrap returns the underlying store error.
func (e *RelationshipError) Unwrap() error { return e.Err }

// IsRelationship returns true if the error is a RelationshipError.
func IsRelationship(err error) bool {
	if err == nil {
		return false
	}
	var e *RelationshipError
	return errors.As(err, &e) || errors.Is(err, ErrRelationship)
}

// CascadeError reports a failed child deletion during a cascade.
// It wraps the underlying error, which may itself be a CascadeError
// when the failure happened further down the tree.
type CascadeError struct {
	Model    string // parent model
	Child    string // child model whose deletion failed
	ParentID any
	Err      error
}

// Error returns the error string.
func (e *CascadeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dyntab: cascade delete of %s children of %s", e.Child, e.Model)
	if e.ParentID != nil {
		fmt.Fprintf(&b, " (id=%v)", e.ParentID)
	}
	b.WriteString(" failed")
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports whether the target error matches CascadeError.
func (e *CascadeError) Is(err error) bool {
	return err == ErrCascade
}

// Unwrap returns the underlying error.
func (e *CascadeError) Unwrap() error { return e.Err }

// IsCascade returns true if the error is a CascadeError.
func IsCascade(err error) bool {
	if err == nil {
		return false
	}
	var e *CascadeError
	return errors.As(err, &e) || errors.Is(err, ErrCascade)
}

// NotFoundError reports that a requested row does not exist.
type NotFoundError struct {
	Model string
	ID    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("dyntab: %s not found (id=%v)", e.Model, e.ID)
	}
	return fmt.Sprintf("dyntab: %s not found", e.Model)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}
