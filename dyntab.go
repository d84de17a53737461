// Package dyntab is a schema-driven dynamic table engine. An operator
// describes a relational table in a declarative YAML/JSON document and
// the engine exposes it through read/write operations, relationship
// traversal and cascading lifecycle behavior, with no per-table code.
//
// The packages compose bottom-up:
//
//   - dialect, dialect/sql: database driver abstraction and a small
//     query builder over database/sql.
//   - schema: document loading, validation, normalization, context
//     projection, action defaulting and translation, orchestrated by
//     schema.Service.
//   - schema/cache: two-tier (in-process + shared store) cache of
//     normalized schema documents.
//   - model: a runtime-configured data-access object with generic
//     relationship accessors, pivot lifecycle actions and cascade
//     deletes.
//
// This package holds only the error taxonomy shared by all of them.
package dyntab
