// Package item provides the foundational data model for itemsync.
//
// This package contains type definitions only. All other internal packages
// import item; item imports nothing internal. This keeps the data model the
// bottom layer with no circular dependencies.
//
// Key design constraints:
//   - An item is an opaque int64 ID; all semantics live in attribute values
//   - Values are a sealed set of types (no floats, no arbitrary structs)
//   - Set values are normalized (sorted, de-duplicated) at construction
//   - "No value" (unset) is distinct from a stored Null
//   - Canonical encoding is the only persisted form of a value
package item
