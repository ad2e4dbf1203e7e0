// Package model binds typed views onto raw, untyped payloads.
//
// A payload received from a transport (an HTTP body, a database row, a queue
// message, a websocket frame) is decoded into a raw store: a map[string]any,
// or a []any of such maps. Instead of indexing that store by hand, a program
// declares a Type listing the Fields it cares about and binds the store to a
// View. Reads and writes on the View go straight through to the raw store,
// applying the field's wrap (on read) and unwrap (on write) transforms.
//
// This package is responsible for:
//   - Declaring view types and their field accessor tables (`Define`, `Type.Extend`).
//   - Field specializations for nested views, lists of views, times, timestamps and UUIDs.
//   - Views over single mappings (`View`) and lazily wrapped sequences (`Sequence`).
//   - Deriving new view types with a restricted or extended field set (`View.Derive`).
//   - Extracting natural-identity criteria used by transports to build lookups
//     (`View.FilterCriteria`, `View.RawFilterCriteria`, `Type.StoreKey`).
//
// Views hold a direct reference to their raw store; nothing is copied on bind.
// Mutating one store through two views from different goroutines is a data race
// that callers must avoid. Types are immutable once defined and safe to share.
package model
