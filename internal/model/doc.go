// Package model provides the canonical record types for receipts.
//
// Every other stage reads or writes these types: ingestors create
// EventEnvelopes and a CoverageManifest, clusterers produce a
// WorkstreamsFile, and the bundle stage emits a BundleManifest.
//
// Key design constraints:
//   - Events are immutable after ingestion; stages that need a modified copy
//     call Clone first
//   - The event payload is a closed variant keyed by an explicit "type" tag
//   - All JSON and YAML tags use snake_case
//   - Field order in structs is the wire order; do not reorder
package model
