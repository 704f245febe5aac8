// Package engine runs the receipts pipeline for one data set.
//
// A run is strictly sequential: each stage consumes the complete output of
// the one before it.
//
//  1. Validate events and finalize the coverage verdict.
//  2. Cluster events into workstreams, or load a hand-edited workstreams file.
//  3. Write the canonical ledger, coverage manifest, workstreams and packet.
//  4. For each redaction profile, redact, render and write under profiles/<p>.
//  5. Write the alias state and the bundle manifest.
//  6. Optionally archive the run and each profile.
//
// RUN DIRECTORY:
//
// Everything is assembled in a hidden staging directory (.<run-id>.partial)
// next to the final one and renamed into place only when every stage has
// succeeded. A failed or cancelled run removes its staging directory and any
// archive it produced, so no half-complete ledger is ever left under a run id.
// A run never writes into an existing run directory.
//
// Re-running identical inputs reproduces byte-identical canonical artifacts.
// Only the run id and the bundle manifest's generation time differ.
package engine
