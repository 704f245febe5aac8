// Package ids provides the identifier scheme for receipts.
//
// Event and workstream ids are content-addressed: a SHA-256 digest over an
// ordered list of semantically stable parts. Run ids are generation-time
// derived and are NOT content-addressed, because a run is not itself
// addressable content.
//
// This package imports nothing internal. Every other package may import it.
package ids
