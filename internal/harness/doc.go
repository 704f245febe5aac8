// Package harness runs packet scenarios end to end through the real engine.
//
// A scenario describes a ledger and its coverage in YAML, runs the full
// pipeline into a temporary directory with a fixed run id, a frozen clock and
// a test redaction key, then evaluates assertions against what was written.
//
// # Scenario Format
//
//	name: two_repos
//	description: "One workstream per repository"
//	user: octocat
//	window: { since: "2025-01-01", until: "2025-02-01" }
//	profiles: [manager, public]
//	slices:
//	  - { total: 3, fetched: 3 }
//	events:
//	  - { kind: pull_request, repo: o/r1, number: 1, title: "Add billing" }
//	  - { kind: review, repo: o/r2, number: 2, state: APPROVED, visibility: private }
//	assertions:
//	  - type: completeness
//	    expect: complete
//	  - type: workstream_count
//	    count: 2
//	  - type: packet_excludes
//	    profile: public
//	    text: o/r2
//
// Slices default to one complete slice covering every event.
//
// # Assertion Types
//
//   - completeness: the run's verdict equals expect
//   - workstream_count: the run produced exactly count workstreams
//   - warning_contains: some coverage warning contains text
//   - packet_contains / packet_excludes: a profile's packet.md does or does not contain text
//   - bundle_verifies: every manifest in the run directory verifies
//   - history: the run was recorded with the expected fields
//
// # Golden Files
//
// RunWithGolden compares a hash-free snapshot of the run (verdict, internal
// workstreams, file lists per manifest) with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
