// Package harness runs build scenarios end to end.
//
// A scenario describes a source tree and a sequence of builds against one
// shared cache, with optional edits between builds. The harness runs each
// build through engine.Engine exactly as the CLI does and evaluates
// assertions over the published files, the reports and the build ledger.
//
// # Scenario Format
//
//	name: complex_tree
//	description: "Children exclude what their parent bundle provides"
//	cache: disk            # disk (default), sqlite or memory
//	debug: false
//	sources:               # omitted: the shared fixture tree
//	  home.js: |
//	    require("assert");
//	builds:
//	  - schema: '{"core": {"home": {}}}'
//	  - roots: [core]
//	  - edit: {home.js: "exports.v = 2;"}
//	    schema: '{"core": {"home": {}}}'
//	  - source: "exports.x = 1;"
//	assertions:
//	  - type: file_count
//	    build: 1
//	    count: 1
//
// # Deterministic Output
//
// Build ids come from engine.FixedGenerator ("build-1", "build-2", ...) and
// ledger timestamps from testutil.DeterministicClock. Published file names
// are content hashes; snapshots replace them with "bundle-N.js" numbered by
// first appearance, so golden files survive pipeline changes that keep the
// bundle structure.
package harness
