// Package harness runs synchronization scenarios against a fresh store and
// compares their traces with golden files.
//
// # Scenario Format
//
//	name: copy_remote
//	description: "local title edits are rolled back by the server"
//	schema: schema.cue            # or schema_source: inline CUE
//	steps:
//	  - download:
//	      stage: full
//	      items:
//	        - identity: doc-1
//	          type: task
//	          values: {"task:title": "a"}
//	  - edit:
//	      item: doc-1
//	      set: {"task:title": "b"}
//	  - upload:
//	      reject: [doc-2]
//	  - resolve:
//	      item: doc-1
//	      accept_server: ["task:title"]
//	assertions:
//	  - type: state
//	    item: doc-1
//	    expect: SYNC
//	  - type: value
//	    item: doc-1
//	    attr: "task:title"
//	    slot: base
//	    expect: "a"
//
// Items are named by server identity, or by the name given to a locally
// created item (edit.create).
//
// # Assertion Types
//
//   - state: the SyncState of an item
//   - value: a value in the trunk, base or conflict slot (absent: true for none)
//   - conflicts: the attributes awaiting resolution on an item
//   - query: the items whose attributes equal the given values
//
// # Golden Traces
//
// Every step adds a trace entry listing the items it touched with their
// state and merge outcome. RunWithGolden renders the trace as text and
// compares it with testdata/golden/<name>.golden; run the tests with
// -update to rewrite the files.
package harness
