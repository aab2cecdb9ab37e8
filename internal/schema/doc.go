// Package schema compiles CUE declarations of attributes, item types and
// per-type merge rules into an item.Registry and merge strategies.
//
// A schema file looks like:
//
//	attributes: task: {
//		title: {kind: "string", shadowable: true}
//		tags:  {kind: "stringset", shadowable: true}
//		note:  {kind: "string"}
//	}
//	types: task: merge: [
//		{strategy: "stringSets", attrs: ["task:tags"]},
//		{strategy: "copyRemote", attrs: ["task:title"]},
//	]
//
// Each type is represented in the store by an item whose identity is
// "type:<name>"; items point at it through sys:type.
package schema
