// Package query compiles user-typed alarm filters into the formats accepted
// by the alarming service.
//
// Two grammars are supported:
//
// Rich grammar (Compile):
//
//	not (foo="quote" or foo="what!" or bar="who?") and cat="meme"
//
// compiles to a filter tree (Node) that serializes to the nested JSON filter
// object accepted by the query API:
//
//	{"and": [{"=": {"cat": "meme"}}, {"not": {"or": [...]}}]}
//
// Precedence, tightest first: comparison, not, and, or. Parentheses group.
// Consecutive operands of the same junction are collected right to left, so
// `a=1 and b=2 and c=3` becomes {"and": [c, b, a]}. The service's own client
// emits that order and consumers compare exact JSON, so it is kept.
//
// Compact grammar (CompileCompact):
//
//	this<=34;that=string::foo
//
// compiles to a flat, ordered list of Items that are sent as repeated
// q.field/q.op/q.value/q.type query-string groups (EncodeItems).
//
// LITERAL TYPING:
//
// Unquoted terms of the rich grammar are typed in this order: null keyword,
// boolean keyword, UUID, identifier, number. Quoted terms are always strings.
// Compact values are never typed here; the declared type tag travels with
// the value and the service interprets it.
//
// Both compilers are pure functions. Every call builds a fresh value owned by
// the caller, so they are safe for concurrent use.
package query
