// Package update extracts typed mutation operations from free-form
// agent output and applies them to in-memory graph documents.
//
// Upstream agents embed zero or more update blocks in their prose:
//
//	[KG_UPDATE]
//	op: add_node
//	node_id: finding-7
//	node_type: Finding
//	label: p99 latency doubled after deploy 42
//	confidence: 0.9
//	evidence: grafana dashboard, deploy log
//	[/KG_UPDATE]
//
// Each block is a flat key:value list, one mapping layer, no nesting.
// The parser is a small line-oriented tokenizer by design: the producer
// format is flat, and a general-purpose structured-data grammar would
// only widen the attack surface for input that is ultimately free text.
//
// Parsing is tolerant: anything outside block markers is ignored, and a
// malformed block yields a ParseError and is dropped without aborting
// extraction of the remaining blocks. The parser guarantees syntactic
// well-formedness only; field-level typing is enforced when operations
// are applied and the result is re-validated by the schema validator.
package update
