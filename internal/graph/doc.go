// Package graph defines the knowledge-graph document model and its
// structural validation rules.
//
// A Document is the unit of persistence: an ordered set of typed Nodes,
// an ordered sequence of Edges, and derived Meta counters. Documents are
// produced by multi-agent workflows and accumulate findings, decisions,
// and learned procedures over time.
//
// # Invariants
//
// A document accepted by the Validator satisfies:
//   - all node ids are unique and non-empty
//   - every node has a non-empty label and a recognized type
//   - every node confidence lies in [0.0, 1.0]
//   - nodes at or above the evidence threshold carry evidence
//   - every edge source/target resolves to an existing node id
//
// Validation is a pure function: no I/O, deterministic, fail-fast. The
// first violation encountered is the one reported, in a fixed check
// order, so callers and tests can assert on the reported field.
//
// # Serialization
//
// MarshalDocument produces the on-disk JSON snapshot. Field names and
// ordering are a bit-exact contract consumed by external tooling and are
// pinned by golden tests. MarshalCanonical produces a separate canonical
// encoding used only for content hashing, never for storage.
package graph
