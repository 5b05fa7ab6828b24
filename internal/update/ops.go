package update

import "fmt"

// Block markers recognized by the parser. Markers must appear alone on
// their line (surrounding whitespace is ignored).
const (
	BlockStart = "[KG_UPDATE]"
	BlockEnd   = "[/KG_UPDATE]"
)

// Op kinds carried in a block's "op" key.
const (
	KindAddNode    = "add_node"
	KindUpdateNode = "update_node"
	KindAddEdge    = "add_edge"
)

// Op is a single parsed mutation operation.
type Op interface {
	// Kind returns the operation discriminator (add_node, update_node,
	// add_edge).
	Kind() string
}

// AddNode creates a new node. NodeID, NodeType and Label were present in
// the block; Fields holds every remaining key verbatim, including typed
// ones (confidence, evidence, ...) and unrecognized producer keys, which
// are preserved as opaque node attributes.
type AddNode struct {
	NodeID   string
	NodeType string
	Label    string
	Fields   map[string]string
}

// Kind implements Op.
func (AddNode) Kind() string { return KindAddNode }

// UpdateNode mutates fields of an existing node. Provenance fields
// (created_by, created_at) and the id itself are immutable; attempts to
// change them fail at apply time.
type UpdateNode struct {
	NodeID string
	Fields map[string]string
}

// Kind implements Op.
func (UpdateNode) Kind() string { return KindUpdateNode }

// AddEdge links two existing nodes.
type AddEdge struct {
	Source   string
	Target   string
	Relation string
	Fields   map[string]string
}

// Kind implements Op.
func (AddEdge) Kind() string { return KindAddEdge }

// ParseError reports a malformed block. The block is dropped; parsing of
// the remaining blocks continues.
type ParseError struct {
	// Block is the 1-based index of the offending block in the input.
	Block int
	// Reason describes the defect, naming the missing key when that is
	// the cause.
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("update block %d: %s", e.Block, e.Reason)
}
