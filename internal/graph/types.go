package graph

import "time"

// NodeType classifies what a node represents.
type NodeType string

// Recognized node types. The set is closed: the Validator rejects
// documents containing any other value.
const (
	TypeConcept     NodeType = "Concept"
	TypeDecision    NodeType = "Decision"
	TypeEntity      NodeType = "Entity"
	TypeFinding     NodeType = "Finding"
	TypeTask        NodeType = "Task"
	TypeWorkflow    NodeType = "Workflow"
	TypeUncertainty NodeType = "Uncertainty"
)

// NodeTypes lists the recognized node types in a fixed order.
var NodeTypes = []NodeType{
	TypeConcept,
	TypeDecision,
	TypeEntity,
	TypeFinding,
	TypeTask,
	TypeWorkflow,
	TypeUncertainty,
}

// ValidNodeType reports whether t is a recognized node type.
func ValidNodeType(t NodeType) bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Priority ranks learned-procedure nodes.
type Priority string

// Recognized priorities for lifecycle nodes.
const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// ValidPriority reports whether p is empty or a recognized priority.
// Priority is optional, so the empty string is valid.
func ValidPriority(p Priority) bool {
	switch p {
	case "", PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Status tracks the lifecycle of learned-procedure nodes.
type Status string

// Recognized lifecycle statuses.
const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// ValidStatus reports whether s is empty or a recognized status.
func ValidStatus(s Status) bool {
	switch s {
	case "", StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// Node is a single graph element.
//
// ID, CreatedBy and CreatedAt are provenance: set once when the node is
// first added and never mutated afterwards. Attrs holds keys the upstream
// producer emitted that this version does not recognize; they are carried
// through serialization untouched so newer producers keep working.
type Node struct {
	ID          string            `json:"id"`
	Type        NodeType          `json:"type"`
	Label       string            `json:"label"`
	Description string            `json:"description,omitempty"`
	Confidence  float64           `json:"confidence"`
	Evidence    string            `json:"evidence,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	Priority    Priority          `json:"priority,omitempty"`
	Status      Status            `json:"status,omitempty"`
	Attrs       map[string]string `json:"attrs,omitempty"`
}

// Edge is a directed, labeled link between two nodes of the same
// document. Source and Target must resolve to existing node ids.
type Edge struct {
	Source    string            `json:"source"`
	Target    string            `json:"target"`
	Relation  string            `json:"relation"`
	Rationale string            `json:"rationale,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Meta carries document-level bookkeeping. NodeCount and EdgeCount are
// derived: recomputed on every successful commit, never hand-set.
type Meta struct {
	Directed  bool   `json:"directed"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

// Document is a named persisted knowledge graph. Node insertion order is
// preserved for stable diffing across commits.
type Document struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Meta  Meta   `json:"meta"`
}

// NewDocument returns an empty directed document stamped with now.
func NewDocument(now time.Time) *Document {
	ts := now.UTC().Format(time.RFC3339)
	return &Document{
		Nodes: []Node{},
		Edges: []Edge{},
		Meta: Meta{
			Directed:  true,
			CreatedAt: ts,
			UpdatedAt: ts,
		},
	}
}

// FindNode returns a pointer to the node with the given id, or nil.
func (d *Document) FindNode(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// NodeIDs returns the set of node ids in the document.
func (d *Document) NodeIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(d.Nodes))
	for i := range d.Nodes {
		ids[d.Nodes[i].ID] = struct{}{}
	}
	return ids
}

// Touch recomputes the derived meta counters and stamps the update time.
// Called by the storage layer immediately before serialization so on-disk
// counts can never drift from the actual content.
func (d *Document) Touch(now time.Time) {
	d.Meta.NodeCount = len(d.Nodes)
	d.Meta.EdgeCount = len(d.Edges)
	d.Meta.UpdatedAt = now.UTC().Format(time.RFC3339)
	if d.Meta.CreatedAt == "" {
		d.Meta.CreatedAt = d.Meta.UpdatedAt
	}
}

// Clone returns a deep copy of the document. Repair operates on a clone
// so a failed write never leaves the caller holding a half-modified
// in-memory document.
func (d *Document) Clone() *Document {
	out := &Document{
		Nodes: make([]Node, len(d.Nodes)),
		Edges: make([]Edge, len(d.Edges)),
		Meta:  d.Meta,
	}
	copy(out.Nodes, d.Nodes)
	copy(out.Edges, d.Edges)
	for i := range out.Nodes {
		out.Nodes[i].Attrs = cloneAttrs(d.Nodes[i].Attrs)
	}
	for i := range out.Edges {
		out.Edges[i].Attrs = cloneAttrs(d.Edges[i].Attrs)
	}
	return out
}

func cloneAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
