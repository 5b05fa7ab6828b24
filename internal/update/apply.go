package update

import (
	"fmt"
	"strconv"
	"time"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// ApplyError reports an operation that could not be applied. The
// operation is skipped; application of the remaining operations
// continues, mirroring the parser's per-block tolerance.
type ApplyError struct {
	// Index is the position of the operation in the applied sequence.
	Index int
	// Field names the offending field when one is identifiable.
	Field string
	// Message describes the defect.
	Message string
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("op %d (%s): %s", e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("op %d: %s", e.Index, e.Message)
}

// Apply mutates doc in place with each operation in order. Operations
// that cannot be applied are skipped and reported; applied counts the
// ones that took effect. The caller is expected to run the schema
// validator on the result before committing, so field-level semantic
// checks (type enum membership, confidence range, evidence rule) are not
// duplicated here; only conversions that must happen to build the node
// at all (confidence string to float) fail at this stage.
func Apply(doc *graph.Document, ops []Op, agent string, now time.Time) (applied int, errs []*ApplyError) {
	for i, op := range ops {
		var err *ApplyError
		switch o := op.(type) {
		case AddNode:
			err = applyAddNode(doc, i, o, agent, now)
		case UpdateNode:
			err = applyUpdateNode(doc, i, o)
		case AddEdge:
			applyAddEdge(doc, o)
		default:
			err = &ApplyError{Index: i, Message: fmt.Sprintf("unsupported op type %T", op)}
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	return applied, errs
}

// Node field keys recognized by apply. Everything else lands in Attrs.
const (
	fieldDescription = "description"
	fieldConfidence  = "confidence"
	fieldEvidence    = "evidence"
	fieldPriority    = "priority"
	fieldStatus      = "status"
	fieldCreatedBy   = "created_by"
	fieldCreatedAt   = "created_at"
)

func applyAddNode(doc *graph.Document, index int, op AddNode, agent string, now time.Time) *ApplyError {
	if doc.FindNode(op.NodeID) != nil {
		return &ApplyError{
			Index:   index,
			Field:   "node_id",
			Message: fmt.Sprintf("node %q already exists; use update_node", op.NodeID),
		}
	}

	node := graph.Node{
		ID:        op.NodeID,
		Type:      graph.NodeType(op.NodeType),
		Label:     op.Label,
		CreatedBy: agent,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}

	for key, value := range op.Fields {
		switch key {
		case fieldDescription:
			node.Description = value
		case fieldConfidence:
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return &ApplyError{
					Index:   index,
					Field:   "confidence",
					Message: fmt.Sprintf("%q is not a number", value),
				}
			}
			node.Confidence = f
		case fieldEvidence:
			node.Evidence = value
		case fieldPriority:
			node.Priority = graph.Priority(value)
		case fieldStatus:
			node.Status = graph.Status(value)
		case fieldCreatedBy:
			// A block-supplied author overrides the pipeline agent name.
			node.CreatedBy = value
		case fieldCreatedAt:
			return &ApplyError{
				Index:   index,
				Field:   "created_at",
				Message: "provenance timestamps are assigned by the store",
			}
		default:
			if node.Attrs == nil {
				node.Attrs = make(map[string]string)
			}
			node.Attrs[key] = value
		}
	}

	doc.Nodes = append(doc.Nodes, node)
	return nil
}

func applyUpdateNode(doc *graph.Document, index int, op UpdateNode) *ApplyError {
	node := doc.FindNode(op.NodeID)
	if node == nil {
		return &ApplyError{
			Index:   index,
			Field:   "node_id",
			Message: fmt.Sprintf("node %q does not exist", op.NodeID),
		}
	}

	// Reject the whole op before touching the node, so a bad field never
	// leaves it partially updated.
	for key, value := range op.Fields {
		switch key {
		case fieldConfidence:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return &ApplyError{
					Index:   index,
					Field:   "confidence",
					Message: fmt.Sprintf("%q is not a number", value),
				}
			}
		case fieldCreatedBy, fieldCreatedAt:
			return &ApplyError{
				Index:   index,
				Field:   key,
				Message: "provenance fields are immutable",
			}
		}
	}

	for key, value := range op.Fields {
		switch key {
		case "label":
			node.Label = value
		case "node_type":
			node.Type = graph.NodeType(value)
		case fieldDescription:
			node.Description = value
		case fieldConfidence:
			f, _ := strconv.ParseFloat(value, 64)
			node.Confidence = f
		case fieldEvidence:
			node.Evidence = value
		case fieldPriority:
			node.Priority = graph.Priority(value)
		case fieldStatus:
			node.Status = graph.Status(value)
		default:
			if node.Attrs == nil {
				node.Attrs = make(map[string]string)
			}
			node.Attrs[key] = value
		}
	}
	return nil
}

func applyAddEdge(doc *graph.Document, op AddEdge) {
	edge := graph.Edge{
		Source:   op.Source,
		Target:   op.Target,
		Relation: op.Relation,
	}
	for key, value := range op.Fields {
		if key == "rationale" {
			edge.Rationale = value
			continue
		}
		if edge.Attrs == nil {
			edge.Attrs = make(map[string]string)
		}
		edge.Attrs[key] = value
	}
	doc.Edges = append(doc.Edges, edge)
}
