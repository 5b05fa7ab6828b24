package graph

import "fmt"

// ValidationError reports a structural rule a document violates. Field
// names the offending field ("confidence", "edges", ...); Message
// identifies the specific node or edge so callers can fix the input.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Validator checks documents against the structural rules. It is pure:
// no I/O, deterministic, and it never mutates its input.
type Validator struct {
	// EvidenceThreshold is the confidence at or above which a node must
	// cite evidence. Zero, the default, disables the rule: a confident
	// node without evidence is valid unless the caller opts in.
	EvidenceThreshold float64
}

// NewValidator returns a validator enforcing the baseline rules. The
// evidence rule is off; set EvidenceThreshold to enable it.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks d fail-fast in a fixed order: top-level shape, per-node
// required fields and enums, confidence range, evidence rule, duplicate
// ids, then per-edge referential integrity. The first violation found is
// returned as a *ValidationError; a nil return means d satisfies every
// invariant.
func (v *Validator) Validate(d *Document) error {
	if errs := v.check(d, true); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Violations collects every structural rule d violates, in the same
// order Validate checks them. The integrity checker uses this to report
// a complete diagnosis instead of the first failure.
func (v *Validator) Violations(d *Document) []*ValidationError {
	return v.check(d, false)
}

func (v *Validator) check(d *Document, failFast bool) []*ValidationError {
	var errs []*ValidationError
	fail := func(field, format string, args ...any) bool {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
		return failFast
	}

	if d == nil {
		fail("document", "document is nil")
		return errs
	}
	if d.Nodes == nil {
		if fail("nodes", "missing nodes array") {
			return errs
		}
	}
	if d.Edges == nil {
		if fail("edges", "missing edges array") {
			return errs
		}
	}

	seen := make(map[string]struct{}, len(d.Nodes))
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.ID == "" {
			if fail("id", "nodes[%d]: missing id", i) {
				return errs
			}
		}
		if n.Label == "" {
			if fail("label", "node %q: missing label", n.ID) {
				return errs
			}
		}
		if !ValidNodeType(n.Type) {
			if fail("type", "node %q: unrecognized type %q", n.ID, n.Type) {
				return errs
			}
		}
		confOK := n.Confidence >= 0.0 && n.Confidence <= 1.0
		if !confOK {
			if fail("confidence", "node %q: confidence %v outside [0.0, 1.0]", n.ID, n.Confidence) {
				return errs
			}
		}
		// An out-of-range confidence is one root cause; do not also flag
		// it against the evidence rule.
		if confOK && v.EvidenceThreshold > 0 && n.Confidence >= v.EvidenceThreshold && n.Evidence == "" {
			if fail("evidence", "node %q: confidence %v requires evidence (threshold %v)", n.ID, n.Confidence, v.EvidenceThreshold) {
				return errs
			}
		}
		if !ValidPriority(n.Priority) {
			if fail("priority", "node %q: unrecognized priority %q", n.ID, n.Priority) {
				return errs
			}
		}
		if !ValidStatus(n.Status) {
			if fail("status", "node %q: unrecognized status %q", n.ID, n.Status) {
				return errs
			}
		}
		if _, dup := seen[n.ID]; dup {
			if fail("id", "duplicate node id %q", n.ID) {
				return errs
			}
		}
		seen[n.ID] = struct{}{}
	}

	for i := range d.Edges {
		e := &d.Edges[i]
		if e.Source == "" || e.Target == "" {
			if fail("edges", "edges[%d]: missing source or target", i) {
				return errs
			}
			continue
		}
		if _, ok := seen[e.Source]; !ok {
			if fail("edges", "edges[%d]: source %q does not resolve to a node", i, e.Source) {
				return errs
			}
			continue
		}
		if _, ok := seen[e.Target]; !ok {
			if fail("edges", "edges[%d]: target %q does not resolve to a node", i, e.Target) {
				return errs
			}
		}
	}

	return errs
}

// DanglingEdges returns the indexes of edges whose source or target does
// not resolve to a node id. Used by the integrity checker to classify
// referential failures for targeted repair.
func DanglingEdges(d *Document) []int {
	ids := d.NodeIDs()
	var out []int
	for i := range d.Edges {
		if _, ok := ids[d.Edges[i].Source]; !ok {
			out = append(out, i)
			continue
		}
		if _, ok := ids[d.Edges[i].Target]; !ok {
			out = append(out, i)
		}
	}
	return out
}
