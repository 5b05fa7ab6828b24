// Package integrity diagnoses stored documents and performs narrow,
// safe repair.
//
// Check never mutates anything. Repair fixes exactly one class of
// problem, edges whose endpoints do not resolve to a node, and always
// records a backup generation before writing the cleaned document. An
// unparsable document is never repaired in place; the only way back is
// restoring a backup generation.
package integrity

import (
	"context"
	"errors"
	"fmt"

	"github.com/graphkeep/graphkeep/internal/backup"
	"github.com/graphkeep/graphkeep/internal/graph"
	"github.com/graphkeep/graphkeep/internal/storage"
)

// IssueKind classifies one diagnosed problem.
type IssueKind string

const (
	// IssueUnparsable: the stored bytes do not decode into a document.
	IssueUnparsable IssueKind = "unparsable"
	// IssueSchema: the document decodes but violates a structural rule.
	IssueSchema IssueKind = "schema"
	// IssueDanglingEdge: an edge endpoint does not resolve to a node.
	// Always accompanied by a schema issue for the same edge; reported
	// separately because it is the one class repair can fix.
	IssueDanglingEdge IssueKind = "dangling_edge"
	// IssueIO: the document could not be read at all.
	IssueIO IssueKind = "io"
)

// Issue is one diagnosed problem. Field is set for schema issues,
// Source and Target for dangling edges.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
	Target  string    `json:"target,omitempty"`
}

// CheckResult is the machine-readable diagnosis for one document.
type CheckResult struct {
	Name   string  `json:"name"`
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// Repairable reports whether every issue in the result is one repair
// knows how to fix.
func (r *CheckResult) Repairable() bool {
	if r.Valid {
		return true
	}
	for _, issue := range r.Issues {
		switch issue.Kind {
		case IssueDanglingEdge:
		case IssueSchema:
			// Schema issues that shadow a dangling edge are fixed along
			// with it; anything else needs a human.
			if issue.Field != "edges" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// RepairResult reports what repair did. ActionsTaken is always
// populated on success so callers can tell "repaired" from "nothing to
// do" without re-checking.
type RepairResult struct {
	Name         string   `json:"name"`
	Success      bool     `json:"success"`
	ActionsTaken []string `json:"actions_taken"`
}

// Checker composes the loader, validator and backup manager into the
// diagnostic surface.
type Checker struct {
	store     *storage.Store
	backups   *backup.Manager
	validator *graph.Validator
}

// Option configures a Checker.
type Option func(*Checker)

// WithValidator replaces the default validator, so callers can enable
// opt-in rules like the evidence threshold.
func WithValidator(v *graph.Validator) Option {
	return func(c *Checker) { c.validator = v }
}

// NewChecker returns a checker over store, using backups for the
// snapshot-before-repair step.
func NewChecker(store *storage.Store, backups *backup.Manager, opts ...Option) *Checker {
	c := &Checker{
		store:     store,
		backups:   backups,
		validator: graph.NewValidator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check loads and diagnoses one document. Unparsable bytes are a
// diagnosis, not an error; the error return is reserved for the
// document not existing or not being readable.
func (c *Checker) Check(name string) (*CheckResult, error) {
	doc, err := c.store.Load(name)
	if err != nil {
		var ue *storage.UnparsableError
		if errors.As(err, &ue) {
			return &CheckResult{
				Name:  name,
				Valid: false,
				Issues: []Issue{{
					Kind:    IssueUnparsable,
					Message: fmt.Sprintf("stored bytes do not decode: %v", ue.Err),
				}},
			}, nil
		}
		return nil, err
	}
	return c.diagnose(name, doc), nil
}

func (c *Checker) diagnose(name string, doc *graph.Document) *CheckResult {
	result := &CheckResult{Name: name, Valid: true}

	for _, verr := range c.validator.Violations(doc) {
		result.Issues = append(result.Issues, Issue{
			Kind:    IssueSchema,
			Field:   verr.Field,
			Message: verr.Message,
		})
	}
	for _, i := range graph.DanglingEdges(doc) {
		e := doc.Edges[i]
		result.Issues = append(result.Issues, Issue{
			Kind:    IssueDanglingEdge,
			Message: fmt.Sprintf("edge %q -> %q (%s) has an unresolved endpoint", e.Source, e.Target, e.Relation),
			Source:  e.Source,
			Target:  e.Target,
		})
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// Repair removes dangling edges from one document. The pre-repair state
// is backed up first; if that fails, nothing is written. Nodes and
// resolvable edges are never touched. Success is false for unparsable
// documents and for backup or write failures.
func (c *Checker) Repair(ctx context.Context, name string) (*RepairResult, error) {
	result := &RepairResult{Name: name, ActionsTaken: []string{}}

	doc, err := c.store.Load(name)
	if err != nil {
		var ue *storage.UnparsableError
		if errors.As(err, &ue) {
			result.ActionsTaken = append(result.ActionsTaken,
				"document is unparsable and cannot be repaired in place; restore a backup generation")
			return result, nil
		}
		return nil, err
	}

	dangling := graph.DanglingEdges(doc)
	if len(dangling) == 0 {
		result.Success = true
		result.ActionsTaken = append(result.ActionsTaken, "no repairable issues found")
		return result, nil
	}

	h, err := c.backups.Backup(name)
	if err != nil {
		// The live file may be the only good copy; never write without
		// a backup in hand.
		result.ActionsTaken = append(result.ActionsTaken,
			fmt.Sprintf("aborted: backup failed before repair: %v", err))
		return result, nil
	}
	result.ActionsTaken = append(result.ActionsTaken,
		fmt.Sprintf("backed up pre-repair state as %s", h.ID))

	cleaned := doc.Clone()
	drop := make(map[int]struct{}, len(dangling))
	for _, i := range dangling {
		drop[i] = struct{}{}
	}
	kept := cleaned.Edges[:0]
	for i := range cleaned.Edges {
		if _, gone := drop[i]; gone {
			e := cleaned.Edges[i]
			result.ActionsTaken = append(result.ActionsTaken,
				fmt.Sprintf("removed dangling edge %q -> %q (%s)", e.Source, e.Target, e.Relation))
			continue
		}
		kept = append(kept, cleaned.Edges[i])
	}
	cleaned.Edges = kept

	if err := c.store.Commit(ctx, name, cleaned); err != nil {
		result.ActionsTaken = append(result.ActionsTaken,
			fmt.Sprintf("write of repaired document failed: %v", err))
		return result, nil
	}

	result.Success = true
	return result, nil
}

// CheckAll diagnoses every known document. A failure on one document is
// recorded in its result and never aborts the others.
func (c *Checker) CheckAll() ([]CheckResult, error) {
	names, err := c.store.Names()
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		res, err := c.Check(name)
		if err != nil {
			results = append(results, CheckResult{
				Name:  name,
				Valid: false,
				Issues: []Issue{{
					Kind:    IssueIO,
					Message: err.Error(),
				}},
			})
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

// RepairAll repairs every known document, same fan-out contract as
// CheckAll.
func (c *Checker) RepairAll(ctx context.Context) ([]RepairResult, error) {
	names, err := c.store.Names()
	if err != nil {
		return nil, err
	}

	results := make([]RepairResult, 0, len(names))
	for _, name := range names {
		res, err := c.Repair(ctx, name)
		if err != nil {
			results = append(results, RepairResult{
				Name:         name,
				ActionsTaken: []string{fmt.Sprintf("repair failed: %v", err)},
			})
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}
