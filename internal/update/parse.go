package update

import (
	"bufio"
	"fmt"
	"strings"
)

// Parse scans free-form text for update blocks and returns the
// well-formed operations in input order. Malformed blocks are returned
// as ParseErrors and excluded from ops; one bad block never aborts
// extraction of the others. Text outside block markers is ignored.
func Parse(text string) (ops []Op, errs []*ParseError) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		inBlock bool
		block   []string
		index   int
	)

	flush := func() {
		index++
		op, err := parseBlock(index, block)
		if err != nil {
			errs = append(errs, err)
		} else {
			ops = append(ops, op)
		}
		block = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == BlockStart:
			if inBlock {
				// Unterminated previous block: drop it, start fresh.
				index++
				errs = append(errs, &ParseError{Block: index, Reason: "missing end marker"})
				block = nil
			}
			inBlock = true
		case line == BlockEnd:
			if inBlock {
				flush()
				inBlock = false
			}
			// A stray end marker outside a block is surrounding prose.
		case inBlock:
			block = append(block, line)
		}
	}
	if inBlock {
		index++
		errs = append(errs, &ParseError{Block: index, Reason: "missing end marker"})
	}

	return ops, errs
}

// parseBlock tokenizes one block's lines into an operation.
func parseBlock(index int, lines []string) (Op, *ParseError) {
	fields := make(map[string]string)
	for _, line := range lines {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &ParseError{Block: index, Reason: fmt.Sprintf("line %q is not a key: value pair", line)}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, &ParseError{Block: index, Reason: fmt.Sprintf("line %q has an empty key", line)}
		}
		if _, dup := fields[key]; dup {
			return nil, &ParseError{Block: index, Reason: fmt.Sprintf("duplicate key %q", key)}
		}
		fields[key] = value
	}

	kind, ok := fields["op"]
	if !ok {
		return nil, &ParseError{Block: index, Reason: `missing required key "op"`}
	}
	delete(fields, "op")

	switch kind {
	case KindAddNode:
		return parseAddNode(index, fields)
	case KindUpdateNode:
		return parseUpdateNode(index, fields)
	case KindAddEdge:
		return parseAddEdge(index, fields)
	default:
		return nil, &ParseError{Block: index, Reason: fmt.Sprintf("unrecognized op %q", kind)}
	}
}

func parseAddNode(index int, fields map[string]string) (Op, *ParseError) {
	for _, required := range []string{"node_id", "node_type", "label"} {
		if fields[required] == "" {
			return nil, &ParseError{Block: index, Reason: fmt.Sprintf("missing required key %q", required)}
		}
	}
	op := AddNode{
		NodeID:   fields["node_id"],
		NodeType: fields["node_type"],
		Label:    fields["label"],
		Fields:   fields,
	}
	delete(fields, "node_id")
	delete(fields, "node_type")
	delete(fields, "label")
	return op, nil
}

func parseUpdateNode(index int, fields map[string]string) (Op, *ParseError) {
	if fields["node_id"] == "" {
		return nil, &ParseError{Block: index, Reason: `missing required key "node_id"`}
	}
	op := UpdateNode{NodeID: fields["node_id"], Fields: fields}
	delete(fields, "node_id")
	if len(fields) == 0 {
		return nil, &ParseError{Block: index, Reason: "update_node block sets no fields"}
	}
	return op, nil
}

func parseAddEdge(index int, fields map[string]string) (Op, *ParseError) {
	for _, required := range []string{"source", "target", "relation"} {
		if fields[required] == "" {
			return nil, &ParseError{Block: index, Reason: fmt.Sprintf("missing required key %q", required)}
		}
	}
	op := AddEdge{
		Source:   fields["source"],
		Target:   fields["target"],
		Relation: fields["relation"],
		Fields:   fields,
	}
	delete(fields, "source")
	delete(fields, "target")
	delete(fields, "relation")
	return op, nil
}
