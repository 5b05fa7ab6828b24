package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalDocument serializes a document to the on-disk snapshot format:
// two-space indented JSON with a trailing newline. Field names and their
// order are a bit-exact contract consumed by external tooling; changes
// here require a compatibility plan and must update the golden fixtures.
func MarshalDocument(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalDocument parses stored snapshot bytes. Unknown fields are
// tolerated so documents written by newer producers still load; a syntax
// or type error means the stored bytes are unparsable and the caller
// should fall back to backups.
func UnmarshalDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &d, nil
}
