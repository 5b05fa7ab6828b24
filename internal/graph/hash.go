package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainDocument is the domain-separation prefix for document content
// hashes. The version suffix enables future algorithm migration.
const DomainDocument = "graphkeep/document/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes a content-addressed identity for a document.
// Equal content yields equal hashes regardless of how the document was
// produced; meta timestamps and counts participate, so two commits of
// identical nodes at different times hash differently. The hash
// identifies a snapshot, not a topology.
func ContentHash(d *Document) (string, error) {
	plain, err := toPlain(d)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	canonical, err := MarshalCanonical(plain)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// HashBytes computes the content hash of raw stored bytes. Used by the
// backup manager to fingerprint generations without re-parsing them.
func HashBytes(data []byte) string {
	return hashWithDomain(DomainDocument, data)
}

// toPlain round-trips a document through encoding/json to obtain the
// map/slice/primitive shape MarshalCanonical operates on.
func toPlain(d *Document) (any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, err
	}
	return plain, nil
}
