package storage

import (
	"fmt"
	"os"

	"github.com/graphkeep/graphkeep/internal/graph"
)

// LoadBytes returns the raw stored snapshot for name. Lock-free: a
// concurrent commit is an atomic rename, so the bytes are always one
// complete snapshot, never a mixture.
func (s *Store) LoadBytes(name string) ([]byte, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	return data, nil
}

// Load reads and decodes the stored document for name. A snapshot that
// does not decode is reported as *UnparsableError; recovery from that
// state goes through the backup manager, never through this call.
func (s *Store) Load(name string) (*graph.Document, error) {
	data, err := s.LoadBytes(name)
	if err != nil {
		return nil, err
	}
	doc, err := graph.UnmarshalDocument(data)
	if err != nil {
		return nil, &UnparsableError{Name: name, Err: err}
	}
	return doc, nil
}
