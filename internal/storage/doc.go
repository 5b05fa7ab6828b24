// Package storage provides crash-consistent persistence for graph
// documents.
//
// One JSON file per document name lives under the store directory.
// Commits follow a fixed algorithm:
//
//  1. serialize to a uniquely named temp file in the same directory
//     (same-filesystem requirement makes the later rename atomic)
//  2. flush and fsync the temp file
//  3. acquire the per-document advisory lock, bounded by a timeout
//  4. atomically rename the temp file onto the live path
//  5. fsync the directory, release the lock
//
// Any failure before the rename discards the temp file and leaves the
// live path untouched, so a reader can never observe a partial
// document. Reads take no lock: an atomic rename means a concurrent
// reader sees either the complete old snapshot or the complete new one.
//
// Locking is advisory and cooperative. It serializes writers to the
// same document name; writers to different names never contend. On
// platforms or filesystems without flock support the locker reports
// ErrLockUnsupported and callers decide explicitly whether to proceed
// unserialized (see WithAllowUnlocked) rather than getting a silent
// downgrade.
package storage
