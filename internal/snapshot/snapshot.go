package snapshot

import "errors"

// ErrNotFound is returned by Load when the section has never been saved.
// It is distinct from transport or backend failures so callers can fail open
// on first boot.
var ErrNotFound = errors.New("snapshot section not found")

// Store persists opaque snapshot blobs keyed by logical section name. Each
// save rewrites the section wholesale.
type Store interface {
	Save(section string, data []byte) error
	Load(section string) ([]byte, error)
	Close() error
}
