// Package archive keeps the audio behind transcription records, on local
// disk or in an S3-compatible object store.
package archive

import (
	"context"
	"io"
)

// Archive stores accepted uploads so a record's audio can be fetched or
// purged later.
//
// Paths are forward-slash separated and relative to the archive root.
// Implementations must be safe for concurrent use.
type Archive interface {
	// Save writes the object under path, replacing any previous content.
	Save(ctx context.Context, path string, r io.Reader) error

	// Open opens the object for reading. A missing object yields an error
	// wrapping os.ErrNotExist. The caller closes the returned reader.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the object. Removing a missing object is not an
	// error.
	Remove(ctx context.Context, path string) error
}
