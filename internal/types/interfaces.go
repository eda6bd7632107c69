// internal/types/interfaces.go
package types

import (
	"context"
	"errors"
)

// ErrNotFound is returned by MessageSource.Resolve when the identifier does
// not map to a reachable feed.
var ErrNotFound = errors.New("source not found")

// MessageSource is the read side of a messaging platform.
type MessageSource interface {
	Resolve(ctx context.Context, src Source) (Handle, error)
	// ListSubStreams returns the substream ids of a handle, or nil when the
	// handle has a single implicit stream.
	ListSubStreams(ctx context.Context, h Handle) ([]int64, error)
	// FetchMessages returns up to limit messages with id > minID. Order is
	// unspecified.
	FetchMessages(ctx context.Context, h Handle, subStream *int64, minID int64, limit int) ([]RawMessage, error)
	// DownloadImage returns nil bytes and a nil error when the message has
	// no image.
	DownloadImage(ctx context.Context, h Handle, messageID int64) ([]byte, error)
}

// Retainer is implemented by sources that hold undelivered messages between
// runs. Retain is told the registered sources at the start of a run so
// messages of any other chat can be dropped.
type Retainer interface {
	Retain(ctx context.Context, sources []Source) error
}

// Store is the persistence backend for sources, posts, events and blobs.
type Store interface {
	SelectRows(ctx context.Context, table string, filter Filter) ([]Row, error)
	// InsertRows performs one bulk insert. All rows must share a key set.
	InsertRows(ctx context.Context, table string, rows []Row) error
	UpdateRows(ctx context.Context, table string, filter Filter, patch Row) error
	// PutBlob stores data and returns its public URL.
	PutBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}
