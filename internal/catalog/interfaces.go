package catalog

import (
	"context"
	"io"
	"time"
)

// Element is a handle to a live node inside one Session. Handles are only
// valid for the session that produced them.
type Element interface {
	// Describe returns a short label for diagnostics (usually the selector).
	Describe() string
}

// Session is one isolated, navigable rendering context owned by exactly one
// task for its lifetime.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitForMarker blocks up to timeout for selector to match and returns
	// ErrMarkerTimeout when it does not.
	WaitForMarker(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	ReadText(ctx context.Context, el Element) (string, error)
	ReadAttribute(ctx context.Context, el Element, name string) (string, error)
	// Enclosing ascends from el to the nearest ancestor with the given tag.
	Enclosing(ctx context.Context, el Element, tag string) (Element, error)
	// SnapshotMarkup captures the element's outer markup once.
	SnapshotMarkup(ctx context.Context, el Element) (string, error)
	Release() error
}

// SessionProvider creates a fresh Session per task.
type SessionProvider interface {
	Acquire(ctx context.Context) (Session, error)
}

// TaskQueue buffers submitted tasks for the worker pool.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	// Dequeue returns ErrQueueClosed once the queue is closed and empty.
	Dequeue(ctx context.Context) (Task, error)
}

// Prober reports whether an identifier is listed, leaving sess on its page.
type Prober interface {
	Probe(ctx context.Context, sess Session, id Identifier) (bool, error)
}

// FieldExtractor reads a Record from a session positioned on a listed item.
type FieldExtractor interface {
	Extract(ctx context.Context, sess Session, id Identifier) (Record, []FieldDiagnostic)
}

// RecordWriter is the output collaborator mutated only by the aggregator.
type RecordWriter interface {
	WriteRecord(rec Record) error
}

// BlobStore uploads finished artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes artifact digests.
type Hasher interface {
	HashReader(r io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
