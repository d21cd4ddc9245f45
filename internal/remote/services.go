// Package remote declares the asynchronous homeserver-facing services the
// timeline consumes. Implementations live in the sync transport layer, which
// is outside this module; results are observed indirectly through store
// change notifications.
package remote

import (
	"context"

	"github.com/roomline/roomline/internal/models"
)

// PaginationResult reports the outcome of a pagination call.
type PaginationResult struct {
	// EventCount is how many events the server returned.
	EventCount int

	// ReachedEnd is true when the server has no more history in the
	// requested direction.
	ReachedEnd bool
}

// Paginator fetches additional history for a pagination token. New events
// land in the store before Paginate returns.
type Paginator interface {
	Paginate(ctx context.Context, roomID, token string, dir models.Direction, count int) (*PaginationResult, error)
}

// ContextFetcher resolves the events surrounding a specific event. The
// resulting chunk lands in the store and is observed via a change
// notification; the call itself is fire-and-forget from the timeline's
// perspective.
type ContextFetcher interface {
	FetchContext(ctx context.Context, roomID, eventID string) error
}

// ThreadFetcher loads a page of a thread's timeline into the thread-scoped
// chunk.
type ThreadFetcher interface {
	FetchThreadTimeline(ctx context.Context, roomID, rootEventID, from string, count int) (*PaginationResult, error)
}

// Decryptor decrypts events on demand. Internals are out of scope; the
// timeline only drives its lifecycle.
type Decryptor interface {
	Start()
	Destroy()
	DecryptIfNeeded(ctx context.Context, event *models.Event) error
}
