package timeline

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/logging"
	"github.com/roomline/roomline/internal/models"
	"github.com/roomline/roomline/internal/store"
)

// ReadQueries are stateless, point-in-time read-state queries. They never
// fail: absent data resolves to conservative defaults (unread-leaning for
// the missing-event heuristic, not-read for missing records). They may run
// concurrently with strategy mutation since every call opens its own read
// view.
type ReadQueries struct {
	st     *store.Store
	logger zerolog.Logger
}

// NewReadQueries creates read-state queries over a store.
func NewReadQueries(st *store.Store) *ReadQueries {
	return &ReadQueries{
		st:     st,
		logger: logging.Component("read-state"),
	}
}

// ReadOptions tune IsEventRead.
type ReadOptions struct {
	// CheckThread also consults the receipt scoped to the event's thread.
	CheckThread bool

	// EventTS is the event's origin timestamp in milliseconds, when the
	// caller knows it for an event that is not in the local store (for
	// example from a push payload). Zero means unknown.
	EventTS int64
}

// IsEventRead returns true if the event is the user's own, if the room's
// latest event is the user's own, if the event precedes the user's latest
// read receipt, or, for events not known locally, if the missing-event
// heuristic concludes it must already be read. Local-echo identifiers are
// always considered read.
func (q *ReadQueries) IsEventRead(ctx context.Context, userID, roomID, eventID string, opts ReadOptions) bool {
	if models.IsLocalEchoID(eventID) {
		return true
	}

	if room, err := q.st.Read().Room(ctx, roomID); err == nil {
		if room.LatestSenderID != "" && room.LatestSenderID == userID {
			return true
		}
	}

	event, err := q.st.Events().Get(ctx, eventID)
	if err != nil {
		if err != db.ErrEventNotFound {
			q.logger.Warn().Err(err).Str("event_id", eventID).Msg("read query failed; treating as unread")
			return false
		}
		return q.missingEventRead(ctx, userID, roomID, opts.EventTS)
	}

	if event.Event.SenderID == userID {
		return true
	}

	if q.precedesReceipt(ctx, userID, roomID, models.MainTimeline, event) {
		return true
	}
	if opts.CheckThread && event.Event.ThreadRootID != "" {
		return q.precedesReceipt(ctx, userID, roomID, event.Event.ThreadRootID, event)
	}
	return false
}

// precedesReceipt reports whether the candidate event sits at or before the
// user's read receipt in the given scope.
func (q *ReadQueries) precedesReceipt(ctx context.Context, userID, roomID, threadID string, candidate *db.StoredEvent) bool {
	receipt, err := q.st.Read().Receipt(ctx, roomID, userID, threadID)
	if err != nil {
		return false
	}
	if receipt.EventID == candidate.Event.ID {
		return true
	}

	receiptEvent, err := q.st.Events().Get(ctx, receipt.EventID)
	if err != nil {
		return false
	}
	return q.isAtOrAfter(ctx, receiptEvent, candidate)
}

// isAtOrAfter compares two stored events: chunk-local display indices when
// they share a chunk, chunk recency otherwise.
func (q *ReadQueries) isAtOrAfter(ctx context.Context, reference, candidate *db.StoredEvent) bool {
	if reference.ChunkID == candidate.ChunkID {
		return reference.DisplayIndex >= candidate.DisplayIndex
	}

	refChunk, err := q.st.Chunks().Get(ctx, reference.ChunkID)
	if err != nil {
		return false
	}
	candChunk, err := q.st.Chunks().Get(ctx, candidate.ChunkID)
	if err != nil {
		return false
	}
	return refChunk.Seq > candChunk.Seq
}

// missingEventRead is the best-effort heuristic for events absent from the
// local store. With no timestamp the answer is unread: fail toward showing
// a notification rather than silently suppressing one. With a timestamp the
// event counts as read only if the user's receipt sits in a chunk known to
// be the live edge and the receipt's event is newer than the missing event.
func (q *ReadQueries) missingEventRead(ctx context.Context, userID, roomID string, eventTS int64) bool {
	if eventTS == 0 {
		return false
	}

	receipt, err := q.st.Read().Receipt(ctx, roomID, userID, models.MainTimeline)
	if err != nil {
		return false
	}
	receiptEvent, err := q.st.Events().Get(ctx, receipt.EventID)
	if err != nil {
		return false
	}
	chunk, err := q.st.Chunks().Get(ctx, receiptEvent.ChunkID)
	if err != nil {
		return false
	}
	return chunk.IsLastForward && receiptEvent.Event.OriginServerTS > eventTS
}

// IsReadMarkerMoreRecent reports whether the room's read marker points at
// or after the given event. Compares chunk-local display indices when both
// events share a chunk, chunk recency otherwise.
func (q *ReadQueries) IsReadMarkerMoreRecent(ctx context.Context, roomID, eventID string) bool {
	marker, err := q.st.Read().Marker(ctx, roomID)
	if err != nil {
		return false
	}
	if marker.EventID == eventID {
		return true
	}

	markerEvent, err := q.st.Events().Get(ctx, marker.EventID)
	if err != nil {
		return false
	}
	candidate, err := q.st.Events().Get(ctx, eventID)
	if err != nil {
		return false
	}
	return q.isAtOrAfter(ctx, markerEvent, candidate)
}

// IsMarkedUnread returns the room's manual unread override flag.
func (q *ReadQueries) IsMarkedUnread(ctx context.Context, roomID string) bool {
	room, err := q.st.Read().Room(ctx, roomID)
	if err != nil {
		return false
	}
	return room.MarkedUnread
}
