package models

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

var localIDCounter atomic.Int64

// NextLocalID allocates a process-wide monotonic identifier for a
// TimelineEvent. Stable across rebuilds only for events that are reused;
// consumers rely on it for diffing, never for ordering.
func NextLocalID() int64 {
	return localIDCounter.Add(1)
}

// SenderInfo is a snapshot of the sender's display metadata at build time.
type SenderInfo struct {
	// DisplayName is the sender's display name, empty if unknown.
	DisplayName string `json:"display_name,omitempty"`

	// AvatarURL is the sender's avatar, empty if unknown.
	AvatarURL string `json:"avatar_url,omitempty"`
}

// EditSummary aggregates the edit chain of an event.
type EditSummary struct {
	// LatestEditEventID is the newest m.replace event seen for the source.
	LatestEditEventID string `json:"latest_edit_event_id"`

	// LatestContent is the replacement content carried by the newest edit.
	LatestContent json.RawMessage `json:"latest_content,omitempty"`

	// LastEditTS is the origin timestamp of the newest edit in milliseconds.
	LastEditTS int64 `json:"last_edit_ts"`
}

// ReactionSummary aggregates one reaction key on an event.
type ReactionSummary struct {
	// Key is the reaction key (usually an emoji).
	Key string `json:"key"`

	// Count is how many users reacted with this key.
	Count int `json:"count"`

	// AddedByMe is true if the local user is among them.
	AddedByMe bool `json:"added_by_me"`
}

// ThreadSummary aggregates replies threaded off an event.
type ThreadSummary struct {
	// NumberOfReplies counts thread replies.
	NumberOfReplies int `json:"number_of_replies"`

	// LatestEventID is the newest reply in the thread.
	LatestEventID string `json:"latest_event_id,omitempty"`
}

// PollSummary aggregates responses to a poll-start event.
type PollSummary struct {
	// TotalVotes counts all responses.
	TotalVotes int `json:"total_votes"`

	// Closed is true once a poll-end event referenced the poll.
	Closed bool `json:"closed"`
}

// Annotations is the aggregated-relations summary attached to a built
// TimelineEvent.
type Annotations struct {
	Edit      *EditSummary      `json:"edit,omitempty"`
	Reactions []ReactionSummary `json:"reactions,omitempty"`
	Thread    *ThreadSummary    `json:"thread,omitempty"`
	Poll      *PollSummary      `json:"poll,omitempty"`
}

// TimelineEvent is a display-ready view over an Event. It is a cheap,
// disposable projection built on demand by a timeline chunk and never
// persisted.
type TimelineEvent struct {
	// LocalID is a locally-assigned monotonic identifier for stable diffing
	// across rebuilds.
	LocalID int64 `json:"local_id"`

	// Event is the underlying immutable event.
	Event Event `json:"event"`

	// DisplayIndex is the event's position within its owning chunk.
	// Resets per chunk; not a global ordering key.
	DisplayIndex int `json:"display_index"`

	// SenderInfo is the sender metadata snapshot taken at build time.
	SenderInfo SenderInfo `json:"sender_info"`

	// Annotations summarizes aggregated relations (edits, reactions,
	// threads, polls). Nil when the event has none.
	Annotations *Annotations `json:"annotations,omitempty"`

	// ReadReceipts lists the receipts currently pointing at this event.
	ReadReceipts []ReadReceipt `json:"read_receipts,omitempty"`

	mu       sync.Mutex
	metadata map[string]any
}

// EnrichWith records a metadata value for downstream consumers. The first
// writer for a key wins; later writes are silently dropped.
func (t *TimelineEvent) EnrichWith(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.metadata == nil {
		t.metadata = make(map[string]any)
	}
	if _, exists := t.metadata[key]; exists {
		return
	}
	t.metadata[key] = value
}

// Metadata returns the enrichment value for key, if any.
func (t *TimelineEvent) Metadata(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.metadata[key]
	return v, ok
}

// IsSending returns true while the underlying event is an unconfirmed local
// echo still in flight.
func (t *TimelineEvent) IsSending() bool {
	return t.Event.SendState.IsSending()
}
