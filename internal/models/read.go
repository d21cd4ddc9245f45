package models

// MainTimeline is the thread ID used for read receipts that apply to the
// room's main timeline rather than a specific thread.
const MainTimeline = ""

// ReadReceipt is a per-user pointer to the most recently read event,
// optionally scoped to a thread.
type ReadReceipt struct {
	// RoomID is the room the receipt applies to.
	RoomID string `json:"room_id"`

	// UserID is the user who sent the receipt.
	UserID string `json:"user_id"`

	// ThreadID scopes the receipt to a thread root event ID.
	// MainTimeline for the main timeline.
	ThreadID string `json:"thread_id,omitempty"`

	// EventID is the most recently read event.
	EventID string `json:"event_id"`

	// OriginServerTS is the origin timestamp of the receipt in milliseconds.
	OriginServerTS int64 `json:"origin_server_ts"`
}

// ReadMarker is the per-room pointer to the last event the local user has
// marked as read. Distinct from read receipts, which are per-event
// acknowledgments.
type ReadMarker struct {
	// RoomID is the room the marker applies to.
	RoomID string `json:"room_id"`

	// EventID is the marked event.
	EventID string `json:"event_id"`
}

// RoomSummary holds the room-level fields read-state queries consult.
type RoomSummary struct {
	// ID is the room identifier.
	ID string `json:"id"`

	// MarkedUnread is the manual unread override flag.
	MarkedUnread bool `json:"marked_unread"`

	// LatestEventID and LatestSenderID identify the most recent event known
	// for the room.
	LatestEventID  string `json:"latest_event_id,omitempty"`
	LatestSenderID string `json:"latest_sender_id,omitempty"`
}
