package models

import (
	"encoding/json"
	"strings"
)

// EventType categorizes timeline events.
type EventType string

const (
	EventTypeMessage        EventType = "m.room.message"
	EventTypeSticker        EventType = "m.sticker"
	EventTypeMember         EventType = "m.room.member"
	EventTypeReaction       EventType = "m.reaction"
	EventTypeEncrypted      EventType = "m.room.encrypted"
	EventTypeRedaction      EventType = "m.room.redaction"
	EventTypePollStart      EventType = "m.poll.start"
	EventTypePollEnd        EventType = "m.poll.end"
	EventTypeBeaconInfo     EventType = "m.beacon_info"
	EventTypeBeaconLocation EventType = "m.beacon"
)

// RelationType identifies how an event relates to another event.
type RelationType string

const (
	RelationTypeReplace    RelationType = "m.replace"
	RelationTypeAnnotation RelationType = "m.annotation"
	RelationTypeThread     RelationType = "m.thread"
	RelationTypeReference  RelationType = "m.reference"
)

// SendState tracks the lifecycle of a locally-sent event.
type SendState string

const (
	// SendStateUnsent means the event was created locally but not yet handed
	// to the sender.
	SendStateUnsent SendState = "unsent"

	// SendStateSending means the event is in flight.
	SendStateSending SendState = "sending"

	// SendStateSent means the server accepted the event but it has not yet
	// come back down sync.
	SendStateSent SendState = "sent"

	// SendStateFailed means sending failed and may be retried.
	SendStateFailed SendState = "failed"

	// SendStateSynced means the event is part of confirmed history.
	SendStateSynced SendState = "synced"
)

// IsSending returns true while the event has not reached a terminal state.
func (s SendState) IsSending() bool {
	return s == SendStateUnsent || s == SendStateSending
}

// LocalEchoPrefix marks event IDs assigned locally before the server confirms
// the event. Such IDs never appear in confirmed history.
const LocalEchoPrefix = "$local."

// IsLocalEchoID returns true if the event ID was assigned locally.
func IsLocalEchoID(eventID string) bool {
	return strings.HasPrefix(eventID, LocalEchoPrefix)
}

// Event is an immutable timeline event as stored in a chunk. Edits never
// mutate an Event; they are new Events referencing the original via an
// m.replace relation.
type Event struct {
	// ID is the event identifier. Local echoes carry LocalEchoPrefix.
	ID string `json:"event_id"`

	// RoomID is the room the event belongs to.
	RoomID string `json:"room_id"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// SenderID is the user who sent the event.
	SenderID string `json:"sender"`

	// OriginServerTS is the origin timestamp in milliseconds.
	OriginServerTS int64 `json:"origin_server_ts"`

	// Content is the raw event content.
	Content json.RawMessage `json:"content,omitempty"`

	// DecryptedType and DecryptedContent carry the clear payload for
	// encrypted events once the decryptor has run. Empty otherwise.
	DecryptedType    EventType       `json:"decrypted_type,omitempty"`
	DecryptedContent json.RawMessage `json:"decrypted_content,omitempty"`

	// RelatesToEventID and RelationType describe the event this one relates
	// to, if any.
	RelatesToEventID string       `json:"relates_to_event_id,omitempty"`
	RelationType     RelationType `json:"relation_type,omitempty"`

	// ThreadRootID is set when the event belongs to a thread.
	ThreadRootID string `json:"thread_root_id,omitempty"`

	// SendState tracks local send progress. Synced for confirmed history.
	SendState SendState `json:"send_state"`

	// TransactionID is the client-local identifier used to reconcile a
	// confirmed event against its local echo.
	TransactionID string `json:"transaction_id,omitempty"`
}

// IsLocalEcho returns true if the event has not been confirmed by the server.
func (e *Event) IsLocalEcho() bool {
	return IsLocalEchoID(e.ID)
}

// EffectiveType returns the decrypted type when present, the wire type
// otherwise.
func (e *Event) EffectiveType() EventType {
	if e.DecryptedType != "" {
		return e.DecryptedType
	}
	return e.Type
}

// EffectiveContent returns the decrypted content when present, the wire
// content otherwise.
func (e *Event) EffectiveContent() json.RawMessage {
	if len(e.DecryptedContent) > 0 {
		return e.DecryptedContent
	}
	return e.Content
}
