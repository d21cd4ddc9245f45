package models

import "encoding/json"

// Message msgtype values.
const (
	MsgTypeText     = "m.text"
	MsgTypeNotice   = "m.notice"
	MsgTypeEmote    = "m.emote"
	MsgTypeImage    = "m.image"
	MsgTypeFile     = "m.file"
	MsgTypeLocation = "m.location"
)

// InReplyTo references the event a message replies to.
type InReplyTo struct {
	EventID string `json:"event_id"`
}

// RelatesTo is the relation block of an event's content.
type RelatesTo struct {
	RelType       RelationType `json:"rel_type,omitempty"`
	EventID       string       `json:"event_id,omitempty"`
	Key           string       `json:"key,omitempty"`
	InReplyTo     *InReplyTo   `json:"m.in_reply_to,omitempty"`
	IsFallingBack bool         `json:"is_falling_back,omitempty"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType       string          `json:"msgtype"`
	Body          string          `json:"body"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
	NewContent    json.RawMessage `json:"m.new_content,omitempty"`
}

// StickerContent is the content of an m.sticker event.
type StickerContent struct {
	Body      string     `json:"body"`
	URL       string     `json:"url,omitempty"`
	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// PollStartContent is the content of an m.poll.start event.
type PollStartContent struct {
	Question  string     `json:"question"`
	Answers   []string   `json:"answers,omitempty"`
	Kind      string     `json:"kind,omitempty"`
	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// PollEndContent is the content of an m.poll.end event.
type PollEndContent struct {
	Text      string     `json:"text,omitempty"`
	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// BeaconInfoContent is the content of an m.beacon_info (live location share
// start) event.
type BeaconInfoContent struct {
	Description string `json:"description,omitempty"`
	IsLive      bool   `json:"live"`
	TimeoutMs   int64  `json:"timeout,omitempty"`
}

// BeaconLocationContent is the content of an m.beacon (live location update)
// event.
type BeaconLocationContent struct {
	GeoURI    string     `json:"geo_uri,omitempty"`
	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// MemberContent is the content of an m.room.member state event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// DecodeMessage decodes an event's effective content as MessageContent.
func DecodeMessage(e *Event) (*MessageContent, error) {
	var c MessageContent
	if err := json.Unmarshal(e.EffectiveContent(), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeMember decodes an event's effective content as MemberContent.
func DecodeMember(e *Event) (*MemberContent, error) {
	var c MemberContent
	if err := json.Unmarshal(e.EffectiveContent(), &c); err != nil {
		return nil, err
	}
	return &c, nil
}
