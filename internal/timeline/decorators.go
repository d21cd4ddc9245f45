package timeline

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/roomline/roomline/internal/models"
)

// Derived accessors over TimelineEvents: deterministic, side-effect-free
// projections with no persistence.

// LatestContent resolves the event's newest content, following the edit
// summary to its latest replacement and applying type-specific decoding.
func LatestContent(te *models.TimelineEvent) json.RawMessage {
	original := te.Event.EffectiveContent()
	if te.Annotations == nil || te.Annotations.Edit == nil || len(te.Annotations.Edit.LatestContent) == 0 {
		return original
	}
	edit := te.Annotations.Edit.LatestContent

	switch te.Event.EffectiveType() {
	case models.EventTypeMessage:
		// Message edits carry the replacement under m.new_content.
		var c models.MessageContent
		if err := json.Unmarshal(edit, &c); err == nil && len(c.NewContent) > 0 {
			return c.NewContent
		}
		return edit
	case models.EventTypeSticker,
		models.EventTypePollStart,
		models.EventTypePollEnd,
		models.EventTypeBeaconInfo,
		models.EventTypeBeaconLocation:
		return edit
	default:
		return edit
	}
}

// IsEdit reports whether the event is an edit of another event.
func IsEdit(te *models.TimelineEvent) bool {
	return te.Event.RelationType == models.RelationTypeReplace
}

// IsReply reports whether the event is a rich reply. Thread fallback
// replies (is_falling_back) do not count.
func IsReply(te *models.TimelineEvent) bool {
	relates := relatesTo(te)
	return relates != nil && relates.InReplyTo != nil && !relates.IsFallingBack
}

// IsThreadRoot reports whether other events thread off this one.
func IsThreadRoot(te *models.TimelineEvent) bool {
	return te.Annotations != nil && te.Annotations.Thread != nil
}

// IsThreadReply reports whether the event belongs to a thread.
func IsThreadReply(te *models.TimelineEvent) bool {
	return te.Event.ThreadRootID != ""
}

// IsSticker reports whether the event is a sticker.
func IsSticker(te *models.TimelineEvent) bool {
	return te.Event.EffectiveType() == models.EventTypeSticker
}

// IsPollStart reports whether the event starts a poll.
func IsPollStart(te *models.TimelineEvent) bool {
	return te.Event.EffectiveType() == models.EventTypePollStart
}

// IsPollEnd reports whether the event closes a poll.
func IsPollEnd(te *models.TimelineEvent) bool {
	return te.Event.EffectiveType() == models.EventTypePollEnd
}

// IsLiveLocation reports whether the event starts or updates a live
// location share.
func IsLiveLocation(te *models.TimelineEvent) bool {
	t := te.Event.EffectiveType()
	return t == models.EventTypeBeaconInfo || t == models.EventTypeBeaconLocation
}

var (
	spoilerPattern = regexp.MustCompile(`(?s)<span[^>]*data-mx-spoiler[^>]*>(.*?)</span>`)
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
)

// spoilerMask replaces hidden text so its length is not revealed.
const spoilerMask = "████"

// DisplayableContent produces the display-ready text of an event: the
// latest edited body, with the reply-quote fallback stripped and spoiler
// spans masked.
func DisplayableContent(te *models.TimelineEvent) string {
	content := LatestContent(te)

	switch te.Event.EffectiveType() {
	case models.EventTypeMessage:
		var c models.MessageContent
		if err := json.Unmarshal(content, &c); err != nil {
			return ""
		}
		if c.Format == "org.matrix.custom.html" && spoilerPattern.MatchString(c.FormattedBody) {
			return renderSpoilers(c.FormattedBody)
		}
		if relates := relatesTo(te); relates != nil && relates.InReplyTo != nil {
			return stripReplyFallback(c.Body)
		}
		return c.Body
	case models.EventTypeSticker:
		var c models.StickerContent
		if err := json.Unmarshal(content, &c); err != nil {
			return ""
		}
		return c.Body
	case models.EventTypePollStart:
		var c models.PollStartContent
		if err := json.Unmarshal(content, &c); err != nil {
			return ""
		}
		return c.Question
	case models.EventTypePollEnd:
		var c models.PollEndContent
		if err := json.Unmarshal(content, &c); err != nil {
			return ""
		}
		return c.Text
	case models.EventTypeBeaconInfo:
		var c models.BeaconInfoContent
		if err := json.Unmarshal(content, &c); err != nil {
			return ""
		}
		return c.Description
	case models.EventTypeBeaconLocation:
		var c models.BeaconLocationContent
		if err := json.Unmarshal(content, &c); err != nil {
			return ""
		}
		return c.GeoURI
	default:
		return ""
	}
}

// stripReplyFallback removes the quoted-reply fallback: leading "> "
// prefixed lines up to the first blank line.
func stripReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> ") {
		return body
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "" {
			return strings.Join(lines[i+1:], "\n")
		}
		if !strings.HasPrefix(line, ">") {
			return strings.Join(lines[i:], "\n")
		}
	}
	return ""
}

// renderSpoilers masks spoiler spans and strips the remaining markup.
func renderSpoilers(formattedBody string) string {
	masked := spoilerPattern.ReplaceAllString(formattedBody, spoilerMask)
	return strings.TrimSpace(tagPattern.ReplaceAllString(masked, ""))
}

func relatesTo(te *models.TimelineEvent) *models.RelatesTo {
	var c struct {
		RelatesTo *models.RelatesTo `json:"m.relates_to"`
	}
	if err := json.Unmarshal(te.Event.EffectiveContent(), &c); err != nil {
		return nil
	}
	return c.RelatesTo
}
