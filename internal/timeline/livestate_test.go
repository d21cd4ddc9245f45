package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/models"
)

func memberEvent(roomID, eventID, senderID, displayName string, index int, ts int64) *db.StoredEvent {
	return &db.StoredEvent{
		Event: models.Event{
			ID:             eventID,
			RoomID:         roomID,
			Type:           models.EventTypeMember,
			SenderID:       senderID,
			OriginServerTS: ts,
			Content:        json.RawMessage(fmt.Sprintf(`{"membership":"join","displayname":%q}`, displayName)),
			SendState:      models.SendStateSynced,
		},
		DisplayIndex: index,
	}
}

func TestLiveRoomStateListener_OverlaysLatestDisplayName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!livestate:example.org"

	chunk := &models.Chunk{RoomID: roomID, IsLastForward: true}
	msg := textEvent(roomID, "$msg", "@alice:example.org", 2, 3000)
	msg.SenderDisplayName = "Old Alice"
	seedChunk(t, st, chunk,
		memberEvent(roomID, "$m1", "@alice:example.org", "Old Alice", 0, 1000),
		memberEvent(roomID, "$m2", "@alice:example.org", "New Alice", 1, 2000),
		msg)

	l := NewLiveRoomStateListener(st, roomID)
	require.NoError(t, l.Refresh(ctx))

	info, ok := l.SenderInfo("@alice:example.org")
	require.True(t, ok)
	require.Equal(t, "New Alice", info.DisplayName)
	_, ok = l.SenderInfo("@stranger:example.org")
	require.False(t, ok)

	te := &models.TimelineEvent{
		Event:      msg.Event,
		SenderInfo: models.SenderInfo{DisplayName: "Old Alice"},
	}
	l.Overlay(te)
	require.Equal(t, "New Alice", te.SenderInfo.DisplayName)

	// Unknown senders keep their historical snapshot.
	other := &models.TimelineEvent{
		Event:      models.Event{SenderID: "@stranger:example.org"},
		SenderInfo: models.SenderInfo{DisplayName: "Stranger"},
	}
	l.Overlay(other)
	require.Equal(t, "Stranger", other.SenderInfo.DisplayName)
}
