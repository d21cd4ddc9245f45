package timeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/models"
	"github.com/roomline/roomline/internal/store"
)

const (
	readUser  = "@me:example.org"
	otherUser = "@other:example.org"
)

func seedMessageChunk(t *testing.T, st *store.Store, roomID string, count int, live bool) *models.Chunk {
	t.Helper()
	chunk := &models.Chunk{RoomID: roomID, IsLastForward: live}
	var events []*db.StoredEvent
	for i := 0; i < count; i++ {
		events = append(events, textEvent(roomID, fmt.Sprintf("$ev%d", i), otherUser, i, int64(1000+i*100)))
	}
	seedChunk(t, st, chunk, events...)
	return chunk
}

func setReceipt(t *testing.T, st *store.Store, roomID, userID, threadID, eventID string) {
	t.Helper()
	require.NoError(t, st.Read().SetReceipt(context.Background(), &models.ReadReceipt{
		RoomID:   roomID,
		UserID:   userID,
		ThreadID: threadID,
		EventID:  eventID,
	}))
}

func TestReadQueries_LocalEchoAlwaysRead(t *testing.T) {
	q := NewReadQueries(newTestStore(t))

	read := q.IsEventRead(context.Background(), readUser, "!r:example.org",
		models.LocalEchoPrefix+"txn", ReadOptions{})
	require.True(t, read)
}

func TestReadQueries_OwnEventRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!own:example.org"

	chunk := &models.Chunk{RoomID: roomID, IsLastForward: true}
	seedChunk(t, st, chunk, textEvent(roomID, "$mine", readUser, 0, 1000))

	q := NewReadQueries(st)
	require.True(t, q.IsEventRead(ctx, readUser, roomID, "$mine", ReadOptions{}))
	require.False(t, q.IsEventRead(ctx, otherUser, roomID, "$mine", ReadOptions{}))
}

func TestReadQueries_OwnLatestRoomMessageRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!latest:example.org"

	seedMessageChunk(t, st, roomID, 3, true)
	require.NoError(t, st.Read().UpsertRoom(ctx, &models.RoomSummary{
		ID:             roomID,
		LatestEventID:  "$ev2",
		LatestSenderID: readUser,
	}))

	// If the user sent the room's latest message, everything before it is
	// read without consulting receipts.
	q := NewReadQueries(st)
	require.True(t, q.IsEventRead(ctx, readUser, roomID, "$ev0", ReadOptions{}))
}

func TestReadQueries_ReceiptDisplayIndex(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!receipt:example.org"

	seedMessageChunk(t, st, roomID, 8, true)
	setReceipt(t, st, roomID, readUser, models.MainTimeline, "$ev5")

	q := NewReadQueries(st)
	require.True(t, q.IsEventRead(ctx, readUser, roomID, "$ev3", ReadOptions{}))
	require.True(t, q.IsEventRead(ctx, readUser, roomID, "$ev5", ReadOptions{}))
	require.False(t, q.IsEventRead(ctx, readUser, roomID, "$ev7", ReadOptions{}))
}

func TestReadQueries_CrossChunkRecency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!crosschunk:example.org"

	older := &models.Chunk{RoomID: roomID}
	seedChunk(t, st, older, textEvent(roomID, "$old", otherUser, 0, 1000))
	newer := &models.Chunk{RoomID: roomID, IsLastForward: true}
	seedChunk(t, st, newer, textEvent(roomID, "$new", otherUser, 0, 2000))

	q := NewReadQueries(st)

	// Receipt in the newer chunk covers events in older chunks.
	setReceipt(t, st, roomID, readUser, models.MainTimeline, "$new")
	require.True(t, q.IsEventRead(ctx, readUser, roomID, "$old", ReadOptions{}))

	setReceipt(t, st, roomID, readUser, models.MainTimeline, "$old")
	require.False(t, q.IsEventRead(ctx, readUser, roomID, "$new", ReadOptions{}))
}

func TestReadQueries_ThreadReceipt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!threadread:example.org"

	chunk := &models.Chunk{RoomID: roomID, IsLastForward: true}
	reply := textEvent(roomID, "$reply1", otherUser, 0, 1000)
	reply.Event.ThreadRootID = "$root"
	later := textEvent(roomID, "$reply2", otherUser, 1, 1100)
	later.Event.ThreadRootID = "$root"
	seedChunk(t, st, chunk, reply, later)

	setReceipt(t, st, roomID, readUser, "$root", "$reply2")

	q := NewReadQueries(st)
	require.False(t, q.IsEventRead(ctx, readUser, roomID, "$reply1", ReadOptions{}))
	require.True(t, q.IsEventRead(ctx, readUser, roomID, "$reply1", ReadOptions{CheckThread: true}))
}

func TestReadQueries_MissingEventHeuristic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!missing:example.org"

	chunk := &models.Chunk{RoomID: roomID, IsLastForward: true}
	seedChunk(t, st, chunk, textEvent(roomID, "$receipted", otherUser, 0, 2000))
	setReceipt(t, st, roomID, readUser, models.MainTimeline, "$receipted")

	q := NewReadQueries(st)

	// Unknown timestamp leans unread.
	require.False(t, q.IsEventRead(ctx, readUser, roomID, "$ghost", ReadOptions{}))

	// The receipt sits on the live edge and is newer than the missing event.
	require.True(t, q.IsEventRead(ctx, readUser, roomID, "$ghost", ReadOptions{EventTS: 1000}))
	require.False(t, q.IsEventRead(ctx, readUser, roomID, "$ghost", ReadOptions{EventTS: 3000}))
}

func TestReadQueries_MissingEventNonLiveReceipt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!missingnonlive:example.org"

	// The receipt's chunk is not the live edge, so the receipt proves
	// nothing about events that arrived later.
	chunk := &models.Chunk{RoomID: roomID}
	seedChunk(t, st, chunk, textEvent(roomID, "$receipted", otherUser, 0, 2000))
	setReceipt(t, st, roomID, readUser, models.MainTimeline, "$receipted")

	q := NewReadQueries(st)
	require.False(t, q.IsEventRead(ctx, readUser, roomID, "$ghost", ReadOptions{EventTS: 1000}))
}

func TestReadQueries_ReadMarker(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!marker:example.org"

	seedMessageChunk(t, st, roomID, 8, true)
	q := NewReadQueries(st)

	require.False(t, q.IsReadMarkerMoreRecent(ctx, roomID, "$ev3"))

	require.NoError(t, st.Read().SetMarker(ctx, &models.ReadMarker{RoomID: roomID, EventID: "$ev5"}))
	require.True(t, q.IsReadMarkerMoreRecent(ctx, roomID, "$ev3"))
	require.True(t, q.IsReadMarkerMoreRecent(ctx, roomID, "$ev5"))
	require.False(t, q.IsReadMarkerMoreRecent(ctx, roomID, "$ev7"))
}

func TestReadQueries_MarkedUnread(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	roomID := "!unread:example.org"

	q := NewReadQueries(st)
	require.False(t, q.IsMarkedUnread(ctx, roomID))

	require.NoError(t, st.Read().UpsertRoom(ctx, &models.RoomSummary{ID: roomID}))
	require.NoError(t, st.Read().SetMarkedUnread(ctx, roomID, true))
	require.True(t, q.IsMarkedUnread(ctx, roomID))
}
