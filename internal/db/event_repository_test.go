package db

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/roomline/roomline/internal/models"
)

func insertTestEvents(t *testing.T, events *EventRepository, chunkID, roomID string, from, to int) {
	t.Helper()
	ctx := context.Background()
	for i := from; i <= to; i++ {
		se := &StoredEvent{
			Event: models.Event{
				ID:             fmt.Sprintf("$ev%d", i),
				RoomID:         roomID,
				Type:           models.EventTypeMessage,
				SenderID:       "@alice:example.org",
				OriginServerTS: int64(1000 + i),
				Content:        json.RawMessage(fmt.Sprintf(`{"msgtype":"m.text","body":"msg %d"}`, i)),
			},
			ChunkID:      chunkID,
			DisplayIndex: i,
		}
		if err := events.Insert(ctx, se); err != nil {
			t.Fatalf("Insert event %d failed: %v", i, err)
		}
	}
}

func TestEventRepository_InsertAndGet(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!events:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create chunk failed: %v", err)
	}

	se := &StoredEvent{
		Event: models.Event{
			ID:             "$hello",
			RoomID:         roomID,
			Type:           models.EventTypeEncrypted,
			DecryptedType:  models.EventTypeMessage,
			SenderID:       "@bob:example.org",
			OriginServerTS: 42,
			Content:        json.RawMessage(`{"ciphertext":"..."}`),
			DecryptedContent: json.RawMessage(
				`{"msgtype":"m.text","body":"hello"}`),
			TransactionID: "txn-1",
		},
		ChunkID:           chunk.ID,
		DisplayIndex:      7,
		SenderDisplayName: "Bob",
		SenderAvatarURL:   "mxc://example.org/bob",
	}
	if err := events.Insert(ctx, se); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := events.Get(ctx, "$hello")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.DisplayIndex != 7 {
		t.Errorf("DisplayIndex = %d, want 7", got.DisplayIndex)
	}
	if got.Event.EffectiveType() != models.EventTypeMessage {
		t.Errorf("EffectiveType = %q, want message type", got.Event.EffectiveType())
	}
	if got.SenderDisplayName != "Bob" {
		t.Errorf("SenderDisplayName = %q, want Bob", got.SenderDisplayName)
	}
	if got.Event.SendState != models.SendStateSynced {
		t.Errorf("SendState = %q, want synced default", got.Event.SendState)
	}
	if got.Event.TransactionID != "txn-1" {
		t.Errorf("TransactionID = %q, want txn-1", got.Event.TransactionID)
	}
}

func TestEventRepository_InsertValidation(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	events := NewEventRepository(database)
	ctx := context.Background()

	missingChunk := &StoredEvent{
		Event: models.Event{
			ID:     "$x",
			RoomID: "!r:example.org",
			Type:   models.EventTypeMessage,
		},
	}
	if err := events.Insert(ctx, missingChunk); err != ErrInvalidEvent {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestEventRepository_LatestAndWindow(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!window:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create chunk failed: %v", err)
	}
	insertTestEvents(t, events, chunk.ID, roomID, 0, 9)

	latest, err := events.Latest(ctx, chunk.ID, 3)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("Latest returned %d events, want 3", len(latest))
	}
	// Ascending display index, ending at the newest.
	if latest[0].DisplayIndex != 7 || latest[2].DisplayIndex != 9 {
		t.Errorf("Latest window = [%d..%d], want [7..9]",
			latest[0].DisplayIndex, latest[2].DisplayIndex)
	}

	// Walking backwards from the window edge excludes the edge itself.
	older, err := events.Window(ctx, chunk.ID, 7, models.DirectionBackwards, 3)
	if err != nil {
		t.Fatalf("Window backwards failed: %v", err)
	}
	if len(older) != 3 {
		t.Fatalf("Window returned %d events, want 3", len(older))
	}
	if older[0].DisplayIndex != 4 || older[2].DisplayIndex != 6 {
		t.Errorf("backwards window = [%d..%d], want [4..6]",
			older[0].DisplayIndex, older[2].DisplayIndex)
	}

	newer, err := events.Window(ctx, chunk.ID, 6, models.DirectionForwards, 5)
	if err != nil {
		t.Fatalf("Window forwards failed: %v", err)
	}
	if len(newer) != 3 {
		t.Fatalf("forwards window returned %d events, want 3", len(newer))
	}
	if newer[0].DisplayIndex != 7 || newer[2].DisplayIndex != 9 {
		t.Errorf("forwards window = [%d..%d], want [7..9]",
			newer[0].DisplayIndex, newer[2].DisplayIndex)
	}
}

func TestEventRepository_Around(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!around:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create chunk failed: %v", err)
	}
	insertTestEvents(t, events, chunk.ID, roomID, 0, 9)

	window, err := events.Around(ctx, chunk.ID, "$ev5", 4)
	if err != nil {
		t.Fatalf("Around failed: %v", err)
	}
	if len(window) != 5 {
		t.Fatalf("Around returned %d events, want 5", len(window))
	}
	if window[0].DisplayIndex != 3 || window[4].DisplayIndex != 7 {
		t.Errorf("around window = [%d..%d], want [3..7]",
			window[0].DisplayIndex, window[4].DisplayIndex)
	}

	if _, err := events.Around(ctx, chunk.ID, "$missing", 4); err != ErrEventNotFound {
		t.Fatalf("expected ErrEventNotFound for missing anchor, got %v", err)
	}
}

func TestEventRepository_Boundary(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!boundary:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create chunk failed: %v", err)
	}

	if _, err := events.Boundary(ctx, chunk.ID, models.DirectionForwards); err != ErrEventNotFound {
		t.Fatalf("expected ErrEventNotFound for empty chunk, got %v", err)
	}

	insertTestEvents(t, events, chunk.ID, roomID, 2, 5)

	oldest, err := events.Boundary(ctx, chunk.ID, models.DirectionBackwards)
	if err != nil {
		t.Fatalf("Boundary backwards failed: %v", err)
	}
	if oldest.DisplayIndex != 2 {
		t.Errorf("oldest boundary = %d, want 2", oldest.DisplayIndex)
	}

	newest, err := events.Boundary(ctx, chunk.ID, models.DirectionForwards)
	if err != nil {
		t.Fatalf("Boundary forwards failed: %v", err)
	}
	if newest.DisplayIndex != 5 {
		t.Errorf("newest boundary = %d, want 5", newest.DisplayIndex)
	}
}

func TestEventRepository_EditsOf(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!edits:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create chunk failed: %v", err)
	}
	insertTestEvents(t, events, chunk.ID, roomID, 0, 0)

	for i, ts := range []int64{2000, 3000} {
		edit := &StoredEvent{
			Event: models.Event{
				ID:               fmt.Sprintf("$edit%d", i),
				RoomID:           roomID,
				Type:             models.EventTypeMessage,
				SenderID:         "@alice:example.org",
				OriginServerTS:   ts,
				RelatesToEventID: "$ev0",
				RelationType:     models.RelationTypeReplace,
				Content:          json.RawMessage(fmt.Sprintf(`{"body":"* v%d"}`, i+2)),
			},
			ChunkID:      chunk.ID,
			DisplayIndex: i + 1,
		}
		if err := events.Insert(ctx, edit); err != nil {
			t.Fatalf("Insert edit failed: %v", err)
		}
	}

	edits, err := events.EditsOf(ctx, roomID, "$ev0")
	if err != nil {
		t.Fatalf("EditsOf failed: %v", err)
	}
	if len(edits) != 2 {
		t.Fatalf("EditsOf returned %d, want 2", len(edits))
	}
	// Newest first.
	if edits[0].Event.ID != "$edit1" {
		t.Errorf("newest edit = %s, want $edit1", edits[0].Event.ID)
	}
}

func TestEventRepository_ThreadStats(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!stats:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create chunk failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		reply := &StoredEvent{
			Event: models.Event{
				ID:             fmt.Sprintf("$reply%d", i),
				RoomID:         roomID,
				Type:           models.EventTypeMessage,
				SenderID:       "@alice:example.org",
				OriginServerTS: int64(100 + i),
				ThreadRootID:   "$root",
			},
			ChunkID:      chunk.ID,
			DisplayIndex: i,
		}
		if err := events.Insert(ctx, reply); err != nil {
			t.Fatalf("Insert reply failed: %v", err)
		}
	}

	count, latest, err := events.ThreadStats(ctx, roomID, "$root")
	if err != nil {
		t.Fatalf("ThreadStats failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if latest != "$reply2" {
		t.Errorf("latest = %s, want $reply2", latest)
	}

	count, latest, err = events.ThreadStats(ctx, roomID, "$empty")
	if err != nil {
		t.Fatalf("ThreadStats empty failed: %v", err)
	}
	if count != 0 || latest != "" {
		t.Errorf("empty thread stats = %d/%q, want 0/empty", count, latest)
	}
}

func TestEventRepository_LatestMemberEvents(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!members:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create chunk failed: %v", err)
	}

	member := func(id, sender, displayName string, ts int64, index int) *StoredEvent {
		return &StoredEvent{
			Event: models.Event{
				ID:             id,
				RoomID:         roomID,
				Type:           models.EventTypeMember,
				SenderID:       sender,
				OriginServerTS: ts,
				Content: json.RawMessage(fmt.Sprintf(
					`{"membership":"join","displayname":%q}`, displayName)),
			},
			ChunkID:      chunk.ID,
			DisplayIndex: index,
		}
	}

	for i, se := range []*StoredEvent{
		member("$m1", "@alice:example.org", "Alice", 100, 0),
		member("$m2", "@alice:example.org", "Alice II", 200, 1),
		member("$m3", "@bob:example.org", "Bob", 150, 2),
	} {
		if err := events.Insert(ctx, se); err != nil {
			t.Fatalf("Insert member %d failed: %v", i, err)
		}
	}

	members, err := events.LatestMemberEvents(ctx, roomID)
	if err != nil {
		t.Fatalf("LatestMemberEvents failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d member events, want 2", len(members))
	}
	bySender := make(map[string]string)
	for _, se := range members {
		bySender[se.Event.SenderID] = se.Event.ID
	}
	if bySender["@alice:example.org"] != "$m2" {
		t.Errorf("alice's latest member event = %s, want $m2", bySender["@alice:example.org"])
	}
	if bySender["@bob:example.org"] != "$m3" {
		t.Errorf("bob's latest member event = %s, want $m3", bySender["@bob:example.org"])
	}
}
