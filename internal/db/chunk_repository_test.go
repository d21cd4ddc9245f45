package db

import (
	"context"
	"testing"

	"github.com/roomline/roomline/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return database
}

func TestChunkRepository_CreateAndGet(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	repo := NewChunkRepository(database)
	ctx := context.Background()

	chunk := &models.Chunk{
		RoomID:        "!room:example.org",
		PrevToken:     "t100",
		NextToken:     "t200",
		IsLastForward: true,
	}

	if err := repo.Create(ctx, chunk); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if chunk.ID == "" {
		t.Fatal("expected an assigned chunk ID")
	}
	if chunk.Seq == 0 {
		t.Fatal("expected an assigned seq")
	}

	got, err := repo.Get(ctx, chunk.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RoomID != chunk.RoomID {
		t.Errorf("RoomID = %q, want %q", got.RoomID, chunk.RoomID)
	}
	if got.PrevToken != "t100" || got.NextToken != "t200" {
		t.Errorf("tokens = %q/%q, want t100/t200", got.PrevToken, got.NextToken)
	}
	if !got.IsLastForward {
		t.Error("expected IsLastForward to persist")
	}
}

func TestChunkRepository_GetNotFound(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	repo := NewChunkRepository(database)

	_, err := repo.Get(context.Background(), "missing")
	if err != ErrChunkNotFound {
		t.Fatalf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestChunkRepository_LiveChunkUniqueness(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	repo := NewChunkRepository(database)
	ctx := context.Background()
	roomID := "!live:example.org"

	first := &models.Chunk{RoomID: roomID, IsLastForward: true}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create first failed: %v", err)
	}

	// Creating a second live-edge chunk clears the flag from the first.
	second := &models.Chunk{RoomID: roomID, IsLastForward: true}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create second failed: %v", err)
	}

	live, err := repo.LiveChunk(ctx, roomID)
	if err != nil {
		t.Fatalf("LiveChunk failed: %v", err)
	}
	if live.ID != second.ID {
		t.Errorf("live chunk = %s, want %s", live.ID, second.ID)
	}

	demoted, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get first failed: %v", err)
	}
	if demoted.IsLastForward {
		t.Error("first chunk should have lost the live-edge flag")
	}
}

func TestChunkRepository_ThreadLiveChunkUniqueness(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	repo := NewChunkRepository(database)
	ctx := context.Background()
	roomID := "!threads:example.org"
	rootID := "$root"

	first := &models.Chunk{RoomID: roomID, RootThreadEventID: rootID, IsLastForwardThread: true}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create first failed: %v", err)
	}

	// A live chunk for a different thread must not be affected.
	other := &models.Chunk{RoomID: roomID, RootThreadEventID: "$other", IsLastForwardThread: true}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("Create other failed: %v", err)
	}

	second := &models.Chunk{RoomID: roomID, RootThreadEventID: rootID, IsLastForwardThread: true}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create second failed: %v", err)
	}

	live, err := repo.ThreadLiveChunk(ctx, roomID, rootID)
	if err != nil {
		t.Fatalf("ThreadLiveChunk failed: %v", err)
	}
	if live.ID != second.ID {
		t.Errorf("thread live chunk = %s, want %s", live.ID, second.ID)
	}

	otherLive, err := repo.ThreadLiveChunk(ctx, roomID, "$other")
	if err != nil {
		t.Fatalf("ThreadLiveChunk other failed: %v", err)
	}
	if otherLive.ID != other.ID {
		t.Error("other thread's live chunk should be untouched")
	}
}

func TestChunkRepository_SetLinkAndTokens(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	repo := NewChunkRepository(database)
	ctx := context.Background()
	roomID := "!links:example.org"

	older := &models.Chunk{RoomID: roomID}
	newer := &models.Chunk{RoomID: roomID, IsLastForward: true}
	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("Create older failed: %v", err)
	}
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("Create newer failed: %v", err)
	}

	if err := repo.SetLink(ctx, older.ID, models.DirectionForwards, newer.ID); err != nil {
		t.Fatalf("SetLink forwards failed: %v", err)
	}
	if err := repo.SetLink(ctx, newer.ID, models.DirectionBackwards, older.ID); err != nil {
		t.Fatalf("SetLink backwards failed: %v", err)
	}
	if err := repo.SetTokens(ctx, older.ID, "t1", "t2"); err != nil {
		t.Fatalf("SetTokens failed: %v", err)
	}

	got, err := repo.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.NextChunkID != newer.ID {
		t.Errorf("NextChunkID = %q, want %q", got.NextChunkID, newer.ID)
	}
	if got.PrevToken != "t1" || got.NextToken != "t2" {
		t.Errorf("tokens = %q/%q, want t1/t2", got.PrevToken, got.NextToken)
	}

	// Severing a link writes an empty ID.
	if err := repo.SetLink(ctx, older.ID, models.DirectionForwards, ""); err != nil {
		t.Fatalf("SetLink sever failed: %v", err)
	}
	got, err = repo.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.NextChunkID != "" {
		t.Errorf("NextChunkID = %q, want empty", got.NextChunkID)
	}
}

func TestChunkRepository_ChunkContainingEvent(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!containing:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	se := &StoredEvent{
		Event: models.Event{
			ID:             "$target",
			RoomID:         roomID,
			Type:           models.EventTypeMessage,
			SenderID:       "@alice:example.org",
			OriginServerTS: 1000,
		},
		ChunkID:      chunk.ID,
		DisplayIndex: 0,
	}
	if err := events.Insert(ctx, se); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := chunks.ChunkContainingEvent(ctx, roomID, "$target")
	if err != nil {
		t.Fatalf("ChunkContainingEvent failed: %v", err)
	}
	if got.ID != chunk.ID {
		t.Errorf("chunk = %s, want %s", got.ID, chunk.ID)
	}

	if _, err := chunks.ChunkContainingEvent(ctx, roomID, "$missing"); err != ErrChunkNotFound {
		t.Fatalf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestChunkRepository_Delete(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	chunks := NewChunkRepository(database)
	events := NewEventRepository(database)
	ctx := context.Background()
	roomID := "!delete:example.org"

	chunk := &models.Chunk{RoomID: roomID}
	if err := chunks.Create(ctx, chunk); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	se := &StoredEvent{
		Event: models.Event{
			ID:             "$doomed",
			RoomID:         roomID,
			Type:           models.EventTypeMessage,
			SenderID:       "@alice:example.org",
			OriginServerTS: 1000,
		},
		ChunkID: chunk.ID,
	}
	if err := events.Insert(ctx, se); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := chunks.Delete(ctx, chunk.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := chunks.Get(ctx, chunk.ID); err != ErrChunkNotFound {
		t.Fatalf("expected ErrChunkNotFound after delete, got %v", err)
	}
	if _, err := events.Get(ctx, "$doomed"); err != ErrEventNotFound {
		t.Fatalf("expected events to be deleted with the chunk, got %v", err)
	}

	if err := chunks.Delete(ctx, chunk.ID); err != ErrChunkNotFound {
		t.Fatalf("expected ErrChunkNotFound on double delete, got %v", err)
	}
}

func TestChunkRepository_SeqOrdersRecency(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	repo := NewChunkRepository(database)
	ctx := context.Background()
	roomID := "!seq:example.org"

	a := &models.Chunk{RoomID: roomID}
	b := &models.Chunk{RoomID: roomID}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create a failed: %v", err)
	}
	if err := repo.Create(ctx, b); err != nil {
		t.Fatalf("Create b failed: %v", err)
	}
	if b.Seq <= a.Seq {
		t.Errorf("later chunk seq %d should exceed earlier %d", b.Seq, a.Seq)
	}
}
