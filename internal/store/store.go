package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/models"
)

// Store is the observable chunk store. All mutations go through it so every
// write produces a matching change notification.
type Store struct {
	database *db.DB
	chunks   *db.ChunkRepository
	events   *db.EventRepository
	read     *db.ReadRepository
	notifier *Notifier
}

// New creates a Store over an opened database.
func New(database *db.DB) *Store {
	return &Store{
		database: database,
		chunks:   db.NewChunkRepository(database),
		events:   db.NewEventRepository(database),
		read:     db.NewReadRepository(database),
		notifier: NewNotifier(),
	}
}

// Chunks exposes the chunk repository for read-only queries.
func (s *Store) Chunks() *db.ChunkRepository { return s.chunks }

// Events exposes the event repository for read-only queries.
func (s *Store) Events() *db.EventRepository { return s.events }

// Read exposes the read-state repository.
func (s *Store) Read() *db.ReadRepository { return s.read }

// Notifier exposes the change notifier for subscriptions.
func (s *Store) Notifier() *Notifier { return s.notifier }

// DB exposes the underlying database, for read-state queries that open
// their own read view.
func (s *Store) DB() *db.DB { return s.database }

// AddChunk creates a chunk and publishes an insertion change.
func (s *Store) AddChunk(ctx context.Context, chunk *models.Chunk) error {
	if err := s.chunks.Create(ctx, chunk); err != nil {
		return err
	}
	s.notifier.Publish(ChunkChange{Kind: ChangeInserted, Chunk: *chunk})
	return nil
}

// AddChunkWithEvents creates a chunk together with its initial events in one
// transaction, then publishes a single insertion change carrying the new
// event IDs. This is how sync and pagination responses land in the store.
func (s *Store) AddChunkWithEvents(ctx context.Context, chunk *models.Chunk, events []*db.StoredEvent) error {
	err := s.database.Transaction(ctx, func(tx *sql.Tx) error {
		if err := s.chunks.CreateWithTx(ctx, tx, chunk); err != nil {
			return err
		}
		for _, se := range events {
			se.ChunkID = chunk.ID
			if err := s.events.InsertWithTx(ctx, tx, se); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	change := ChunkChange{Kind: ChangeInserted, Chunk: *chunk}
	for _, se := range events {
		change.InsertedEventIDs = append(change.InsertedEventIDs, se.Event.ID)
	}
	s.notifier.Publish(change)
	return nil
}

// AddEvents appends events to an existing chunk and publishes an update
// change with the inserted IDs.
func (s *Store) AddEvents(ctx context.Context, chunkID string, events []*db.StoredEvent) error {
	chunk, err := s.chunks.Get(ctx, chunkID)
	if err != nil {
		return err
	}

	err = s.database.Transaction(ctx, func(tx *sql.Tx) error {
		for _, se := range events {
			se.ChunkID = chunkID
			if err := s.events.InsertWithTx(ctx, tx, se); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	change := ChunkChange{Kind: ChangeUpdated, Chunk: *chunk}
	for _, se := range events {
		change.InsertedEventIDs = append(change.InsertedEventIDs, se.Event.ID)
	}
	s.notifier.Publish(change)
	return nil
}

// DeleteChunk removes a chunk and its events, severing links from its
// neighbors, and publishes a deletion change.
func (s *Store) DeleteChunk(ctx context.Context, chunkID string) error {
	chunk, err := s.chunks.Get(ctx, chunkID)
	if err != nil {
		return err
	}

	err = s.database.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if chunk.PrevChunkID != "" {
			if err := s.chunks.SetLinkWithTx(ctx, tx, chunk.PrevChunkID, models.DirectionForwards, ""); err != nil && err != db.ErrChunkNotFound {
				return err
			}
		}
		if chunk.NextChunkID != "" {
			if err := s.chunks.SetLinkWithTx(ctx, tx, chunk.NextChunkID, models.DirectionBackwards, ""); err != nil && err != db.ErrChunkNotFound {
				return err
			}
		}
		return s.chunks.DeleteWithTx(ctx, tx, chunkID)
	})
	if err != nil {
		return err
	}

	s.notifier.Publish(ChunkChange{Kind: ChangeDeleted, Chunk: *chunk})
	return nil
}

// LinkChunks links two chunks as neighbors (from --dir--> to, with the
// reciprocal back-link) and publishes update changes for both.
func (s *Store) LinkChunks(ctx context.Context, fromID string, dir models.Direction, toID string) error {
	err := s.database.Transaction(ctx, func(tx *sql.Tx) error {
		if err := s.chunks.SetLinkWithTx(ctx, tx, fromID, dir, toID); err != nil {
			return err
		}
		return s.chunks.SetLinkWithTx(ctx, tx, toID, dir.Opposite(), fromID)
	})
	if err != nil {
		return err
	}
	return s.publishChunkUpdates(ctx, fromID, toID)
}

// UnlinkChunk severs a chunk's link in one direction and publishes an
// update change.
func (s *Store) UnlinkChunk(ctx context.Context, chunkID string, dir models.Direction) error {
	if err := s.chunks.SetLink(ctx, chunkID, dir, ""); err != nil {
		return err
	}
	return s.publishChunkUpdates(ctx, chunkID)
}

// BridgeOverChunk splices the chain past middleID in the given direction and
// deletes the middle chunk. Used by the empty-chunk repair pass.
func (s *Store) BridgeOverChunk(ctx context.Context, fromID string, dir models.Direction, middleID string) error {
	middle, err := s.chunks.Get(ctx, middleID)
	if err != nil {
		return err
	}
	farID := middle.Link(dir)

	err = s.database.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if err := s.chunks.SetLinkWithTx(ctx, tx, fromID, dir, farID); err != nil {
			return err
		}
		if farID != "" {
			if err := s.chunks.SetLinkWithTx(ctx, tx, farID, dir.Opposite(), fromID); err != nil && err != db.ErrChunkNotFound {
				return err
			}
		}
		return s.chunks.DeleteWithTx(ctx, tx, middleID)
	})
	if err != nil {
		return err
	}

	s.notifier.Publish(ChunkChange{Kind: ChangeDeleted, Chunk: *middle})
	return s.publishChunkUpdates(ctx, fromID)
}

// SetTokens updates a chunk's pagination tokens and publishes an update.
func (s *Store) SetTokens(ctx context.Context, chunkID, prevToken, nextToken string) error {
	if err := s.chunks.SetTokens(ctx, chunkID, prevToken, nextToken); err != nil {
		return err
	}
	return s.publishChunkUpdates(ctx, chunkID)
}

func (s *Store) publishChunkUpdates(ctx context.Context, chunkIDs ...string) error {
	for _, id := range chunkIDs {
		chunk, err := s.chunks.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload chunk %s: %w", id, err)
		}
		s.notifier.Publish(ChunkChange{Kind: ChangeUpdated, Chunk: *chunk})
	}
	return nil
}
