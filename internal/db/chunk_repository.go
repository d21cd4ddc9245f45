package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/roomline/roomline/internal/models"
)

// Chunk repository errors.
var (
	ErrChunkNotFound = errors.New("chunk not found")
	ErrInvalidChunk  = errors.New("invalid chunk")
)

// ChunkRepository handles chunk persistence and chain links.
type ChunkRepository struct {
	db *DB
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(db *DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

type querier interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

const chunkColumns = `seq, id, room_id, prev_chunk_id, next_chunk_id, prev_token, next_token,
	is_last_forward, is_last_forward_thread, root_thread_event_id`

// Create inserts a chunk, assigning an ID if missing, and fills in the
// store-assigned sequence number. If the chunk is flagged as a live edge,
// the flag is cleared from any other chunk of the same selection inside the
// same transaction so the at-most-one invariant holds.
func (r *ChunkRepository) Create(ctx context.Context, chunk *models.Chunk) error {
	if chunk.RoomID == "" {
		return ErrInvalidChunk
	}
	if chunk.ID == "" {
		chunk.ID = uuid.New().String()
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		return r.createWithTx(ctx, tx, chunk)
	})
}

// CreateWithTx inserts a chunk using an existing transaction.
func (r *ChunkRepository) CreateWithTx(ctx context.Context, tx *sql.Tx, chunk *models.Chunk) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if chunk.RoomID == "" {
		return ErrInvalidChunk
	}
	if chunk.ID == "" {
		chunk.ID = uuid.New().String()
	}
	return r.createWithTx(ctx, tx, chunk)
}

func (r *ChunkRepository) createWithTx(ctx context.Context, tx *sql.Tx, chunk *models.Chunk) error {
	if chunk.IsLastForward {
		if _, err := tx.ExecContext(ctx,
			`UPDATE chunks SET is_last_forward = 0 WHERE room_id = ? AND is_last_forward = 1`,
			chunk.RoomID); err != nil {
			return fmt.Errorf("failed to clear last-forward flag: %w", err)
		}
	}
	if chunk.IsLastForwardThread {
		if _, err := tx.ExecContext(ctx,
			`UPDATE chunks SET is_last_forward_thread = 0
			 WHERE room_id = ? AND root_thread_event_id = ? AND is_last_forward_thread = 1`,
			chunk.RoomID, chunk.RootThreadEventID); err != nil {
			return fmt.Errorf("failed to clear thread last-forward flag: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (
			id, room_id, prev_chunk_id, next_chunk_id, prev_token, next_token,
			is_last_forward, is_last_forward_thread, root_thread_event_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		chunk.ID,
		chunk.RoomID,
		chunk.PrevChunkID,
		chunk.NextChunkID,
		chunk.PrevToken,
		chunk.NextToken,
		boolToInt(chunk.IsLastForward),
		boolToInt(chunk.IsLastForwardThread),
		chunk.RootThreadEventID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read chunk seq: %w", err)
	}
	chunk.Seq = seq
	return nil
}

// Get retrieves a chunk by ID.
func (r *ChunkRepository) Get(ctx context.Context, id string) (*models.Chunk, error) {
	return r.get(ctx, r.db, id)
}

// GetWithTx retrieves a chunk by ID inside an existing transaction.
func (r *ChunkRepository) GetWithTx(ctx context.Context, tx *sql.Tx, id string) (*models.Chunk, error) {
	return r.get(ctx, tx, id)
}

func (r *ChunkRepository) get(ctx context.Context, q querier, id string) (*models.Chunk, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	return scanChunk(row)
}

// LiveChunk returns the room's last-forward chunk, or ErrChunkNotFound.
func (r *ChunkRepository) LiveChunk(ctx context.Context, roomID string) (*models.Chunk, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE room_id = ? AND is_last_forward = 1`, roomID)
	return scanChunk(row)
}

// ThreadLiveChunk returns the thread's last-forward chunk, or
// ErrChunkNotFound.
func (r *ChunkRepository) ThreadLiveChunk(ctx context.Context, roomID, rootEventID string) (*models.Chunk, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE room_id = ? AND root_thread_event_id = ? AND is_last_forward_thread = 1
	`, roomID, rootEventID)
	return scanChunk(row)
}

// ThreadChunks returns all chunks scoped to the given thread root.
func (r *ChunkRepository) ThreadChunks(ctx context.Context, roomID, rootEventID string) ([]*models.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE room_id = ? AND root_thread_event_id = ?
		ORDER BY seq
	`, roomID, rootEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunkContainingEvent returns the chunk holding the given event, or
// ErrChunkNotFound.
func (r *ChunkRepository) ChunkContainingEvent(ctx context.Context, roomID, eventID string) (*models.Chunk, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE room_id = ? AND id = (SELECT chunk_id FROM chunk_events WHERE event_id = ?)
	`, roomID, eventID)
	return scanChunk(row)
}

// RoomChunks returns all of a room's chunks ordered by insertion.
func (r *ChunkRepository) RoomChunks(ctx context.Context, roomID string) ([]*models.Chunk, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE room_id = ? ORDER BY seq`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query room chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// SetTokens updates a chunk's pagination tokens.
func (r *ChunkRepository) SetTokens(ctx context.Context, chunkID, prevToken, nextToken string) error {
	return r.exec(ctx, r.db,
		`UPDATE chunks SET prev_token = ?, next_token = ? WHERE id = ?`,
		prevToken, nextToken, chunkID)
}

// SetLink points chunkID's link in the given direction at targetID.
// An empty targetID severs the link.
func (r *ChunkRepository) SetLink(ctx context.Context, chunkID string, dir models.Direction, targetID string) error {
	return r.setLink(ctx, r.db, chunkID, dir, targetID)
}

// SetLinkWithTx points a chain link inside an existing transaction.
func (r *ChunkRepository) SetLinkWithTx(ctx context.Context, tx *sql.Tx, chunkID string, dir models.Direction, targetID string) error {
	return r.setLink(ctx, tx, chunkID, dir, targetID)
}

func (r *ChunkRepository) setLink(ctx context.Context, e execer, chunkID string, dir models.Direction, targetID string) error {
	column := "prev_chunk_id"
	if dir == models.DirectionForwards {
		column = "next_chunk_id"
	}
	return r.exec(ctx, e,
		`UPDATE chunks SET `+column+` = ? WHERE id = ?`, targetID, chunkID)
}

// Delete removes a chunk and its events.
func (r *ChunkRepository) Delete(ctx context.Context, chunkID string) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		return r.DeleteWithTx(ctx, tx, chunkID)
	})
}

// DeleteWithTx removes a chunk and its events inside an existing
// transaction.
func (r *ChunkRepository) DeleteWithTx(ctx context.Context, tx *sql.Tx, chunkID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_events WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("failed to delete chunk events: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, chunkID)
	if err != nil {
		return fmt.Errorf("failed to delete chunk: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrChunkNotFound
	}
	return nil
}

func (r *ChunkRepository) exec(ctx context.Context, e execer, query string, args ...any) error {
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update chunk: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrChunkNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var c models.Chunk
	var lastForward, lastForwardThread int
	err := row.Scan(
		&c.Seq,
		&c.ID,
		&c.RoomID,
		&c.PrevChunkID,
		&c.NextChunkID,
		&c.PrevToken,
		&c.NextToken,
		&lastForward,
		&lastForwardThread,
		&c.RootThreadEventID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	c.IsLastForward = lastForward != 0
	c.IsLastForwardThread = lastForwardThread != 0
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
