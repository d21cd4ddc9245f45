package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roomline/roomline/internal/models"
)

// Read-state repository errors.
var (
	ErrReceiptNotFound = errors.New("read receipt not found")
	ErrMarkerNotFound  = errors.New("read marker not found")
	ErrRoomNotFound    = errors.New("room not found")
)

// ReadRepository handles read receipts, read markers and room-level
// read-state flags.
type ReadRepository struct {
	db *DB
}

// NewReadRepository creates a new ReadRepository.
func NewReadRepository(db *DB) *ReadRepository {
	return &ReadRepository{db: db}
}

// SetReceipt upserts a user's read receipt for a room (and thread scope).
func (r *ReadRepository) SetReceipt(ctx context.Context, receipt *models.ReadReceipt) error {
	if receipt.RoomID == "" || receipt.UserID == "" || receipt.EventID == "" {
		return fmt.Errorf("room, user and event are required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO read_receipts (room_id, user_id, thread_id, event_id, origin_server_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_id, user_id, thread_id) DO UPDATE SET
			event_id = excluded.event_id,
			origin_server_ts = excluded.origin_server_ts
	`, receipt.RoomID, receipt.UserID, receipt.ThreadID, receipt.EventID, receipt.OriginServerTS)
	if err != nil {
		return fmt.Errorf("failed to upsert read receipt: %w", err)
	}
	return nil
}

// Receipt returns a user's read receipt for the given scope, or
// ErrReceiptNotFound.
func (r *ReadRepository) Receipt(ctx context.Context, roomID, userID, threadID string) (*models.ReadReceipt, error) {
	var receipt models.ReadReceipt
	err := r.db.QueryRowContext(ctx, `
		SELECT room_id, user_id, thread_id, event_id, origin_server_ts
		FROM read_receipts WHERE room_id = ? AND user_id = ? AND thread_id = ?
	`, roomID, userID, threadID).Scan(
		&receipt.RoomID, &receipt.UserID, &receipt.ThreadID,
		&receipt.EventID, &receipt.OriginServerTS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query read receipt: %w", err)
	}
	return &receipt, nil
}

// ReceiptsOnEvent returns all receipts currently pointing at the given
// event.
func (r *ReadRepository) ReceiptsOnEvent(ctx context.Context, roomID, eventID string) ([]models.ReadReceipt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT room_id, user_id, thread_id, event_id, origin_server_ts
		FROM read_receipts WHERE room_id = ? AND event_id = ?
		ORDER BY user_id
	`, roomID, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts on event: %w", err)
	}
	defer rows.Close()

	var receipts []models.ReadReceipt
	for rows.Next() {
		var receipt models.ReadReceipt
		if err := rows.Scan(
			&receipt.RoomID, &receipt.UserID, &receipt.ThreadID,
			&receipt.EventID, &receipt.OriginServerTS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

// SetMarker upserts the room's read marker.
func (r *ReadRepository) SetMarker(ctx context.Context, marker *models.ReadMarker) error {
	if marker.RoomID == "" || marker.EventID == "" {
		return fmt.Errorf("room and event are required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO read_markers (room_id, event_id) VALUES (?, ?)
		ON CONFLICT(room_id) DO UPDATE SET event_id = excluded.event_id
	`, marker.RoomID, marker.EventID)
	if err != nil {
		return fmt.Errorf("failed to upsert read marker: %w", err)
	}
	return nil
}

// Marker returns the room's read marker, or ErrMarkerNotFound.
func (r *ReadRepository) Marker(ctx context.Context, roomID string) (*models.ReadMarker, error) {
	var marker models.ReadMarker
	err := r.db.QueryRowContext(ctx,
		`SELECT room_id, event_id FROM read_markers WHERE room_id = ?`, roomID).
		Scan(&marker.RoomID, &marker.EventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMarkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query read marker: %w", err)
	}
	return &marker, nil
}

// UpsertRoom creates or updates the room summary row.
func (r *ReadRepository) UpsertRoom(ctx context.Context, room *models.RoomSummary) error {
	if room.ID == "" {
		return fmt.Errorf("room id is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (id, marked_unread, latest_event_id, latest_sender_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			marked_unread = excluded.marked_unread,
			latest_event_id = excluded.latest_event_id,
			latest_sender_id = excluded.latest_sender_id
	`, room.ID, boolToInt(room.MarkedUnread), room.LatestEventID, room.LatestSenderID)
	if err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}

// Room returns the room summary, or ErrRoomNotFound.
func (r *ReadRepository) Room(ctx context.Context, roomID string) (*models.RoomSummary, error) {
	var room models.RoomSummary
	var markedUnread int
	err := r.db.QueryRowContext(ctx, `
		SELECT id, marked_unread, latest_event_id, latest_sender_id
		FROM rooms WHERE id = ?
	`, roomID).Scan(&room.ID, &markedUnread, &room.LatestEventID, &room.LatestSenderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query room: %w", err)
	}
	room.MarkedUnread = markedUnread != 0
	return &room, nil
}

// SetMarkedUnread sets the room's manual unread override flag.
func (r *ReadRepository) SetMarkedUnread(ctx context.Context, roomID string, markedUnread bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (id, marked_unread) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET marked_unread = excluded.marked_unread
	`, roomID, boolToInt(markedUnread))
	if err != nil {
		return fmt.Errorf("failed to set marked-unread flag: %w", err)
	}
	return nil
}
