package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roomline/roomline/internal/models"
)

// Event repository errors.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
)

// EventRepository handles events stored inside chunks.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// StoredEvent is an event row together with its chunk placement.
type StoredEvent struct {
	Event        models.Event
	ChunkID      string
	DisplayIndex int

	// SenderDisplayName and SenderAvatarURL are the sender metadata snapshot
	// taken when the event was persisted.
	SenderDisplayName string
	SenderAvatarURL   string
}

const eventColumns = `event_id, chunk_id, room_id, display_index, type, sender_id,
	origin_server_ts, content_json, decrypted_type, decrypted_content_json,
	relates_to_event_id, relation_type, thread_root_id, send_state, transaction_id,
	sender_display_name, sender_avatar_url`

// Insert stores an event in a chunk at the given display index.
func (r *EventRepository) Insert(ctx context.Context, se *StoredEvent) error {
	return r.insert(ctx, r.db, se)
}

// InsertWithTx stores an event using an existing transaction.
func (r *EventRepository) InsertWithTx(ctx context.Context, tx *sql.Tx, se *StoredEvent) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	return r.insert(ctx, tx, se)
}

func (r *EventRepository) insert(ctx context.Context, e execer, se *StoredEvent) error {
	if se.Event.ID == "" || se.Event.RoomID == "" || se.Event.Type == "" {
		return ErrInvalidEvent
	}
	if se.ChunkID == "" {
		return ErrInvalidEvent
	}
	if se.Event.SendState == "" {
		se.Event.SendState = models.SendStateSynced
	}

	_, err := e.ExecContext(ctx, `
		INSERT INTO chunk_events (
			event_id, chunk_id, room_id, display_index, type, sender_id,
			origin_server_ts, content_json, decrypted_type, decrypted_content_json,
			relates_to_event_id, relation_type, thread_root_id, send_state,
			transaction_id, sender_display_name, sender_avatar_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		se.Event.ID,
		se.ChunkID,
		se.Event.RoomID,
		se.DisplayIndex,
		string(se.Event.Type),
		se.Event.SenderID,
		se.Event.OriginServerTS,
		nullableString(se.Event.Content),
		string(se.Event.DecryptedType),
		nullableString(se.Event.DecryptedContent),
		se.Event.RelatesToEventID,
		string(se.Event.RelationType),
		se.Event.ThreadRootID,
		string(se.Event.SendState),
		se.Event.TransactionID,
		se.SenderDisplayName,
		se.SenderAvatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Get retrieves an event by ID.
func (r *EventRepository) Get(ctx context.Context, eventID string) (*StoredEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM chunk_events WHERE event_id = ?`, eventID)
	return scanStoredEvent(row)
}

// Window returns up to limit events of a chunk walking from fromIndex in the
// given direction, ordered by ascending display index. fromIndex itself is
// excluded; pass the current window edge.
func (r *EventRepository) Window(ctx context.Context, chunkID string, fromIndex int, dir models.Direction, limit int) ([]*StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var query string
	if dir == models.DirectionForwards {
		query = `SELECT ` + eventColumns + ` FROM chunk_events
			WHERE chunk_id = ? AND display_index > ?
			ORDER BY display_index ASC LIMIT ?`
	} else {
		query = `SELECT ` + eventColumns + ` FROM chunk_events
			WHERE chunk_id = ? AND display_index < ?
			ORDER BY display_index DESC LIMIT ?`
	}

	rows, err := r.db.QueryContext(ctx, query, chunkID, fromIndex, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query event window: %w", err)
	}
	defer rows.Close()

	events, err := scanStoredEvents(rows)
	if err != nil {
		return nil, err
	}
	if dir == models.DirectionBackwards {
		reverse(events)
	}
	return events, nil
}

// Latest returns the newest limit events of a chunk ordered by ascending
// display index.
func (r *EventRepository) Latest(ctx context.Context, chunkID string, limit int) ([]*StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM chunk_events
		WHERE chunk_id = ? ORDER BY display_index DESC LIMIT ?
	`, chunkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest events: %w", err)
	}
	defer rows.Close()

	events, err := scanStoredEvents(rows)
	if err != nil {
		return nil, err
	}
	reverse(events)
	return events, nil
}

// Around returns up to limit events centered on the given event's display
// index, ordered ascending. Used when anchoring a timeline to a permalink
// target.
func (r *EventRepository) Around(ctx context.Context, chunkID, eventID string, limit int) ([]*StoredEvent, error) {
	anchor, err := r.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	half := limit / 2

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM chunk_events
		WHERE chunk_id = ? AND display_index BETWEEN ? AND ?
		ORDER BY display_index ASC
	`, chunkID, anchor.DisplayIndex-half, anchor.DisplayIndex+half)
	if err != nil {
		return nil, fmt.Errorf("failed to query events around anchor: %w", err)
	}
	defer rows.Close()
	return scanStoredEvents(rows)
}

// Boundary returns the chunk's edge event in the given direction: the
// highest display index for forwards, the lowest for backwards.
// Returns ErrEventNotFound for an empty chunk.
func (r *EventRepository) Boundary(ctx context.Context, chunkID string, dir models.Direction) (*StoredEvent, error) {
	order := "ASC"
	if dir == models.DirectionForwards {
		order = "DESC"
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM chunk_events WHERE chunk_id = ? ORDER BY display_index `+order+` LIMIT 1`,
		chunkID)
	return scanStoredEvent(row)
}

// Count returns the number of events in a chunk.
func (r *EventRepository) Count(ctx context.Context, chunkID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunk_events WHERE chunk_id = ?`, chunkID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunk events: %w", err)
	}
	return n, nil
}

// EditsOf returns the m.replace events targeting the given event, newest
// first.
func (r *EventRepository) EditsOf(ctx context.Context, roomID, eventID string) ([]*StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM chunk_events
		WHERE room_id = ? AND relates_to_event_id = ? AND relation_type = ?
		ORDER BY origin_server_ts DESC
	`, roomID, eventID, string(models.RelationTypeReplace))
	if err != nil {
		return nil, fmt.Errorf("failed to query edits: %w", err)
	}
	defer rows.Close()
	return scanStoredEvents(rows)
}

// RelationsOf returns the events relating to the given event with the given
// relation type, oldest first.
func (r *EventRepository) RelationsOf(ctx context.Context, roomID, eventID string, relType models.RelationType) ([]*StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM chunk_events
		WHERE room_id = ? AND relates_to_event_id = ? AND relation_type = ?
		ORDER BY origin_server_ts ASC
	`, roomID, eventID, string(relType))
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()
	return scanStoredEvents(rows)
}

// ThreadStats returns the reply count and newest reply ID for a thread root.
func (r *EventRepository) ThreadStats(ctx context.Context, roomID, rootEventID string) (int, string, error) {
	var count int
	var latest sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			(SELECT event_id FROM chunk_events
			 WHERE room_id = ? AND thread_root_id = ?
			 ORDER BY origin_server_ts DESC LIMIT 1)
		FROM chunk_events WHERE room_id = ? AND thread_root_id = ?
	`, roomID, rootEventID, roomID, rootEventID).Scan(&count, &latest)
	if err != nil {
		return 0, "", fmt.Errorf("failed to query thread stats: %w", err)
	}
	return count, latest.String, nil
}

// LatestMemberEvents returns, per sender, the newest m.room.member event in
// the room. Feeds the live sender-state overlay.
func (r *EventRepository) LatestMemberEvents(ctx context.Context, roomID string) ([]*StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM chunk_events ce
		WHERE room_id = ? AND type = ?
		AND origin_server_ts = (
			SELECT MAX(origin_server_ts) FROM chunk_events
			WHERE room_id = ce.room_id AND type = ce.type AND sender_id = ce.sender_id
		)
	`, roomID, string(models.EventTypeMember))
	if err != nil {
		return nil, fmt.Errorf("failed to query member events: %w", err)
	}
	defer rows.Close()
	return scanStoredEvents(rows)
}

func scanStoredEvent(row rowScanner) (*StoredEvent, error) {
	var se StoredEvent
	var content, decryptedContent sql.NullString
	var eventType, decryptedType, relationType, sendState string
	err := row.Scan(
		&se.Event.ID,
		&se.ChunkID,
		&se.Event.RoomID,
		&se.DisplayIndex,
		&eventType,
		&se.Event.SenderID,
		&se.Event.OriginServerTS,
		&content,
		&decryptedType,
		&decryptedContent,
		&se.Event.RelatesToEventID,
		&relationType,
		&se.Event.ThreadRootID,
		&sendState,
		&se.Event.TransactionID,
		&se.SenderDisplayName,
		&se.SenderAvatarURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	se.Event.Type = models.EventType(eventType)
	se.Event.DecryptedType = models.EventType(decryptedType)
	se.Event.RelationType = models.RelationType(relationType)
	se.Event.SendState = models.SendState(sendState)
	if content.Valid {
		se.Event.Content = []byte(content.String)
	}
	if decryptedContent.Valid {
		se.Event.DecryptedContent = []byte(decryptedContent.String)
	}
	return &se, nil
}

func scanStoredEvents(rows *sql.Rows) ([]*StoredEvent, error) {
	var events []*StoredEvent
	for rows.Next() {
		se, err := scanStoredEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, se)
	}
	return events, rows.Err()
}

func nullableString(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}

func reverse(events []*StoredEvent) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
