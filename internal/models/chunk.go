package models

// Chunk is a contiguous, ordered run of timeline events with pagination
// continuation tokens. Chunks form a doubly-linked chain per room; links are
// identifiers, never object references, so repair passes can operate on the
// chain without ownership concerns.
type Chunk struct {
	// ID is the chunk identifier (uuid).
	ID string `json:"id"`

	// Seq is a monotonic sequence number assigned by the store on insert.
	// Later chunks have higher Seq; used to compare chunk recency when two
	// events do not share a chunk.
	Seq int64 `json:"seq"`

	// RoomID is the room the chunk belongs to.
	RoomID string `json:"room_id"`

	// PrevChunkID and NextChunkID link the chain. Empty means no link.
	PrevChunkID string `json:"prev_chunk_id,omitempty"`
	NextChunkID string `json:"next_chunk_id,omitempty"`

	// PrevToken and NextToken are pagination continuation cursors for
	// fetching history beyond this chunk.
	PrevToken string `json:"prev_token,omitempty"`
	NextToken string `json:"next_token,omitempty"`

	// IsLastForward marks the live edge of the room's main timeline.
	// At most one chunk per room carries this flag.
	IsLastForward bool `json:"is_last_forward"`

	// IsLastForwardThread marks the live edge for a specific thread.
	// At most one chunk per (room, thread root) carries this flag.
	IsLastForwardThread bool `json:"is_last_forward_thread"`

	// RootThreadEventID is non-empty for thread-scoped chunks.
	RootThreadEventID string `json:"root_thread_event_id,omitempty"`
}

// Direction selects which way to walk or paginate the timeline.
type Direction string

const (
	// DirectionBackwards walks toward older events.
	DirectionBackwards Direction = "backwards"

	// DirectionForwards walks toward newer events.
	DirectionForwards Direction = "forwards"
)

// Token returns the pagination token for the given direction.
func (c *Chunk) Token(dir Direction) string {
	if dir == DirectionForwards {
		return c.NextToken
	}
	return c.PrevToken
}

// Link returns the chunk ID linked in the given direction.
func (c *Chunk) Link(dir Direction) string {
	if dir == DirectionForwards {
		return c.NextChunkID
	}
	return c.PrevChunkID
}

// SetLink sets the chunk ID linked in the given direction.
func (c *Chunk) SetLink(dir Direction, id string) {
	if dir == DirectionForwards {
		c.NextChunkID = id
		return
	}
	c.PrevChunkID = id
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionForwards {
		return DirectionBackwards
	}
	return DirectionForwards
}
