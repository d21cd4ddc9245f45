package timeline

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/models"
	"github.com/roomline/roomline/internal/remote"
	"github.com/roomline/roomline/internal/store"
)

// TimelineChunk is the in-memory wrapper around one stored chunk. It lazily
// materializes events into TimelineEvents, paginates in both directions and
// splices onto neighboring chunks through their identifiers.
//
// All mutation happens on the owning strategy's reconciliation goroutine;
// the internal lock only protects snapshot readers.
type TimelineChunk struct {
	st        *store.Store
	paginator remote.Paginator
	builder   *eventBuilder
	logger    zerolog.Logger

	mu         sync.Mutex
	meta       models.Chunk
	built      []*models.TimelineEvent // ascending display index
	byEventID  map[string]*models.TimelineEvent
	loadedLow  int
	loadedHigh int
	hasWindow  bool
	prev       *TimelineChunk
	next       *TimelineChunk
	closed     bool
}

func newTimelineChunk(st *store.Store, paginator remote.Paginator, builder *eventBuilder, meta models.Chunk, logger zerolog.Logger) *TimelineChunk {
	return &TimelineChunk{
		st:        st,
		paginator: paginator,
		builder:   builder,
		meta:      meta,
		byEventID: make(map[string]*models.TimelineEvent),
		logger:    logger.With().Str("chunk_id", meta.ID).Logger(),
	}
}

// Meta returns the wrapped chunk record as of the last refresh.
func (c *TimelineChunk) Meta() models.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// BuildLatest materializes the newest count events of the chunk.
func (c *TimelineChunk) BuildLatest(ctx context.Context, count int) error {
	events, err := c.st.Events().Latest(ctx, c.meta.ID, count)
	if err != nil {
		return err
	}
	c.resetWindow(ctx, events)
	return nil
}

// BuildAround materializes a window centered on the given event, used when
// the timeline is anchored to a permalink target.
func (c *TimelineChunk) BuildAround(ctx context.Context, eventID string, count int) error {
	events, err := c.st.Events().Around(ctx, c.meta.ID, eventID, count)
	if err != nil {
		return err
	}
	c.resetWindow(ctx, events)
	return nil
}

func (c *TimelineChunk) resetWindow(ctx context.Context, events []*db.StoredEvent) {
	built := make([]*models.TimelineEvent, 0, len(events))
	for _, se := range events {
		built = append(built, c.builder.Build(ctx, se))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.built = built
	c.byEventID = make(map[string]*models.TimelineEvent, len(built))
	for _, te := range built {
		c.byEventID[te.Event.ID] = te
	}
	if len(built) > 0 {
		c.loadedLow = built[0].DisplayIndex
		c.loadedHigh = built[len(built)-1].DisplayIndex
		c.hasWindow = true
	}
}

// Paginate loads up to count more events in the given direction: first from
// the local window, then by splicing onto the linked neighbor chunk, and
// finally by fetching from the server with the chunk's pagination token when
// fetchIfNeeded is set. Returns how many events were added.
func (c *TimelineChunk) Paginate(ctx context.Context, dir models.Direction, count int, fetchIfNeeded bool) (int, error) {
	if count <= 0 {
		return 0, nil
	}

	added, err := c.loadLocal(ctx, dir, count)
	if err != nil {
		return added, err
	}

	if added < count {
		spliced, err := c.paginateNeighbor(ctx, dir, count-added, fetchIfNeeded)
		added += spliced
		if err != nil {
			return added, err
		}
	}

	if added < count && fetchIfNeeded {
		fetched, err := c.fetchMore(ctx, dir, count-added)
		added += fetched
		if err != nil {
			return added, err
		}
	}

	return added, nil
}

func (c *TimelineChunk) loadLocal(ctx context.Context, dir models.Direction, count int) (int, error) {
	c.mu.Lock()
	hasWindow := c.hasWindow
	from := c.loadedLow
	if dir == models.DirectionForwards {
		from = c.loadedHigh
	}
	chunkID := c.meta.ID
	c.mu.Unlock()

	var events []*db.StoredEvent
	var err error
	switch {
	case !hasWindow && dir == models.DirectionBackwards:
		events, err = c.st.Events().Latest(ctx, chunkID, count)
	case !hasWindow:
		events, err = c.st.Events().Window(ctx, chunkID, math.MinInt32, dir, count)
	default:
		events, err = c.st.Events().Window(ctx, chunkID, from, dir, count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load chunk window: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	built := make([]*models.TimelineEvent, 0, len(events))
	for _, se := range events {
		built = append(built, c.builder.Build(ctx, se))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if dir == models.DirectionBackwards {
		c.built = append(built, c.built...)
	} else {
		c.built = append(c.built, built...)
	}
	for _, te := range built {
		c.byEventID[te.Event.ID] = te
	}
	c.loadedLow = c.built[0].DisplayIndex
	c.loadedHigh = c.built[len(c.built)-1].DisplayIndex
	c.hasWindow = true
	return len(built), nil
}

func (c *TimelineChunk) paginateNeighbor(ctx context.Context, dir models.Direction, count int, fetchIfNeeded bool) (int, error) {
	neighbor, err := c.attachNeighbor(ctx, dir)
	if err != nil {
		return 0, err
	}
	if neighbor == nil {
		return 0, nil
	}
	return neighbor.Paginate(ctx, dir, count, fetchIfNeeded)
}

func (c *TimelineChunk) attachNeighbor(ctx context.Context, dir models.Direction) (*TimelineChunk, error) {
	c.mu.Lock()
	existing := c.prev
	if dir == models.DirectionForwards {
		existing = c.next
	}
	neighborID := c.meta.Link(dir)
	c.mu.Unlock()

	if existing != nil {
		return existing, nil
	}
	if neighborID == "" {
		return nil, nil
	}

	meta, err := c.st.Chunks().Get(ctx, neighborID)
	if err != nil {
		if err == db.ErrChunkNotFound {
			c.logger.Warn().Str("neighbor_id", neighborID).Msg("dangling chunk link")
			return nil, nil
		}
		return nil, err
	}

	neighbor := newTimelineChunk(c.st, c.paginator, c.builder, *meta, c.logger)

	c.mu.Lock()
	if dir == models.DirectionForwards {
		c.next = neighbor
		neighbor.prev = c
	} else {
		c.prev = neighbor
		neighbor.next = c
	}
	c.mu.Unlock()
	return neighbor, nil
}

func (c *TimelineChunk) fetchMore(ctx context.Context, dir models.Direction, count int) (int, error) {
	c.mu.Lock()
	token := c.meta.Token(dir)
	roomID := c.meta.RoomID
	chunkID := c.meta.ID
	c.mu.Unlock()

	if token == "" || c.paginator == nil {
		return 0, nil
	}

	result, err := c.paginator.Paginate(ctx, roomID, token, dir, count)
	if err != nil {
		return 0, err
	}
	c.logger.Debug().
		Str("direction", string(dir)).
		Int("event_count", result.EventCount).
		Bool("reached_end", result.ReachedEnd).
		Msg("paginated from server")

	// The transport wrote into the store; refresh our metadata (tokens and
	// links may have changed) and pull the new rows.
	meta, err := c.st.Chunks().Get(ctx, chunkID)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.meta = *meta
	c.mu.Unlock()

	return c.loadLocal(ctx, dir, count)
}

// chain returns the loaded chunks from oldest to newest.
func (c *TimelineChunk) chain() []*TimelineChunk {
	head := c
	for {
		head.mu.Lock()
		prev := head.prev
		head.mu.Unlock()
		if prev == nil {
			break
		}
		head = prev
	}

	var chunks []*TimelineChunk
	for node := head; node != nil; {
		chunks = append(chunks, node)
		node.mu.Lock()
		next := node.next
		node.mu.Unlock()
		node = next
	}
	return chunks
}

// SnapshotEvents returns every built event across the spliced chain,
// newest first.
func (c *TimelineChunk) SnapshotEvents() []*models.TimelineEvent {
	var ascending []*models.TimelineEvent
	for _, node := range c.chain() {
		node.mu.Lock()
		ascending = append(ascending, node.built...)
		node.mu.Unlock()
	}

	snapshot := make([]*models.TimelineEvent, len(ascending))
	for i, te := range ascending {
		snapshot[len(ascending)-1-i] = te
	}
	return snapshot
}

// GetBuiltEvent returns the already-materialized event with the given ID,
// or nil.
func (c *TimelineChunk) GetBuiltEvent(eventID string) *models.TimelineEvent {
	for _, node := range c.chain() {
		node.mu.Lock()
		te := node.byEventID[eventID]
		node.mu.Unlock()
		if te != nil {
			return te
		}
	}
	return nil
}

// ReachesLiveEdge reports whether the loaded chain includes a live-edge
// chunk.
func (c *TimelineChunk) ReachesLiveEdge() bool {
	for _, node := range c.chain() {
		node.mu.Lock()
		live := node.meta.IsLastForward || node.meta.IsLastForwardThread
		node.mu.Unlock()
		if live {
			return true
		}
	}
	return false
}

// Close severs the chain's in-memory links so the chunks can be collected.
func (c *TimelineChunk) Close() {
	for _, node := range c.chain() {
		node.mu.Lock()
		node.prev = nil
		node.next = nil
		node.closed = true
		node.mu.Unlock()
	}
}
