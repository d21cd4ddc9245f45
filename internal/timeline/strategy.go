package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/roomline/roomline/internal/clock"
	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/logging"
	"github.com/roomline/roomline/internal/models"
	"github.com/roomline/roomline/internal/remote"
	"github.com/roomline/roomline/internal/store"
)

// Strategy errors.
var (
	ErrAlreadyStarted = errors.New("timeline strategy already started")
	ErrNotStarted     = errors.New("timeline strategy not started")

	// ErrPaginationFailed is the generic, recoverable failure returned for
	// pagination and context-fetch problems that do not invalidate the
	// timeline's target. The caller may retry.
	ErrPaginationFailed = errors.New("timeline pagination failed")
)

// StrategyConfig tunes a load-timeline strategy.
type StrategyConfig struct {
	// InitialSize is how many events the first build materializes.
	InitialSize int

	// BuildReadReceipts attaches read receipts to built events.
	BuildReadReceipts bool

	// SenderWithLiveRoomState overlays the latest known sender metadata on
	// snapshots instead of the per-event historical snapshot.
	SenderWithLiveRoomState bool

	// EnableChainRepair runs the chunk-chain integrity passes on rebuild.
	// Off by default; the passes are hardening, not baseline behavior.
	EnableChainRepair bool

	// RepairMaxHops bounds each repair traversal (<= 0 uses the default).
	RepairMaxHops int
}

// DefaultStrategyConfig returns sensible defaults.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		InitialSize:       30,
		BuildReadReceipts: true,
	}
}

// StrategyParams collects the collaborators of a Strategy.
type StrategyParams struct {
	RoomID         string
	Mode           Mode
	Store          *store.Store
	Paginator      remote.Paginator
	ContextFetcher remote.ContextFetcher
	ThreadFetcher  remote.ThreadFetcher
	Decryptor      remote.Decryptor
	Clock          clock.Clock
	Echoes         *EchoManager
	Listener       Listener
	Config         StrategyConfig
}

// Strategy maintains a locally cached, paginated view over a room's chunk
// chain, reconciling it against store change notifications, local echoes
// and live sender state, and exposing an immutable ordered snapshot.
//
// A Strategy has a single logical owner. Change notifications are funneled
// into one reconciliation goroutine; the current TimelineChunk and the
// pending context latch are owned by that goroutine and never mutated from
// outside it.
type Strategy struct {
	roomID         string
	mode           Mode
	st             *store.Store
	paginator      remote.Paginator
	contextFetcher remote.ContextFetcher
	threadFetcher  remote.ThreadFetcher
	decryptor      remote.Decryptor
	clk            clock.Clock
	cfg            StrategyConfig
	listener       Listener
	builder        *eventBuilder
	repairer       *ChainRepairer
	echoes         *EchoManager
	sending        *SendingEventsDataSource
	liveState      *LiveRoomStateListener
	logger         zerolog.Logger

	mu          sync.Mutex
	running     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	changes     chan store.ChunkChange
	overflow    atomic.Bool
	subID       string
	current     *TimelineChunk
	contextDone chan error
	threadChunk string
}

// NewStrategy creates a strategy for the given mode. Missing optional
// collaborators get no-op or default implementations.
func NewStrategy(p StrategyParams) *Strategy {
	if p.Config.InitialSize <= 0 {
		p.Config.InitialSize = DefaultStrategyConfig().InitialSize
	}
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}
	if p.Listener == nil {
		p.Listener = NopListener{}
	}
	if p.Echoes == nil {
		p.Echoes = NewEchoManager(p.Clock)
	}

	threadRoot := ""
	if tm, ok := p.Mode.(ThreadMode); ok {
		threadRoot = tm.RootEventID
	}

	logger := logging.Component("timeline").With().
		Str("room_id", p.RoomID).
		Str("mode", p.Mode.String()).
		Logger()

	s := &Strategy{
		roomID:         p.RoomID,
		mode:           p.Mode,
		st:             p.Store,
		paginator:      p.Paginator,
		contextFetcher: p.ContextFetcher,
		threadFetcher:  p.ThreadFetcher,
		decryptor:      p.Decryptor,
		clk:            p.Clock,
		cfg:            p.Config,
		listener:       p.Listener,
		echoes:         p.Echoes,
		sending:        NewSendingEventsDataSource(p.RoomID, threadRoot, p.Echoes),
		logger:         logger,
	}
	s.builder = newEventBuilder(p.Store, p.Config.BuildReadReceipts, logger)
	s.repairer = NewChainRepairer(p.Store, p.Config.RepairMaxHops)
	if p.Config.SenderWithLiveRoomState {
		s.liveState = NewLiveRoomStateListener(p.Store, p.RoomID)
	}
	return s
}

// SenderWithLiveRoomState reports whether snapshots overlay live sender
// metadata.
func (s *Strategy) SenderWithLiveRoomState() bool {
	return s.cfg.SenderWithLiveRoomState
}

// Start begins observing the chunk store for the selected mode and
// establishes the initial timeline chunk. Idempotent only when paired with
// a matching Stop.
func (s *Strategy) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.runCtx = ctx
	s.cancel = cancel
	s.changes = make(chan store.ChunkChange, 64)
	s.subID = "timeline-" + uuid.New().String()
	s.running = true
	s.mu.Unlock()

	if s.decryptor != nil {
		s.decryptor.Start()
	}
	s.sending.Start()

	// Threads are re-synced fresh each session: clear any stale chunk
	// before subscribing so the cleanup does not flow through the loop.
	if tm, ok := s.mode.(ThreadMode); ok {
		if err := s.resetThreadChunk(ctx, tm.RootEventID); err != nil {
			s.logger.Error().Err(err).Msg("failed to reset thread chunk")
		}
	}

	// The handler must never block: repair passes publish store changes from
	// the reconciliation goroutine itself, which cannot drain the channel at
	// the same time. On a full buffer the change is dropped and the loop
	// reconciles once more against current store state instead.
	err := s.st.Notifier().Subscribe(s.subID, s.mode.selectionFilter(s.roomID), func(change store.ChunkChange) {
		select {
		case s.changes <- change:
		case <-ctx.Done():
		default:
			s.overflow.Store(true)
		}
	})
	if err != nil {
		return err
	}

	// The initial build happens synchronously so callers observe a
	// populated timeline as soon as Start returns; later changes are
	// reconciled on the loop goroutine.
	s.reconcile(ctx, true)

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *Strategy) resetThreadChunk(ctx context.Context, rootEventID string) error {
	stale, err := s.st.Chunks().ThreadChunks(ctx, s.roomID, rootEventID)
	if err != nil {
		return err
	}
	for _, chunk := range stale {
		if err := s.st.DeleteChunk(ctx, chunk.ID); err != nil {
			return err
		}
	}

	fresh := &models.Chunk{
		RoomID:              s.roomID,
		RootThreadEventID:   rootEventID,
		IsLastForwardThread: true,
	}
	if err := s.st.AddChunk(ctx, fresh); err != nil {
		return err
	}

	s.mu.Lock()
	s.threadChunk = fresh.ID
	s.mu.Unlock()
	return nil
}

// Stop tears down subscriptions, releases the timeline chunk, cancels any
// in-flight jump-to-event wait and, in thread mode, deletes the ephemeral
// thread chunk.
func (s *Strategy) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	subID := s.subID
	s.mu.Unlock()

	if err := s.st.Notifier().Unsubscribe(subID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unsubscribe")
	}
	cancel()
	s.wg.Wait()

	s.sending.Stop()
	if s.decryptor != nil {
		s.decryptor.Destroy()
	}

	s.mu.Lock()
	current := s.current
	s.current = nil
	threadChunk := s.threadChunk
	s.threadChunk = ""
	s.contextDone = nil
	s.mu.Unlock()

	if current != nil {
		current.Close()
	}
	if threadChunk != "" {
		if err := s.st.DeleteChunk(context.Background(), threadChunk); err != nil && err != db.ErrChunkNotFound {
			s.logger.Warn().Err(err).Msg("failed to delete thread chunk")
		}
	}
}

func (s *Strategy) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-s.changes:
			s.handleChange(ctx, change)
			for s.overflow.CompareAndSwap(true, false) {
				s.reconcile(ctx, false)
			}
		}
	}
}

// selectChunk queries the store for the chunk the current mode follows.
func (s *Strategy) selectChunk(ctx context.Context) (*models.Chunk, error) {
	switch m := s.mode.(type) {
	case LiveMode:
		return s.st.Chunks().LiveChunk(ctx, s.roomID)
	case PermalinkMode:
		return s.st.Chunks().ChunkContainingEvent(ctx, s.roomID, m.EventID)
	case ThreadMode:
		return s.st.Chunks().ThreadLiveChunk(ctx, s.roomID, m.RootEventID)
	default:
		return nil, fmt.Errorf("unknown timeline mode %T", s.mode)
	}
}

// reconcile rebuilds the timeline chunk wrapper from the store, closing the
// previous one and severing its in-memory links.
func (s *Strategy) reconcile(ctx context.Context, initial bool) {
	meta, err := s.selectChunk(ctx)
	if err != nil && err != db.ErrChunkNotFound {
		s.logger.Error().Err(err).Msg("failed to select chunk")
		return
	}

	var replacement *TimelineChunk
	if meta != nil {
		if s.cfg.EnableChainRepair {
			if changed, err := s.repairer.Repair(ctx, meta.ID); err != nil {
				s.logger.Warn().Err(err).Msg("chain repair failed")
			} else if changed {
				// The chain changed under us; reload the selection.
				if meta, err = s.selectChunk(ctx); err != nil || meta == nil {
					meta = nil
				}
			}
		}
	}
	if meta != nil {
		replacement = newTimelineChunk(s.st, s.paginator, s.builder, *meta, s.logger)
		var buildErr error
		if pm, ok := s.mode.(PermalinkMode); ok {
			buildErr = replacement.BuildAround(ctx, pm.EventID, s.cfg.InitialSize)
		} else {
			buildErr = replacement.BuildLatest(ctx, s.cfg.InitialSize)
		}
		if buildErr != nil {
			s.logger.Error().Err(buildErr).Msg("failed to build timeline chunk")
			replacement = nil
		}
	}

	s.mu.Lock()
	previous := s.current
	s.current = replacement
	subID := s.subID
	s.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	// Permalink subscriptions track the resolved chunk so later changes on
	// it keep matching even though they insert other events.
	if _, ok := s.mode.(PermalinkMode); ok && meta != nil {
		filter := s.mode.selectionFilter(s.roomID)
		filter.KnownChunkID = meta.ID
		if err := s.st.Notifier().UpdateSubscription(subID, filter); err != nil {
			s.logger.Warn().Err(err).Msg("failed to update subscription")
		}
	}

	if s.liveState != nil {
		if err := s.liveState.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to refresh live room state")
		}
	}

	s.listener.OnEventsUpdated(initial)
}

func (s *Strategy) handleChange(ctx context.Context, change store.ChunkChange) {
	switch change.Kind {
	case store.ChangeDeleted:
		s.handleDeletion(ctx, change)
	case store.ChangeInserted, store.ChangeUpdated:
		s.handleInsertion(ctx, change)
	}
}

func (s *Strategy) handleDeletion(ctx context.Context, change store.ChunkChange) {
	s.mu.Lock()
	ownThreadChunk := s.threadChunk == change.Chunk.ID
	s.mu.Unlock()
	if ownThreadChunk {
		return
	}

	s.logger.Debug().Str("chunk_id", change.Chunk.ID).Msg("subscribed chunk deleted")
	s.listener.OnEventsDeleted()
	if change.Chunk.IsLastForward || change.Chunk.IsLastForwardThread {
		s.listener.OnLastForwardDeleted()
	}
	s.reconcile(ctx, false)
}

func (s *Strategy) handleInsertion(ctx context.Context, change store.ChunkChange) {
	s.reconcile(ctx, false)

	// A pending permalink context fetch completes once a chunk containing
	// the target event has arrived.
	if pm, ok := s.mode.(PermalinkMode); ok {
		for _, id := range change.InsertedEventIDs {
			if id == pm.EventID {
				s.resolveContextWait(nil)
				break
			}
		}
	}

	// A newly inserted chunk that is already the live edge means a gap was
	// bridged.
	if change.Kind == store.ChangeInserted &&
		(change.Chunk.IsLastForward || change.Chunk.IsLastForwardThread) {
		s.listener.OnLimitedTimeline()
	}

	s.retireConfirmedEchoes(ctx, change.InsertedEventIDs)

	if len(change.InsertedEventIDs) > 0 {
		s.listener.OnNewTimelineEvents(change.InsertedEventIDs)
	}
}

func (s *Strategy) retireConfirmedEchoes(ctx context.Context, eventIDs []string) {
	for _, id := range eventIDs {
		se, err := s.st.Events().Get(ctx, id)
		if err != nil {
			continue
		}
		if se.Event.TransactionID == "" {
			continue
		}
		if s.echoes.Retire(se.Event.TransactionID) {
			s.logger.Debug().
				Str("event_id", id).
				Str("transaction_id", se.Event.TransactionID).
				Msg("local echo confirmed")
		}
	}
}

// LoadMore requests up to count additional events in the given direction.
// In permalink mode with no chunk resolved yet it fetches context around
// the target event and suspends until the store confirms its arrival; a
// not-found/forbidden/unknown-server failure there is propagated as
// non-recoverable, anything else becomes ErrPaginationFailed. Thread mode
// delegates to thread-specific loading.
func (s *Strategy) LoadMore(ctx context.Context, count int, dir models.Direction, fetchOnServerIfNeeded bool) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotStarted
	}
	current := s.current
	runCtx := s.runCtx
	s.mu.Unlock()

	if pm, ok := s.mode.(PermalinkMode); ok && current == nil {
		return s.awaitContext(ctx, runCtx, pm.EventID)
	}

	if tm, ok := s.mode.(ThreadMode); ok {
		return s.loadMoreThread(ctx, tm.RootEventID, current, dir, count)
	}

	if current == nil {
		return nil
	}
	if _, err := current.Paginate(ctx, dir, count, fetchOnServerIfNeeded); err != nil {
		return fmt.Errorf("%w: %v", ErrPaginationFailed, err)
	}
	return nil
}

// awaitContext resolves context around the permalink target: it issues the
// fetch (at most one in flight) and suspends until the reconciliation loop
// observes a chunk containing the event, the fetch fails, or either context
// is cancelled.
func (s *Strategy) awaitContext(ctx, runCtx context.Context, eventID string) error {
	s.mu.Lock()
	launch := false
	if s.contextDone == nil {
		s.contextDone = make(chan error, 1)
		launch = true
	}
	done := s.contextDone
	s.mu.Unlock()

	if launch {
		go func() {
			if err := s.contextFetcher.FetchContext(runCtx, s.roomID, eventID); err != nil {
				s.resolveContextWait(err)
			}
			// On success the insertion notification resolves the wait.
		}()
	}

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if remote.IsUnrecoverable(err) {
			// The target event can never be resolved; the consumer should
			// restart without it.
			return err
		}
		return fmt.Errorf("%w: %v", ErrPaginationFailed, err)
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return runCtx.Err()
	}
}

func (s *Strategy) resolveContextWait(err error) {
	s.mu.Lock()
	done := s.contextDone
	s.contextDone = nil
	s.mu.Unlock()
	if done != nil {
		done <- err
	}
}

func (s *Strategy) loadMoreThread(ctx context.Context, rootEventID string, current *TimelineChunk, dir models.Direction, count int) error {
	if s.threadFetcher == nil {
		return nil
	}
	from := ""
	if current != nil {
		meta := current.Meta()
		from = meta.Token(dir)
	}
	result, err := s.threadFetcher.FetchThreadTimeline(ctx, s.roomID, rootEventID, from, count)
	if err != nil {
		if remote.IsUnrecoverable(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPaginationFailed, err)
	}
	s.logger.Debug().
		Int("event_count", result.EventCount).
		Bool("reached_end", result.ReachedEnd).
		Msg("fetched thread timeline")
	return nil
}

// BuildSnapshot returns the full ordered list of events visible now, newest
// first: pending outgoing events (when the live edge is loaded, or always
// in thread mode) followed by built chunk events.
func (s *Strategy) BuildSnapshot() []*models.TimelineEvent {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	includePending := false
	if _, ok := s.mode.(ThreadMode); ok {
		includePending = true
	} else if current != nil && current.ReachesLiveEdge() {
		includePending = true
	}

	var snapshot []*models.TimelineEvent
	if includePending {
		snapshot = append(snapshot, s.sending.Pending()...)
	}
	if current != nil {
		snapshot = append(snapshot, current.SnapshotEvents()...)
	}

	if s.liveState != nil {
		for _, te := range snapshot {
			s.liveState.Overlay(te)
		}
	}
	return snapshot
}

// GetBuiltEvent returns the already-materialized event with the given ID,
// checking pending echoes first, or nil.
func (s *Strategy) GetBuiltEvent(eventID string) *models.TimelineEvent {
	if te := s.echoes.Get(eventID); te != nil {
		return te
	}
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return nil
	}
	return current.GetBuiltEvent(eventID)
}

// GetBuiltEventIndex returns the event's position in the current snapshot,
// accounting for the prepended pending events.
func (s *Strategy) GetBuiltEventIndex(eventID string) (int, bool) {
	for i, te := range s.BuildSnapshot() {
		if te.Event.ID == eventID {
			return i, true
		}
	}
	return 0, false
}
