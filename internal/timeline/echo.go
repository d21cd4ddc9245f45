package timeline

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/roomline/roomline/internal/clock"
	"github.com/roomline/roomline/internal/models"
)

// Echo manager errors.
var (
	ErrDuplicateEcho = errors.New("echo with this transaction ID already registered")
	ErrEchoNotFound  = errors.New("echo not found")
)

// EchoManager tracks locally-originated, not-yet-confirmed events. It
// guarantees at most one live representation per transaction ID; once a
// confirmed event with a matching transaction ID arrives, the echo is
// retired and excluded from subsequent snapshots.
type EchoManager struct {
	clk clock.Clock

	mu     sync.Mutex
	echoes map[string]*models.TimelineEvent // by transaction ID
	order  []string                         // transaction IDs, oldest first
}

// NewEchoManager creates an empty EchoManager.
func NewEchoManager(clk clock.Clock) *EchoManager {
	return &EchoManager{
		clk:    clk,
		echoes: make(map[string]*models.TimelineEvent),
	}
}

// CreateEcho builds and registers a local echo for an outgoing event.
func (m *EchoManager) CreateEcho(roomID, senderID string, eventType models.EventType, content json.RawMessage, threadRootID string) (*models.TimelineEvent, error) {
	txnID := uuid.New().String()
	te := &models.TimelineEvent{
		LocalID: models.NextLocalID(),
		Event: models.Event{
			ID:             models.LocalEchoPrefix + txnID,
			RoomID:         roomID,
			Type:           eventType,
			SenderID:       senderID,
			OriginServerTS: m.clk.EpochMillis(),
			Content:        content,
			ThreadRootID:   threadRootID,
			SendState:      models.SendStateUnsent,
			TransactionID:  txnID,
		},
	}
	if err := m.Register(te); err != nil {
		return nil, err
	}
	return te, nil
}

// Register adds a locally created echo. The event must carry a transaction
// ID.
func (m *EchoManager) Register(te *models.TimelineEvent) error {
	txnID := te.Event.TransactionID
	if txnID == "" {
		return errors.New("echo requires a transaction ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.echoes[txnID]; exists {
		return ErrDuplicateEcho
	}
	m.echoes[txnID] = te
	m.order = append(m.order, txnID)
	return nil
}

// UpdateSendState transitions an echo's send state, looked up by its local
// event ID.
func (m *EchoManager) UpdateSendState(eventID string, state models.SendState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, te := range m.echoes {
		if te.Event.ID == eventID {
			te.Event.SendState = state
			return nil
		}
	}
	return ErrEchoNotFound
}

// RebuildEvent replaces an already-built echo by its event ID, used when
// decorating. The rebuilder receives the current representation and returns
// the replacement; returning nil keeps the original.
func (m *EchoManager) RebuildEvent(eventID string, rebuild func(*models.TimelineEvent) *models.TimelineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for txnID, te := range m.echoes {
		if te.Event.ID == eventID {
			if replacement := rebuild(te); replacement != nil {
				m.echoes[txnID] = replacement
			}
			return nil
		}
	}
	return ErrEchoNotFound
}

// Retire removes the echo once its confirmed event arrived (or on explicit
// retraction). Returns true if an echo was retired.
func (m *EchoManager) Retire(txnID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.echoes[txnID]; !exists {
		return false
	}
	delete(m.echoes, txnID)
	for i, id := range m.order {
		if id == txnID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Pending returns the live echoes, newest first.
func (m *EchoManager) Pending() []*models.TimelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := make([]*models.TimelineEvent, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		pending = append(pending, m.echoes[m.order[i]])
	}
	return pending
}

// Get returns the live echo with the given local event ID, or nil.
func (m *EchoManager) Get(eventID string) *models.TimelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, te := range m.echoes {
		if te.Event.ID == eventID {
			return te
		}
	}
	return nil
}

// SendingEventsDataSource produces the ordered list of locally-queued
// outgoing events for one timeline's scope (room, optionally a thread).
type SendingEventsDataSource struct {
	roomID       string
	threadRootID string
	echoes       *EchoManager

	mu      sync.Mutex
	started bool
}

// NewSendingEventsDataSource creates a data source scoped to a room and,
// when threadRootID is non-empty, to a thread.
func NewSendingEventsDataSource(roomID, threadRootID string, echoes *EchoManager) *SendingEventsDataSource {
	return &SendingEventsDataSource{
		roomID:       roomID,
		threadRootID: threadRootID,
		echoes:       echoes,
	}
}

// Start begins producing pending events.
func (s *SendingEventsDataSource) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

// Stop stops producing pending events.
func (s *SendingEventsDataSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
}

// Pending returns the in-scope pending events, newest first. Empty when the
// source is stopped.
func (s *SendingEventsDataSource) Pending() []*models.TimelineEvent {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	var pending []*models.TimelineEvent
	for _, te := range s.echoes.Pending() {
		if te.Event.RoomID != s.roomID {
			continue
		}
		if s.threadRootID != "" {
			if te.Event.ThreadRootID != s.threadRootID {
				continue
			}
		} else if te.Event.ThreadRootID != "" {
			// Thread-only echoes stay out of the main timeline.
			continue
		}
		pending = append(pending, te)
	}
	return pending
}
