// Package store combines the chunk repositories with reactive change
// notifications, forming the observable chunk store the timeline strategy
// subscribes to.
package store

import (
	"sync"

	"github.com/roomline/roomline/internal/models"
)

// ChangeKind classifies a chunk change notification.
type ChangeKind string

const (
	// ChangeInserted fires when a chunk is created.
	ChangeInserted ChangeKind = "inserted"

	// ChangeUpdated fires when a chunk's links, tokens or contents change.
	ChangeUpdated ChangeKind = "updated"

	// ChangeDeleted fires when a chunk is removed.
	ChangeDeleted ChangeKind = "deleted"
)

// ChunkChange is a typed change notification for one chunk.
type ChunkChange struct {
	// Kind classifies the change.
	Kind ChangeKind

	// Chunk is the chunk state after the change (before, for deletions).
	Chunk models.Chunk

	// InsertedEventIDs lists event IDs added by this change, if any.
	InsertedEventIDs []string
}

// ChangeHandler is a callback invoked when a change matches a subscription.
type ChangeHandler func(change ChunkChange)

// Filter defines the chunk selection a subscription observes.
type Filter struct {
	// RoomID restricts to one room (empty = all rooms).
	RoomID string

	// OnlyLastForward restricts to the room's live-edge chunk.
	OnlyLastForward bool

	// ThreadRootID restricts to thread-scoped chunks with this root, and
	// with OnlyLastForward set, to the thread's live edge.
	ThreadRootID string

	// ContainingEventID matches changes that insert this event, in addition
	// to changes on chunks already known to contain it (tracked by the
	// subscriber through KnownChunkID).
	ContainingEventID string

	// KnownChunkID matches changes on this specific chunk.
	KnownChunkID string
}

// Matches returns true if the change falls inside the filter's selection.
func (f *Filter) Matches(change ChunkChange) bool {
	chunk := change.Chunk

	if f.RoomID != "" && chunk.RoomID != f.RoomID {
		return false
	}

	if f.ContainingEventID != "" || f.KnownChunkID != "" {
		if f.KnownChunkID != "" && chunk.ID == f.KnownChunkID {
			return true
		}
		for _, id := range change.InsertedEventIDs {
			if id == f.ContainingEventID {
				return true
			}
		}
		return false
	}

	if f.ThreadRootID != "" {
		if chunk.RootThreadEventID != f.ThreadRootID {
			return false
		}
		if f.OnlyLastForward && !chunk.IsLastForwardThread && change.Kind != ChangeDeleted {
			return false
		}
		return true
	}

	// Main-timeline selections ignore thread-scoped chunks.
	if chunk.RootThreadEventID != "" {
		return false
	}

	if f.OnlyLastForward && !chunk.IsLastForward && change.Kind != ChangeDeleted {
		return false
	}

	return true
}

// subscription is one active observer of the chunk store.
type subscription struct {
	id      string
	filter  Filter
	handler ChangeHandler
}

// Notifier dispatches chunk changes to subscribers.
type Notifier struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subscriptions: make(map[string]*subscription),
	}
}

// Notifier errors.
var (
	ErrInvalidSubscriptionID = &NotifierError{Message: "subscription ID is required"}
	ErrNilHandler            = &NotifierError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &NotifierError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &NotifierError{Message: "subscription not found"}
)

// NotifierError represents an error from notifier operations.
type NotifierError struct {
	Message string
}

func (e *NotifierError) Error() string {
	return e.Message
}

// Subscribe registers a handler for changes matching the filter.
func (n *Notifier) Subscribe(id string, filter Filter, handler ChangeHandler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}

	n.subscriptions[id] = &subscription{id: id, filter: filter, handler: handler}
	return nil
}

// UpdateSubscription replaces the filter of an existing subscription.
func (n *Notifier) UpdateSubscription(id string, filter Filter) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, exists := n.subscriptions[id]
	if !exists {
		return ErrSubscriptionNotFound
	}
	sub.filter = filter
	return nil
}

// Unsubscribe removes a subscription by ID.
func (n *Notifier) Unsubscribe(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(n.subscriptions, id)
	return nil
}

// Publish delivers a change to all matching subscribers. Handlers are
// invoked outside the lock to avoid deadlocks.
func (n *Notifier) Publish(change ChunkChange) {
	n.mu.RLock()
	var handlers []ChangeHandler
	for _, sub := range n.subscriptions {
		if sub.filter.Matches(change) {
			handlers = append(handlers, sub.handler)
		}
	}
	n.mu.RUnlock()

	for _, handler := range handlers {
		handler(change)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscriptions)
}
