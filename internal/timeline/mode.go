// Package timeline implements the chunk-backed timeline loading strategy:
// chunk-chain management, live/permalink/thread modes, local-echo overlay
// and read-state queries.
package timeline

import (
	"fmt"

	"github.com/roomline/roomline/internal/store"
)

// Mode selects which chunk of a room's history the timeline follows.
// The set is closed: Live, Permalink or Thread.
type Mode interface {
	// selectionFilter builds the store subscription filter for this mode.
	selectionFilter(roomID string) store.Filter

	fmt.Stringer
}

// LiveMode follows the room's live-edge chunk.
type LiveMode struct{}

func (LiveMode) selectionFilter(roomID string) store.Filter {
	return store.Filter{RoomID: roomID, OnlyLastForward: true}
}

func (LiveMode) String() string { return "live" }

// PermalinkMode anchors the timeline to a specific historical event. The
// chunk containing the event may change as new chunks arrive.
type PermalinkMode struct {
	// EventID is the anchor event.
	EventID string
}

func (m PermalinkMode) selectionFilter(roomID string) store.Filter {
	return store.Filter{RoomID: roomID, ContainingEventID: m.EventID}
}

func (m PermalinkMode) String() string { return "permalink:" + m.EventID }

// ThreadMode follows a thread-scoped live-edge chunk, recreated fresh on
// each Start.
type ThreadMode struct {
	// RootEventID is the thread root.
	RootEventID string
}

func (m ThreadMode) selectionFilter(roomID string) store.Filter {
	return store.Filter{RoomID: roomID, ThreadRootID: m.RootEventID, OnlyLastForward: true}
}

func (m ThreadMode) String() string { return "thread:" + m.RootEventID }
