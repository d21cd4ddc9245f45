package timeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/roomline/roomline/internal/models"
	"github.com/roomline/roomline/internal/store"
)

// LiveRoomStateListener tracks the latest known sender display metadata for
// a room so snapshots can render current names instead of the historical
// snapshot taken when each event was persisted.
type LiveRoomStateListener struct {
	st     *store.Store
	roomID string
	logger zerolog.Logger

	mu      sync.RWMutex
	senders map[string]models.SenderInfo
}

// NewLiveRoomStateListener creates a listener for one room.
func NewLiveRoomStateListener(st *store.Store, roomID string) *LiveRoomStateListener {
	return &LiveRoomStateListener{
		st:      st,
		roomID:  roomID,
		senders: make(map[string]models.SenderInfo),
		logger:  zerolog.Nop(),
	}
}

// Refresh reloads the latest member state from the store. The strategy calls
// this on start and whenever the subscribed selection changes.
func (l *LiveRoomStateListener) Refresh(ctx context.Context) error {
	members, err := l.st.Events().LatestMemberEvents(ctx, l.roomID)
	if err != nil {
		return err
	}

	senders := make(map[string]models.SenderInfo, len(members))
	for _, se := range members {
		content, err := models.DecodeMember(&se.Event)
		if err != nil {
			l.logger.Warn().Err(err).Str("event_id", se.Event.ID).Msg("undecodable member event")
			continue
		}
		senders[se.Event.SenderID] = models.SenderInfo{
			DisplayName: content.DisplayName,
			AvatarURL:   content.AvatarURL,
		}
	}

	l.mu.Lock()
	l.senders = senders
	l.mu.Unlock()
	return nil
}

// SenderInfo returns the latest known metadata for a sender.
func (l *LiveRoomStateListener) SenderInfo(senderID string) (models.SenderInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	info, ok := l.senders[senderID]
	return info, ok
}

// Overlay replaces the event's sender snapshot with the live metadata when
// known.
func (l *LiveRoomStateListener) Overlay(te *models.TimelineEvent) {
	if info, ok := l.SenderInfo(te.Event.SenderID); ok {
		te.SenderInfo = info
	}
}
