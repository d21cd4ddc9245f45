package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/roomline/roomline/internal/models"
)

func TestNotifier_SubscribeValidation(t *testing.T) {
	n := NewNotifier()

	err := n.Subscribe("", Filter{}, func(ChunkChange) {})
	require.ErrorIs(t, err, ErrInvalidSubscriptionID)

	err = n.Subscribe("sub", Filter{}, nil)
	require.ErrorIs(t, err, ErrNilHandler)

	require.NoError(t, n.Subscribe("sub", Filter{}, func(ChunkChange) {}))
	err = n.Subscribe("sub", Filter{}, func(ChunkChange) {})
	require.ErrorIs(t, err, ErrSubscriptionExists)

	require.Equal(t, 1, n.SubscriberCount())
	require.NoError(t, n.Unsubscribe("sub"))
	require.ErrorIs(t, n.Unsubscribe("sub"), ErrSubscriptionNotFound)
}

func TestNotifier_PublishDelivery(t *testing.T) {
	n := NewNotifier()
	var received []ChunkChange

	require.NoError(t, n.Subscribe("live", Filter{RoomID: "!a", OnlyLastForward: true}, func(change ChunkChange) {
		received = append(received, change)
	}))

	// Matching change.
	n.Publish(ChunkChange{
		Kind:  ChangeInserted,
		Chunk: models.Chunk{ID: "c1", RoomID: "!a", IsLastForward: true},
	})
	// Wrong room.
	n.Publish(ChunkChange{
		Kind:  ChangeInserted,
		Chunk: models.Chunk{ID: "c2", RoomID: "!b", IsLastForward: true},
	})
	// Not the live edge.
	n.Publish(ChunkChange{
		Kind:  ChangeUpdated,
		Chunk: models.Chunk{ID: "c3", RoomID: "!a"},
	})

	require.Len(t, received, 1)
	require.Equal(t, "c1", received[0].Chunk.ID)
}

func TestNotifier_UpdateSubscription(t *testing.T) {
	n := NewNotifier()
	var received []string

	require.NoError(t, n.Subscribe("sub", Filter{RoomID: "!a", ContainingEventID: "$target"}, func(change ChunkChange) {
		received = append(received, change.Chunk.ID)
	}))

	// Only the change inserting the target matches before the chunk is known.
	n.Publish(ChunkChange{
		Kind:             ChangeInserted,
		Chunk:            models.Chunk{ID: "c1", RoomID: "!a"},
		InsertedEventIDs: []string{"$other"},
	})
	n.Publish(ChunkChange{
		Kind:             ChangeInserted,
		Chunk:            models.Chunk{ID: "c2", RoomID: "!a"},
		InsertedEventIDs: []string{"$target"},
	})
	require.Equal(t, []string{"c2"}, received)

	// After tracking the resolved chunk, unrelated updates on it match too.
	require.NoError(t, n.UpdateSubscription("sub", Filter{
		RoomID:            "!a",
		ContainingEventID: "$target",
		KnownChunkID:      "c2",
	}))
	n.Publish(ChunkChange{
		Kind:  ChangeUpdated,
		Chunk: models.Chunk{ID: "c2", RoomID: "!a"},
	})
	require.Equal(t, []string{"c2", "c2"}, received)

	require.ErrorIs(t, n.UpdateSubscription("ghost", Filter{}), ErrSubscriptionNotFound)
}

func TestFilter_ThreadSelection(t *testing.T) {
	filter := Filter{RoomID: "!a", ThreadRootID: "$root", OnlyLastForward: true}

	threadLive := ChunkChange{
		Kind:  ChangeInserted,
		Chunk: models.Chunk{RoomID: "!a", RootThreadEventID: "$root", IsLastForwardThread: true},
	}
	require.True(t, filter.Matches(threadLive))

	otherThread := ChunkChange{
		Kind:  ChangeInserted,
		Chunk: models.Chunk{RoomID: "!a", RootThreadEventID: "$other", IsLastForwardThread: true},
	}
	require.False(t, filter.Matches(otherThread))

	// Deletions of the followed chunk match even though the flag is gone.
	threadDeleted := ChunkChange{
		Kind:  ChangeDeleted,
		Chunk: models.Chunk{RoomID: "!a", RootThreadEventID: "$root"},
	}
	require.True(t, filter.Matches(threadDeleted))
}

func TestFilter_MainTimelineExcludesThreads(t *testing.T) {
	filter := Filter{RoomID: "!a", OnlyLastForward: true}

	threadChunk := ChunkChange{
		Kind:  ChangeInserted,
		Chunk: models.Chunk{RoomID: "!a", RootThreadEventID: "$root", IsLastForwardThread: true},
	}
	require.False(t, filter.Matches(threadChunk))

	liveDeleted := ChunkChange{
		Kind:  ChangeDeleted,
		Chunk: models.Chunk{RoomID: "!a"},
	}
	require.True(t, filter.Matches(liveDeleted))
}
