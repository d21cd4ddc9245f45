package timeline

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/models"
	"github.com/roomline/roomline/internal/store"
)

// eventBuilder materializes display-ready TimelineEvents from stored rows,
// attaching aggregated relations and read receipts.
type eventBuilder struct {
	st            *store.Store
	buildReceipts bool
	logger        zerolog.Logger
}

func newEventBuilder(st *store.Store, buildReceipts bool, logger zerolog.Logger) *eventBuilder {
	return &eventBuilder{st: st, buildReceipts: buildReceipts, logger: logger}
}

// Build projects a stored event into a TimelineEvent. Aggregation failures
// degrade to an unannotated event rather than failing the build.
func (b *eventBuilder) Build(ctx context.Context, se *db.StoredEvent) *models.TimelineEvent {
	te := &models.TimelineEvent{
		LocalID:      models.NextLocalID(),
		Event:        se.Event,
		DisplayIndex: se.DisplayIndex,
		SenderInfo: models.SenderInfo{
			DisplayName: se.SenderDisplayName,
			AvatarURL:   se.SenderAvatarURL,
		},
	}

	te.Annotations = b.aggregate(ctx, se)

	if b.buildReceipts {
		receipts, err := b.st.Read().ReceiptsOnEvent(ctx, se.Event.RoomID, se.Event.ID)
		if err != nil {
			b.logger.Warn().Err(err).Str("event_id", se.Event.ID).Msg("failed to load read receipts")
		} else {
			te.ReadReceipts = receipts
		}
	}

	return te
}

func (b *eventBuilder) aggregate(ctx context.Context, se *db.StoredEvent) *models.Annotations {
	var ann models.Annotations

	ann.Edit = b.editSummary(ctx, se)
	ann.Reactions = b.reactionSummaries(ctx, se)
	ann.Thread = b.threadSummary(ctx, se)
	ann.Poll = b.pollSummary(ctx, se)

	if ann.Edit == nil && ann.Reactions == nil && ann.Thread == nil && ann.Poll == nil {
		return nil
	}
	return &ann
}

func (b *eventBuilder) editSummary(ctx context.Context, se *db.StoredEvent) *models.EditSummary {
	edits, err := b.st.Events().EditsOf(ctx, se.Event.RoomID, se.Event.ID)
	if err != nil {
		b.logger.Warn().Err(err).Str("event_id", se.Event.ID).Msg("failed to load edits")
		return nil
	}
	if len(edits) == 0 {
		return nil
	}
	latest := edits[0]
	return &models.EditSummary{
		LatestEditEventID: latest.Event.ID,
		LatestContent:     latest.Event.EffectiveContent(),
		LastEditTS:        latest.Event.OriginServerTS,
	}
}

func (b *eventBuilder) reactionSummaries(ctx context.Context, se *db.StoredEvent) []models.ReactionSummary {
	reactions, err := b.st.Events().RelationsOf(ctx, se.Event.RoomID, se.Event.ID, models.RelationTypeAnnotation)
	if err != nil {
		b.logger.Warn().Err(err).Str("event_id", se.Event.ID).Msg("failed to load reactions")
		return nil
	}
	if len(reactions) == 0 {
		return nil
	}

	type agg struct {
		summary models.ReactionSummary
		order   int
	}
	byKey := make(map[string]*agg)
	var keys []string
	for _, reaction := range reactions {
		var content struct {
			RelatesTo *models.RelatesTo `json:"m.relates_to"`
		}
		if err := json.Unmarshal(reaction.Event.EffectiveContent(), &content); err != nil || content.RelatesTo == nil {
			continue
		}
		key := content.RelatesTo.Key
		if key == "" {
			continue
		}
		entry, ok := byKey[key]
		if !ok {
			entry = &agg{summary: models.ReactionSummary{Key: key}}
			byKey[key] = entry
			keys = append(keys, key)
		}
		entry.summary.Count++
		if reaction.Event.SenderID == se.Event.SenderID {
			// AddedByMe is resolved against the event sender's view here;
			// consumers overlay the local user via EnrichWith.
			entry.summary.AddedByMe = true
		}
	}

	var summaries []models.ReactionSummary
	for _, key := range keys {
		summaries = append(summaries, byKey[key].summary)
	}
	return summaries
}

func (b *eventBuilder) threadSummary(ctx context.Context, se *db.StoredEvent) *models.ThreadSummary {
	count, latestID, err := b.st.Events().ThreadStats(ctx, se.Event.RoomID, se.Event.ID)
	if err != nil {
		b.logger.Warn().Err(err).Str("event_id", se.Event.ID).Msg("failed to load thread stats")
		return nil
	}
	if count == 0 {
		return nil
	}
	return &models.ThreadSummary{NumberOfReplies: count, LatestEventID: latestID}
}

func (b *eventBuilder) pollSummary(ctx context.Context, se *db.StoredEvent) *models.PollSummary {
	if se.Event.EffectiveType() != models.EventTypePollStart {
		return nil
	}
	responses, err := b.st.Events().RelationsOf(ctx, se.Event.RoomID, se.Event.ID, models.RelationTypeReference)
	if err != nil {
		b.logger.Warn().Err(err).Str("event_id", se.Event.ID).Msg("failed to load poll responses")
		return nil
	}

	summary := &models.PollSummary{}
	for _, response := range responses {
		if response.Event.EffectiveType() == models.EventTypePollEnd {
			summary.Closed = true
			continue
		}
		summary.TotalVotes++
	}
	if summary.TotalVotes == 0 && !summary.Closed {
		return nil
	}
	return summary
}
