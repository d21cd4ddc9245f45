package timeline

// Listener receives timeline lifecycle callbacks. All callbacks are invoked
// from the strategy's reconciliation goroutine; implementations must not
// call back into the strategy synchronously.
type Listener interface {
	// OnEventsUpdated fires after a snapshot-affecting rebuild.
	// isInitial is true for the first build after Start.
	OnEventsUpdated(isInitial bool)

	// OnEventsDeleted fires when built events disappeared from the store.
	OnEventsDeleted()

	// OnLimitedTimeline fires when a gap was bridged: the rebuilt chunk
	// reached the live edge after the timeline had been detached from it.
	OnLimitedTimeline()

	// OnLastForwardDeleted fires when the live-edge chunk itself was
	// removed, so consumers can reload instead of showing a stuck view.
	OnLastForwardDeleted()

	// OnNewTimelineEvents reports event IDs appended by the latest change.
	OnNewTimelineEvents(eventIDs []string)
}

// NopListener ignores all callbacks. Embed it to implement only a subset.
type NopListener struct{}

func (NopListener) OnEventsUpdated(bool)         {}
func (NopListener) OnEventsDeleted()             {}
func (NopListener) OnLimitedTimeline()           {}
func (NopListener) OnLastForwardDeleted()        {}
func (NopListener) OnNewTimelineEvents([]string) {}
