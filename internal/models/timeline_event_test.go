package models

import "testing"

func TestTimelineEvent_EnrichFirstWriterWins(t *testing.T) {
	te := &TimelineEvent{}

	if _, ok := te.Metadata("is_own"); ok {
		t.Fatal("metadata should start empty")
	}

	te.EnrichWith("is_own", true)
	te.EnrichWith("is_own", false)

	v, ok := te.Metadata("is_own")
	if !ok {
		t.Fatal("metadata key should exist")
	}
	if v != true {
		t.Errorf("value = %v, want the first write to win", v)
	}
}

func TestNextLocalID_Monotonic(t *testing.T) {
	a := NextLocalID()
	b := NextLocalID()
	if b <= a {
		t.Errorf("ids should increase: %d then %d", a, b)
	}
}
