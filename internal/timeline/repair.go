package timeline

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/roomline/roomline/internal/db"
	"github.com/roomline/roomline/internal/logging"
	"github.com/roomline/roomline/internal/models"
	"github.com/roomline/roomline/internal/store"
)

// defaultRepairMaxHops bounds each repair traversal so pathological chains
// cannot make a rebuild unboundedly expensive.
const defaultRepairMaxHops = 100

// ChainRepairer runs optional integrity passes over a chunk chain: removal
// of dangling empty chunks and breaking of self-referential loops. Both are
// fail-soft: when no safe repair point exists the anomaly is logged and left
// intact.
type ChainRepairer struct {
	st      *store.Store
	maxHops int
	logger  zerolog.Logger
}

// NewChainRepairer creates a repairer with the given hop bound per
// traversal (<= 0 uses the default).
func NewChainRepairer(st *store.Store, maxHops int) *ChainRepairer {
	if maxHops <= 0 {
		maxHops = defaultRepairMaxHops
	}
	return &ChainRepairer{
		st:      st,
		maxHops: maxHops,
		logger:  logging.Component("chain-repair"),
	}
}

// Repair runs both passes in both directions starting from the given chunk.
// Returns true if the chain was modified.
func (r *ChainRepairer) Repair(ctx context.Context, startChunkID string) (bool, error) {
	changed := false
	for _, dir := range []models.Direction{models.DirectionBackwards, models.DirectionForwards} {
		cleaned, err := r.CleanupEmptyChunks(ctx, startChunkID, dir)
		if err != nil {
			return changed, err
		}
		broken, err := r.BreakLoop(ctx, startChunkID, dir)
		if err != nil {
			return changed || cleaned, err
		}
		changed = changed || cleaned || broken
	}
	return changed, nil
}

// CleanupEmptyChunks walks the chain in one direction and splices out
// chunks that are empty with identical forward and backward tokens, the
// telltale sign of a no-op chunk.
func (r *ChainRepairer) CleanupEmptyChunks(ctx context.Context, startChunkID string, dir models.Direction) (bool, error) {
	changed := false
	currentID := startChunkID

	for hops := 0; hops < r.maxHops; hops++ {
		current, err := r.st.Chunks().Get(ctx, currentID)
		if err != nil {
			if err == db.ErrChunkNotFound {
				return changed, nil
			}
			return changed, err
		}

		nextID := current.Link(dir)
		if nextID == "" || nextID == currentID {
			return changed, nil
		}

		next, err := r.st.Chunks().Get(ctx, nextID)
		if err != nil {
			if err == db.ErrChunkNotFound {
				return changed, nil
			}
			return changed, err
		}

		count, err := r.st.Events().Count(ctx, nextID)
		if err != nil {
			return changed, err
		}

		if count == 0 && next.PrevToken == next.NextToken {
			r.logger.Info().
				Str("chunk_id", nextID).
				Str("direction", string(dir)).
				Msg("removing no-op empty chunk")
			if err := r.st.BridgeOverChunk(ctx, currentID, dir, nextID); err != nil {
				return changed, err
			}
			changed = true
			// Stay on the current chunk; its link now points past the
			// removed chunk.
			continue
		}

		currentID = nextID
	}
	return changed, nil
}

// BreakLoop walks the chain recording visited chunk IDs; if a chunk
// repeats, the cycle's adjacent boundary-event timestamps are compared and
// the edge with the largest discontinuity is unlinked. When no
// timestamp-bearing edge exists the repair is abandoned: better a stuck
// timeline than a wrongly-truncated one.
func (r *ChainRepairer) BreakLoop(ctx context.Context, startChunkID string, dir models.Direction) (bool, error) {
	cycle, err := r.findCycle(ctx, startChunkID, dir)
	if err != nil || cycle == nil {
		return false, err
	}

	fromID, toID, found, err := r.worstJumpEdge(ctx, cycle, dir)
	if err != nil {
		return false, err
	}
	if !found {
		r.logger.Warn().
			Str("start_chunk_id", startChunkID).
			Str("direction", string(dir)).
			Int("cycle_len", len(cycle)).
			Msg("chunk loop detected but no timestamped edge to break; leaving intact")
		return false, nil
	}

	r.logger.Info().
		Str("from_chunk_id", fromID).
		Str("to_chunk_id", toID).
		Str("direction", string(dir)).
		Msg("breaking chunk loop")

	if err := r.st.UnlinkChunk(ctx, fromID, dir); err != nil {
		return false, err
	}
	// Sever the reciprocal link too so the break survives either traversal
	// direction.
	to, err := r.st.Chunks().Get(ctx, toID)
	if err == nil && to.Link(dir.Opposite()) == fromID {
		if err := r.st.UnlinkChunk(ctx, toID, dir.Opposite()); err != nil {
			return true, err
		}
	}
	return true, nil
}

// findCycle returns the chunk IDs forming a cycle reachable from start in
// the given direction, or nil when the walk terminates or the hop bound is
// reached first.
func (r *ChainRepairer) findCycle(ctx context.Context, startChunkID string, dir models.Direction) ([]string, error) {
	visited := make(map[string]int)
	var order []string
	currentID := startChunkID

	for hops := 0; hops < r.maxHops; hops++ {
		if pos, seen := visited[currentID]; seen {
			return order[pos:], nil
		}
		visited[currentID] = len(order)
		order = append(order, currentID)

		current, err := r.st.Chunks().Get(ctx, currentID)
		if err != nil {
			if err == db.ErrChunkNotFound {
				return nil, nil
			}
			return nil, err
		}
		nextID := current.Link(dir)
		if nextID == "" {
			return nil, nil
		}
		currentID = nextID
	}
	return nil, nil
}

// worstJumpEdge re-walks the cycle comparing adjacent chunks' boundary
// event timestamps and returns the edge with the largest discontinuity.
func (r *ChainRepairer) worstJumpEdge(ctx context.Context, cycle []string, dir models.Direction) (fromID, toID string, found bool, err error) {
	var worst int64 = -1

	for i := range cycle {
		a := cycle[i]
		b := cycle[(i+1)%len(cycle)]

		// Edge a->b: compare a's leading boundary with b's trailing
		// boundary in the walk direction.
		aEdge, errA := r.st.Events().Boundary(ctx, a, dir)
		bEdge, errB := r.st.Events().Boundary(ctx, b, dir.Opposite())
		if errA != nil || errB != nil {
			if (errA != nil && errA != db.ErrEventNotFound) ||
				(errB != nil && errB != db.ErrEventNotFound) {
				if errA != nil && errA != db.ErrEventNotFound {
					return "", "", false, errA
				}
				return "", "", false, errB
			}
			// Empty chunk on this edge; no timestamps to compare.
			continue
		}

		jump := aEdge.Event.OriginServerTS - bEdge.Event.OriginServerTS
		if jump < 0 {
			jump = -jump
		}
		if jump > worst {
			worst = jump
			fromID, toID = a, b
			found = true
		}
	}
	return fromID, toID, found, nil
}
