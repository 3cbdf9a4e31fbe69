// Package reconciler merges an initial snapshot, live feed events and
// locally-optimistic writes into one consistent per-session view keyed by
// entity id. Conflicts between concurrent writers are resolved by the
// entity's own updated_at timestamp, never by transport order.
package reconciler

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome reports what applying one event did to the view.
type Outcome struct {
	// Applied is true when the merged view changed.
	Applied bool
	// SideEffect is true exactly once per distinct (id, updated_at) pair that
	// changed the view: sound, toast and counter effects key off this so that
	// duplicate delivery across logical subscriptions stays invisible.
	SideEffect bool
}

// Reverted describes an optimistic write that was not confirmed within the
// bounded window and has been rolled back.
type Reverted[T any] struct {
	ID          uuid.UUID
	Previous    T
	HadPrevious bool
}

type pendingWrite[T any] struct {
	previous    T
	hadPrevious bool
	optimistic  T
	// baseline is the updated_at held before the optimistic write; a feed
	// event confirms the write only if it is strictly newer than this, so a
	// redelivery of the pre-write row can never count as confirmation.
	baseline time.Time
	deadline time.Time
}

type effectKey struct {
	id uuid.UUID
	ts int64
}

// View is the authoritative in-memory state for one entity table within one
// client session. All methods are safe for concurrent use, though the session
// gateway drains feed events through a single goroutine so merges are never
// observed half-applied.
type View[T any] struct {
	mu sync.Mutex

	id            func(T) uuid.UUID
	ts            func(T) time.Time
	confirmWindow time.Duration
	now           func() time.Time

	records map[uuid.UUID]T
	seen    map[effectKey]struct{}
	pending map[uuid.UUID]pendingWrite[T]
}

// NewView builds an empty view. idFn and tsFn extract the entity id and its
// updated_at; confirmWindow bounds how long an optimistic write may wait for
// confirmation before ExpirePending reverts it.
func NewView[T any](idFn func(T) uuid.UUID, tsFn func(T) time.Time, confirmWindow time.Duration) *View[T] {
	return &View[T]{
		id:            idFn,
		ts:            tsFn,
		confirmWindow: confirmWindow,
		now:           time.Now,
		records:       make(map[uuid.UUID]T),
		seen:          make(map[effectKey]struct{}),
		pending:       make(map[uuid.UUID]pendingWrite[T]),
	}
}

// WithClock overrides the time source. Tests use this to drive the
// confirmation window deterministically.
func (v *View[T]) WithClock(now func() time.Time) *View[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
	return v
}

// Seed replaces the view with a full snapshot. Called on mount and again after
// every reconnect, because events missed while disconnected are not replayed.
// Snapshot rows are marked as already-effected so that stale live events
// buffered across the gap can never re-announce them. Unconfirmed optimistic
// writes survive the reseed: the snapshot either confirms them or they stay
// pending on top of the fresh state.
func (v *View[T]) Seed(records []T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.records = make(map[uuid.UUID]T, len(records))
	for _, rec := range records {
		id := v.id(rec)
		v.records[id] = rec
		v.seen[effectKey{id: id, ts: v.ts(rec).UnixNano()}] = struct{}{}
	}

	for id, p := range v.pending {
		if rec, ok := v.records[id]; ok && v.ts(rec).After(p.baseline) {
			// The store already reflects the write (or a newer one).
			delete(v.pending, id)
			continue
		}
		v.records[id] = p.optimistic
	}
}

// ApplyInsert upserts by id. A record already present with an equal-or-newer
// updated_at wins, which absorbs duplicate delivery and insert-after-update
// races.
func (v *View[T]) ApplyInsert(rec T) Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.apply(rec, false)
}

// ApplyUpdate merges by id iff the incoming updated_at is not older than the
// locally-held one. An update for an unknown id is treated as an insert.
func (v *View[T]) ApplyUpdate(rec T) Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.apply(rec, true)
}

func (v *View[T]) apply(rec T, allowEqual bool) Outcome {
	id := v.id(rec)
	incoming := v.ts(rec)
	key := effectKey{id: id, ts: incoming.UnixNano()}

	if p, ok := v.pending[id]; ok {
		if !incoming.After(p.baseline) {
			// Stale relative to the state the optimistic write was based on.
			v.seen[key] = struct{}{}
			return Outcome{}
		}
		// Confirmation, or a newer write by another client; either way the
		// server record supersedes the optimistic overlay.
		delete(v.pending, id)
		v.records[id] = rec
		return v.outcome(key)
	}

	if cur, ok := v.records[id]; ok {
		held := v.ts(cur)
		if incoming.Before(held) || (!allowEqual && incoming.Equal(held)) {
			v.seen[key] = struct{}{}
			return Outcome{}
		}
	}

	v.records[id] = rec
	return v.outcome(key)
}

func (v *View[T]) outcome(key effectKey) Outcome {
	if _, dup := v.seen[key]; dup {
		return Outcome{Applied: true}
	}
	v.seen[key] = struct{}{}
	return Outcome{Applied: true, SideEffect: true}
}

// ApplyDelete removes the id from the view. Unknown ids are a no-op.
func (v *View[T]) ApplyDelete(id uuid.UUID) Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, existed := v.records[id]
	delete(v.records, id)
	delete(v.pending, id)
	return Outcome{Applied: existed}
}

// ApplyOptimistic overlays a local write before server confirmation. The
// overlay is reverted by ExpirePending if no confirming event arrives within
// the confirmation window.
func (v *View[T]) ApplyOptimistic(rec T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.id(rec)
	if p, ok := v.pending[id]; ok {
		// Still waiting on an earlier write for this id; keep its baseline so
		// confirmation ordering is judged against true server state.
		p.optimistic = rec
		p.deadline = v.now().Add(v.confirmWindow)
		v.pending[id] = p
		v.records[id] = rec
		return
	}

	p := pendingWrite[T]{optimistic: rec, deadline: v.now().Add(v.confirmWindow)}
	if prev, ok := v.records[id]; ok {
		p.previous = prev
		p.hadPrevious = true
		p.baseline = v.ts(prev)
	}
	v.pending[id] = p
	v.records[id] = rec
}

// ExpirePending reverts every optimistic write whose confirmation window has
// passed and returns them so the caller can surface an error to the user.
func (v *View[T]) ExpirePending() []Reverted[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	var reverted []Reverted[T]
	for id, p := range v.pending {
		if !now.After(p.deadline) {
			continue
		}
		delete(v.pending, id)
		if p.hadPrevious {
			v.records[id] = p.previous
		} else {
			delete(v.records, id)
		}
		reverted = append(reverted, Reverted[T]{ID: id, Previous: p.previous, HadPrevious: p.hadPrevious})
	}
	return reverted
}

// HasPending reports whether an optimistic write for id is still unconfirmed.
func (v *View[T]) HasPending(id uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.pending[id]
	return ok
}

// Get returns the record currently held for id.
func (v *View[T]) Get(id uuid.UUID) (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.records[id]
	return rec, ok
}

// List returns the merged view ordered newest first.
func (v *View[T]) List() []T {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]T, 0, len(v.records))
	for _, rec := range v.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return v.ts(out[i]).After(v.ts(out[j]))
	})
	return out
}

// Count recomputes a derived counter from the merged view. Counters are never
// maintained by increments that could drift from the true set.
func (v *View[T]) Count(pred func(T) bool) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for _, rec := range v.records {
		if pred(rec) {
			n++
		}
	}
	return n
}

// Len returns the number of records held.
func (v *View[T]) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.records)
}
