// Package history implements the causal history DAG of §4.1: the graph of
// changes keyed by hash, reachability, and "heads" computation.
package history

import (
	"sort"
	"sync"

	"crdtweave/backend/codec"
	"crdtweave/backend/errs"
	"crdtweave/backend/types"
)

// Applier absorbs a causally-ready change into per-object CRDT state. The
// OpSet / State Engine (§4.2) implements this so the DAG can stay ignorant
// of CRDT semantics.
type Applier interface {
	Apply(c types.Change) error
}

type pendingEntry struct {
	change  types.Change
	hash    string
	missing map[string]struct{}
}

// DAG is the History DAG of §4.1. Each exported method holds an internal
// mutex for its whole duration, so single calls may come from different
// goroutines; a sequence of calls is not atomic.
type DAG struct {
	mu sync.Mutex

	applier Applier

	byHash      map[string]types.Change
	actorHashes map[types.ActorId][]string
	actorSeq    map[types.ActorId]uint64
	heads       map[string]struct{}

	// pending maps a missing dep hash to the set of parked-change hashes
	// waiting on it.
	pending    map[string]map[string]struct{}
	pendingSet map[string]*pendingEntry
}

// New constructs an empty DAG that applies causally-ready changes to app.
func New(app Applier) *DAG {
	return &DAG{
		applier:     app,
		byHash:      make(map[string]types.Change),
		actorHashes: make(map[types.ActorId][]string),
		actorSeq:    make(map[types.ActorId]uint64),
		heads:       make(map[string]struct{}),
		pending:     make(map[string]map[string]struct{}),
		pendingSet:  make(map[string]*pendingEntry),
	}
}

// Heads returns the current set of head hashes: changes with no applied
// successor.
func (d *DAG) Heads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.headsLocked()
}

func (d *DAG) headsLocked() []string {
	out := make([]string, 0, len(d.heads))
	for h := range d.heads {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Has reports whether hash is a known, applied change.
func (d *DAG) Has(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.byHash[hash]
	return ok
}

// Get returns the applied change for hash, if any.
func (d *DAG) Get(hash string) (types.Change, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.byHash[hash]
	return c, ok
}

// Insert computes c's hash and either applies it immediately (all deps
// known), parks it pending missing deps, or no-ops if already known.
// It returns the change's hash and whether it was applied synchronously.
func (d *DAG) Insert(c types.Change) (string, bool, error) {
	hash := codec.HashChange(c)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byHash[hash]; ok {
		return hash, true, nil
	}
	if _, ok := d.pendingSet[hash]; ok {
		return hash, false, nil
	}

	missing := map[string]struct{}{}
	for _, dep := range c.Deps {
		if _, ok := d.byHash[dep]; !ok {
			missing[dep] = struct{}{}
		}
	}

	if len(missing) > 0 {
		entry := &pendingEntry{change: c, hash: hash, missing: missing}
		d.pendingSet[hash] = entry
		for dep := range missing {
			if d.pending[dep] == nil {
				d.pending[dep] = map[string]struct{}{}
			}
			d.pending[dep][hash] = struct{}{}
		}
		return hash, false, nil
	}

	if err := d.applyLocked(c, hash); err != nil {
		return hash, false, err
	}
	d.reactivateLocked(hash)
	return hash, true, nil
}

func (d *DAG) applyLocked(c types.Change, hash string) error {
	expected := d.actorSeq[c.Actor] + 1
	if c.Seq != expected {
		return errs.New(errs.InvalidArgument, "DAG.Insert: InvalidSequence", nil)
	}

	if err := d.applier.Apply(c); err != nil {
		return err
	}

	d.byHash[hash] = c
	d.actorHashes[c.Actor] = append(d.actorHashes[c.Actor], hash)
	d.actorSeq[c.Actor] = c.Seq

	for _, dep := range c.Deps {
		delete(d.heads, dep)
	}
	d.heads[hash] = struct{}{}
	return nil
}

// reactivateLocked promotes any parked changes whose dep sets are now
// fully satisfied by hash, applying them (and transitively, anything they
// unblock) in dependency order.
func (d *DAG) reactivateLocked(hash string) {
	waiters, ok := d.pending[hash]
	if !ok {
		return
	}
	delete(d.pending, hash)

	waiterHashes := make([]string, 0, len(waiters))
	for w := range waiters {
		waiterHashes = append(waiterHashes, w)
	}
	sort.Strings(waiterHashes)

	for _, wh := range waiterHashes {
		entry, ok := d.pendingSet[wh]
		if !ok {
			continue
		}
		delete(entry.missing, hash)
		if len(entry.missing) > 0 {
			continue
		}
		delete(d.pendingSet, wh)
		if err := d.applyLocked(entry.change, entry.hash); err != nil {
			continue
		}
		d.reactivateLocked(entry.hash)
	}
}

// GetMissingDeps returns the union of unsatisfied dep hashes among pending
// changes, plus any hash in extraHeads that is unknown locally.
func (d *DAG) GetMissingDeps(extraHeads ...string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	set := map[string]struct{}{}
	for dep := range d.pending {
		set[dep] = struct{}{}
	}
	for _, h := range extraHeads {
		if _, ok := d.byHash[h]; !ok {
			set[h] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// GetChanges returns every applied change reachable from the current heads
// that is not reachable from haveDeps: a reverse BFS from heads, stopping
// at haveDeps.
func (d *DAG) GetChanges(haveDeps []string) []types.Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	exclude := d.ancestorClosureLocked(haveDeps)
	include := d.ancestorClosureLocked(d.headsLocked())

	var out []types.Change
	for h := range include {
		if _, skip := exclude[h]; skip {
			continue
		}
		out = append(out, d.byHash[h])
	}
	sort.Slice(out, func(i, j int) bool {
		hi := codec.HashChange(out[i])
		hj := codec.HashChange(out[j])
		return hi < hj
	})
	return out
}

func (d *DAG) ancestorClosureLocked(from []string) map[string]struct{} {
	visited := map[string]struct{}{}
	stack := append([]string{}, from...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[h]; ok {
			continue
		}
		c, ok := d.byHash[h]
		if !ok {
			continue
		}
		visited[h] = struct{}{}
		stack = append(stack, c.Deps...)
	}
	return visited
}

// ReachableFrom returns every applied change hash reachable (via deps) from
// anchors, inclusive — used by the sync protocol to populate a Bloom
// filter for a "have" entry.
func (d *DAG) ReachableFrom(anchors []string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	closure := d.ancestorClosureLocked(anchors)
	out := make([]string, 0, len(closure))
	for h := range closure {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
