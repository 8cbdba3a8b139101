// Package frontend implements the contract of §4.5: the surface the state
// engine exposes to an external mutable-proxy layer. The engine itself
// stays agnostic of how a proxy records mutations — it only consumes an
// ordered op list plus a dep set from Change.
package frontend

import (
	"time"

	"crdtweave/backend/history"
	"crdtweave/backend/opset"
	"crdtweave/backend/types"
)

// Doc is an opaque handle over one document's History DAG and OpSet, per
// the "recursively immutable documents" design note: user code observes it
// only through GetObjectById/GetField-style accessors below, never through
// direct field access.
type Doc struct {
	actor       types.ActorId
	nextCounter uint64
	nextSeq     uint64

	history *history.DAG
	opset   *opset.OpSet

	lastLocalChange *types.Change
}

// New constructs an empty document owned by actor.
func New(actor types.ActorId) *Doc {
	os := opset.New()
	dag := history.New(os)
	return &Doc{actor: actor, nextCounter: 1, nextSeq: 1, history: dag, opset: os}
}

// GetActorId returns the actor id this handle records local changes as.
func (d *Doc) GetActorId() types.ActorId { return d.actor }

// SetActorId reassigns the local actor id (e.g. loading a persisted doc
// under a fresh session identity).
func (d *Doc) SetActorId(a types.ActorId) { d.actor = a }

// GetLastLocalChange returns the most recent locally-produced change, if
// any has been made through Change on this handle.
func (d *Doc) GetLastLocalChange() (types.Change, bool) {
	if d.lastLocalChange == nil {
		return types.Change{}, false
	}
	return *d.lastLocalChange, true
}

// Heads returns the document's current head hashes.
func (d *Doc) Heads() []string { return d.history.Heads() }

// OpSet exposes the underlying state engine for read accessors and for the
// sync/docset layers, which need it to build/validate Bloom filters and
// apply remote changes.
func (d *Doc) OpSet() *opset.OpSet   { return d.opset }
func (d *Doc) History() *history.DAG { return d.history }

// Change runs mutator against a fresh Recorder, then produces one Change
// from the recorded ops (§4.5's change(doc, message, mutator) → (doc',
// change)): the ops are applied to the OpSet, the History DAG absorbs the
// resulting Change, and the produced Patch is returned alongside it. If
// mutator records nothing, Change is a no-op and returns (nil, zero, nil).
func (d *Doc) Change(message string, mutator func(r *Recorder)) (*opset.Patch, types.Change, error) {
	r := &Recorder{doc: d, startCounter: d.nextCounter}
	mutator(r)
	if len(r.ops) == 0 {
		return nil, types.Change{}, nil
	}

	c := types.Change{
		Actor:   d.actor,
		Seq:     d.nextSeq,
		StartOp: r.startCounter,
		Time:    time.Now().UnixMilli(),
		Message: message,
		Deps:    d.history.Heads(),
		Ops:     r.ops,
	}

	if _, _, err := d.history.Insert(c); err != nil {
		return nil, types.Change{}, err
	}

	d.nextSeq++
	d.nextCounter = c.MaxCounter() + 1
	d.lastLocalChange = &c

	return d.opset.LastPatch(), c, nil
}

// ReceiveChange absorbs a remotely-produced, decoded Change: bytes →
// decoded change → buffered until deps satisfied → applied to OpSet →
// Patch, per §2's remote-edit data flow.
func (d *Doc) ReceiveChange(c types.Change) (*opset.Patch, error) {
	if _, applied, err := d.history.Insert(c); err != nil {
		return nil, err
	} else if !applied {
		return nil, nil // parked pending a dep; no patch yet
	}
	return d.opset.LastPatch(), nil
}

// ApplyPatch is the trivial merge step named by §4.5's applyPatch(doc,
// patch, backendState) → doc'. In this engine the OpSet is mutated
// in-place by ReceiveChange/Change, so there is no separate immutable-tree
// merge to perform; ApplyPatch exists so a caller that receives (patch,
// change) pairs out of band — e.g. replayed from a log rather than through
// ReceiveChange — has an explicit hook to acknowledge that the patch has
// already been folded into the OpSet backing this handle.
func (d *Doc) ApplyPatch(p *opset.Patch) *opset.Patch { return p }

// GetObjectId resolves the child object id created at a map key's visible
// assignment.
func (d *Doc) GetObjectId(obj types.OpId, key string) (types.OpId, bool) {
	return d.opset.GetChild(obj, key)
}

// GetConflicts returns the full conflict set at a map key.
func (d *Doc) GetConflicts(obj types.OpId, key string) map[string]types.Value {
	return d.opset.GetConflicts(obj, key)
}

// ObjectView is a read-only snapshot of one composite object, returned by
// GetObjectById.
type ObjectView struct {
	IsList bool
	Map    map[string]types.Value
	List   []types.Value
}

// GetObjectById returns a snapshot of the object at id: its map keys (for
// Map/Table) or its ordered values (for List/Text).
func (d *Doc) GetObjectById(id types.OpId) ObjectView {
	if d.opset.IsList(id) {
		return ObjectView{IsList: true, List: d.opset.ListValues(id)}
	}
	keys := d.opset.Keys(id)
	m := make(map[string]types.Value, len(keys))
	for _, k := range keys {
		if v, ok := d.opset.GetValue(id, k); ok {
			m[k] = v
		}
	}
	return ObjectView{Map: m}
}

// Root is a convenience for GetObjectById(types.RootId).
func (d *Doc) Root() ObjectView { return d.GetObjectById(types.RootId) }
