// Package opset implements the OpSet / State Engine of §4.2: per-object
// CRDT state for Map/Table, List/Text (RGA), and Counter, plus the Patch
// diff it produces while absorbing a Change.
package opset

import (
	"sync"

	"crdtweave/backend/errs"
	"crdtweave/backend/types"
)

// assignment is one entry of a conflict set: the op that made it, and
// either a primitive value or a reference to a child object it created.
type assignment struct {
	op       types.OpId
	value    *types.Value
	datatype string
	child    *types.OpId
}

// element is one node of a List/Text object: a stable elemId plus the
// conflict set of assignments currently active at that position. origin is
// the reference elemId (or the zero OpId, when hasOrigin is false, meaning
// "list head") this element was inserted after — the RGA rule needs it to
// know which elements are concurrent siblings.
type element struct {
	id          types.OpId
	origin      types.OpId
	hasOrigin   bool
	assignments map[types.OpId]assignment
}

// object is a single composite CRDT object: a Map/Table (keys) or a
// List/Text (ordered elements), per §4.2.
type object struct {
	kind types.Action // one of the four makeX actions

	keys map[string]map[types.OpId]assignment // Map/Table

	elems     []*element               // List/Text, in document order
	elemIndex map[types.OpId]*element // elemId -> element
}

func newObject(kind types.Action) *object {
	o := &object{kind: kind}
	switch kind {
	case types.ActionMakeList, types.ActionMakeText:
		o.elemIndex = make(map[types.OpId]*element)
	default:
		o.keys = make(map[string]map[types.OpId]assignment)
	}
	return o
}

func (o *object) isList() bool {
	return o.kind == types.ActionMakeList || o.kind == types.ActionMakeText
}

// OpSet is the state engine: the set of all composite objects reachable
// from the root, keyed by their creating OpId (RootId for the root).
type OpSet struct {
	mu sync.Mutex

	objects map[types.OpId]*object

	lastPatch *Patch
}

// New constructs an OpSet containing only the root map object 0@0.
func New() *OpSet {
	return &OpSet{
		objects: map[types.OpId]*object{
			types.RootId: newObject(types.ActionMakeMap),
		},
	}
}

func (os *OpSet) createObject(id types.OpId, kind types.Action) {
	if _, exists := os.objects[id]; exists {
		return
	}
	os.objects[id] = newObject(kind)
}

// Apply absorbs a causally-ready Change, implementing history.Applier.
// Ops are applied in change order (§4.2 "Ordering of ops within one
// change"); the resulting Patch is retained and readable via LastPatch.
func (os *OpSet) Apply(c types.Change) error {
	os.mu.Lock()
	defer os.mu.Unlock()

	patch := newPatch()
	for i, op := range c.Ops {
		ownId := types.OpId{Counter: c.StartOp + uint64(i), Actor: c.Actor}
		if err := os.applyOp(ownId, op, patch); err != nil {
			return err
		}
	}
	os.lastPatch = patch
	return nil
}

// LastPatch returns the Patch produced by the most recent Apply call.
func (os *OpSet) LastPatch() *Patch {
	os.mu.Lock()
	defer os.mu.Unlock()
	return os.lastPatch
}

func (os *OpSet) applyOp(ownId types.OpId, op types.Operation, patch *Patch) error {
	obj, ok := os.objects[op.Obj]
	if !ok {
		return errs.New(errs.InvalidArgument, "OpSet.applyOp: DanglingReference", nil)
	}

	if obj.isList() {
		return os.applyListOp(op.Obj, obj, ownId, op, patch)
	}
	return os.applyMapOp(op.Obj, obj, ownId, op, patch)
}

// applyToSet is the shared conflict-set mutation shared by Map/Table keys
// and List/Text element positions: remove every assignment named in
// op.Pred, then (unless this is a del) add the new one. inc is additive
// against whichever pred entries are still present; a pred that has
// already been overridden is silently ignored (§9: "missing predecessors
// are benign").
func (os *OpSet) applyToSet(set map[types.OpId]assignment, ownId types.OpId, op types.Operation) {
	if op.Action == types.ActionInc {
		pred := op.PredSet()
		if op.Value == nil {
			return
		}
		for id, a := range set {
			if _, ok := pred[id]; !ok {
				continue
			}
			delta := op.Value.I
			updated := types.Value{Kind: a.value.Kind, I: a.value.I + delta}
			a.value = &updated
			set[id] = a
		}
		return
	}

	pred := op.PredSet()
	for id := range set {
		if _, ok := pred[id]; ok {
			delete(set, id)
		}
	}
	if op.Action == types.ActionDel {
		return
	}

	var child *types.OpId
	if op.Action.IsMake() {
		childId := ownId
		if op.Child != nil {
			childId = *op.Child
		}
		child = &childId
		os.createObject(childId, op.Action)
	}
	set[ownId] = assignment{op: ownId, value: op.Value, datatype: op.Datatype, child: child}
}

// visible returns the greatest-OpId assignment in a conflict set — the one
// the user-visible document projects a key/position to.
func visible(set map[types.OpId]assignment) (assignment, bool) {
	var best types.OpId
	var bestA assignment
	found := false
	for id, a := range set {
		if !found || best.Less(id) {
			best, bestA, found = id, a, true
		}
	}
	return bestA, found
}
