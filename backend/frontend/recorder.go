package frontend

import "crdtweave/backend/types"

// Recorder is the mutable-proxy surface handed to a Change mutator
// closure (§4.5 / §9's "hand-written change closure" design note): each
// method appends one types.Operation, computing its own OpId from the
// Doc's next-unclaimed counter and its pred set from the OpSet's current
// live state at the target key/element.
type Recorder struct {
	doc          *Doc
	startCounter uint64
	ops          []types.Operation
}

func (r *Recorder) nextId() types.OpId {
	return types.OpId{Counter: r.startCounter + uint64(len(r.ops)), Actor: r.doc.actor}
}

func (r *Recorder) predAt(obj types.OpId, key string) []types.OpId {
	conflicts := r.doc.opset.GetConflicts(obj, key)
	pred := make([]types.OpId, 0, len(conflicts))
	for idStr := range conflicts {
		if id, err := types.ParseOpId(idStr); err == nil {
			pred = append(pred, id)
		}
	}
	types.SortOpIds(pred)
	return pred
}

func (r *Recorder) predAtElem(obj types.OpId, elem types.OpId) []types.OpId {
	conflicts := r.doc.opset.GetConflicts(obj, elem.String())
	pred := make([]types.OpId, 0, len(conflicts))
	for idStr := range conflicts {
		if id, err := types.ParseOpId(idStr); err == nil {
			pred = append(pred, id)
		}
	}
	types.SortOpIds(pred)
	return pred
}

// SetKey assigns a primitive value to a map key, overriding whatever is
// currently visible there.
func (r *Recorder) SetKey(obj types.OpId, key string, value types.Value) types.OpId {
	id := r.nextId()
	r.ops = append(r.ops, types.Operation{
		Action: types.ActionSet,
		Obj:    obj,
		Key:    key,
		Pred:   r.predAt(obj, key),
		Value:  &value,
	})
	return id
}

// MakeKey creates a new composite child object (Map/List/Table/Text) at a
// map key and returns its new object id.
func (r *Recorder) MakeKey(obj types.OpId, key string, kind types.Action) types.OpId {
	id := r.nextId()
	r.ops = append(r.ops, types.Operation{
		Action: kind,
		Obj:    obj,
		Key:    key,
		Pred:   r.predAt(obj, key),
	})
	return id
}

// DelKey removes whatever is currently visible at a map key.
func (r *Recorder) DelKey(obj types.OpId, key string) {
	r.ops = append(r.ops, types.Operation{
		Action: types.ActionDel,
		Obj:    obj,
		Key:    key,
		Pred:   r.predAt(obj, key),
	})
}

// Inc applies an additive delta to a counter at a map key.
func (r *Recorder) Inc(obj types.OpId, key string, delta int64) {
	v := types.IntValue(delta)
	r.ops = append(r.ops, types.Operation{
		Action: types.ActionInc,
		Obj:    obj,
		Key:    key,
		Pred:   r.predAt(obj, key),
		Value:  &v,
	})
}

// InsertAt inserts a new primitive-valued element into a List/Text object
// immediately after ref (or at the head, when hasRef is false), and
// returns the new element's stable elemId.
func (r *Recorder) InsertAt(list types.OpId, ref types.OpId, hasRef bool, value types.Value) types.OpId {
	id := r.nextId()
	key := ""
	if hasRef {
		key = ref.String()
	}
	r.ops = append(r.ops, types.Operation{
		Action: types.ActionSet,
		Obj:    list,
		Key:    key,
		Insert: true,
		Value:  &value,
	})
	return id
}

// MakeInsertAt is InsertAt's composite-object analogue: it inserts a new
// child Map/List/Table/Text element and returns the new element's id,
// which doubles as the child object's id.
func (r *Recorder) MakeInsertAt(list types.OpId, ref types.OpId, hasRef bool, kind types.Action) types.OpId {
	id := r.nextId()
	key := ""
	if hasRef {
		key = ref.String()
	}
	r.ops = append(r.ops, types.Operation{
		Action: kind,
		Obj:    list,
		Key:    key,
		Insert: true,
	})
	return id
}

// InsertManyAt inserts a run of primitive values after ref in one
// operation — the MultiOp bulk-text-insert path of §4.2/§6.
func (r *Recorder) InsertManyAt(list types.OpId, ref types.OpId, hasRef bool, values []types.Value) types.OpId {
	if len(values) == 0 {
		return r.InsertAt(list, ref, hasRef, types.NullValue())
	}
	id := r.nextId()
	key := ""
	if hasRef {
		key = ref.String()
	}
	head := values[0]
	r.ops = append(r.ops, types.Operation{
		Action:  types.ActionSet,
		Obj:     list,
		Key:     key,
		Insert:  true,
		Value:   &head,
		MultiOp: len(values) - 1,
		Values:  values[1:],
	})
	return id
}

// SetIndex overrides the value currently visible at an existing elemId.
func (r *Recorder) SetIndex(list types.OpId, elem types.OpId, value types.Value) {
	r.ops = append(r.ops, types.Operation{
		Action: types.ActionSet,
		Obj:    list,
		Key:    elem.String(),
		Pred:   r.predAtElem(list, elem),
		Value:  &value,
	})
}

// RemoveAt deletes the element currently visible at elemId — the list
// analogue of DelKey, needed to exercise the delete-from-list scenario of
// §8 even though §9's recorder sketch only named insertAt/setIndex.
func (r *Recorder) RemoveAt(list types.OpId, elem types.OpId) {
	r.ops = append(r.ops, types.Operation{
		Action: types.ActionDel,
		Obj:    list,
		Key:    elem.String(),
		Pred:   r.predAtElem(list, elem),
	})
}
