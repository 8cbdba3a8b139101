package opset

import (
	"crdtweave/backend/errs"
	"crdtweave/backend/types"
)

// applyListOp handles set/del/inc/makeX/insert ops whose target is a
// List or Text object.
func (os *OpSet) applyListOp(objId types.OpId, obj *object, ownId types.OpId, op types.Operation, patch *Patch) error {
	if op.Insert {
		return os.applyListInsert(objId, obj, ownId, op, patch)
	}

	elemId, err := types.ParseOpId(op.Key)
	if err != nil {
		return errs.New(errs.InvalidArgument, "OpSet.applyListOp: malformed elemId key", err)
	}
	elem, ok := obj.elemIndex[elemId]
	if !ok {
		return errs.New(errs.InvalidArgument, "OpSet.applyListOp: DanglingReference", nil)
	}

	os.applyToSet(elem.assignments, ownId, op)

	idx := indexOfElem(obj, elemId)
	ld := patch.listDiff(objId)
	if len(elem.assignments) == 0 {
		ld.Edits = append(ld.Edits, ListEdit{Kind: EditRemove, Index: idx, Count: 1})
		return nil
	}
	a, _ := visible(elem.assignments)
	ld.Edits = append(ld.Edits, ListEdit{Kind: EditUpdate, Index: idx, ElemId: elemId.String(), Value: a.value})
	return nil
}

func (os *OpSet) applyListInsert(objId types.OpId, obj *object, ownId types.OpId, op types.Operation, patch *Patch) error {
	var ref types.OpId
	hasRef := false
	if op.Key != "" {
		parsed, err := types.ParseOpId(op.Key)
		if err != nil {
			return errs.New(errs.InvalidArgument, "OpSet.applyListInsert: malformed reference elemId", err)
		}
		ref, hasRef = parsed, true
	}

	idx := rgaInsertIndex(obj, ref, hasRef, ownId)

	var child *types.OpId
	if op.Action.IsMake() {
		childId := ownId
		if op.Child != nil {
			childId = *op.Child
		}
		child = &childId
		os.createObject(childId, op.Action)
	}

	newElem := &element{
		id:        ownId,
		origin:    ref,
		hasOrigin: hasRef,
		assignments: map[types.OpId]assignment{
			ownId: {op: ownId, value: op.Value, datatype: op.Datatype, child: child},
		},
	}
	obj.elems = insertElemAt(obj.elems, idx, newElem)
	obj.elemIndex[ownId] = newElem

	ld := patch.listDiff(objId)
	ld.Edits = append(ld.Edits, ListEdit{Kind: EditInsert, Index: idx, ElemId: ownId.String(), Value: op.Value, ObjectId: child})

	if op.MultiOp > 0 && len(op.Values) > 0 {
		prevId := ownId
		pos := idx + 1
		for k := range op.Values {
			v := op.Values[k]
			elemId := types.OpId{Counter: ownId.Counter + uint64(k+1), Actor: ownId.Actor}
			e := &element{
				id:        elemId,
				origin:    prevId,
				hasOrigin: true,
				assignments: map[types.OpId]assignment{
					elemId: {op: elemId, value: &v},
				},
			}
			obj.elems = insertElemAt(obj.elems, pos, e)
			obj.elemIndex[elemId] = e
			prevId = elemId
			pos++
		}
		ld.Edits = append(ld.Edits, ListEdit{Kind: EditMultiInsert, Index: idx + 1, ElemId: ownId.String(), Values: op.Values, Count: len(op.Values)})
	}

	return nil
}

// rgaInsertIndex finds the post-edit index for a new element inserted
// after ref (or at the head, when hasRef is false): among elements already
// inserted at that same reference point, the new element sorts by OpId
// descending (§4.2's RGA rule), so a concurrently-inserted higher-OpId
// element always ends up first.
func rgaInsertIndex(obj *object, ref types.OpId, hasRef bool, newId types.OpId) int {
	start := 0
	if hasRef {
		if i := indexOfElem(obj, ref); i >= 0 {
			start = i + 1
		} else {
			start = len(obj.elems)
		}
	}
	idx := start
	for idx < len(obj.elems) {
		e := obj.elems[idx]
		if e.hasOrigin != hasRef || (hasRef && e.origin != ref) {
			break
		}
		if newId.Less(e.id) {
			idx++
			continue
		}
		break
	}
	return idx
}

func indexOfElem(obj *object, id types.OpId) int {
	for i, e := range obj.elems {
		if e.id == id {
			return i
		}
	}
	return -1
}

func insertElemAt(elems []*element, idx int, e *element) []*element {
	elems = append(elems, nil)
	copy(elems[idx+1:], elems[idx:])
	elems[idx] = e
	return elems
}

// ListValues returns the visible value of every active (non-removed)
// element of a List/Text object, in document order.
func (os *OpSet) ListValues(objId types.OpId) []types.Value {
	os.mu.Lock()
	defer os.mu.Unlock()

	obj, ok := os.objects[objId]
	if !ok || !obj.isList() {
		return nil
	}
	var out []types.Value
	for _, e := range obj.elems {
		a, ok := visible(e.assignments)
		if !ok || a.value == nil {
			continue
		}
		out = append(out, *a.value)
	}
	return out
}

// ElemIds returns the stable elemId of every active element, in document
// order — the list analogue of Keys.
func (os *OpSet) ElemIds(objId types.OpId) []types.OpId {
	os.mu.Lock()
	defer os.mu.Unlock()

	obj, ok := os.objects[objId]
	if !ok || !obj.isList() {
		return nil
	}
	var out []types.OpId
	for _, e := range obj.elems {
		if _, ok := visible(e.assignments); ok {
			out = append(out, e.id)
		}
	}
	return out
}

// Text renders a Text object's active elements as a string, assuming each
// element's value is a single-character string (§9 dynamic value domain).
func (os *OpSet) Text(objId types.OpId) string {
	vals := os.ListValues(objId)
	b := make([]byte, 0, len(vals))
	for _, v := range vals {
		if v.Kind == types.KindString {
			b = append(b, v.S...)
		}
	}
	return string(b)
}

// Runs groups consecutive active Text elements inserted by the same actor
// into single runs — additive read-side sugar over the List/Text CRDT
// (§12 supplemented features), not a new wire concept.
func (os *OpSet) Runs(objId types.OpId) []string {
	os.mu.Lock()
	obj, ok := os.objects[objId]
	if !ok || !obj.isList() {
		os.mu.Unlock()
		return nil
	}
	type run struct {
		actor types.ActorId
		text  []byte
	}
	var runs []run
	for _, e := range obj.elems {
		a, ok := visible(e.assignments)
		if !ok || a.value == nil || a.value.Kind != types.KindString {
			continue
		}
		if len(runs) > 0 && runs[len(runs)-1].actor == e.id.Actor {
			runs[len(runs)-1].text = append(runs[len(runs)-1].text, a.value.S...)
			continue
		}
		runs = append(runs, run{actor: e.id.Actor, text: []byte(a.value.S)})
	}
	os.mu.Unlock()

	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = string(r.text)
	}
	return out
}
