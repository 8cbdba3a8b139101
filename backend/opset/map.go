package opset

import "crdtweave/backend/types"

// applyMapOp handles set/del/inc/makeX ops whose target is a Map or Table
// object, keyed by op.Key.
func (os *OpSet) applyMapOp(objId types.OpId, obj *object, ownId types.OpId, op types.Operation, patch *Patch) error {
	set, ok := obj.keys[op.Key]
	if !ok {
		set = make(map[types.OpId]assignment)
		obj.keys[op.Key] = set
	}

	os.applyToSet(set, ownId, op)

	md := patch.mapDiff(objId)
	if len(set) == 0 {
		md.clear(op.Key)
		return nil
	}
	entries := make(map[string]AssignmentDiff, len(set))
	for id, a := range set {
		entries[id.String()] = AssignmentDiff{Value: a.value, Datatype: a.datatype, ObjectId: a.child}
	}
	md.Props[op.Key] = entries
	return nil
}

// GetValue returns the visible (greatest-OpId) value at a map key, and
// whether the key currently has any active assignment.
func (os *OpSet) GetValue(objId types.OpId, key string) (types.Value, bool) {
	os.mu.Lock()
	defer os.mu.Unlock()

	obj, ok := os.objects[objId]
	if !ok || obj.keys == nil {
		return types.Value{}, false
	}
	set, ok := obj.keys[key]
	if !ok {
		return types.Value{}, false
	}
	a, ok := visible(set)
	if !ok || a.value == nil {
		return types.Value{}, false
	}
	return *a.value, true
}

// GetChild returns the child object id created at a map key's visible
// assignment, if any.
func (os *OpSet) GetChild(objId types.OpId, key string) (types.OpId, bool) {
	os.mu.Lock()
	defer os.mu.Unlock()

	obj, ok := os.objects[objId]
	if !ok || obj.keys == nil {
		return types.OpId{}, false
	}
	set, ok := obj.keys[key]
	if !ok {
		return types.OpId{}, false
	}
	a, ok := visible(set)
	if !ok || a.child == nil {
		return types.OpId{}, false
	}
	return *a.child, true
}

// GetConflicts returns every currently-active assignment that carries a
// primitive value at a map key (or, for a List/Text object, at the element
// whose elemId string is key), keyed by the assigning OpId's string
// rendering — the "full conflict set" inspection call of §4.2. Assignments
// that created a child object carry no value and are not included.
func (os *OpSet) GetConflicts(objId types.OpId, key string) map[string]types.Value {
	os.mu.Lock()
	defer os.mu.Unlock()

	out := map[string]types.Value{}
	obj, ok := os.objects[objId]
	if !ok {
		return out
	}
	var set map[types.OpId]assignment
	if obj.isList() {
		elemId, err := types.ParseOpId(key)
		if err != nil {
			return out
		}
		elem, ok := obj.elemIndex[elemId]
		if !ok {
			return out
		}
		set = elem.assignments
	} else if set, ok = obj.keys[key]; !ok {
		return out
	}
	for id, a := range set {
		if a.value != nil {
			out[id.String()] = *a.value
		}
	}
	return out
}

// IsList reports whether objId names a List/Text object, as opposed to a
// Map/Table — GetObjectById needs this to render empty lists correctly,
// since an empty ListValues result is otherwise indistinguishable from "not
// a list".
func (os *OpSet) IsList(objId types.OpId) bool {
	os.mu.Lock()
	defer os.mu.Unlock()

	obj, ok := os.objects[objId]
	return ok && obj.isList()
}

// Keys returns the set of keys with at least one active assignment on a
// Map/Table object, for document projection and traversal.
func (os *OpSet) Keys(objId types.OpId) []string {
	os.mu.Lock()
	defer os.mu.Unlock()

	obj, ok := os.objects[objId]
	if !ok || obj.keys == nil {
		return nil
	}
	out := make([]string, 0, len(obj.keys))
	for k, set := range obj.keys {
		if len(set) > 0 {
			out = append(out, k)
		}
	}
	return out
}
