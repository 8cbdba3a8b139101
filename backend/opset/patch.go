package opset

import "crdtweave/backend/types"

// Patch describes the delta from the document state before a batch of ops
// to after it (§4.2 "Patch construction"). Every touched object — the root
// map plus any nested map/table/list/text object — gets one entry keyed by
// its object id.
type Patch struct {
	MapDiffs  map[types.OpId]*MapDiff
	ListDiffs map[types.OpId]*ListDiff
}

func newPatch() *Patch {
	return &Patch{
		MapDiffs:  make(map[types.OpId]*MapDiff),
		ListDiffs: make(map[types.OpId]*ListDiff),
	}
}

// Root returns the root object's MapDiff, if the root was touched.
func (p *Patch) Root() *MapDiff {
	return p.MapDiffs[types.RootId]
}

func (p *Patch) mapDiff(obj types.OpId) *MapDiff {
	if d, ok := p.MapDiffs[obj]; ok {
		return d
	}
	d := newMapDiff()
	p.MapDiffs[obj] = d
	return d
}

func (p *Patch) listDiff(obj types.OpId) *ListDiff {
	if d, ok := p.ListDiffs[obj]; ok {
		return d
	}
	d := &ListDiff{}
	p.ListDiffs[obj] = d
	return d
}

// MapDiff carries, for every key touched in this batch, one entry per OpId
// still active at that key after the batch (an empty entry map for a key
// means every assignment at that key was removed — the key disappears from
// the projection but the {} diff is still emitted, per §4.2 "Conflicts").
type MapDiff struct {
	Props map[string]map[string]AssignmentDiff
}

func newMapDiff() *MapDiff {
	return &MapDiff{Props: make(map[string]map[string]AssignmentDiff)}
}

func (m *MapDiff) touch(key string) map[string]AssignmentDiff {
	if _, ok := m.Props[key]; !ok {
		m.Props[key] = make(map[string]AssignmentDiff)
	}
	return m.Props[key]
}

// clear marks a key as having lost all its assignments (a del that leaves
// the conflict set empty), still emitting the {} diff.
func (m *MapDiff) clear(key string) {
	m.Props[key] = map[string]AssignmentDiff{}
}

// AssignmentDiff is one entry of a MapDiff or ListDiff element: either a
// primitive value/datatype, or a nested object (when the assignment's op
// created a child object).
type AssignmentDiff struct {
	Value    *types.Value
	Datatype string
	ObjectId *types.OpId
}

// ListEditKind enumerates the edit shapes of §4.2's "Patch construction".
type ListEditKind string

const (
	EditInsert      ListEditKind = "insert"
	EditMultiInsert ListEditKind = "multi-insert"
	EditUpdate      ListEditKind = "update"
	EditRemove      ListEditKind = "remove"
)

// ListEdit is one entry of a list/text Patch, referring to a position in
// the post-edit list, in application order.
type ListEdit struct {
	Kind    ListEditKind
	Index   int
	ElemId  string
	Value   *types.Value
	Values  []types.Value
	Count   int
	ObjectId *types.OpId
}

// ListDiff carries the ordered edits needed to rebuild a list/text from its
// pre-batch state.
type ListDiff struct {
	Edits []ListEdit
}
