package opset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"crdtweave/backend/types"
)

func v(s string) *types.Value {
	val := types.StringValue(s)
	return &val
}

func setOp(obj types.OpId, key string, value *types.Value, pred ...types.OpId) types.Operation {
	return types.Operation{Action: types.ActionSet, Obj: obj, Key: key, Value: value, Pred: pred}
}

func TestMapSetIsVisibleAndProducesPatch(t *testing.T) {
	os := New()
	actor := types.ActorId("A")
	c := types.Change{
		Actor: actor, Seq: 1, StartOp: 1,
		Ops: []types.Operation{setOp(types.RootId, "bird", v("magpie"))},
	}
	require.NoError(t, os.Apply(c))

	val, ok := os.GetValue(types.RootId, "bird")
	require.True(t, ok)
	require.Equal(t, types.StringValue("magpie"), val)

	patch := os.LastPatch()
	require.NotNil(t, patch.Root())
	entries := patch.Root().Props["bird"]
	require.Len(t, entries, 1)
}

func TestConcurrentMapSetsKeepFullConflictSetAndGreatestWins(t *testing.T) {
	os := New()
	actorA := types.ActorId("A")
	actorB := types.ActorId("B")

	c1 := types.Change{Actor: actorA, Seq: 1, StartOp: 1,
		Ops: []types.Operation{setOp(types.RootId, "bird", v("magpie"))}}
	require.NoError(t, os.Apply(c1))

	// concurrent: actorB's op does not name actorA's op as pred
	c2 := types.Change{Actor: actorB, Seq: 1, StartOp: 1,
		Ops: []types.Operation{setOp(types.RootId, "bird", v("swift"))}}
	require.NoError(t, os.Apply(c2))

	conflicts := os.GetConflicts(types.RootId, "bird")
	require.Len(t, conflicts, 2)

	val, ok := os.GetValue(types.RootId, "bird")
	require.True(t, ok)
	require.Equal(t, types.StringValue("swift"), val, "actor B's OpId (1@B) is greatest since B > A")
}

func TestSequentialSetOverridesPredecessor(t *testing.T) {
	os := New()
	actor := types.ActorId("A")

	c1 := types.Change{Actor: actor, Seq: 1, StartOp: 1,
		Ops: []types.Operation{setOp(types.RootId, "bird", v("magpie"))}}
	require.NoError(t, os.Apply(c1))

	c2 := types.Change{Actor: actor, Seq: 2, StartOp: 2,
		Ops: []types.Operation{setOp(types.RootId, "bird", v("swift"), types.OpId{Counter: 1, Actor: actor})}}
	require.NoError(t, os.Apply(c2))

	require.Len(t, os.GetConflicts(types.RootId, "bird"), 1)
	val, _ := os.GetValue(types.RootId, "bird")
	require.Equal(t, types.StringValue("swift"), val)
}

func TestDelKeyClearsAssignments(t *testing.T) {
	os := New()
	actor := types.ActorId("A")

	c1 := types.Change{Actor: actor, Seq: 1, StartOp: 1,
		Ops: []types.Operation{setOp(types.RootId, "bird", v("magpie"))}}
	require.NoError(t, os.Apply(c1))

	c2 := types.Change{Actor: actor, Seq: 2, StartOp: 2,
		Ops: []types.Operation{{Action: types.ActionDel, Obj: types.RootId, Key: "bird", Pred: []types.OpId{{Counter: 1, Actor: actor}}}}}
	require.NoError(t, os.Apply(c2))

	_, ok := os.GetValue(types.RootId, "bird")
	require.False(t, ok)
	require.Empty(t, os.Keys(types.RootId))
}

func TestCounterIncIsAdditive(t *testing.T) {
	os := New()
	actor := types.ActorId("A")

	counterVal := types.CounterValue(0)
	c1 := types.Change{Actor: actor, Seq: 1, StartOp: 1,
		Ops: []types.Operation{{Action: types.ActionMakeMap, Obj: types.RootId, Key: "counters"}}}
	require.NoError(t, os.Apply(c1))
	counterObj, ok := os.GetChild(types.RootId, "counters")
	require.True(t, ok)

	c2 := types.Change{Actor: actor, Seq: 2, StartOp: 2,
		Ops: []types.Operation{setOp(counterObj, "likes", &counterVal)}}
	require.NoError(t, os.Apply(c2))
	likesId := types.OpId{Counter: 2, Actor: actor}

	incVal := types.IntValue(5)
	c3 := types.Change{Actor: actor, Seq: 3, StartOp: 3,
		Ops: []types.Operation{{Action: types.ActionInc, Obj: counterObj, Key: "likes", Value: &incVal, Pred: []types.OpId{likesId}}}}
	require.NoError(t, os.Apply(c3))

	val, ok := os.GetValue(counterObj, "likes")
	require.True(t, ok)
	require.Equal(t, int64(5), val.I)
}

func TestListInsertAndDelete(t *testing.T) {
	os := New()
	actor := types.ActorId("A")

	c1 := types.Change{Actor: actor, Seq: 1, StartOp: 1,
		Ops: []types.Operation{{Action: types.ActionMakeList, Obj: types.RootId, Key: "todos"}}}
	require.NoError(t, os.Apply(c1))
	listId, ok := os.GetChild(types.RootId, "todos")
	require.True(t, ok)

	item1 := v("wash dishes")
	item2 := v("buy milk")
	c2 := types.Change{Actor: actor, Seq: 2, StartOp: 2,
		Ops: []types.Operation{
			{Action: types.ActionSet, Obj: listId, Insert: true, Value: item1},
			{Action: types.ActionSet, Obj: listId, Insert: true, Key: (types.OpId{Counter: 2, Actor: actor}).String(), Value: item2},
		}}
	require.NoError(t, os.Apply(c2))

	vals := os.ListValues(listId)
	require.Equal(t, []types.Value{types.StringValue("wash dishes"), types.StringValue("buy milk")}, vals)

	elemIds := os.ElemIds(listId)
	require.Len(t, elemIds, 2)

	c3 := types.Change{Actor: actor, Seq: 3, StartOp: 4,
		Ops: []types.Operation{{Action: types.ActionDel, Obj: listId, Key: elemIds[0].String(), Pred: []types.OpId{elemIds[0]}}}}
	require.NoError(t, os.Apply(c3))

	vals = os.ListValues(listId)
	require.Equal(t, []types.Value{types.StringValue("buy milk")}, vals)
}

func TestDanglingReferenceFails(t *testing.T) {
	os := New()
	c := types.Change{Actor: types.ActorId("A"), Seq: 1, StartOp: 1,
		Ops: []types.Operation{setOp(types.OpId{Counter: 999, Actor: "nobody"}, "x", v("y"))}}
	require.Error(t, os.Apply(c))
}

func TestIsListDistinguishesEmptyListFromMap(t *testing.T) {
	os := New()
	actor := types.ActorId("A")
	c := types.Change{Actor: actor, Seq: 1, StartOp: 1,
		Ops: []types.Operation{{Action: types.ActionMakeList, Obj: types.RootId, Key: "empty"}}}
	require.NoError(t, os.Apply(c))
	listId, _ := os.GetChild(types.RootId, "empty")

	require.True(t, os.IsList(listId))
	require.Empty(t, os.ListValues(listId))
	require.False(t, os.IsList(types.RootId))
}
