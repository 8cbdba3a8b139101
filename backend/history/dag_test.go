package history

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"crdtweave/backend/codec"
	"crdtweave/backend/types"
)

// fakeApplier records every change handed to it, standing in for the OpSet
// so this package's tests stay isolated from opset's own semantics.
type fakeApplier struct {
	applied []types.Change
}

func (f *fakeApplier) Apply(c types.Change) error {
	f.applied = append(f.applied, c)
	return nil
}

func change(actor string, seq, startOp uint64, deps []string) types.Change {
	return types.Change{
		Actor:   types.ActorId(actor),
		Seq:     seq,
		StartOp: startOp,
		Deps:    deps,
		Ops: []types.Operation{
			{Action: types.ActionSet, Obj: types.RootId, Key: "k", Value: valPtr(int64(seq))},
		},
	}
}

func valPtr(i int64) *types.Value {
	v := types.IntValue(i)
	return &v
}

func TestInsertAppliesImmediatelyWhenDepsSatisfied(t *testing.T) {
	app := &fakeApplier{}
	d := New(app)

	_, applied, err := d.Insert(change("A", 1, 1, nil))
	require.NoError(t, err)
	require.True(t, applied)
	require.Len(t, app.applied, 1)
	require.Len(t, d.Heads(), 1)
}

func TestInsertParksOnMissingDepAndReactivates(t *testing.T) {
	app := &fakeApplier{}
	d := New(app)

	c1 := change("A", 1, 1, nil)
	h1 := codec.HashChange(c1)
	c2 := change("A", 2, 2, []string{h1})

	_, applied, err := d.Insert(c2)
	require.NoError(t, err)
	require.False(t, applied, "c2 depends on an unknown hash and must park")
	require.Empty(t, app.applied)

	_, applied, err = d.Insert(c1)
	require.NoError(t, err)
	require.True(t, applied)
	require.Len(t, app.applied, 2, "parking c2 must reactivate once c1 lands")
	require.Equal(t, c1.Actor, app.applied[0].Actor)
	require.Equal(t, c2.Actor, app.applied[1].Actor)
}

func TestInsertRejectsOutOfOrderSeq(t *testing.T) {
	app := &fakeApplier{}
	d := New(app)

	_, _, err := d.Insert(change("A", 1, 1, nil))
	require.NoError(t, err)

	_, _, err = d.Insert(change("A", 3, 2, nil))
	require.Error(t, err, "seq 3 cannot follow seq 1 directly")
}

func TestInsertIsIdempotent(t *testing.T) {
	app := &fakeApplier{}
	d := New(app)

	c := change("A", 1, 1, nil)
	_, _, err := d.Insert(c)
	require.NoError(t, err)
	_, _, err = d.Insert(c)
	require.NoError(t, err)
	require.Len(t, app.applied, 1, "re-inserting the same change must be a no-op")
}

func TestHeadsDropDepsAndKeepTips(t *testing.T) {
	app := &fakeApplier{}
	d := New(app)

	c1 := change("A", 1, 1, nil)
	h1 := codec.HashChange(c1)
	_, _, err := d.Insert(c1)
	require.NoError(t, err)
	require.Equal(t, []string{h1}, d.Heads())

	c2 := change("A", 2, 2, []string{h1})
	_, _, err = d.Insert(c2)
	require.NoError(t, err)
	require.NotContains(t, d.Heads(), h1)
	require.Len(t, d.Heads(), 1)
}

func TestGetChangesExcludesHaveDepsAncestry(t *testing.T) {
	app := &fakeApplier{}
	d := New(app)

	c1 := change("A", 1, 1, nil)
	h1 := codec.HashChange(c1)
	_, _, _ = d.Insert(c1)

	c2 := change("A", 2, 2, []string{h1})
	_, _, _ = d.Insert(c2)

	got := d.GetChanges([]string{h1})
	require.Len(t, got, 1)
	require.Equal(t, uint64(2), got[0].Seq)

	gotAll := d.GetChanges(nil)
	require.Len(t, gotAll, 2)
}

// TestReactivationOrderIsDeterministicUnderShuffledInsertion inserts a chain
// of changes in random order (seeded, per the teacher's integration-test
// convention of shuffling op batches) and checks the final applied set is
// order-independent.
func TestReactivationOrderIsDeterministicUnderShuffledInsertion(t *testing.T) {
	app := &fakeApplier{}
	d := New(app)

	const n = 20
	changes := make([]types.Change, n)
	var prevHash string
	for i := 0; i < n; i++ {
		var deps []string
		if i > 0 {
			deps = []string{prevHash}
		}
		c := change("A", uint64(i+1), uint64(i+1), deps)
		changes[i] = c
		prevHash = codec.HashChange(c)
	}

	rng := rand.New(rand.NewSource(42))
	shuffled := append([]types.Change{}, changes...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, c := range shuffled {
		_, _, err := d.Insert(c)
		require.NoError(t, err)
	}

	require.Len(t, app.applied, n)
	require.Len(t, d.Heads(), 1)
}
