package sync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"crdtweave/backend/codec"
	"crdtweave/backend/history"
	"crdtweave/backend/types"
)

// noopApplier lets these tests exercise the real history.DAG without
// depending on opset semantics, matching history's own test convention.
type noopApplier struct{}

func (noopApplier) Apply(types.Change) error { return nil }

func mkChange(actor string, seq, startOp uint64, deps []string) types.Change {
	v := types.IntValue(int64(seq))
	return types.Change{
		Actor:   types.ActorId(actor),
		Seq:     seq,
		StartOp: startOp,
		Ops:     []types.Operation{{Action: types.ActionSet, Obj: types.RootId, Key: "k", Value: &v}},
		Deps:    deps,
	}
}

// exchangeUntilConverged pumps GenerateMessage/ReceiveMessage back and forth
// between two States until both report convergence, bounded so a protocol
// bug fails the test instead of hanging it.
func exchangeUntilConverged(t *testing.T, a, b *State) {
	t.Helper()
	hasNewA, hasNewB := true, true
	for round := 0; round < 20; round++ {
		if a.Converged() && b.Converged() {
			return
		}
		msgA := a.GenerateMessage(hasNewA)
		msgB := b.GenerateMessage(hasNewB)
		hasNewA, hasNewB = false, false

		if msgB != nil {
			require.NoError(t, a.ReceiveMessage(*msgB))
		}
		if msgA != nil {
			require.NoError(t, b.ReceiveMessage(*msgA))
		}
	}
	require.True(t, a.Converged(), "peer A failed to converge within the round budget")
	require.True(t, b.Converged(), "peer B failed to converge within the round budget")
}

func TestTwoStatesConvergeAfterDivergentLocalChanges(t *testing.T) {
	dagA := history.New(noopApplier{})
	dagB := history.New(noopApplier{})

	base := mkChange("A", 1, 1, nil)
	_, _, err := dagA.Insert(base)
	require.NoError(t, err)
	_, _, err = dagB.Insert(base)
	require.NoError(t, err)

	baseHash := codec.HashChange(base)
	cA := mkChange("A", 2, 2, []string{baseHash})
	cB := mkChange("B", 1, 1, []string{baseHash})
	_, _, err = dagA.Insert(cA)
	require.NoError(t, err)
	_, _, err = dagB.Insert(cB)
	require.NoError(t, err)

	stateA := NewState("doc-1", dagA, 0.01)
	stateB := NewState("doc-1", dagB, 0.01)

	exchangeUntilConverged(t, stateA, stateB)

	require.ElementsMatch(t, dagA.Heads(), dagB.Heads())
	require.True(t, dagA.Has(codec.HashChange(cB)))
	require.True(t, dagB.Has(codec.HashChange(cA)))
}

func TestGenerateMessageReturnsNilWhenNothingChanged(t *testing.T) {
	dag := history.New(noopApplier{})
	_, _, err := dag.Insert(mkChange("A", 1, 1, nil))
	require.NoError(t, err)

	s := NewState("doc-1", dag, 0.01)
	first := s.GenerateMessage(false)
	require.NotNil(t, first, "first call always has something to advertise")

	require.NoError(t, s.ReceiveMessage(Message{Heads: dag.Heads()}))

	second := s.GenerateMessage(false)
	require.Nil(t, second, "no new local change and heads already shared means nothing to say")
}

func TestGenerateMessageResumesAfterNewLocalChange(t *testing.T) {
	dag := history.New(noopApplier{})
	c1 := mkChange("A", 1, 1, nil)
	_, _, err := dag.Insert(c1)
	require.NoError(t, err)

	s := NewState("doc-1", dag, 0.01)
	require.NoError(t, s.ReceiveMessage(Message{Heads: dag.Heads()}))
	require.Nil(t, s.GenerateMessage(false))

	c2 := mkChange("A", 2, 2, []string{codec.HashChange(c1)})
	_, _, err = dag.Insert(c2)
	require.NoError(t, err)

	msg := s.GenerateMessage(true)
	require.NotNil(t, msg)
	require.Contains(t, msg.Heads, codec.HashChange(c2))
}

func TestReceiveMessageInsertsChangesIntoDag(t *testing.T) {
	dagA := history.New(noopApplier{})
	dagB := history.New(noopApplier{})

	c1 := mkChange("A", 1, 1, nil)
	_, _, err := dagA.Insert(c1)
	require.NoError(t, err)

	stateB := NewState("doc-1", dagB, 0.01)
	require.NoError(t, stateB.ReceiveMessage(Message{Heads: []string{codec.HashChange(c1)}, Changes: []types.Change{c1}}))

	require.True(t, dagB.Has(codec.HashChange(c1)))
}
