package sync

import (
	"sort"

	"crdtweave/backend/codec"
	"crdtweave/backend/errs"
	"crdtweave/backend/types"
)

// dagView is the minimal slice of history.DAG the sync engine needs —
// declared narrowly here so this package doesn't import history, mirroring
// history.Applier's own narrow interface toward opset.
type dagView interface {
	Heads() []string
	Has(hash string) bool
	Get(hash string) (types.Change, bool)
	GetChanges(haveDeps []string) []types.Change
	GetMissingDeps(extraHeads ...string) []string
	ReachableFrom(anchors []string) []string
	Insert(c types.Change) (string, bool, error)
}

// State is the per-peer SyncState of §4.3: everything one replica
// remembers about what a specific peer has, wants, and has already been
// sent, for one document.
type State struct {
	docId string
	dag   dagView
	fpr   float64

	sharedHeads []string
	theirHeads  []string
	theirNeed   []string
	theirHave   []have
	sentHashes  map[string]struct{}
}

// NewState constructs a fresh SyncState for one (peer, doc) pair.
func NewState(docId string, dag dagView, targetFPR float64) *State {
	if targetFPR <= 0 {
		targetFPR = 0.01
	}
	return &State{docId: docId, dag: dag, fpr: targetFPR, sentHashes: map[string]struct{}{}}
}

// GenerateMessage implements §4.3 steps 1-4: build the outbound sync
// message for this peer, or nil if there is nothing to say. hasNewLocal
// signals a locally-produced change occurred since the last generate call,
// per step 1's "no newly-received changes since the last send" condition.
func (s *State) GenerateMessage(hasNewLocal bool) *Message {
	heads := s.dag.Heads()

	if !hasNewLocal && sameSet(heads, s.sharedHeads) {
		return nil
	}

	reachable := s.dag.ReachableFrom(heads)
	haveEntry := have{anchors: heads, filter: BuildBloom(reachable, s.fpr)}

	need := s.computeNeed()

	changes := s.computeChangesToSend(heads)

	return &Message{DocId: s.docId, Heads: heads, Need: need, Have: []have{haveEntry}, Changes: changes}
}

func (s *State) computeNeed() []string {
	set := map[string]struct{}{}
	for _, h := range s.theirHeads {
		if !s.dag.Has(h) {
			set[h] = struct{}{}
		}
	}
	for _, h := range s.dag.GetMissingDeps() {
		set[h] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func (s *State) computeChangesToSend(heads []string) []types.Change {
	reachableHashes := s.dag.ReachableFrom(heads)

	needSet := map[string]struct{}{}
	for _, h := range s.theirNeed {
		needSet[h] = struct{}{}
	}

	var out []types.Change
	for _, hash := range reachableHashes {
		if _, sent := s.sentHashes[hash]; sent {
			continue
		}
		_, explicitlyNeeded := needSet[hash]
		probablyTheirs := s.probablyKnownToPeer(hash)
		if explicitlyNeeded || !probablyTheirs {
			c, ok := s.dag.Get(hash)
			if !ok {
				continue
			}
			out = append(out, c)
			s.sentHashes[hash] = struct{}{}
		}
	}
	return out
}

// probablyKnownToPeer tests hash against every filter in theirHave: a
// "maybe present" verdict from any one filter is enough to treat the peer
// as having it, since a change reachable from any of the peer's advertised
// anchors would show up in that anchor's filter. Only when every filter
// says "definitely absent" (or there are none) does the peer lack it.
func (s *State) probablyKnownToPeer(hash string) bool {
	if len(s.theirHave) == 0 {
		return false
	}
	for _, h := range s.theirHave {
		if h.filter.MaybeContains(hash) {
			return true
		}
	}
	return false
}

// ReceiveMessage implements §4.3 step 5 plus the receive-side half of the
// protocol: absorb the peer's advertised state, insert any changes they
// sent into the DAG, and update sharedHeads once their next heads
// implicitly acknowledge everything we've sent.
func (s *State) ReceiveMessage(m Message) error {
	for _, c := range m.Changes {
		if _, _, err := s.dag.Insert(c); err != nil {
			return errs.New(errs.StateMismatch, "sync.State.ReceiveMessage: insert", err)
		}
	}

	if sameSet(m.Heads, s.dag.Heads()) {
		s.sharedHeads = m.Heads
		s.sentHashes = map[string]struct{}{}
	}

	s.theirHeads = m.Heads
	s.theirNeed = m.Need
	s.theirHave = m.Have
	return nil
}

// Converged reports whether this peer's heads match ours and there is
// nothing left to send — §4.3's termination condition.
func (s *State) Converged() bool {
	return sameSet(s.dag.Heads(), s.theirHeads)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// EncodeChangeForWire is a convenience re-export so callers building a
// Message by hand (e.g. an initial advertisement) can encode a change
// payload without importing codec directly.
func EncodeChangeForWire(c types.Change) []byte { return codec.EncodeChangePayload(c) }
