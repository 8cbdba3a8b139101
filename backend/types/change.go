package types

// Change is a signed, hash-identified batch of ops with explicit dependency
// hashes, an actor, a sequence number, a wall-clock time, and an optional
// message. The hash itself is not stored here: it is a pure function of the
// canonical encoding (see backend/codec) and callers compute it once and
// carry it alongside the Change where needed (e.g. as a History DAG key).
type Change struct {
	Actor   ActorId
	Seq     uint64 // per-actor, 1..∞, gap-free
	StartOp uint64 // counter of the first op in Ops
	Time    int64  // millis
	Message string
	Deps    []string // sorted change hashes, byte-lexicographic
	Ops     []Operation
}

// MaxCounter returns the counter claimed by the last op in the change,
// i.e. StartOp + len(Ops) - 1. Callers use this to track the next counter
// an actor may assign.
func (c Change) MaxCounter() uint64 {
	if len(c.Ops) == 0 {
		return c.StartOp
	}
	return c.StartOp + uint64(len(c.Ops)) - 1
}
