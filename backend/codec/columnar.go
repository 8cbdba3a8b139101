package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"

	"crdtweave/backend/errs"
	"crdtweave/backend/types"
)

func float64bits(f float64) uint64      { return math.Float64bits(f) }
func float64frombits(b uint64) float64  { return math.Float64frombits(b) }

// Magic is the four-byte marker every columnar chunk starts with.
var Magic = [4]byte{0x85, 0x6f, 0x4a, 0x83}

// ChunkType distinguishes a single change from a whole document.
type ChunkType byte

const (
	ChunkDocument ChunkType = 0
	ChunkChange   ChunkType = 1
)

const actionUnknown = 255

var actionTable = []types.Action{
	types.ActionSet,
	types.ActionDel,
	types.ActionInc,
	types.ActionLink,
	types.ActionMakeMap,
	types.ActionMakeList,
	types.ActionMakeTable,
	types.ActionMakeText,
}

func actionIndex(a types.Action) uint64 {
	for i, x := range actionTable {
		if x == a {
			return uint64(i)
		}
	}
	return actionUnknown
}

func actionFromIndex(i uint64) (types.Action, error) {
	if i >= uint64(len(actionTable)) {
		return "", errs.New(errs.DecodeError, "actionFromIndex", nil)
	}
	return actionTable[i], nil
}

const (
	keyKindNone = iota
	keyKindStr
	keyKindOpId
)

// actorTable collects and indexes every ActorId referenced by a change, in
// byte-lexicographic order, so op columns can reference actors by a small
// integer index instead of repeating the full id.
type actorTable struct {
	actors []types.ActorId
	index  map[types.ActorId]uint64
}

func newActorTable(c types.Change) *actorTable {
	seen := map[types.ActorId]struct{}{c.Actor: {}}
	add := func(id types.OpId) { seen[id.Actor] = struct{}{} }
	for _, op := range c.Ops {
		add(op.Obj)
		for _, p := range op.Pred {
			add(p)
		}
		if op.Child != nil {
			add(*op.Child)
		}
		if opId, err := types.ParseOpId(op.Key); err == nil {
			add(opId)
		}
	}
	actors := make([]types.ActorId, 0, len(seen))
	for a := range seen {
		actors = append(actors, a)
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i].Less(actors[j]) })
	index := make(map[types.ActorId]uint64, len(actors))
	for i, a := range actors {
		index[a] = uint64(i)
	}
	return &actorTable{actors: actors, index: index}
}

func (t *actorTable) idx(a types.ActorId) uint64 { return t.index[a] }

// EncodeChangePayload produces the canonical byte encoding whose SHA-256
// digest is the change's hash. It does not include the outer magic/type/
// length chunk framing — that framing is added by EncodeChange.
func EncodeChangePayload(c types.Change) []byte {
	at := newActorTable(c)

	var buf []byte
	buf = appendLEB128(buf, uint64(len(at.actors)))
	for _, a := range at.actors {
		buf = appendString(buf, string(a))
	}
	buf = appendLEB128(buf, at.idx(c.Actor))
	buf = appendRLEColumn(buf, []uint64{c.Seq})
	buf = appendRLEColumn(buf, []uint64{c.StartOp})
	buf = appendRLEColumn(buf, []uint64{uint64(c.Time)})
	buf = appendString(buf, c.Message)

	deps := make([]string, len(c.Deps))
	copy(deps, c.Deps)
	sort.Strings(deps)
	buf = appendLEB128(buf, uint64(len(deps)))
	for _, d := range deps {
		raw, err := hex.DecodeString(d)
		if err != nil || len(raw) != sha256.Size {
			raw = make([]byte, sha256.Size)
		}
		buf = append(buf, raw...)
	}

	buf = appendLEB128(buf, uint64(len(c.Ops)))

	objActor := make([]uint64, len(c.Ops))
	objCounter := make([]uint64, len(c.Ops))
	keyKind := make([]uint64, len(c.Ops))
	keyActor := make([]uint64, len(c.Ops))
	keyCounter := make([]uint64, len(c.Ops))
	insertBits := make([]bool, len(c.Ops))
	action := make([]uint64, len(c.Ops))

	for i, op := range c.Ops {
		objActor[i] = at.idx(op.Obj.Actor)
		objCounter[i] = op.Obj.Counter
		insertBits[i] = op.Insert
		action[i] = actionIndex(op.Action)

		if opId, err := types.ParseOpId(op.Key); err == nil && op.Key != "" {
			keyKind[i] = keyKindOpId
			keyActor[i] = at.idx(opId.Actor)
			keyCounter[i] = opId.Counter
		} else if op.Key != "" {
			keyKind[i] = keyKindStr
		}
	}

	buf = appendRLEColumn(buf, objActor)
	buf = appendRLEColumn(buf, objCounter)
	buf = appendRLEColumn(buf, keyKind)
	buf = appendRLEColumn(buf, keyActor)
	buf = appendRLEColumn(buf, keyCounter)
	for i, op := range c.Ops {
		if keyKind[i] == keyKindStr {
			buf = appendString(buf, op.Key)
		}
	}
	buf = appendBitmap(buf, insertBits)
	buf = appendRLEColumn(buf, action)

	// pred-group: per op, count then (actorIdx, counter) pairs
	for _, op := range c.Ops {
		ids := make([]types.OpId, len(op.Pred))
		copy(ids, op.Pred)
		types.SortOpIds(ids)
		buf = appendLEB128(buf, uint64(len(ids)))
		for _, p := range ids {
			buf = appendLEB128(buf, at.idx(p.Actor))
			buf = appendLEB128(buf, p.Counter)
		}
	}

	// value column: present flag, kind, raw bytes
	for _, op := range c.Ops {
		if op.Value == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = appendValue(buf, *op.Value)
	}
	for _, op := range c.Ops {
		buf = appendString(buf, op.Datatype)
	}

	// child column
	for _, op := range c.Ops {
		if op.Child == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = appendLEB128(buf, at.idx(op.Child.Actor))
		buf = appendLEB128(buf, op.Child.Counter)
	}

	// multiOp + values
	for _, op := range c.Ops {
		buf = appendLEB128(buf, uint64(op.MultiOp))
		buf = appendLEB128(buf, uint64(len(op.Values)))
		for _, v := range op.Values {
			buf = appendValue(buf, v)
		}
	}

	return buf
}

func appendValue(buf []byte, v types.Value) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case types.KindBool:
		if v.B {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case types.KindInt, types.KindCounter, types.KindTimestamp:
		buf = appendLEB128(buf, uint64(v.I))
	case types.KindFloat:
		bits := float64bits(v.F)
		buf = appendLEB128(buf, bits)
	case types.KindString:
		buf = appendString(buf, v.S)
	}
	return buf
}

func readValue(buf []byte, off int) (types.Value, int, error) {
	if off >= len(buf) {
		return types.Value{}, off, errs.New(errs.DecodeError, "readValue", nil)
	}
	kind := types.ValueKind(buf[off])
	off++
	switch kind {
	case types.KindNull:
		return types.Value{Kind: kind}, off, nil
	case types.KindBool:
		if off >= len(buf) {
			return types.Value{}, off, errs.New(errs.DecodeError, "readValue", nil)
		}
		b := buf[off] != 0
		return types.Value{Kind: kind, B: b}, off + 1, nil
	case types.KindInt, types.KindCounter, types.KindTimestamp:
		v, o, err := readLEB128(buf, off)
		if err != nil {
			return types.Value{}, o, err
		}
		return types.Value{Kind: kind, I: int64(v)}, o, nil
	case types.KindFloat:
		bits, o, err := readLEB128(buf, off)
		if err != nil {
			return types.Value{}, o, err
		}
		return types.Value{Kind: kind, F: float64frombits(bits)}, o, nil
	case types.KindString:
		s, o, err := readString(buf, off)
		if err != nil {
			return types.Value{}, o, err
		}
		return types.Value{Kind: kind, S: s}, o, nil
	default:
		return types.Value{}, off, errs.New(errs.DecodeError, "readValue: unknown kind", nil)
	}
}

// HashChange returns the 64-hex-digit SHA-256 digest of the change's
// canonical encoding — its unique identifier per §6.
func HashChange(c types.Change) string {
	sum := sha256.Sum256(EncodeChangePayload(c))
	return hex.EncodeToString(sum[:])
}

// EncodeChange frames the canonical payload with the magic bytes, chunk
// type, and big-endian length header.
func EncodeChange(c types.Change) []byte {
	payload := EncodeChangePayload(c)
	return frame(ChunkChange, payload)
}

func frame(kind ChunkType, payload []byte) []byte {
	buf := make([]byte, 0, 4+1+4+len(payload))
	buf = append(buf, Magic[:]...)
	buf = append(buf, byte(kind))
	var lenBuf [4]byte
	lenBuf[0] = byte(len(payload) >> 24)
	lenBuf[1] = byte(len(payload) >> 16)
	lenBuf[2] = byte(len(payload) >> 8)
	lenBuf[3] = byte(len(payload))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, payload...)
	return buf
}

// unframe validates the magic bytes and chunk type and returns the payload.
func unframe(buf []byte, want ChunkType) ([]byte, error) {
	if len(buf) < 9 {
		return nil, errs.New(errs.DecodeError, "unframe: truncated header", nil)
	}
	for i := 0; i < 4; i++ {
		if buf[i] != Magic[i] {
			return nil, errs.New(errs.DecodeError, "unframe: bad magic", nil)
		}
	}
	kind := ChunkType(buf[4])
	if kind != want {
		return nil, errs.New(errs.DecodeError, "unframe: unexpected chunk type", nil)
	}
	length := uint32(buf[5])<<24 | uint32(buf[6])<<16 | uint32(buf[7])<<8 | uint32(buf[8])
	if 9+int(length) > len(buf) {
		return nil, errs.New(errs.DecodeError, "unframe: truncated chunk", nil)
	}
	return buf[9 : 9+int(length)], nil
}

// DecodeChange parses a framed change chunk back into a types.Change.
func DecodeChange(buf []byte) (types.Change, error) {
	payload, err := unframe(buf, ChunkChange)
	if err != nil {
		return types.Change{}, err
	}
	return DecodeChangePayload(payload)
}

// DecodeChangePayload parses an unframed canonical payload into a
// types.Change. decode(encode(c)) = c is required for every valid change.
func DecodeChangePayload(buf []byte) (types.Change, error) {
	off := 0
	nActors, off, err := readLEB128(buf, off)
	if err != nil {
		return types.Change{}, err
	}
	actors := make([]types.ActorId, nActors)
	for i := range actors {
		s, o, err := readString(buf, off)
		if err != nil {
			return types.Change{}, err
		}
		off = o
		actors[i] = types.ActorId(s)
	}
	resolveActor := func(idx uint64) (types.ActorId, error) {
		if idx >= uint64(len(actors)) {
			return "", errs.New(errs.DecodeError, "resolveActor: index out of range", nil)
		}
		return actors[idx], nil
	}

	actorIdx, off, err := readLEB128(buf, off)
	if err != nil {
		return types.Change{}, err
	}
	actor, err := resolveActor(actorIdx)
	if err != nil {
		return types.Change{}, err
	}

	seqCol, off, err := readRLEColumn(buf, off)
	if err != nil || len(seqCol) != 1 {
		return types.Change{}, errs.New(errs.DecodeError, "decode seq", err)
	}
	startOpCol, off, err := readRLEColumn(buf, off)
	if err != nil || len(startOpCol) != 1 {
		return types.Change{}, errs.New(errs.DecodeError, "decode startOp", err)
	}
	timeCol, off, err := readRLEColumn(buf, off)
	if err != nil || len(timeCol) != 1 {
		return types.Change{}, errs.New(errs.DecodeError, "decode time", err)
	}
	message, off, err := readString(buf, off)
	if err != nil {
		return types.Change{}, err
	}

	nDeps, off, err := readLEB128(buf, off)
	if err != nil {
		return types.Change{}, err
	}
	deps := make([]string, nDeps)
	for i := range deps {
		if off+sha256.Size > len(buf) {
			return types.Change{}, errs.New(errs.DecodeError, "decode deps: truncated", nil)
		}
		deps[i] = hex.EncodeToString(buf[off : off+sha256.Size])
		off += sha256.Size
	}

	nOps, off, err := readLEB128(buf, off)
	if err != nil {
		return types.Change{}, err
	}

	objActor, off, err := readRLEColumn(buf, off)
	if err != nil {
		return types.Change{}, err
	}
	objCounter, off, err := readRLEColumn(buf, off)
	if err != nil {
		return types.Change{}, err
	}
	keyKind, off, err := readRLEColumn(buf, off)
	if err != nil {
		return types.Change{}, err
	}
	keyActor, off, err := readRLEColumn(buf, off)
	if err != nil {
		return types.Change{}, err
	}
	keyCounter, off, err := readRLEColumn(buf, off)
	if err != nil {
		return types.Change{}, err
	}

	keyStr := make([]string, nOps)
	for i := uint64(0); i < nOps; i++ {
		if keyKind[i] == keyKindStr {
			s, o, err := readString(buf, off)
			if err != nil {
				return types.Change{}, err
			}
			off = o
			keyStr[i] = s
		}
	}

	insertBits, off, err := readBitmap(buf, off)
	if err != nil {
		return types.Change{}, err
	}
	actionCol, off, err := readRLEColumn(buf, off)
	if err != nil {
		return types.Change{}, err
	}

	ops := make([]types.Operation, nOps)
	for i := uint64(0); i < nOps; i++ {
		oa, err := resolveActor(objActor[i])
		if err != nil {
			return types.Change{}, err
		}
		act, err := actionFromIndex(actionCol[i])
		if err != nil {
			return types.Change{}, err
		}
		op := types.Operation{
			Action: act,
			Obj:    types.OpId{Counter: objCounter[i], Actor: oa},
			Insert: insertBits[i],
		}
		switch keyKind[i] {
		case keyKindStr:
			op.Key = keyStr[i]
		case keyKindOpId:
			ka, err := resolveActor(keyActor[i])
			if err != nil {
				return types.Change{}, err
			}
			op.Key = types.OpId{Counter: keyCounter[i], Actor: ka}.String()
		}
		ops[i] = op
	}

	// pred-group
	for i := range ops {
		n, o, err := readLEB128(buf, off)
		if err != nil {
			return types.Change{}, err
		}
		off = o
		pred := make([]types.OpId, n)
		for k := range pred {
			ai, o, err := readLEB128(buf, off)
			if err != nil {
				return types.Change{}, err
			}
			off = o
			counter, o, err := readLEB128(buf, off)
			if err != nil {
				return types.Change{}, err
			}
			off = o
			a, err := resolveActor(ai)
			if err != nil {
				return types.Change{}, err
			}
			pred[k] = types.OpId{Counter: counter, Actor: a}
		}
		ops[i].Pred = pred
	}

	// value column
	for i := range ops {
		if off >= len(buf) {
			return types.Change{}, errs.New(errs.DecodeError, "decode value presence", nil)
		}
		present := buf[off]
		off++
		if present == 1 {
			v, o, err := readValue(buf, off)
			if err != nil {
				return types.Change{}, err
			}
			off = o
			ops[i].Value = &v
		}
	}
	for i := range ops {
		s, o, err := readString(buf, off)
		if err != nil {
			return types.Change{}, err
		}
		off = o
		ops[i].Datatype = s
	}

	// child column
	for i := range ops {
		if off >= len(buf) {
			return types.Change{}, errs.New(errs.DecodeError, "decode child presence", nil)
		}
		present := buf[off]
		off++
		if present == 1 {
			ai, o, err := readLEB128(buf, off)
			if err != nil {
				return types.Change{}, err
			}
			off = o
			counter, o, err := readLEB128(buf, off)
			if err != nil {
				return types.Change{}, err
			}
			off = o
			a, err := resolveActor(ai)
			if err != nil {
				return types.Change{}, err
			}
			id := types.OpId{Counter: counter, Actor: a}
			ops[i].Child = &id
		}
	}

	// multiOp + values
	for i := range ops {
		m, o, err := readLEB128(buf, off)
		if err != nil {
			return types.Change{}, err
		}
		off = o
		ops[i].MultiOp = int(m)
		n, o, err := readLEB128(buf, off)
		if err != nil {
			return types.Change{}, err
		}
		off = o
		vals := make([]types.Value, n)
		for k := range vals {
			v, o, err := readValue(buf, off)
			if err != nil {
				return types.Change{}, err
			}
			off = o
			vals[k] = v
		}
		ops[i].Values = vals
	}

	return types.Change{
		Actor:   actor,
		Seq:     seqCol[0],
		StartOp: startOpCol[0],
		Time:    int64(timeCol[0]),
		Message: message,
		Deps:    deps,
		Ops:     ops,
	}, nil
}
