package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// OpId is the Lamport-style identifier of a single operation: a per-actor
// counter paired with the actor that assigned it. Counters start at 1; the
// root object uses the fixed sentinel OpId{0, RootActor}.
type OpId struct {
	Counter uint64
	Actor   ActorId
}

// RootId is the fixed OpId of the document's root object: "0@0".
var RootId = OpId{Counter: 0, Actor: RootActor}

// String renders the op id as "<counter>@<actor>".
func (o OpId) String() string {
	return fmt.Sprintf("%d@%s", o.Counter, o.Actor)
}

// ParseOpId parses the "<counter>@<actor>" rendering back into an OpId.
func ParseOpId(s string) (OpId, error) {
	if s == "" {
		return OpId{}, fmt.Errorf("empty op id")
	}
	idx := strings.IndexByte(s, '@')
	if idx < 0 {
		return OpId{}, fmt.Errorf("malformed op id %q: missing '@'", s)
	}
	counter, err := strconv.ParseUint(s[:idx], 10, 64)
	if err != nil {
		return OpId{}, fmt.Errorf("malformed op id %q: %w", s, err)
	}
	return OpId{Counter: counter, Actor: ActorId(s[idx+1:])}, nil
}

// Less implements the total order from §3: counter ascending, ties broken
// by actor ascending (byte-lexicographic).
func (o OpId) Less(other OpId) bool {
	if o.Counter != other.Counter {
		return o.Counter < other.Counter
	}
	return o.Actor.Less(other.Actor)
}

// SortOpIds sorts a slice of OpIds in place using the §3 ordering.
func SortOpIds(ids []OpId) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// Action enumerates the operation kinds in §3.
type Action string

const (
	ActionSet      Action = "set"
	ActionDel      Action = "del"
	ActionInc      Action = "inc"
	ActionLink     Action = "link"
	ActionMakeMap  Action = "makeMap"
	ActionMakeList Action = "makeList"
	ActionMakeTable Action = "makeTable"
	ActionMakeText Action = "makeText"
)

// IsMake reports whether the action creates a new composite object.
func (a Action) IsMake() bool {
	switch a {
	case ActionMakeMap, ActionMakeList, ActionMakeTable, ActionMakeText:
		return true
	default:
		return false
	}
}

// ValueKind tags the dynamic value domain from §9's design notes.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindCounter
	KindTimestamp
)

// Value is the tagged union null | bool | i64 | f64 | string | counter(i64)
// | timestamp(i64).
type Value struct {
	Kind ValueKind
	B    bool
	I    int64
	F    float64
	S    string
}

func NullValue() Value              { return Value{Kind: KindNull} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, B: b} }
func IntValue(i int64) Value        { return Value{Kind: KindInt, I: i} }
func FloatValue(f float64) Value    { return Value{Kind: KindFloat, F: f} }
func StringValue(s string) Value    { return Value{Kind: KindString, S: s} }
func CounterValue(i int64) Value    { return Value{Kind: KindCounter, I: i} }
func TimestampValue(i int64) Value  { return Value{Kind: KindTimestamp, I: i} }

// Equal reports whether two values are identical in kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.B == o.B
	case KindInt, KindCounter, KindTimestamp:
		return v.I == o.I
	case KindFloat:
		return v.F == o.F
	case KindString:
		return v.S == o.S
	default:
		return true
	}
}

// Operation is a single CRDT mutation as described in §3: an action against
// a target object, keyed by a map key or list element id, overriding an
// explicit predecessor set, optionally carrying a primitive value or a
// reference to a freshly created child object.
type Operation struct {
	Action Action
	Obj    OpId
	Key    string // map key, or elemId string for list/text ops
	Insert bool   // list insertions only
	Pred   []OpId // set of OpIds this op overrides

	Value    *Value
	Datatype string // "counter" | "timestamp", optional

	Child *OpId // optional id of the object a make op creates; nil means the op's own OpId

	// MultiOp/Values: run-length-encoded consecutive primitive inserts into
	// a list, sharing a base elemId (the op's own OpId; the k-th value gets
	// that OpId's counter plus k).
	MultiOp int
	Values  []Value
}

// PredSet returns Pred as a set for membership tests.
func (op Operation) PredSet() map[OpId]struct{} {
	s := make(map[OpId]struct{}, len(op.Pred))
	for _, p := range op.Pred {
		s[p] = struct{}{}
	}
	return s
}
