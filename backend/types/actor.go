package types

import (
	"strings"

	"github.com/google/uuid"
)

// ActorId is an opaque identifier unique per replica. It is rendered as a
// lowercase hex string; ordering between actors is the byte-lexicographic
// order of that rendering.
type ActorId string

// NewActorId mints a fresh actor id for a new replica session.
func NewActorId() ActorId {
	id := uuid.New()
	return ActorId(strings.ReplaceAll(id.String(), "-", ""))
}

// Less reports whether a sorts before b under the byte-lexicographic order
// required by the data model.
func (a ActorId) Less(b ActorId) bool {
	return a < b
}

// RootActor is the sentinel actor of the root object id 0@0.
const RootActor ActorId = "0"
