package codec

import (
	"sort"

	"crdtweave/backend/errs"
	"crdtweave/backend/types"
)

// CanonicalOrder sorts changes topologically (deps before dependents) with
// ties among concurrent changes broken by hash ascending, per §6/§4.2.
func CanonicalOrder(changes []types.Change, hashOf func(types.Change) string) []types.Change {
	hashes := make([]string, len(changes))
	byHash := make(map[string]types.Change, len(changes))
	for i, c := range changes {
		h := hashOf(c)
		hashes[i] = h
		byHash[h] = c
	}

	visited := make(map[string]bool, len(changes))
	var order []string
	var visit func(h string)
	visit = func(h string) {
		if visited[h] {
			return
		}
		c, ok := byHash[h]
		if !ok {
			return // dependency outside this set; ignore for local ordering
		}
		visited[h] = true
		deps := make([]string, len(c.Deps))
		copy(deps, c.Deps)
		sort.Strings(deps)
		for _, d := range deps {
			visit(d)
		}
		order = append(order, h)
	}

	sortedHashes := make([]string, len(hashes))
	copy(sortedHashes, hashes)
	sort.Strings(sortedHashes)
	for _, h := range sortedHashes {
		visit(h)
	}

	out := make([]types.Change, len(order))
	for i, h := range order {
		out[i] = byHash[h]
	}
	return out
}

// EncodeDocument concatenates changes in canonical order into a single
// chunk: all changes in order, a dedup'd actor table, and a hash index —
// enough for DecodeDocument to reconstruct the same set of changes and,
// together with history.DAG.Insert, the same OpSet state.
func EncodeDocument(changes []types.Change, hashOf func(types.Change) string) []byte {
	ordered := CanonicalOrder(changes, hashOf)

	actorSeen := map[types.ActorId]struct{}{}
	var actors []types.ActorId
	for _, c := range ordered {
		if _, ok := actorSeen[c.Actor]; !ok {
			actorSeen[c.Actor] = struct{}{}
			actors = append(actors, c.Actor)
		}
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i].Less(actors[j]) })

	var buf []byte
	buf = appendLEB128(buf, uint64(len(actors)))
	for _, a := range actors {
		buf = appendString(buf, string(a))
	}

	buf = appendLEB128(buf, uint64(len(ordered)))
	for _, c := range ordered {
		h := hashOf(c)
		payload := EncodeChangePayload(c)
		buf = appendString(buf, h)
		buf = appendBytes(buf, payload)
	}

	return frame(ChunkDocument, buf)
}

// DecodeDocument parses a document chunk back into its ordered changes.
// decode(encode(S)) = S is required for any valid state S.
func DecodeDocument(buf []byte) ([]types.Change, error) {
	payload, err := unframe(buf, ChunkDocument)
	if err != nil {
		return nil, err
	}

	off := 0
	nActors, off, err := readLEB128(payload, off)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nActors; i++ {
		_, o, err := readString(payload, off)
		if err != nil {
			return nil, err
		}
		off = o
	}

	nChanges, off, err := readLEB128(payload, off)
	if err != nil {
		return nil, err
	}
	changes := make([]types.Change, nChanges)
	for i := range changes {
		_, o, err := readString(payload, off) // stored hash, recomputed on apply
		if err != nil {
			return nil, err
		}
		off = o
		changePayload, o, err := readBytes(payload, off)
		if err != nil {
			return nil, err
		}
		off = o
		c, err := DecodeChangePayload(changePayload)
		if err != nil {
			return nil, errs.New(errs.DecodeError, "DecodeDocument: bad change", err)
		}
		changes[i] = c
	}
	return changes, nil
}
