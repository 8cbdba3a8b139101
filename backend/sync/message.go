package sync

import (
	"crdtweave/backend/codec"
	"crdtweave/backend/errs"
	"crdtweave/backend/types"
)

// syncMagic and syncVersion are the sync message envelope's leading bytes
// (§6: "Magic 42, version 0"), distinct from the columnar codec's own
// 4-byte magic so the two wire formats never collide on a socket that
// carries both change bytes and sync-protocol bytes.
const (
	syncMagic   byte = 0x42
	syncVersion byte = 0x00
)

// Message is the wire shape of §4.3/§6: a docId (so one Connection can
// multiplex many documents over one socket, per §4.4), heads, need, have
// (anchor+Bloom pairs), and the changes being pushed this round.
type Message struct {
	DocId   string
	Heads   []string
	Need    []string
	Have    []have
	Changes []types.Change
}

// EncodeMessage frames a Message per §6's sync envelope.
func EncodeMessage(m Message) []byte {
	buf := []byte{syncMagic, syncVersion}
	buf = codec.AppendStringExported(buf, m.DocId)
	buf = codec.AppendStringListExported(buf, m.Heads)
	buf = codec.AppendStringListExported(buf, m.Need)

	buf = codec.AppendLEB128Exported(buf, uint64(len(m.Have)))
	for _, h := range m.Have {
		buf = encodeHave(h, buf)
	}

	buf = codec.AppendLEB128Exported(buf, uint64(len(m.Changes)))
	for _, c := range m.Changes {
		payload := codec.EncodeChangePayload(c)
		buf = codec.AppendBytesExported(buf, payload)
	}
	return buf
}

// DecodeMessage parses a framed sync message, reversing EncodeMessage.
func DecodeMessage(buf []byte) (Message, error) {
	if len(buf) < 2 || buf[0] != syncMagic {
		return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: bad magic", nil)
	}
	if buf[1] != syncVersion {
		return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: unsupported version", nil)
	}
	off := 2

	docId, off, err := codec.ReadStringExported(buf, off)
	if err != nil {
		return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: docId", err)
	}

	heads, off, err := codec.ReadStringListExported(buf, off)
	if err != nil {
		return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: heads", err)
	}
	need, off, err := codec.ReadStringListExported(buf, off)
	if err != nil {
		return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: need", err)
	}

	haveCount, off, err := codec.ReadLEB128Exported(buf, off)
	if err != nil {
		return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: have count", err)
	}
	haves := make([]have, 0, haveCount)
	for i := uint64(0); i < haveCount; i++ {
		h, o, err := decodeHave(buf, off)
		if err != nil {
			return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: have entry", err)
		}
		off = o
		haves = append(haves, h)
	}

	changeCount, off, err := codec.ReadLEB128Exported(buf, off)
	if err != nil {
		return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: change count", err)
	}
	changes := make([]types.Change, 0, changeCount)
	for i := uint64(0); i < changeCount; i++ {
		payload, o, err := codec.ReadBytesExported(buf, off)
		if err != nil {
			return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: change payload", err)
		}
		off = o
		c, err := codec.DecodeChangePayload(payload)
		if err != nil {
			return Message{}, errs.New(errs.DecodeError, "sync.DecodeMessage: change decode", err)
		}
		changes = append(changes, c)
	}

	return Message{DocId: docId, Heads: heads, Need: need, Have: haves, Changes: changes}, nil
}
