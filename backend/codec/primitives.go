package codec

// Exported wrappers around the LEB128/RLE primitives, for the sync
// package's wire format (§6's sync message envelope), which shares the
// same varint/length-prefix conventions as the change codec above but
// isn't itself a columnar chunk.

func AppendLEB128Exported(buf []byte, v uint64) []byte { return appendLEB128(buf, v) }

func ReadLEB128Exported(buf []byte, off int) (uint64, int, error) { return readLEB128(buf, off) }

func AppendBytesExported(buf []byte, b []byte) []byte { return appendBytes(buf, b) }

func ReadBytesExported(buf []byte, off int) ([]byte, int, error) { return readBytes(buf, off) }

func AppendStringExported(buf []byte, s string) []byte { return appendString(buf, s) }

func ReadStringExported(buf []byte, off int) (string, int, error) { return readString(buf, off) }

// AppendStringListExported writes a LEB128 count followed by each string
// length-prefixed — used for sorted hash lists and anchor-head lists.
func AppendStringListExported(buf []byte, ss []string) []byte {
	buf = appendLEB128(buf, uint64(len(ss)))
	for _, s := range ss {
		buf = appendString(buf, s)
	}
	return buf
}

func ReadStringListExported(buf []byte, off int) ([]string, int, error) {
	n, off, err := readLEB128(buf, off)
	if err != nil {
		return nil, off, err
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, o, err := readString(buf, off)
		if err != nil {
			return nil, off, err
		}
		off = o
		out = append(out, s)
	}
	return out, off, nil
}
