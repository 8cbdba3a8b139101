// Package codec implements the bit-exact columnar wire format of §6: a
// single change, a whole document (concatenated changes in canonical
// order), and the sync message envelope of §6/§4.3 all share the same
// LEB128 + run-length primitives defined here.
package codec

import (
	"crdtweave/backend/errs"
)

// appendLEB128 appends the unsigned LEB128 encoding of v to buf.
func appendLEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			break
		}
	}
	return buf
}

// readLEB128 reads an unsigned LEB128 varint from buf starting at off,
// returning the value and the new offset.
func readLEB128(buf []byte, off int) (uint64, int, error) {
	var result uint64
	var shift uint
	for {
		if off >= len(buf) {
			return 0, off, errs.New(errs.DecodeError, "readLEB128", nil)
		}
		b := buf[off]
		off++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, off, errs.New(errs.DecodeError, "readLEB128", nil)
		}
	}
	return result, off, nil
}

// appendBytes writes a length-prefixed byte string (LEB128 length then raw
// bytes).
func appendBytes(buf []byte, b []byte) []byte {
	buf = appendLEB128(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytes(buf []byte, off int) ([]byte, int, error) {
	n, off, err := readLEB128(buf, off)
	if err != nil {
		return nil, off, err
	}
	if off+int(n) > len(buf) {
		return nil, off, errs.New(errs.DecodeError, "readBytes", nil)
	}
	out := make([]byte, n)
	copy(out, buf[off:off+int(n)])
	return out, off + int(n), nil
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func readString(buf []byte, off int) (string, int, error) {
	b, off, err := readBytes(buf, off)
	if err != nil {
		return "", off, err
	}
	return string(b), off, nil
}

// appendRLEColumn encodes a column of uint64 values as (run-count, value)
// pairs, collapsing consecutive repeats — "LEB128 + run-length-encoded
// where beneficial" per §6.
func appendRLEColumn(buf []byte, values []uint64) []byte {
	buf = appendLEB128(buf, uint64(len(values)))
	i := 0
	for i < len(values) {
		j := i + 1
		for j < len(values) && values[j] == values[i] {
			j++
		}
		buf = appendLEB128(buf, uint64(j-i))
		buf = appendLEB128(buf, values[i])
		i = j
	}
	return buf
}

func readRLEColumn(buf []byte, off int) ([]uint64, int, error) {
	total, off, err := readLEB128(buf, off)
	if err != nil {
		return nil, off, err
	}
	out := make([]uint64, 0, total)
	for uint64(len(out)) < total {
		runLen, o, err := readLEB128(buf, off)
		if err != nil {
			return nil, off, err
		}
		off = o
		val, o, err := readLEB128(buf, off)
		if err != nil {
			return nil, off, err
		}
		off = o
		for k := uint64(0); k < runLen; k++ {
			out = append(out, val)
		}
	}
	return out, off, nil
}

// appendBitmap packs a bool column into an RLE column of 0/1 values — used
// for the insert-flag column.
func appendBitmap(buf []byte, bits []bool) []byte {
	vals := make([]uint64, len(bits))
	for i, b := range bits {
		if b {
			vals[i] = 1
		}
	}
	return appendRLEColumn(buf, vals)
}

func readBitmap(buf []byte, off int) ([]bool, int, error) {
	vals, off, err := readRLEColumn(buf, off)
	if err != nil {
		return nil, off, err
	}
	out := make([]bool, len(vals))
	for i, v := range vals {
		out[i] = v != 0
	}
	return out, off, nil
}
