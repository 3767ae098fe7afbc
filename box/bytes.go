package box

import "errors"

// ErrTruncated reports a read or write past the end of a buffer or view.
var ErrTruncated = errors.New("box: truncated buffer")

// ReadUint16 reads a big-endian 16-bit value at off.
func ReadUint16(b []byte, off int) (uint16, error) {
	if off < 0 || off+2 > len(b) {
		return 0, ErrTruncated
	}
	return uint16(b[off])<<8 | uint16(b[off+1]), nil
}

// ReadUint32 reads a big-endian 32-bit value at off.
func ReadUint32(b []byte, off int) (uint32, error) {
	if off < 0 || off+4 > len(b) {
		return 0, ErrTruncated
	}
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 |
		uint32(b[off+2])<<8 | uint32(b[off+3]), nil
}

// ReadUint64 reads a big-endian 64-bit value at off, assembled as
// high32*2^32 + low32.
func ReadUint64(b []byte, off int) (uint64, error) {
	hi, err := ReadUint32(b, off)
	if err != nil {
		return 0, err
	}
	lo, err := ReadUint32(b, off+4)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// WriteUint32 writes a big-endian 32-bit value in place at off.
func WriteUint32(b []byte, off int, val uint32) error {
	if off < 0 || off+4 > len(b) {
		return ErrTruncated
	}
	b[off] = byte(val >> 24)
	b[off+1] = byte(val >> 16)
	b[off+2] = byte(val >> 8)
	b[off+3] = byte(val)
	return nil
}

// Uint16 reads a big-endian 16-bit value at rel, relative to the view's
// start and bounded by its end.
func (v View) Uint16(rel int) (uint16, error) {
	if rel < 0 || v.start+rel+2 > v.end {
		return 0, ErrTruncated
	}
	return ReadUint16(v.buf, v.start+rel)
}

// Uint32 reads a big-endian 32-bit value at rel, relative to the view's
// start and bounded by its end.
func (v View) Uint32(rel int) (uint32, error) {
	if rel < 0 || v.start+rel+4 > v.end {
		return 0, ErrTruncated
	}
	return ReadUint32(v.buf, v.start+rel)
}

// Uint64 reads a big-endian 64-bit value at rel, relative to the view's
// start and bounded by its end.
func (v View) Uint64(rel int) (uint64, error) {
	if rel < 0 || v.start+rel+8 > v.end {
		return 0, ErrTruncated
	}
	return ReadUint64(v.buf, v.start+rel)
}

// Byte reads the single byte at rel.
func (v View) Byte(rel int) (byte, error) {
	if rel < 0 || v.start+rel >= v.end {
		return 0, ErrTruncated
	}
	return v.buf[v.start+rel], nil
}

// PutUint32 writes a big-endian 32-bit value in place at rel. This patches
// the caller-owned backing buffer directly.
func (v View) PutUint32(rel int, val uint32) error {
	if rel < 0 || v.start+rel+4 > v.end {
		return ErrTruncated
	}
	return WriteUint32(v.buf, v.start+rel, val)
}
