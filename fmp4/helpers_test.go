package fmp4

import "encoding/binary"

// bx builds a box with the given four-character type and payload parts.
func bx(boxType string, payload ...[]byte) []byte {
	var body []byte
	for _, p := range payload {
		body = append(body, p...)
	}
	out := make([]byte, 8+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(out)))
	copy(out[4:], boxType)
	copy(out[8:], body)
	return out
}

// fullBox builds a box whose payload starts with a version byte and 24-bit
// flags.
func fullBox(boxType string, version byte, flags uint32, payload ...[]byte) []byte {
	body := []byte{version, byte(flags >> 16), byte(flags >> 8), byte(flags)}
	for _, p := range payload {
		body = append(body, p...)
	}
	return bx(boxType, body)
}

func u16(v uint16) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, v)
	return out
}

func u32(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

func u64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func cat(bufs ...[]byte) []byte {
	var out []byte
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

// trakBox builds a complete trak with version-0 tkhd/mdhd, the given handler
// type, and a single stsd entry.
func trakBox(id, timescale uint32, handler, codec string) []byte {
	tkhd := fullBox("tkhd", 0, 0, u32(0), u32(0), u32(id), u32(0))
	mdhd := fullBox("mdhd", 0, 0, u32(0), u32(0), u32(timescale), u32(0))
	hdlr := fullBox("hdlr", 0, 0, u32(0), []byte(handler), u32(0), u32(0), u32(0))
	stsd := fullBox("stsd", 0, 0, u32(1), bx(codec, make([]byte, 8)))
	return bx("trak", tkhd, bx("mdia", mdhd, hdlr, bx("minf", bx("stbl", stsd))))
}

func trexBox(id, defaultDuration, defaultFlags uint32) []byte {
	return fullBox("trex", 0, 0, u32(id), u32(1), u32(defaultDuration), u32(0), u32(defaultFlags))
}

func tfhdBox(flags, id uint32, fields ...[]byte) []byte {
	return fullBox("tfhd", 0, flags, append([][]byte{u32(id)}, fields...)...)
}

func tfdtV0(base uint32) []byte {
	return fullBox("tfdt", 0, 0, u32(base))
}

func tfdtV1(base uint64) []byte {
	return fullBox("tfdt", 1, 0, u64(base))
}

// trunBox builds a trun with the given flags, sample count, and raw field
// words (data offset and first-sample-flags included when flagged, then the
// per-sample entries in wire order).
func trunBox(flags, count uint32, words ...uint32) []byte {
	parts := [][]byte{u32(count)}
	for _, w := range words {
		parts = append(parts, u32(w))
	}
	return fullBox("trun", 0, flags, parts...)
}
