package fmp4

import (
	"errors"
	"fmt"

	"github.com/zsiec/bmff/box"
)

// ErrHierarchicalSidx reports a segment index containing a hierarchical
// (reference_type = 1) reference. Hierarchical indexes invalidate the flat
// byte-offset accumulation performed here, so the whole sidx decode is
// aborted rather than returning partial references.
var ErrHierarchicalSidx = errors.New("fmp4: hierarchical sidx reference unsupported")

// SidxReference is one entry of a segment index: the referenced subsegment's
// byte range within the resource and its duration.
type SidxReference struct {
	Size        uint32  // referenced bytes
	RawDuration uint32  // subsegment duration in timescale ticks
	Start       int     // first byte of the subsegment, inclusive
	End         int     // last byte of the subsegment, inclusive
	Seconds     float64 // RawDuration / timescale
}

// SegmentIndex is a decoded sidx box plus the end offset of the first moov
// box in the same buffer, which callers use to locate trailing bytes after
// the initialization data.
type SegmentIndex struct {
	Version    byte
	Timescale  uint32
	References []SidxReference
	MoovEnd    int // end offset of the first moov box, -1 when absent
}

// ParseSegmentIndex decodes the first sidx box in buf. A buffer without a
// sidx yields (nil, nil). Reference byte ranges accumulate sequentially from
// the sidx box's own end offset.
func ParseSegmentIndex(buf []byte) (*SegmentIndex, error) {
	root := box.NewView(buf)

	moovEnd := -1
	if moov, ok := box.FindFirst(root, "moov"); ok {
		moovEnd = moov.End()
	}

	sidx, ok := box.FindFirst(root, "sidx")
	if !ok {
		return nil, nil
	}

	version, err := sidx.Byte(0)
	if err != nil {
		return nil, fmt.Errorf("fmp4: sidx header: %w", err)
	}

	// version(1) + flags(3) + reference_ID(4) precede the timescale.
	index := 8
	timescale, err := sidx.Uint32(index)
	if err != nil {
		return nil, fmt.Errorf("fmp4: sidx timescale: %w", err)
	}
	index += 4

	// earliest_presentation_time and first_offset are unused here; version 1
	// widens them both to 64 bits.
	if version == 0 {
		index += 8
	} else {
		index += 16
	}
	index += 2 // reserved

	count, err := sidx.Uint16(index)
	if err != nil {
		return nil, fmt.Errorf("fmp4: sidx reference count: %w", err)
	}
	index += 2

	idx := &SegmentIndex{
		Version:   version,
		Timescale: timescale,
		MoovEnd:   moovEnd,
	}

	cursor := sidx.End()
	for i := 0; i < int(count); i++ {
		word, err := sidx.Uint32(index)
		if err != nil {
			return nil, fmt.Errorf("fmp4: sidx reference %d: %w", i, err)
		}
		if word&0x80000000 != 0 {
			return nil, ErrHierarchicalSidx
		}
		size := word & 0x7FFFFFFF

		duration, err := sidx.Uint32(index + 4)
		if err != nil {
			return nil, fmt.Errorf("fmp4: sidx reference %d: %w", i, err)
		}
		// 4 more bytes of SAP flags are skipped.
		index += 12

		idx.References = append(idx.References, SidxReference{
			Size:        size,
			RawDuration: duration,
			Start:       cursor,
			End:         cursor + int(size) - 1,
			Seconds:     float64(duration) / float64(timescale),
		})
		cursor += int(size)
	}

	return idx, nil
}
