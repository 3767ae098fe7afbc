// Package fmp4 extracts playback metadata from fragmented-MP4 (CMAF) buffers
// without demultiplexing them: the per-track timescale/codec table from an
// initialization segment, segment-index byte ranges for seeking, per-fragment
// decode-time anchors and durations, expanded sample timelines, and
// ID3-over-emsg timed metadata.
//
// Every function is a pure, reentrant transform over a caller-owned buffer.
// The only mutation anywhere in the package is the explicit in-place tfdt
// patch performed by OffsetStartDTS.
package fmp4

import (
	"sort"

	"github.com/zsiec/bmff/box"
)

// DefaultTimescale is assumed for a track whose mdhd carries no usable
// timescale, per the 90 kHz MPEG convention.
const DefaultTimescale = 90000

// Kind identifies a track's stream type.
type Kind string

// Track kinds resolved from the hdlr handler type.
const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// SampleDefaults carries the trex default sample duration and flags for one
// track.
type SampleDefaults struct {
	Duration uint32
	Flags    uint32
}

// Track describes one track from an initialization segment. Built once per
// init segment and read-only thereafter.
type Track struct {
	ID        uint32
	Kind      Kind
	Timescale uint32
	Codec     string // four-character type of the first stsd entry, "" if absent
	Defaults  *SampleDefaults
}

// scale returns the track's timescale, falling back to DefaultTimescale.
func (t *Track) scale() float64 {
	if t.Timescale > 0 {
		return float64(t.Timescale)
	}
	return DefaultTimescale
}

// Tracks is the track table of an initialization segment, keyed both by
// numeric track id and by stream kind.
type Tracks struct {
	byID   map[uint32]*Track
	byKind map[Kind]*Track
}

// ByID returns the track with the given numeric id.
func (t *Tracks) ByID(id uint32) (*Track, bool) {
	tr, ok := t.byID[id]
	return tr, ok
}

// ByKind returns the track with the given stream kind.
func (t *Tracks) ByKind(k Kind) (*Track, bool) {
	tr, ok := t.byKind[k]
	return tr, ok
}

// Len returns the number of resolved tracks.
func (t *Tracks) Len() int { return len(t.byID) }

// All returns every resolved track ordered by id.
func (t *Tracks) All() []*Track {
	out := make([]*Track, 0, len(t.byID))
	for _, tr := range t.byID {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Full-box field offsets keyed by version. Version 1 widens the preceding
// creation/modification time fields to 64 bits, pushing later fields out.
var (
	tkhdTrackIDOffset   = [2]int{12, 20}
	mdhdTimescaleOffset = [2]int{12, 20}
)

// hdlr handler type codes mapped to track kinds. Other handler types (text,
// hint, metadata) are skipped.
var handlerKinds = map[string]Kind{
	"soun": KindAudio,
	"vide": KindVideo,
}

// ParseInitSegment walks moov/trak to build the track table. Tracks with an
// unrecognized handler type or a truncated header are skipped; a buffer with
// no moov yields an empty table, not an error.
func ParseInitSegment(buf []byte) *Tracks {
	tracks := &Tracks{
		byID:   make(map[uint32]*Track),
		byKind: make(map[Kind]*Track),
	}

	root := box.NewView(buf)
	for _, trak := range box.FindAll(root, "moov", "trak") {
		track, ok := parseTrak(trak)
		if !ok {
			continue
		}
		tracks.byID[track.ID] = track
		tracks.byKind[track.Kind] = track
	}

	// trex defaults attach only to already-resolved tracks; entries for
	// unknown track ids are dropped.
	for _, trex := range box.FindAll(root, "moov", "mvex", "trex") {
		id, err := trex.Uint32(4)
		if err != nil {
			continue
		}
		track, ok := tracks.byID[id]
		if !ok {
			continue
		}
		duration, err := trex.Uint32(12)
		if err != nil {
			continue
		}
		flags, err := trex.Uint32(20)
		if err != nil {
			continue
		}
		track.Defaults = &SampleDefaults{Duration: duration, Flags: flags}
	}

	return tracks
}

func parseTrak(trak box.View) (*Track, bool) {
	hdlr, ok := box.FindFirst(trak, "mdia", "hdlr")
	if !ok || hdlr.Len() < 12 {
		return nil, false
	}
	kind, ok := handlerKinds[string(hdlr.Bytes()[8:12])]
	if !ok {
		return nil, false
	}

	tkhd, ok := box.FindFirst(trak, "tkhd")
	if !ok {
		return nil, false
	}
	version, err := tkhd.Byte(0)
	if err != nil || version > 1 {
		return nil, false
	}
	id, err := tkhd.Uint32(tkhdTrackIDOffset[version])
	if err != nil {
		return nil, false
	}

	track := &Track{ID: id, Kind: kind}

	if mdhd, ok := box.FindFirst(trak, "mdia", "mdhd"); ok {
		if version, err := mdhd.Byte(0); err == nil && version <= 1 {
			if scale, err := mdhd.Uint32(mdhdTimescaleOffset[version]); err == nil {
				track.Timescale = scale
			}
		}
	}

	// The codec identifier is the four-character type of the first stsd
	// child; codec-specific box contents are not decoded here.
	if stsd, ok := box.FindFirst(trak, "mdia", "minf", "stbl", "stsd"); ok && stsd.Len() >= 16 {
		track.Codec = string(stsd.Bytes()[12:16])
	}

	return track, true
}
