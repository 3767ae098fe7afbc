package fmp4

import (
	"math"

	"github.com/zsiec/bmff/box"
)

// tfhd optional-field presence bits (ISO/IEC 14496-12 §8.8.7.1).
const (
	tfhdBaseDataOffsetPresent  = 0x000001
	tfhdSampleDescIndexPresent = 0x000002
	tfhdDefaultDurationPresent = 0x000008
	tfhdDefaultSizePresent     = 0x000010
	tfhdDefaultFlagsPresent    = 0x000020
)

// tfhdInfo is the decoded optional-field set of a track fragment header.
// Fields are meaningful only when the corresponding presence bit is set in
// Flags.
type tfhdInfo struct {
	TrackID         uint32
	Flags           uint32
	BaseDataOffset  uint64
	SampleDescIndex uint32
	DefaultDuration uint32
	DefaultSize     uint32
	DefaultFlags    uint32
}

// tfhd optional fields in wire order. Keeping the order and widths in one
// table centralizes the byte-offset arithmetic: the default-duration field
// lands at payload offset 12 instead of 8 whenever the description-index bit
// is also set, without any call site reasoning about offsets.
var tfhdFields = []struct {
	bit   uint32
	width int
	set   func(*tfhdInfo, uint64)
}{
	{tfhdBaseDataOffsetPresent, 8, func(i *tfhdInfo, v uint64) { i.BaseDataOffset = v }},
	{tfhdSampleDescIndexPresent, 4, func(i *tfhdInfo, v uint64) { i.SampleDescIndex = uint32(v) }},
	{tfhdDefaultDurationPresent, 4, func(i *tfhdInfo, v uint64) { i.DefaultDuration = uint32(v) }},
	{tfhdDefaultSizePresent, 4, func(i *tfhdInfo, v uint64) { i.DefaultSize = uint32(v) }},
	{tfhdDefaultFlagsPresent, 4, func(i *tfhdInfo, v uint64) { i.DefaultFlags = uint32(v) }},
}

func parseTfhd(tfhd box.View) (tfhdInfo, error) {
	var info tfhdInfo

	verflags, err := tfhd.Uint32(0)
	if err != nil {
		return info, err
	}
	info.Flags = verflags & 0xFFFFFF

	info.TrackID, err = tfhd.Uint32(4)
	if err != nil {
		return info, err
	}

	off := 8
	for _, f := range tfhdFields {
		if info.Flags&f.bit == 0 {
			continue
		}
		var val uint64
		if f.width == 8 {
			val, err = tfhd.Uint64(off)
		} else {
			var v32 uint32
			v32, err = tfhd.Uint32(off)
			val = uint64(v32)
		}
		if err != nil {
			return info, err
		}
		f.set(&info, val)
		off += f.width
	}

	return info, nil
}

// tfdt base-decode-time field width is version-gated: version 0 carries a
// 32-bit time at payload offset 4, version 1 a 64-bit one.
func baseDecodeTime(traf box.View) (uint64, bool) {
	tfdt, ok := box.FindFirst(traf, "tfdt")
	if !ok {
		return 0, false
	}
	version, err := tfdt.Byte(0)
	if err != nil {
		return 0, false
	}
	if version == 0 {
		v, err := tfdt.Uint32(4)
		return uint64(v), err == nil
	}
	v, err := tfdt.Uint64(4)
	return v, err == nil
}

// StartDTS returns the earliest fragment start time in seconds across every
// moof/traf in frag, converting each traf's tfdt base decode time by its
// track's timescale (90 kHz when the track has none). Returns 0 when no traf
// resolves.
func StartDTS(frag []byte, tracks *Tracks) float64 {
	start := math.Inf(1)

	for _, traf := range box.FindAll(box.NewView(frag), "moof", "traf") {
		tfhd, ok := box.FindFirst(traf, "tfhd")
		if !ok {
			continue
		}
		id, err := tfhd.Uint32(4)
		if err != nil {
			continue
		}
		track, ok := tracks.ByID(id)
		if !ok {
			continue
		}
		base, ok := baseDecodeTime(traf)
		if !ok {
			continue
		}
		if t := float64(base) / track.scale(); t < start {
			start = t
		}
	}

	if math.IsInf(start, 1) {
		return 0
	}
	return start
}

// Duration returns frag's duration in seconds. Per traf, the sample duration
// comes from the tfhd/trex default when one is signaled, otherwise from
// summing every sample's explicit trun duration. Durations accumulate per
// stream kind; video wins over audio. When neither accumulates anything, the
// buffer's segment index subsegment durations are the fallback.
func Duration(frag []byte, tracks *Tracks) float64 {
	var videoDuration, audioDuration float64

	for _, traf := range box.FindAll(box.NewView(frag), "moof", "traf") {
		tfhd, ok := box.FindFirst(traf, "tfhd")
		if !ok {
			continue
		}
		info, err := parseTfhd(tfhd)
		if err != nil {
			continue
		}
		track, ok := tracks.ByID(info.TrackID)
		if !ok {
			continue
		}

		// Duration resolution order: tfhd default when the box carries one,
		// else the trex default, else per-sample trun durations.
		var sampleDuration uint32
		if track.Defaults != nil {
			sampleDuration = track.Defaults.Duration
		}
		if info.Flags&tfhdDefaultDurationPresent != 0 {
			sampleDuration = info.DefaultDuration
		}

		var rawDuration uint64
		for _, trun := range box.FindAll(traf, "trun") {
			if sampleDuration != 0 {
				count, err := trun.Uint32(4)
				if err != nil {
					continue
				}
				rawDuration = uint64(sampleDuration) * uint64(count)
			} else {
				rawDuration = trunRawDuration(trun)
			}

			seconds := float64(rawDuration) / track.scale()
			if track.Kind == KindVideo {
				videoDuration += seconds
			} else {
				audioDuration += seconds
			}
		}
	}

	if videoDuration == 0 && audioDuration == 0 {
		// No trun-derived duration anywhere; fall back to the segment index.
		var total float64
		if idx, err := ParseSegmentIndex(frag); err == nil && idx != nil {
			for _, ref := range idx.References {
				total += ref.Seconds
			}
		}
		return total
	}

	if videoDuration != 0 {
		return videoDuration
	}
	return audioDuration
}

// OffsetStartDTS subtracts timeOffset seconds from every tfdt base decode
// time in frag, patching the caller-owned buffer in place. The version 0
// path writes the 32-bit result without clamping; version 1 clamps at zero
// before splitting the value back into high and low words.
func OffsetStartDTS(frag []byte, tracks *Tracks, timeOffset float64) {
	for _, traf := range box.FindAll(box.NewView(frag), "moof", "traf") {
		tfhd, ok := box.FindFirst(traf, "tfhd")
		if !ok {
			continue
		}
		id, err := tfhd.Uint32(4)
		if err != nil {
			continue
		}
		track, ok := tracks.ByID(id)
		if !ok {
			continue
		}
		scale := track.scale()

		for _, tfdt := range box.FindAll(traf, "tfdt") {
			version, err := tfdt.Byte(0)
			if err != nil {
				continue
			}
			if version == 0 {
				base, err := tfdt.Uint32(4)
				if err != nil {
					continue
				}
				patched := float64(base) - timeOffset*scale
				tfdt.PutUint32(4, uint32(int64(patched)))
			} else {
				base, err := tfdt.Uint64(4)
				if err != nil {
					continue
				}
				patched := float64(base) - timeOffset*scale
				if patched < 0 {
					patched = 0
				}
				val := uint64(patched)
				tfdt.PutUint32(4, uint32(val>>32))
				tfdt.PutUint32(8, uint32(val))
			}
		}
	}
}

// ValidRange is the result of splitting an incrementally received buffer
// into the complete leading fragments and the trailing bytes that must wait
// for more data.
type ValidRange struct {
	Valid     []byte // complete moof+mdat pairs safe to consume, nil when none
	Remainder []byte // tail starting at the last moof header, to prefix onto the next chunk
}

// SplitValidRange locates every moof in buf. With fewer than two, the whole
// buffer is an incomplete remainder; otherwise everything before the last
// moof's header is valid and the rest is carried forward. Both slices alias
// buf.
func SplitValidRange(buf []byte) ValidRange {
	moofs := box.FindAll(box.NewView(buf), "moof")
	if len(moofs) < 2 {
		return ValidRange{Remainder: buf}
	}
	last := moofs[len(moofs)-1].Start() - box.HeaderSize
	return ValidRange{Valid: buf[:last], Remainder: buf[last:]}
}

// TrackFragment couples one traf's decoded timing state with its expanded
// sample timeline, in document order. Trafs referencing a track id missing
// from the table keep their position (so positional mdat pairing holds) but
// carry no samples.
type TrackFragment struct {
	TrackID        uint32
	BaseDecodeTime uint64
	Track          *Track // nil when the track id is not in the table
	Samples        []Sample
}

// Fragments decodes every moof/traf in frag into a TrackFragment.
func Fragments(frag []byte, tracks *Tracks) []TrackFragment {
	var out []TrackFragment

	for _, traf := range box.FindAll(box.NewView(frag), "moof", "traf") {
		var tf TrackFragment

		if tfhd, ok := box.FindFirst(traf, "tfhd"); ok {
			if info, err := parseTfhd(tfhd); err == nil {
				tf.TrackID = info.TrackID
			}
		}
		tf.BaseDecodeTime, _ = baseDecodeTime(traf)

		if track, ok := tracks.ByID(tf.TrackID); ok {
			tf.Track = track
			dts := tf.BaseDecodeTime
			for _, trun := range box.FindAll(traf, "trun") {
				tf.Samples, dts = appendTrunSamples(trun, track, dts, tf.Samples)
			}
		}

		out = append(out, tf)
	}

	return out
}
