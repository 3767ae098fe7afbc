package fmp4

import "github.com/zsiec/bmff/box"

// trun optional-field presence bits (ISO/IEC 14496-12 §8.8.8.1).
const (
	trunDataOffsetPresent       = 0x000001
	trunFirstSampleFlagsPresent = 0x000004
	trunSampleDurationPresent   = 0x000100
	trunSampleSizePresent       = 0x000200
	trunSampleFlagsPresent      = 0x000400
	trunSampleCTSOffsetPresent  = 0x000800
)

// trunSampleEntrySize is the width of every per-sample trun field.
const trunSampleEntrySize = 4

// maxZeroWidthTrunSamples bounds the expansion of a trun whose sample
// entries occupy no bytes (no per-sample presence bits set), so a hostile
// count field cannot balloon the timeline. Entry-bearing truns are bounded
// by the box length instead.
const maxZeroWidthTrunSamples = 1 << 20

// trunSampleBits lists the per-sample fields in wire order. Each is gated by
// its own presence bit and 4 bytes wide; the cursor advance per sample is
// exactly 4 times the number of set bits.
var trunSampleBits = [4]uint32{
	trunSampleDurationPresent,
	trunSampleSizePresent,
	trunSampleFlagsPresent,
	trunSampleCTSOffsetPresent,
}

// SampleFlags is the decomposed ISO-BMFF sample-flags bitfield.
type SampleFlags struct {
	IsLeading           uint8
	DependsOn           uint8
	IsDependedOn        uint8
	HasRedundancy       uint8
	PaddingValue        uint8
	IsNonSync           bool
	DegradationPriority uint16
}

func parseSampleFlags(raw uint32) SampleFlags {
	return SampleFlags{
		IsLeading:           uint8(raw >> 26 & 0x3),
		DependsOn:           uint8(raw >> 24 & 0x3),
		IsDependedOn:        uint8(raw >> 22 & 0x3),
		HasRedundancy:       uint8(raw >> 20 & 0x3),
		PaddingValue:        uint8(raw >> 17 & 0x7),
		IsNonSync:           raw>>16&0x1 != 0,
		DegradationPriority: uint16(raw & 0xFFFF),
	}
}

// Sample is one entry of an expanded track-run timeline. DTS and PTS are
// absolute, in the owning track's timescale ticks, seeded from the
// fragment's base decode time.
type Sample struct {
	TrackID           uint32
	Duration          uint32
	Size              uint32
	CompositionOffset uint32 // read unsigned regardless of trun version
	DTS               uint64
	PTS               uint64 // DTS + CompositionOffset
	Flags             SampleFlags
}

// appendTrunSamples expands one trun into samples appended to out, starting
// the running decode time at dts. Omitted durations and flags fall back to
// the track's trex defaults; omitted sizes and composition offsets default
// to zero. A truncated trun yields the samples decoded so far.
func appendTrunSamples(trun box.View, track *Track, dts uint64, out []Sample) ([]Sample, uint64) {
	verflags, err := trun.Uint32(0)
	if err != nil {
		return out, dts
	}
	flags := verflags & 0xFFFFFF

	count, err := trun.Uint32(4)
	if err != nil {
		return out, dts
	}

	off := 8
	if flags&trunDataOffsetPresent != 0 {
		off += 4
	}

	// The first sample may carry a one-off flags override, letting encoders
	// mark only the fragment's first sample as a sync sample without
	// repeating flags for every sample.
	var firstFlags uint32
	hasFirstFlags := flags&trunFirstSampleFlagsPresent != 0
	if hasFirstFlags {
		firstFlags, err = trun.Uint32(off)
		if err != nil {
			return out, dts
		}
		off += 4
	}

	var entryWidth int
	for _, bit := range trunSampleBits {
		if flags&bit != 0 {
			entryWidth += trunSampleEntrySize
		}
	}
	count = clampSampleCount(count, trun.Len()-off, entryWidth)

	var defaultDuration, defaultFlags uint32
	if track.Defaults != nil {
		defaultDuration = track.Defaults.Duration
		defaultFlags = track.Defaults.Flags
	}

	for i := uint32(0); i < count; i++ {
		s := Sample{
			TrackID:  track.ID,
			Duration: defaultDuration,
			Flags:    parseSampleFlags(defaultFlags),
		}

		for _, bit := range trunSampleBits {
			if flags&bit == 0 {
				continue
			}
			val, err := trun.Uint32(off)
			if err != nil {
				return out, dts
			}
			off += trunSampleEntrySize

			switch bit {
			case trunSampleDurationPresent:
				s.Duration = val
			case trunSampleSizePresent:
				s.Size = val
			case trunSampleFlagsPresent:
				s.Flags = parseSampleFlags(val)
			case trunSampleCTSOffsetPresent:
				s.CompositionOffset = val
			}
		}

		if i == 0 && hasFirstFlags {
			s.Flags = parseSampleFlags(firstFlags)
		}

		s.DTS = dts
		s.PTS = dts + uint64(s.CompositionOffset)
		dts += uint64(s.Duration)

		out = append(out, s)
	}

	return out, dts
}

// trunRawDuration sums the explicit per-sample duration fields of one trun,
// honoring the same presence bits as the full decode. Samples without an
// explicit duration contribute nothing here; callers handle defaults.
func trunRawDuration(trun box.View) uint64 {
	verflags, err := trun.Uint32(0)
	if err != nil {
		return 0
	}
	flags := verflags & 0xFFFFFF

	count, err := trun.Uint32(4)
	if err != nil {
		return 0
	}

	off := 8
	if flags&trunDataOffsetPresent != 0 {
		off += 4
	}
	if flags&trunFirstSampleFlagsPresent != 0 {
		off += 4
	}

	if flags&trunSampleDurationPresent == 0 {
		return 0
	}

	var entryWidth int
	for _, bit := range trunSampleBits {
		if flags&bit != 0 {
			entryWidth += trunSampleEntrySize
		}
	}
	count = clampSampleCount(count, trun.Len()-off, entryWidth)

	var total uint64
	for i := uint32(0); i < count; i++ {
		d, err := trun.Uint32(off)
		if err != nil {
			return total
		}
		total += uint64(d)
		off += entryWidth
	}

	return total
}

func clampSampleCount(count uint32, avail, entryWidth int) uint32 {
	if entryWidth == 0 {
		if count > maxZeroWidthTrunSamples {
			return maxZeroWidthTrunSamples
		}
		return count
	}
	if avail < 0 {
		return 0
	}
	if fit := uint32(avail / entryWidth); count > fit {
		return fit
	}
	return count
}
