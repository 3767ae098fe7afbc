// Package caption extracts CEA-608/708 closed-caption data carried in H.264
// SEI NAL units inside fragmented-MP4 media payloads, associates each caption
// with the sample timeline, and decodes the caption bytes to styled text.
package caption

import (
	"log/slog"

	"github.com/zsiec/bmff/box"
	"github.com/zsiec/bmff/fmp4"
)

const (
	nalTypeSEI      = 6
	seiPayloadT35   = 4    // user_data_registered_itu_t_t35
	rbspTrailerBits = 0x80 // stop marker for the SEI payload walk
)

// ITU-T T.35 header values identifying an ATSC A/53 caption payload.
const (
	t35CountryUSA   = 181
	t35ProviderATSC = 49
	t35UserIDGA94   = "GA94"
	t35TypeCaption  = 0x03
	t35HeaderSize   = 8
)

// Sample is one SEI NAL unit carrying validated caption data, timestamped
// from the sample timeline of its fragment.
type Sample struct {
	TrackID uint32
	NALType byte
	Raw     []byte // full NAL including the header byte, aliasing the fragment buffer
	RBSP    []byte // emulation-prevention-stripped copy of the NAL body
	CCData  []byte // A/53 caption bytes, T.35 header and trailing marker stripped
	PTS     uint64 // track timescale ticks
	DTS     uint64
}

// Extract scans frag's media payloads for caption-bearing SEI NAL units on
// the video track. The nth traf is paired with the nth mdat; each mdat is
// read as 4-byte-length-prefixed NAL units. NALs whose SEI payload fails
// T.35 validation are silently skipped; NALs that cannot be matched to any
// sample are dropped with a logged anomaly. If log is nil, slog.Default()
// is used.
func Extract(frag []byte, tracks *fmp4.Tracks, log *slog.Logger) []Sample {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "caption")

	video, ok := tracks.ByKind(fmp4.KindVideo)
	if !ok {
		return nil
	}

	root := box.NewView(frag)
	trafs := fmp4.Fragments(frag, tracks)
	mdats := box.FindAll(root, "mdat")

	var out []Sample
	for i, tf := range trafs {
		if i >= len(mdats) {
			break
		}
		if tf.TrackID != video.ID {
			continue
		}
		out = scanMdat(mdats[i].Bytes(), tf, log, out)
	}
	return out
}

// scanMdat walks one mdat payload as length-prefixed NALs, matching each
// caption SEI to the sample whose cumulative byte window contains it.
func scanMdat(data []byte, tf fmp4.TrackFragment, log *slog.Logger, out []Sample) []Sample {
	var (
		sampleIdx  int
		windowEnd  int // cumulative size of samples[0..sampleIdx]
		lastMatch  *fmp4.Sample
		haveWindow = len(tf.Samples) > 0
	)
	if haveWindow {
		windowEnd = int(tf.Samples[0].Size)
	}

	offset := 0
	for offset+4 <= len(data) {
		length, err := box.ReadUint32(data, offset)
		if err != nil || length == 0 || offset+4+int(length) > len(data) {
			break
		}
		nal := data[offset+4 : offset+4+int(length)]

		if nal[0]&0x1F == nalTypeSEI {
			// Advance the sample window to the one containing this NAL's
			// offset; offsets only move forward.
			for sampleIdx < len(tf.Samples) && offset >= windowEnd {
				sampleIdx++
				if sampleIdx < len(tf.Samples) {
					windowEnd += int(tf.Samples[sampleIdx].Size)
				}
			}
			if sampleIdx < len(tf.Samples) {
				lastMatch = &tf.Samples[sampleIdx]
			}

			if s, ok := parseSEI(nal, tf.TrackID); ok {
				if lastMatch == nil {
					log.Warn("caption SEI with no containing sample, dropping",
						"track", tf.TrackID, "offset", offset)
				} else {
					s.PTS = lastMatch.PTS
					s.DTS = lastMatch.DTS
					out = append(out, s)
				}
			}
		}

		offset += 4 + int(length)
	}

	return out
}

// parseSEI walks the SEI RBSP payload pairs looking for a valid T.35 caption
// payload. Only one caption payload per SEI message is expected; scanning
// stops at the first one or at the RBSP trailer.
func parseSEI(nal []byte, trackID uint32) (Sample, bool) {
	if len(nal) < 2 {
		return Sample{}, false
	}

	rbsp := stripEmulationPrevention(nal[1:])

	i := 0
	for i < len(rbsp) {
		if rbsp[i] == rbspTrailerBits {
			break
		}

		payloadType := 0
		for i < len(rbsp) && rbsp[i] == 0xFF {
			payloadType += 255
			i++
		}
		if i >= len(rbsp) {
			break
		}
		payloadType += int(rbsp[i])
		i++

		payloadSize := 0
		for i < len(rbsp) && rbsp[i] == 0xFF {
			payloadSize += 255
			i++
		}
		if i >= len(rbsp) {
			break
		}
		payloadSize += int(rbsp[i])
		i++

		if i+payloadSize > len(rbsp) {
			break
		}

		if payloadType == seiPayloadT35 {
			ccData, ok := validateT35(rbsp[i : i+payloadSize])
			if !ok {
				return Sample{}, false
			}
			return Sample{
				TrackID: trackID,
				NALType: nal[0] & 0x1F,
				Raw:     nal,
				RBSP:    rbsp,
				CCData:  ccData,
			}, true
		}
		i += payloadSize
	}

	return Sample{}, false
}

// validateT35 checks the 8-byte ATSC A/53 header and strips it along with
// the trailing marker byte.
func validateT35(payload []byte) ([]byte, bool) {
	if len(payload) <= t35HeaderSize+1 {
		return nil, false
	}
	provider, err := box.ReadUint16(payload, 1)
	if err != nil {
		return nil, false
	}
	if payload[0] != t35CountryUSA ||
		provider != t35ProviderATSC ||
		string(payload[3:7]) != t35UserIDGA94 ||
		payload[7] != t35TypeCaption {
		return nil, false
	}
	return payload[t35HeaderSize : len(payload)-1], true
}

// stripEmulationPrevention removes H.264 emulation-prevention bytes: every
// 0x00 0x00 0x03 triple collapses to 0x00 0x00.
func stripEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 {
			out = append(out, 0, 0)
			i += 2
		} else {
			out = append(out, data[i])
		}
	}
	return out
}
