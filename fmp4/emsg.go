package fmp4

import "github.com/zsiec/bmff/box"

// DurationUnknown is the emsg event_duration sentinel for an unknown or
// open-ended duration.
const DurationUnknown = 0xFFFFFFFF

// id3Schemes is the allow-list of emsg scheme URIs recognized as carrying
// ID3 payloads. Loaded once, read-only.
var id3Schemes = map[string]bool{
	"https://aomedia.org/emsg/ID3":                   true,
	"https://developer.apple.com/streaming/emsg-id3": true,
}

// EmsgEvent is one DASH event-message box carrying an ID3 payload.
type EmsgEvent struct {
	Timescale        uint32
	PresentationTime uint64
	Duration         uint32 // ticks; meaningless when DurationKnown is false
	DurationKnown    bool
	ID               uint32
	SchemeURI        string
	Value            string
	Payload          []byte // opaque ID3 bytes, aliasing buf
}

// ExtractID3Events decodes every version-1 emsg box in buf whose scheme URI
// is on the ID3 allow-list. Version-0 boxes, unrecognized schemes, and boxes
// that fail to decode are skipped individually; one malformed event never
// drops the batch.
func ExtractID3Events(buf []byte) []EmsgEvent {
	var events []EmsgEvent

	for _, emsg := range box.FindAll(box.NewView(buf), "emsg") {
		ev, ok := parseEmsg(emsg)
		if !ok || !id3Schemes[ev.SchemeURI] {
			continue
		}
		events = append(events, ev)
	}

	return events
}

func parseEmsg(emsg box.View) (EmsgEvent, bool) {
	var ev EmsgEvent

	version, err := emsg.Byte(0)
	if err != nil || version != 1 {
		return ev, false
	}

	// version(1) + flags(3)
	off := 4

	if ev.Timescale, err = emsg.Uint32(off); err != nil {
		return ev, false
	}
	off += 4

	if ev.PresentationTime, err = emsg.Uint64(off); err != nil {
		return ev, false
	}
	off += 8

	if ev.Duration, err = emsg.Uint32(off); err != nil {
		return ev, false
	}
	ev.DurationKnown = ev.Duration != DurationUnknown
	off += 4

	if ev.ID, err = emsg.Uint32(off); err != nil {
		return ev, false
	}
	off += 4

	data := emsg.Bytes()
	ev.SchemeURI, off, err = readCString(data, off)
	if err != nil {
		return ev, false
	}
	ev.Value, off, err = readCString(data, off)
	if err != nil {
		return ev, false
	}

	ev.Payload = data[off:]
	return ev, true
}

// readCString reads a null-terminated string starting at off and returns the
// offset just past the terminator.
func readCString(b []byte, off int) (string, int, error) {
	for i := off; i < len(b); i++ {
		if b[i] == 0 {
			return string(b[off:i]), i + 1, nil
		}
	}
	return "", off, box.ErrTruncated
}
