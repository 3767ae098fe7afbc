package fmp4

import "testing"

func TestParseInitSegment_TwoTracksWithTrexDefault(t *testing.T) {
	t.Parallel()
	buf := bx("moov",
		trakBox(1, 90000, "vide", "avc1"),
		trakBox(2, 48000, "soun", "mp4a"),
		bx("mvex", trexBox(1, 1024, 0x1010000)),
	)

	tracks := ParseInitSegment(buf)
	if tracks.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tracks.Len())
	}

	video, ok := tracks.ByID(1)
	if !ok {
		t.Fatal("track 1 missing")
	}
	if video.Timescale != 90000 {
		t.Errorf("track 1 timescale = %d, want 90000", video.Timescale)
	}
	if video.Kind != KindVideo {
		t.Errorf("track 1 kind = %q, want video", video.Kind)
	}
	if video.Codec != "avc1" {
		t.Errorf("track 1 codec = %q, want avc1", video.Codec)
	}
	if video.Defaults == nil || video.Defaults.Duration != 1024 {
		t.Errorf("track 1 defaults = %+v, want duration 1024", video.Defaults)
	}
	if video.Defaults.Flags != 0x1010000 {
		t.Errorf("track 1 default flags = %#x, want 0x1010000", video.Defaults.Flags)
	}

	audio, ok := tracks.ByID(2)
	if !ok {
		t.Fatal("track 2 missing")
	}
	if audio.Timescale != 48000 {
		t.Errorf("track 2 timescale = %d, want 48000", audio.Timescale)
	}
	if audio.Defaults != nil {
		t.Errorf("track 2 defaults = %+v, want nil", audio.Defaults)
	}

	if byKind, ok := tracks.ByKind(KindAudio); !ok || byKind.ID != 2 {
		t.Errorf("ByKind(audio) = %+v, %v; want track 2", byKind, ok)
	}
	if byKind, ok := tracks.ByKind(KindVideo); !ok || byKind.ID != 1 {
		t.Errorf("ByKind(video) = %+v, %v; want track 1", byKind, ok)
	}
}

func TestParseInitSegment_Version1Headers(t *testing.T) {
	t.Parallel()
	// Version 1 widens creation/modification times to 64 bits, moving the
	// track id and timescale to payload offset 20.
	tkhd := fullBox("tkhd", 1, 0, u64(0), u64(0), u32(7), u32(0))
	mdhd := fullBox("mdhd", 1, 0, u64(0), u64(0), u32(44100), u32(0))
	hdlr := fullBox("hdlr", 0, 0, u32(0), []byte("soun"), u32(0), u32(0), u32(0))
	buf := bx("moov", bx("trak", tkhd, bx("mdia", mdhd, hdlr)))

	tracks := ParseInitSegment(buf)
	track, ok := tracks.ByID(7)
	if !ok {
		t.Fatal("track 7 missing")
	}
	if track.Timescale != 44100 {
		t.Errorf("timescale = %d, want 44100", track.Timescale)
	}
	if track.Codec != "" {
		t.Errorf("codec = %q, want empty without stsd", track.Codec)
	}
}

func TestParseInitSegment_SkipsUnknownHandlers(t *testing.T) {
	t.Parallel()
	buf := bx("moov",
		trakBox(1, 1000, "text", "wvtt"),
		trakBox(2, 90000, "vide", "hvc1"),
	)

	tracks := ParseInitSegment(buf)
	if tracks.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (text handler skipped)", tracks.Len())
	}
	if _, ok := tracks.ByID(1); ok {
		t.Error("text track unexpectedly resolved")
	}
}

func TestParseInitSegment_TrexForUnknownTrackDropped(t *testing.T) {
	t.Parallel()
	buf := bx("moov",
		trakBox(1, 90000, "vide", "avc1"),
		bx("mvex", trexBox(9, 512, 0)),
	)

	tracks := ParseInitSegment(buf)
	track, _ := tracks.ByID(1)
	if track.Defaults != nil {
		t.Errorf("defaults = %+v, want nil for unmatched trex", track.Defaults)
	}
}

func TestParseInitSegment_NoMoov(t *testing.T) {
	t.Parallel()
	tracks := ParseInitSegment(bx("ftyp"))
	if tracks.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tracks.Len())
	}
}

func TestTracksAll_OrderedByID(t *testing.T) {
	t.Parallel()
	buf := bx("moov",
		trakBox(5, 48000, "soun", "mp4a"),
		trakBox(2, 90000, "vide", "avc1"),
	)

	all := ParseInitSegment(buf).All()
	if len(all) != 2 || all[0].ID != 2 || all[1].ID != 5 {
		t.Errorf("All() ids out of order: %+v", all)
	}
}
