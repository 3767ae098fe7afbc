package box

import (
	"errors"
	"testing"
)

func TestReadWriteUint32RoundTrip(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 16)
	for _, tc := range []struct {
		off int
		val uint32
	}{
		{0, 0},
		{0, 1},
		{4, 0xDEADBEEF},
		{12, 0xFFFFFFFF},
		{7, 0x80000001},
	} {
		if err := WriteUint32(buf, tc.off, tc.val); err != nil {
			t.Fatalf("WriteUint32(%d, %#x): %v", tc.off, tc.val, err)
		}
		got, err := ReadUint32(buf, tc.off)
		if err != nil {
			t.Fatalf("ReadUint32(%d): %v", tc.off, err)
		}
		if got != tc.val {
			t.Errorf("round trip at %d = %#x, want %#x", tc.off, got, tc.val)
		}
	}
}

func TestReadUint16(t *testing.T) {
	t.Parallel()
	buf := []byte{0x12, 0x34, 0xFF, 0xFE}
	got, err := ReadUint16(buf, 0)
	if err != nil || got != 0x1234 {
		t.Errorf("ReadUint16(0) = %#x, %v, want 0x1234", got, err)
	}
	got, err = ReadUint16(buf, 2)
	if err != nil || got != 0xFFFE {
		t.Errorf("ReadUint16(2) = %#x, %v, want 0xFFFE", got, err)
	}
}

func TestReadUint64(t *testing.T) {
	t.Parallel()
	buf := []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02}
	got, err := ReadUint64(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(1)<<32 | 2; got != want {
		t.Errorf("ReadUint64 = %d, want %d", got, want)
	}
}

func TestTruncatedReads(t *testing.T) {
	t.Parallel()
	buf := []byte{1, 2, 3}

	if _, err := ReadUint16(buf, 2); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadUint16 past end: err = %v, want ErrTruncated", err)
	}
	if _, err := ReadUint32(buf, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadUint32 past end: err = %v, want ErrTruncated", err)
	}
	if _, err := ReadUint64(buf, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadUint64 past end: err = %v, want ErrTruncated", err)
	}
	if _, err := ReadUint32(buf, -1); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadUint32 negative offset: err = %v, want ErrTruncated", err)
	}
	if err := WriteUint32(buf, 0, 7); !errors.Is(err, ErrTruncated) {
		t.Errorf("WriteUint32 past end: err = %v, want ErrTruncated", err)
	}
}

func TestViewReadsAreRelativeAndBounded(t *testing.T) {
	t.Parallel()
	// View over bytes 4..12 of a 16-byte buffer.
	buf := make([]byte, 16)
	WriteUint32(buf, 4, 0xCAFEBABE)
	WriteUint32(buf, 8, 0x00000042)
	v := View{buf: buf, start: 4, end: 12}

	got, err := v.Uint32(0)
	if err != nil || got != 0xCAFEBABE {
		t.Errorf("Uint32(0) = %#x, %v, want 0xCAFEBABE", got, err)
	}
	got64, err := v.Uint64(0)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(0xCAFEBABE)<<32 | 0x42; got64 != want {
		t.Errorf("Uint64(0) = %#x, want %#x", got64, want)
	}

	// Bytes 12..16 exist in the backing buffer but are outside the view.
	if _, err := v.Uint32(8); !errors.Is(err, ErrTruncated) {
		t.Errorf("Uint32 past view end: err = %v, want ErrTruncated", err)
	}
	if err := v.PutUint32(8, 1); !errors.Is(err, ErrTruncated) {
		t.Errorf("PutUint32 past view end: err = %v, want ErrTruncated", err)
	}

	// In-place patch through the view lands in the backing buffer.
	if err := v.PutUint32(4, 0x11223344); err != nil {
		t.Fatal(err)
	}
	patched, _ := ReadUint32(buf, 8)
	if patched != 0x11223344 {
		t.Errorf("backing buffer after PutUint32 = %#x, want 0x11223344", patched)
	}
}

func TestViewByte(t *testing.T) {
	t.Parallel()
	v := View{buf: []byte{9, 8, 7}, start: 1, end: 3}
	got, err := v.Byte(0)
	if err != nil || got != 8 {
		t.Errorf("Byte(0) = %d, %v, want 8", got, err)
	}
	if _, err := v.Byte(2); !errors.Is(err, ErrTruncated) {
		t.Errorf("Byte past view end: err = %v, want ErrTruncated", err)
	}
}
