// Package box implements zero-copy navigation of ISO-BMFF (fragmented MP4 /
// CMAF) box trees along with the bounds-checked big-endian primitives every
// other package uses to touch bytes. A View aliases a caller-owned buffer;
// the box tree is walked in place, never extracted.
package box

// HeaderSize is the fixed size of a box header: a 32-bit size field followed
// by a four-character type code.
const HeaderSize = 8

// maxDepth bounds navigator recursion. The deepest path this module resolves
// is 4 levels (moov/trak/mdia/hdlr); malformed size fields must not be able
// to recurse without bound.
const maxDepth = 8

// View is a non-owning window into a caller-owned buffer, bounded by
// [Start, End). Multiple Views may alias the same backing bytes; none owns
// them. The caller must keep the backing buffer alive, and must not mutate
// it while a derived View is in use except through PutUint32 on the View
// itself.
type View struct {
	buf   []byte
	start int
	end   int
}

// NewView wraps an entire buffer in a View.
func NewView(buf []byte) View {
	return View{buf: buf, end: len(buf)}
}

// Start returns the view's first byte offset within the backing buffer.
func (v View) Start() int { return v.start }

// End returns the offset one past the view's last byte within the backing
// buffer.
func (v View) End() int { return v.end }

// Len returns the number of bytes spanned by the view.
func (v View) Len() int { return v.end - v.start }

// Bytes returns the viewed bytes. The returned slice aliases the backing
// buffer.
func (v View) Bytes() []byte { return v.buf[v.start:v.end] }

// FindAll returns a View over the payload of every box at the given
// four-character type path under v, in document order, depth-first. A box
// whose size field is 0 or 1 is treated as extending to the end of its
// container; the 64-bit largesize extension signaled by a size of 1 is not
// decoded. A missing path element yields an empty result, never an error.
// An empty path returns nil.
func FindAll(v View, path ...string) []View {
	if len(path) == 0 {
		return nil
	}
	return findAll(v, path, 0, nil)
}

// FindFirst returns the first box at the given path, in document order.
func FindFirst(v View, path ...string) (View, bool) {
	found := FindAll(v, path...)
	if len(found) == 0 {
		return View{}, false
	}
	return found[0], true
}

func findAll(v View, path []string, depth int, out []View) []View {
	if depth >= maxDepth {
		return out
	}

	for off := v.start; off+HeaderSize <= v.end; {
		size := int(uint32(v.buf[off])<<24 | uint32(v.buf[off+1])<<16 |
			uint32(v.buf[off+2])<<8 | uint32(v.buf[off+3]))

		// Size 0 or 1 means the box runs to the end of its container.
		// A child box never extends past its parent's end.
		boxEnd := v.end
		if size > 1 && off+size <= v.end {
			boxEnd = off + size
		}
		// A size of 2..7 is malformed; treat the box as header-only rather
		// than producing an inverted payload window.
		if boxEnd < off+HeaderSize {
			boxEnd = off + HeaderSize
		}

		if string(v.buf[off+4:off+8]) == path[0] {
			child := View{buf: v.buf, start: off + HeaderSize, end: boxEnd}
			if len(path) == 1 {
				out = append(out, child)
			} else {
				out = findAll(child, path[1:], depth+1, out)
			}
		}

		off = boxEnd
	}

	return out
}
