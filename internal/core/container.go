// Package core provides low-level parsing of the on-disk superblock,
// journal, and the packed-container primitive shared by every
// length-prefixed region of the format.
package core

import "github.com/scigolib/bcachefs/internal/utils"

// Sector and word are the two size units the on-disk format is built from.
const (
	SectorSize = 512
	WordSize   = 8
)

// U64sSpec describes how a container element's own length prefix is
// encoded: Size is the byte width of the length field (1, 2, 4, or 8),
// and Start is a fixed addend applied to the decoded length before it is
// scaled by WordSize. Superblock fields and journal entries use a 4-byte
// prefix; bkeys use a 1-byte prefix. Both use Start == 0.
type U64sSpec struct {
	Size  uint8
	Start uint64
}

// NextSibling walks a packed, self-describing container: a region that
// begins with an element at firstOffset and continues with each element
// carrying its own length prefix. Passing current == -1 requests the
// first element. It returns the byte offset of the next element within
// buf, or ok == false once that offset would reach or pass end.
//
// The primitive itself never fails on a zero length prefix; a caller
// that must distinguish a genuinely empty element from end-of-region
// does so by inspecting the decoded element (see the bset walker).
func NextSibling(buf []byte, firstOffset, end, current int, spec U64sSpec) (int, bool) {
	var next int
	if current < 0 {
		next = firstOffset
	} else {
		length := utils.ReadUintLE(buf, current, int(spec.Size))
		next = current + int(length+spec.Start)*WordSize
	}
	if next >= end {
		return 0, false
	}
	return next, true
}
