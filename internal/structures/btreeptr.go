package structures

import (
	"github.com/scigolib/bcachefs/internal/core"
	"github.com/scigolib/bcachefs/internal/utils"
)

// btreePtrV2Size is the fixed on-disk size of a bch_btree_ptr_v2 value:
// a device byte offset in sectors, a sectors-written count, and a
// flags word carrying the unused bit.
const btreePtrV2Size = 16

// BtreePtrV2 identifies a child node's on-disk location and length.
// Pointers with Unused set are ignored at every level.
type BtreePtrV2 struct {
	Unused         bool
	DeviceOffset   uint64 // bytes
	SectorsWritten uint32 // sectors
}

// ByteOffset returns the pointer's target as an absolute byte offset.
func (p BtreePtrV2) ByteOffset() uint64 {
	return p.DeviceOffset
}

func decodeBtreePtrV2(raw []byte) BtreePtrV2 {
	offsetSectors := utils.ReadUintLE(raw, 0, 8)
	sectorsWritten := uint32(utils.ReadUintLE(raw, 8, 2))
	flags := utils.ReadUintLE(raw, 10, 2)
	return BtreePtrV2{
		Unused:         flags&1 != 0,
		DeviceOffset:   offsetSectors * core.SectorSize,
		SectorsWritten: sectorsWritten,
	}
}

// RootPointers enumerates the B-tree pointer values carried by a
// journal root entry, in declaration order, skipping any whose Unused
// flag is set.
func RootPointers(entry *core.JournalEntry) []BtreePtrV2 {
	body := entry.Payload
	if len(body) <= canonicalKeyU64s*8 {
		return nil
	}

	var out []BtreePtrV2
	for off := canonicalKeyU64s * 8; off+btreePtrV2Size <= len(body); off += btreePtrV2Size {
		ptr := decodeBtreePtrV2(body[off : off+btreePtrV2Size])
		if !ptr.Unused {
			out = append(out, ptr)
		}
	}
	return out
}
