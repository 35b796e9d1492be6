package structures

import (
	"github.com/scigolib/bcachefs/internal/core"
	"github.com/scigolib/bcachefs/internal/utils"
)

// nodeHeaderSize is the size of a btree_node header: checksum, magic,
// flags and the embedded packing descriptor (bkey_format). The first
// bset sits immediately after it.
const nodeHeaderSize = 128

// formatOffsetInNode is where the packing descriptor lives within the
// node header.
const formatOffsetInNode = 64

// bsetHeaderSize is the size of a bset header: a u32 payload length (in
// W, counting the keys that follow the header, not the header itself)
// followed by reserved fields (sequence number, version).
const bsetHeaderSize = 16

// checksumRecordSize is the size of the checksum record that precedes
// every bset after the first.
const checksumRecordSize = 16

// Bset is an on-disk leaf/internal block: a sequence of keys preceded
// by a self-length header.
type Bset struct {
	U64sLen uint32
	start   int // byte offset into the owning node's buffer
}

// decodeNodeFormat reads the packing descriptor embedded in a node's
// header.
func decodeNodeFormat(buf []byte) BkeyFormat {
	var f BkeyFormat
	f.KeyU64s = buf[formatOffsetInNode]
	for i := 0; i < 6; i++ {
		f.BitsPerField[i] = buf[formatOffsetInNode+8+i]
	}
	for i := 0; i < 6; i++ {
		f.FieldOffset[i] = utils.ReadUintLE(buf, formatOffsetInNode+16+i*8, 8)
	}
	return f
}

// NextBset locates the next bset within node, starting from prev (nil
// for the first). Bsets after the first start at the next
// block-aligned boundary relative to the node base, following a
// checksum record; bsets whose length is zero are skipped without
// being returned. It reports false once the next candidate address
// would reach or pass the node's valid length.
func NextBset(node *BtreeNode, blockSize uint64, prev *Bset) (*Bset, bool) {
	nodeEnd := int(node.sectorsWritten) * core.SectorSize

	cur := prev
	for {
		var candidate int
		if cur == nil {
			candidate = nodeHeaderSize
		} else {
			rel := cur.start + bsetHeaderSize + int(cur.U64sLen)*core.WordSize
			rem := rel % int(blockSize)
			rel += int(blockSize) - rem
			rel += checksumRecordSize
			candidate = rel
		}

		if candidate >= nodeEnd || candidate+4 > len(node.buf) {
			return nil, false
		}

		u64sLen := uint32(utils.ReadUintLE(node.buf, candidate, 4))
		bset := &Bset{U64sLen: u64sLen, start: candidate}
		if u64sLen == 0 {
			cur = bset
			continue
		}
		return bset, true
	}
}
