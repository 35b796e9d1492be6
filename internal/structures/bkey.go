// Package structures decodes the B-tree layer that sits on top of the
// superblock and journal: packed keys, bsets, node pointers, the
// recursive iterator, and the typed records it yields.
package structures

import (
	"github.com/scigolib/bcachefs/internal/core"
	"github.com/scigolib/bcachefs/internal/utils"
)

// Key format tags (bkey.format).
const (
	KeyFormatLocalBtree uint8 = 0
	KeyFormatCurrent    uint8 = 1
)

// Key type tags (bkey.type) this walker acts on. Any other value is
// treated as an ordinary leaf value and passed through unexamined.
const (
	KeyTypeExtent     uint8 = 1
	KeyTypeInlineData uint8 = 2
	KeyTypeDirent     uint8 = 3
	KeyTypeBtreePtrV2 uint8 = 4
)

// bkeyHeaderSize is the size of a bkey header within the key's own
// key_u64s-sized region: a u8 self length (in W, via the bkey width
// spec), a u8 format tag, a u8 type tag, a u8 needs-whiteout flag and
// four reserved bytes.
const bkeyHeaderSize = 8

// BkeySpec is the packed-container width spec for bkeys: a one-byte
// length prefix, no start bias.
var BkeySpec = core.U64sSpec{Size: 1, Start: 0}

// canonicalKeyU64s is the fixed size, in words, of a KEY_FORMAT_CURRENT
// key body (inode, offset, snapshot, size, version.hi, version.lo),
// header included.
const canonicalKeyU64s = 6 // 48 bytes

// ShortFormat is the well-known packing descriptor whose body holds
// only inode and offset, each a full 64-bit field with no bias.
var ShortFormat = BkeyFormat{
	KeyU64s:      3, // 24 bytes: header + inode(8) + offset(8)
	BitsPerField: [6]uint8{64, 64, 0, 0, 0, 0},
	FieldOffset:  [6]uint64{0, 0, 0, 0, 0, 0},
}

// BkeyFormat is the per-node packing descriptor used to reconstruct a
// logical key from a bit-packed key body.
type BkeyFormat struct {
	KeyU64s      uint8
	BitsPerField [6]uint8
	FieldOffset  [6]uint64
}

// bkey field indices, in declared order.
const (
	fieldInode = iota
	fieldOffset
	fieldSnapshot
	fieldSize
	fieldVersionHi
	fieldVersionLo
)

// LogicalKey is the decoded key: the position fields every key carries
// plus the raw header tags needed to interpret its value region.
type LogicalKey struct {
	Inode     uint64
	Offset    uint64
	Snapshot  uint32
	Size      uint32
	VersionHi uint32
	VersionLo uint64

	U64s          uint8
	Format        uint8
	Type          uint8
	NeedsWhiteout bool
	KeyU64s       uint8 // decoded body length, in words
}

// DecodeKey reconstructs a logical key from a raw bkey and, for
// locally-packed keys, the node's packing descriptor. It returns the
// decoded key and the value region that follows the key body, bounded
// by the key's own self length.
func DecodeKey(raw []byte, format BkeyFormat) (LogicalKey, []byte) {
	key := LogicalKey{
		U64s:          raw[0],
		Format:        raw[1],
		Type:          raw[2],
		NeedsWhiteout: raw[3] != 0,
	}

	switch {
	case key.Format == KeyFormatCurrent:
		decodeCanonicalBody(raw, &key)
		key.KeyU64s = canonicalKeyU64s
	case key.Format == KeyFormatLocalBtree && format == ShortFormat:
		key.Inode = utils.ReadUintLE(raw, bkeyHeaderSize, 8)
		key.Offset = utils.ReadUintLE(raw, bkeyHeaderSize+8, 8)
		key.KeyU64s = format.KeyU64s
	default:
		decodePackedBody(raw, format, &key)
		key.KeyU64s = format.KeyU64s
	}

	bodyEnd := int(key.KeyU64s) * core.WordSize
	valueEnd := int(key.U64s) * core.WordSize
	if valueEnd > len(raw) {
		valueEnd = len(raw)
	}
	if bodyEnd > valueEnd {
		bodyEnd = valueEnd
	}
	return key, raw[bodyEnd:valueEnd]
}

func decodeCanonicalBody(raw []byte, key *LogicalKey) {
	key.Inode = utils.ReadUintLE(raw, bkeyHeaderSize, 8)
	key.Offset = utils.ReadUintLE(raw, bkeyHeaderSize+8, 8)
	key.Snapshot = uint32(utils.ReadUintLE(raw, bkeyHeaderSize+16, 4))
	key.Size = uint32(utils.ReadUintLE(raw, bkeyHeaderSize+20, 4))
	key.VersionHi = uint32(utils.ReadUintLE(raw, bkeyHeaderSize+24, 4))
	key.VersionLo = utils.ReadUintLE(raw, bkeyHeaderSize+28, 8)
}

// decodePackedBody walks the six fields right-to-left starting from
// the byte immediately after key_u64s*W, per the general local-btree
// packing rule: each field is either absent (zero bits, zero bias) or
// a byte-aligned little-endian integer ending at the current cursor.
func decodePackedBody(raw []byte, format BkeyFormat, key *LogicalKey) {
	cursor := int(format.KeyU64s) * core.WordSize

	for i := 0; i < 6; i++ {
		bits := format.BitsPerField[i]
		bias := format.FieldOffset[i]
		if bits == 0 && bias == 0 {
			continue
		}

		width := int(bits) / 8
		cursor -= width

		value := bias
		if width > 0 {
			value += utils.ReadUintLE(raw, cursor, width)
		}

		switch i {
		case fieldInode:
			key.Inode = value
		case fieldOffset:
			key.Offset = value
		case fieldSnapshot:
			key.Snapshot = uint32(value)
		case fieldSize:
			key.Size = uint32(value)
		case fieldVersionHi:
			key.VersionHi = uint32(value)
		case fieldVersionLo:
			key.VersionLo = value
		}
	}
}
