package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/bcachefs/internal/utils"
)

// Superblock byte layout. The header carries the fields this walker needs
// (magic, self-length, block size, the packed flags word) ahead of the
// trailing region of typed sb fields; the header bytes this walker never
// inspects (a reserved checksum region ahead of the magic and two
// reserved bytes after the block size) are skipped over as opaque bytes
// rather than modeled.
const (
	sbSector     = 8 // superblock starts at sector 8
	sbMinRead    = 512
	sbMagicOff   = 16
	sbU64sOff    = 32
	sbBlockOff   = 36
	sbFlagsOff   = 40
	sbFlagsCount = 8
	sbHeaderSize = sbFlagsOff + sbFlagsCount*WordSize // 104 bytes

	// Node-size bit-field: bits [12, 28) of flags[0], a count of sectors.
	nodeSizeFirstBit = 12
	nodeSizeLastBit  = 28
)

// Magic is the filesystem's 16-byte sentinel, compared exactly against
// every superblock this walker opens.
var Magic = [16]byte{
	0xc6, 0x85, 0x73, 0xf6, 0x4e, 0x1a, 0x45, 0xca,
	0x82, 0x65, 0xf5, 0x7f, 0x48, 0xba, 0x6d, 0x81,
}

// ErrBadMagic is returned when a superblock's magic does not match Magic.
var ErrBadMagic = errors.New("bcachefs: superblock magic mismatch")

// Superblock is the root on-disk record: format parameters plus the
// trailing region of typed sb fields, one of which carries the clean
// journal snapshot this walker resolves B-tree roots from.
type Superblock struct {
	U64sTotal uint64
	Magic     [16]byte
	BlockSize uint32 // sectors
	Flags     [sbFlagsCount]uint64

	raw []byte // full superblock region, owns the field tail
}

// OpenSuperblock reads the minimal superblock at sector 8, then
// reallocates and rereads the full region once the real length
// (header_size + u64s_total*W) is known.
func OpenSuperblock(r io.ReaderAt) (*Superblock, error) {
	buf := make([]byte, sbMinRead)
	if _, err := r.ReadAt(buf, sbSector*SectorSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, utils.WrapError("superblock read failed", err)
	}

	if !bytes.Equal(buf[sbMagicOff:sbMagicOff+16], Magic[:]) {
		return nil, ErrBadMagic
	}

	sb := parseSuperblockHeader(buf)

	total, err := utils.SafeMultiply(sb.U64sTotal, WordSize)
	if err != nil {
		return nil, utils.WrapError("superblock size computation failed", err)
	}

	fullSize := sbHeaderSize + int(total)
	if fullSize <= len(buf) {
		sb.raw = buf[:fullSize]
		return sb, nil
	}

	full := make([]byte, fullSize)
	if _, err := r.ReadAt(full, sbSector*SectorSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, utils.WrapError("superblock reread failed", err)
	}
	if !bytes.Equal(full[sbMagicOff:sbMagicOff+16], Magic[:]) {
		return nil, ErrBadMagic
	}
	sb = parseSuperblockHeader(full)
	sb.raw = full
	return sb, nil
}

func parseSuperblockHeader(buf []byte) *Superblock {
	sb := &Superblock{
		U64sTotal: utils.ReadUintLE(buf, sbU64sOff, 4),
		BlockSize: uint32(utils.ReadUintLE(buf, sbBlockOff, 2)),
	}
	copy(sb.Magic[:], buf[sbMagicOff:sbMagicOff+16])
	for i := 0; i < sbFlagsCount; i++ {
		sb.Flags[i] = utils.ReadUintLE(buf, sbFlagsOff+i*WordSize, 8)
	}
	return sb
}

// Size returns the superblock's total on-disk length in bytes.
func (sb *Superblock) Size() uint64 {
	return uint64(sbHeaderSize) + sb.U64sTotal*WordSize
}

// BlockSizeBytes returns the filesystem's block size in bytes.
func (sb *Superblock) BlockSizeBytes() uint64 {
	return uint64(sb.BlockSize) * SectorSize
}

// NodeSize returns the B-tree node size in bytes, packed into bits
// [12, 28) of flags[0].
func (sb *Superblock) NodeSize() uint64 {
	return utils.FlagBits(sb.Flags[0], nodeSizeFirstBit, nodeSizeLastBit) * SectorSize
}

// sbFieldHeaderSize is the size of a bch_sb_field header: a u32 self
// length (in W) followed by a u32 type tag.
const sbFieldHeaderSize = 8

var sbFieldSpec = U64sSpec{Size: 4, Start: 0}

// SBField is a typed, length-prefixed region appended to the superblock.
type SBField struct {
	U64sLen uint32
	Type    uint32
	Payload []byte // the field's body, excluding its own header
}

// SB field types this walker recognizes.
const FieldTypeClean uint32 = 1

// Field walks the superblock's trailing region of typed fields using
// the packed-container walker, returning the first whose type matches.
func (sb *Superblock) Field(fieldType uint32) (*SBField, bool) {
	current := -1
	end := len(sb.raw)
	for {
		next, ok := NextSibling(sb.raw, sbHeaderSize, end, current, sbFieldSpec)
		if !ok {
			return nil, false
		}
		current = next

		u64sLen := uint32(utils.ReadUintLE(sb.raw, current, 4))
		typ := uint32(utils.ReadUintLE(sb.raw, current+4, 4))
		if typ == fieldType {
			payloadEnd := current + int(u64sLen)*WordSize
			if payloadEnd > len(sb.raw) {
				payloadEnd = len(sb.raw)
			}
			return &SBField{
				U64sLen: u64sLen,
				Type:    typ,
				Payload: sb.raw[current+sbFieldHeaderSize : payloadEnd],
			}, true
		}
	}
}

func (sb *Superblock) String() string {
	return fmt.Sprintf("superblock{u64s=%d block=%dS node=%dB}", sb.U64sTotal, sb.BlockSize, sb.NodeSize())
}
