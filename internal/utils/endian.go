package utils

import "encoding/binary"

// ReaderAt is a simplified interface for io.ReaderAt.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// ReadUint64 reads a 64-bit value at the specified offset.
func ReadUint64(r ReaderAt, offset int64, order binary.ByteOrder) (uint64, error) {
	buf := GetBuffer(8)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return order.Uint64(buf), nil
}

// ReadUintLE reads an unsigned little-endian integer of the given byte width
// (1, 2, 4, or 8) from a byte slice at the given offset. The on-disk format
// is little-endian throughout, so every packed-container length prefix and
// bit-packed key field is decoded this way.
func ReadUintLE(b []byte, offset int, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[offset])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b[offset : offset+2]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b[offset : offset+4]))
	case 8:
		return binary.LittleEndian.Uint64(b[offset : offset+8])
	default:
		return 0
	}
}

// FlagBits extracts the inclusive-exclusive bit range [first, last) from a
// 64-bit flags word, e.g. the node-size field packed into sb.flags[0].
func FlagBits(bitfield uint64, first, last uint8) uint64 {
	return bitfield << (64 - last) >> (64 - last + first)
}
