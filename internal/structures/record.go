package structures

import (
	"bytes"

	"github.com/scigolib/bcachefs/internal/core"
	"github.com/scigolib/bcachefs/internal/utils"
)

// Extent describes one file extent: the logical byte range it covers
// and where that range lives on the device.
type Extent struct {
	Inode      uint64
	FileOffset uint64 // bytes, logical position within the file
	Offset     uint64 // bytes, device position
	Size       uint64 // bytes
}

// Dirent describes one directory entry.
type Dirent struct {
	ParentInode uint64
	Inode       uint64
	Type        uint8
	Name        string
}

// direntValueHeaderSize is the size of a bch_dirent value header: the
// target inode and the entry's type tag, preceding the name bytes.
const direntValueHeaderSize = 9

// MakeExtent builds an Extent from the iterator's current position. It
// reports false if the current key is not an extent or inline-data
// key.
func MakeExtent(it *Iterator) (Extent, bool) {
	key := it.Key()
	value := it.Value()
	top := it.current

	switch key.Type {
	case KeyTypeExtent:
		if len(value) < 8 {
			return Extent{}, false
		}
		valueOffset := utils.ReadUintLE(value, 0, 8)
		size := uint64(key.Size)
		return Extent{
			Inode:      key.Inode,
			FileOffset: (key.Offset - size) * core.SectorSize,
			Offset:     valueOffset * core.SectorSize,
			Size:       size * core.SectorSize,
		}, true

	case KeyTypeInlineData:
		// top.node.buf is itself node-relative (index 0 == the node's own
		// base address), so the value's offset within it needs no further
		// bias before adding the node's device-relative position.
		keyAddr := uint64(top.keyOff)
		valueAddr := uint64(top.valueOff)
		return Extent{
			Inode:      key.Inode,
			FileOffset: (key.Offset - uint64(key.Size)) * core.SectorSize,
			Offset:     valueAddr + top.node.deviceOffset,
			Size:       uint64(key.U64s)*core.WordSize - (valueAddr - keyAddr),
		}, true

	default:
		return Extent{}, false
	}
}

// MakeDirent builds a Dirent from the iterator's current position. It
// reports false if the current key is not a dirent key.
func MakeDirent(it *Iterator) (Dirent, bool) {
	key := it.Key()
	value := it.Value()

	if key.Type != KeyTypeDirent || len(value) < direntValueHeaderSize {
		return Dirent{}, false
	}

	name := value[direntValueHeaderSize:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	return Dirent{
		ParentInode: key.Inode,
		Inode:       utils.ReadUintLE(value, 0, 8),
		Type:        value[8],
		Name:        string(name),
	}, true
}
