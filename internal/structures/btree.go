package structures

import (
	"errors"
	"io"

	"github.com/scigolib/bcachefs/internal/core"
	"github.com/scigolib/bcachefs/internal/utils"
)

// BtreeNode is a node-sized buffer holding one inline bset and zero or
// more block-aligned successor bsets.
type BtreeNode struct {
	Format BkeyFormat

	buf            []byte
	deviceOffset   uint64
	sectorsWritten uint32
}

// frame is one level of descent: the node currently being examined,
// the bset within it, and the position of the most recently yielded
// key. Each frame exclusively owns its node buffer.
type frame struct {
	node *BtreeNode
	bset *Bset

	keyOff   int // absolute offset of the current key in node.buf, -1 if none
	valueOff int // absolute offset of the current value region
	key      LogicalKey
	value    []byte
}

// advanceKey moves to the next key in the current bset that has a
// non-empty value region, decoding it along the way. It reports false
// once the bset is exhausted.
func (f *frame) advanceKey() bool {
	if f.bset == nil {
		return false
	}
	bsetEnd := f.bset.start + bsetHeaderSize + int(f.bset.U64sLen)*core.WordSize

	for {
		next, ok := core.NextSibling(f.node.buf, f.bset.start+bsetHeaderSize, bsetEnd, f.keyOff, BkeySpec)
		if !ok {
			f.keyOff = -1
			return false
		}
		f.keyOff = next

		rawEnd := next + int(f.node.buf[next])*core.WordSize
		if rawEnd > len(f.node.buf) {
			rawEnd = len(f.node.buf)
		}
		raw := f.node.buf[next:rawEnd]

		key, value := DecodeKey(raw, f.node.Format)
		if len(value) == 0 {
			continue
		}

		f.key = key
		f.value = value
		f.valueOff = rawEnd - len(value)
		return true
	}
}

// Iterator is the composite stateful cursor over one B-tree: it walks
// root pointers, loads their nodes, iterates bsets and keys, and
// descends into child nodes on interior pointer keys for the B-tree
// ids that carry them. Descent is represented as an explicit stack of
// frames rather than a chained "next iterator" pointer, so teardown
// never has to unwind cyclic ownership.
type Iterator struct {
	r         io.ReaderAt
	sb        *core.Superblock
	id        core.BtreeID
	blockSize uint64

	stack   []*frame
	current *frame
}

// NewIterator resolves the B-tree-root journal entry for id, opens the
// first non-unused root pointer, and returns an iterator ready to
// yield values via Next. A missing root is not an error: the iterator
// is returned valid but empty, matching iter_open's documented
// behavior when no root matches the requested id.
func NewIterator(r io.ReaderAt, sb *core.Superblock, id core.BtreeID) (*Iterator, error) {
	it := &Iterator{r: r, sb: sb, id: id, blockSize: sb.BlockSizeBytes()}

	entry, ok := core.CleanJournalRoot(sb, id)
	if !ok {
		return it, nil
	}

	for _, ptr := range RootPointers(entry) {
		fr, err := it.loadFrame(ptr)
		if err != nil {
			return nil, err
		}
		if fr == nil {
			continue
		}
		it.stack = []*frame{fr}
		break
	}
	return it, nil
}

// loadFrame reads one node into a pooled buffer. It mirrors
// benz_bch_fread_btree_node: the whole buffer is zeroed before the
// read (a pooled buffer may carry a previous node's bytes), and a read
// that comes up short — the normal case for the last node near the
// end of a real image — leaves the node unusable rather than parsed
// out of whatever was actually written. The caller treats a nil frame
// the same way the C reference treats a failed fread: no pointer.
func (it *Iterator) loadFrame(ptr BtreePtrV2) (*frame, error) {
	size := it.sb.NodeSize()
	buf := utils.GetBuffer(int(size))
	for i := range buf {
		buf[i] = 0
	}

	toRead := uint64(ptr.SectorsWritten) * core.SectorSize
	if toRead > size {
		toRead = size
	}
	if toRead > 0 {
		n, err := it.r.ReadAt(buf[:toRead], int64(ptr.DeviceOffset))
		if err != nil {
			if !errors.Is(err, io.EOF) {
				utils.ReleaseBuffer(buf)
				return nil, utils.WrapError("btree node read failed", err)
			}
			if uint64(n) < toRead {
				utils.ReleaseBuffer(buf)
				return nil, nil
			}
		}
	}

	node := &BtreeNode{buf: buf, deviceOffset: ptr.DeviceOffset, sectorsWritten: ptr.SectorsWritten}
	node.Format = decodeNodeFormat(buf)
	return &frame{node: node, keyOff: -1}, nil
}

// Next advances the iterator and reports whether a value is available.
// Order is depth-first: an open child is drained before its parent's
// next key, and for the extents and dirents B-tree ids a key of type
// B-tree-pointer-v2 opens a child node in place of yielding its own
// value.
func (it *Iterator) Next() bool {
	for len(it.stack) > 0 {
		top := it.stack[len(it.stack)-1]

		if top.advanceKey() {
			if it.descends() && top.key.Type == KeyTypeBtreePtrV2 {
				childPtr := decodeBtreePtrV2(top.value)
				if !childPtr.Unused {
					child, err := it.loadFrame(childPtr)
					if err == nil && child != nil {
						it.stack = append(it.stack, child)
					}
				}
				continue
			}
			it.current = top
			return true
		}

		next, ok := NextBset(top.node, it.blockSize, top.bset)
		if ok {
			top.bset = next
			top.keyOff = -1
			continue
		}

		utils.ReleaseBuffer(top.node.buf)
		it.stack = it.stack[:len(it.stack)-1]
	}
	return false
}

func (it *Iterator) descends() bool {
	return it.id == core.BtreeIDExtents || it.id == core.BtreeIDDirents
}

// Key returns the key at the iterator's current position. Valid only
// after a call to Next that returned true.
func (it *Iterator) Key() LogicalKey {
	return it.current.key
}

// Value returns the value at the iterator's current position.
func (it *Iterator) Value() []byte {
	return it.current.value
}

// Close tears down the iterator, releasing every frame's node buffer.
// Calling Close on an already-closed iterator is a no-op.
func (it *Iterator) Close() error {
	for _, fr := range it.stack {
		utils.ReleaseBuffer(fr.node.buf)
	}
	it.stack = nil
	it.current = nil
	return nil
}
