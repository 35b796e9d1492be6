package core

import "github.com/scigolib/bcachefs/internal/utils"

// BtreeID identifies one of the format's logical B-trees. Values follow
// the on-disk jset_entry.btree_id tag.
type BtreeID uint8

// The B-tree ids this walker has a record materializer for, plus the
// handful of sibling trees a clean snapshot may also carry roots for.
const (
	BtreeIDExtents BtreeID = iota
	BtreeIDInodes
	BtreeIDDirents
	BtreeIDXattrs
	BtreeIDAlloc
)

// jsetEntryBtreeRoot is the jset_entry type tag carrying a B-tree root
// pointer payload.
const jsetEntryBtreeRoot uint8 = 1

// jsetEntryHeaderSize is the size of a jset_entry header: a u32 self
// length (in W), a btree_id byte, a level byte, a type byte and a pad
// byte.
const jsetEntryHeaderSize = 8

var jsetEntrySpec = U64sSpec{Size: 4, Start: 0}

// cleanHeaderSize is the size of the bch_sb_field_clean sub-header
// (flags and journal sequence) that precedes the array of journal
// entries inside the clean-snapshot sb field.
const cleanHeaderSize = 16

// JournalEntry is a length-prefixed record within the clean-snapshot sb
// field. The B-tree-root kind's payload is a canonical key followed by
// zero or more B-tree pointer values.
type JournalEntry struct {
	U64sLen uint32
	Type    uint8
	BtreeID BtreeID
	Payload []byte // the entry's body, excluding its own header
}

// CleanJournalRoot finds the clean-snapshot sb field, walks its journal
// entries, and returns the first B-tree-root entry naming id.
func CleanJournalRoot(sb *Superblock, id BtreeID) (*JournalEntry, bool) {
	clean, ok := sb.Field(FieldTypeClean)
	if !ok {
		return nil, false
	}

	payload := clean.Payload
	current := -1
	end := len(payload)
	for {
		next, ok := NextSibling(payload, cleanHeaderSize, end, current, jsetEntrySpec)
		if !ok {
			return nil, false
		}
		current = next

		u64sLen := uint32(utils.ReadUintLE(payload, current, 4))
		entryType := payload[current+6]
		btreeID := BtreeID(payload[current+4])
		if entryType != jsetEntryBtreeRoot || btreeID != id {
			continue
		}

		bodyEnd := current + int(u64sLen)*WordSize
		if bodyEnd > len(payload) {
			bodyEnd = len(payload)
		}
		return &JournalEntry{
			U64sLen: u64sLen,
			Type:    entryType,
			BtreeID: btreeID,
			Payload: payload[current+jsetEntryHeaderSize : bodyEnd],
		}, true
	}
}
