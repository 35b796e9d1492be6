// Package bcachefs provides a pure Go, read-only parser and traversal
// engine for the on-disk format of a bcachefs filesystem image. It opens
// an image, resolves B-tree roots from a clean journal snapshot, and
// walks B-trees to completion, yielding typed extent and dirent records.
package bcachefs

import (
	"os"

	"github.com/scigolib/bcachefs/internal/core"
	"github.com/scigolib/bcachefs/internal/structures"
	"github.com/scigolib/bcachefs/internal/utils"
)

// Filesystem represents an open bcachefs image.
type Filesystem struct {
	osFile *os.File
	sb     *core.Superblock
}

// Open opens a bcachefs image for reading and returns a Filesystem
// handle positioned at a validated superblock.
func Open(filename string) (*Filesystem, error) {
	//nolint:gosec // G304: user-provided filename is intentional for this library
	f, err := os.Open(filename)
	if err != nil {
		return nil, utils.WrapError("image open failed", err)
	}

	sb, err := core.OpenSuperblock(f)
	if err != nil {
		_ = f.Close()
		return nil, utils.WrapError("superblock read failed", err)
	}

	return &Filesystem{osFile: f, sb: sb}, nil
}

// Close closes the image and releases associated resources. It is safe
// to call Close multiple times.
func (fs *Filesystem) Close() error {
	if fs.osFile == nil {
		return nil
	}
	err := fs.osFile.Close()
	fs.osFile = nil
	return err
}

// Superblock returns the image's superblock metadata.
func (fs *Filesystem) Superblock() *core.Superblock {
	return fs.sb
}

// Extents returns an iterator over every extent key reachable from the
// extents B-tree's root.
func (fs *Filesystem) Extents() (*structures.Iterator, error) {
	return structures.NewIterator(fs.osFile, fs.sb, core.BtreeIDExtents)
}

// Dirents returns an iterator over every directory entry key reachable
// from the dirents B-tree's root.
func (fs *Filesystem) Dirents() (*structures.Iterator, error) {
	return structures.NewIterator(fs.osFile, fs.sb, core.BtreeIDDirents)
}

// WalkExtents calls fn for every extent record in the image. Traversal
// stops at the first error fn returns.
func (fs *Filesystem) WalkExtents(fn func(structures.Extent) error) error {
	it, err := fs.Extents()
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	for it.Next() {
		extent, ok := structures.MakeExtent(it)
		if !ok {
			continue
		}
		if err := fn(extent); err != nil {
			return err
		}
	}
	return nil
}

// WalkDirents calls fn for every directory entry record in the image.
// Traversal stops at the first error fn returns.
func (fs *Filesystem) WalkDirents(fn func(structures.Dirent) error) error {
	it, err := fs.Dirents()
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	for it.Next() {
		dirent, ok := structures.MakeDirent(it)
		if !ok {
			continue
		}
		if err := fn(dirent); err != nil {
			return err
		}
	}
	return nil
}
