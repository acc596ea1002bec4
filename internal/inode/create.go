// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inode

import (
	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/internal/kvstore"
)

// NoParent is passed to CreateDirectory to establish the filesystem root.
const NoParent Index = 0

func (m *Manager) writeTypeTag(tran *kvstore.Transaction, ino Index, typ Type) error {
	return tran.Put(inodesPath(), packIndex(ino), []byte{byte(typ)})
}

// allocateWithRollback allocates a fresh Index and arranges for it to be
// returned to the freelist if the enclosing transaction rolls back.
func (m *Manager) allocateWithRollback(tran *kvstore.Transaction) Index {
	ino := m.Allocate()
	tran.QueueFailure(func() { m.Deallocate(ino) })
	return ino
}

// CreateFile allocates a new, unlinked File inode. Its nlink starts at zero;
// the caller links it into a directory with DirSetEntry.
func (m *Manager) CreateFile(tran *kvstore.Transaction, mode, uid, gid uint32) (Index, error) {
	ino := m.allocateWithRollback(tran)
	if err := m.writeTypeTag(tran, ino, TypeFile); err != nil {
		return 0, err
	}
	if err := statPutAll(tran, ino, m.newStat(ino, TypeFile, mode, uid, gid, 0)); err != nil {
		return 0, err
	}
	return ino, nil
}

// CreateDirectory allocates a new Directory inode. Passing NoParent
// establishes the filesystem root and fails with DuplicateRoot if one
// already exists. Passing a real parent sets ".." to it and increments the
// parent's nlink for that back-edge; the caller still links the new
// directory's name into the parent with DirSetEntry.
func (m *Manager) CreateDirectory(tran *kvstore.Transaction, parent Index, mode, uid, gid uint32) (Index, error) {
	if parent == NoParent {
		if _, found, err := m.GetRoot(tran); err != nil {
			return 0, err
		} else if found {
			return 0, cryptofs.New(cryptofs.DuplicateRoot, "root already established")
		}

		ino := m.allocateWithRollback(tran)
		if err := m.writeTypeTag(tran, ino, TypeDirectory); err != nil {
			return 0, err
		}
		if err := statPutAll(tran, ino, m.newStat(ino, TypeDirectory, mode, uid, gid, 2)); err != nil {
			return 0, err
		}
		if err := tran.Put(dirPath(ino), []byte(dotEntry), packIndex(ino)); err != nil {
			return 0, err
		}
		if err := tran.Put(dirPath(ino), []byte(dotDotEntry), packIndex(ino)); err != nil {
			return 0, err
		}
		if err := m.setRoot(tran, ino); err != nil {
			return 0, err
		}
		return ino, nil
	}

	parentRec, err := m.Get(tran, parent)
	if err != nil {
		return 0, cryptofs.Wrap(cryptofs.ParentMissing, err, "parent %s", parent)
	}
	if parentRec.Type != TypeDirectory {
		return 0, cryptofs.New(cryptofs.TypeMismatch, "parent %s is not a directory", parent)
	}

	ino := m.allocateWithRollback(tran)
	if err := m.writeTypeTag(tran, ino, TypeDirectory); err != nil {
		return 0, err
	}
	if err := statPutAll(tran, ino, m.newStat(ino, TypeDirectory, mode, uid, gid, 1)); err != nil {
		return 0, err
	}
	if err := tran.Put(dirPath(ino), []byte(dotEntry), packIndex(ino)); err != nil {
		return 0, err
	}
	if err := tran.Put(dirPath(ino), []byte(dotDotEntry), packIndex(parent)); err != nil {
		return 0, err
	}
	if err := m.link(tran, parent); err != nil {
		return 0, err
	}
	return ino, nil
}

// CreateSymlink allocates a new Symlink inode whose target is stored
// verbatim. Its nlink starts at zero like CreateFile.
func (m *Manager) CreateSymlink(tran *kvstore.Transaction, target string, mode, uid, gid uint32) (Index, error) {
	ino := m.allocateWithRollback(tran)
	if err := m.writeTypeTag(tran, ino, TypeSymlink); err != nil {
		return 0, err
	}
	if err := statPutAll(tran, ino, m.newStat(ino, TypeSymlink, mode, uid, gid, 0)); err != nil {
		return 0, err
	}
	if err := tran.Put(linkPath(), packIndex(ino), []byte(target)); err != nil {
		return 0, err
	}
	return ino, nil
}

// CreateCharDev allocates a new CharacterDev inode with the given device
// numbers. Its nlink starts at zero like CreateFile.
func (m *Manager) CreateCharDev(tran *kvstore.Transaction, major, minor uint32, mode, uid, gid uint32) (Index, error) {
	ino := m.allocateWithRollback(tran)
	if err := m.writeTypeTag(tran, ino, TypeCharDev); err != nil {
		return 0, err
	}
	s := m.newStat(ino, TypeCharDev, mode, uid, gid, 0)
	s.Rdev = makedev(major, minor)
	if err := statPutAll(tran, ino, s); err != nil {
		return 0, err
	}
	return ino, nil
}

// makedev packs major/minor device numbers the way POSIX's makedev(3) does,
// giving Rdev a conventional glibc-compatible encoding.
func makedev(major, minor uint32) uint64 {
	return uint64(minor&0xff) | uint64(major&0xfff)<<8 |
		uint64(minor&^0xff)<<12 | uint64(major&^0xfff)<<32
}

// GetSymlinkTarget returns the verbatim target string stored for a Symlink
// inode.
func (m *Manager) GetSymlinkTarget(tran *kvstore.Transaction, ino Index) (string, error) {
	raw, found, err := tran.Get(linkPath(), packIndex(ino))
	if err != nil {
		return "", err
	}
	if !found {
		return "", cryptofs.New(cryptofs.NotFound, "symlink target for inode %s", ino)
	}
	return string(raw), nil
}
