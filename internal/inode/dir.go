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
	"strings"

	cryptofs "github.com/cryptofs/cryptofs"
	"github.com/cryptofs/cryptofs/internal/kvstore"
)

func validateEntryName(name string) error {
	if name == "" {
		return cryptofs.New(cryptofs.InvalidName, "directory entry name must not be empty")
	}
	if strings.Contains(name, "/") {
		return cryptofs.New(cryptofs.InvalidName, "directory entry name %q must not contain '/'", name)
	}
	if name == dotEntry || name == dotDotEntry {
		return cryptofs.New(cryptofs.InvalidName, "directory entry name %q is reserved", name)
	}
	return nil
}

// DirGetEntry resolves name within directory ino. found is false if no such
// entry exists. If the entry exists but its target inode has no backing
// record (a structural corruption spec.md §3 invariant 1 forbids), it
// returns IndexMissing instead of a plain not-found.
func (m *Manager) DirGetEntry(tran *kvstore.Transaction, ino Index, name string) (child Index, found bool, err error) {
	raw, found, err := tran.Get(dirPath(ino), []byte(name))
	if err != nil || !found {
		return 0, false, err
	}
	child = unpackIndex(raw)

	if _, found, err := tran.Get(inodesPath(), packIndex(child)); err != nil {
		return 0, false, err
	} else if !found {
		return 0, false, cryptofs.New(cryptofs.IndexMissing, "entry %q in directory %s points at missing inode %s", name, ino, child)
	}

	return child, true, nil
}

// DirSetEntry points name at child within directory ino. It verifies child
// exists, is idempotent (a no-op, per spec.md §7) if the slot already holds
// child, increments child's nlink, decrements the nlink of whatever
// previously occupied the slot (if anything), and bumps ino's mtime/ctime.
func (m *Manager) DirSetEntry(tran *kvstore.Transaction, ino Index, name string, child Index) error {
	if err := validateEntryName(name); err != nil {
		return err
	}

	if _, err := m.Get(tran, child); err != nil {
		return cryptofs.Wrap(cryptofs.NotFound, err, "entry target %s", child)
	}

	previous, hadPrevious, err := tran.Get(dirPath(ino), []byte(name))
	if err != nil {
		return err
	}
	if hadPrevious && unpackIndex(previous) == child {
		return nil
	}

	if err := tran.Put(dirPath(ino), []byte(name), packIndex(child)); err != nil {
		return err
	}
	if err := m.link(tran, child); err != nil {
		return err
	}
	if hadPrevious {
		if err := m.unlink(tran, unpackIndex(previous)); err != nil {
			return err
		}
	}

	return m.touch(tran, ino, true)
}

// DirUnsetEntry removes name from directory ino, decrementing the nlink of
// the inode it pointed at.
func (m *Manager) DirUnsetEntry(tran *kvstore.Transaction, ino Index, name string) error {
	if err := validateEntryName(name); err != nil {
		return err
	}

	raw, found, err := tran.Get(dirPath(ino), []byte(name))
	if err != nil {
		return err
	}
	if !found {
		return cryptofs.New(cryptofs.NotFound, "entry %q in directory %s", name, ino)
	}

	tran.Del(dirPath(ino), []byte(name))
	if err := m.unlink(tran, unpackIndex(raw)); err != nil {
		return err
	}

	return m.touch(tran, ino, true)
}

// DirResetEntry renames oldName to newName within the same directory ino. It
// sets newName before removing oldName so the child's nlink never transiently
// reaches zero mid-rename.
func (m *Manager) DirResetEntry(tran *kvstore.Transaction, ino Index, oldName, newName string) error {
	child, found, err := m.DirGetEntry(tran, ino, oldName)
	if err != nil {
		return err
	}
	if !found {
		return cryptofs.New(cryptofs.NotFound, "entry %q in directory %s", oldName, ino)
	}

	if err := m.DirSetEntry(tran, ino, newName, child); err != nil {
		return err
	}
	return m.DirUnsetEntry(tran, ino, oldName)
}

// DirEntries iterates every entry in directory ino, including "." and "..".
func (m *Manager) DirEntries(tran *kvstore.Transaction, ino Index, fn func(name string, child Index) error) error {
	return tran.Iterate(dirPath(ino), nil, nil, func(key, value []byte) error {
		return fn(string(key), unpackIndex(value))
	})
}
